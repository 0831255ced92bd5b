// Package redisledger keeps the touch ledger in a Redis sorted set. Members
// are "device:type:unix" and the score is the bucket start, so ZRANGE yields
// markers oldest bucket first.
package redisledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/WCL-INU/beeweb/internal/config"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/redis/go-redis/v9"
	nuts "github.com/vaudience/go-nuts"
)

const (
	touchKey    = "summary:touch:5m"
	enqueuedKey = "summary:touch:5m:enqueued"
)

type Ledger struct {
	rdb *redis.Client
	now func() time.Time
}

// New connects to redis and verifies the connection
func New(ctx context.Context, cfg config.RedisConfig) (*Ledger, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, errors.NewUnavailableError("failed to connect to redis", err)
	}
	nuts.L.Infof("[Redis] Touch ledger connected to %s/%d", cfg.Addr(), cfg.DB)
	return NewWithClient(rdb), nil
}

// NewWithClient wraps an existing client
func NewWithClient(rdb *redis.Client) *Ledger {
	return &Ledger{rdb: rdb, now: time.Now}
}

func member(deviceID int64, dataType models.DataType, start time.Time) string {
	return fmt.Sprintf("%d:%d:%d", deviceID, int(dataType), start.Unix())
}

func parseMember(m string) (models.TouchMarker, error) {
	parts := strings.Split(m, ":")
	if len(parts) != 3 {
		return models.TouchMarker{}, errors.NewDataIntegrityError("malformed touch marker "+m, nil)
	}
	device, err1 := strconv.ParseInt(parts[0], 10, 64)
	dataType, err2 := strconv.Atoi(parts[1])
	start, err3 := strconv.ParseInt(parts[2], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil {
		return models.TouchMarker{}, errors.NewDataIntegrityError("malformed touch marker "+m, nil)
	}
	return models.TouchMarker{
		Level:       models.Level5m,
		DeviceID:    device,
		DataType:    models.DataType(dataType),
		BucketStart: time.Unix(start, 0).UTC(),
	}, nil
}

func (l *Ledger) MarkDirty(ctx context.Context, deviceID int64, dataType models.DataType, t time.Time) error {
	start := models.Level5m.BucketStart(t)
	m := member(deviceID, dataType, start)

	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, touchKey, redis.Z{Score: float64(start.Unix()), Member: m})
		pipe.HSetNX(ctx, enqueuedKey, m, l.now().UTC().Format(time.RFC3339Nano))
		return nil
	})
	if err != nil {
		return errors.NewDatabaseError("failed to mark bucket dirty", err)
	}
	return nil
}

func (l *Ledger) ListPending(ctx context.Context, limit int) ([]models.TouchMarker, error) {
	if limit < 1 {
		return []models.TouchMarker{}, nil
	}
	members, err := l.rdb.ZRange(ctx, touchKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, errors.NewDatabaseError("failed to list pending touch markers", err)
	}
	if len(members) == 0 {
		return []models.TouchMarker{}, nil
	}

	enqueued, err := l.rdb.HMGet(ctx, enqueuedKey, members...).Result()
	if err != nil {
		return nil, errors.NewDatabaseError("failed to read touch marker timestamps", err)
	}

	markers := make([]models.TouchMarker, 0, len(members))
	for i, m := range members {
		marker, err := parseMember(m)
		if err != nil {
			nuts.L.Errorf("[Redis] %v", err)
			continue
		}
		if s, ok := enqueued[i].(string); ok {
			if at, err := time.Parse(time.RFC3339Nano, s); err == nil {
				marker.EnqueuedAt = at
			}
		}
		markers = append(markers, marker)
	}
	return markers, nil
}

func (l *Ledger) Remove(ctx context.Context, marker models.TouchMarker) error {
	m := member(marker.DeviceID, marker.DataType, marker.BucketStart)
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZRem(ctx, touchKey, m)
		pipe.HDel(ctx, enqueuedKey, m)
		return nil
	})
	if err != nil {
		return errors.NewDatabaseError("failed to remove touch marker", err)
	}
	return nil
}

func (l *Ledger) PendingCount(ctx context.Context) (int64, error) {
	n, err := l.rdb.ZCard(ctx, touchKey).Result()
	if err != nil {
		return 0, errors.NewDatabaseError("failed to count touch markers", err)
	}
	return n, nil
}

func (l *Ledger) Close() error {
	return l.rdb.Close()
}
