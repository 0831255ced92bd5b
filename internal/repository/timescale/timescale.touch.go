package timescale

import (
	"context"
	"time"

	"github.com/WCL-INU/beeweb/internal/database"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
)

// TouchRepo is the SQL-backed touch ledger
type TouchRepo struct {
	baseRepo
}

func NewTouchRepository(ctx context.Context, db database.DB) (*TouchRepo, error) {
	repo := &TouchRepo{baseRepo{db: db}}
	queries := []string{
		`CREATE TABLE IF NOT EXISTS summary_touch (
			level TEXT NOT NULL,
			device_id BIGINT NOT NULL,
			data_type INTEGER NOT NULL,
			bucket_start TIMESTAMPTZ NOT NULL,
			enqueued_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (level, device_id, data_type, bucket_start)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_summary_touch_level_bucket
			ON summary_touch(level, bucket_start)`,
	}
	if err := repo.execAll(ctx, "touch ledger", queries); err != nil {
		return nil, err
	}
	return repo, nil
}

func (r *TouchRepo) MarkDirty(ctx context.Context, deviceID int64, dataType models.DataType, t time.Time) error {
	query := `
		INSERT INTO summary_touch (level, device_id, data_type, bucket_start)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT DO NOTHING`

	_, err := r.db.GetDB().ExecContext(ctx, query, models.Level5m, deviceID, dataType, models.Level5m.BucketStart(t))
	if err != nil {
		return errors.NewDatabaseError("failed to mark bucket dirty", err)
	}
	return nil
}

func (r *TouchRepo) ListPending(ctx context.Context, limit int) ([]models.TouchMarker, error) {
	markers := []models.TouchMarker{}
	query := `
		SELECT level, device_id, data_type, bucket_start, enqueued_at
		FROM summary_touch
		WHERE level = $1
		ORDER BY bucket_start ASC
		LIMIT $2`

	if err := r.db.GetDB().SelectContext(ctx, &markers, query, models.Level5m, limit); err != nil {
		return nil, errors.NewDatabaseError("failed to list pending touch markers", err)
	}
	for i := range markers {
		markers[i].BucketStart = markers[i].BucketStart.UTC()
	}
	return markers, nil
}

func (r *TouchRepo) Remove(ctx context.Context, marker models.TouchMarker) error {
	query := `
		DELETE FROM summary_touch
		WHERE level = $1 AND device_id = $2 AND data_type = $3 AND bucket_start = $4`

	_, err := r.db.GetDB().ExecContext(ctx, query, marker.Level, marker.DeviceID, marker.DataType, marker.BucketStart)
	if err != nil {
		return errors.NewDatabaseError("failed to remove touch marker", err)
	}
	return nil
}

func (r *TouchRepo) PendingCount(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.GetDB().GetContext(ctx, &count, `SELECT COUNT(*) FROM summary_touch`); err != nil {
		return 0, errors.NewDatabaseError("failed to count touch markers", err)
	}
	return count, nil
}
