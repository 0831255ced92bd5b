package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/repository"
	"github.com/cespare/xxhash/v2"
	nuts "github.com/vaudience/go-nuts"
)

// Reader serves raw rows or one of the summary tiers in a common shape
type Reader struct {
	raw       repository.RawSampleRepository
	summaries repository.SummaryRepository
}

func NewReader(raw repository.RawSampleRepository, summaries repository.SummaryRepository) *Reader {
	return &Reader{raw: raw, summaries: summaries}
}

// AutoLevel picks the resolution for a range width: up to a day raw, up to a
// week 5m, up to 30 days 30m, 2h beyond.
func AutoLevel(start, end time.Time) models.Level {
	width := end.Sub(start)
	switch {
	case width <= day:
		return models.LevelRaw
	case width <= 7*day:
		return models.Level5m
	case width <= 30*day:
		return models.Level30m
	default:
		return models.Level2h
	}
}

// SyntheticID is the opaque row id of a summary bucket. It is stable for a
// (device, type, bucket start) but never stored.
func SyntheticID(deviceID int64, dataType models.DataType, bucketStart time.Time) uint64 {
	return xxhash.Sum64String(fmt.Sprintf("%d-%d-%d", deviceID, int(dataType), bucketStart.Unix()))
}

// Query returns rows for the device and types in [start, end], newest first
func (r *Reader) Query(ctx context.Context, deviceID int64, dataTypes []models.DataType, start, end time.Time, level models.Level) ([]models.SensorDataRow, error) {
	if end.Before(start) {
		return nil, errors.NewConfigurationError("query start is after end", nil).WithDetails(map[string]string{
			"start": start.Format(time.RFC3339),
			"end":   end.Format(time.RFC3339),
		})
	}
	if level == models.LevelAuto || level == "" {
		level = AutoLevel(start, end)
	}
	if level != models.LevelRaw && !level.IsSummary() {
		return nil, errors.NewConfigurationError("invalid level "+string(level), nil)
	}
	if len(dataTypes) == 0 {
		return []models.SensorDataRow{}, nil
	}

	if level == models.LevelRaw {
		return r.queryRaw(ctx, deviceID, dataTypes, start, end)
	}
	return r.querySummary(ctx, level, deviceID, dataTypes, start, end)
}

func (r *Reader) queryRaw(ctx context.Context, deviceID int64, dataTypes []models.DataType, start, end time.Time) ([]models.SensorDataRow, error) {
	samples, err := r.raw.ListSamples(ctx, deviceID, dataTypes, start, end)
	if err != nil {
		return nil, err
	}
	rows := make([]models.SensorDataRow, 0, len(samples))
	for _, s := range samples {
		v, ok := s.Value()
		if !ok {
			nuts.L.Warnf("[Reader] %v", errors.NewDataIntegrityError(fmt.Sprintf("raw sample %d has no value", s.ID), nil))
			continue
		}
		rows = append(rows, models.SensorDataRow{
			ID:       uint64(s.ID),
			DeviceID: s.DeviceID,
			DataType: s.DataType,
			Time:     s.Time,
			Value:    v,
			Level:    models.LevelRaw,
		})
	}
	return rows, nil
}

func (r *Reader) querySummary(ctx context.Context, level models.Level, deviceID int64, dataTypes []models.DataType, start, end time.Time) ([]models.SensorDataRow, error) {
	buckets, err := r.summaries.QueryBuckets(ctx, level, deviceID, dataTypes, start, end)
	if err != nil {
		return nil, err
	}
	rows := make([]models.SensorDataRow, 0, len(buckets))
	for _, b := range buckets {
		v, ok := b.Value()
		if !ok {
			nuts.L.Warnf("[Reader] %v", errors.NewDataIntegrityError(fmt.Sprintf(
				"%s bucket %s of device %d type %s has no %s value",
				level, b.BucketStart.Format(time.RFC3339), b.DeviceID, b.DataType, b.DataType.Category()), nil))
			continue
		}
		rows = append(rows, models.SensorDataRow{
			ID:       SyntheticID(b.DeviceID, b.DataType, b.BucketStart),
			DeviceID: b.DeviceID,
			DataType: b.DataType,
			Time:     b.BucketStart,
			Value:    v,
			Level:    level,
		})
	}
	return rows, nil
}
