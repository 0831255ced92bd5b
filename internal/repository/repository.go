// FilePath: internal/repository/repository.go
package repository

import (
	"context"
	"time"

	"github.com/WCL-INU/beeweb/internal/models"
)

// RawSampleRepository is the narrow view the summary engine has of the raw store.
// Half-open ranges are [from, to); closed ranges are [start, end].
type RawSampleRepository interface {
	// UpsertSample writes a sample; a duplicate (device, type, time) overwrites the value.
	UpsertSample(ctx context.Context, sample *models.RawSample) error
	// SamplesInRange returns the samples of one series in [from, to).
	SamplesInRange(ctx context.Context, deviceID int64, dataType models.DataType, from, to time.Time) ([]models.RawSample, error)
	// LatestTime returns the series watermark; ok is false when the series has no rows.
	LatestTime(ctx context.Context, deviceID int64, dataType models.DataType) (latest time.Time, ok bool, err error)
	// TimeBounds returns the min and max time over all rows, nil when the store is empty.
	TimeBounds(ctx context.Context) (*models.TimeRange, error)
	// HasSamples is a cheap existence probe over [from, to).
	HasSamples(ctx context.Context, from, to time.Time) (bool, error)
	// ListSamples returns rows for one device and any of the types in [start, end], newest first.
	ListSamples(ctx context.Context, deviceID int64, dataTypes []models.DataType, start, end time.Time) ([]models.RawSample, error)
}

// SummaryRepository owns the three aggregate tables
type SummaryRepository interface {
	// UpsertBucket writes one bucket keyed by (device, type, bucket start).
	UpsertBucket(ctx context.Context, level models.Level, bucket *models.AggregateBucket) error
	// ListBuckets returns one series' buckets with start in [from, to), oldest first.
	ListBuckets(ctx context.Context, level models.Level, deviceID int64, dataType models.DataType, from, to time.Time) ([]models.AggregateBucket, error)
	// QueryBuckets returns buckets for one device and any of the types with start in [start, end], newest first.
	QueryBuckets(ctx context.Context, level models.Level, deviceID int64, dataTypes []models.DataType, start, end time.Time) ([]models.AggregateBucket, error)
	// HasBuckets is a cheap existence probe over bucket starts in [from, to).
	HasBuckets(ctx context.Context, level models.Level, from, to time.Time) (bool, error)
	// BackfillLevel recomputes every bucket of level whose source rows fall in
	// [from, to) with one grouped aggregation: 5m from raw, coarser levels from 5m.
	// It returns the number of buckets written.
	BackfillLevel(ctx context.Context, level models.Level, from, to time.Time) (int64, error)
}

// TouchLedger is the durable set of dirty 5m buckets
type TouchLedger interface {
	// MarkDirty floors t to its 5m bucket and inserts the marker if absent.
	MarkDirty(ctx context.Context, deviceID int64, dataType models.DataType, t time.Time) error
	// ListPending returns up to limit 5m markers, oldest bucket first.
	ListPending(ctx context.Context, limit int) ([]models.TouchMarker, error)
	// Remove deletes exactly one marker.
	Remove(ctx context.Context, marker models.TouchMarker) error
	// PendingCount returns the number of markers currently stored.
	PendingCount(ctx context.Context) (int64, error)
}
