package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/WCL-INU/beeweb/internal/aggregate"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

// Aggregator recomputes single buckets from their source rows and upserts them
type Aggregator struct {
	raw       repository.RawSampleRepository
	summaries repository.SummaryRepository
	observer  Observer
}

func NewAggregator(raw repository.RawSampleRepository, summaries repository.SummaryRepository, observer Observer) *Aggregator {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Aggregator{raw: raw, summaries: summaries, observer: observer}
}

// Aggregate5m folds the raw samples of one 5m bucket and upserts the result.
// written is false when the bucket had no samples; nothing is stored then.
func (a *Aggregator) Aggregate5m(ctx context.Context, deviceID int64, dataType models.DataType, bucketStart time.Time) (bucket models.AggregateBucket, written bool, err error) {
	key := models.SeriesKey{DeviceID: deviceID, DataType: dataType}
	samples, err := a.raw.SamplesInRange(ctx, deviceID, dataType, bucketStart, models.Level5m.BucketEnd(bucketStart))
	if err != nil {
		return bucket, false, err
	}

	for _, s := range samples {
		if _, ok := s.Value(); !ok {
			nuts.L.Warnf("[Aggregator] %v", errors.NewDataIntegrityError(
				fmt.Sprintf("raw sample %d of device %d type %s has no value", s.ID, deviceID, dataType), nil))
		}
	}

	bucket, ok := aggregate.FoldSamples(key, bucketStart, samples)
	if !ok {
		return bucket, false, nil
	}
	if err := a.summaries.UpsertBucket(ctx, models.Level5m, &bucket); err != nil {
		return bucket, false, err
	}
	a.observer.BucketWritten(models.Level5m)
	return bucket, true, nil
}

// AggregateFromChildren rebuilds a 30m or 2h bucket from the 5m table
func (a *Aggregator) AggregateFromChildren(ctx context.Context, level models.Level, deviceID int64, dataType models.DataType, parentStart time.Time) (bucket models.AggregateBucket, written bool, err error) {
	if !level.IsSummary() || level == models.Level5m {
		return bucket, false, errors.NewConfigurationError(fmt.Sprintf("level %s is not built from children", level), nil)
	}
	key := models.SeriesKey{DeviceID: deviceID, DataType: dataType}
	children, err := a.summaries.ListBuckets(ctx, level.Source(), deviceID, dataType, parentStart, level.BucketEnd(parentStart))
	if err != nil {
		return bucket, false, err
	}

	bucket, ok := aggregate.FoldChildren(key, parentStart, children)
	if !ok {
		return bucket, false, nil
	}
	if err := a.summaries.UpsertBucket(ctx, level, &bucket); err != nil {
		return bucket, false, err
	}
	a.observer.BucketWritten(level)
	return bucket, true, nil
}
