// Package aggregate holds the pure parts of the rollup engine: folding raw
// samples or finer buckets into one aggregate bucket, and deciding whether a
// bucket is mature enough to be finalized.
package aggregate

import (
	"time"

	"github.com/WCL-INU/beeweb/internal/models"
)

// FoldSamples folds the raw samples of one (device, type, bucket) into an
// aggregate. Samples with no populated value are ignored; ok is false when no
// sample contributed, in which case no row must be written.
func FoldSamples(key models.SeriesKey, bucketStart time.Time, samples []models.RawSample) (models.AggregateBucket, bool) {
	var sum float64
	var count int64
	for _, s := range samples {
		v, ok := s.Value()
		if !ok {
			continue
		}
		sum += v
		count++
	}
	if count == 0 {
		return models.AggregateBucket{}, false
	}

	out := models.AggregateBucket{
		DeviceID:    key.DeviceID,
		DataType:    key.DataType,
		BucketStart: bucketStart,
		SampleCount: count,
	}
	if key.DataType.IsAdditive() {
		out.SumValue = &sum
	} else {
		avg := sum / float64(count)
		out.AvgValue = &avg
	}
	return out, true
}

// FoldChildren combines finer buckets into their parent. Additive types sum
// the child sums; intensive types take the count-weighted mean of the child
// means. The parent's count is always the sum of child counts.
func FoldChildren(key models.SeriesKey, parentStart time.Time, children []models.AggregateBucket) (models.AggregateBucket, bool) {
	var count int64
	var sum, weighted float64
	var weight int64
	for _, c := range children {
		count += c.SampleCount
		if key.DataType.IsAdditive() {
			if c.SumValue != nil {
				sum += *c.SumValue
			}
			continue
		}
		if c.AvgValue != nil {
			weighted += *c.AvgValue * float64(c.SampleCount)
			weight += c.SampleCount
		}
	}
	if count == 0 {
		return models.AggregateBucket{}, false
	}

	out := models.AggregateBucket{
		DeviceID:    key.DeviceID,
		DataType:    key.DataType,
		BucketStart: parentStart,
		SampleCount: count,
	}
	if key.DataType.IsAdditive() {
		out.SumValue = &sum
	} else if weight > 0 {
		avg := weighted / float64(weight)
		out.AvgValue = &avg
	}
	return out, true
}
