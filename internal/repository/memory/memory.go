// Package memory keeps raw samples, summary buckets and touch markers in
// process memory. Data is lost on restart. Used by the "memory" database
// driver for local development and as the store behind the engine tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/WCL-INU/beeweb/internal/aggregate"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
)

type sampleKey struct {
	series models.SeriesKey
	at     int64
}

type bucketKey struct {
	series models.SeriesKey
	start  int64
}

type touchKey struct {
	level  models.Level
	series models.SeriesKey
	start  int64
}

// Store implements repository.RawSampleRepository, repository.SummaryRepository
// and repository.TouchLedger.
type Store struct {
	mu      sync.RWMutex
	nextID  int64
	samples map[sampleKey]models.RawSample
	buckets map[models.Level]map[bucketKey]models.AggregateBucket
	touches map[touchKey]models.TouchMarker
	now     func() time.Time
}

// New creates an empty in-memory store
func New() *Store {
	s := &Store{
		samples: make(map[sampleKey]models.RawSample),
		buckets: make(map[models.Level]map[bucketKey]models.AggregateBucket),
		touches: make(map[touchKey]models.TouchMarker),
		now:     time.Now,
	}
	for _, l := range models.SummaryLevels {
		s.buckets[l] = make(map[bucketKey]models.AggregateBucket)
	}
	return s
}

// Close is a no-op kept for parity with the database-backed stores
func (s *Store) Close() error {
	return nil
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && t.Before(to)
}

func inClosedRange(t, start, end time.Time) bool {
	return !t.Before(start) && !t.After(end)
}

func typeSet(types []models.DataType) map[models.DataType]bool {
	set := make(map[models.DataType]bool, len(types))
	for _, t := range types {
		set[t] = true
	}
	return set
}

func cloneBucket(b models.AggregateBucket) models.AggregateBucket {
	if b.AvgValue != nil {
		v := *b.AvgValue
		b.AvgValue = &v
	}
	if b.SumValue != nil {
		v := *b.SumValue
		b.SumValue = &v
	}
	b.BucketStart = b.BucketStart.UTC()
	return b
}

func (s *Store) levelTable(level models.Level) (map[bucketKey]models.AggregateBucket, error) {
	table, ok := s.buckets[level]
	if !ok {
		return nil, errors.NewConfigurationError("no summary table for level "+string(level), nil)
	}
	return table, nil
}

// UpsertSample stores a sample, replacing any sample with the same key
func (s *Store) UpsertSample(ctx context.Context, sample *models.RawSample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sampleKey{
		series: models.SeriesKey{DeviceID: sample.DeviceID, DataType: sample.DataType},
		at:     sample.Time.UnixNano(),
	}
	stored := *sample
	stored.Time = sample.Time.UTC()
	if existing, ok := s.samples[key]; ok {
		stored.ID = existing.ID
	} else {
		s.nextID++
		stored.ID = s.nextID
	}
	s.samples[key] = stored
	sample.ID = stored.ID
	return nil
}

// SamplesInRange returns one series' samples in [from, to), oldest first
func (s *Store) SamplesInRange(ctx context.Context, deviceID int64, dataType models.DataType, from, to time.Time) ([]models.RawSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.RawSample
	for k, v := range s.samples {
		if k.series.DeviceID == deviceID && k.series.DataType == dataType && inRange(v.Time, from, to) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// LatestTime returns the maximum sample time of a series
func (s *Store) LatestTime(ctx context.Context, deviceID int64, dataType models.DataType) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	found := false
	for k, v := range s.samples {
		if k.series.DeviceID != deviceID || k.series.DataType != dataType {
			continue
		}
		if !found || v.Time.After(latest) {
			latest = v.Time
			found = true
		}
	}
	return latest, found, nil
}

// TimeBounds returns the min and max sample time, nil if there are no samples
func (s *Store) TimeBounds(ctx context.Context) (*models.TimeRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bounds *models.TimeRange
	for _, v := range s.samples {
		if bounds == nil {
			bounds = &models.TimeRange{Min: v.Time, Max: v.Time}
			continue
		}
		if v.Time.Before(bounds.Min) {
			bounds.Min = v.Time
		}
		if v.Time.After(bounds.Max) {
			bounds.Max = v.Time
		}
	}
	return bounds, nil
}

// HasSamples reports whether any sample falls in [from, to)
func (s *Store) HasSamples(ctx context.Context, from, to time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.samples {
		if inRange(v.Time, from, to) {
			return true, nil
		}
	}
	return false, nil
}

// ListSamples returns one device's samples of the given types in [start, end], newest first
func (s *Store) ListSamples(ctx context.Context, deviceID int64, dataTypes []models.DataType, start, end time.Time) ([]models.RawSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := typeSet(dataTypes)
	out := []models.RawSample{}
	for k, v := range s.samples {
		if k.series.DeviceID == deviceID && types[k.series.DataType] && inClosedRange(v.Time, start, end) {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Time.Equal(out[j].Time) {
			return out[i].Time.After(out[j].Time)
		}
		return out[i].DataType < out[j].DataType
	})
	return out, nil
}

// UpsertBucket stores a copy of bucket in the level's table
func (s *Store) UpsertBucket(ctx context.Context, level models.Level, bucket *models.AggregateBucket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upsertBucketLocked(level, *bucket)
}

func (s *Store) upsertBucketLocked(level models.Level, bucket models.AggregateBucket) error {
	table, err := s.levelTable(level)
	if err != nil {
		return err
	}
	table[bucketKey{series: bucket.Series(), start: bucket.BucketStart.Unix()}] = cloneBucket(bucket)
	return nil
}

// ListBuckets returns one series' buckets starting in [from, to), oldest first
func (s *Store) ListBuckets(ctx context.Context, level models.Level, deviceID int64, dataType models.DataType, from, to time.Time) ([]models.AggregateBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.levelTable(level)
	if err != nil {
		return nil, err
	}
	var out []models.AggregateBucket
	for k, b := range table {
		if k.series.DeviceID == deviceID && k.series.DataType == dataType && inRange(b.BucketStart, from, to) {
			out = append(out, cloneBucket(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BucketStart.Before(out[j].BucketStart) })
	return out, nil
}

// QueryBuckets returns one device's buckets of the given types starting in [start, end], newest first
func (s *Store) QueryBuckets(ctx context.Context, level models.Level, deviceID int64, dataTypes []models.DataType, start, end time.Time) ([]models.AggregateBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.levelTable(level)
	if err != nil {
		return nil, err
	}
	types := typeSet(dataTypes)
	out := []models.AggregateBucket{}
	for k, b := range table {
		if k.series.DeviceID == deviceID && types[k.series.DataType] && inClosedRange(b.BucketStart, start, end) {
			out = append(out, cloneBucket(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].BucketStart.Equal(out[j].BucketStart) {
			return out[i].BucketStart.After(out[j].BucketStart)
		}
		return out[i].DataType < out[j].DataType
	})
	return out, nil
}

// HasBuckets reports whether any bucket of level starts in [from, to)
func (s *Store) HasBuckets(ctx context.Context, level models.Level, from, to time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, err := s.levelTable(level)
	if err != nil {
		return false, err
	}
	for _, b := range table {
		if inRange(b.BucketStart, from, to) {
			return true, nil
		}
	}
	return false, nil
}

// BackfillLevel groups the level's source rows in [from, to) by bucket and
// upserts one aggregate per group.
func (s *Store) BackfillLevel(ctx context.Context, level models.Level, from, to time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.levelTable(level); err != nil {
		return 0, err
	}

	var written int64
	if level.Source() == models.LevelRaw {
		groups := make(map[bucketKey][]models.RawSample)
		for k, v := range s.samples {
			if !inRange(v.Time, from, to) {
				continue
			}
			bk := bucketKey{series: k.series, start: level.BucketStart(v.Time).Unix()}
			groups[bk] = append(groups[bk], v)
		}
		for bk, samples := range groups {
			sort.Slice(samples, func(i, j int) bool { return samples[i].Time.Before(samples[j].Time) })
			bucket, ok := aggregate.FoldSamples(bk.series, time.Unix(bk.start, 0).UTC(), samples)
			if !ok {
				continue
			}
			if err := s.upsertBucketLocked(level, bucket); err != nil {
				return written, err
			}
			written++
		}
		return written, nil
	}

	groups := make(map[bucketKey][]models.AggregateBucket)
	for k, b := range s.buckets[level.Source()] {
		if !inRange(b.BucketStart, from, to) {
			continue
		}
		bk := bucketKey{series: k.series, start: level.BucketStart(b.BucketStart).Unix()}
		groups[bk] = append(groups[bk], b)
	}
	for bk, children := range groups {
		sort.Slice(children, func(i, j int) bool { return children[i].BucketStart.Before(children[j].BucketStart) })
		bucket, ok := aggregate.FoldChildren(bk.series, time.Unix(bk.start, 0).UTC(), children)
		if !ok {
			continue
		}
		if err := s.upsertBucketLocked(level, bucket); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// MarkDirty inserts the 5m marker for t if it is not already present
func (s *Store) MarkDirty(ctx context.Context, deviceID int64, dataType models.DataType, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := models.Level5m.BucketStart(t)
	key := touchKey{
		level:  models.Level5m,
		series: models.SeriesKey{DeviceID: deviceID, DataType: dataType},
		start:  start.Unix(),
	}
	if _, ok := s.touches[key]; ok {
		return nil
	}
	s.touches[key] = models.TouchMarker{
		Level:       models.Level5m,
		DeviceID:    deviceID,
		DataType:    dataType,
		BucketStart: start,
		EnqueuedAt:  s.now().UTC(),
	}
	return nil
}

// ListPending returns up to limit 5m markers, oldest bucket first
func (s *Store) ListPending(ctx context.Context, limit int) ([]models.TouchMarker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.TouchMarker, 0, len(s.touches))
	for _, m := range s.touches {
		if m.Level == models.Level5m {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.BucketStart.Equal(b.BucketStart) {
			return a.BucketStart.Before(b.BucketStart)
		}
		if a.DeviceID != b.DeviceID {
			return a.DeviceID < b.DeviceID
		}
		return a.DataType < b.DataType
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Remove deletes one marker
func (s *Store) Remove(ctx context.Context, marker models.TouchMarker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.touches, touchKey{level: marker.Level, series: marker.Series(), start: marker.BucketStart.Unix()})
	return nil
}

// PendingCount returns the number of stored markers
func (s *Store) PendingCount(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.touches)), nil
}

// BucketCount returns the number of rows in a level's table
func (s *Store) BucketCount(level models.Level) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.buckets[level])
}
