// FilePath: internal/models/models.summary.go
package models

import (
	"strings"
	"time"

	"github.com/WCL-INU/beeweb/internal/errors"
)

// Level is a read resolution. The three summary levels each own an aggregate table.
type Level string

const (
	LevelRaw  Level = "raw"
	Level5m   Level = "5m"
	Level30m  Level = "30m"
	Level2h   Level = "2h"
	LevelAuto Level = "auto"
)

// SummaryLevels lists the aggregate levels from finest to coarsest
var SummaryLevels = []Level{Level5m, Level30m, Level2h}

var levelDurations = map[Level]time.Duration{
	Level5m:  5 * time.Minute,
	Level30m: 30 * time.Minute,
	Level2h:  2 * time.Hour,
}

// Grace buffers are about a third of the bucket width.
var levelBuffers = map[Level]time.Duration{
	Level5m:  120 * time.Second,
	Level30m: 600 * time.Second,
	Level2h:  2400 * time.Second,
}

// ParseLevel accepts raw, 5m, 30m, 2h and auto. An empty string means auto.
func ParseLevel(s string) (Level, error) {
	switch l := Level(strings.ToLower(strings.TrimSpace(s))); l {
	case "":
		return LevelAuto, nil
	case LevelRaw, Level5m, Level30m, Level2h, LevelAuto:
		return l, nil
	default:
		return "", errors.NewConfigurationError("invalid level", nil).WithDetails(map[string]string{
			"level":   s,
			"allowed": "raw, 5m, 30m, 2h, auto",
		})
	}
}

// IsSummary reports whether the level is backed by an aggregate table
func (l Level) IsSummary() bool {
	_, ok := levelDurations[l]
	return ok
}

// Duration is the bucket width; zero for raw and auto
func (l Level) Duration() time.Duration {
	return levelDurations[l]
}

// Buffer is the grace period past the bucket end before the bucket is final
func (l Level) Buffer() time.Duration {
	return levelBuffers[l]
}

// BucketStart floors t to the level's bucket boundary (Unix epoch aligned, UTC)
func (l Level) BucketStart(t time.Time) time.Time {
	secs := int64(l.Duration() / time.Second)
	if secs == 0 {
		return t
	}
	u := t.Unix()
	q := u / secs
	if u%secs < 0 {
		q--
	}
	return time.Unix(q*secs, 0).UTC()
}

// BucketEnd is the exclusive end of the bucket starting at start
func (l Level) BucketEnd(start time.Time) time.Time {
	return start.Add(l.Duration())
}

// Source is the level a summary level is computed from: raw for 5m, 5m otherwise
func (l Level) Source() Level {
	if l == Level5m {
		return LevelRaw
	}
	return Level5m
}

// AggregateBucket is one row of a summary table. AvgValue is set for
// intensive types only, SumValue for additive types only.
type AggregateBucket struct {
	DeviceID    int64     `json:"device_id" db:"device_id"`
	DataType    DataType  `json:"data_type" db:"data_type"`
	BucketStart time.Time `json:"bucket_start" db:"bucket_start"`
	AvgValue    *float64  `json:"avg_value,omitempty" db:"avg_value"`
	SumValue    *float64  `json:"sum_value,omitempty" db:"sum_value"`
	SampleCount int64     `json:"sample_count" db:"sample_count"`
}

// Value projects the category-appropriate field
func (b AggregateBucket) Value() (float64, bool) {
	v := b.AvgValue
	if b.DataType.IsAdditive() {
		v = b.SumValue
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}

// Series returns the bucket's (device, type) key
func (b AggregateBucket) Series() SeriesKey {
	return SeriesKey{DeviceID: b.DeviceID, DataType: b.DataType}
}

// TouchMarker records that a 5m bucket received new raw data
type TouchMarker struct {
	Level       Level     `json:"level" db:"level"`
	DeviceID    int64     `json:"device_id" db:"device_id"`
	DataType    DataType  `json:"data_type" db:"data_type"`
	BucketStart time.Time `json:"bucket_start" db:"bucket_start"`
	EnqueuedAt  time.Time `json:"enqueued_at" db:"enqueued_at"`
}

// Series returns the marker's (device, type) key
func (m TouchMarker) Series() SeriesKey {
	return SeriesKey{DeviceID: m.DeviceID, DataType: m.DataType}
}
