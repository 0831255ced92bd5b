package models

import (
	"testing"
	"time"

	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_BucketStart(t *testing.T) {
	ts := time.Date(2025, 1, 1, 1, 47, 13, 500, time.UTC)

	assert.Equal(t, time.Date(2025, 1, 1, 1, 45, 0, 0, time.UTC), Level5m.BucketStart(ts))
	assert.Equal(t, time.Date(2025, 1, 1, 1, 30, 0, 0, time.UTC), Level30m.BucketStart(ts))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Level2h.BucketStart(ts))

	// exact boundaries stay put
	b := time.Date(2025, 1, 1, 2, 0, 0, 0, time.UTC)
	assert.Equal(t, b, Level2h.BucketStart(b))
	assert.Equal(t, b.Add(2*time.Hour), Level2h.BucketEnd(b))
}

func TestLevel_BucketStartBeforeEpoch(t *testing.T) {
	ts := time.Date(1969, 12, 31, 23, 58, 30, 0, time.UTC)
	assert.Equal(t, time.Date(1969, 12, 31, 23, 55, 0, 0, time.UTC), Level5m.BucketStart(ts))
}

func TestLevel_BucketStartNonUTC(t *testing.T) {
	kst := time.FixedZone("KST", 9*3600)
	ts := time.Date(2025, 1, 1, 9, 4, 0, 0, kst) // 00:04 UTC
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Level5m.BucketStart(ts))
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{"": LevelAuto, "RAW": LevelRaw, " 5m ": Level5m, "30m": Level30m, "2h": Level2h} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}

	_, err := ParseLevel("1h")
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestLevel_Buffers(t *testing.T) {
	assert.Equal(t, 120*time.Second, Level5m.Buffer())
	assert.Equal(t, 600*time.Second, Level30m.Buffer())
	assert.Equal(t, 2400*time.Second, Level2h.Buffer())
	assert.Equal(t, LevelRaw, Level5m.Source())
	assert.Equal(t, Level5m, Level2h.Source())
	assert.False(t, LevelAuto.IsSummary())
}

func TestDataType_Category(t *testing.T) {
	assert.Equal(t, Additive, InCount.Category())
	assert.Equal(t, Additive, OutCount.Category())
	for _, dt := range []DataType{Temperature, Humidity, CO2, Weight, DataType(99)} {
		assert.Equal(t, Intensive, dt.Category(), dt.String())
	}
}

func TestValueProjection(t *testing.T) {
	i := int64(7)
	f := 21.5
	assert.Equal(t, 7.0, must(RawSample{IntValue: &i}.Value()))
	assert.Equal(t, 21.5, must(RawSample{IntValue: &i, FloatValue: &f}.Value()))
	_, ok := RawSample{}.Value()
	assert.False(t, ok)

	sum := 12.0
	avg := 3.0
	assert.Equal(t, 12.0, must(AggregateBucket{DataType: InCount, SumValue: &sum, AvgValue: &avg}.Value()))
	assert.Equal(t, 3.0, must(AggregateBucket{DataType: Temperature, SumValue: &sum, AvgValue: &avg}.Value()))
	_, ok = AggregateBucket{DataType: Temperature, SumValue: &sum}.Value()
	assert.False(t, ok)
}

func must(v float64, ok bool) float64 {
	if !ok {
		panic("no value")
	}
	return v
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 5, 11, 13, 30, 0, 0, time.UTC)

	got, err := ParseTimestamp("2025-05-11 13:30:00")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	got, err = ParseTimestamp("2025-05-11T22:30:00+09:00")
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, time.UTC, got.Location())

	_, err = ParseTimestamp("11/05/2025")
	assert.Error(t, err)
}
