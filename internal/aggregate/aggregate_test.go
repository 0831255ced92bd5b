package aggregate

import (
	"testing"
	"time"

	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func intSample(v int64, at time.Time) models.RawSample {
	return models.RawSample{IntValue: &v, Time: at}
}

func floatSample(v float64, at time.Time) models.RawSample {
	return models.RawSample{FloatValue: &v, Time: at}
}

func ptr(v float64) *float64 { return &v }

func TestFoldSamples_Additive(t *testing.T) {
	key := models.SeriesKey{DeviceID: 1, DataType: models.InCount}
	got, ok := FoldSamples(key, baseTime, []models.RawSample{
		intSample(5, baseTime.Add(1*time.Minute)),
		intSample(7, baseTime.Add(3*time.Minute)),
	})

	require.True(t, ok)
	require.NotNil(t, got.SumValue)
	assert.Nil(t, got.AvgValue)
	assert.Equal(t, 12.0, *got.SumValue)
	assert.Equal(t, int64(2), got.SampleCount)
	assert.Equal(t, baseTime, got.BucketStart)
}

func TestFoldSamples_Intensive(t *testing.T) {
	key := models.SeriesKey{DeviceID: 1, DataType: models.Temperature}
	got, ok := FoldSamples(key, baseTime, []models.RawSample{
		floatSample(20.0, baseTime.Add(1*time.Minute)),
		floatSample(22.0, baseTime.Add(2*time.Minute)),
	})

	require.True(t, ok)
	require.NotNil(t, got.AvgValue)
	assert.Nil(t, got.SumValue)
	assert.InDelta(t, 21.0, *got.AvgValue, 1e-9)
	assert.Equal(t, int64(2), got.SampleCount)
}

func TestFoldSamples_Empty(t *testing.T) {
	key := models.SeriesKey{DeviceID: 1, DataType: models.Temperature}
	_, ok := FoldSamples(key, baseTime, nil)
	assert.False(t, ok)

	// rows with no populated value do not count
	_, ok = FoldSamples(key, baseTime, []models.RawSample{{Time: baseTime}})
	assert.False(t, ok)
}

func TestFoldChildren_WeightedMean(t *testing.T) {
	key := models.SeriesKey{DeviceID: 1, DataType: models.Temperature}
	got, ok := FoldChildren(key, baseTime, []models.AggregateBucket{
		{AvgValue: ptr(21.0), SampleCount: 2},
		{AvgValue: ptr(25.0), SampleCount: 1},
	})

	require.True(t, ok)
	require.NotNil(t, got.AvgValue)
	assert.InDelta(t, (21.0*2+25.0)/3, *got.AvgValue, 1e-9)
	assert.Equal(t, int64(3), got.SampleCount)
	assert.Nil(t, got.SumValue)
}

func TestFoldChildren_Sum(t *testing.T) {
	key := models.SeriesKey{DeviceID: 3, DataType: models.OutCount}
	got, ok := FoldChildren(key, baseTime, []models.AggregateBucket{
		{SumValue: ptr(12), SampleCount: 2},
		{SumValue: ptr(30), SampleCount: 4},
		{SumValue: ptr(1), SampleCount: 1},
	})

	require.True(t, ok)
	assert.Equal(t, 43.0, *got.SumValue)
	assert.Equal(t, int64(7), got.SampleCount)
	assert.Equal(t, int64(3), got.DeviceID)
}

func TestFoldChildren_NoCount(t *testing.T) {
	key := models.SeriesKey{DeviceID: 1, DataType: models.Temperature}
	_, ok := FoldChildren(key, baseTime, []models.AggregateBucket{{AvgValue: ptr(1), SampleCount: 0}})
	assert.False(t, ok)
}

func TestIsMature(t *testing.T) {
	start := baseTime
	end := models.Level5m.BucketEnd(start) // 00:05

	tests := []struct {
		name      string
		watermark Watermark
		want      bool
	}{
		{"unknown", Watermark{}, false},
		{"inside buffer", Watermark{Time: end.Add(119 * time.Second), Known: true}, false},
		{"exactly at buffer", Watermark{Time: end.Add(120 * time.Second), Known: true}, true},
		{"past buffer", Watermark{Time: end.Add(time.Hour), Known: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsMature(tt.watermark, end, models.Level5m))
			assert.Equal(t, tt.want, BucketMature(tt.watermark, start, models.Level5m))
		})
	}
}

func TestIsMature_CoarseLevels(t *testing.T) {
	w := Watermark{Time: baseTime.Add(40 * time.Minute), Known: true}
	assert.True(t, BucketMature(w, baseTime, models.Level30m))
	assert.False(t, BucketMature(w, baseTime, models.Level2h))

	w.Time = baseTime.Add(2*time.Hour + 40*time.Minute)
	assert.True(t, BucketMature(w, baseTime, models.Level2h))
}
