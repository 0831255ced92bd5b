package summary

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/repository/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackfill_InvalidArguments(t *testing.T) {
	e := newTestEngine(memory.New())
	ctx := context.Background()

	_, err := e.BackfillRange(ctx, t0, t0, DefaultBackfillOptions())
	assert.True(t, errors.IsConfiguration(err))

	_, err = e.BackfillRange(ctx, t0.Add(time.Hour), t0, DefaultBackfillOptions())
	assert.True(t, errors.IsConfiguration(err))

	opts := DefaultBackfillOptions()
	opts.StepDays = 0
	_, err = e.BackfillRange(ctx, t0, t0.Add(day), opts)
	assert.True(t, errors.IsConfiguration(err))

	opts = DefaultBackfillOptions()
	opts.GrowFactor = 0.5
	_, err = e.BackfillRange(ctx, t0, t0.Add(day), opts)
	assert.True(t, errors.IsConfiguration(err))

	// grow options are ignored when growing is off
	opts.AutoGrowStep = false
	_, err = e.BackfillRange(ctx, t0, t0.Add(day), opts)
	assert.NoError(t, err)
}

func TestBackfill_Clipping(t *testing.T) {
	store := memory.New()
	e := newTestEngine(store)
	ctx := context.Background()

	report, err := e.BackfillRange(ctx, t0, t0.Add(day), DefaultBackfillOptions())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Equal(t, "no raw data", report.Reason)

	ingest(t, store, 1, models.Temperature, 20, t0.Add(10*day))

	report, err = e.BackfillRange(ctx, t0, t0.Add(day), DefaultBackfillOptions())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
	assert.Empty(t, report.Levels)
	assert.Equal(t, 0, store.BucketCount(models.Level5m))

	// a single sample is a valid range: its own timestamp is included
	report, err = e.BackfillRange(ctx, t0, t0.Add(30*day), DefaultBackfillOptions())
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, t0.Add(10*day), report.From)
	assert.Equal(t, t0.Add(10*day+time.Nanosecond), report.To)
	require.Len(t, report.Levels, 3)
	assert.Equal(t, 1, store.BucketCount(models.Level5m))
	assert.Equal(t, 1, store.BucketCount(models.Level30m))
	assert.Equal(t, 1, store.BucketCount(models.Level2h))
}

func TestBackfill_AlignsPartialBuckets(t *testing.T) {
	store := memory.New()
	ingest(t, store, 1, models.Temperature, 20, t0.Add(1*time.Minute))
	ingest(t, store, 1, models.Temperature, 22, t0.Add(4*time.Minute))

	e := newTestEngine(store)
	_, err := e.BackfillRange(context.Background(), t0.Add(3*time.Minute), t0.Add(time.Hour), DefaultBackfillOptions())
	require.NoError(t, err)

	fine := bucketsOf(t, store, models.Level5m, 1, models.Temperature)
	require.Len(t, fine, 1)
	assert.Equal(t, int64(2), fine[0].SampleCount)
	assert.InDelta(t, 21.0, *fine[0].AvgValue, 1e-9)
}

func TestBackfill_MatchesDrain(t *testing.T) {
	drained := memory.New()
	filled := memory.New()
	for _, s := range []*memory.Store{drained, filled} {
		for i := 0; i < 200; i++ {
			at := t0.Add(time.Duration(i) * 7 * time.Minute)
			ingest(t, s, 1, models.Temperature, 18+float64(i%11)/2, at)
			ingest(t, s, 2, models.OutCount, float64(i%5), at)
		}
		// final samples far enough ahead that every earlier bucket is mature
		ingest(t, s, 1, models.Temperature, 20, t0.Add(3*day))
		ingest(t, s, 2, models.OutCount, 1, t0.Add(3*day))
	}

	ctx := context.Background()
	_, err := newTestEngine(drained).DrainToExhaustion(ctx)
	require.NoError(t, err)
	report, err := newTestEngine(filled).BackfillRange(ctx, t0, t0.Add(2*day), DefaultBackfillOptions())
	require.NoError(t, err)
	assert.False(t, report.Skipped)

	for _, level := range models.SummaryLevels {
		for _, key := range []models.SeriesKey{{DeviceID: 1, DataType: models.Temperature}, {DeviceID: 2, DataType: models.OutCount}} {
			want := bucketsOf(t, drained, level, key.DeviceID, key.DataType)
			got := bucketsOf(t, filled, level, key.DeviceID, key.DataType)
			require.Equal(t, len(want), len(got), "%s %v", level, key)
			for i := range want {
				assert.Equal(t, want[i].BucketStart, got[i].BucketStart)
				assert.Equal(t, want[i].SampleCount, got[i].SampleCount)
				w, _ := want[i].Value()
				g, _ := got[i].Value()
				assert.InDelta(t, w, g, 1e-9)
			}
		}
	}

	// repeating the run leaves everything as it was
	before := bucketsOf(t, filled, models.Level2h, 1, models.Temperature)
	_, err = newTestEngine(filled).BackfillRange(ctx, t0, t0.Add(2*day), DefaultBackfillOptions())
	require.NoError(t, err)
	assert.Equal(t, before, bucketsOf(t, filled, models.Level2h, 1, models.Temperature))
}

func TestBackfill_AutoGrowStep(t *testing.T) {
	store := memory.New()
	ingest(t, store, 1, models.Humidity, 60, t0)
	ingest(t, store, 1, models.Humidity, 61, t0.Add(100*day))

	raw := &countingRaw{Store: store}
	e := NewEngine(raw, store, store, EngineConfig{})
	opts := BackfillOptions{StepDays: 1, AutoGrowStep: true, GrowFactor: 2, GrowThreshold: 3, MaxStepDays: 60}

	report, err := e.BackfillRange(context.Background(), t0, t0.Add(200*day), opts)
	require.NoError(t, err)
	require.Len(t, report.Levels, 3)

	// 1 hit, then three empties at each width 1, 2, 4, 8, 16, then the tail
	fine := report.Levels[0]
	assert.Equal(t, models.Level5m, fine.Level)
	assert.Equal(t, 17, fine.WindowsProbed)
	assert.Equal(t, 2, fine.WindowsProcessed)
	assert.Equal(t, 15, fine.WindowsEmpty)
	assert.Equal(t, 32, fine.FinalStepDays)
	assert.Equal(t, int32(17), raw.probes.Load())

	// each level starts again from the base width
	assert.Equal(t, 17, report.Levels[1].WindowsProbed)
	assert.Equal(t, 17, report.Levels[2].WindowsProbed)
}

func TestBackfill_FixedStep(t *testing.T) {
	store := memory.New()
	ingest(t, store, 1, models.Humidity, 60, t0)
	ingest(t, store, 1, models.Humidity, 61, t0.Add(100*day))

	raw := &countingRaw{Store: store}
	e := NewEngine(raw, store, store, EngineConfig{})
	opts := DefaultBackfillOptions()
	opts.StepDays = 1
	opts.AutoGrowStep = false

	report, err := e.BackfillRange(context.Background(), t0, t0.Add(200*day), opts)
	require.NoError(t, err)
	assert.Equal(t, 101, report.Levels[0].WindowsProbed)
	assert.Equal(t, 1, report.Levels[0].FinalStepDays)
	assert.Equal(t, int32(101), raw.probes.Load())
}

func TestBackfill_MaxStepBound(t *testing.T) {
	opts := BackfillOptions{StepDays: 7, AutoGrowStep: true, GrowFactor: 3, GrowThreshold: 1, MaxStepDays: 30}
	assert.Equal(t, 21, opts.grow(7))
	assert.Equal(t, 30, opts.grow(21))
	assert.Equal(t, 30, opts.grow(30))
}

func TestBackfill_WindowErrorAborts(t *testing.T) {
	store := memory.New()
	ingest(t, store, 1, models.Temperature, 20, t0)
	ingest(t, store, 1, models.Temperature, 21, t0.Add(20*day))

	summaries := &failingSummaries{
		Store:       store,
		backfillErr: errors.NewDatabaseError("window failed", stderrors.New("boom")),
		backfillAt:  models.Level30m,
	}
	e := NewEngine(store, summaries, store, EngineConfig{})

	report, err := e.BackfillRange(context.Background(), t0, t0.Add(30*day), DefaultBackfillOptions())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	require.Len(t, report.Levels, 2)
	assert.Equal(t, 0, report.Levels[1].WindowsProcessed)
	assert.Equal(t, 2, store.BucketCount(models.Level5m))
	assert.Equal(t, 0, store.BucketCount(models.Level2h))
}

func TestBackfill_ProbeUsesFineTable(t *testing.T) {
	store := memory.New()
	ingest(t, store, 1, models.Temperature, 20, t0)

	// raw data exists but the 5m pass writes nothing, so the coarser
	// passes must find their windows empty
	summaries := &failingSummaries{Store: store, noopAt: models.Level5m}
	e := NewEngine(store, summaries, store, EngineConfig{})
	report, err := e.BackfillRange(context.Background(), t0, t0.Add(day), DefaultBackfillOptions())
	require.NoError(t, err)
	require.Len(t, report.Levels, 3)
	assert.Equal(t, 1, report.Levels[0].WindowsProcessed)
	assert.Equal(t, 0, report.Levels[1].WindowsProcessed)
	assert.Equal(t, 1, report.Levels[1].WindowsEmpty)
	assert.Equal(t, 0, store.BucketCount(models.Level30m))
}
