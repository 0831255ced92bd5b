package service

import (
	"context"
	"testing"
	"time"

	"github.com/WCL-INU/beeweb/internal/config"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/hubservice"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/repository/memory"
	"github.com/WCL-INU/beeweb/internal/summary"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	cfg := config.SummaryConfig{
		DrainBatchLimit: 500,
		Backfill: config.BackfillConfig{
			StepDays: 7, AutoGrowStep: true, GrowFactor: 2, GrowThreshold: 3, MaxStepDays: 60,
		},
	}
	s := New(hubservice.New(store, store, store), cfg, nil)
	require.NoError(t, s.Validate())
	return s, store
}

func floatSample(device int64, dt models.DataType, v float64, at time.Time) *models.RawSample {
	return &models.RawSample{DeviceID: device, DataType: dt, FloatValue: &v, Time: at}
}

func intSample(device int64, dt models.DataType, v int64, at time.Time) *models.RawSample {
	return &models.RawSample{DeviceID: device, DataType: dt, IntValue: &v, Time: at}
}

func TestRecordSample_Validation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	v := 1.0
	n := int64(1)

	bad := []*models.RawSample{
		nil,
		{DeviceID: 0, DataType: models.Temperature, FloatValue: &v, Time: t0},
		{DeviceID: 1, DataType: 0, FloatValue: &v, Time: t0},
		{DeviceID: 1, DataType: models.Temperature, FloatValue: &v},
		{DeviceID: 1, DataType: models.Temperature, Time: t0},
		{DeviceID: 1, DataType: models.Temperature, FloatValue: &v, IntValue: &n, Time: t0},
	}
	for i, sample := range bad {
		err := s.RecordSample(ctx, sample)
		assert.True(t, errors.IsValidation(err), "case %d: %v", i, err)
	}
}

func TestRecordSample_MarksDirty(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()

	kst := time.FixedZone("KST", 9*3600)
	require.NoError(t, s.RecordSample(ctx, floatSample(1, models.Temperature, 20, t0.Add(time.Minute).In(kst))))
	require.NoError(t, s.RecordSample(ctx, floatSample(1, models.Temperature, 21, t0.Add(2*time.Minute))))

	pending, err := s.PendingMarkers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	markers, err := store.ListPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	assert.Equal(t, t0, markers[0].BucketStart)
}

func TestRecordSamples_StopsAtFirstFailure(t *testing.T) {
	s, _ := newTestService(t)
	v := 3.0
	samples := []models.RawSample{
		*floatSample(1, models.Humidity, 50, t0),
		{DeviceID: 1, DataType: models.Humidity, FloatValue: &v},
		*floatSample(1, models.Humidity, 52, t0.Add(time.Minute)),
	}
	n, err := s.RecordSamples(context.Background(), samples)
	assert.Equal(t, 1, n)
	assert.True(t, errors.IsValidation(err))
}

func TestDrainNow_BuildsSummaries(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.RecordSample(ctx, intSample(1, models.InCount, 3, t0.Add(time.Minute))))
	require.NoError(t, s.RecordSample(ctx, intSample(1, models.InCount, 4, t0.Add(3*time.Minute))))
	// advances the watermark far enough for every level to mature
	require.NoError(t, s.RecordSample(ctx, intSample(1, models.InCount, 1, t0.Add(5*time.Hour))))

	n, err := s.DrainNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	fine, err := store.ListBuckets(ctx, models.Level5m, 1, models.InCount, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, fine, 1)
	assert.Equal(t, 7.0, *fine[0].SumValue)

	coarse, err := store.ListBuckets(ctx, models.Level2h, 1, models.InCount, t0, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, coarse, 1)
	assert.Equal(t, 7.0, *coarse[0].SumValue)
}

func TestRequestDrain(t *testing.T) {
	s, store := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, s.RecordSample(ctx, floatSample(2, models.Temperature, 20, t0)))
	require.NoError(t, s.RecordSample(ctx, floatSample(2, models.Temperature, 22, t0.Add(6*time.Hour))))

	drained := make(chan int, 4)
	s.OnEvent(EventDrainCompleted, func(args ...interface{}) {
		if n, ok := args[0].(int); ok {
			drained <- n
		}
	})

	assert.True(t, s.RequestDrain(ctx))
	// the drain outlives the request that triggered it
	cancel()
	require.NoError(t, s.Wait(context.Background()))

	select {
	case got := <-drained:
		assert.Equal(t, 1, got)
	case <-time.After(time.Second):
		t.Fatal("drain event not emitted")
	}

	assert.Equal(t, 1, store.BucketCount(models.Level5m))
}

func TestGetSensorData(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.RecordSample(ctx, floatSample(1, models.Temperature, 20, now.Add(-time.Hour))))
	require.NoError(t, s.RecordSample(ctx, floatSample(1, models.Temperature, 21, now.Add(-48*time.Hour))))

	// defaults to the last day at raw resolution
	rows, err := s.GetSensorData(ctx, 1, models.SensorDataFilters{Types: []int{int(models.Temperature)}})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 20.0, rows[0].Value)
	assert.Equal(t, models.LevelRaw, rows[0].Level)

	avg := 19.5
	require.NoError(t, store.UpsertBucket(ctx, models.Level30m, &models.AggregateBucket{
		DeviceID: 1, DataType: models.Temperature, BucketStart: t0, AvgValue: &avg, SampleCount: 3,
	}))
	rows, err = s.GetSensorData(ctx, 1, models.SensorDataFilters{
		Types: []int{int(models.Temperature)},
		Start: t0,
		End:   t0.Add(10 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.Level30m, rows[0].Level)

	_, err = s.GetSensorData(ctx, 1, models.SensorDataFilters{Level: "1d"})
	assert.True(t, errors.IsConfiguration(err))
}

func TestBackfillOptionsFor(t *testing.T) {
	s, _ := newTestService(t)

	opts := s.BackfillOptionsFor(models.BackfillRequest{})
	assert.Equal(t, summary.DefaultBackfillOptions(), opts)

	off := false
	opts = s.BackfillOptionsFor(models.BackfillRequest{StepDays: 90, AutoGrowStep: &off})
	assert.Equal(t, 90, opts.StepDays)
	assert.False(t, opts.AutoGrowStep)
	assert.Equal(t, 90, opts.MaxStepDays)
	require.NoError(t, opts.Validate())
}

func TestRunBackfill(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()

	_, err := s.RunBackfill(ctx, models.BackfillRequest{From: t0})
	assert.True(t, errors.IsConfiguration(err))
	_, err = s.RunBackfill(ctx, models.BackfillRequest{From: t0, To: t0})
	assert.True(t, errors.IsConfiguration(err))

	require.NoError(t, store.UpsertSample(ctx, floatSample(1, models.Humidity, 60, t0.Add(time.Minute))))
	report, err := s.RunBackfill(ctx, models.BackfillRequest{From: t0, To: t0.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.False(t, report.Skipped)
	assert.Equal(t, 1, store.BucketCount(models.Level5m))
	assert.Equal(t, 1, store.BucketCount(models.Level2h))
}

func TestStartBackfill_Events(t *testing.T) {
	s, store := newTestService(t)
	ctx := context.Background()
	require.NoError(t, store.UpsertSample(ctx, floatSample(1, models.Humidity, 60, t0)))

	started := make(chan string, 1)
	done := make(chan *summary.BackfillReport, 1)
	s.OnEvent(EventBackfillStarted, func(args ...interface{}) {
		started <- args[0].(string)
	})
	s.OnEvent(EventBackfillCompleted, func(args ...interface{}) {
		done <- args[1].(*summary.BackfillReport)
	})

	_, err := s.StartBackfill(ctx, models.BackfillRequest{From: t0.Add(time.Hour), To: t0})
	assert.True(t, errors.IsConfiguration(err))

	jobID, err := s.StartBackfill(ctx, models.BackfillRequest{From: t0, To: t0.Add(time.Hour)})
	require.NoError(t, err)
	assert.NotEmpty(t, jobID)

	select {
	case id := <-started:
		assert.Equal(t, jobID, id)
	case <-time.After(time.Second):
		t.Fatal("started event not emitted")
	}
	select {
	case report := <-done:
		require.NotNil(t, report)
		assert.False(t, report.Skipped)
	case <-time.After(time.Second):
		t.Fatal("completed event not emitted")
	}

	require.NoError(t, s.Wait(ctx))
	assert.Equal(t, 1, store.BucketCount(models.Level30m))
}
