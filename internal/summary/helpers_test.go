package summary

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/repository"
	"github.com/WCL-INU/beeweb/internal/repository/memory"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestEngine(store *memory.Store) *Engine {
	return NewEngine(store, store, store, EngineConfig{BatchLimit: 500})
}

// ingest writes a raw sample and marks its bucket dirty, the way the
// ingestion path does
func ingest(t *testing.T, store *memory.Store, device int64, dt models.DataType, v float64, at time.Time) {
	t.Helper()
	ctx := context.Background()
	sample := &models.RawSample{DeviceID: device, DataType: dt, Time: at}
	if dt.IsAdditive() {
		iv := int64(v)
		sample.IntValue = &iv
	} else {
		sample.FloatValue = &v
	}
	require.NoError(t, store.UpsertSample(ctx, sample))
	require.NoError(t, store.MarkDirty(ctx, device, dt, at))
}

func bucketsOf(t *testing.T, store *memory.Store, level models.Level, device int64, dt models.DataType) []models.AggregateBucket {
	t.Helper()
	got, err := store.ListBuckets(context.Background(), level, device, dt, t0.Add(-365*day), t0.Add(365*day))
	require.NoError(t, err)
	return got
}

func pendingCount(t *testing.T, store *memory.Store) int64 {
	t.Helper()
	n, err := store.PendingCount(context.Background())
	require.NoError(t, err)
	return n
}

// failingSummaries injects errors into the summary repository
type failingSummaries struct {
	*memory.Store
	upsertErr   error
	backfillErr error
	backfillAt  models.Level
	// noopAt makes BackfillLevel write nothing for that level
	noopAt models.Level
}

func (f *failingSummaries) UpsertBucket(ctx context.Context, level models.Level, bucket *models.AggregateBucket) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	return f.Store.UpsertBucket(ctx, level, bucket)
}

func (f *failingSummaries) BackfillLevel(ctx context.Context, level models.Level, from, to time.Time) (int64, error) {
	if f.backfillErr != nil && level == f.backfillAt {
		return 0, f.backfillErr
	}
	if level == f.noopAt {
		return 0, nil
	}
	return f.Store.BackfillLevel(ctx, level, from, to)
}

// failingLedger fails ListPending
type failingLedger struct {
	repository.TouchLedger
	err error
}

func (f *failingLedger) ListPending(ctx context.Context, limit int) ([]models.TouchMarker, error) {
	return nil, f.err
}

// blockingLedger holds the first ListPending call until release is closed
type blockingLedger struct {
	repository.TouchLedger
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func newBlockingLedger(inner repository.TouchLedger) *blockingLedger {
	return &blockingLedger{TouchLedger: inner, started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingLedger) ListPending(ctx context.Context, limit int) ([]models.TouchMarker, error) {
	if b.calls.Add(1) == 1 {
		close(b.started)
		<-b.release
	}
	return b.TouchLedger.ListPending(ctx, limit)
}

// countingRaw counts existence probes
type countingRaw struct {
	*memory.Store
	probes atomic.Int32
}

func (c *countingRaw) HasSamples(ctx context.Context, from, to time.Time) (bool, error) {
	c.probes.Add(1)
	return c.Store.HasSamples(ctx, from, to)
}

// recordingObserver keeps what the engine reported
type recordingObserver struct {
	NopObserver
	mu      sync.Mutex
	drains  []int
	written map[models.Level]int
	failed  int
	pending int64
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{written: make(map[models.Level]int)}
}

func (r *recordingObserver) DrainCompleted(processed int, _ time.Duration, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.drains = append(r.drains, processed)
}

func (r *recordingObserver) BucketWritten(level models.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.written[level]++
}

func (r *recordingObserver) MarkerFailed(error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *recordingObserver) PendingMarkers(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = n
}
