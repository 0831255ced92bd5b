// Package summary maintains the 5m, 30m and 2h aggregate tables: the drain
// worker consumes the touch ledger incrementally, the backfill engine
// recomputes historical ranges in bulk, and the reader serves either tier.
package summary

import (
	"context"
	"sync"
	"time"

	"github.com/WCL-INU/beeweb/internal/aggregate"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/repository"
	nuts "github.com/vaudience/go-nuts"
)

const DefaultBatchLimit = 500

// cascadeLevels are refreshed from 5m after a 5m bucket is finalized
var cascadeLevels = []models.Level{models.Level30m, models.Level2h}

type EngineConfig struct {
	BatchLimit int
	Observer   Observer
}

// Engine runs drains and backfills against one set of stores. At most one
// drain is active at a time; backfills are not gated.
type Engine struct {
	raw       repository.RawSampleRepository
	summaries repository.SummaryRepository
	ledger    repository.TouchLedger
	agg       *Aggregator
	observer  Observer
	limit     int

	mu      sync.Mutex
	busy    bool
	pending bool
	wg      sync.WaitGroup
}

func NewEngine(raw repository.RawSampleRepository, summaries repository.SummaryRepository, ledger repository.TouchLedger, cfg EngineConfig) *Engine {
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.BatchLimit < 1 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	return &Engine{
		raw:       raw,
		summaries: summaries,
		ledger:    ledger,
		agg:       NewAggregator(raw, summaries, cfg.Observer),
		observer:  cfg.Observer,
		limit:     cfg.BatchLimit,
	}
}

// Aggregator exposes the single-bucket operations
func (e *Engine) Aggregator() *Aggregator {
	return e.agg
}

// watermarks memoizes the per-series high-water mark for one batch
type watermarks struct {
	raw  repository.RawSampleRepository
	memo map[models.SeriesKey]aggregate.Watermark
}

func (w *watermarks) get(ctx context.Context, key models.SeriesKey) (aggregate.Watermark, error) {
	if wm, ok := w.memo[key]; ok {
		return wm, nil
	}
	latest, ok, err := w.raw.LatestTime(ctx, key.DeviceID, key.DataType)
	if err != nil {
		return aggregate.Watermark{}, err
	}
	wm := aggregate.Watermark{Time: latest, Known: ok}
	w.memo[key] = wm
	return wm, nil
}

// DrainBatch processes up to limit pending markers and returns how many were
// finalized and removed. Immature markers stay in the ledger. A failure on one
// marker is logged and leaves that marker in place; only a failure to list
// markers is returned.
func (e *Engine) DrainBatch(ctx context.Context, limit int) (int, error) {
	markers, err := e.ledger.ListPending(ctx, limit)
	if err != nil {
		nuts.L.Errorf("[Drain] Failed to list pending markers: %v", err)
		return 0, err
	}

	wms := &watermarks{raw: e.raw, memo: make(map[models.SeriesKey]aggregate.Watermark)}
	processed := 0
	for _, m := range markers {
		wm, err := wms.get(ctx, m.Series())
		if err != nil {
			nuts.L.Errorf("[Drain] Watermark lookup failed for device %d type %s: %v", m.DeviceID, m.DataType, err)
			e.observer.MarkerFailed(err)
			continue
		}
		if !aggregate.BucketMature(wm, m.BucketStart, models.Level5m) {
			e.observer.MarkerSkipped()
			continue
		}

		if err := e.finalize(ctx, m, wm); err != nil {
			nuts.L.Errorf("[Drain] Failed to finalize bucket %s device %d type %s: %v",
				m.BucketStart.Format(time.RFC3339), m.DeviceID, m.DataType, err)
			e.observer.MarkerFailed(err)
			continue
		}
		if err := e.ledger.Remove(ctx, m); err != nil {
			nuts.L.Errorf("[Drain] Failed to remove marker %s device %d type %s: %v",
				m.BucketStart.Format(time.RFC3339), m.DeviceID, m.DataType, err)
			e.observer.MarkerFailed(err)
			continue
		}
		processed++
	}
	return processed, nil
}

// finalize rewrites the 5m bucket and every mature enclosing coarser bucket
func (e *Engine) finalize(ctx context.Context, m models.TouchMarker, wm aggregate.Watermark) error {
	if _, _, err := e.agg.Aggregate5m(ctx, m.DeviceID, m.DataType, m.BucketStart); err != nil {
		return err
	}
	for _, level := range cascadeLevels {
		parent := level.BucketStart(m.BucketStart)
		if !aggregate.BucketMature(wm, parent, level) {
			continue
		}
		if _, _, err := e.agg.AggregateFromChildren(ctx, level, m.DeviceID, m.DataType, parent); err != nil {
			return err
		}
	}
	return nil
}

// DrainToExhaustion repeats DrainBatch until a batch finalizes nothing
func (e *Engine) DrainToExhaustion(ctx context.Context) (int, error) {
	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := e.DrainBatch(ctx, e.limit)
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, nil
		}
	}
}

// RequestDrain starts a drain on its own goroutine unless one is running, in
// which case it records a rerun request and returns false. A run that ends
// with a rerun request pending drains once more, so no request is lost.
func (e *Engine) RequestDrain(ctx context.Context) bool {
	e.mu.Lock()
	if e.busy {
		e.pending = true
		e.mu.Unlock()
		return false
	}
	e.busy = true
	e.wg.Add(1)
	e.mu.Unlock()

	go e.runGated(ctx)
	return true
}

func (e *Engine) runGated(ctx context.Context) {
	defer e.wg.Done()
	for {
		e.drainOnce(ctx)

		e.mu.Lock()
		if !e.pending {
			e.busy = false
			e.mu.Unlock()
			return
		}
		e.pending = false
		e.mu.Unlock()
	}
}

func (e *Engine) drainOnce(ctx context.Context) {
	start := time.Now()
	processed, err := e.DrainToExhaustion(ctx)
	took := time.Since(start)
	if err != nil {
		nuts.L.Errorf("[Drain] Stopped after %d markers: %v", processed, err)
	} else if processed > 0 {
		nuts.L.Infof("[Drain] Finalized %d buckets in %v", processed, took)
	} else {
		nuts.L.Debugf("[Drain] Nothing to finalize")
	}
	e.observer.DrainCompleted(processed, took, err)

	if n, err := e.ledger.PendingCount(ctx); err == nil {
		e.observer.PendingMarkers(n)
	}
}

// Busy reports whether a gated drain is running
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Wait blocks until every drain started by RequestDrain has returned
func (e *Engine) Wait() {
	e.wg.Wait()
}
