package summary

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

const day = 24 * time.Hour

// BackfillOptions control the window width of a backfill run
type BackfillOptions struct {
	StepDays int `json:"step_days"`
	// AutoGrowStep widens the window after GrowThreshold consecutive empty
	// windows, by GrowFactor, up to MaxStepDays.
	AutoGrowStep  bool    `json:"auto_grow_step"`
	GrowFactor    float64 `json:"grow_factor"`
	GrowThreshold int     `json:"grow_threshold"`
	MaxStepDays   int     `json:"max_step_days"`
}

func DefaultBackfillOptions() BackfillOptions {
	return BackfillOptions{
		StepDays:      7,
		AutoGrowStep:  true,
		GrowFactor:    2,
		GrowThreshold: 3,
		MaxStepDays:   60,
	}
}

func (o BackfillOptions) Validate() error {
	if o.StepDays < 1 {
		return errors.NewConfigurationError("step days must be at least 1", nil)
	}
	if !o.AutoGrowStep {
		return nil
	}
	if o.GrowFactor <= 1 || math.IsNaN(o.GrowFactor) || math.IsInf(o.GrowFactor, 0) {
		return errors.NewConfigurationError("grow factor must be greater than 1", nil)
	}
	if o.GrowThreshold < 1 {
		return errors.NewConfigurationError("grow threshold must be at least 1", nil)
	}
	if o.MaxStepDays < o.StepDays {
		return errors.NewConfigurationError("max step days must not be below step days", nil)
	}
	return nil
}

// grow returns the next window width in days
func (o BackfillOptions) grow(step int) int {
	next := int(math.Ceil(float64(step) * o.GrowFactor))
	if next > o.MaxStepDays {
		next = o.MaxStepDays
	}
	return next
}

// LevelReport summarizes one level's pass
type LevelReport struct {
	Level            models.Level  `json:"level"`
	WindowsProbed    int           `json:"windows_probed"`
	WindowsProcessed int           `json:"windows_processed"`
	WindowsEmpty     int           `json:"windows_empty"`
	RowsAffected     int64         `json:"rows_affected"`
	FinalStepDays    int           `json:"final_step_days"`
	Duration         time.Duration `json:"duration"`
}

// BackfillReport is the outcome of BackfillRange. From and To are the range
// after clipping to the raw data.
type BackfillReport struct {
	From     time.Time     `json:"from"`
	To       time.Time     `json:"to"`
	Skipped  bool          `json:"skipped"`
	Reason   string        `json:"reason,omitempty"`
	Levels   []LevelReport `json:"levels"`
	Duration time.Duration `json:"duration"`
}

// BackfillRange recomputes the 5m, 30m and 2h tables over [from, to), in that
// order, window by window. The range is clipped to the raw data first; when
// nothing remains the report is marked skipped. Every window is an
// idempotent upsert, so an aborted run can simply be repeated.
func (e *Engine) BackfillRange(ctx context.Context, from, to time.Time, opts BackfillOptions) (report *BackfillReport, err error) {
	if !from.Before(to) {
		return nil, errors.NewConfigurationError("backfill range is empty", nil).WithDetails(map[string]string{
			"from": from.Format(time.RFC3339),
			"to":   to.Format(time.RFC3339),
		})
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	started := time.Now()
	report = &BackfillReport{From: from.UTC(), To: to.UTC(), Levels: []LevelReport{}}
	defer func() {
		report.Duration = time.Since(started)
		e.observer.BackfillCompleted(report, err)
	}()

	bounds, err := e.raw.TimeBounds(ctx)
	if err != nil {
		return report, err
	}
	if bounds == nil {
		report.Skipped = true
		report.Reason = "no raw data"
		nuts.L.Infof("[Backfill] Skipped: %s", report.Reason)
		return report, nil
	}

	// the newest sample is inclusive
	upper := bounds.Max.Add(time.Nanosecond)
	if from.Before(bounds.Min) {
		report.From = bounds.Min.UTC()
	}
	if to.After(upper) {
		report.To = upper.UTC()
	}
	if !report.From.Before(report.To) {
		report.Skipped = true
		report.Reason = "requested range does not overlap raw data"
		nuts.L.Infof("[Backfill] Skipped %s..%s: %s", from.Format(time.RFC3339), to.Format(time.RFC3339), report.Reason)
		return report, nil
	}

	nuts.L.Infof("[Backfill] Starting %s..%s (step %dd, auto grow %v)",
		report.From.Format(time.RFC3339), report.To.Format(time.RFC3339), opts.StepDays, opts.AutoGrowStep)

	for _, level := range models.SummaryLevels {
		lr, err := e.backfillLevel(ctx, level, report.From, report.To, opts)
		report.Levels = append(report.Levels, lr)
		if err != nil {
			// coarser levels are built from 5m, so there is no point continuing
			nuts.L.Errorf("[Backfill] Aborted in %s pass: %v", level, err)
			return report, fmt.Errorf("backfill %s: %w", level, err)
		}
		nuts.L.Infof("[Backfill] %s done: %d windows (%d empty), %d rows, final step %dd, %v",
			level, lr.WindowsProbed, lr.WindowsEmpty, lr.RowsAffected, lr.FinalStepDays, lr.Duration)
	}
	return report, nil
}

// backfillLevel walks the level's bucket-aligned span of [from, to) so no
// window ever covers part of a bucket.
func (e *Engine) backfillLevel(ctx context.Context, level models.Level, from, to time.Time, opts BackfillOptions) (LevelReport, error) {
	started := time.Now()
	lr := LevelReport{Level: level, FinalStepDays: opts.StepDays}

	start := level.BucketStart(from)
	end := level.BucketStart(to)
	if end.Before(to) {
		end = level.BucketEnd(end)
	}

	step := opts.StepDays
	empties := 0
	for ws := start; ws.Before(end); {
		if err := ctx.Err(); err != nil {
			lr.Duration = time.Since(started)
			return lr, err
		}
		we := ws.Add(time.Duration(step) * day)
		if we.After(end) {
			we = end
		}

		lr.WindowsProbed++
		has, err := e.hasSource(ctx, level, ws, we)
		if err != nil {
			lr.Duration = time.Since(started)
			return lr, err
		}
		if !has {
			lr.WindowsEmpty++
			e.observer.BackfillWindow(level, 0, true)
			empties++
			if opts.AutoGrowStep && empties >= opts.GrowThreshold && step < opts.MaxStepDays {
				step = opts.grow(step)
				empties = 0
				nuts.L.Debugf("[Backfill] %s step grown to %dd at %s", level, step, we.Format(time.RFC3339))
			}
			ws = we
			continue
		}
		empties = 0

		rows, err := e.summaries.BackfillLevel(ctx, level, ws, we)
		if err != nil {
			lr.Duration = time.Since(started)
			return lr, err
		}
		lr.WindowsProcessed++
		lr.RowsAffected += rows
		e.observer.BackfillWindow(level, rows, false)
		ws = we
	}

	lr.FinalStepDays = step
	lr.Duration = time.Since(started)
	return lr, nil
}

// hasSource probes the table the level is computed from
func (e *Engine) hasSource(ctx context.Context, level models.Level, from, to time.Time) (bool, error) {
	if level.Source() == models.LevelRaw {
		return e.raw.HasSamples(ctx, from, to)
	}
	return e.summaries.HasBuckets(ctx, level.Source(), from, to)
}
