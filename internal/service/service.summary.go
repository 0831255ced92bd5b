package service

import (
	"context"
	"time"

	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/summary"
	nuts "github.com/vaudience/go-nuts"
)

// RequestDrain asks for a drain without blocking. It returns false when a
// drain is already running; that drain will run once more afterwards.
func (s *Service) RequestDrain(ctx context.Context) bool {
	return s.engine.RequestDrain(context.WithoutCancel(ctx))
}

// DrainNow drains the ledger on the caller's goroutine, bypassing the gate
func (s *Service) DrainNow(ctx context.Context) (int, error) {
	return s.engine.DrainToExhaustion(ctx)
}

// PendingMarkers returns the current ledger size
func (s *Service) PendingMarkers(ctx context.Context) (int64, error) {
	return s.hub.Touches.PendingCount(ctx)
}

// BackfillOptionsFor overlays the request's options on the configured defaults
func (s *Service) BackfillOptionsFor(req models.BackfillRequest) summary.BackfillOptions {
	opts := s.backfill
	if req.StepDays != 0 {
		opts.StepDays = req.StepDays
	}
	if req.AutoGrowStep != nil {
		opts.AutoGrowStep = *req.AutoGrowStep
	}
	if req.GrowFactor != 0 {
		opts.GrowFactor = req.GrowFactor
	}
	if req.GrowThreshold != 0 {
		opts.GrowThreshold = req.GrowThreshold
	}
	if req.MaxStepDays != 0 {
		opts.MaxStepDays = req.MaxStepDays
	} else if opts.MaxStepDays < opts.StepDays {
		opts.MaxStepDays = opts.StepDays
	}
	return opts
}

func (s *Service) checkBackfill(req models.BackfillRequest) (summary.BackfillOptions, error) {
	if req.From.IsZero() || req.To.IsZero() {
		return summary.BackfillOptions{}, errors.NewConfigurationError("from and to are required", nil)
	}
	if !req.From.Before(req.To) {
		return summary.BackfillOptions{}, errors.NewConfigurationError("from must be before to", nil)
	}
	opts := s.BackfillOptionsFor(req)
	return opts, opts.Validate()
}

// RunBackfill recomputes all summary levels over [req.From, req.To) and waits
// for the result
func (s *Service) RunBackfill(ctx context.Context, req models.BackfillRequest) (*summary.BackfillReport, error) {
	opts, err := s.checkBackfill(req)
	if err != nil {
		return nil, err
	}
	return s.engine.BackfillRange(ctx, req.From, req.To, opts)
}

// StartBackfill validates the request and runs it on its own goroutine. The
// returned job id tags the started, completed and failed events.
func (s *Service) StartBackfill(ctx context.Context, req models.BackfillRequest) (string, error) {
	opts, err := s.checkBackfill(req)
	if err != nil {
		return "", err
	}

	jobID := nuts.NID("bf", 12)
	s.jobs.Add(1)
	s.events.Emit(EventBackfillStarted, jobID, req)
	nuts.L.Infof("[Backfill] Job %s accepted for %s..%s", jobID, req.From.Format(time.RFC3339), req.To.Format(time.RFC3339))

	go func(ctx context.Context) {
		defer s.jobs.Done()
		report, err := s.engine.BackfillRange(ctx, req.From, req.To, opts)
		if err != nil {
			nuts.L.Errorf("[Backfill] Job %s failed: %v", jobID, err)
			s.events.Emit(EventBackfillFailed, jobID, err)
			return
		}
		nuts.L.Infof("[Backfill] Job %s finished in %v (skipped=%v)", jobID, report.Duration, report.Skipped)
		s.events.Emit(EventBackfillCompleted, jobID, report)
	}(context.WithoutCancel(ctx))

	return jobID, nil
}
