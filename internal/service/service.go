package service

import (
	"context"
	"sync"
	"time"

	"github.com/WCL-INU/beeweb/internal/config"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/hubservice"
	"github.com/WCL-INU/beeweb/internal/summary"
	nuts "github.com/vaudience/go-nuts"
)

// Events emitted by the service. Drain events carry (processed int, err error);
// backfill events carry (jobID string, payload).
const (
	EventDrainCompleted    = "summary.drain.completed"
	EventBackfillStarted   = "summary.backfill.started"
	EventBackfillCompleted = "summary.backfill.completed"
	EventBackfillFailed    = "summary.backfill.failed"
)

// Service is the business layer between the HTTP resources and the summary engine
type Service struct {
	hub      *hubservice.HubService
	engine   *summary.Engine
	reader   *summary.Reader
	backfill summary.BackfillOptions
	events   *nuts.EventEmitter
	jobs     sync.WaitGroup
}

// New wires the engine over the hub's stores. observer may be nil.
func New(hub *hubservice.HubService, cfg config.SummaryConfig, observer summary.Observer) *Service {
	s := &Service{
		hub:    hub,
		reader: summary.NewReader(hub.SensorData, hub.Summaries),
		backfill: summary.BackfillOptions{
			StepDays:      cfg.Backfill.StepDays,
			AutoGrowStep:  cfg.Backfill.AutoGrowStep,
			GrowFactor:    cfg.Backfill.GrowFactor,
			GrowThreshold: cfg.Backfill.GrowThreshold,
			MaxStepDays:   cfg.Backfill.MaxStepDays,
		},
		events: nuts.NewEventEmitter(),
	}
	if s.backfill.StepDays < 1 {
		s.backfill = summary.DefaultBackfillOptions()
	}

	observers := summary.Observers{eventObserver{events: s.events}}
	if observer != nil {
		observers = append(observers, observer)
	}
	s.engine = summary.NewEngine(hub.SensorData, hub.Summaries, hub.Touches, summary.EngineConfig{
		BatchLimit: cfg.DrainBatchLimit,
		Observer:   observers,
	})
	return s
}

// Validate checks if all required repositories are initialized
func (s *Service) Validate() error {
	if s.hub == nil {
		return errors.NewInternalError("missing hub service", nil)
	}
	return s.hub.Validate()
}

// OnEvent registers a handler for one of the Event* names
func (s *Service) OnEvent(event string, handler func(args ...interface{})) {
	s.events.On(event, nuts.NID("lsn", 8), handler)
}

// Wait blocks until running drains and backfill jobs have finished
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.engine.Wait()
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// eventObserver republishes drain completions on the service's emitter
type eventObserver struct {
	summary.NopObserver
	events *nuts.EventEmitter
}

func (o eventObserver) DrainCompleted(processed int, _ time.Duration, err error) {
	o.events.Emit(EventDrainCompleted, processed, err)
}
