package hubservice

import (
	"context"
	"fmt"

	"github.com/WCL-INU/beeweb/internal/config"
	"github.com/WCL-INU/beeweb/internal/database"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/repository"
	"github.com/WCL-INU/beeweb/internal/repository/memory"
	"github.com/WCL-INU/beeweb/internal/repository/redisledger"
	"github.com/WCL-INU/beeweb/internal/repository/timescale"
	nuts "github.com/vaudience/go-nuts"
)

// HubService bundles the stores the summary engine works on
type HubService struct {
	SensorData repository.RawSampleRepository
	Summaries  repository.SummaryRepository
	Touches    repository.TouchLedger

	closers []func() error
}

// New creates a new HubService instance
func New(
	sensorData repository.RawSampleRepository,
	summaries repository.SummaryRepository,
	touches repository.TouchLedger,
) *HubService {
	return &HubService{
		SensorData: sensorData,
		Summaries:  summaries,
		Touches:    touches,
	}
}

// Open connects the stores selected by cfg.Database.Driver and cfg.Summary.Ledger
func Open(ctx context.Context, cfg *config.Config) (*HubService, error) {
	svc := &HubService{}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		store := memory.New()
		svc.SensorData, svc.Summaries, svc.Touches = store, store, store
		nuts.L.Warnf("[HubService] Using in-memory store, data is lost on restart")

	case config.DriverPostgres:
		db, err := database.NewTimescaleDB(ctx, cfg.Database.TimescaleDB)
		if err != nil {
			return nil, errors.NewUnavailableError("failed to connect to database", err)
		}
		svc.closers = append(svc.closers, db.Close)

		if svc.SensorData, err = timescale.NewSensorDataRepository(ctx, db); err != nil {
			svc.Close()
			return nil, err
		}
		if svc.Summaries, err = timescale.NewSummaryRepository(ctx, db); err != nil {
			svc.Close()
			return nil, err
		}
		if svc.Touches, err = timescale.NewTouchRepository(ctx, db); err != nil {
			svc.Close()
			return nil, err
		}

	default:
		return nil, errors.NewConfigurationError(fmt.Sprintf("unknown database driver %q", cfg.Database.Driver), nil)
	}

	if cfg.Summary.Ledger == config.LedgerRedis {
		ledger, err := redisledger.New(ctx, cfg.Redis)
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.Touches = ledger
		svc.closers = append(svc.closers, ledger.Close)
	}

	if err := svc.Validate(); err != nil {
		svc.Close()
		return nil, err
	}
	nuts.L.Infof("[HubService] Stores ready (driver=%s, ledger=%s)", cfg.Database.Driver, cfg.Summary.Ledger)
	return svc, nil
}

// Validate checks if all required repositories are initialized
func (s *HubService) Validate() error {
	if s.SensorData == nil {
		return ErrMissingRepository("sensorData")
	}
	if s.Summaries == nil {
		return ErrMissingRepository("summaries")
	}
	if s.Touches == nil {
		return ErrMissingRepository("touches")
	}
	return nil
}

// Close releases every connection opened by Open, newest first
func (s *HubService) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	s.closers = nil
	return first
}

func ErrMissingRepository(name string) error {
	return errors.NewInternalError("missing repository: "+name, nil)
}
