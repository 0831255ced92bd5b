// FilePath: internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WCL-INU/beeweb/api"
	"github.com/WCL-INU/beeweb/internal/config"
	"github.com/WCL-INU/beeweb/internal/hubservice"
	"github.com/WCL-INU/beeweb/internal/monitoring"
	"github.com/WCL-INU/beeweb/internal/service"
	"github.com/WCL-INU/beeweb/internal/summary"
	"github.com/gorilla/handlers"
	nuts "github.com/vaudience/go-nuts"
)

const connectTimeout = 10 * time.Second

// Server represents our HTTP server
type Server struct {
	config     *config.Config
	srv        *http.Server
	hubservice *hubservice.HubService
	service    *service.Service
	monitoring *monitoring.Service

	stopPump context.CancelFunc
	pumpDone chan struct{}
}

// New creates a new server instance
func New(cfg *config.Config) *Server {
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return &Server{
		config: cfg,
		srv:    srv,
	}
}

// Start opens the stores, starts the drain pump and serves until SIGINT or SIGTERM
func (s *Server) Start() error {
	if err := s.init(context.Background()); err != nil {
		return err
	}
	s.startDrainPump()

	serveErr := make(chan error, 1)
	go func() {
		nuts.L.Infof("[Server] Starting server on %s", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	return s.waitForShutdown(serveErr)
}

// init wires stores, engine, monitoring and routes
func (s *Server) init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	hub, err := hubservice.Open(ctx, s.config)
	if err != nil {
		return fmt.Errorf("failed to open stores: %w", err)
	}
	s.hubservice = hub

	s.monitoring = monitoring.NewService(monitoring.Config{
		MetricsPath: s.config.Monitoring.MetricsPath,
	})
	s.service = service.New(hub, s.config.Summary, s.monitoring)
	if err := s.service.Validate(); err != nil {
		hub.Close()
		return err
	}
	s.setupEventHandlers()

	router := api.NewRouter(s.service, s.monitoring)
	s.srv.Handler = handlers.CombinedLoggingHandler(os.Stdout,
		handlers.RecoveryHandler(
			handlers.RecoveryLogger(recoveryLogger{}),
		)(router),
	)

	s.monitoring.RecordEvent("server.started", map[string]string{
		"version": nuts.GetVersion(),
		"driver":  s.config.Database.Driver,
		"ledger":  s.config.Summary.Ledger,
	})
	return nil
}

// startDrainPump runs one drain immediately and then one per drain interval
func (s *Server) startDrainPump() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopPump = cancel
	s.pumpDone = make(chan struct{})

	go func() {
		defer close(s.pumpDone)
		runDrainPump(ctx, s.config.Summary.DrainInterval, func() {
			if !s.service.RequestDrain(ctx) {
				nuts.L.Debugf("[Server] Drain still running, rerun queued")
			}
		})
	}()
	nuts.L.Infof("[Server] Drain pump running every %v", s.config.Summary.DrainInterval)
}

func runDrainPump(ctx context.Context, interval time.Duration, trigger func()) {
	trigger()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			trigger()
		}
	}
}

// waitForShutdown waits for interrupt signal and gracefully shuts down the server
func (s *Server) waitForShutdown(serveErr <-chan error) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
	case err := <-serveErr:
		nuts.L.Errorf("[Server] Error starting server: %v", err)
		s.shutdown(context.Background())
		return err
	}

	nuts.L.Infof("[Server] Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	nuts.L.Infof("[Server] Server shut down successfully")
	return nil
}

// shutdown stops accepting requests, stops the pump, lets running drains and
// backfill jobs finish within ctx and closes the stores
func (s *Server) shutdown(ctx context.Context) error {
	var first error
	if err := s.srv.Shutdown(ctx); err != nil {
		first = err
	}
	if s.stopPump != nil {
		s.stopPump()
		<-s.pumpDone
	}
	if s.service != nil {
		if err := s.service.Wait(ctx); err != nil {
			nuts.L.Warnf("[Server] Summary work still running at shutdown: %v", err)
			if first == nil {
				first = err
			}
		}
	}
	if s.hubservice != nil {
		if err := s.hubservice.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *Server) setupEventHandlers() {
	s.service.OnEvent(service.EventDrainCompleted, func(args ...interface{}) {
		if len(args) < 2 {
			return
		}
		if err, ok := args[1].(error); ok && err != nil {
			s.monitoring.RecordEvent("summary.drain.failed", map[string]string{"error": err.Error()})
		}
	})

	s.service.OnEvent(service.EventBackfillStarted, func(args ...interface{}) {
		s.monitoring.RecordEvent(service.EventBackfillStarted, map[string]string{"job_id": jobID(args)})
	})

	s.service.OnEvent(service.EventBackfillCompleted, func(args ...interface{}) {
		labels := map[string]string{"job_id": jobID(args)}
		if len(args) > 1 {
			if report, ok := args[1].(*summary.BackfillReport); ok {
				labels["skipped"] = fmt.Sprint(report.Skipped)
				labels["took"] = report.Duration.String()
				for _, lr := range report.Levels {
					labels["rows_"+string(lr.Level)] = fmt.Sprint(lr.RowsAffected)
				}
			}
		}
		s.monitoring.RecordEvent(service.EventBackfillCompleted, labels)
	})

	s.service.OnEvent(service.EventBackfillFailed, func(args ...interface{}) {
		labels := map[string]string{"job_id": jobID(args)}
		if len(args) > 1 {
			if err, ok := args[1].(error); ok {
				labels["error"] = err.Error()
			}
		}
		s.monitoring.RecordEvent(service.EventBackfillFailed, labels)
	})
}

func jobID(args []interface{}) string {
	if len(args) > 0 {
		if id, ok := args[0].(string); ok {
			return id
		}
	}
	return ""
}

// recoveryLogger routes recovered panics into the service log
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...interface{}) {
	nuts.L.Errorf("[Server] Recovered from panic: %s", fmt.Sprint(v...))
}
