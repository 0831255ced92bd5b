package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/summary"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	nuts "github.com/vaudience/go-nuts"
)

// DefaultMetricsPath is used when Config.MetricsPath is empty
const DefaultMetricsPath = "/api/v1/metrics"

// Config holds monitoring configuration
type Config struct {
	MetricsPath string
}

// Service owns the process metrics registry and reports engine progress to it
type Service struct {
	config   Config
	registry *prometheus.Registry

	events          *prometheus.CounterVec
	drainRuns       *prometheus.CounterVec
	drainDuration   prometheus.Histogram
	markers         *prometheus.CounterVec
	buckets         *prometheus.CounterVec
	pending         prometheus.Gauge
	backfillWindows *prometheus.CounterVec
	backfillRows    *prometheus.CounterVec
	backfillRuns    *prometheus.CounterVec
	requests        *prometheus.HistogramVec
}

var _ summary.Observer = (*Service)(nil)

// NewService creates a new monitoring service with its own registry
func NewService(config Config) *Service {
	if config.MetricsPath == "" {
		config.MetricsPath = DefaultMetricsPath
	}
	s := &Service{
		config:   config,
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beeweb_events_total",
			Help: "Lifecycle and engine events",
		}, []string{"event"}),
		drainRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beeweb_summary_drain_runs_total",
			Help: "Completed drain runs by outcome",
		}, []string{"outcome"}),
		drainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "beeweb_summary_drain_duration_seconds",
			Help:    "Duration of a drain run until the ledger is exhausted",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60},
		}),
		markers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beeweb_summary_markers_total",
			Help: "Touch markers handled by the drain worker",
		}, []string{"result"}),
		buckets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beeweb_summary_buckets_written_total",
			Help: "Aggregate buckets upserted by the drain worker",
		}, []string{"level"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "beeweb_summary_pending_markers",
			Help: "Touch markers waiting in the ledger after the last drain",
		}),
		backfillWindows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beeweb_summary_backfill_windows_total",
			Help: "Backfill windows probed",
		}, []string{"level", "result"}),
		backfillRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beeweb_summary_backfill_rows_total",
			Help: "Rows upserted by backfill",
		}, []string{"level"}),
		backfillRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "beeweb_summary_backfill_runs_total",
			Help: "Finished backfill runs by outcome",
		}, []string{"outcome"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "beeweb_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{0.005, 0.02, 0.1, 0.3, 1, 2, 5},
		}, []string{"method", "route", "status"}),
	}

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		s.events, s.drainRuns, s.drainDuration, s.markers, s.buckets, s.pending,
		s.backfillWindows, s.backfillRows, s.backfillRuns, s.requests,
	)
	return s
}

// Handler serves the registry in the Prometheus text format
func (s *Service) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{Registry: s.registry})
}

// Registry exposes the underlying registry, mainly for tests
func (s *Service) Registry() *prometheus.Registry {
	return s.registry
}

// MetricsPath is the route the handler is mounted on
func (s *Service) MetricsPath() string {
	return s.config.MetricsPath
}

// RecordEvent records a monitored event with labels
func (s *Service) RecordEvent(eventName string, labels map[string]string) {
	s.events.WithLabelValues(eventName).Inc()
	nuts.L.Infof("[Monitoring] Event %s recorded with labels: %v", eventName, labels)
}

// ObserveRequest records one served HTTP request
func (s *Service) ObserveRequest(method, route string, status int, took time.Duration) {
	s.requests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(took.Seconds())
}

func (s *Service) DrainCompleted(processed int, took time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.drainRuns.WithLabelValues(outcome).Inc()
	s.drainDuration.Observe(took.Seconds())
	s.markers.WithLabelValues("finalized").Add(float64(processed))
}

func (s *Service) MarkerSkipped() {
	s.markers.WithLabelValues("immature").Inc()
}

func (s *Service) MarkerFailed(err error) {
	result := "failed"
	if errors.IsDataIntegrity(err) {
		result = "data_integrity"
	}
	s.markers.WithLabelValues(result).Inc()
}

func (s *Service) BucketWritten(level models.Level) {
	s.buckets.WithLabelValues(string(level)).Inc()
}

func (s *Service) PendingMarkers(n int64) {
	s.pending.Set(float64(n))
}

func (s *Service) BackfillWindow(level models.Level, rows int64, empty bool) {
	result := "processed"
	if empty {
		result = "empty"
	}
	s.backfillWindows.WithLabelValues(string(level), result).Inc()
	s.backfillRows.WithLabelValues(string(level)).Add(float64(rows))
}

func (s *Service) BackfillCompleted(report *summary.BackfillReport, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case report != nil && report.Skipped:
		outcome = "skipped"
	}
	s.backfillRuns.WithLabelValues(outcome).Inc()
}
