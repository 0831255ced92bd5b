package api

import (
	"net/http"

	"github.com/WCL-INU/beeweb/api/middleware"
	"github.com/WCL-INU/beeweb/api/resources"
	"github.com/WCL-INU/beeweb/internal/monitoring"
	"github.com/WCL-INU/beeweb/internal/service"
	"github.com/gorilla/mux"
)

type Router struct {
	router     *mux.Router
	resources  *resources.Resources
	monitoring *monitoring.Service
}

func NewRouter(svc *service.Service, mon *monitoring.Service) *Router {
	r := &Router{
		router:     mux.NewRouter(),
		resources:  resources.NewResources(svc),
		monitoring: mon,
	}

	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.router.Use(middleware.RequestID)
	r.router.Use(middleware.Metrics(r.monitoring))

	// mounted on the root router; the path comes from monitoring config
	r.router.Handle(r.monitoring.MetricsPath(), r.monitoring.Handler()).Methods(http.MethodGet)

	// API version prefix
	api := r.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/health", r.resources.HealthCheck).Methods(http.MethodGet)

	// Data
	api.HandleFunc("/devices/{deviceId:[0-9]+}/data", r.resources.Data.GetDeviceData).Methods(http.MethodGet)
	api.HandleFunc("/readings", r.resources.Data.RecordReadings).Methods(http.MethodPost)

	// Summary administration
	admin := api.PathPrefix("/admin/summary").Subrouter()
	admin.HandleFunc("/status", r.resources.Summary.Status).Methods(http.MethodGet)
	admin.HandleFunc("/drain", r.resources.Summary.Drain).Methods(http.MethodPost)
	admin.HandleFunc("/backfill", r.resources.Summary.Backfill).Methods(http.MethodPost)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.router.ServeHTTP(w, req)
}
