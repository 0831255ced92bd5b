// FilePath: api/resources/resources.go
package resources

import (
	"encoding/json"
	"net/http"

	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/service"
	nuts "github.com/vaudience/go-nuts"
)

// Resources holds all HTTP resource handlers
type Resources struct {
	Data    *DataHandlers
	Summary *SummaryHandlers
}

// NewResources creates a new Resources instance
func NewResources(svc *service.Service) *Resources {
	return &Resources{
		Data:    &DataHandlers{service: svc},
		Summary: &SummaryHandlers{service: svc},
	}
}

// HealthCheck reports liveness and the build version
func (res *Resources) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": nuts.GetVersion(),
	})
}

// apiError keeps typed errors from the layers below and wraps anything else
// as an internal error
func apiError(err error, msg, requestID string) *errors.APIError {
	if apiErr, ok := errors.As(err); ok {
		return apiErr.WithRequestID(requestID)
	}
	return errors.NewInternalError(msg, err).WithRequestID(requestID)
}

func respondWithError(w http.ResponseWriter, err *errors.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Code)
	json.NewEncoder(w).Encode(err)
	if err.Code >= http.StatusInternalServerError {
		nuts.L.Errorf("[API] %s", err.Error())
	} else {
		nuts.L.Debugf("[API] %s", err.Error())
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}
