package resources

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/WCL-INU/beeweb/api/middleware"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/service"
)

// SummaryHandlers are the admin endpoints of the summary engine
type SummaryHandlers struct {
	service *service.Service
}

// @Summary Summary status
// @Description Number of touch markers waiting for the drain worker
// @Tags summary
// @Produce json
// @Success 200 {object} map[string]int64
// @Router /admin/summary/status [get]
func (h *SummaryHandlers) Status(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFrom(r.Context())

	pending, err := h.service.PendingMarkers(r.Context())
	if err != nil {
		respondWithError(w, apiError(err, "failed to count pending markers", requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int64{"pending_markers": pending})
}

// @Summary Trigger a drain
// @Description Starts a drain unless one is running, in which case the running drain repeats once
// @Tags summary
// @Produce json
// @Success 202 {object} map[string]bool
// @Router /admin/summary/drain [post]
func (h *SummaryHandlers) Drain(w http.ResponseWriter, r *http.Request) {
	started := h.service.RequestDrain(r.Context())
	respondWithJSON(w, http.StatusAccepted, map[string]bool{"started": started})
}

// @Summary Backfill summaries
// @Description Recompute every summary level over [from, to). Runs in the background unless wait=true.
// @Tags summary
// @Accept json
// @Produce json
// @Param request body models.BackfillRequest true "Range and window options"
// @Param wait query bool false "Block until the run is finished and return its report"
// @Success 200 {object} summary.BackfillReport
// @Success 202 {object} map[string]string
// @Failure 400 {object} errors.APIError
// @Router /admin/summary/backfill [post]
func (h *SummaryHandlers) Backfill(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFrom(r.Context())

	var req models.BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		report, err := h.service.RunBackfill(r.Context(), req)
		if err != nil {
			respondWithError(w, apiError(err, "backfill failed", requestID))
			return
		}
		respondWithJSON(w, http.StatusOK, report)
		return
	}

	jobID, err := h.service.StartBackfill(r.Context(), req)
	if err != nil {
		respondWithError(w, apiError(err, "failed to start backfill", requestID))
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}
