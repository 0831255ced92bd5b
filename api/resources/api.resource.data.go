package resources

import (
	"encoding/json"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/WCL-INU/beeweb/api/middleware"
	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	"github.com/WCL-INU/beeweb/internal/service"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
)

// maxReadingsPerRequest caps a single ingestion batch
const maxReadingsPerRequest = 5000

// DataHandlers serves raw ingestion and the unified read
type DataHandlers struct {
	service *service.Service
}

var queryDecoder = newQueryDecoder()

func newQueryDecoder() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	d.RegisterConverter(time.Time{}, func(s string) reflect.Value {
		t, err := models.ParseTimestamp(s)
		if err != nil {
			return reflect.Value{}
		}
		return reflect.ValueOf(t)
	})
	return d
}

// @Summary Get device data
// @Description Read one device's series at raw or summary resolution. Without an explicit level the resolution follows the range width.
// @Tags data
// @Produce json
// @Param deviceId path int true "Device ID"
// @Param types query []int false "Data types, repeated or comma-separated"
// @Param start query string false "Start time (RFC3339 or YYYY-MM-DD HH:MM:SS, UTC)"
// @Param end query string false "End time (RFC3339 or YYYY-MM-DD HH:MM:SS, UTC)"
// @Param level query string false "raw, 5m, 30m, 2h or auto"
// @Success 200 {array} models.SensorDataRow
// @Failure 400 {object} errors.APIError
// @Router /devices/{deviceId}/data [get]
func (h *DataHandlers) GetDeviceData(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFrom(r.Context())

	deviceID, err := strconv.ParseInt(mux.Vars(r)["deviceId"], 10, 64)
	if err != nil || deviceID <= 0 {
		respondWithError(w, errors.NewValidationError("invalid device id", err).WithRequestID(requestID))
		return
	}

	var filters models.SensorDataFilters
	if err := queryDecoder.Decode(&filters, splitLists(r.URL.Query(), "types")); err != nil {
		respondWithError(w, errors.NewValidationError("invalid query parameters", err).WithRequestID(requestID))
		return
	}

	rows, err := h.service.GetSensorData(r.Context(), deviceID, filters)
	if err != nil {
		respondWithError(w, apiError(err, "failed to read sensor data", requestID))
		return
	}
	respondWithJSON(w, http.StatusOK, rows)
}

// splitLists expands comma-separated values of the given keys into repeated values
func splitLists(query map[string][]string, keys ...string) map[string][]string {
	for _, key := range keys {
		var out []string
		for _, v := range query[key] {
			for _, part := range strings.Split(v, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
		}
		if out != nil {
			query[key] = out
		}
	}
	return query
}

// @Summary Record sensor readings
// @Description Store raw samples from edge devices and mark their buckets for aggregation
// @Tags data
// @Accept json
// @Produce json
// @Param readings body []models.RawSample true "Raw samples"
// @Success 201 {object} map[string]int
// @Failure 400 {object} errors.APIError
// @Router /readings [post]
func (h *DataHandlers) RecordReadings(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.RequestIDFrom(r.Context())

	var samples []models.RawSample
	if err := json.NewDecoder(r.Body).Decode(&samples); err != nil {
		respondWithError(w, errors.NewValidationError("invalid request body", err).WithRequestID(requestID))
		return
	}
	if len(samples) == 0 {
		respondWithError(w, errors.NewValidationError("no readings in request", nil).WithRequestID(requestID))
		return
	}
	if len(samples) > maxReadingsPerRequest {
		respondWithError(w, errors.NewValidationError("too many readings in request", nil).
			WithDetails(map[string]int{"max": maxReadingsPerRequest}).
			WithRequestID(requestID))
		return
	}

	stored, err := h.service.RecordSamples(r.Context(), samples)
	if err != nil {
		respondWithError(w, apiError(err, "failed to record readings", requestID).
			WithDetails(map[string]int{"stored": stored}))
		return
	}
	respondWithJSON(w, http.StatusCreated, map[string]int{"stored": stored})
}
