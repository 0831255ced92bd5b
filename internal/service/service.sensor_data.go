package service

import (
	"context"
	"time"

	"github.com/WCL-INU/beeweb/internal/errors"
	"github.com/WCL-INU/beeweb/internal/models"
	nuts "github.com/vaudience/go-nuts"
)

const defaultReadWindow = 24 * time.Hour

// RecordSample stores one raw sample and marks its 5m bucket dirty. Re-sending
// the same (device, type, time) overwrites the value and is otherwise a no-op.
func (s *Service) RecordSample(ctx context.Context, sample *models.RawSample) error {
	if err := validateSample(sample); err != nil {
		return err
	}
	sample.Time = sample.Time.UTC()

	if err := s.hub.SensorData.UpsertSample(ctx, sample); err != nil {
		return err
	}
	if err := s.hub.Touches.MarkDirty(ctx, sample.DeviceID, sample.DataType, sample.Time); err != nil {
		// the raw row is in place; resending the sample repairs the marker
		nuts.L.Errorf("[SensorService] Sample %d stored but not marked dirty: %v", sample.ID, err)
		return err
	}
	return nil
}

// RecordSamples records samples in order and stops at the first failure,
// returning how many were stored.
func (s *Service) RecordSamples(ctx context.Context, samples []models.RawSample) (int, error) {
	for i := range samples {
		if err := s.RecordSample(ctx, &samples[i]); err != nil {
			return i, err
		}
	}
	return len(samples), nil
}

func validateSample(sample *models.RawSample) error {
	switch {
	case sample == nil:
		return errors.NewValidationError("sample is required", nil)
	case sample.DeviceID <= 0:
		return errors.NewValidationError("device_id must be positive", nil)
	case sample.DataType <= 0:
		return errors.NewValidationError("data_type must be positive", nil)
	case sample.Time.IsZero():
		return errors.NewValidationError("time is required", nil)
	case sample.IntValue == nil && sample.FloatValue == nil:
		return errors.NewValidationError("one of data_int or data_float is required", nil)
	case sample.IntValue != nil && sample.FloatValue != nil:
		return errors.NewValidationError("only one of data_int or data_float may be set", nil)
	}
	return nil
}

// GetSensorData reads one device's series at the requested or automatic
// resolution. A missing start or end defaults to the last 24 hours.
func (s *Service) GetSensorData(ctx context.Context, deviceID int64, filters models.SensorDataFilters) ([]models.SensorDataRow, error) {
	level, err := models.ParseLevel(filters.Level)
	if err != nil {
		return nil, err
	}

	end := filters.End
	if end.IsZero() {
		end = time.Now().UTC()
	}
	start := filters.Start
	if start.IsZero() {
		start = end.Add(-defaultReadWindow)
	}

	types := make([]models.DataType, 0, len(filters.Types))
	for _, t := range filters.Types {
		types = append(types, models.DataType(t))
	}
	return s.reader.Query(ctx, deviceID, types, start, end, level)
}
