// FilePath: internal/models/models.sensor_data.go
package models

import "time"

// RawSample is a single device measurement. Exactly one of IntValue and
// FloatValue is populated; (DeviceID, DataType, Time) is unique.
type RawSample struct {
	ID         int64     `json:"id" db:"id"`
	DeviceID   int64     `json:"device_id" db:"device_id"`
	DataType   DataType  `json:"data_type" db:"data_type"`
	IntValue   *int64    `json:"data_int,omitempty" db:"data_int"`
	FloatValue *float64  `json:"data_float,omitempty" db:"data_float"`
	Time       time.Time `json:"time" db:"time"`
}

// Value coalesces the populated field into a single number
func (s RawSample) Value() (float64, bool) {
	if s.FloatValue != nil {
		return *s.FloatValue, true
	}
	if s.IntValue != nil {
		return float64(*s.IntValue), true
	}
	return 0, false
}

// SeriesKey identifies one (device, data type) stream
type SeriesKey struct {
	DeviceID int64
	DataType DataType
}

// TimeRange is a closed [Min, Max] interval of observed timestamps
type TimeRange struct {
	Min time.Time `json:"min" db:"tmin"`
	Max time.Time `json:"max" db:"tmax"`
}
