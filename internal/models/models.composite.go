// FilePath: internal/models/models.composite.go
package models

import "time"

// SensorDataRow is the common response shape for raw and summary reads.
// For summary rows ID is a synthetic hash of (device, type, bucket start)
// and must not be used for joins.
type SensorDataRow struct {
	ID       uint64    `json:"id"`
	DeviceID int64     `json:"device_id"`
	DataType DataType  `json:"data_type"`
	Time     time.Time `json:"time"`
	Value    float64   `json:"value"`
	Level    Level     `json:"level"`
}
