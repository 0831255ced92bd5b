package models

import (
	"strings"
	"time"
)

// HumanTimeLayout is the device-side timestamp format, always UTC
const HumanTimeLayout = "2006-01-02 15:04:05"

// ParseTimestamp accepts RFC3339 or HumanTimeLayout and returns UTC
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation(HumanTimeLayout, s, time.UTC)
}

// SensorDataFilters are the query parameters of a unified data read
type SensorDataFilters struct {
	Types []int     `schema:"types"`
	Start time.Time `schema:"start"`
	End   time.Time `schema:"end"`
	Level string    `schema:"level"`
}

// BackfillRequest describes an on-demand historical recomputation.
// Zero-valued options fall back to the configured defaults.
type BackfillRequest struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	StepDays      int       `json:"step_days,omitempty"`
	AutoGrowStep  *bool     `json:"auto_grow_step,omitempty"`
	GrowFactor    float64   `json:"grow_factor,omitempty"`
	GrowThreshold int       `json:"grow_threshold,omitempty"`
	MaxStepDays   int       `json:"max_step_days,omitempty"`
}
