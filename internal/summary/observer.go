package summary

import (
	"time"

	"github.com/WCL-INU/beeweb/internal/models"
)

// Observer receives engine progress. Implementations must be safe for
// concurrent use since drain and backfill run on separate goroutines.
type Observer interface {
	DrainCompleted(processed int, took time.Duration, err error)
	MarkerSkipped()
	MarkerFailed(err error)
	BucketWritten(level models.Level)
	PendingMarkers(n int64)
	BackfillWindow(level models.Level, rows int64, empty bool)
	BackfillCompleted(report *BackfillReport, err error)
}

// NopObserver ignores everything. Embed it to implement a subset of Observer.
type NopObserver struct{}

func (NopObserver) DrainCompleted(int, time.Duration, error) {}
func (NopObserver) MarkerSkipped() {}
func (NopObserver) MarkerFailed(error) {}
func (NopObserver) BucketWritten(models.Level) {}
func (NopObserver) PendingMarkers(int64) {}
func (NopObserver) BackfillWindow(models.Level, int64, bool) {}
func (NopObserver) BackfillCompleted(*BackfillReport, error) {}

// Observers fans out to several observers in order
type Observers []Observer

func (o Observers) DrainCompleted(processed int, took time.Duration, err error) {
	for _, obs := range o {
		obs.DrainCompleted(processed, took, err)
	}
}

func (o Observers) MarkerSkipped() {
	for _, obs := range o {
		obs.MarkerSkipped()
	}
}

func (o Observers) MarkerFailed(err error) {
	for _, obs := range o {
		obs.MarkerFailed(err)
	}
}

func (o Observers) BucketWritten(level models.Level) {
	for _, obs := range o {
		obs.BucketWritten(level)
	}
}

func (o Observers) PendingMarkers(n int64) {
	for _, obs := range o {
		obs.PendingMarkers(n)
	}
}

func (o Observers) BackfillWindow(level models.Level, rows int64, empty bool) {
	for _, obs := range o {
		obs.BackfillWindow(level, rows, empty)
	}
}

func (o Observers) BackfillCompleted(report *BackfillReport, err error) {
	for _, obs := range o {
		obs.BackfillCompleted(report, err)
	}
}
