package aggregate

import (
	"time"

	"github.com/WCL-INU/beeweb/internal/models"
)

// Watermark is the latest raw timestamp seen for a series. The zero value
// means the series has no raw data and nothing is ever mature for it.
type Watermark struct {
	Time  time.Time
	Known bool
}

// IsMature reports whether a bucket ending at bucketEnd can be finalized:
// the watermark must have passed the end by at least the level's buffer.
func IsMature(w Watermark, bucketEnd time.Time, level models.Level) bool {
	if !w.Known {
		return false
	}
	return !w.Time.Before(bucketEnd.Add(level.Buffer()))
}

// BucketMature is IsMature for the bucket of level that starts at start
func BucketMature(w Watermark, start time.Time, level models.Level) bool {
	return IsMature(w, level.BucketEnd(start), level)
}
