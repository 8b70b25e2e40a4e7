package ratelimit

import (
	"fmt"
	"time"
)

// Bucket identifies one quota period: an ISO-8601 week in UTC, e.g. "2024-W03".
type Bucket string

func (b Bucket) String() string {
	return string(b)
}

// BucketFor returns the ISO week bucket containing t. The ISO year can differ
// from the calendar year in the first and last days of January and December.
func BucketFor(t time.Time) Bucket {
	year, week := t.UTC().ISOWeek()
	return Bucket(fmt.Sprintf("%04d-W%02d", year, week))
}

// NextBucketStart returns the Monday 00:00 UTC that begins the bucket after t.
func NextBucketStart(t time.Time) time.Time {
	u := t.UTC()
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(midnight.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return midnight.AddDate(0, 0, 8-weekday)
}
