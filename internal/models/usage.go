package models

import (
	"time"

	"github.com/google/uuid"
)

// DayBucketSeconds is the fixed length of a usage window.
const DayBucketSeconds = 86400

// DayBucket returns the integer usage window containing t.
func DayBucket(t time.Time) int64 {
	return t.Unix() / DayBucketSeconds
}

// BucketRollover returns the wall-clock instant at which the given bucket
// rolls over to the next one.
func BucketRollover(bucket int64) time.Time {
	return time.Unix((bucket+1)*DayBucketSeconds, 0).UTC()
}

// UsageSnapshot is the read model for an account's metering state.
// RequestsLimit is nil for unlimited tiers.
type UsageSnapshot struct {
	AccountID     uuid.UUID `json:"account"`
	Tier          Tier      `json:"tier"`
	RequestsUsed  int64     `json:"requests_used"`
	RequestsLimit *int64    `json:"requests_limit,omitempty"`
	DayBucket     int64     `json:"day_bucket"`
	ResetTime     time.Time `json:"reset_time"`
}
