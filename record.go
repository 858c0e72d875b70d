package profilex

import (
	"encoding/json"
	"time"
)

// Record is the cached state of one (subject, source) pair. Exactly one
// record exists per pair once first written; it is never deleted, staleness
// is a serving concern only.
type Record struct {
	Subject string `json:"subject"`
	Source  string `json:"source"`

	// Payload is the source's normalized data, stored verbatim. A failed
	// refresh never erases a previously stored payload.
	Payload json.RawMessage `json:"payload"`

	// LastUpdated is the time of the last successful fetch. Zero means the
	// source has never been fetched successfully.
	LastUpdated time.Time `json:"lastUpdated"`

	// LastAttempt is the time of the last fetch attempt, successful or not.
	LastAttempt time.Time `json:"lastAttempt"`

	// ExpiresAt is when the record turns stale. Zero means always stale.
	ExpiresAt time.Time `json:"expiresAt"`

	// ConsecutiveErrors counts failed refresh attempts since the last
	// success. It is greater than zero exactly when LastError is set.
	ConsecutiveErrors int    `json:"consecutiveErrors"`
	LastError         string `json:"lastError,omitempty"`
}

// Stale reports whether the record should be refreshed at the given time.
func (r Record) Stale(now time.Time) bool {
	return r.ExpiresAt.IsZero() || !r.ExpiresAt.After(now)
}
