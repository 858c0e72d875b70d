package profilex

import (
	"context"
	"encoding/json"
	"time"
)

// RecordStore persists one Record per (subject, source) pair. Implementations
// must make Upsert atomic per pair; the coordinator's subject-level dedup
// guarantees a single refresh writer per record, but manual overrides may
// write concurrently with reads.
type RecordStore interface {
	// FindAll returns every record stored for subject. A subject with no
	// records yields an empty slice, not an error.
	FindAll(ctx context.Context, subject string) ([]Record, error)

	// Find returns the record for one (subject, source) pair, or an
	// ErrRecordNotFound error when none exists.
	Find(ctx context.Context, subject, source string) (Record, error)

	// Upsert creates or updates the record for (subject, source) by applying
	// patch. The error-counter update is atomic: no read-modify-write step
	// is exposed to callers.
	Upsert(ctx context.Context, subject, source string, patch Patch) error
}

// Patch describes one atomic write to a record. Build patches with
// SuccessPatch and FailurePatch rather than by hand; the pairing of the
// error counter and LastError is maintained by those constructors.
type Patch struct {
	// Payload replaces the stored payload when non-nil. Failure patches
	// leave it nil so the last-known-good payload keeps serving.
	Payload json.RawMessage

	// InsertPayload is written only when this upsert creates the record,
	// typically the source's configured default.
	InsertPayload json.RawMessage

	// LastUpdated is set on success only; zero keeps the stored value.
	LastUpdated time.Time

	LastAttempt time.Time
	ExpiresAt   time.Time

	// IncrementErrors bumps ConsecutiveErrors by one and records LastError.
	// When false the counter is reset to zero and LastError cleared.
	IncrementErrors bool
	LastError       string
}

// SuccessPatch records a successful fetch: new payload, fresh TTL, error
// bookkeeping cleared.
func SuccessPatch(payload json.RawMessage, now time.Time, successTTL time.Duration) Patch {
	return Patch{
		Payload:     payload,
		LastUpdated: now,
		LastAttempt: now,
		ExpiresAt:   now.Add(successTTL),
	}
}

// FailurePatch records a failed fetch: payload untouched (or defaultPayload
// on first write), short error TTL, error counter incremented.
func FailurePatch(defaultPayload json.RawMessage, message string, now time.Time, errorTTL time.Duration) Patch {
	return Patch{
		InsertPayload:   defaultPayload,
		LastAttempt:     now,
		ExpiresAt:       now.Add(errorTTL),
		IncrementErrors: true,
		LastError:       message,
	}
}

// apply mutates rec in place. Used by the in-memory and Redis stores, which
// serialize whole records; the GORM store expresses the same semantics as a
// single upsert statement instead.
func (p Patch) apply(rec *Record) {
	if p.Payload != nil {
		rec.Payload = p.Payload
	} else if len(rec.Payload) == 0 && p.InsertPayload != nil {
		rec.Payload = p.InsertPayload
	}
	if !p.LastUpdated.IsZero() {
		rec.LastUpdated = p.LastUpdated
	}
	if !p.LastAttempt.IsZero() {
		rec.LastAttempt = p.LastAttempt
	}
	rec.ExpiresAt = p.ExpiresAt
	if p.IncrementErrors {
		rec.ConsecutiveErrors++
		rec.LastError = p.LastError
	} else {
		rec.ConsecutiveErrors = 0
		rec.LastError = ""
	}
}
