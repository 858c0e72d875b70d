package profilex

import (
	"encoding/json"
	"time"
)

// Status classifies an aggregate response against the full source registry.
type Status string

const (
	StatusHit     Status = "hit"     // every source fresh
	StatusPartial Status = "partial" // records exist but at least one source stale
	StatusMiss    Status = "miss"    // no records at all
)

// SourceError is the error metadata surfaced alongside a source's payload
// when its most recent refresh attempts have been failing.
type SourceError struct {
	LastError   string    `json:"lastError"`
	ErrorCount  int       `json:"errorCount"`
	LastAttempt time.Time `json:"lastAttempt"`
}

// Snapshot is the classified view of one subject's records at one instant.
// It is a pure function of (registry, records, now); producing it has no
// side effects.
type Snapshot struct {
	// Payloads maps every registered source to the payload to serve: the
	// record's payload when present, else the source default.
	Payloads map[string]json.RawMessage

	// Errors holds metadata for sources whose last refresh failed.
	Errors map[string]SourceError

	// Timestamps holds each source's last successful update time.
	Timestamps map[string]time.Time

	// StaleSources lists, in registration order, the sources that need a
	// refresh: missing records and records past their expiry.
	StaleSources []string

	// LastContentUpdate is the maximum LastUpdated across present records,
	// or the Unix epoch when none exist. Clients compare it across polls to
	// detect "nothing new" without diffing payloads.
	LastContentUpdate time.Time

	Status Status
}

// Evaluate classifies the records found for a subject against the registry.
func Evaluate(reg *Registry, records []Record, now time.Time) Snapshot {
	bySource := make(map[string]Record, len(records))
	for _, rec := range records {
		bySource[rec.Source] = rec
	}

	snap := Snapshot{
		Payloads:          make(map[string]json.RawMessage, len(reg.Sources())),
		Errors:            make(map[string]SourceError),
		Timestamps:        make(map[string]time.Time),
		LastContentUpdate: time.Unix(0, 0).UTC(),
	}

	found := 0
	for _, src := range reg.Sources() {
		rec, ok := bySource[src.Name]
		if !ok {
			snap.Payloads[src.Name] = src.Default
			snap.StaleSources = append(snap.StaleSources, src.Name)
			continue
		}
		found++

		payload := rec.Payload
		if len(payload) == 0 {
			payload = src.Default
		}
		snap.Payloads[src.Name] = payload

		if rec.Stale(now) {
			snap.StaleSources = append(snap.StaleSources, src.Name)
		}
		if rec.ConsecutiveErrors > 0 {
			snap.Errors[src.Name] = SourceError{
				LastError:   rec.LastError,
				ErrorCount:  rec.ConsecutiveErrors,
				LastAttempt: rec.LastAttempt,
			}
		}
		if !rec.LastUpdated.IsZero() {
			snap.Timestamps[src.Name] = rec.LastUpdated
			if rec.LastUpdated.After(snap.LastContentUpdate) {
				snap.LastContentUpdate = rec.LastUpdated
			}
		}
	}

	switch {
	case found == 0:
		snap.Status = StatusMiss
	case len(snap.StaleSources) == 0:
		snap.Status = StatusHit
	default:
		snap.Status = StatusPartial
	}
	return snap
}
