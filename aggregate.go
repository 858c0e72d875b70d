package profilex

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"
)

// DefaultRefreshLimit caps how many stale sources one request may send to
// the coordinator. Full freshness across more sources converges over
// successive polls instead of fanning out on a single request.
var DefaultRefreshLimit = 3

// ResponseSourceFallback marks a degraded response assembled from source
// defaults after a store failure.
const ResponseSourceFallback = "error-fallback"

// AggregateResponse is the client-facing aggregate of all sources for one
// subject. It always reflects persisted state only; it never waits on a
// refresh triggered by the same request.
type AggregateResponse struct {
	Subject           string                     `json:"subject"`
	Sources           map[string]json.RawMessage `json:"sources"`
	SourceErrors      map[string]SourceError     `json:"sourceErrors,omitempty"`
	SourceTimestamps  map[string]time.Time       `json:"sourceTimestamps,omitempty"`
	LastContentUpdate time.Time                  `json:"lastContentUpdate"`
	CacheStatus       Status                     `json:"cacheStatus"`
	ResponseSource    string                     `json:"source"`
	LoadTimeMs        int64                      `json:"loadTimeMs"`
	Error             string                     `json:"error,omitempty"`
}

// Aggregator is the orchestration entry point: it answers immediately from
// the record store and triggers bounded background refreshes for whatever
// was stale or missing.
type Aggregator struct {
	store        RecordStore
	registry     *Registry
	coord        *Coordinator
	refreshLimit int
	spawn        func(func())
}

// NewAggregator creates an aggregator on top of a coordinator. The store
// and registry are usually the coordinator's own.
func NewAggregator(store RecordStore, registry *Registry, coord *Coordinator, opts ...AggregatorOption) *Aggregator {
	if store == nil {
		panic("record store is required")
	}
	if registry == nil {
		panic("registry is required")
	}
	if coord == nil {
		panic("coordinator is required")
	}

	a := &Aggregator{
		store:        store,
		registry:     registry,
		coord:        coord,
		refreshLimit: DefaultRefreshLimit,
		spawn:        func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.refreshLimit <= 0 {
		panic("refreshLimit must be positive")
	}
	return a
}

// NormalizeSubject case-folds and trims an identity key so every caller
// lands on the same records.
func NormalizeSubject(subject string) string {
	return strings.ToLower(strings.TrimSpace(subject))
}

// Get returns the aggregate profile for subject. It never fails: a store
// error degrades to the sources' configured defaults with an error field.
func (a *Aggregator) Get(ctx context.Context, subject string) *AggregateResponse {
	start := time.Now()
	subject = NormalizeSubject(subject)

	records, err := a.store.FindAll(ctx, subject)
	if err != nil {
		a.coord.logger.Error("record store read failed, serving defaults",
			"subject", subject, "error", err)
		return a.fallback(subject, err, start)
	}

	snap := Evaluate(a.registry, records, NowFunc())
	resp := &AggregateResponse{
		Subject:           subject,
		Sources:           snap.Payloads,
		SourceErrors:      snap.Errors,
		SourceTimestamps:  snap.Timestamps,
		LastContentUpdate: snap.LastContentUpdate,
		CacheStatus:       snap.Status,
		ResponseSource:    "cache-" + string(snap.Status),
		LoadTimeMs:        time.Since(start).Milliseconds(),
	}
	if len(resp.SourceErrors) == 0 {
		resp.SourceErrors = nil
	}
	if len(resp.SourceTimestamps) == 0 {
		resp.SourceTimestamps = nil
	}

	if snap.Status != StatusHit {
		a.triggerRefresh(subject, snap.StaleSources)
	}
	return resp
}

// triggerRefresh hands at most refreshLimit stale sources to the
// coordinator without waiting on the result. Initiation failures are logged
// and never propagate to the caller.
func (a *Aggregator) triggerRefresh(subject string, staleNames []string) {
	if len(staleNames) > a.refreshLimit {
		staleNames = staleNames[:a.refreshLimit]
	}
	sources := make([]Source, 0, len(staleNames))
	for _, name := range staleNames {
		if src, ok := a.registry.Lookup(name); ok {
			sources = append(sources, src)
		}
	}
	if len(sources) == 0 {
		return
	}

	a.spawn(func() {
		defer func() {
			if r := recover(); r != nil {
				a.coord.logger.Error("failed to initiate refresh",
					"subject", subject,
					"panic", r,
					"stack", string(debug.Stack()))
			}
		}()
		a.coord.Refresh(subject, sources)
	})
}

func (a *Aggregator) fallback(subject string, err error, start time.Time) *AggregateResponse {
	payloads := make(map[string]json.RawMessage, len(a.registry.Sources()))
	for _, src := range a.registry.Sources() {
		payloads[src.Name] = src.Default
	}
	return &AggregateResponse{
		Subject:           subject,
		Sources:           payloads,
		LastContentUpdate: time.Unix(0, 0).UTC(),
		CacheStatus:       StatusMiss,
		ResponseSource:    ResponseSourceFallback,
		LoadTimeMs:        time.Since(start).Milliseconds(),
		Error:             fmt.Sprintf("cache read failed: %v", err),
	}
}

// RefreshStatus is the read-only introspection view of the refresh engine.
type RefreshStatus struct {
	InFlight []string `json:"inFlight"`
	Events   []Event  `json:"events"`
}

// Status reports the in-flight subjects and the most recent n lifecycle
// events.
func (a *Aggregator) Status(n int) RefreshStatus {
	return RefreshStatus{
		InFlight: a.coord.InFlight(),
		Events:   a.coord.Events().Recent(n),
	}
}

// AggregatorOption is a functional option for configuring an Aggregator
type AggregatorOption func(*Aggregator)

// WithRefreshLimit caps how many stale sources a single request may trigger.
func WithRefreshLimit(n int) AggregatorOption {
	return func(a *Aggregator) {
		a.refreshLimit = n
	}
}

// WithSpawner sets the capability used to run refresh triggers in the
// background. The default spawns a goroutine; tests can substitute a
// synchronous spawner.
func WithSpawner(spawn func(func())) AggregatorOption {
	return func(a *Aggregator) {
		a.spawn = spawn
	}
}
