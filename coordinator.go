package profilex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

var (
	DefaultSuccessTTL       = time.Hour
	DefaultErrorTTL         = 5 * time.Minute
	DefaultSourceTimeout    = 10 * time.Second
	DefaultFetchConcurrency = 2
	DefaultEventLogSize     = 256
	NowFunc                 = time.Now
)

// Run is the in-flight refresh handle for one subject. At most one Run per
// subject exists at any instant; overlapping Refresh calls receive the same
// handle.
type Run struct {
	Subject string
	Started time.Time

	done chan struct{}
}

// Done returns a channel closed when every source in the run has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx is cancelled.
func (r *Run) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Coordinator is the deduplicated background-refresh engine. It guarantees
// at most one in-flight run per subject, fetches sources with bounded
// concurrency, persists per-source results or errors, and emits lifecycle
// events.
type Coordinator struct {
	store    RecordStore
	registry *Registry
	fetcher  Fetcher
	events   *EventLog
	logger   *slog.Logger

	successTTL    time.Duration
	errorTTL      time.Duration
	sourceTimeout time.Duration
	concurrency   int

	inflight sync.Map // subject -> *Run
}

// NewCoordinator creates a refresh coordinator.
func NewCoordinator(store RecordStore, registry *Registry, fetcher Fetcher, opts ...CoordinatorOption) *Coordinator {
	if store == nil {
		panic("record store is required")
	}
	if registry == nil {
		panic("registry is required")
	}
	if fetcher == nil {
		panic("fetcher is required")
	}

	c := &Coordinator{
		store:         store,
		registry:      registry,
		fetcher:       fetcher,
		logger:        slog.Default(),
		successTTL:    DefaultSuccessTTL,
		errorTTL:      DefaultErrorTTL,
		sourceTimeout: DefaultSourceTimeout,
		concurrency:   DefaultFetchConcurrency,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.events == nil {
		c.events = NewEventLog(DefaultEventLogSize)
	}

	if c.successTTL <= 0 || c.errorTTL <= 0 {
		panic("TTLs must be positive")
	}
	if c.sourceTimeout <= 0 {
		panic("sourceTimeout must be positive")
	}
	if c.concurrency <= 0 {
		panic("concurrency must be positive")
	}

	return c
}

// Refresh starts a background refresh of the given sources for subject and
// returns its handle without waiting for completion. If a run is already in
// flight for subject, that run's handle is returned and the new source
// selection is ignored; selections are not merged across overlapping calls.
func (c *Coordinator) Refresh(subject string, sources []Source) *Run {
	run := &Run{
		Subject: subject,
		Started: NowFunc(),
		done:    make(chan struct{}),
	}
	// Register before any I/O so concurrent callers cannot start a second
	// run for the same subject.
	if existing, loaded := c.inflight.LoadOrStore(subject, run); loaded {
		return existing.(*Run)
	}

	go c.execute(run, sources)
	return run
}

// InFlight returns the subjects with an active run, sorted.
func (c *Coordinator) InFlight() []string {
	var subjects []string
	c.inflight.Range(func(key, _ any) bool {
		subjects = append(subjects, key.(string))
		return true
	})
	sort.Strings(subjects)
	return subjects
}

// Events returns the coordinator's lifecycle event log.
func (c *Coordinator) Events() *EventLog {
	return c.events
}

func (c *Coordinator) execute(run *Run, sources []Source) {
	// Completion is unconditional cleanup, not a success signal: the handle
	// is released and the run closed no matter how the sources fared.
	defer func() {
		c.inflight.Delete(run.Subject)
		close(run.done)
	}()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("refresh run panicked",
				"subject", run.Subject,
				"panic", r,
				"stack", string(debug.Stack()))
			c.events.Append(Event{
				Subject: run.Subject,
				Time:    NowFunc(),
				Kind:    EventRunFailed,
				Message: fmt.Sprint(r),
			})
		}
	}()

	c.events.Append(Event{Subject: run.Subject, Time: NowFunc(), Kind: EventRunStarted})

	g := new(errgroup.Group)
	g.SetLimit(c.concurrency)
	for _, src := range sources {
		src := src
		g.Go(func() error {
			// Source failures are contained in fetchSource; a nil return
			// keeps one source's failure from aborting its siblings.
			c.fetchSource(run.Subject, src)
			return nil
		})
	}
	_ = g.Wait()

	c.events.Append(Event{Subject: run.Subject, Time: NowFunc(), Kind: EventRunCompleted})
}

// fetchSource fetches one source and persists the outcome. It never returns
// an error and never panics out.
func (c *Coordinator) fetchSource(subject string, src Source) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("source fetch panicked",
				"subject", subject,
				"source", src.Name,
				"panic", r,
				"stack", string(debug.Stack()))
			c.persistFailure(subject, src, &FetchError{
				Kind: ErrKindUnexpected,
				Msg:  fmt.Sprintf("panic during fetch: %v", r),
			})
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.sourceTimeout)
	defer cancel()

	payload, err := c.fetcher.Fetch(ctx, src, subject)
	if err != nil {
		c.persistFailure(subject, src, ClassifyFetchError(err))
		return
	}
	c.persistSuccess(subject, src, payload)
}

func (c *Coordinator) persistSuccess(subject string, src Source, payload json.RawMessage) {
	now := NowFunc()
	patch := SuccessPatch(payload, now, c.successTTL)

	// The fetch context may already be past its deadline; persistence gets
	// its own budget.
	ctx, cancel := context.WithTimeout(context.Background(), c.sourceTimeout)
	defer cancel()

	if err := c.store.Upsert(ctx, subject, src.Name, patch); err != nil {
		c.logger.Error("failed to persist fetched payload",
			"subject", subject, "source", src.Name, "error", err)
		c.events.Append(Event{
			Subject: subject,
			Time:    NowFunc(),
			Kind:    EventSourceFailed,
			Source:  src.Name,
			Message: err.Error(),
			ErrKind: ErrKindUnexpected,
		})
		return
	}

	c.events.Append(Event{
		Subject: subject,
		Time:    now,
		Kind:    EventSourceUpdated,
		Source:  src.Name,
	})
}

func (c *Coordinator) persistFailure(subject string, src Source, ferr *FetchError) {
	now := NowFunc()
	patch := FailurePatch(src.Default, ferr.Error(), now, c.errorTTL)

	ctx, cancel := context.WithTimeout(context.Background(), c.sourceTimeout)
	defer cancel()

	if err := c.store.Upsert(ctx, subject, src.Name, patch); err != nil {
		c.logger.Error("failed to persist fetch failure",
			"subject", subject, "source", src.Name, "error", err)
	}

	c.logger.Warn("source fetch failed",
		"subject", subject, "source", src.Name, "kind", string(ferr.Kind), "error", ferr.Msg)
	c.events.Append(Event{
		Subject: subject,
		Time:    now,
		Kind:    EventSourceFailed,
		Source:  src.Name,
		Message: ferr.Error(),
		ErrKind: ferr.Kind,
	})
}

// CoordinatorOption is a functional option for configuring a Coordinator
type CoordinatorOption func(*Coordinator)

// WithSuccessTTL sets how long a successfully fetched record stays fresh.
func WithSuccessTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.successTTL = ttl
	}
}

// WithErrorTTL sets the shortened freshness window applied after a failed
// fetch, so failing sources are retried sooner.
func WithErrorTTL(ttl time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.errorTTL = ttl
	}
}

// WithSourceTimeout sets the per-source fetch deadline. Each source's
// timeout is independent of its siblings and of the overall run.
func WithSourceTimeout(timeout time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		c.sourceTimeout = timeout
	}
}

// WithFetchConcurrency bounds how many source fetches may be in flight at
// once within a run.
func WithFetchConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.concurrency = n
	}
}

// WithEventLog sets the lifecycle event log. If not set, a log with
// DefaultEventLogSize entries is created.
func WithEventLog(events *EventLog) CoordinatorOption {
	return func(c *Coordinator) {
		c.events = events
	}
}

// WithLogger sets the logger for the coordinator.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}
