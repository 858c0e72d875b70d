package profilex

import (
	"sync"
	"time"
)

// EventKind names a refresh lifecycle transition.
type EventKind string

const (
	EventRunStarted    EventKind = "run_started"
	EventRunCompleted  EventKind = "run_completed"
	EventRunFailed     EventKind = "run_failed"
	EventSourceUpdated EventKind = "source_updated"
	EventSourceFailed  EventKind = "source_failed"
)

// Event is one immutable refresh lifecycle entry. Events are observational
// only; the coordinator never reads them back.
type Event struct {
	Subject string    `json:"subject"`
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message,omitempty"`
	ErrKind ErrorKind `json:"errKind,omitempty"`
}

// EventLog is a fixed-capacity, most-recent-first buffer of lifecycle
// events. Oldest entries are evicted on overflow. Safe for concurrent use.
type EventLog struct {
	mu   sync.Mutex
	buf  []Event
	next int
	size int
}

// NewEventLog creates a log holding at most capacity events.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		panic("event log capacity must be positive")
	}
	return &EventLog{
		buf: make([]Event, capacity),
	}
}

// Append records an event, evicting the oldest entry when full.
func (l *EventLog) Append(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.buf[l.next] = e
	l.next = (l.next + 1) % len(l.buf)
	if l.size < len(l.buf) {
		l.size++
	}
}

// Recent returns up to n events, most recent first.
func (l *EventLog) Recent(n int) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n > l.size {
		n = l.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]Event, n)
	for i := range out {
		out[i] = l.buf[(l.next-1-i+2*len(l.buf))%len(l.buf)]
	}
	return out
}

// Len returns the number of events currently held.
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.size
}
