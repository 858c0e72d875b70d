package profilex

import (
	"context"
	"fmt"
	"net"

	"github.com/pkg/errors"
)

// ErrRecordNotFound indicates that no record exists for a (subject, source)
// pair.
type ErrRecordNotFound struct {
	Subject string
	Source  string
}

// Error returns a string representation of the error
func (e *ErrRecordNotFound) Error() string {
	return fmt.Sprintf("no record for subject %q source %q", e.Subject, e.Source)
}

// IsErrRecordNotFound checks if the error is an ErrRecordNotFound
func IsErrRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *ErrRecordNotFound
	return errors.As(err, &e)
}

// ErrorKind tags the category of a failed provider fetch. The tag is
// persisted into lifecycle events and surfaced to introspection; all kinds
// are handled identically otherwise.
type ErrorKind string

const (
	ErrKindHTTP       ErrorKind = "http_error"
	ErrKindTimeout    ErrorKind = "timeout"
	ErrKindParse      ErrorKind = "parse_error"
	ErrKindUnexpected ErrorKind = "unexpected"
)

// FetchError describes a failed provider fetch.
type FetchError struct {
	Kind ErrorKind

	// Status is the HTTP status code, set for ErrKindHTTP only.
	Status int

	Msg string
}

// Error returns a string representation of the error
func (e *FetchError) Error() string {
	if e.Kind == ErrKindHTTP && e.Status != 0 {
		return fmt.Sprintf("provider returned status %d: %s", e.Status, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// ClassifyFetchError converts an arbitrary fetch failure into a FetchError.
// Errors that already carry a kind pass through unchanged; context deadline
// and network timeout errors become ErrKindTimeout; everything else is
// ErrKindUnexpected.
func ClassifyFetchError(err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: ErrKindTimeout, Msg: err.Error()}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: ErrKindTimeout, Msg: err.Error()}
	}

	return &FetchError{Kind: ErrKindUnexpected, Msg: err.Error()}
}
