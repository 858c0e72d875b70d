package profilex

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

// Fetcher executes a source's request for a subject and returns the
// normalized payload. The returned error carries a FetchError classifying
// the failure.
type Fetcher interface {
	Fetch(ctx context.Context, src Source, subject string) (json.RawMessage, error)
}

// FetcherFunc is a function adapter that implements Fetcher
type FetcherFunc func(ctx context.Context, src Source, subject string) (json.RawMessage, error)

func (f FetcherFunc) Fetch(ctx context.Context, src Source, subject string) (json.RawMessage, error) {
	return f(ctx, src, subject)
}

// maxErrorBodyBytes bounds how much of a failing response body is kept for
// the record's lastError message.
const maxErrorBodyBytes = 512

// HTTPFetcher fetches provider payloads over HTTP with bounded retries.
// Retries happen inside the caller's per-source deadline; the deadline wins.
type HTTPFetcher struct {
	client *retryablehttp.Client
}

var _ Fetcher = &HTTPFetcher{}

// HTTPFetcherConfig holds configuration for HTTPFetcher
type HTTPFetcherConfig struct {
	// RetryMax is the number of retries per fetch after the first attempt.
	// Zero means the default of two; negative disables retries.
	RetryMax int

	// RetryWaitMin and RetryWaitMax bound the backoff between retries.
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	// HTTPClient overrides the underlying client (optional).
	HTTPClient *http.Client
}

// NewHTTPFetcher creates an HTTP fetcher. A nil config uses defaults: two
// retries with 250ms-2s backoff.
func NewHTTPFetcher(config *HTTPFetcherConfig) *HTTPFetcher {
	if config == nil {
		config = &HTTPFetcherConfig{}
	}

	client := retryablehttp.NewClient()
	client.Logger = nil
	switch {
	case config.RetryMax > 0:
		client.RetryMax = config.RetryMax
	case config.RetryMax < 0:
		client.RetryMax = 0
	default:
		client.RetryMax = 2
	}
	client.RetryWaitMin = config.RetryWaitMin
	if client.RetryWaitMin == 0 {
		client.RetryWaitMin = 250 * time.Millisecond
	}
	client.RetryWaitMax = config.RetryWaitMax
	if client.RetryWaitMax == 0 {
		client.RetryWaitMax = 2 * time.Second
	}
	if config.HTTPClient != nil {
		client.HTTPClient = config.HTTPClient
	}
	// Surface the final failing response instead of a "giving up" error, so
	// the status code reaches the error bookkeeping.
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler

	return &HTTPFetcher{client: client}
}

// Fetch builds the source's request, issues it, and returns the response
// body as an opaque JSON payload.
func (f *HTTPFetcher) Fetch(ctx context.Context, src Source, subject string) (json.RawMessage, error) {
	req, err := src.BuildRequest(ctx, subject)
	if err != nil {
		return nil, &FetchError{Kind: ErrKindUnexpected, Msg: errors.Wrap(err, "build request").Error()}
	}

	rreq, err := retryablehttp.FromRequest(req)
	if err != nil {
		return nil, &FetchError{Kind: ErrKindUnexpected, Msg: errors.Wrap(err, "wrap request").Error()}
	}
	rreq = rreq.WithContext(ctx)

	resp, err := f.client.Do(rreq)
	if err != nil {
		return nil, ClassifyFetchError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &FetchError{
			Kind:   ErrKindHTTP,
			Status: resp.StatusCode,
			Msg:    strings.TrimSpace(string(snippet)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ClassifyFetchError(err)
	}
	if !json.Valid(body) {
		return nil, &FetchError{Kind: ErrKindParse, Msg: "response is not valid JSON"}
	}
	return json.RawMessage(body), nil
}
