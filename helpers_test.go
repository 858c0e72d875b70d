package profilex

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
)

// testSource builds a source whose request points at a placeholder URL;
// tests that exercise real HTTP use httptest servers instead.
func testSource(name string, defaultPayload string) Source {
	return Source{
		Name:    name,
		Default: json.RawMessage(defaultPayload),
		BuildRequest: func(ctx context.Context, subject string) (*http.Request, error) {
			return http.NewRequestWithContext(ctx, http.MethodGet, "http://provider.invalid/"+name+"/"+subject, nil)
		},
	}
}

func testRegistry() *Registry {
	return NewRegistry(
		testSource("ens", `{"name":null,"avatar":null}`),
		testSource("stats", `{"followers":0,"posts":0}`),
	)
}

// stubFetcher is a programmable Fetcher that counts calls per source.
type stubFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]func(ctx context.Context, subject string) (json.RawMessage, error)
}

var _ Fetcher = &stubFetcher{}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		calls:    make(map[string]int),
		handlers: make(map[string]func(ctx context.Context, subject string) (json.RawMessage, error)),
	}
}

func (f *stubFetcher) respond(source string, fn func(ctx context.Context, subject string) (json.RawMessage, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[source] = fn
}

func (f *stubFetcher) respondPayload(source string, payload string) {
	f.respond(source, func(context.Context, string) (json.RawMessage, error) {
		return json.RawMessage(payload), nil
	})
}

func (f *stubFetcher) respondError(source string, err error) {
	f.respond(source, func(context.Context, string) (json.RawMessage, error) {
		return nil, err
	})
}

func (f *stubFetcher) Fetch(ctx context.Context, src Source, subject string) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls[src.Name]++
	handler := f.handlers[src.Name]
	f.mu.Unlock()

	if handler == nil {
		return json.RawMessage(`{"fetched":true}`), nil
	}
	return handler(ctx, subject)
}

func (f *stubFetcher) count(source string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[source]
}

func (f *stubFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}
