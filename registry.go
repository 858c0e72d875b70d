package profilex

import (
	"context"
	"encoding/json"
	"net/http"
)

// Source describes one upstream data provider contributing one facet of the
// aggregate profile. Sources are static configuration; the engine treats
// their payloads as opaque JSON.
type Source struct {
	// Name identifies the source; it is the second half of the record key.
	Name string

	// Default is the payload served when no record exists for the source.
	Default json.RawMessage

	// BuildRequest produces the HTTP request used to refresh subject.
	BuildRequest func(ctx context.Context, subject string) (*http.Request, error)
}

// Registry is the ordered, immutable set of registered sources.
type Registry struct {
	sources []Source
	byName  map[string]int
}

// NewRegistry creates a registry from the given sources.
func NewRegistry(sources ...Source) *Registry {
	if len(sources) == 0 {
		panic("at least one source is required")
	}

	byName := make(map[string]int, len(sources))
	for i, src := range sources {
		if src.Name == "" {
			panic("source name is required")
		}
		if _, dup := byName[src.Name]; dup {
			panic("duplicate source name: " + src.Name)
		}
		byName[src.Name] = i
	}

	return &Registry{
		sources: sources,
		byName:  byName,
	}
}

// Sources returns all sources in registration order.
func (r *Registry) Sources() []Source {
	return r.sources
}

// Lookup returns the source registered under name.
func (r *Registry) Lookup(name string) (Source, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Source{}, false
	}
	return r.sources[i], true
}

// Names returns all source names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.sources))
	for i, src := range r.sources {
		names[i] = src.Name
	}
	return names
}
