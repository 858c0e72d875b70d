package profilex

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/pkg/errors"
)

// RistrettoResponses is a ResponseCache backed by ristretto, for deployments
// that want admission-controlled memory bounds instead of BigCache's shard
// windows.
type RistrettoResponses struct {
	cache *ristretto.Cache[string, []byte]
	ttl   time.Duration
}

var _ ResponseCache = &RistrettoResponses{}

// NewRistrettoResponses creates a response cache whose entries expire after
// ttl and whose total size stays under maxBytes.
func NewRistrettoResponses(ttl time.Duration, maxBytes int64) (*RistrettoResponses, error) {
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	if maxBytes <= 0 {
		maxBytes = 64 << 20
	}

	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 1e5,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create ristretto cache")
	}

	return &RistrettoResponses{
		cache: cache,
		ttl:   ttl,
	}, nil
}

// Get returns the cached response for key.
func (r *RistrettoResponses) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, found := r.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	return data, true, nil
}

// Set stores a response under key, costed by its size. Admission rejection
// is not an error; the next request simply reads the store again.
func (r *RistrettoResponses) Set(_ context.Context, key string, data []byte) error {
	if r.cache.SetWithTTL(key, data, int64(len(data)), r.ttl) {
		// Wait ensures buffered writes are applied before returning, so a
		// burst right after Set actually hits the cache.
		r.cache.Wait()
	}
	return nil
}

// Del drops the cached response for key.
func (r *RistrettoResponses) Del(_ context.Context, key string) error {
	r.cache.Del(key)
	r.cache.Wait()
	return nil
}

// Close closes the cache and stops all background goroutines
func (r *RistrettoResponses) Close() error {
	r.cache.Close()
	return nil
}
