package profilex

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/pkg/errors"
)

// BigCacheResponses is a ResponseCache backed by BigCache. BigCache stores
// raw bytes, which matches the serialized responses exactly.
type BigCacheResponses struct {
	cache *bigcache.BigCache
}

var _ ResponseCache = &BigCacheResponses{}

// NewBigCacheResponses creates a response cache whose entries expire after
// ttl.
func NewBigCacheResponses(ctx context.Context, ttl time.Duration) (*BigCacheResponses, error) {
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}

	config := bigcache.DefaultConfig(ttl)
	// Responses are small and short-lived; keep the cache from reserving
	// the default half-gigabyte window.
	config.HardMaxCacheSize = 64

	cache, err := bigcache.New(ctx, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bigcache")
	}

	return &BigCacheResponses{cache: cache}, nil
}

// Get returns the cached response for key.
func (b *BigCacheResponses) Get(_ context.Context, key string) ([]byte, bool, error) {
	data, err := b.cache.Get(key)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to get response for key: %s", key)
	}
	return data, true, nil
}

// Set stores a response under key.
func (b *BigCacheResponses) Set(_ context.Context, key string, data []byte) error {
	if err := b.cache.Set(key, data); err != nil {
		return errors.Wrapf(err, "failed to set response for key: %s", key)
	}
	return nil
}

// Del drops the cached response for key.
func (b *BigCacheResponses) Del(_ context.Context, key string) error {
	err := b.cache.Delete(key)
	if err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
		return errors.Wrapf(err, "failed to delete response for key: %s", key)
	}
	return nil
}

// Close closes the cache and releases resources
func (b *BigCacheResponses) Close() error {
	if err := b.cache.Close(); err != nil {
		return errors.Wrap(err, "failed to close bigcache")
	}
	return nil
}
