package profilex

import "context"

// ResponseCache is a short-lived cache of serialized aggregate responses,
// placed in front of the HTTP API to absorb request bursts for hot
// subjects. Entries expire on their own; a miss is not an error.
type ResponseCache interface {
	// Get returns the cached response for key, with ok=false on a miss.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Set stores a response under key until the backend's TTL elapses.
	Set(ctx context.Context, key string, data []byte) error

	// Del drops the cached response for key, if any.
	Del(ctx context.Context, key string) error
}
