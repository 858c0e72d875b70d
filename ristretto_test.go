package profilex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRistrettoResponsesBasics(t *testing.T) {
	ctx := context.Background()
	cache, err := NewRistrettoResponses(time.Minute, 1<<20)
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, cache.Close())
	}()

	_, ok, err := cache.Get(ctx, "alice.eth")
	require.NoError(t, err)
	assert.False(t, ok, "miss before any write")

	require.NoError(t, cache.Set(ctx, "alice.eth", []byte(`{"subject":"alice.eth"}`)))

	data, ok, err := cache.Get(ctx, "alice.eth")
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"subject":"alice.eth"}`, string(data))

	require.NoError(t, cache.Del(ctx, "alice.eth"))
	_, ok, err = cache.Get(ctx, "alice.eth")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRistrettoResponsesRejectsBadTTL(t *testing.T) {
	_, err := NewRistrettoResponses(0, 1<<20)
	assert.Error(t, err)
}
