package profilex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBigCacheResponsesBasics(t *testing.T) {
	ctx := context.Background()
	cache, err := NewBigCacheResponses(ctx, time.Minute)
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

	assert.NoError(t, cache.Del(ctx, "never-set"), "deleting a missing key is not an error")
}

func TestBigCacheResponsesRejectsBadTTL(t *testing.T) {
	_, err := NewBigCacheResponses(context.Background(), 0)
	assert.Error(t, err)
}
