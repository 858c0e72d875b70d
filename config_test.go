package profilex

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8000", cfg.Addr)
	assert.Equal(t, "profile_records", cfg.TableName)
	assert.Equal(t, time.Hour, cfg.SuccessTTL)
	assert.Equal(t, 5*time.Minute, cfg.ErrorTTL)
	assert.Equal(t, 2, cfg.FetchConcurrency)
	assert.Equal(t, 3, cfg.RefreshLimit)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("PROFILEX_ADDR", ":9090")
	t.Setenv("PROFILEX_SUCCESS_TTL", "30m")
	t.Setenv("PROFILEX_FETCH_CONCURRENCY", "4")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, 30*time.Minute, cfg.SuccessTTL)
	assert.Equal(t, 4, cfg.FetchConcurrency)
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	t.Setenv("PROFILEX_SUCCESS_TTL", "not-a-duration")

	_, err := LoadConfig()
	assert.Error(t, err)
}
