package profilex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookup(t *testing.T) {
	reg := testRegistry()

	assert.Equal(t, []string{"ens", "stats"}, reg.Names())

	src, ok := reg.Lookup("stats")
	require.True(t, ok)
	assert.Equal(t, "stats", src.Name)

	_, ok = reg.Lookup("unknown")
	assert.False(t, ok)
}

func TestRegistryValidation(t *testing.T) {
	assert.Panics(t, func() { NewRegistry() }, "empty registry")
	assert.Panics(t, func() {
		NewRegistry(testSource("", `{}`))
	}, "unnamed source")
	assert.Panics(t, func() {
		NewRegistry(testSource("ens", `{}`), testSource("ens", `{}`))
	}, "duplicate source")
}
