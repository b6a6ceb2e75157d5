package trigger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	tr := New(Over, 90, 10, 0.05, true)
	reg.Register("cpu_high", tr)

	got, ok := reg.Get("cpu_high")
	require.True(t, ok)
	assert.Same(t, tr, got)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
}

func TestRegistryListReturnsEveryRegisteredTrigger(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a", New(Over, 90, 10, 0, true))
	reg.Register("b", New(Under, 50, 5, 0, false))

	names := map[string]bool{}
	for _, n := range reg.List() {
		names[n.Name] = true
	}
	assert.True(t, names["a"])
	assert.True(t, names["b"])
	assert.Len(t, reg.List(), 2)
}

func TestKindStringRoundTripsFactoryTags(t *testing.T) {
	assert.Equal(t, "over_threshold", Over.String())
	assert.Equal(t, "under_threshold", Under.String())
}
