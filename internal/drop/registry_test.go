package drop

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryIDsMonotonic(t *testing.T) {
	reg := NewRegistry()

	a := reg.Register("first")
	b := reg.Register("second")
	c := reg.Register("third")

	assert.Equal(t, "drop_1", a)
	assert.Equal(t, "drop_2", b)
	assert.Equal(t, "drop_3", c)
	assert.Equal(t, 3, reg.Len())
}

func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register(42)

	v, ok := reg.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, 42, v)

	_, ok = reg.Lookup("drop_999")
	assert.False(t, ok)
}

func TestRegistryClearResetsEpoch(t *testing.T) {
	reg := NewRegistry()
	reg.Register("a")
	reg.Register("b")

	reg.Clear()
	assert.Equal(t, 0, reg.Len())

	// Ids restart from drop_1 so traces are comparable across cases.
	id := reg.Register("c")
	assert.Equal(t, "drop_1", id)

	v, ok := reg.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "c", v)
}

func TestRegistryClearDropsReferences(t *testing.T) {
	reg := NewRegistry()
	id := reg.Register("gone after clear")
	reg.Clear()

	_, ok := reg.Lookup(id)
	assert.False(t, ok)
}
