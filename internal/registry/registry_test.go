package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResolver struct{ unit string }

func (f fakeResolver) Resolve(string) (*uint32, *uint32, string) {
	uid, pid := uint32(1000), uint32(42)
	return &uid, &pid, f.unit
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := New(fakeResolver{unit: "myagent.service"})
	r.Register(":1.1", "cli")

	c, ok := r.Lookup(":1.1")
	require.True(t, ok)
	assert.Equal(t, "cli", c.ID)
	assert.Equal(t, "myagent.service", c.Unit)
	require.NotNil(t, c.UID)
	assert.Equal(t, uint32(1000), *c.UID)
	assert.Equal(t, 1, r.Size())
}

func TestRegistry_Unregister(t *testing.T) {
	r := New(nil)
	r.Register(":1.1", "cli")
	r.Unregister(":1.1")
	assert.Equal(t, 0, r.Size())
	_, ok := r.Lookup(":1.1")
	assert.False(t, ok)
}

func TestRegistry_EnsureTransactionInitiator_DoesNotOverwriteExisting(t *testing.T) {
	r := New(nil)
	c := r.Register(":1.1", "cli")
	got := r.EnsureTransactionInitiator(":1.1")
	assert.Same(t, c, got)
}

func TestRegistry_EnsureTransactionInitiator_Lazy(t *testing.T) {
	r := New(nil)
	c := r.EnsureTransactionInitiator(":1.9")
	assert.Equal(t, ":1.9", c.BusAddress)
	assert.Equal(t, 1, r.Size())
}

func TestRegistry_Format_FallsBackToAddress(t *testing.T) {
	r := New(nil)
	assert.Equal(t, ":1.1", r.Format(":1.1"))
}

func TestRegistry_Format_UsesIDAndUnit(t *testing.T) {
	r := New(fakeResolver{unit: "myagent.service"})
	r.Register(":1.1", "cli")
	assert.Equal(t, "cli (myagent.service)", r.Format(":1.1"))
}
