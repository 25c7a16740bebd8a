package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
)

func fixtureList() List {
	return List{
		{OSName: "fedora", Checksum: "aaa", Serial: 0, Index: 0, Booted: true},
		{OSName: "fedora", Checksum: "bbb", Serial: 0, Index: 1},
		{OSName: "fedora", Checksum: "ccc", Serial: 0, Index: 2},
		{OSName: "other", Checksum: "ddd", Serial: 0, Index: 3},
	}
}

func TestModel_Default(t *testing.T) {
	m := NewModel(fixtureList())
	d, ok := m.Default()
	require.True(t, ok)
	assert.Equal(t, "aaa", d.Checksum)
}

func TestModel_Default_EmptyList(t *testing.T) {
	m := NewModel(nil)
	_, ok := m.Default()
	assert.False(t, ok)
}

func TestModel_Booted(t *testing.T) {
	m := NewModel(fixtureList())
	d, ok := m.Booted()
	require.True(t, ok)
	assert.Equal(t, "aaa", d.Checksum)
}

func TestModel_Booted_NoneBooted(t *testing.T) {
	list := fixtureList()
	list[0].Booted = false
	m := NewModel(list)
	_, ok := m.Booted()
	assert.False(t, ok)
}

func TestModel_Rollback_FirstLaterSameOS(t *testing.T) {
	m := NewModel(fixtureList())
	rb, ok := m.Rollback()
	require.True(t, ok)
	assert.Equal(t, "bbb", rb.Checksum)
}

func TestModel_Rollback_IgnoresOtherOS(t *testing.T) {
	list := List{
		{OSName: "fedora", Checksum: "aaa", Serial: 0, Index: 0, Booted: true},
		{OSName: "other", Checksum: "zzz", Serial: 0, Index: 1},
	}
	m := NewModel(list)
	_, ok := m.Rollback()
	assert.False(t, ok)
}

func TestModel_Rollback_NoneWhenNotBooted(t *testing.T) {
	list := fixtureList()
	list[0].Booted = false
	m := NewModel(list)
	_, ok := m.Rollback()
	assert.False(t, ok)
}

func TestModel_ByID(t *testing.T) {
	m := NewModel(fixtureList())
	want := fixtureList()[2]
	d, ok := m.ByID(want.ID())
	require.True(t, ok)
	assert.Equal(t, want.Checksum, d.Checksum)
}

func TestModel_DefaultForOS_Missing(t *testing.T) {
	m := NewModel(fixtureList())
	_, err := m.DefaultForOS("nonexistent")
	require.Error(t, err)
	assert.True(t, ostreeerr.Is(err, ostreeerr.MissingDeployment))
}

func TestModel_ByOSName(t *testing.T) {
	m := NewModel(fixtureList())
	got := m.ByOSName("fedora")
	assert.Len(t, got, 3)
}
