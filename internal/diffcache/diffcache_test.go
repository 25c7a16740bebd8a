package diffcache

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
)

func openTestDB(t *testing.T) *bolt.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diffcache.db")
	db, err := bolt.Open(path, 0600, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCache_PutGet(t *testing.T) {
	db := openTestDB(t)
	c, err := New(db, 8)
	require.NoError(t, err)

	diff := PackageDiff{
		FromID: "fedora_1", ToID: "fedora_2",
		Upgraded: []PackageChange{{Name: "kernel", FromVersion: "1.0", ToVersion: "1.1"}},
	}
	require.NoError(t, c.Put("fedora_1", "fedora_2", diff))

	got, ok := c.Get("fedora_1", "fedora_2")
	require.True(t, ok)
	assert.Equal(t, diff, got)
}

func TestCache_Miss(t *testing.T) {
	db := openTestDB(t)
	c, err := New(db, 8)
	require.NoError(t, err)

	_, ok := c.Get("a", "b")
	assert.False(t, ok)
}

func TestCache_SurvivesLRUEviction_ViaBolt(t *testing.T) {
	db := openTestDB(t)
	c, err := New(db, 1)
	require.NoError(t, err)

	require.NoError(t, c.Put("a", "b", PackageDiff{FromID: "a", ToID: "b"}))
	require.NoError(t, c.Put("c", "d", PackageDiff{FromID: "c", ToID: "d"})) // evicts a..b from the LRU

	got, ok := c.Get("a", "b")
	require.True(t, ok, "bbolt fallback must still find an LRU-evicted entry")
	assert.Equal(t, "a", got.FromID)
}

func TestCache_Invalidate(t *testing.T) {
	db := openTestDB(t)
	c, err := New(db, 8)
	require.NoError(t, err)

	require.NoError(t, c.Put("fedora_1", "fedora_2", PackageDiff{FromID: "fedora_1", ToID: "fedora_2"}))
	require.NoError(t, c.Invalidate("fedora_2"))

	_, ok := c.Get("fedora_1", "fedora_2")
	assert.False(t, ok)
}
