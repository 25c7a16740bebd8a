// Package diffcache implements the "cached-diff queries" mentioned in §6:
// per-OS package-diff results fronted by an in-memory LRU and persisted in
// bbolt so a result survives a daemon restart. Grounded on the teacher's
// pkg/storage bbolt bucket pattern for persistence and on
// ipiton-alert-history-service's use of hashicorp/golang-lru/v2 for its own
// cache layer.
package diffcache

import (
	"encoding/json"
	"fmt"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("diff_cache")

// PackageDiff is the cached result of a package-diff query between two
// deployments of the same osname. The diff computation itself (RPM
// metadata parsing) is out of scope per §1; this package only caches
// whatever opaque result the caller supplies.
type PackageDiff struct {
	FromID  string
	ToID    string
	Upgraded []PackageChange
	Downgraded []PackageChange
	Added   []string
	Removed []string
}

// PackageChange describes one package moving from one version to another.
type PackageChange struct {
	Name        string
	FromVersion string
	ToVersion   string
}

// Cache fronts a bbolt-backed store with an in-memory LRU, keyed on the
// (fromID, toID) pair being diffed.
type Cache struct {
	db  *bolt.DB
	lru *lru.Cache[string, PackageDiff]
}

// New opens (creating if needed) the diff-cache bucket in db and an
// in-memory LRU of size memCapacity entries.
func New(db *bolt.DB, memCapacity int) (*Cache, error) {
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		return nil, fmt.Errorf("diffcache: preparing bucket: %w", err)
	}

	l, err := lru.New[string, PackageDiff](memCapacity)
	if err != nil {
		return nil, fmt.Errorf("diffcache: creating lru: %w", err)
	}
	return &Cache{db: db, lru: l}, nil
}

func cacheKey(fromID, toID string) string {
	return fromID + ".." + toID
}

// Get returns a cached diff for (fromID, toID), checking the in-memory LRU
// first and falling back to the persistent bbolt store (populating the LRU
// on a bbolt hit).
func (c *Cache) Get(fromID, toID string) (PackageDiff, bool) {
	key := cacheKey(fromID, toID)
	if diff, ok := c.lru.Get(key); ok {
		return diff, true
	}

	var diff PackageDiff
	found := false
	_ = c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketName).Get([]byte(key))
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &diff); err != nil {
			return nil
		}
		found = true
		return nil
	})
	if found {
		c.lru.Add(key, diff)
	}
	return diff, found
}

// Put stores diff for (fromID, toID) in both the LRU and the persistent
// store.
func (c *Cache) Put(fromID, toID string, diff PackageDiff) error {
	key := cacheKey(fromID, toID)
	c.lru.Add(key, diff)

	data, err := json.Marshal(diff)
	if err != nil {
		return fmt.Errorf("diffcache: marshalling diff: %w", err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), data)
	})
}

// Invalidate drops any cached diff involving id as either endpoint, called
// when id's deployment is destroyed (§3 Deployment lifecycle).
func (c *Cache) Invalidate(id string) error {
	c.lru.Purge() // the LRU has no prefix-scan; a full purge is cheap and correct

	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)

		var stale [][]byte
		if err := b.ForEach(func(k, _ []byte) error {
			if strings.Contains(string(k), id) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}

		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}
