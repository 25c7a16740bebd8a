// Package sysroot implements SysrootView (§4.3): the object that binds to
// the on-disk store, watches it for change, and re-exports the ordered
// deployment list on mutation with a change-driven (not periodic) reload
// policy. The bbolt-backed dedup cache and fsnotify watch are grounded on
// the teacher's pkg/storage bucket-per-concern pattern and on
// ipiton-alert-history-service's indirect fsnotify dependency (via viper),
// adopted here directly as the idiomatic replacement for hand-rolled
// inotify syscalls.
package sysroot

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	bolt "go.etcd.io/bbolt"

	"github.com/ostreedev/rpmostreed-core/internal/deployment"
	"github.com/ostreedev/rpmostreed-core/internal/metrics"
	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
	"github.com/ostreedev/rpmostreed-core/internal/ostreelog"
)

var dedupBucket = []byte("sysroot_reload_dedup")

// BootedRefProvider resolves which deployment is currently booted,
// standing in for the real daemon's commit/checkout machinery (out of
// scope per §1) and the host init system's ostree= kernel argument lookup.
type BootedRefProvider interface {
	// BootedID returns the id of the currently booted deployment, or "" if
	// it cannot be determined (e.g. not running under this store at all).
	BootedID() (string, error)
}

// StaticBootedRef is a BootedRefProvider that always reports a fixed id,
// used by tests and by any caller that already knows the answer.
type StaticBootedRef string

func (s StaticBootedRef) BootedID() (string, error) { return string(s), nil }

// Loader reads the current deployment list and a change-detection stamp
// from the underlying store. The real implementation parses the store's
// on-disk origin files and boot loader config; this interface lets View
// stay agnostic of that machinery, which is out of scope per §1.
type Loader interface {
	Load() (deployment.List, Stamp, error)
}

// NoopLoader reports an always-empty, never-changing deployment list. It
// is the default Loader wired by cmd/rpmostreed when no real store-reading
// backend is available, the same role NoopInitSystem plays for rebooting.
type NoopLoader struct{}

func (NoopLoader) Load() (deployment.List, Stamp, error) {
	return deployment.List{}, Stamp{}, nil
}

// Stamp is the (repo-mtime, sysroot-generation) pair View compares against
// to decide whether a reload is needed (§4.3 "Reload policy").
type Stamp struct {
	RepoModTime time.Time
	Generation  int64
}

// Equal reports whether two stamps represent the same observed state.
func (s Stamp) Equal(o Stamp) bool {
	return s.RepoModTime.Equal(o.RepoModTime) && s.Generation == o.Generation
}

// View is SysrootView (§4.3): the daemon's single read-mostly binding to
// the on-disk store.
type View struct {
	path     string
	loader   Loader
	booted   BootedRefProvider
	db       *bolt.DB
	cacheKey []byte

	mu        sync.RWMutex
	model     deployment.Model
	lastStamp Stamp
	loaded    bool
	updateCh  chan struct{}
	lockHeld  bool
	watcher   *fsnotify.Watcher
	stopWatch chan struct{}
}

// Option configures New.
type Option func(*View)

// WithCacheDB persists the last-observed stamp in db under bucket
// dedupBucket. New reads the stored stamp back, but its own initial load
// always runs and replaces it, so the stored value does not suppress any
// reload.
func WithCacheDB(db *bolt.DB) Option {
	return func(v *View) { v.db = db }
}

// New binds to path, using loader to read the store and booted to resolve
// the running deployment. The watched directory is path itself; callers
// typically pass the sysroot's state directory.
func New(path string, loader Loader, booted BootedRefProvider, opts ...Option) (*View, error) {
	v := &View{
		path:      path,
		loader:    loader,
		booted:    booted,
		cacheKey:  []byte(path),
		updateCh:  make(chan struct{}, 1),
		stopWatch: make(chan struct{}),
	}
	for _, o := range opts {
		o(v)
	}

	if v.db != nil {
		if err := v.db.Update(func(tx *bolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(dedupBucket)
			return err
		}); err != nil {
			return nil, fmt.Errorf("sysroot: preparing dedup bucket: %w", err)
		}
		if stamp, ok := v.loadCachedStamp(); ok {
			v.lastStamp = stamp
		}
	}

	if err := v.reload(); err != nil {
		return nil, err
	}

	return v, nil
}

// Watch starts the fsnotify watch on path and reloads on every
// notification that actually advances the stamp (§4.3). It runs until
// Close is called; errors from the watcher
// itself are logged, not returned, since the view already loaded
// successfully in New.
func (v *View) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("sysroot: creating watcher: %w", err)
	}
	if err := w.Add(v.path); err != nil {
		w.Close()
		return fmt.Errorf("sysroot: watching %s: %w", v.path, err)
	}
	v.watcher = w

	go func() {
		for {
			select {
			case _, ok := <-w.Events:
				if !ok {
					return
				}
				if err := v.reload(); err != nil {
					ostreelog.Logger.Warn().Err(err).Msg("sysroot reload failed, will retry on next notification")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				ostreelog.Logger.Warn().Err(err).Msg("sysroot watcher error")
			case <-v.stopWatch:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher, if running.
func (v *View) Close() error {
	close(v.stopWatch)
	if v.watcher != nil {
		return v.watcher.Close()
	}
	return nil
}

// reload re-reads the store if the loader's stamp has advanced past the
// last observed one. A failed reload does not update the cached stamp, so
// the next notification retries (§4.3).
func (v *View) reload() error {
	list, stamp, err := v.loader.Load()
	if err != nil {
		return ostreeerr.Wrap(ostreeerr.InvalidSysroot, err)
	}

	v.mu.RLock()
	unchanged := v.loaded && v.lastStamp.Equal(stamp)
	v.mu.RUnlock()
	if unchanged {
		return nil
	}

	model := deployment.NewModel(list)
	// Resolve "booted" from the injected provider when the loader itself
	// didn't already flag it (loaders may do either).
	if model.BootedID() == "" {
		if id, err := v.booted.BootedID(); err == nil && id != "" {
			for i := range list {
				if list[i].ID() == id {
					list[i].Booted = true
				}
			}
			model = deployment.NewModel(list)
		}
	}

	v.mu.Lock()
	v.model = model
	v.lastStamp = stamp
	v.loaded = true
	v.mu.Unlock()

	v.storeCachedStamp(stamp)
	metrics.DeploymentsTotal.Set(float64(len(list)))

	select {
	case v.updateCh <- struct{}{}:
	default:
	}
	return nil
}

// Model returns the current deployment snapshot (§8 P8: reflects any
// observed change before the next Updated() receive returns).
func (v *View) Model() deployment.Model {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.model
}

// Updated returns a channel that receives once per observed change. It is
// buffered by 1 and coalesces bursts, matching the "emit an updated signal
// exactly once per change" contract without guaranteeing delivery of every
// intermediate state.
func (v *View) Updated() <-chan struct{} {
	return v.updateCh
}

// Rescan forces an immediate reload, used by Daemon's config-reload path
// (§4.7 "asks the SysrootView to re-scan").
func (v *View) Rescan() error {
	return v.reload()
}

func (v *View) stampCacheKey() []byte {
	return v.cacheKey
}

func (v *View) loadCachedStamp() (Stamp, bool) {
	var stamp Stamp
	found := false
	_ = v.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dedupBucket)
		data := b.Get(v.stampCacheKey())
		if data == nil {
			return nil
		}
		var raw cachedStamp
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil
		}
		stamp = Stamp{RepoModTime: time.Unix(0, raw.RepoModTimeUnixNano), Generation: raw.Generation}
		found = true
		return nil
	})
	return stamp, found
}

func (v *View) storeCachedStamp(stamp Stamp) {
	if v.db == nil {
		return
	}
	raw := cachedStamp{RepoModTimeUnixNano: stamp.RepoModTime.UnixNano(), Generation: stamp.Generation}
	data, err := json.Marshal(raw)
	if err != nil {
		return
	}
	if err := v.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(dedupBucket).Put(v.stampCacheKey(), data)
	}); err != nil {
		ostreelog.Logger.Warn().Err(err).Msg("sysroot: persisting reload stamp failed")
	}
}

type cachedStamp struct {
	RepoModTimeUnixNano int64
	Generation          int64
}

// BootedID is a convenience accessor mirroring deployment.Model.BootedID
// against the view's current snapshot.
func (v *View) BootedID() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.model.BootedID()
}

// TryLock implements txn.Locker: the mutation lock a Transaction holds
// over the store for the duration of its body (§5). Exclusivity is
// enforced in-process; a real multi-process deployment would additionally
// flock the repository directory, which is store machinery out of scope
// per §1.
func (v *View) TryLock() (func(), bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lockHeld {
		return nil, false
	}
	v.lockHeld = true
	return v.unlock, true
}

func (v *View) unlock() {
	v.mu.Lock()
	v.lockHeld = false
	v.mu.Unlock()
}
