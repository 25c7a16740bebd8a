// Package registry tracks connected callers (§4.4 ClientRegistry): bus
// address, optional caller-declared id, uid/pid, and the service unit the
// pid belongs to. Entries are removed only by an explicit Unregister; the
// registry does not itself watch for caller disconnects.
package registry

import (
	"sync"

	"github.com/google/uuid"
)

// Client is one registered caller (§3).
type Client struct {
	BusAddress string
	ID         string // caller-provided label, from RegisterClient's "id" key
	UID        *uint32
	PID        *uint32
	Unit       string // service-unit owning PID, user-unit preferred
}

// UnitResolver looks up the uid, pid, and owning service unit for a bus
// address, standing in for the bus broker's GetConnectionUnixUser /
// GetConnectionUnixProcessID calls plus the init system's unit lookup
// (both named as external collaborators in §4.4 and out of scope per §1).
type UnitResolver interface {
	Resolve(busAddress string) (uid *uint32, pid *uint32, unit string)
}

// NoopResolver leaves uid/pid/unit unset; used where no bus broker or init
// system is available (tests, non-Linux platforms).
type NoopResolver struct{}

func (NoopResolver) Resolve(string) (*uint32, *uint32, string) { return nil, nil, "" }

// Registry is the daemon's single ClientRegistry. All methods are intended
// to run on the daemon's main goroutine (§5 "ClientRegistry is
// main-thread-only"); the mutex here is defense for incidental concurrent
// reads (Size/Format from other goroutines), not a concurrency model.
type Registry struct {
	mu       sync.Mutex
	clients  map[string]*Client
	resolver UnitResolver
}

// New builds an empty registry using resolver for uid/pid/unit lookups.
func New(resolver UnitResolver) *Registry {
	if resolver == nil {
		resolver = NoopResolver{}
	}
	return &Registry{clients: make(map[string]*Client), resolver: resolver}
}

// Register records busAddress with the given caller-declared id, resolving
// uid/pid/unit via the configured resolver. Safe to call again for an
// already-registered address; it replaces the entry.
func (r *Registry) Register(busAddress, id string) *Client {
	uid, pid, unit := r.resolver.Resolve(busAddress)
	c := &Client{BusAddress: busAddress, ID: id, UID: uid, PID: pid, Unit: unit}

	r.mu.Lock()
	r.clients[busAddress] = c
	r.mu.Unlock()
	return c
}

// EnsureTransactionInitiator lazily creates a record for busAddress if one
// doesn't already exist, for journal logging purposes only. Per §4.4 and
// DESIGN.md's Open Question (b), this synthesized entry is never watched
// for disconnect. It stays in the registry (and counts toward Size) until
// Unregister is called for the same address; a later explicit Register
// replaces it.
func (r *Registry) EnsureTransactionInitiator(busAddress string) *Client {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.clients[busAddress]; ok {
		return c
	}
	uid, pid, unit := r.resolver.Resolve(busAddress)
	c := &Client{BusAddress: busAddress, ID: uuid.NewString(), UID: uid, PID: pid, Unit: unit}
	r.clients[busAddress] = c
	return c
}

// Resolve reports the uid/pid/unit busAddress would get if registered,
// without recording anything. Used to authorize a caller that has no
// registry entry yet (e.g. its own first RegisterClient call).
func (r *Registry) Resolve(busAddress string) (uid *uint32, pid *uint32, unit string) {
	return r.resolver.Resolve(busAddress)
}

// Unregister removes busAddress, e.g. on an explicit UnregisterClient.
func (r *Registry) Unregister(busAddress string) {
	r.mu.Lock()
	delete(r.clients, busAddress)
	r.mu.Unlock()
}

// Size returns the number of registered clients, used by Daemon's idle
// check (§4.7).
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Lookup returns the registered client for busAddress, if any.
func (r *Registry) Lookup(busAddress string) (*Client, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clients[busAddress]
	return c, ok
}

// Format renders a client for inclusion in a log line: "id (unit)", using
// the bus address in place of an empty id, omitting the unit when unknown,
// and returning the bare bus address for an unregistered one.
func (r *Registry) Format(busAddress string) string {
	r.mu.Lock()
	c, ok := r.clients[busAddress]
	r.mu.Unlock()
	if !ok {
		return busAddress
	}
	return formatClient(c)
}

func formatClient(c *Client) string {
	s := c.BusAddress
	if c.ID != "" {
		s = c.ID
	}
	if c.Unit != "" {
		s += " (" + c.Unit + ")"
	}
	return s
}
