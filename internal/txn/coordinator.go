package txn

import (
	"sync"

	"github.com/ostreedev/rpmostreed-core/internal/metrics"
	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
)

// Coordinator holds zero or one active Transaction and enforces §4.6's
// at-most-one-active-transaction gate, compatibility merge, and reboot
// serialization.
type Coordinator struct {
	mu        sync.Mutex
	active    *Transaction
	rebooting bool
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// PrepForTxn checks whether invocation can proceed. It returns (nil, nil)
// when the caller should construct a new Transaction, (txn, nil) when an
// active transaction is compatible and the caller should forward its
// endpoint address instead, or a Busy error otherwise.
func (c *Coordinator) PrepForTxn(invocation Invocation) (*Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rebooting {
		return nil, ostreeerr.New(ostreeerr.Busy, "reboot initiated")
	}
	if c.active == nil {
		return nil, nil
	}
	if c.active.Invocation().Equal(invocation) {
		return c.active, nil
	}
	return nil, ostreeerr.New(ostreeerr.Busy, "transaction in progress: %s", c.active.Title())
}

// Install registers t as the active transaction. Must be called before t
// emits any Finished signal, so that ActiveTransaction/ActiveTransactionPath
// are consistent for any observer that queries them concurrently (§4.6).
// t remains active through EXECUTED and lingering; it is cleared only when
// t transitions to CLOSED (force-close timer or last observer leaving).
func (c *Coordinator) Install(t *Transaction) {
	c.mu.Lock()
	c.active = t
	c.mu.Unlock()
	t.onLingerEnd = c.clear
	metrics.ActiveTransaction.Set(1)
}

func (c *Coordinator) clear(t *Transaction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == t {
		c.active = nil
		metrics.ActiveTransaction.Set(0)
	}
}

// ActiveTransaction returns the (method, sender, private-endpoint) triple
// for the active transaction, or three empty strings if none is active
// (§4.6, §8 P4).
func (c *Coordinator) ActiveTransaction() (method, sender, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return "", "", ""
	}
	inv := c.active.Invocation()
	return inv.Method, inv.Caller.BusAddress, c.active.EndpointAddress()
}

// ActiveTransactionPath returns the active transaction's private endpoint
// address, or "" if none is active. A compatibility-merged join always
// returns this same address (see DESIGN.md Open Question (a)): joining
// never rebinds it to a new transaction.
func (c *Coordinator) ActiveTransactionPath() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return ""
	}
	return c.active.EndpointAddress()
}

// Active returns the currently active transaction, or nil.
func (c *Coordinator) Active() *Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// SetRebooting marks the coordinator as refusing new transactions (§4.7
// Daemon.reboot: "After rebooting is set, prep_for_txn refuses new
// transactions").
func (c *Coordinator) SetRebooting(v bool) {
	c.mu.Lock()
	c.rebooting = v
	c.mu.Unlock()
}

// Rebooting reports whether the coordinator is refusing new transactions.
func (c *Coordinator) Rebooting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rebooting
}
