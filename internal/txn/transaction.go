// Package txn implements the Transaction and TransactionCoordinator (§4.5,
// §4.6): the single mutating unit of work that holds the store's exclusive
// lock, broadcasts progress to every connected observer, and lingers after
// completion so late joiners can replay its result.
package txn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ostreedev/rpmostreed-core/internal/metrics"
	"github.com/ostreedev/rpmostreed-core/internal/ostreeerr"
)

// ForceCloseTimeout is the fixed lingering window (§4.5, §5) after which an
// EXECUTED transaction is torn down even if no observer has disconnected.
const ForceCloseTimeout = 30 * time.Second

// State is one point in the Transaction lifecycle (§4.5).
type State int

const (
	StateWaitingStart State = iota
	StateRunning
	StateExecuted
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateWaitingStart:
		return "waiting_start"
	case StateRunning:
		return "running"
	case StateExecuted:
		return "executed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Caller identifies the bus peer that asked for a transaction (§3 Client).
type Caller struct {
	BusAddress string
	ID         string
	UID        *uint32
	PID        *uint32
	Unit       string
}

// Invocation names a single request: the method, its parameter tuple, and
// the caller that issued it.
type Invocation struct {
	Method string
	Params map[string]any
	Caller Caller
}

// Equal reports whether two invocations are "compatible" per §4.6: identical
// method name and value-equal parameter tuple. Dictionary key ordering is
// not significant.
func (inv Invocation) Equal(other Invocation) bool {
	return inv.Method == other.Method && paramsEqual(inv.Params, other.Params)
}

func paramsEqual(a, b map[string]any) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		ov, ok := b[k]
		if !ok || !valueEqual(v, ov) {
			return false
		}
	}
	return true
}

func valueEqual(a, b any) bool {
	if am, aok := a.(map[string]any); aok {
		bm, bok := b.(map[string]any)
		return bok && paramsEqual(am, bm)
	}
	if as, aok := a.([]any); aok {
		bs, bok := b.([]any)
		if !bok || len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !valueEqual(as[i], bs[i]) {
				return false
			}
		}
		return true
	}
	return a == b
}

// Result is a Transaction's terminal outcome, captured exactly once (§3).
type Result struct {
	Success bool
	Message string
}

// EventKind names the shape of one ProgressEvent.
type EventKind string

const (
	EventMessage          EventKind = "message"
	EventTaskBegin        EventKind = "task_begin"
	EventTaskEnd          EventKind = "task_end"
	EventPercentProgress  EventKind = "percent_progress"
	EventDownloadProgress EventKind = "download_progress"
	EventFinished         EventKind = "finished"
)

// ProgressEvent is one unit forwarded to every connected observer (§4.5
// "Progress multiplexing").
type ProgressEvent struct {
	Kind     EventKind
	Message  string
	Task     string
	Percent  uint32
	Fraction float64
	Result   *Result // set only when Kind == EventFinished
}

// Observer is a per-connection subscription to a Transaction's progress
// stream. Grounded on the teacher's pkg/events.Broker subscriber-channel
// shape: buffered, non-blocking send, drop on full.
type Observer chan ProgressEvent

const observerBuffer = 64

// Locker is the exclusive advisory lock a Transaction holds over the store
// for the duration of its body (§5 "Mutation lock"). sysroot.View
// implements it in the daemon; tests use a trivial in-memory stand-in.
type Locker interface {
	TryLock() (unlock func(), ok bool)
}

// Body is a transaction's mutating work. It must observe ctx cancellation
// at loop boundaries and before I/O (§5 "Suspension points") and returns a
// Cancelled-kind ostreeerr.Error when it does so.
type Body func(ctx context.Context, tx *Transaction) error

// Transaction is one logical mutation against the store (§3, §4.5).
type Transaction struct {
	id           string
	invocation   Invocation
	title        string
	endpointAddr string
	body         Body

	mu        sync.Mutex
	state     State
	result    *Result
	observers map[Observer]bool

	unlock      func()
	cancel      context.CancelFunc
	ctx         context.Context
	limiter     *rate.Limiter
	forceTimer  *time.Timer
	onLingerEnd func(*Transaction)

	done      chan struct{}
	stopWatch chan struct{}
	watchOnce sync.Once

	startedAt time.Time
}

// New constructs a transaction for invocation against locker and arms a
// watch on callerVanished (nil if the caller cannot be watched) so that a
// caller disconnecting before Start closes the transaction without running
// body (P9). Busy is returned if locker's lock is unavailable.
func New(invocation Invocation, title string, locker Locker, body Body, callerVanished <-chan struct{}) (*Transaction, error) {
	unlock, ok := locker.TryLock()
	if !ok {
		return nil, ostreeerr.New(ostreeerr.Busy, "transaction in progress: %s", title)
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transaction{
		id:           uuid.NewString(),
		invocation:   invocation,
		title:        title,
		endpointAddr: fmt.Sprintf("txn-%s", uuid.NewString()),
		body:         body,
		state:        StateWaitingStart,
		observers:    make(map[Observer]bool),
		unlock:       unlock,
		cancel:       cancel,
		ctx:          ctx,
		limiter:      rate.NewLimiter(rate.Limit(20), 40),
		done:         make(chan struct{}),
		stopWatch:    make(chan struct{}),
	}

	if callerVanished != nil {
		go func() {
			select {
			case <-callerVanished:
				t.Cancel()
			case <-t.stopWatch:
			}
		}()
	}

	return t, nil
}

// ID returns the transaction's internal identifier (not the D-Bus-style
// triple used in ActiveTransaction).
func (t *Transaction) ID() string { return t.id }

// Title is the human-readable transaction kind used in Busy error messages
// (§4.6: `"transaction in progress: {title}"`), grounded on
// rpmostreed_transaction_get_title in the original source.
func (t *Transaction) Title() string { return t.title }

// EndpointAddress is the private, per-transaction address callers connect
// to for Start/progress/Finished (§3, §6).
func (t *Transaction) EndpointAddress() string { return t.endpointAddr }

// Invocation returns the request this transaction was constructed for.
func (t *Transaction) Invocation() Invocation { return t.invocation }

// State returns the current lifecycle state.
func (t *Transaction) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start stops watching the caller for early vanish and dispatches body on a
// dedicated worker goroutine, returning true if this call actually started
// it. A second call (e.g. from a compatibility-joined caller) returns
// false; the joiner should instead Subscribe, which replays a cached
// Finished immediately if the transaction has already completed.
func (t *Transaction) Start() bool {
	t.watchOnce.Do(func() { close(t.stopWatch) })

	t.mu.Lock()
	if t.state != StateWaitingStart {
		t.mu.Unlock()
		return false
	}
	t.state = StateRunning
	t.startedAt = time.Now()
	t.mu.Unlock()

	go t.run()
	return true
}

func (t *Transaction) run() {
	err := t.body(t.ctx, t)

	res := Result{Success: err == nil}
	if err != nil {
		if ostreeerr.Is(err, ostreeerr.Cancelled) {
			res.Message = "cancelled"
		} else {
			res.Message = err.Error()
		}
	}

	outcome := "success"
	if !res.Success {
		outcome = "failure"
	}
	metrics.TransactionsTotal.WithLabelValues(t.invocation.Method, outcome).Inc()
	metrics.TransactionDuration.WithLabelValues(t.invocation.Method).Observe(time.Since(t.startedAt).Seconds())

	// Setting the cached result and snapshotting observers happen under the
	// same critical section Subscribe uses (P2/P3): a Subscribe that locks
	// before this one sees result == nil, is added to the map, and is
	// included below; a Subscribe that locks after this one sees the cached
	// result and replays it, but missed this snapshot. Either way an
	// observer gets exactly one Finished, never both.
	t.mu.Lock()
	t.unlock() // store lock released as soon as the body returns (§5)
	t.result = &res
	t.state = StateExecuted
	t.forceTimer = time.AfterFunc(ForceCloseTimeout, t.forceClose)
	close(t.done)
	targets := make([]Observer, 0, len(t.observers))
	for o := range t.observers {
		targets = append(targets, o)
	}
	t.mu.Unlock()

	ev := ProgressEvent{Kind: EventFinished, Result: &res}
	for _, o := range targets {
		select {
		case o <- ev:
		default:
		}
	}
}

// forceClose is the force-close timer's callback: it counts the teardown
// as forced (§4.5, §8 scenario 5) before running the ordinary Close path.
func (t *Transaction) forceClose() {
	metrics.ForceClosesTotal.Inc()
	t.Close()
}

// Cancel signals the cancellation token. Before Start it closes the
// transaction immediately without running body (P9, state diagram's
// WAITING_START -> CLOSED edge); afterward the body observes ctx at its
// next suspension point. A Cancel after EXECUTED is a no-op (§5).
func (t *Transaction) Cancel() {
	t.mu.Lock()
	switch t.state {
	case StateWaitingStart:
		t.state = StateClosed
		t.unlock()
		close(t.done)
		onEnd := t.onLingerEnd
		t.mu.Unlock()
		t.watchOnce.Do(func() { close(t.stopWatch) })
		if onEnd != nil {
			onEnd(t)
		}
	case StateRunning:
		t.mu.Unlock()
		t.cancel()
	default:
		t.mu.Unlock()
	}
}

// Finish blocks until the transaction reaches a terminal outcome and
// returns it. A transaction cancelled before Start yields (false,
// "cancelled").
func (t *Transaction) Finish() (bool, string) {
	<-t.done
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.result == nil {
		return false, "cancelled"
	}
	return t.result.Success, t.result.Message
}

// Subscribe registers obs as an observer of this transaction's progress
// stream. If the transaction has already reached EXECUTED, the cached
// Finished event is replayed on obs immediately (P3 late joiner).
func (t *Transaction) Subscribe() Observer {
	obs := make(Observer, observerBuffer)

	t.mu.Lock()
	t.observers[obs] = true
	cached := t.result
	t.mu.Unlock()

	if cached != nil {
		select {
		case obs <- ProgressEvent{Kind: EventFinished, Result: cached}:
		default:
		}
	}
	return obs
}

// Unsubscribe removes and closes obs. If this was the last observer of an
// EXECUTED transaction, the transaction closes immediately rather than
// waiting out the force-close timer (§4.5 state diagram).
func (t *Transaction) Unsubscribe(obs Observer) {
	t.mu.Lock()
	if _, ok := t.observers[obs]; !ok {
		t.mu.Unlock()
		return
	}
	delete(t.observers, obs)
	close(obs)
	shouldClose := t.state == StateExecuted && len(t.observers) == 0
	t.mu.Unlock()

	if shouldClose {
		t.Close()
	}
}

// Close tears the transaction down: stops the force-close timer, closes
// every remaining observer channel, and notifies the coordinator. Safe to
// call more than once.
func (t *Transaction) Close() {
	t.mu.Lock()
	if t.state == StateClosed {
		t.mu.Unlock()
		return
	}
	t.state = StateClosed
	if t.forceTimer != nil {
		t.forceTimer.Stop()
	}
	observers := t.observers
	t.observers = make(map[Observer]bool)
	onEnd := t.onLingerEnd
	t.mu.Unlock()

	for o := range observers {
		close(o)
	}
	if onEnd != nil {
		onEnd(t)
	}
}

func (t *Transaction) broadcast(ev ProgressEvent) {
	t.mu.Lock()
	targets := make([]Observer, 0, len(t.observers))
	for o := range t.observers {
		targets = append(targets, o)
	}
	t.mu.Unlock()

	for _, o := range targets {
		select {
		case o <- ev:
		default:
		}
	}
}

// EmitMessage forwards a plain diagnostic string to every observer.
func (t *Transaction) EmitMessage(msg string) {
	t.broadcast(ProgressEvent{Kind: EventMessage, Message: msg})
}

// EmitTaskBegin marks the start of a named sub-task.
func (t *Transaction) EmitTaskBegin(task string) {
	t.broadcast(ProgressEvent{Kind: EventTaskBegin, Task: task})
}

// EmitTaskEnd marks the end of a named sub-task.
func (t *Transaction) EmitTaskEnd(task string) {
	t.broadcast(ProgressEvent{Kind: EventTaskEnd, Task: task})
}

// EmitPercentProgress reports percent completion of task, throttled so a
// noisy body cannot flood slow observers.
func (t *Transaction) EmitPercentProgress(task string, percent uint32) {
	if t.limiter.Allow() {
		t.broadcast(ProgressEvent{Kind: EventPercentProgress, Task: task, Percent: percent})
	}
}

// EmitDownloadProgress reports fractional download progress of task,
// throttled identically to EmitPercentProgress.
func (t *Transaction) EmitDownloadProgress(task string, fraction float64) {
	if t.limiter.Allow() {
		t.broadcast(ProgressEvent{Kind: EventDownloadProgress, Task: task, Fraction: fraction})
	}
}
