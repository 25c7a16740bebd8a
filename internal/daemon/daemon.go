// Package daemon implements the top-level Daemon singleton (§4.7): idle
// exit with jitter, config reload, and the one-shot reboot path. Grounded
// on cmd/warren/main.go's cobra root-command + OnInitialize wiring for how
// config and logging are assembled at startup; the idle-exit timer itself
// has no teacher equivalent (warren never self-exits) and is new code
// built to spec.
package daemon

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/ostreedev/rpmostreed-core/internal/config"
	"github.com/ostreedev/rpmostreed-core/internal/metrics"
	"github.com/ostreedev/rpmostreed-core/internal/ostreelog"
	"github.com/ostreedev/rpmostreed-core/internal/registry"
	"github.com/ostreedev/rpmostreed-core/internal/sysroot"
	"github.com/ostreedev/rpmostreed-core/internal/txn"
)

// InitSystem requests the actual reboot, standing in for the host init
// system collaborator named out of scope in §1.
type InitSystem interface {
	RequestReboot() error
}

// NoopInitSystem logs instead of rebooting, used by tests and any
// environment without a real init system to talk to.
type NoopInitSystem struct{}

func (NoopInitSystem) RequestReboot() error {
	ostreelog.Logger.Warn().Msg("reboot requested but no init system is wired")
	return nil
}

// Daemon is the process-wide singleton (§4.7, §3 "Ownership").
type Daemon struct {
	mu          sync.Mutex
	cfg         config.Config
	clients     *registry.Registry
	view        *sysroot.View
	coordinator *txn.Coordinator
	initSystem  InitSystem

	running   bool
	rebooting bool
	idle      bool
	idleTimer *time.Timer
	status    string

	// onIdleExit is invoked when the idle-exit timer fires; overridable for
	// tests, defaults to requesting process exit via Exit.
	onIdleExit func()
	Exit       func(code int)
}

// New constructs a Daemon over already-built collaborators. cfg is copied
// so later ReloadConfig calls don't race the caller's own copy.
func New(cfg config.Config, clients *registry.Registry, view *sysroot.View, coordinator *txn.Coordinator, initSystem InitSystem) *Daemon {
	if initSystem == nil {
		initSystem = NoopInitSystem{}
	}
	d := &Daemon{
		cfg:         cfg,
		clients:     clients,
		view:        view,
		coordinator: coordinator,
		initSystem:  initSystem,
		Exit:        func(int) {},
	}
	d.onIdleExit = d.defaultIdleExit
	return d
}

func (d *Daemon) defaultIdleExit() {
	metrics.IdleExitsTotal.Inc()
	ostreelog.Journal("rpmostreed.idle-exit", "exiting due to idle timeout", "", nil)
	d.Exit(0)
}

// Run drives the 1 Hz idle-check ticker (§4.7: "a secondary 1-Hz ticker
// while idle keeps the exported status string current") until ctx is
// cancelled.
func (d *Daemon) Run(ctx context.Context) {
	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	d.tick()
	for {
		select {
		case <-ticker.C:
			d.tick()
		case <-ctx.Done():
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
			return
		}
	}
}

func (d *Daemon) tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reconcileIdleLocked()
	d.status = d.formatStatusLocked()
}

// isIdleLocked reports whether the process is idle per §4.7: no active
// transaction, empty client registry, and a positive configured timeout.
func (d *Daemon) isIdleLocked() bool {
	if d.cfg.DisableIdleExitForTest || d.cfg.IdleExitTimeout <= 0 {
		return false
	}
	if d.coordinator.Active() != nil {
		return false
	}
	return d.clients.Size() == 0
}

func (d *Daemon) reconcileIdleLocked() {
	idleNow := d.isIdleLocked()
	switch {
	case idleNow && !d.idle:
		d.idle = true
		jitter := time.Duration(rand.Float64() * float64(5*time.Second))
		delay := d.cfg.IdleExitTimeout + jitter
		d.idleTimer = time.AfterFunc(delay, d.onIdleExit)
	case !idleNow && d.idle:
		d.idle = false
		if d.idleTimer != nil {
			d.idleTimer.Stop()
			d.idleTimer = nil
		}
	}
}

func (d *Daemon) formatStatusLocked() string {
	if d.rebooting {
		return "rebooting"
	}
	if d.idle {
		return "idle"
	}
	if d.coordinator.Active() != nil {
		return "busy"
	}
	return "ready"
}

// Status returns the daemon's current human-readable status string.
func (d *Daemon) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

// Config returns the daemon's current resolved configuration.
func (d *Daemon) Config() config.Config {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}

// ReloadConfig re-reads path, remaps scalar properties, asks the
// SysrootView to re-scan, and recomputes idle state (§4.7 "Config
// reload is idempotent and safe at any time").
func (d *Daemon) ReloadConfig(path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("daemon: reloading config: %w", err)
	}

	d.mu.Lock()
	d.cfg = *cfg
	d.mu.Unlock()

	if err := d.view.Rescan(); err != nil {
		return fmt.Errorf("daemon: rescanning sysroot: %w", err)
	}

	d.tick()
	return nil
}

// Reboot sets the one-shot rebooting flag (after which PrepForTxn refuses
// new transactions, §4.6) and asynchronously asks the init system to
// perform the actual reboot, so the requesting client's reply is not
// blocked on it (§4.7).
func (d *Daemon) Reboot() {
	d.mu.Lock()
	d.rebooting = true
	d.mu.Unlock()
	d.coordinator.SetRebooting(true)

	go func() {
		if err := d.initSystem.RequestReboot(); err != nil {
			ostreelog.Logger.Error().Err(err).Msg("reboot request failed")
		}
	}()
}

// Rebooting reports whether Reboot has been called.
func (d *Daemon) Rebooting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rebooting
}

// Running reports whether Run's main loop is active.
func (d *Daemon) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}
