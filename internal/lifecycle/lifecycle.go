// Package lifecycle implements the Server Lifecycle state machine
// (spec.md §4.5): the single actor that is the sole writer of
// internal/state's Tracker, serializing every proposed transition
// through one channel so state changes are linearizable (spec.md §5).
// It is grounded on the teacher's atomic-field discipline in
// pkg/proxy/connection.go, generalized into a dedicated actor goroutine,
// and on elhedran-minecraft-watcher's ticker-driven poll loop for the
// idle/unreachable watchers.
package lifecycle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"go.lazytran.dev/lazytran/internal/probe"
	"go.lazytran.dev/lazytran/internal/procctl"
	"go.lazytran.dev/lazytran/internal/state"
)

// pollIntervalStarting/probeTimeoutStarting are spec.md §4.4's fixed
// Starting-phase cadence ("every 2 s with 10 s connect timeout"); only the
// Started-phase cadence is operator-tunable via Config.PollIntervalStarted.
const (
	pollIntervalStarting = 2 * time.Second
	probeTimeoutStarting = 10 * time.Second
	probeTimeoutStarted  = 3 * time.Second
)

// Config carries the subset of ConfigSpec the actor needs (spec.md §3's
// BackendEndpoint/IdleTimer fields plus the crash/lockout policy knobs
// from §4.5's transition table).
type Config struct {
	StartTimeout        time.Duration // not read by the actor: a running backend that never answers a probe stays Starting
	IdleTimeout         time.Duration // Started -> Stopping after this many idle seconds
	PollIntervalStarted time.Duration // Status Prober cadence while Started (spec.md §4.4)
	RestartOnCrash      bool
	FreezeProcess       bool
	WakeOnCrash         bool // a Status-intent connection also wakes a Crashed backend
	WakeOnStatus        bool // a Status-intent connection also wakes a Stopped backend
	LockoutEnabled      bool // cfg.Lockout.Enabled: reject every login intent from startup
}

// proposal is the only way any goroutine asks the actor to change state;
// the actor goroutine is the sole place ValidTransition is consulted and
// Tracker.SetState is called.
type proposal struct {
	to     state.Server
	reason string
}

// Actor drives the Tracker through spec.md §4.5's transition graph.
type Actor struct {
	cfg     Config
	tracker *state.Tracker
	proc    *procctl.Controller
	prober  *probe.Prober

	propose chan proposal
	wake    singleflight.Group

	notifyMu sync.Mutex
	notifyCh chan struct{}

	idleSeconds       int
	unreachableStreak int
	lockedOut         atomic.Bool
}

// New builds an Actor. Run must be called to start its goroutines.
func New(tracker *state.Tracker, proc *procctl.Controller, prober *probe.Prober, cfg Config) *Actor {
	if cfg.PollIntervalStarted == 0 {
		cfg.PollIntervalStarted = 10 * time.Second
	}
	return &Actor{
		cfg:      cfg,
		tracker:  tracker,
		proc:     proc,
		prober:   prober,
		propose:  make(chan proposal, 8),
		notifyCh: make(chan struct{}),
	}
}

// Changed returns a channel that closes the next time the tracked state
// changes. Callers (e.g. the Join Dispatcher's Hold method) select on it
// and call Changed again for the next change.
func (a *Actor) Changed() <-chan struct{} {
	a.notifyMu.Lock()
	defer a.notifyMu.Unlock()
	return a.notifyCh
}

func (a *Actor) broadcast() {
	a.notifyMu.Lock()
	close(a.notifyCh)
	a.notifyCh = make(chan struct{})
	a.notifyMu.Unlock()
}

// RequestWake proposes Stopped->Starting, collapsing concurrent wake
// triggers from multiple racing clients into a single transition
// (spec.md §4.5 "Wake trigger", SPEC_FULL.md §10's singleflight wiring).
// It does nothing while LockedOut.
func (a *Actor) RequestWake(reason string) {
	if a.LockedOut() {
		return
	}
	_, _, _ = a.wake.Do("wake", func() (interface{}, error) {
		if a.tracker.Server() == state.Stopped || a.tracker.Server() == state.Crashed {
			a.sendPropose(proposal{to: state.Starting, reason: reason})
		}
		return nil, nil
	})
}

// MaybeWakeOnStatus requests a wake on behalf of a Status-intent
// connection, gated on the operator's opt-in (spec.md §4.5: "Status-intent
// when wake_on_crash/wake_on_status configured"): wake_on_crash covers a
// Crashed backend, wake_on_status covers a Stopped one. A Starting or
// Started backend needs no wake and is left alone either way.
func (a *Actor) MaybeWakeOnStatus(reason string) {
	switch a.tracker.Server() {
	case state.Crashed:
		if a.cfg.WakeOnCrash {
			a.RequestWake(reason)
		}
	case state.Stopped:
		if a.cfg.WakeOnStatus {
			a.RequestWake(reason)
		}
	}
}

// RequestLockout forces the tracked state to Stopped and rejects future
// wake triggers (spec.md §4.5 "any -> Stopped (frozen at Stopped)"). Used
// by the signal handler's shutdown drain; lockout.enabled at startup is
// read directly by LockedOut instead.
func (a *Actor) RequestLockout() {
	a.sendPropose(proposal{to: state.Stopped, reason: "lockout"})
}

// LockedOut reports whether the Join Dispatcher must reject every login
// intent right now: either an operator set lockout.enabled at startup, or
// a prior RequestLockout forced the backend to Stopped and nothing has
// transitioned it away from that since (spec.md §4.5, §6 lockout.*).
func (a *Actor) LockedOut() bool {
	return a.cfg.LockoutEnabled || a.lockedOut.Load()
}

func (a *Actor) sendPropose(p proposal) {
	select {
	case a.propose <- p:
	default:
		zap.S().Warnw("lifecycle: proposal channel full, dropping", "to", p.to, "reason", p.reason)
	}
}

// Run starts the actor's goroutines (poller, process watcher, idle
// watcher, and the single transition engine) and blocks until ctx is
// canceled or one of them returns an error.
func (a *Actor) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return a.pollLoop(ctx) })
	eg.Go(func() error { return a.watchProcess(ctx) })
	eg.Go(func() error { return a.idleLoop(ctx) })
	eg.Go(func() error { return a.engine(ctx) })
	return eg.Wait()
}

// engine is the sole writer of the Tracker: every transition, regardless
// of origin, is applied here after a ValidTransition check.
func (a *Actor) engine(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-a.propose:
			a.apply(p)
		}
	}
}

func (a *Actor) apply(p proposal) {
	from := a.tracker.Server()
	if !state.ValidTransition(from, p.to) {
		zap.S().Debugw("lifecycle: ignoring invalid transition", "from", from, "to", p.to, "reason", p.reason)
		return
	}
	if from == p.to {
		if p.reason == "lockout" {
			a.lockedOut.Store(true)
		}
		return
	}

	zap.S().Infow("lifecycle: transition", "from", from, "to", p.to, "reason", p.reason)

	switch p.to {
	case state.Starting:
		a.idleSeconds = 0
		a.unreachableStreak = 0
		if a.proc.Frozen() {
			if err := a.proc.Thaw(); err != nil {
				zap.S().Warnw("lifecycle: thaw failed, spawning fresh", "err", err)
				_ = a.proc.Spawn()
			}
		} else if err := a.proc.Spawn(); err != nil {
			zap.S().Errorw("lifecycle: spawn failed", "err", err)
			a.tracker.SetState(state.Crashed)
			a.broadcast()
			return
		}
	case state.Started:
		a.idleSeconds = 0
		a.unreachableStreak = 0
	case state.Stopping:
		go a.shutdownChild()
	case state.Stopped:
		if from != state.Stopping && a.proc.Running() {
			go a.shutdownChild()
		}
		a.lockedOut.Store(p.reason == "lockout")
	case state.Crashed:
		a.idleSeconds = 0
		if a.cfg.RestartOnCrash {
			go func() {
				time.Sleep(time.Second)
				a.sendPropose(proposal{to: state.Starting, reason: "restart_on_crash"})
			}()
		}
	}

	a.tracker.SetState(p.to)
	a.broadcast()
}

func (a *Actor) shutdownChild() {
	if a.cfg.FreezeProcess {
		if err := a.proc.Freeze(); err == nil {
			a.sendPropose(proposal{to: state.Stopped, reason: "freeze_complete"})
			return
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	_ = a.proc.Stop(ctx)
	// The process-exit event from watchProcess proposes Stopped; nothing
	// further to do here if Stop's ladder already drove it to exit.
}

// watchProcess turns procctl.Controller exit events into proposals:
// an exit while Stopping completes the Stopped transition; a crash
// (Event.Crashed) or any exit while still Starting proposes Crashed.
// Other exits propose nothing here and are left to pollLoop's
// unreachable streak.
func (a *Actor) watchProcess(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-a.proc.Events:
			if !ok {
				return nil
			}
			if !ev.Exited {
				continue
			}
			if a.tracker.Server() == state.Stopping {
				a.sendPropose(proposal{to: state.Stopped, reason: "child_exited"})
				continue
			}
			if ev.Crashed || a.tracker.Server() == state.Starting {
				a.sendPropose(proposal{to: state.Crashed, reason: "unexpected_exit"})
			}
		}
	}
}

// pollLoop runs the Status Prober, feeding its result into the
// Starting->Started transition and the "3x Unreachable -> Crashed" rule
// (spec.md §4.5). Cadence follows spec.md §4.4's differentiated ladder:
// every 2 s with a 10 s connect timeout while Starting (the backend is
// still booting and slow to answer), every cfg.PollIntervalStarted while
// Started.
func (a *Actor) pollLoop(ctx context.Context) error {
	timer := time.NewTimer(a.pollInterval())
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			a.pollOnce()
			timer.Reset(a.pollInterval())
		}
	}
}

func (a *Actor) pollInterval() time.Duration {
	if a.tracker.Server() == state.Starting {
		return pollIntervalStarting
	}
	return a.cfg.PollIntervalStarted
}

func (a *Actor) pollOnce() {
	cur := a.tracker.Server()
	if cur != state.Starting && cur != state.Started {
		return
	}

	timeout := probeTimeoutStarted
	if cur == state.Starting {
		timeout = probeTimeoutStarting
	}
	res := a.prober.Probe(timeout)
	if !res.Alive {
		a.unreachableStreak++
		if cur == state.Started && a.unreachableStreak >= 3 {
			a.sendPropose(proposal{to: state.Crashed, reason: "unreachable_streak"})
		}
		return
	}

	a.unreachableStreak = 0
	if res.Players != nil {
		a.tracker.SetProbedPlayers(*res.Players)
	}
	a.tracker.SetProbedDescription(res.Description)
	if cur == state.Starting {
		a.sendPropose(proposal{to: state.Started, reason: "probe_alive"})
	}
}

// idleLoop implements spec.md §4.5's IdleTimer: counts seconds with zero
// players while Started, resetting on any proved presence, firing
// Started->Stopping at cfg.IdleTimeout.
func (a *Actor) idleLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if a.tracker.Server() != state.Started {
				a.idleSeconds = 0
				continue
			}
			if a.tracker.PlayerCount() > 0 {
				a.idleSeconds = 0
				continue
			}
			a.idleSeconds++
			if a.idleSeconds%60 == 0 {
				zap.S().Infof("lifecycle: idle for %ds, sleeping at %ds", a.idleSeconds, int(a.cfg.IdleTimeout/time.Second))
			}
			if a.cfg.IdleTimeout > 0 && time.Duration(a.idleSeconds)*time.Second >= a.cfg.IdleTimeout {
				a.sendPropose(proposal{to: state.Stopping, reason: "idle_timeout"})
			}
		}
	}
}
