// Package dispatch implements the Join Dispatcher (spec.md §4.7): once
// the Router hands it a Login-intent connection with the Handshake and
// Login Start already buffered, it walks cfg.join.methods in order until
// one terminally handles the client, or splices immediately if the
// backend is already Started. The buffered-packet replay before splice
// is grounded on the teacher's session_client_play.go, which queues
// login-phase plugin messages in a gammazero/deque and replays them in
// order once the session moves on; here the deque holds the two frames
// (Handshake, Login Start) that must reach the backend byte-for-byte
// before the proxy stops interpreting the stream.
package dispatch

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gammazero/deque"
	"go.uber.org/zap"

	"go.lazytran.dev/lazytran/internal/errs"
	"go.lazytran.dev/lazytran/internal/lifecycle"
	"go.lazytran.dev/lazytran/internal/lobby"
	"go.lazytran.dev/lazytran/internal/netutil"
	"go.lazytran.dev/lazytran/internal/proto/packet"
	"go.lazytran.dev/lazytran/internal/state"
)

const (
	spliceBufferSize = 32 * 1024 // spec.md §4.7 Splice: "32 KiB each direction"
	dialTimeout      = 5 * time.Second
	writeTimeout     = 5 * time.Second
)

// Config carries the subset of ConfigSpec the dispatcher needs
// (spec.md §6, §4.7's join.* knobs).
type Config struct {
	Methods         []string // ordered subset of {hold, kick, forward, lobby}
	InternalBackend string   // loopback:internal_port, spec.md §4.7 Splice
	HoldTimeout     time.Duration

	KickStarting string
	KickStarted  string
	KickStopping string

	ForwardAddress string

	Lobby lobby.Config

	LockoutMessage string // spec.md §6 lockout.message, kicked while actor.LockedOut()
}

// Dispatcher routes one Login-intent client per spec.md §4.7.
type Dispatcher struct {
	cfg     Config
	tracker *state.Tracker
	actor   *lifecycle.Actor
}

// New builds a Dispatcher.
func New(tracker *state.Tracker, actor *lifecycle.Actor, cfg Config) *Dispatcher {
	if cfg.HoldTimeout == 0 {
		cfg.HoldTimeout = 25 * time.Second
	}
	if cfg.LockoutMessage == "" {
		cfg.LockoutMessage = "This server is temporarily locked."
	}
	return &Dispatcher{tracker: tracker, actor: actor, cfg: cfg}
}

// Dispatch handles one client connection through to a terminal outcome:
// splice, kick, or close. It always triggers a wake attempt first, since
// any Login-intent connection is a wake trigger (spec.md §4.5) — unless
// lockout mode is rejecting every login intent outright.
func (d *Dispatcher) Dispatch(ctx context.Context, fc *netutil.FrameConn, hs packet.Handshake, ls packet.LoginStart) error {
	if d.actor.LockedOut() {
		return d.kickLockedOut(fc)
	}

	d.actor.RequestWake("login:" + ls.Username)

	if d.tracker.Server() == state.Started {
		return d.splice(fc, hs, ls)
	}

	for _, method := range d.cfg.Methods {
		switch method {
		case "hold":
			handled, err := d.hold(ctx, fc, hs, ls)
			if handled {
				return err
			}
		case "kick":
			return d.kick(fc)
		case "forward":
			return d.forward(fc, hs, ls)
		case "lobby":
			return lobby.Run(ctx, fc, hs, ls, d.tracker, d.actor.Changed, d.cfg.Lobby)
		default:
			zap.S().Warnw("dispatch: unknown join method, skipping", "method", method)
		}
	}
	return fc.Close()
}

// hold keeps the socket open with no data sent, waiting for Started
// (spec.md §4.7 Hold). It reports handled=false on timeout so Dispatch
// falls through to the next configured method.
func (d *Dispatcher) hold(ctx context.Context, fc *netutil.FrameConn, hs packet.Handshake, ls packet.LoginStart) (bool, error) {
	deadline := time.NewTimer(d.cfg.HoldTimeout)
	defer deadline.Stop()
	changed := d.actor.Changed()

	for {
		if d.tracker.Server() == state.Started {
			return true, d.splice(fc, hs, ls)
		}
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-deadline.C:
			return false, nil
		case <-changed:
			changed = d.actor.Changed()
		}
	}
}

// kickLockedOut rejects a login intent during lockout mode (spec.md §4.5
// "any -> Stopped (frozen at Stopped): Reject all login intents").
func (d *Dispatcher) kickLockedOut(fc *netutil.FrameConn) error {
	_ = fc.WriteRaw(writeTimeout, packet.EncodeLoginDisconnect(d.cfg.LockoutMessage))
	_ = fc.Close()
	return errs.New(errs.KindLockedOut, "dispatch.Dispatch", fmt.Errorf("lockout mode is active"))
}

// kick sends a Login-state Disconnect carrying the message matching the
// current state, then closes (spec.md §4.7 Kick).
func (d *Dispatcher) kick(fc *netutil.FrameConn) error {
	msg := d.cfg.KickStarting
	switch d.tracker.Server() {
	case state.Started:
		msg = d.cfg.KickStarted
	case state.Stopping:
		msg = d.cfg.KickStopping
	}
	if msg == "" {
		msg = "Server is starting, please try again shortly."
	}
	_ = fc.WriteRaw(writeTimeout, packet.EncodeLoginDisconnect(msg))
	return fc.Close()
}

// forward dials cfg.join.forward.address, replays the buffered
// Handshake + Login Start, then splices. It is terminal regardless of
// outcome (spec.md §4.7 Forward).
func (d *Dispatcher) forward(fc *netutil.FrameConn, hs packet.Handshake, ls packet.LoginStart) error {
	defer fc.Close()

	backend, err := net.DialTimeout("tcp", d.cfg.ForwardAddress, dialTimeout)
	if err != nil {
		zap.S().Warnw("dispatch: forward dial failed", "address", d.cfg.ForwardAddress, "err", err)
		return err
	}
	backendFC := netutil.NewFrameConn(backend)
	defer backendFC.Close()
	d.tracker.AddLobbyHold(1)
	defer d.tracker.AddLobbyHold(-1)

	if err := replayBuffered(backendFC, hs, ls); err != nil {
		return err
	}
	if err := drainInto(fc, backend); err != nil {
		return err
	}
	return splicePipes(fc.Conn, backend)
}

// SpliceStatus splices a Status-intent connection straight to an already
// Started backend (spec.md §4.9: "On next_state=1: if state == Started,
// splice to backend"). There is no Login Start to replay, only the
// buffered Handshake.
func (d *Dispatcher) SpliceStatus(fc *netutil.FrameConn, hs packet.Handshake) error {
	defer fc.Close()

	backend, err := net.DialTimeout("tcp", d.cfg.InternalBackend, dialTimeout)
	if err != nil {
		zap.S().Warnw("dispatch: status splice dial failed", "address", d.cfg.InternalBackend, "err", err)
		return err
	}
	backendFC := netutil.NewFrameConn(backend)
	defer backendFC.Close()

	if err := backendFC.WriteRaw(writeTimeout, hs.Encode()); err != nil {
		return err
	}
	if err := drainInto(fc, backend); err != nil {
		return err
	}
	return splicePipes(fc.Conn, backend)
}

// splice dials the real backend and replays the buffered Handshake and
// Login Start before handing the connection off to raw bidirectional
// byte copying (spec.md §4.7 Splice).
func (d *Dispatcher) splice(fc *netutil.FrameConn, hs packet.Handshake, ls packet.LoginStart) error {
	defer fc.Close()

	backend, err := net.DialTimeout("tcp", d.cfg.InternalBackend, dialTimeout)
	if err != nil {
		zap.S().Warnw("dispatch: splice dial failed", "address", d.cfg.InternalBackend, "err", err)
		return err
	}
	backendFC := netutil.NewFrameConn(backend)
	defer backendFC.Close()

	if err := replayBuffered(backendFC, hs, ls); err != nil {
		return err
	}
	if err := drainInto(fc, backend); err != nil {
		return err
	}
	return splicePipes(fc.Conn, backend)
}

// drainInto forwards any bytes the client already sent past the buffered
// Handshake+Login Start (spec.md §9 design note) before raw splicing
// begins, so nothing sitting in the FrameConn's read buffer is lost once
// io.Copy starts reading the underlying net.Conn directly.
func drainInto(fc *netutil.FrameConn, backend net.Conn) error {
	extra, err := fc.DrainBuffered()
	if err != nil {
		return err
	}
	if len(extra) == 0 {
		return nil
	}
	_, err = backend.Write(extra)
	return err
}

// replayBuffered pushes the Handshake and Login Start frames through a
// deque and writes them to the backend in order, mirroring how the
// teacher's session_client_play.go drains its queued login-phase plugin
// messages before continuing a session. A Transfer-intent handshake is
// rewritten to Login before replay: the real backend never saw the
// Cookie Request/Response exchange a genuine transfer handshake expects,
// so presenting next_state=3 to it would stall the backend's own login
// handler.
func replayBuffered(backendFC *netutil.FrameConn, hs packet.Handshake, ls packet.LoginStart) error {
	if hs.NextState == packet.NextStateTransfer {
		hs = hs.WithNextState(packet.NextStateLogin)
	}

	var q deque.Deque
	q.PushBack(hs.Encode())
	q.PushBack(ls.Encode())

	for q.Len() != 0 {
		frame := q.PopFront().([]byte)
		if err := backendFC.WriteRaw(writeTimeout, frame); err != nil {
			return err
		}
	}
	return nil
}

// splicePipes copies bytes bidirectionally between client and backend
// until either side closes or errors (spec.md §4.7 Splice, §5
// cancellation: closing either socket ends both directions).
func splicePipes(client, backend net.Conn) error {
	errCh := make(chan error, 2)
	go func() {
		buf := make([]byte, spliceBufferSize)
		_, err := io.CopyBuffer(backend, client, buf)
		errCh <- err
	}()
	go func() {
		buf := make([]byte, spliceBufferSize)
		_, err := io.CopyBuffer(client, backend, buf)
		errCh <- err
	}()
	err := <-errCh
	client.Close()
	backend.Close()
	<-errCh
	return err
}
