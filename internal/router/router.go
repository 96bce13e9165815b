// Package router implements the Router (spec.md §4.9): it accepts TCP on
// the public address, peeks the Handshake, checks the ban list, and hands
// the connection off to the Status Responder or the Join Dispatcher. Its
// accept loop and per-connection panic recovery are grounded on
// dmitrymodder-minewire's main.go (`for { conn, err := listener.Accept();
// ...; go handleConnection(conn) }` with a recover() wrapping the body).
package router

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"go.lazytran.dev/lazytran/internal/banlist"
	"go.lazytran.dev/lazytran/internal/dispatch"
	"go.lazytran.dev/lazytran/internal/lifecycle"
	"go.lazytran.dev/lazytran/internal/netutil"
	"go.lazytran.dev/lazytran/internal/proto/packet"
	"go.lazytran.dev/lazytran/internal/state"
	"go.lazytran.dev/lazytran/internal/status"
)

const (
	handshakeTimeout = 5 * time.Second
	malformedStall   = 5 * time.Second // spec.md §4.9: "close after 5 s without reply"
)

// Config carries the subset of ConfigSpec the Router needs beyond what
// the Status Responder and Join Dispatcher already own.
type Config struct {
	PublicAddress string
	BanMessage    string
	Status        status.Info

	MotdStarting   string // spec.md §6 motd.starting: shown while Starting/Stopping
	MotdFromServer bool   // spec.md §6 motd.from_server: relay the backend's own probed description
}

// Router owns the public listener.
type Router struct {
	cfg        Config
	tracker    *state.Tracker
	bans       *banlist.BanSet
	dispatcher *dispatch.Dispatcher
	actor      *lifecycle.Actor
}

// New builds a Router.
func New(tracker *state.Tracker, bans *banlist.BanSet, dispatcher *dispatch.Dispatcher, actor *lifecycle.Actor, cfg Config) *Router {
	if cfg.BanMessage == "" {
		cfg.BanMessage = "You are banned from this server."
	}
	return &Router{tracker: tracker, bans: bans, dispatcher: dispatcher, actor: actor, cfg: cfg}
}

// ListenAndServe binds cfg.PublicAddress and serves it until ctx is
// canceled.
func (r *Router) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", r.cfg.PublicAddress)
	if err != nil {
		return err
	}
	return r.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is canceled or the listener
// fails, in the net/http.Server.Serve style: callers that need the bound
// address (tests, or `:0` ephemeral ports) construct the listener
// themselves and pass it in.
func (r *Router) Serve(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	zap.S().Infow("router: listening", "address", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				zap.S().Warnw("router: accept failed", "err", err)
				continue
			}
		}
		go r.handle(ctx, conn)
	}
}

func (r *Router) handle(ctx context.Context, conn net.Conn) {
	defer func() {
		if rec := recover(); rec != nil {
			zap.S().Errorw("router: recovered from panic handling connection", "panic", rec)
			conn.Close()
		}
	}()

	fc := netutil.NewFrameConn(conn)

	id, payload, err := fc.ReadPacket(handshakeTimeout)
	if err != nil {
		conn.Close()
		return
	}
	if id != packet.IDHandshake {
		conn.Close()
		return
	}

	hs, err := packet.DecodeHandshake(payload)
	if err != nil {
		r.stallThenClose(ctx, conn)
		return
	}

	if r.banned(conn) {
		if hs.NextState == packet.NextStateLogin || hs.NextState == packet.NextStateTransfer {
			_ = fc.WriteRaw(handshakeTimeout, packet.EncodeLoginDisconnect(r.cfg.BanMessage))
		}
		conn.Close()
		return
	}

	switch hs.NextState {
	case packet.NextStateStatus:
		r.handleStatus(fc, hs)
	case packet.NextStateLogin, packet.NextStateTransfer:
		r.handleLogin(ctx, fc, hs)
	default:
		conn.Close()
	}
}

func (r *Router) banned(conn net.Conn) bool {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return false
	}
	return r.bans.Contains(addr.IP)
}

func (r *Router) handleStatus(fc *netutil.FrameConn, hs packet.Handshake) {
	cur := r.tracker.Server()
	if cur == state.Started {
		if err := r.dispatcher.SpliceStatus(fc, hs); err != nil {
			zap.S().Debugw("router: status splice ended", "err", err)
		}
		return
	}

	// A Status-intent ping is also a wake trigger when the operator opted
	// in (spec.md §4.5).
	r.actor.MaybeWakeOnStatus("status")

	info := r.cfg.Status
	switch {
	case r.cfg.MotdFromServer && r.tracker.ProbedDescription() != "":
		info.MOTD = r.tracker.ProbedDescription()
	case (cur == state.Starting || cur == state.Stopping) && r.cfg.MotdStarting != "":
		info.MOTD = r.cfg.MotdStarting
	}
	status.Serve(fc, hs, info)
}

func (r *Router) handleLogin(ctx context.Context, fc *netutil.FrameConn, hs packet.Handshake) {
	id, payload, err := fc.ReadPacket(handshakeTimeout)
	if err != nil || id != packet.IDLoginStart {
		fc.Close()
		return
	}
	ls, err := packet.DecodeLoginStart(payload)
	if err != nil {
		fc.Close()
		return
	}
	if err := r.dispatcher.Dispatch(ctx, fc, hs, ls); err != nil {
		zap.S().Debugw("router: dispatch ended", "user", ls.Username, "err", err)
	}
}

// stallThenClose honours spec.md §4.9's "Malformed handshake → close
// after 5 s without reply" — no error is ever echoed to a client that
// can't even produce a well-formed Handshake.
func (r *Router) stallThenClose(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	select {
	case <-ctx.Done():
	case <-time.After(malformedStall):
	}
}
