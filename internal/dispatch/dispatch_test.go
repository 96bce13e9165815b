package dispatch_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.lazytran.dev/lazytran/internal/dispatch"
	"go.lazytran.dev/lazytran/internal/errs"
	"go.lazytran.dev/lazytran/internal/lifecycle"
	"go.lazytran.dev/lazytran/internal/netutil"
	"go.lazytran.dev/lazytran/internal/probe"
	"go.lazytran.dev/lazytran/internal/procctl"
	"go.lazytran.dev/lazytran/internal/proto/packet"
	"go.lazytran.dev/lazytran/internal/state"
)

func newTestActor(tracker *state.Tracker) *lifecycle.Actor {
	proc := procctl.New(procctl.Options{Command: "sh -c true"})
	prober := probe.New("127.0.0.1:1", nil)
	return lifecycle.New(tracker, proc, prober, lifecycle.Config{})
}

func testHandshakeAndLogin() (packet.Handshake, packet.LoginStart) {
	hs := packet.Handshake{ProtocolVersion: 765, ServerAddress: "proxy.example", ServerPort: 25565, NextState: packet.NextStateLogin}
	ls := packet.LoginStart{Username: "alice"}
	return hs, ls
}

// fakeBackendEchoingSentinel accepts one connection, verifies it receives
// a buffered Handshake + Login Start, then writes sentinel down the wire
// before letting the splice take over.
func fakeBackendEchoingSentinel(t *testing.T, sentinel string) (addr string, done <-chan struct{}) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	doneCh := make(chan struct{})
	go func() {
		defer close(doneCh)
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		bfc := netutil.NewFrameConn(conn)
		id, _, err := bfc.ReadPacket(2 * time.Second)
		require.NoError(t, err)
		require.Equal(t, int32(packet.IDHandshake), id)

		id, _, err = bfc.ReadPacket(2 * time.Second)
		require.NoError(t, err)
		require.Equal(t, int32(packet.IDLoginStart), id)

		_, _ = conn.Write([]byte(sentinel))
	}()
	return ln.Addr().String(), doneCh
}

func TestDispatchSplicesImmediatelyWhenAlreadyStarted(t *testing.T) {
	hs, ls := testHandshakeAndLogin()
	addr, backendDone := fakeBackendEchoingSentinel(t, "hello-from-backend")

	tracker := state.NewTracker()
	tracker.SetState(state.Started)
	actor := newTestActor(tracker)

	d := dispatch.New(tracker, actor, dispatch.Config{
		Methods:         []string{"hold", "kick"},
		InternalBackend: addr,
	})

	clientConn, proxyConn := net.Pipe()
	defer clientConn.Close()
	fc := netutil.NewFrameConn(proxyConn)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(context.Background(), fc, hs, ls) }()

	buf := make([]byte, len("hello-from-backend"))
	_, err := io.ReadFull(clientConn, buf)
	require.NoError(t, err)
	require.Equal(t, "hello-from-backend", string(buf))

	<-backendDone
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after backend closed")
	}
}

func TestHoldFallsThroughToKickOnTimeout(t *testing.T) {
	hs, ls := testHandshakeAndLogin()
	tracker := state.NewTracker() // Stopped
	actor := newTestActor(tracker)

	d := dispatch.New(tracker, actor, dispatch.Config{
		Methods:      []string{"hold", "kick"},
		HoldTimeout:  50 * time.Millisecond,
		KickStarting: "please wait warmly",
	})

	clientConn, proxyConn := net.Pipe()
	defer clientConn.Close()
	fc := netutil.NewFrameConn(proxyConn)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(context.Background(), fc, hs, ls) }()

	client := netutil.NewFrameConn(clientConn)
	id, payload, err := client.ReadPacket(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, int32(packet.IDLoginDisconnect), id)
	require.Contains(t, string(payload), "please wait warmly")

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after kick")
	}
}

func TestKickSendsDisconnectMatchingCurrentState(t *testing.T) {
	hs, ls := testHandshakeAndLogin()
	tracker := state.NewTracker()
	tracker.SetState(state.Starting)
	actor := newTestActor(tracker)

	d := dispatch.New(tracker, actor, dispatch.Config{
		Methods:      []string{"kick"},
		KickStarting: "server waking up",
		KickStarted:  "should not see this",
	})

	clientConn, proxyConn := net.Pipe()
	defer clientConn.Close()
	fc := netutil.NewFrameConn(proxyConn)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(context.Background(), fc, hs, ls) }()

	client := netutil.NewFrameConn(clientConn)
	_, payload, err := client.ReadPacket(2 * time.Second)
	require.NoError(t, err)
	require.Contains(t, string(payload), "server waking up")

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after kick")
	}
}

func TestDispatchKicksWithLockoutMessageWhenLockedOut(t *testing.T) {
	hs, ls := testHandshakeAndLogin()
	tracker := state.NewTracker()
	tracker.SetState(state.Started) // lockout must reject even an already-Started backend
	proc := procctl.New(procctl.Options{Command: "sh -c true"})
	prober := probe.New("127.0.0.1:1", nil)
	actor := lifecycle.New(tracker, proc, prober, lifecycle.Config{LockoutEnabled: true})

	d := dispatch.New(tracker, actor, dispatch.Config{
		Methods:        []string{"kick"},
		LockoutMessage: "locked for maintenance",
	})

	clientConn, proxyConn := net.Pipe()
	defer clientConn.Close()
	fc := netutil.NewFrameConn(proxyConn)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(context.Background(), fc, hs, ls) }()

	client := netutil.NewFrameConn(clientConn)
	id, payload, err := client.ReadPacket(2 * time.Second)
	require.NoError(t, err)
	require.Equal(t, int32(packet.IDLoginDisconnect), id)
	require.Contains(t, string(payload), "locked for maintenance")

	select {
	case err := <-errCh:
		require.True(t, errs.Is(err, errs.KindLockedOut))
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after lockout kick")
	}
}

func TestForwardReplaysBufferedPacketsBeforeSplicing(t *testing.T) {
	hs, ls := testHandshakeAndLogin()
	addr, backendDone := fakeBackendEchoingSentinel(t, "hello-from-forward-target")

	tracker := state.NewTracker() // Stopped; must not splice to the (nonexistent) real backend
	actor := newTestActor(tracker)

	d := dispatch.New(tracker, actor, dispatch.Config{
		Methods:        []string{"forward"},
		ForwardAddress: addr,
	})

	clientConn, proxyConn := net.Pipe()
	defer clientConn.Close()
	fc := netutil.NewFrameConn(proxyConn)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Dispatch(context.Background(), fc, hs, ls) }()

	buf := make([]byte, len("hello-from-forward-target"))
	_, err := io.ReadFull(clientConn, buf)
	require.NoError(t, err)
	require.Equal(t, "hello-from-forward-target", string(buf))

	<-backendDone
	select {
	case <-errCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return after forward target closed")
	}
}
