package lifecycle

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"go.lazytran.dev/lazytran/internal/netutil"
	"go.lazytran.dev/lazytran/internal/probe"
	"go.lazytran.dev/lazytran/internal/proto/packet"
	"go.lazytran.dev/lazytran/internal/procctl"
	"go.lazytran.dev/lazytran/internal/state"
	"go.lazytran.dev/lazytran/internal/status"
)

// scriptCommand mirrors internal/procctl's test helper: a real short-lived
// shell process to drive Spawn/Stop without a quoting-aware command line
// parser.
func scriptCommand(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return "sh " + path
}

// fakeBackend answers one Status Request per accepted connection using the
// real status.Serve, standing in for a sleeping backend's listen socket.
func fakeBackend(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				fc := netutil.NewFrameConn(conn)
				_, payload, err := fc.ReadPacket(time.Second)
				if err != nil {
					return
				}
				hs, err := packet.DecodeHandshake(payload)
				if err != nil {
					return
				}
				status.Serve(fc, hs, status.Info{VersionName: "1.21", MaxPlayers: 20, Online: 0, MOTD: "hi"})
			}()
		}
	}()

	return ln.Addr().String()
}

func TestPollOnceTransitionsStartingToStartedWhenBackendAlive(t *testing.T) {
	addr := fakeBackend(t)
	tracker := state.NewTracker()
	tracker.SetState(state.Starting)
	prober := probe.New(addr, nil)
	a := New(tracker, nil, prober, Config{PollIntervalStarted: time.Second})

	a.pollOnce()

	select {
	case p := <-a.propose:
		require.Equal(t, state.Started, p.to)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a Started proposal")
	}
}

func TestPollOnceProposesCrashedAfterThreeUnreachableStreaksWhileStarted(t *testing.T) {
	tracker := state.NewTracker()
	tracker.SetState(state.Started)
	prober := probe.New("127.0.0.1:1", nil) // nothing listening: unreachable
	a := New(tracker, nil, prober, Config{PollIntervalStarted: time.Second})

	a.pollOnce()
	a.pollOnce()
	select {
	case p := <-a.propose:
		t.Fatalf("expected no proposal yet, got %+v", p)
	default:
	}

	a.pollOnce()
	select {
	case p := <-a.propose:
		require.Equal(t, state.Crashed, p.to)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a Crashed proposal after 3 unreachable probes")
	}
}

func TestRequestWakeCollapsesConcurrentCallers(t *testing.T) {
	tracker := state.NewTracker()
	a := New(tracker, nil, nil, Config{})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.RequestWake("login")
		}()
	}
	wg.Wait()

	count := 0
drain:
	for {
		select {
		case <-a.propose:
			count++
		default:
			break drain
		}
	}
	require.Equal(t, 1, count)
}

func TestApplyIgnoresInvalidTransitionAndAppliesValidOne(t *testing.T) {
	tracker := state.NewTracker()
	proc := procctl.New(procctl.Options{
		Command:      scriptCommand(t, "sleep 2"),
		StartTimeout: time.Second,
	})
	a := New(tracker, proc, nil, Config{})

	a.apply(proposal{to: state.Started, reason: "bogus"})
	require.Equal(t, state.Stopped, tracker.Server())

	a.apply(proposal{to: state.Starting, reason: "wake"})
	require.Equal(t, state.Starting, tracker.Server())
	require.True(t, proc.Running())

	require.NoError(t, proc.Stop(context.Background()))
}

func TestIdleLoopFiresStoppingAfterIdleTimeout(t *testing.T) {
	tracker := state.NewTracker()
	tracker.SetState(state.Started)
	a := New(tracker, nil, nil, Config{IdleTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = a.idleLoop(ctx) }()

	select {
	case p := <-a.propose:
		require.Equal(t, state.Stopping, p.to)
	case <-time.After(3 * time.Second):
		t.Fatal("expected an idle-triggered Stopping proposal")
	}
}
