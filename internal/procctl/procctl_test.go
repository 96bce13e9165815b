package procctl

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptCommand writes body to a shell script under t.TempDir() and
// returns the "sh <path>" command string Controller.Spawn expects (the
// naive whitespace-split parser can't handle quoted multi-word
// arguments, matching the teacher's own strings.Split(command, " ")).
func scriptCommand(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return "sh " + path
}

func TestSpawnCapturesStdoutAndReportsCleanExit(t *testing.T) {
	c := New(Options{
		Command:      scriptCommand(t, "echo hello\nsleep 0.05"),
		StartTimeout: time.Second,
	})
	require.NoError(t, c.Spawn())
	require.True(t, c.Running())

	select {
	case ev := <-c.Events:
		require.True(t, ev.Exited)
		require.False(t, ev.Crashed)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit event")
	}
	require.False(t, c.Running())
}

func TestSpawnRejectsSecondConcurrentChild(t *testing.T) {
	c := New(Options{Command: scriptCommand(t, "sleep 1"), StartTimeout: time.Second})
	require.NoError(t, c.Spawn())
	defer func() { <-c.Events }()

	err := c.Spawn()
	require.Error(t, err)

	_ = c.Stop(context.Background())
}

func TestCrashWithinStartTimeoutIsReportedAsCrashed(t *testing.T) {
	c := New(Options{
		Command:      scriptCommand(t, "exit 1"),
		StartTimeout: 5 * time.Second,
	})
	require.NoError(t, c.Spawn())

	select {
	case ev := <-c.Events:
		require.True(t, ev.Exited)
		require.True(t, ev.Crashed)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit event")
	}
}

func TestStopViaStdinEndsProcessBeforeSignalEscalation(t *testing.T) {
	c := New(Options{
		Command:         scriptCommand(t, "read line\nexit 0"),
		StartTimeout:    time.Second,
		StopTimeout:     2 * time.Second,
		StopStepTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, c.Spawn())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, c.Stop(ctx))
	require.False(t, c.Running())
}

func TestWriteStdinFailsWithoutRunningChild(t *testing.T) {
	c := New(Options{Command: scriptCommand(t, "true")})
	err := c.WriteStdin("stop")
	require.Error(t, err)
}

func TestForwardConsoleWritesLinesToChildStdin(t *testing.T) {
	c := New(Options{
		Command:      scriptCommand(t, "read line\necho \"got:$line\""),
		StartTimeout: time.Second,
	})
	require.NoError(t, c.Spawn())

	ctx, cancel := context.WithCancel(context.Background())
	go c.ForwardConsole(ctx, bytes.NewBufferString("ping\n"))

	select {
	case ev := <-c.Events:
		require.True(t, ev.Exited)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for exit event")
	}
	cancel()
}
