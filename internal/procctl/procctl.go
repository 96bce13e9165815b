// Package procctl owns the single Minecraft server child process: spawn,
// stdio capture, console forwarding, freeze/thaw, and the graceful stop
// ladder (spec.md §4.6). It is grounded on
// A-wels-minecraft-server-hibernation's servctrl-cmd.go: an exec.Cmd with
// Stdout/Stderr/Stdin pipes, a scanner goroutine per pipe, and a
// WaitGroup that gates marking the process dead until both scanners have
// drained.
package procctl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"go.lazytran.dev/lazytran/internal/errs"
)

// Event is published on Controller.Events as the child's lifecycle
// changes (spec.md §4.5's Starting/Crashed inputs are derived from
// these).
type Event struct {
	// Exited is true once the child process has fully exited (both
	// stdio scanners drained and cmd.Wait returned).
	Exited bool
	// Crashed is true when Exited and the process exited with a
	// non-zero status inside StartTimeout of Spawn, without Stop having
	// been called (spec.md §4.6 "Crash detection").
	Crashed bool
	Err     error
}

// Options configures one child process lifetime.
type Options struct {
	Command string // shell-style command line, split on spaces
	Dir     string
	Env     []string // appended to the inherited environment

	// StartTimeout bounds how soon after Spawn an unrequested exit
	// counts as a crash rather than a normal stop (spec.md §4.6).
	StartTimeout time.Duration

	// StopTimeout/StopStepTimeout drive the graceful stop ladder
	// (spec.md §4.6, defaults 150s/30s).
	StopTimeout     time.Duration
	StopStepTimeout time.Duration

	// Stopper issues the RCON `stop` command; may be nil if RCON isn't
	// configured, in which case the ladder skips straight to stdin.
	Stopper interface{ Send(string) (string, error) }
}

// Controller owns at most one running child process at a time, matching
// spec.md §8's invariant "at most one child process handle is alive at
// any instant."
type Controller struct {
	opts Options

	mu          sync.Mutex
	cmd         *exec.Cmd
	stdin       io.WriteCloser
	running     bool
	frozen      bool
	spawnedAt   time.Time
	stopping    bool
	loadPercent string

	wg     sync.WaitGroup
	Events chan Event
}

// New builds a Controller for opts. Spawn must be called to start the
// child.
func New(opts Options) *Controller {
	if opts.StopTimeout == 0 {
		opts.StopTimeout = 150 * time.Second
	}
	if opts.StopStepTimeout == 0 {
		opts.StopStepTimeout = 30 * time.Second
	}
	return &Controller{opts: opts, Events: make(chan Event, 4)}
}

// Running reports whether a child process is currently alive.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// LoadProgress returns the last "Preparing spawn area: NN%" marker seen
// on stdout, purely informational (SPEC_FULL.md §11).
func (c *Controller) LoadProgress() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadPercent
}

// Spawn starts the configured command. It returns once the process has
// been started (pipes wired, goroutines launched); it does not wait for
// the server to finish loading — callers watch the Status Prober for
// that (spec.md §4.5).
func (c *Controller) Spawn() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return errs.New(errs.KindSpawnFailed, "procctl.Spawn", fmt.Errorf("a child process is already running"))
	}

	parts := strings.Fields(c.opts.Command)
	if len(parts) == 0 {
		return errs.New(errs.KindSpawnFailed, "procctl.Spawn", fmt.Errorf("empty command"))
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	cmd.Dir = c.opts.Dir
	if len(c.opts.Env) > 0 {
		cmd.Env = append(cmd.Environ(), c.opts.Env...)
	}
	applyProcGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.New(errs.KindSpawnFailed, "procctl.Spawn", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errs.New(errs.KindSpawnFailed, "procctl.Spawn", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return errs.New(errs.KindSpawnFailed, "procctl.Spawn", err)
	}

	if err := cmd.Start(); err != nil {
		return errs.New(errs.KindSpawnFailed, "procctl.Spawn", err)
	}

	c.cmd = cmd
	c.stdin = stdin
	c.running = true
	c.frozen = false
	c.stopping = false
	c.spawnedAt = time.Now()
	c.loadPercent = "0%"

	c.wg.Add(2)
	go c.pump(stdout, zapcore.InfoLevel)
	go c.pump(stderr, zapcore.WarnLevel)
	go c.awaitExit()

	return nil
}

// pump scans one stdio pipe line-by-line, forwarding to the operator log
// and watching for the "Preparing spawn area" load marker, matching the
// teacher's printerOutErr goroutines.
func (c *Controller) pump(r io.Reader, level zapcore.Level) {
	defer c.wg.Done()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		switch level {
		case zapcore.WarnLevel:
			zap.S().Warnw(line, "server", "stderr")
		default:
			zap.S().Infow(line, "server", "stdout")
		}
		if idx := strings.Index(line, "Preparing spawn area: "); idx >= 0 {
			rest := line[idx+len("Preparing spawn area: "):]
			if pct := strings.SplitN(rest, "%", 2); len(pct) == 2 {
				c.mu.Lock()
				c.loadPercent = pct[0] + "%"
				c.mu.Unlock()
			}
		}
	}
}

// awaitExit waits for both pipe scanners to drain and the process to
// exit, then classifies the exit as a crash or a clean stop and
// publishes an Event, matching the teacher's waitForExit.
func (c *Controller) awaitExit() {
	c.wg.Wait()

	c.mu.Lock()
	cmd := c.cmd
	spawnedAt := c.spawnedAt
	wasStopping := c.stopping
	startTimeout := c.opts.StartTimeout
	c.mu.Unlock()

	waitErr := cmd.Wait()

	c.mu.Lock()
	c.running = false
	c.frozen = false
	c.mu.Unlock()

	crashed := false
	if !wasStopping && waitErr != nil && startTimeout > 0 && time.Since(spawnedAt) < startTimeout {
		crashed = true
	}

	c.Events <- Event{Exited: true, Crashed: crashed, Err: waitErr}
}

// WriteStdin forwards a single line to the child's stdin, used both by
// the operator console-forwarding loop and the stop ladder's "write
// stop\n" step (spec.md §4.6).
func (c *Controller) WriteStdin(line string) error {
	c.mu.Lock()
	stdin := c.stdin
	running := c.running
	c.mu.Unlock()

	if !running || stdin == nil {
		return errs.New(errs.KindIO, "procctl.WriteStdin", fmt.Errorf("no running child process"))
	}
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err := stdin.Write([]byte(line))
	if err != nil {
		return errs.New(errs.KindIO, "procctl.WriteStdin", err)
	}
	return nil
}

// ForwardConsole copies lines from r (the controller process's own
// stdin) to the child's stdin for as long as ctx is alive, matching
// spec.md §4.6's "console forwarding" contract.
func (c *Controller) ForwardConsole(ctx context.Context, r io.Reader) {
	sc := bufio.NewScanner(r)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := c.WriteStdin(line); err != nil {
				zap.S().Warnf("procctl: console forward dropped a line: %v", err)
			}
		}
	}
}

// Stop runs the graceful stop ladder (spec.md §4.6): RCON `stop`, then
// stdin "stop\n", then SIGTERM, then SIGKILL after opts.StopTimeout,
// waiting opts.StopStepTimeout between steps for the process to exit on
// its own.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.stopping = true
	pid := c.cmd.Process.Pid
	c.mu.Unlock()

	deadline := time.Now().Add(c.opts.StopTimeout)

	if c.opts.Stopper != nil {
		if _, err := c.opts.Stopper.Send("stop"); err != nil {
			zap.S().Infof("procctl: RCON stop failed, falling back: %v", err)
		}
		if c.waitExitOrStep(ctx, deadline) {
			return nil
		}
	}

	if err := c.WriteStdin("stop"); err != nil {
		zap.S().Infof("procctl: stdin stop failed, falling back: %v", err)
	}
	if c.waitExitOrStep(ctx, deadline) {
		return nil
	}

	if err := signalTerm(pid); err != nil {
		zap.S().Warnf("procctl: SIGTERM failed: %v", err)
	}
	if c.waitUntil(ctx, deadline) {
		return nil
	}

	if err := signalKill(pid); err != nil {
		return errs.New(errs.KindIO, "procctl.Stop", err)
	}
	c.waitUntil(ctx, deadline.Add(c.opts.StopStepTimeout))
	return nil
}

// waitExitOrStep waits up to opts.StopStepTimeout (capped by deadline)
// for the process to exit, returning true if it did.
func (c *Controller) waitExitOrStep(ctx context.Context, deadline time.Time) bool {
	step := time.Now().Add(c.opts.StopStepTimeout)
	if step.After(deadline) {
		step = deadline
	}
	return c.waitUntil(ctx, step)
}

func (c *Controller) waitUntil(ctx context.Context, until time.Time) bool {
	deadline := time.NewTimer(time.Until(until))
	defer deadline.Stop()
	poll := time.NewTicker(200 * time.Millisecond)
	defer poll.Stop()
	for {
		if !c.Running() {
			return true
		}
		select {
		case <-ctx.Done():
			return !c.Running()
		case <-deadline.C:
			return !c.Running()
		case <-poll.C:
		}
	}
}

// Freeze suspends the child process with SIGSTOP (Unix only), used when
// server.freeze_process is set and no players are connected (spec.md
// §4.6).
func (c *Controller) Freeze() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || c.frozen {
		return nil
	}
	if err := signalStop(c.cmd.Process.Pid); err != nil {
		return errs.New(errs.KindIO, "procctl.Freeze", err)
	}
	c.frozen = true
	return nil
}

// Thaw resumes a frozen child process with SIGCONT, skipping a fresh
// Spawn entirely (spec.md §4.6: "Transition Stopped→Starting may, if a
// frozen child exists, send SIGCONT and skip spawn").
func (c *Controller) Thaw() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running || !c.frozen {
		return errs.New(errs.KindSpawnFailed, "procctl.Thaw", fmt.Errorf("no frozen child to thaw"))
	}
	if err := signalCont(c.cmd.Process.Pid); err != nil {
		return errs.New(errs.KindIO, "procctl.Thaw", err)
	}
	c.frozen = false
	return nil
}

// Frozen reports whether the child is currently SIGSTOP-suspended.
func (c *Controller) Frozen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frozen
}

// UptimeSeconds mirrors the teacher's TermUpTime helper.
func (c *Controller) UptimeSeconds() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return 0
	}
	return int(time.Since(c.spawnedAt).Round(time.Second).Seconds())
}
