//go:build !unix

package procctl

import (
	"fmt"
	"os"
	"os/exec"
)

// applyProcGroup is a no-op on non-Unix platforms; process-group
// isolation and freeze/thaw are opt-in Unix-only features (spec.md
// §4.6).
func applyProcGroup(cmd *exec.Cmd) {}

// signalTerm/signalKill have no portable signal-by-number equivalent
// outside Unix, so both fall through to the same hard kill: the stop
// ladder's grace period still elapses before it's reached, it just won't
// get an orderly shutdown from the child on this platform.
func signalTerm(pid int) error { return killProcess(pid) }
func signalKill(pid int) error { return killProcess(pid) }

func killProcess(pid int) error {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Kill()
}

// Freeze/thaw stay Unix-only (spec.md §4.6): there is no portable
// process-suspend primitive, and the stop ladder already falls back to
// signalTerm/signalKill when Freeze fails.
func signalStop(pid int) error { return fmt.Errorf("procctl: freeze is unsupported on this platform") }
func signalCont(pid int) error { return fmt.Errorf("procctl: thaw is unsupported on this platform") }
