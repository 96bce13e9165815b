//go:build unix

package procctl

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// applyProcGroup launches cmd in its own process group so that signals
// sent to lazytran itself (e.g. SIGINT from a terminal) aren't also
// delivered to the Minecraft server child, matching
// A-wels-minecraft-server-hibernation's opsys.NewProcGroupAttr use.
func applyProcGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalTerm(pid int) error { return unix.Kill(pid, unix.SIGTERM) }
func signalKill(pid int) error { return unix.Kill(pid, unix.SIGKILL) }
func signalStop(pid int) error { return unix.Kill(pid, unix.SIGSTOP) }
func signalCont(pid int) error { return unix.Kill(pid, unix.SIGCONT) }
