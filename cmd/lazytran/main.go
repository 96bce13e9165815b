// Command lazytran runs the lazy-transfer Minecraft proxy: it accepts
// public connections, keeps the backend server asleep until a real
// player shows up, and hands the connection off once it's ready
// (spec.md §1).
package main

import (
	"errors"
	"fmt"
	"os"

	"go.lazytran.dev/lazytran/internal/errs"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

// exitCodeFor maps an error to a process exit code (SPEC_FULL.md §9.3):
// 0 ok, 1 config error, 2 startup failure, 130 signal-interrupted.
func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, errSignalShutdown) {
		return 130
	}
	var e *errs.Error
	if errors.As(err, &e) {
		switch e.Kind {
		case errs.KindConfigInvalid:
			return 1
		case errs.KindSpawnFailed, errs.KindUnreachable:
			return 2
		}
	}
	return 1
}
