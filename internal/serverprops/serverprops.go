// Package serverprops rewrites a Minecraft server.properties file so the
// backend listens on a proxy-chosen loopback port instead of its own
// public one (spec.md §4.6: "rewrite server.properties: set server-port
// to an internally chosen free port, server-ip to loopback, and enable
// RCON with a generated password if configured").
package serverprops

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.lazytran.dev/lazytran/internal/errs"
)

// Overrides is the set of key/value pairs Rewrite injects or replaces.
type Overrides struct {
	ServerPort  int
	ServerIP    string
	RCONEnabled bool
	RCONPort    int
	RCONPass    string
}

// Rewrite loads dir/server.properties (creating it if absent), backs up
// the previous contents to server.properties.bak, and writes the file
// back with the given overrides applied. Keys not covered by Overrides
// are preserved verbatim, in their original order; overridden keys are
// replaced in place if present or appended otherwise, matching vanilla's
// own tolerant line-oriented format.
func Rewrite(dir string, o Overrides) error {
	path := filepath.Join(dir, "server.properties")

	lines, err := readLines(path)
	if err != nil {
		return errs.New(errs.KindIO, "serverprops.Rewrite", err)
	}

	if len(lines) > 0 {
		if err := os.WriteFile(path+".bak", []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
			return errs.New(errs.KindIO, "serverprops.Rewrite", fmt.Errorf("backup: %w", err))
		}
	}

	order := []string{"server-port", "server-ip"}
	set := map[string]string{
		"server-port": fmt.Sprintf("%d", o.ServerPort),
		"server-ip":   o.ServerIP,
	}
	if o.RCONEnabled {
		order = append(order, "enable-rcon", "rcon.port", "rcon.password")
		set["enable-rcon"] = "true"
		set["rcon.port"] = fmt.Sprintf("%d", o.RCONPort)
		set["rcon.password"] = o.RCONPass
	}

	out := applyOverrides(lines, order, set)

	if err := os.WriteFile(path, []byte(strings.Join(out, "\n")+"\n"), 0o644); err != nil {
		return errs.New(errs.KindIO, "serverprops.Rewrite", err)
	}
	return nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	return lines, sc.Err()
}

// applyOverrides replaces the value of any existing "key=value" line
// whose key matches set, appending a new line for any key in set that
// wasn't already present. Comment lines (starting with "#") pass through
// untouched.
func applyOverrides(lines []string, order []string, set map[string]string) []string {
	seen := make(map[string]bool, len(set))
	out := make([]string, 0, len(lines)+len(set))

	for _, line := range lines {
		key, ok := propertyKey(line)
		if !ok {
			out = append(out, line)
			continue
		}
		if val, want := set[key]; want {
			out = append(out, key+"="+val)
			seen[key] = true
			continue
		}
		out = append(out, line)
	}

	for _, key := range order {
		if !seen[key] {
			out = append(out, key+"="+set[key])
		}
	}
	return out
}

func propertyKey(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	idx := strings.Index(line, "=")
	if idx < 0 {
		return "", false
	}
	return strings.TrimSpace(line[:idx]), true
}
