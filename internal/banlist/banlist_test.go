package banlist

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesPlainIPsAndCIDRs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "banned-ips.json")
	body := `[
		{"ip": "10.0.0.1", "reason": "griefing"},
		{"ip": "192.168.1.0/24", "reason": "range ban"},
		{"ip": "not-an-ip", "reason": "should be skipped"}
	]`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	set, err := Load(path)
	require.NoError(t, err)

	require.True(t, set.Contains(net.ParseIP("10.0.0.1")))
	require.True(t, set.Contains(net.ParseIP("192.168.1.42")))
	require.False(t, set.Contains(net.ParseIP("192.168.2.1")))
	require.False(t, set.Contains(net.ParseIP("8.8.8.8")))
}

func TestLoadMissingFileYieldsEmptySet(t *testing.T) {
	dir := t.TempDir()
	set, err := Load(filepath.Join(dir, "banned-ips.json"))
	require.NoError(t, err)
	require.False(t, set.Contains(net.ParseIP("10.0.0.1")))
}

func TestWatchReloadsOnFileReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "banned-ips.json")
	require.NoError(t, os.WriteFile(path, []byte(`[]`), 0o644))

	w, err := Watch(path)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.False(t, w.Set.Contains(net.ParseIP("10.0.0.1")))

	// Replace (not edit in place) to mirror how ban-list writers swap
	// the file via rename.
	tmp := path + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte(`[{"ip":"10.0.0.1"}]`), 0o644))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		return w.Set.Contains(net.ParseIP("10.0.0.1"))
	}, 3*time.Second, 50*time.Millisecond)
}
