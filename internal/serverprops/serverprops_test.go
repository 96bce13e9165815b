package serverprops

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRewriteReplacesExistingKeysAndPreservesComments(t *testing.T) {
	dir := t.TempDir()
	initial := "#Minecraft server properties\nmax-players=20\nserver-port=25565\nserver-ip=\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.properties"), []byte(initial), 0o644))

	err := Rewrite(dir, Overrides{ServerPort: 43123, ServerIP: "127.0.0.1"})
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(dir, "server.properties"))
	require.NoError(t, err)
	text := string(out)

	require.Contains(t, text, "#Minecraft server properties")
	require.Contains(t, text, "max-players=20")
	require.Contains(t, text, "server-port=43123")
	require.Contains(t, text, "server-ip=127.0.0.1")
	require.False(t, strings.Contains(text, "server-port=25565"))

	backup, err := os.ReadFile(filepath.Join(dir, "server.properties.bak"))
	require.NoError(t, err)
	require.Equal(t, strings.TrimRight(initial, "\n")+"\n", string(backup))
}

func TestRewriteAppendsMissingRCONKeys(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "server.properties"), []byte("level-name=world\n"), 0o644))

	err := Rewrite(dir, Overrides{
		ServerPort:  40000,
		ServerIP:    "127.0.0.1",
		RCONEnabled: true,
		RCONPort:    25575,
		RCONPass:    "s3cret",
	})
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(dir, "server.properties"))
	require.NoError(t, err)
	text := string(out)
	require.Contains(t, text, "enable-rcon=true")
	require.Contains(t, text, "rcon.port=25575")
	require.Contains(t, text, "rcon.password=s3cret")
}

func TestRewriteCreatesFileWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	err := Rewrite(dir, Overrides{ServerPort: 40001, ServerIP: "127.0.0.1"})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "server.properties"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "server.properties.bak"))
	require.True(t, os.IsNotExist(err))
}
