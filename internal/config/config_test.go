package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPassesValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(&cfg))
}

func TestValidateAggregatesMultipleProblems(t *testing.T) {
	cfg := Default()
	cfg.Public.Address = ""
	cfg.Server.Command = ""
	cfg.Join.Methods = []string{"teleport"}

	err := Validate(&cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "public.address")
	require.Contains(t, err.Error(), "server.command")
	require.Contains(t, err.Error(), "unknown method")
}

func TestValidateRequiresForwardAddressWhenForwardConfigured(t *testing.T) {
	cfg := Default()
	cfg.Join.Methods = []string{"forward"}
	cfg.Join.Forward.Address = ""

	err := Validate(&cfg)
	require.Error(t, err)
	require.Contains(t, err.Error(), "join.forward.address")
}

func TestValidatePassesWithRconEnabledAndNoPassword(t *testing.T) {
	// Load, not Validate, is responsible for filling in a missing
	// rcon.password (it generates one); Validate must not reject this.
	cfg := Default()
	cfg.Rcon.Enabled = true
	cfg.Rcon.Password = ""

	require.NoError(t, Validate(&cfg))
}

func TestLoadGeneratesRconPasswordWhenEnabledAndUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lazytran.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rcon:\n  enabled: true\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Rcon.Enabled)
	require.NotEmpty(t, cfg.Rcon.Password)

	cfg2, err := Load(path)
	require.NoError(t, err)
	require.NotEqual(t, cfg.Rcon.Password, cfg2.Rcon.Password, "a fresh random password is generated each load when unset on disk")
}

func TestWriteTemplateRefusesToOverwriteWithoutForce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lazytran.yaml")

	require.NoError(t, WriteTemplate(path, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "public:")

	err = WriteTemplate(path, false)
	require.Error(t, err)
	require.Contains(t, err.Error(), "already exists")

	require.NoError(t, WriteTemplate(path, true))
}

func TestLoadUnmarshalsYAMLAndAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lazytran.yaml")
	require.NoError(t, os.WriteFile(path, []byte("public:\n  address: \"0.0.0.0:25577\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:25577", cfg.Public.Address)
	require.Equal(t, Default().Server.Command, cfg.Server.Command)
}
