package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, 9831, cfg.Port)
	assert.Equal(t, 0, cfg.HTTPPort)
	assert.Equal(t, "Parley Server", cfg.Name)
	assert.Equal(t, 32, cfg.MaxClients)
	assert.Empty(t, cfg.PrivilegeKey)
	assert.Equal(t, "parley.db", cfg.DatabasePath)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: debug
port: 7000
name: "My Server"
max_clients: 64
privilege_key: "hunter2"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "My Server", cfg.Name)
	assert.Equal(t, 64, cfg.MaxClients)
	assert.Equal(t, "hunter2", cfg.PrivilegeKey)
	// Unset keys keep their defaults.
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "parley.db", cfg.DatabasePath)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Name = "Renamed"
	cfg.MaxClients = 128
	require.NoError(t, cfg.Save())

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", reloaded.Name)
	assert.Equal(t, 128, reloaded.MaxClients)
	assert.Equal(t, 9831, reloaded.Port)
}
