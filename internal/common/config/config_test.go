package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8350, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "claude", cfg.Executor.Default)
	assert.Equal(t, 1000, cfg.Monitor.PollIntervalMs)
	assert.Equal(t, "", cfg.NATS.URL)
	assert.True(t, cfg.Notifications.SoundAlerts)
	assert.False(t, cfg.Analytics.Enabled)
	assert.True(t, cfg.MCP.Enabled)
	assert.Equal(t, 9090, cfg.MCP.Port)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: 9443
executor:
  default: echo
notifications:
  soundFile: rooster
monitor:
  pollIntervalMs: 250
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o644))

	cfg, err := LoadWithPath(dir)
	require.NoError(t, err)

	assert.Equal(t, 9443, cfg.Server.Port)
	assert.Equal(t, "echo", cfg.Executor.Default)
	assert.Equal(t, "rooster", cfg.Notifications.SoundFile)
	assert.Equal(t, 250, cfg.Monitor.PollIntervalMs)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad port", func(c *Config) { c.Server.Port = -1 }},
		{"unknown driver", func(c *Config) { c.Database.Driver = "oracle" }},
		{"sqlite without path", func(c *Config) { c.Database.Driver = "sqlite"; c.Database.Path = "" }},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres"; c.Database.Host = "" }},
		{"zero poll interval", func(c *Config) { c.Monitor.PollIntervalMs = 0 }},
		{"unknown sound", func(c *Config) { c.Notifications.SoundFile = "airhorn" }},
		{"unknown editor", func(c *Config) { c.Editor.Type = "emacs" }},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadWithPath(t.TempDir())
			require.NoError(t, err)
			tt.mutate(cfg)
			assert.Error(t, validate(cfg))
		})
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("CODECOMMAND_EXECUTOR_DEFAULT", "opencode")
	t.Setenv("BACKEND_PORT", "4567")

	cfg, err := LoadWithPath(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "opencode", cfg.Executor.Default)
	assert.Equal(t, 4567, cfg.Server.Port)
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{
		Host: "db.local", Port: 5433, User: "cc", Password: "pw",
		DBName: "cc", SSLMode: "disable",
	}
	assert.Equal(t, "host=db.local port=5433 user=cc password=pw dbname=cc sslmode=disable", d.DSN())
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, home+"/.codecommand", ExpandHome("~/.codecommand"))
	assert.Equal(t, "/var/lib/cc", ExpandHome("/var/lib/cc"))
	assert.Equal(t, "relative/path", ExpandHome("relative/path"))
}
