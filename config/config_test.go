package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ActionServer.StartPort)
	assert.Equal(t, 60*time.Second, cfg.ActionServer.Timeout)
	assert.Equal(t, time.Second, cfg.ActionServer.PollInterval)
	assert.Equal(t, time.Second, cfg.ActionServer.Grace)
	assert.Equal(t, "action_server.log", cfg.ActionServer.LogFile)
	assert.Equal(t, "rcc", cfg.Robot.Binary)
	assert.Equal(t, "actions_bootstrapper", filepath.Base(cfg.Workspace.Root))
	assert.False(t, cfg.Dashboard.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
  format: json
workspace:
  root: /srv/packages
action_server:
  start_port: 9000
  timeout: 90s
  poll_interval: 250ms
  helper: ["python3", "start_action_server.py"]
dashboard:
  enabled: true
  addr: 127.0.0.1:9999
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/srv/packages", cfg.Workspace.Root)
	assert.Equal(t, 9000, cfg.ActionServer.StartPort)
	assert.Equal(t, 90*time.Second, cfg.ActionServer.Timeout)
	assert.Equal(t, 250*time.Millisecond, cfg.ActionServer.PollInterval)
	assert.Equal(t, []string{"python3", "start_action_server.py"}, cfg.ActionServer.Helper)
	assert.True(t, cfg.Dashboard.Enabled)
	// Untouched sections keep their defaults.
	assert.Equal(t, "rcc", cfg.Robot.Binary)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config file")
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "logging: [unterminated")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("BOOTSTRAPPER_WORKSPACE_ROOT", "/tmp/ws")
	t.Setenv("BOOTSTRAPPER_START_PORT", "8181")
	t.Setenv("BOOTSTRAPPER_START_TIMEOUT", "5s")
	t.Setenv("BOOTSTRAPPER_DASHBOARD_ADDR", "127.0.0.1:1234")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/ws", cfg.Workspace.Root)
	assert.Equal(t, 8181, cfg.ActionServer.StartPort)
	assert.Equal(t, 5*time.Second, cfg.ActionServer.Timeout)
	assert.True(t, cfg.Dashboard.Enabled)
	assert.Equal(t, "127.0.0.1:1234", cfg.Dashboard.Addr)
}

func TestLoad_BadEnvPort(t *testing.T) {
	t.Setenv("BOOTSTRAPPER_START_PORT", "eighty")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOOTSTRAPPER_START_PORT")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"port zero", func(c *Config) { c.ActionServer.StartPort = 0 }, "start_port"},
		{"port too high", func(c *Config) { c.ActionServer.StartPort = 70000 }, "start_port"},
		{"no timeout", func(c *Config) { c.ActionServer.Timeout = 0 }, "timeout"},
		{"no poll", func(c *Config) { c.ActionServer.PollInterval = 0 }, "poll_interval"},
		{"no root", func(c *Config) { c.Workspace.Root = "" }, "workspace.root"},
		{"dashboard without addr", func(c *Config) {
			c.Dashboard.Enabled = true
			c.Dashboard.Addr = ""
		}, "dashboard.addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyFlags_OnlyChanged(t *testing.T) {
	cfg := Default()
	cfg.Workspace.Root = "/from/file"
	cfg.ActionServer.StartPort = 9000

	flags := Default()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, flags)
	require.NoError(t, fs.Parse([]string{"--start-port", "9100"}))

	require.NoError(t, ApplyFlags(fs, flags, cfg))
	assert.Equal(t, 9100, cfg.ActionServer.StartPort)
	assert.Equal(t, "/from/file", cfg.Workspace.Root)
}
