package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration. Values come from defaults, then an
// optional YAML file, then BOOTSTRAPPER_* environment variables, then flags.
type Config struct {
	Logging      LoggingConfig      `yaml:"logging"`
	Workspace    WorkspaceConfig    `yaml:"workspace"`
	Robot        RobotConfig        `yaml:"robot"`
	ActionServer ActionServerConfig `yaml:"action_server"`
	State        StateConfig        `yaml:"state"`
	Dashboard    DashboardConfig    `yaml:"dashboard"`
}

// LoggingConfig controls the slog handlers built by the logging package.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives a copy of every log record.
	File string `yaml:"file"`
}

// WorkspaceConfig describes where automation packages live and which local
// tools operate on them.
type WorkspaceConfig struct {
	Root      string   `yaml:"root"`
	Editor    string   `yaml:"editor"`
	Formatter []string `yaml:"formatter"`
}

// RobotConfig points at the robot-automation CLI.
type RobotConfig struct {
	Binary string `yaml:"binary"`
}

// ActionServerConfig controls how automation servers are launched and
// supervised.
type ActionServerConfig struct {
	Binary string `yaml:"binary"`
	// StartArgs are appended to "start --port N --address localhost" by the helper.
	StartArgs []string `yaml:"start_args"`
	// Helper is the argv prefix of the spawned helper. Directory, port and
	// secrets are appended as positional arguments. Empty means this binary's
	// launch-helper subcommand.
	Helper       []string      `yaml:"helper"`
	StartPort    int           `yaml:"start_port"`
	Grace        time.Duration `yaml:"grace"`
	PollInterval time.Duration `yaml:"poll_interval"`
	Timeout      time.Duration `yaml:"timeout"`
	KillTimeout  time.Duration `yaml:"kill_timeout"`
	LogFile      string        `yaml:"log_file"`
}

// StateConfig locates persisted server handles.
type StateConfig struct {
	Dir string `yaml:"dir"`
}

// DashboardConfig controls the optional HTTP dashboard.
type DashboardConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Workspace: WorkspaceConfig{
			Root:      filepath.Join(home, "actions_bootstrapper"),
			Editor:    "code",
			Formatter: []string{"black", "-q", "-"},
		},
		Robot: RobotConfig{
			Binary: "rcc",
		},
		ActionServer: ActionServerConfig{
			Binary:       "action-server",
			StartPort:    8080,
			Grace:        time.Second,
			PollInterval: time.Second,
			Timeout:      60 * time.Second,
			KillTimeout:  5 * time.Second,
			LogFile:      "action_server.log",
		},
		State: StateConfig{
			Dir: filepath.Join(home, ".actions_bootstrapper", "state"),
		},
		Dashboard: DashboardConfig{
			Addr: "127.0.0.1:7711",
		},
	}
}

// Load reads the YAML file at path over the defaults, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("BOOTSTRAPPER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("BOOTSTRAPPER_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
	if v := os.Getenv("BOOTSTRAPPER_WORKSPACE_ROOT"); v != "" {
		cfg.Workspace.Root = v
	}
	if v := os.Getenv("BOOTSTRAPPER_EDITOR"); v != "" {
		cfg.Workspace.Editor = v
	}
	if v := os.Getenv("BOOTSTRAPPER_RCC"); v != "" {
		cfg.Robot.Binary = v
	}
	if v := os.Getenv("BOOTSTRAPPER_ACTION_SERVER"); v != "" {
		cfg.ActionServer.Binary = v
	}
	if v := os.Getenv("BOOTSTRAPPER_START_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BOOTSTRAPPER_START_PORT: %w", err)
		}
		cfg.ActionServer.StartPort = port
	}
	if v := os.Getenv("BOOTSTRAPPER_START_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("BOOTSTRAPPER_START_TIMEOUT: %w", err)
		}
		cfg.ActionServer.Timeout = d
	}
	if v := os.Getenv("BOOTSTRAPPER_STATE_DIR"); v != "" {
		cfg.State.Dir = v
	}
	if v := os.Getenv("BOOTSTRAPPER_DASHBOARD_ADDR"); v != "" {
		cfg.Dashboard.Addr = v
		cfg.Dashboard.Enabled = true
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}
	if c.Workspace.Root == "" {
		errs = append(errs, errors.New("workspace.root is required"))
	}
	if c.Robot.Binary == "" {
		errs = append(errs, errors.New("robot.binary is required"))
	}
	if c.ActionServer.Binary == "" {
		errs = append(errs, errors.New("action_server.binary is required"))
	}
	if c.ActionServer.StartPort < 1 || c.ActionServer.StartPort > 65535 {
		errs = append(errs, fmt.Errorf("action_server.start_port out of range: %d", c.ActionServer.StartPort))
	}
	if c.ActionServer.PollInterval <= 0 {
		errs = append(errs, errors.New("action_server.poll_interval must be positive"))
	}
	if c.ActionServer.Timeout <= 0 {
		errs = append(errs, errors.New("action_server.timeout must be positive"))
	}
	if c.ActionServer.Grace < 0 {
		errs = append(errs, errors.New("action_server.grace must not be negative"))
	}
	if c.ActionServer.LogFile == "" {
		errs = append(errs, errors.New("action_server.log_file is required"))
	}
	if c.State.Dir == "" {
		errs = append(errs, errors.New("state.dir is required"))
	}
	if c.Dashboard.Enabled && c.Dashboard.Addr == "" {
		errs = append(errs, errors.New("dashboard.addr is required when the dashboard is enabled"))
	}
	return errors.Join(errs...)
}
