package config

import (
	"github.com/spf13/pflag"
)

// flagBinding ties a flag name to the field it overrides.
type flagBinding struct {
	name  string
	apply func(from, to *Config)
}

var flagBindings = []flagBinding{
	{"log-level", func(f, t *Config) { t.Logging.Level = f.Logging.Level }},
	{"log-file", func(f, t *Config) { t.Logging.File = f.Logging.File }},
	{"workspace", func(f, t *Config) { t.Workspace.Root = f.Workspace.Root }},
	{"rcc", func(f, t *Config) { t.Robot.Binary = f.Robot.Binary }},
	{"action-server", func(f, t *Config) { t.ActionServer.Binary = f.ActionServer.Binary }},
	{"start-port", func(f, t *Config) { t.ActionServer.StartPort = f.ActionServer.StartPort }},
	{"start-timeout", func(f, t *Config) { t.ActionServer.Timeout = f.ActionServer.Timeout }},
	{"state-dir", func(f, t *Config) { t.State.Dir = f.State.Dir }},
	{"dashboard", func(f, t *Config) { t.Dashboard.Enabled = f.Dashboard.Enabled }},
	{"dashboard-addr", func(f, t *Config) { t.Dashboard.Addr = f.Dashboard.Addr }},
}

// BindFlags registers command-line overrides on fs, storing parsed values in
// into. Call ApplyFlags after Load to copy the flags the user actually set.
func BindFlags(fs *pflag.FlagSet, into *Config) {
	fs.StringVar(&into.Logging.Level, "log-level", into.Logging.Level, "log level (debug, info, warn, error)")
	fs.StringVar(&into.Logging.File, "log-file", into.Logging.File, "also write logs to this file")
	fs.StringVar(&into.Workspace.Root, "workspace", into.Workspace.Root, "directory holding automation packages")
	fs.StringVar(&into.Robot.Binary, "rcc", into.Robot.Binary, "robot-automation CLI binary")
	fs.StringVar(&into.ActionServer.Binary, "action-server", into.ActionServer.Binary, "automation server binary")
	fs.IntVar(&into.ActionServer.StartPort, "start-port", into.ActionServer.StartPort, "first port tried when starting an automation server")
	fs.DurationVar(&into.ActionServer.Timeout, "start-timeout", into.ActionServer.Timeout, "how long to wait for an automation server to become ready")
	fs.StringVar(&into.State.Dir, "state-dir", into.State.Dir, "directory for persisted server handles")
	fs.BoolVar(&into.Dashboard.Enabled, "dashboard", into.Dashboard.Enabled, "serve the HTTP dashboard")
	fs.StringVar(&into.Dashboard.Addr, "dashboard-addr", into.Dashboard.Addr, "dashboard listen address")
}

// ApplyFlags copies every flag changed on the command line from flags into
// cfg and re-validates the result.
func ApplyFlags(fs *pflag.FlagSet, flags, cfg *Config) error {
	for _, b := range flagBindings {
		if f := fs.Lookup(b.name); f != nil && f.Changed {
			b.apply(flags, cfg)
		}
	}
	return cfg.Validate()
}
