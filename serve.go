package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"actions-bootstrapper/actionserver"
	"actions-bootstrapper/config"
	"actions-bootstrapper/dashboard"
	"actions-bootstrapper/logging"
	"actions-bootstrapper/metrics"
	"actions-bootstrapper/process"
	"actions-bootstrapper/robot"
	"actions-bootstrapper/store"
	"actions-bootstrapper/supervisor"
	"actions-bootstrapper/tools"
	"actions-bootstrapper/workspace"
)

// flagValues receives the serve flags; only the ones set on the command line
// are copied over the loaded config.
var flagValues = config.Default()

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP server on stdio",
	Long: `Run the MCP server on stdio, optionally with the HTTP dashboard.

Configuration comes from defaults, the --config file, BOOTSTRAPPER_*
environment variables and finally these flags.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	config.BindFlags(serveCmd.Flags(), flagValues)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyFlags(cmd.Flags(), flagValues, cfg); err != nil {
		return fmt.Errorf("validating flags: %w", err)
	}

	logger, closer, err := logging.New(cfg.Logging, version)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer closer.Close()

	st, err := store.OpenDir(cfg.State.Dir)
	if err != nil {
		return err
	}
	defer st.Close()

	helperCmd, err := helperCommand(cfg.ActionServer)
	if err != nil {
		return err
	}

	m := metrics.New()
	mgr := process.NewManager(st, logger, cfg.ActionServer.KillTimeout)
	defer mgr.Shutdown()

	client := actionserver.NewClient(nil, logger)
	sup := supervisor.New(supervisor.Options{
		Helper:       helperCmd,
		StartPort:    cfg.ActionServer.StartPort,
		LogFile:      cfg.ActionServer.LogFile,
		Grace:        cfg.ActionServer.Grace,
		PollInterval: cfg.ActionServer.PollInterval,
		Timeout:      cfg.ActionServer.Timeout,
		StopGrace:    cfg.ActionServer.KillTimeout,
	}, mgr, client, m, logger)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "actions-bootstrapper",
		Version: version,
	}, nil)
	tools.Register(server, tools.Deps{
		Robot:      robot.NewRunner(cfg.Robot.Binary, m, logger),
		Workspace:  workspace.New(cfg.Workspace, cfg.ActionServer.Binary, logger),
		Supervisor: sup,
		Launcher:   mgr,
		Client:     client,
		Metrics:    m,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		// The session ends when the client closes stdin; take the dashboard
		// down with it.
		defer stop()
		logger.Info("serving MCP on stdio", "version", version, "workspace", cfg.Workspace.Root)
		err := server.Run(gctx, &mcp.StdioTransport{})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if cfg.Dashboard.Enabled {
		dash := dashboard.NewServer(cfg.Dashboard.Addr, mgr, sup, m, logger)
		g.Go(dash.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return dash.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// helperCommand returns the configured helper argv, or this binary's
// launch-helper subcommand carrying the automation server settings.
func helperCommand(cfg config.ActionServerConfig) ([]string, error) {
	if len(cfg.Helper) > 0 {
		return cfg.Helper, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locating executable: %w", err)
	}
	argv := []string{exe, "launch-helper",
		"--action-server", cfg.Binary,
		"--log-file", cfg.LogFile,
	}
	for _, a := range cfg.StartArgs {
		argv = append(argv, "--start-arg", a)
	}
	// Everything after -- is dir, port and secrets.
	return append(argv, "--"), nil
}
