package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"actions-bootstrapper/config"
	"actions-bootstrapper/helper"
)

var helperOpts = func() helper.Options {
	d := config.Default().ActionServer
	return helper.Options{Binary: d.Binary, LogFile: d.LogFile}
}()

var launchHelperCmd = &cobra.Command{
	Use:    "launch-helper [flags] -- <dir> <port> <secrets>",
	Short:  "Run an automation server for a package (spawned by serve)",
	Hidden: true,
	Args:   cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		// Signals are forwarded to the automation server by helper.Run; the
		// context only ends when the helper itself is told to stop hard.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGHUP)
		defer stop()

		opts := helperOpts
		opts.Stdout = os.Stdout
		opts.Stderr = os.Stderr
		return helper.Run(ctx, opts, args[0], args[1], args[2])
	},
}

func init() {
	f := launchHelperCmd.Flags()
	f.StringVar(&helperOpts.Binary, "action-server", helperOpts.Binary, "automation server binary")
	f.StringVar(&helperOpts.LogFile, "log-file", helperOpts.LogFile, "log file name inside the package directory")
	f.StringArrayVar(&helperOpts.StartArgs, "start-arg", nil, "extra argument for the start command (repeatable)")
}
