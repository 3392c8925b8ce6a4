package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "actions-bootstrapper",
	Short: "MCP server for scaffolding, running and supervising automation packages",
	Long: `actions-bootstrapper exposes the robot-automation CLI (rcc) and the
action-server lifecycle as MCP tools over stdio.

Example:
  actions-bootstrapper serve
  actions-bootstrapper serve --config ~/.actions_bootstrapper/config.yaml --dashboard
`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.AddCommand(serveCmd, launchHelperCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
