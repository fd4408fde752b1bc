// kasametrics polls TP-Link Kasa smart plugs and power strips on a fixed
// cadence and writes one batch of power measurements per cycle to InfluxDB
// or VictoriaMetrics.
//
// Usage:
//
//	kasametrics [run] [--config path]
//	kasametrics validate [--config path]
//	kasametrics migrate [up|down|status] [--config path]
//	kasametrics version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable consulted when --config is unset.
const configEnv = "KASAMETRICS_CONFIG"

func main() {
	// Cancels on Ctrl+C or SIGTERM; the scheduler stops at the next wait.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. The root command runs the collector.
func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "kasametrics",
		Short:         "Kasa smart plug power metrics collector",
		Long:          "Polls Kasa plugs and power strips and writes power measurements to a time-series database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath(cfgPath))
		},
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "",
		fmt.Sprintf("config file path (default $%s or %s)", configEnv, defaultConfigPath))

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the collector until interrupted",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd.Context(), configPath(cfgPath))
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check the configuration and print the device registry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return validate(cmd.OutOrStdout(), configPath(cfgPath))
			},
		},
		&cobra.Command{
			Use:       "migrate [up|down|status]",
			Short:     "Apply, revert or list history database migrations",
			Long:      "Applies pending migrations (up), reverts the latest one (down) or lists them (status, the default).",
			Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
			ValidArgs: []string{migrateUp, migrateDown, migrateStatus},
			RunE: func(cmd *cobra.Command, args []string) error {
				action := migrateStatus
				if len(args) == 1 {
					action = args[0]
				}
				return migrate(cmd.Context(), cmd.OutOrStdout(), configPath(cfgPath), action)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "kasametrics %s (commit %s, built %s)\n", version, commit, date)
			},
		},
	)

	return root
}

// configPath resolves the config file: flag, then environment, then default.
func configPath(flag string) string {
	if flag != "" {
		return flag
	}
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}
