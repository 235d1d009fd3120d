// Command jboxsim serves junction-box placement environments over gRPC and
// runs baseline agents against them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/junctionbox-simulator/internal/config"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/observability"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "jboxsim",
		Short: "Junction-box placement environment",
		Long: `jboxsim simulates placing junction boxes that wire typed sensors in a
3D voxel space while avoiding constraint cells.

Use "serve" to expose environments to remote agents over gRPC and
"rollout" to run baseline agents and record their results.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().String("config", "", "Path to a YAML config file")

	rootCmd.AddCommand(
		newVersionCmd(),
		newServeCmd(),
		newRolloutCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "jboxsim version %s\n", version)
		},
	}
}

// loadConfig reads --config and JBOX_* variables. Callers apply their own
// flags and then validate.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// startCommand validates cfg and sets up logging, tracing and signal
// handling shared by the long-running subcommands.
func startCommand(cmd *cobra.Command, cfg *config.Config) (context.Context, logging.Logger, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logging.New(cfg.LoggerConfig())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, log)
	if err != nil {
		stop()
		return nil, nil, nil, fmt.Errorf("init tracing: %w", err)
	}

	cleanup := func() {
		observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdownTracing, log)
		stop()
	}
	return ctx, log, cleanup, nil
}
