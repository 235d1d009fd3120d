package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/junctionbox-simulator/internal/config"
	"github.com/signalsfoundry/junctionbox-simulator/internal/envserver"
	"github.com/signalsfoundry/junctionbox-simulator/internal/logging"
	"github.com/signalsfoundry/junctionbox-simulator/internal/observability"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve environments over gRPC",
		Long: `Serve opens the EnvironmentService on --grpc-addr. Every Reset without a
session id opens a new environment session. Prometheus metrics are served
on --metrics-addr under /metrics; pass an empty address to disable them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("grpc-addr") {
				cfg.Server.GRPCAddr, _ = cmd.Flags().GetString("grpc-addr")
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Server.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
			}
			if cmd.Flags().Changed("max-sessions") {
				cfg.Server.MaxSessions, _ = cmd.Flags().GetInt("max-sessions")
			}

			ctx, log, cleanup, err := startCommand(cmd, cfg)
			if err != nil {
				return err
			}
			defer cleanup()

			lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.GRPCAddr, err)
			}
			return run(ctx, cfg, log, lis)
		},
	}

	cmd.Flags().String("grpc-addr", ":50051", "TCP address the environment gRPC server listens on")
	cmd.Flags().String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	cmd.Flags().Int("max-sessions", 0, "Maximum concurrently open sessions (0 = unlimited)")
	return cmd
}

// run serves the environment service on lis until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config, log logging.Logger, lis net.Listener) error {
	collector, err := observability.NewEnvCollector(prometheus.NewRegistry())
	if err != nil {
		return fmt.Errorf("initialise metrics collector: %w", err)
	}
	metricsSrv := serveMetrics(cfg.Server.MetricsAddr, collector, log)

	registry := envserver.NewSessionRegistry(cfg.Server.MaxSessions)
	svc := envserver.NewEnvironmentService(registry, cfg.EpisodeConfig(), log,
		envserver.WithMetricsRecorder(collector),
	)
	server := envserver.NewGRPCServer(svc, collector, log)

	log.Info(ctx, "starting environment gRPC server",
		logging.String("addr", lis.Addr().String()),
		logging.Int("max_sessions", cfg.Server.MaxSessions),
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info(context.Background(), "shutting down environment server",
			logging.Int("open_sessions", registry.Len()),
		)
		server.GracefulStop()
	case serveErr = <-errCh:
		if errors.Is(serveErr, net.ErrClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	if serveErr != nil {
		return fmt.Errorf("gRPC server exited: %w", serveErr)
	}
	return nil
}

func serveMetrics(addr string, collector *observability.EnvCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
