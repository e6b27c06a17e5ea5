package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecast"
	"github.com/jpalmerr/pulsecast/config"
)

const (
	shutdownTimeout = 10 * time.Second
)

// serveCmd starts monitoring and the HTTP API.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start monitoring and the HTTP API",
	Long: `Start the PulseCast service.

The service will:
  - Load configuration from the specified YAML file
  - Run a bulk check immediately, then every check_interval
  - Record a performance sample every performance_interval
  - Serve the REST API, SSE stream, WebSocket stream and /metrics
  - Relay events to Redis when a redis address is configured

The service runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  pulsecast serve -c config.yaml
  pulsecast serve --config /etc/pulsecast/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger.Info("config loaded",
		"endpoints", len(cfg.Endpoints),
		"grids", len(cfg.Grids),
		"metrics_source", cfg.MetricsSource,
		"redis", cfg.Redis.Enabled(),
	)

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build endpoints: %w", err)
	}

	pc, err := pulsecast.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create PulseCast: %w", err)
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// start server - blocks until context cancelled
	errChan := make(chan error, 1)
	go func() {
		errChan <- pc.Start(ctx)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("shutdown complete")
		return nil

	case <-ctx.Done():
		// signal received, wait for graceful shutdown with timeout
		select {
		case err := <-errChan:
			if err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			logger.Info("shutdown complete")
			return nil
		case <-time.After(shutdownTimeout):
			logger.Warn("shutdown timed out",
				"timeout", shutdownTimeout.String(),
				"action", "forcing exit",
			)
			return nil
		}
	}
}
