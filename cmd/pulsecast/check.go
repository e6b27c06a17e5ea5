package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecast"
	"github.com/jpalmerr/pulsecast/config"
)

// checkCmd runs one check and prints the result.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run one health check and print the result as JSON",
	Long: `Run a single manual check without starting the service.

Without --id every configured endpoint is probed and the aggregated
metrics, endpoint states and summary log entry are printed. With --id
only that endpoint is probed.

Exit codes:
  0 - Check ran (regardless of endpoint health)
  1 - Config invalid, unknown id or check aborted

Example:
  pulsecast check -c config.yaml
  pulsecast check -c config.yaml --id payments`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	checkCmd.Flags().String("id", "", "check only the endpoint with this id")
	checkCmd.Flags().Duration("timeout", 60*time.Second, "overall deadline for the check")
	_ = checkCmd.MarkFlagRequired("config")
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts, err := config.BuildOptions(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build endpoints: %w", err)
	}
	// a one-shot run exposes no /metrics
	opts = append(opts, pulsecast.WithMetricsRegisterer(prometheus.NewRegistry()))

	pc, err := pulsecast.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create PulseCast: %w", err)
	}

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var result any
	if id, _ := cmd.Flags().GetString("id"); id != "" {
		result, err = pc.SingleCheck(ctx, id)
	} else {
		result, err = pc.BulkCheck(ctx)
	}
	if err != nil {
		return fmt.Errorf("check failed: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
