package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/pulsecast/config"
)

// validateCmd validates a config file without starting the service.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a PulseCast configuration file without starting the service.

This command parses the YAML, expands environment variables, validates
all fields and builds every endpoint, grids included. It's useful for
CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  pulsecast validate -c config.yaml
  pulsecast validate --config /etc/pulsecast/config.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// grid templates only fail once expanded
	endpoints, err := config.BuildEndpoints(cfg)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	directEndpoints := len(cfg.Endpoints)
	gridEndpoints := len(endpoints) - directEndpoints

	relay := "disabled"
	if cfg.Redis.Enabled() {
		relay = cfg.Redis.Addr
	}

	fmt.Printf("Config is valid!\n")
	fmt.Printf("  Port:                 %d\n", cfg.Port)
	fmt.Printf("  Check interval:       %s\n", cfg.CheckInterval.Duration())
	fmt.Printf("  Performance interval: %s\n", cfg.PerformanceInterval.Duration())
	fmt.Printf("  Metrics source:       %s\n", cfg.MetricsSource)
	fmt.Printf("  Redis relay:          %s\n", relay)
	fmt.Printf("  Endpoints:            %d direct + %d from grids = %d total\n",
		directEndpoints, gridEndpoints, len(endpoints))

	return nil
}
