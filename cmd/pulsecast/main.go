// Package main is the entry point for the pulsecast CLI.
//
// PulseCast can be run either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	pulsecast serve -c config.yaml           # Start monitoring and the API
//	pulsecast validate -c config.yaml        # Validate configuration
//	pulsecast check -c config.yaml [--id x]  # Run one check and print JSON
//	pulsecast version                        # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set by GoReleaser at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "pulsecast",
	Short: "A real-time endpoint monitor with live event streams",
	Long: `PulseCast probes HTTP endpoints on a timer or on demand, keeps recent
state in memory and pushes every change to connected observers over
Server-Sent Events and WebSocket.

Quick start:
  1. Create a config file (pulsecast.yaml)
  2. Run: pulsecast serve -c pulsecast.yaml
  3. Stream events: curl -N http://localhost:8080/api/sse

Example config:
  port: 8080
  check_interval: 30s
  endpoints:
    - id: github
      name: GitHub API
      url: https://api.github.com`,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this pulsecast binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pulsecast %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// newLogger creates a JSON logger for CLI use, tagged with the service name.
func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	raw, _ := cmd.Flags().GetString("log-level")

	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q: %w", raw, err)
	}

	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h).With("service", "pulsecast"), nil
}
