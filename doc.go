// Package pulsecast provides an embeddable real-time endpoint monitor that
// pushes every state change to connected observers.
//
// PulseCast probes a set of HTTP endpoints on a timer or on demand, keeps
// the latest endpoint states, a bounded activity log and a bounded series
// of performance samples in memory, and publishes metrics, endpoint, log
// and performance events on a single topic. Observers consume the topic
// in-process via [PulseCast.Subscribe], or remotely over Server-Sent
// Events and WebSocket.
//
// # Quick Start
//
// Create endpoints and start monitoring with graceful shutdown:
//
//	ep, _ := pulsecast.NewEndpoint("api", "API", "https://api.example.com/health")
//	pc, _ := pulsecast.New(pulsecast.WithEndpoint(ep))
//
//	// Set up graceful shutdown on SIGINT/SIGTERM
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	pc.Start(ctx) // blocks until context is cancelled
//
// # Configuration
//
// PulseCast uses the functional options pattern for configuration:
//
//	pc, err := pulsecast.New(
//	    pulsecast.WithEndpoints(ep1, ep2),
//	    pulsecast.WithCheckInterval(30 * time.Second),
//	    pulsecast.WithPerformanceInterval(30 * time.Minute),
//	    pulsecast.WithPort(9090),
//	    pulsecast.WithRedisRelay("localhost:6379", "", 0, "pulsecast:monitoring"),
//	)
//
// Endpoints accept their own options:
//
//	ep, err := pulsecast.NewEndpoint("api", "API", "https://api.example.com/health",
//	    pulsecast.WithHeaders("Authorization", "Bearer token"),
//	    pulsecast.WithTimeout(5 * time.Second),
//	    pulsecast.WithMethod("HEAD"),
//	)
//
// # Checks
//
// [PulseCast.SingleCheck] probes one endpoint and records an info or error
// log entry. [PulseCast.BulkCheck] probes every endpoint concurrently,
// recomputes the aggregate [Metrics] and appends one summary entry.
// Both can run while the timer loop is active.
//
// Error rates, request counts and performance samples come from observed
// probe outcomes by default. [WithSyntheticMetrics] switches them to
// randomised demo values.
//
// # Architecture
//
// PulseCast consists of several internal packages (under internal/):
//
//   - internal/probe: HTTP probing with per-endpoint timeouts
//   - internal/store: Bounded newest-first buffers for logs and samples
//   - internal/aggregate: Metrics derived from endpoint states
//   - internal/hub: Topic-based fan-out to subscribers
//   - internal/monitor: Endpoint registry and the check orchestrator
//   - internal/relay: Optional Redis pub/sub relay of hub events
//   - internal/server: REST API, SSE and WebSocket streams
//   - internal/telemetry: Prometheus collectors
//
// The internal packages are not part of the public API and may change
// without notice.
package pulsecast
