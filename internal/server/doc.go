// Package server provides the HTTP surface of PulseCast.
//
// This package handles all HTTP concerns:
//
//   - REST API under /api for endpoints, logs, metrics, performance and
//     manual health checks, using a {success, data | error} envelope
//   - Server-Sent Events at "/api/sse"
//   - WebSocket at "/ws", which also accepts check commands
//   - Prometheus exposition at "/metrics"
//
// Both streams subscribe to the engine's hub topic for the lifetime of the
// connection. The server supports graceful shutdown via context
// cancellation, with a 5-second timeout for in-flight requests.
package server
