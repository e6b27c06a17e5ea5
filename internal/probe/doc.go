// Package probe performs single timed HTTP health checks.
//
// A probe sends exactly one request, measures wall-clock latency and never
// returns an error past its boundary: timeouts, connection failures and
// non-2xx responses are all reported as data in a [Result] with OK=false and
// an [Error] describing the failure.
//
// The main components are:
//
//   - [Prober]: the capability the monitoring engine depends on
//   - [Client]: HTTP implementation with a pooled transport
//   - [Error]: failure detail matching [ErrTimeout], [ErrConnectionFailure]
//     and [ErrNonSuccessStatus]
package probe
