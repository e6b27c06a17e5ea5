// Package monitor contains the monitoring control loop.
//
// An [Orchestrator] probes the endpoints of a [Registry], records each
// result in its stores, reduces bulk checks into system metrics and
// publishes every state change to a hub topic. Checks run on demand
// through [Orchestrator.SingleCheck] and [Orchestrator.BulkCheck], or on
// the check timer started by [Orchestrator.Start].
//
// Error rates and performance samples come from pluggable sources.
// [ObservedErrorRate] and [ObservedPerformance] derive them from real probe
// results; the synthetic variants generate demo values.
package monitor
