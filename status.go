package pulsecast

import (
	"github.com/jpalmerr/pulsecast/internal/hub"
	"github.com/jpalmerr/pulsecast/internal/models"
	"github.com/jpalmerr/pulsecast/internal/monitor"
)

// Status represents the health state of an endpoint.
type Status = models.Status

const (
	// StatusHealthy means the last probe received a 2xx response.
	StatusHealthy = models.StatusHealthy

	// StatusUnhealthy means the last probe failed or received a non-2xx response.
	StatusUnhealthy = models.StatusUnhealthy

	// StatusUnknown means the endpoint has never been probed.
	StatusUnknown = models.StatusUnknown
)

// Level is the severity of a [LogEntry].
type Level = models.Level

const (
	LevelInfo    = models.LevelInfo
	LevelWarning = models.LevelWarning
	LevelError   = models.LevelError
)

// EndpointStatus is an endpoint together with the outcome of its latest probe.
type EndpointStatus = models.Endpoint

// LogEntry is one entry of the newest-first activity log.
type LogEntry = models.LogEntry

// Metrics is the system-wide snapshot produced by each bulk check.
type Metrics = models.Metrics

// PerformanceSample is one point of the rolling performance series.
type PerformanceSample = models.PerformanceSample

// BulkResult is the outcome of [PulseCast.BulkCheck].
type BulkResult = monitor.BulkResult

// State is the engine's observable activity.
type State = monitor.State

// Event is one state change delivered to subscribers. Data holds a
// [Metrics], [EndpointStatus], [LogEntry] or [PerformanceSample] depending
// on Type.
type Event = hub.Event

// EventKind identifies the payload of an [Event].
type EventKind = hub.Kind

const (
	EventMetrics     = hub.KindMetrics
	EventEndpoint    = hub.KindEndpoint
	EventLog         = hub.KindLog
	EventPerformance = hub.KindPerformance
)

// Subscription is one observer's queue of events. Release it with
// [PulseCast.Unsubscribe].
type Subscription = hub.Subscription

var (
	// ErrNotFound is returned by [PulseCast.SingleCheck] for an unknown id.
	ErrNotFound = monitor.ErrNotFound

	// ErrCheckFailed is returned when a check result could not be recorded.
	ErrCheckFailed = monitor.ErrCheckFailed
)
