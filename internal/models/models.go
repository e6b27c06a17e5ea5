// Package models defines the entities shared by the monitoring engine, its
// stores and its transports.
//
// The JSON field names are the wire representation used by the REST API, the
// SSE stream and the WebSocket stream.
package models

import (
	"maps"
	"time"
)

// Status is the health classification of an endpoint.
type Status string

const (
	// StatusHealthy means the last probe received a 2xx response.
	StatusHealthy Status = "healthy"

	// StatusUnhealthy means the last probe failed or received a non-2xx response.
	StatusUnhealthy Status = "unhealthy"

	// StatusUnknown means the endpoint has never been probed.
	StatusUnknown Status = "unknown"
)

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Level is the severity of a [LogEntry].
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError:
		return true
	}
	return false
}

// Endpoint is a monitored HTTP target together with the outcome of its most
// recent probe.
//
// ID is assigned at registration and never changes. Only probe results
// mutate Status, LastChecked, ResponseTimeMs and ErrorRatePercent.
type Endpoint struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`

	// Method is the HTTP method used for probes. Empty means GET.
	Method string `json:"method,omitempty"`

	// Headers are sent with every probe. They may carry credentials and are
	// never serialised.
	Headers map[string]string `json:"-"`

	// Timeout overrides the engine's probe timeout when positive.
	Timeout time.Duration `json:"-"`

	Status Status `json:"status"`

	// LastChecked is nil until the first probe completes.
	LastChecked *time.Time `json:"last_checked"`

	ResponseTimeMs   int64   `json:"response_time_ms"`
	ErrorRatePercent float64 `json:"error_rate_percent"`
}

// Clone returns a deep copy of e.
func (e Endpoint) Clone() Endpoint {
	cp := e
	if e.Headers != nil {
		cp.Headers = maps.Clone(e.Headers)
	}
	if e.LastChecked != nil {
		t := *e.LastChecked
		cp.LastChecked = &t
	}
	return cp
}

// LogEntry is an immutable record of something the engine observed.
type LogEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`

	// Endpoint is the display name of the endpoint the entry refers to, or
	// "System" for engine-wide entries.
	Endpoint string `json:"endpoint"`
}

// Metrics is the current system-wide snapshot produced by the aggregator.
type Metrics struct {
	SystemHealthPercent float64 `json:"system_health_percent"`
	TotalRequests       uint64  `json:"total_requests"`
	ErrorRatePercent    float64 `json:"error_rate_percent"`
	AvgResponseTimeMs   int64   `json:"avg_response_time_ms"`
}

// PerformanceSample is one point of the rolling performance series.
type PerformanceSample struct {
	// Time is the wall-clock label of the sample, formatted as "15:04".
	Time string `json:"time"`

	Requests       uint64    `json:"requests"`
	ResponseTimeMs int64     `json:"response_time_ms"`
	RecordedAt     time.Time `json:"recorded_at"`
}

// SystemEndpoint is the endpoint name used for engine-wide log entries.
const SystemEndpoint = "System"
