// Package telemetry holds the Prometheus collectors exported by PulseCast.
//
// A nil *Metrics is valid and records nothing, so components can be built
// without instrumentation in tests.
package telemetry

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pulsecast"

var (
	probeBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}
	httpBuckets  = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics groups the collectors used across the engine, hub and server.
type Metrics struct {
	probeDuration   *prometheus.HistogramVec
	checks          *prometheus.CounterVec
	eventsPublished *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	subscribers     *prometheus.GaugeVec
	relayFailures   prometheus.Counter
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered. Collectors already registered by an earlier call are
// reused.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "probe",
			Name:      "duration_seconds",
			Help:      "Latency distribution of endpoint probes",
			Buckets:   probeBuckets,
		}, []string{"endpoint", "outcome"}),
		checks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "monitor",
			Name:      "checks_total",
			Help:      "Number of single and bulk checks by outcome",
		}, []string{"kind", "outcome"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_published_total",
			Help:      "Number of events published to the hub",
		}, []string{"type"}),
		eventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "events_dropped_total",
			Help:      "Number of queued events dropped for saturated observers",
		}, []string{"type"}),
		subscribers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscribers",
			Help:      "Number of observers currently subscribed",
		}, []string{"topic"}),
		relayFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "relay",
			Name:      "publish_failures_total",
			Help:      "Number of events the relay failed to forward",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Count of processed HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers",
			Buckets:   httpBuckets,
		}, []string{"method", "route", "status"}),
	}

	if reg == nil {
		return m
	}

	m.probeDuration = register(reg, m.probeDuration)
	m.checks = register(reg, m.checks)
	m.eventsPublished = register(reg, m.eventsPublished)
	m.eventsDropped = register(reg, m.eventsDropped)
	m.subscribers = register(reg, m.subscribers)
	m.relayFailures = register(reg, m.relayFailures)
	m.httpRequests = register(reg, m.httpRequests)
	m.httpDuration = register(reg, m.httpDuration)
	return m
}

// register adds c to reg, returning the existing collector when an identical
// one is already registered.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// ObserveProbe records one probe outcome ("ok", "timeout", "connection", "status").
func (m *Metrics) ObserveProbe(endpoint, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.probeDuration.WithLabelValues(endpoint, outcome).Observe(d.Seconds())
}

// CountCheck records one single or bulk check.
func (m *Metrics) CountCheck(kind, outcome string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(kind, outcome).Inc()
}

// EventPublished records one published event.
func (m *Metrics) EventPublished(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}

// EventDropped records one event dropped for a saturated observer.
func (m *Metrics) EventDropped(eventType string) {
	if m == nil {
		return
	}
	m.eventsDropped.WithLabelValues(eventType).Inc()
}

// SubscriberAdded increments the subscriber gauge for topic.
func (m *Metrics) SubscriberAdded(topic string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(topic).Inc()
}

// SubscriberRemoved decrements the subscriber gauge for topic.
func (m *Metrics) SubscriberRemoved(topic string) {
	if m == nil {
		return
	}
	m.subscribers.WithLabelValues(topic).Dec()
}

// RelayFailed records one event the relay could not forward.
func (m *Metrics) RelayFailed() {
	if m == nil {
		return
	}
	m.relayFailures.Inc()
}

// ObserveHTTP records one handled HTTP request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	labels := prometheus.Labels{
		"method": method,
		"route":  route,
		"status": strconv.Itoa(status),
	}
	m.httpRequests.With(labels).Inc()
	m.httpDuration.With(labels).Observe(d.Seconds())
}
