package pulsecast

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/pulsecast/internal/aggregate"
	"github.com/jpalmerr/pulsecast/internal/monitor"
	"github.com/jpalmerr/pulsecast/internal/probe"
)

// pcConfig holds mutable state during PulseCast construction.
type pcConfig struct {
	title               string
	endpoints           []Endpoint
	checkInterval       time.Duration
	performanceInterval time.Duration
	probeTimeout        time.Duration
	port                int
	maxConcurrency      int
	logCapacity         int
	performanceCapacity int
	observerBuffer      int
	logger              *slog.Logger
	requestIncrement    RequestIncrement
	errorRate           ErrorRateSource
	performance         PerformanceSource
	redis               *redisConfig
	registerer          prometheus.Registerer
}

type redisConfig struct {
	addr     string
	password string
	db       int
	channel  string
}

// RequestIncrement returns how much one probe adds to the cumulative
// request counter.
type RequestIncrement = aggregate.RequestIncrement

// Outcome is the per-endpoint input to metric aggregation.
type Outcome = aggregate.Outcome

// ProbeResult is the outcome of one probe.
type ProbeResult = probe.Result

// ErrorRateSource computes an endpoint's error rate after a probe.
type ErrorRateSource = monitor.ErrorRateSource

// PerformanceSource produces the periodic performance samples.
type PerformanceSource = monitor.PerformanceSource

var (
	// OnePerProbe counts each probe as one request.
	OnePerProbe RequestIncrement = aggregate.OnePerProbe

	// ObservedErrorRate is the default [ErrorRateSource]: an exponentially
	// weighted failure percentage over the endpoint's probe history.
	ObservedErrorRate ErrorRateSource = monitor.ObservedErrorRate

	// SyntheticErrorRate draws demo values from fixed ranges.
	SyntheticErrorRate ErrorRateSource = monitor.SyntheticErrorRate
)

// Option is a function that configures a [PulseCast] instance during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*pcConfig) error

// WithEndpoint adds a single [Endpoint] to the monitored set.
//
// Can be called multiple times to add multiple endpoints. Endpoints may also
// be registered at runtime with [PulseCast.Register].
func WithEndpoint(e Endpoint) Option {
	return func(cfg *pcConfig) error {
		cfg.endpoints = append(cfg.endpoints, e)
		return nil
	}
}

// WithEndpoints adds multiple [Endpoint] values to the monitored set.
//
// Equivalent to calling [WithEndpoint] multiple times.
func WithEndpoints(endpoints ...Endpoint) Option {
	return func(cfg *pcConfig) error {
		cfg.endpoints = append(cfg.endpoints, endpoints...)
		return nil
	}
}

// WithCheckInterval sets how often a bulk check runs.
//
// Each bulk check probes every endpoint concurrently (up to the
// [WithMaxConcurrency] limit). Defaults to 30 seconds.
//
// Returns an error if the duration is zero or negative.
func WithCheckInterval(d time.Duration) Option {
	return func(cfg *pcConfig) error {
		if d <= 0 {
			return errors.New("check interval must be positive")
		}
		cfg.checkInterval = d
		return nil
	}
}

// WithPerformanceInterval sets how often a performance sample is recorded.
// Defaults to 30 minutes.
//
// Returns an error if the duration is zero or negative.
func WithPerformanceInterval(d time.Duration) Option {
	return func(cfg *pcConfig) error {
		if d <= 0 {
			return errors.New("performance interval must be positive")
		}
		cfg.performanceInterval = d
		return nil
	}
}

// WithProbeTimeout sets the default per-probe timeout. Endpoints may
// override it with [WithTimeout]. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithProbeTimeout(d time.Duration) Option {
	return func(cfg *pcConfig) error {
		if d <= 0 {
			return errors.New("probe timeout must be positive")
		}
		cfg.probeTimeout = d
		return nil
	}
}

// WithPort sets the HTTP port for the API server.
//
// Defaults to 8080 if not specified.
//
// Returns an error if the port is outside the valid range (1-65535).
func WithPort(port int) Option {
	return func(cfg *pcConfig) error {
		if port < 1 || port > 65535 {
			return errors.New("port must be between 1 and 65535")
		}
		cfg.port = port
		return nil
	}
}

// WithMaxConcurrency caps how many probes a bulk check runs at once.
//
// Use this to avoid overwhelming target services. Zero, the default, probes
// every endpoint at once.
//
// Returns an error if the value is negative.
func WithMaxConcurrency(n int) Option {
	return func(cfg *pcConfig) error {
		if n < 0 {
			return errors.New("max concurrency cannot be negative")
		}
		cfg.maxConcurrency = n
		return nil
	}
}

// WithLogCapacity sets how many activity log entries are retained.
// Defaults to 100.
//
// Returns an error if the value is zero or negative.
func WithLogCapacity(n int) Option {
	return func(cfg *pcConfig) error {
		if n <= 0 {
			return errors.New("log capacity must be positive")
		}
		cfg.logCapacity = n
		return nil
	}
}

// WithPerformanceCapacity sets how many performance samples are retained.
// Defaults to 24.
//
// Returns an error if the value is zero or negative.
func WithPerformanceCapacity(n int) Option {
	return func(cfg *pcConfig) error {
		if n <= 0 {
			return errors.New("performance capacity must be positive")
		}
		cfg.performanceCapacity = n
		return nil
	}
}

// WithObserverBuffer sets each subscriber's queue length. When a queue is
// full the oldest undelivered event is dropped. Defaults to 64.
//
// Returns an error if the value is zero or negative.
func WithObserverBuffer(n int) Option {
	return func(cfg *pcConfig) error {
		if n <= 0 {
			return errors.New("observer buffer must be positive")
		}
		cfg.observerBuffer = n
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the PulseCast instance.
//
// If not specified, [slog.Default] is used.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
//	pc, err := pulsecast.New(
//	    pulsecast.WithEndpoint(ep),
//	    pulsecast.WithLogger(logger),
//	)
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *pcConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithRequestIncrement sets how much each probe adds to the cumulative
// request counter. Defaults to [OnePerProbe].
//
// Returns an error if inc is nil.
func WithRequestIncrement(inc RequestIncrement) Option {
	return func(cfg *pcConfig) error {
		if inc == nil {
			return errors.New("request increment cannot be nil")
		}
		cfg.requestIncrement = inc
		return nil
	}
}

// WithErrorRateSource sets how per-endpoint error rates are derived.
// Defaults to [ObservedErrorRate].
//
// Returns an error if src is nil.
func WithErrorRateSource(src ErrorRateSource) Option {
	return func(cfg *pcConfig) error {
		if src == nil {
			return errors.New("error rate source cannot be nil")
		}
		cfg.errorRate = src
		return nil
	}
}

// WithPerformanceSource sets the producer of performance samples.
// Defaults to a source that reports probe counts and mean probe latency.
//
// Returns an error if src is nil.
func WithPerformanceSource(src PerformanceSource) Option {
	return func(cfg *pcConfig) error {
		if src == nil {
			return errors.New("performance source cannot be nil")
		}
		cfg.performance = src
		return nil
	}
}

// WithSyntheticMetrics replaces the observed error rate, request counter
// and performance samples with random demo values.
func WithSyntheticMetrics() Option {
	return func(cfg *pcConfig) error {
		cfg.errorRate = monitor.SyntheticErrorRate
		cfg.requestIncrement = aggregate.SyntheticIncrement
		cfg.performance = monitor.SyntheticPerformance{}
		return nil
	}
}

// WithRedisRelay forwards every published event to a Redis pub/sub channel.
// An empty channel selects "pulsecast:monitoring". If Redis is unreachable
// at start, the service logs a warning and runs without the relay.
//
// Returns an error if addr is empty or db is negative.
func WithRedisRelay(addr, password string, db int, channel string) Option {
	return func(cfg *pcConfig) error {
		if addr == "" {
			return errors.New("redis address cannot be empty")
		}
		if db < 0 {
			return errors.New("redis db cannot be negative")
		}
		cfg.redis = &redisConfig{addr: addr, password: password, db: db, channel: channel}
		return nil
	}
}

// WithMetricsRegisterer sets where Prometheus collectors are registered.
// If reg also implements [prometheus.Gatherer] it backs GET /metrics.
// Defaults to the global registry.
//
// Returns an error if reg is nil.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *pcConfig) error {
		if reg == nil {
			return errors.New("metrics registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}

// WithTitle sets the service name reported by GET /api/health.
//
// If not specified, defaults to "PulseCast".
func WithTitle(title string) Option {
	return func(cfg *pcConfig) error {
		cfg.title = title
		return nil
	}
}
