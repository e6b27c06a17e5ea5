package pulsecast

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/pulsecast/internal/hub"
	"github.com/jpalmerr/pulsecast/internal/models"
	"github.com/jpalmerr/pulsecast/internal/monitor"
	"github.com/jpalmerr/pulsecast/internal/probe"
	"github.com/jpalmerr/pulsecast/internal/relay"
	"github.com/jpalmerr/pulsecast/internal/server"
	"github.com/jpalmerr/pulsecast/internal/telemetry"
)

const (
	defaultCheckInterval       = monitor.DefaultCheckInterval
	defaultPerformanceInterval = monitor.DefaultPerformanceInterval
	defaultProbeTimeout        = probe.DefaultTimeout
	defaultPort                = 8080
	defaultLogCapacity         = monitor.DefaultLogCapacity
	defaultPerformanceCapacity = monitor.DefaultPerformanceCapacity
)

// PulseCast probes a set of HTTP endpoints, keeps bounded in-memory state
// about them and pushes every change to connected observers.
//
// PulseCast is created using [New] with functional options and started with
// [PulseCast.Start]. Checks can also be triggered directly with
// [PulseCast.SingleCheck] and [PulseCast.BulkCheck], with or without Start.
//
// The typical lifecycle is:
//
//	pc, err := pulsecast.New(pulsecast.WithEndpoint(ep))
//	if err != nil {
//	    slog.Error("failed to create pulsecast", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	pc.Start(ctx) // blocks until context cancelled
//
// A PulseCast runs once: after Start returns, create a new instance to
// monitor again.
type PulseCast struct {
	registry *monitor.MemoryRegistry
	engine   *monitor.Orchestrator
	hub      *hub.Hub
	prober   *probe.Client
	server   *server.Server
	metrics  *telemetry.Metrics

	checkInterval time.Duration
	port          int
	redis         *redisConfig
	logger        *slog.Logger

	startOnce sync.Once
}

// New creates a new [PulseCast] instance with the given options.
//
// Options have sensible defaults:
//   - Check interval: 30 seconds
//   - Performance interval: 30 minutes
//   - Probe timeout: 10 seconds
//   - Port: 8080
//   - Max concurrency: 10
//   - Log capacity: 100, performance capacity: 24
//
// An instance with no endpoints is valid; endpoints can be added later with
// [PulseCast.Register].
//
// Returns an error if any option is invalid or two endpoints share an id.
//
// Example:
//
//	pc, err := pulsecast.New(
//	    pulsecast.WithEndpoint(ep),
//	    pulsecast.WithCheckInterval(time.Minute),
//	    pulsecast.WithPort(9090),
//	)
func New(opts ...Option) (*PulseCast, error) {
	cfg := &pcConfig{
		endpoints:           []Endpoint{},
		checkInterval:       defaultCheckInterval,
		performanceInterval: defaultPerformanceInterval,
		probeTimeout:        defaultProbeTimeout,
		port:                defaultPort,
		logCapacity:         defaultLogCapacity,
		performanceCapacity: defaultPerformanceCapacity,
		observerBuffer:      hub.DefaultBuffer,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.port < 1 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	eps := make([]models.Endpoint, len(cfg.endpoints))
	for i, ep := range cfg.endpoints {
		eps[i] = ep.model()
	}
	registry, err := monitor.NewMemoryRegistry(eps...)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoints: %w", err)
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	registerer := cfg.registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}
	metrics := telemetry.New(registerer)

	h := hub.New(
		hub.WithBuffer(cfg.observerBuffer),
		hub.WithMetrics(metrics),
		hub.WithLogger(logger),
	)
	prober := probe.NewClient(cfg.probeTimeout)

	engine := monitor.New(registry, prober, h, monitor.Config{
		CheckInterval:       cfg.checkInterval,
		PerformanceInterval: cfg.performanceInterval,
		MaxConcurrency:      cfg.maxConcurrency,
		LogCapacity:         cfg.logCapacity,
		PerformanceCapacity: cfg.performanceCapacity,
		ErrorRate:           cfg.errorRate,
		Performance:         cfg.performance,
		RequestIncrement:    cfg.requestIncrement,
		Logger:              logger,
		Metrics:             metrics,
	})

	pc := &PulseCast{
		registry:      registry,
		engine:        engine,
		hub:           h,
		prober:        prober,
		metrics:       metrics,
		checkInterval: cfg.checkInterval,
		port:          cfg.port,
		redis:         cfg.redis,
		logger:        logger,
	}
	pc.server = server.NewServer(pc, h, server.Config{
		Port:     cfg.port,
		Title:    cfg.title,
		Gatherer: gatherer,
		Metrics:  metrics,
		Logger:   logger,
	})
	return pc, nil
}

// Start begins periodic checks and serves the HTTP API.
//
// Start is a blocking call that runs until the provided context is cancelled.
// During execution:
//
//   - A bulk check runs immediately, then at the configured interval
//   - A performance sample is recorded at the performance interval
//   - The HTTP server starts on the configured port
//   - Events are relayed to Redis when [WithRedisRelay] is set
//
// Returns nil on graceful shutdown. Returns an error if the HTTP server
// fails to start or Start was already called.
func (pc *PulseCast) Start(ctx context.Context) error {
	first := false
	pc.startOnce.Do(func() { first = true })
	if !first {
		return fmt.Errorf("pulsecast already started")
	}

	pc.logger.Info("pulsecast starting", "endpoint_count", pc.registry.Len())
	pc.logger.Info("checks configured", "interval", pc.checkInterval.String())
	pc.logger.Info("api available", "url", fmt.Sprintf("http://localhost:%d", pc.port))

	// check if context already cancelled
	if ctx.Err() != nil {
		pc.shutdown()
		return nil
	}

	// start the HTTP server before the first check so observers can attach
	if err := pc.server.Start(ctx); err != nil {
		pc.shutdown()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	var wg sync.WaitGroup
	if pc.redis != nil {
		client, err := relay.NewRedisClient(pc.redis.addr, pc.redis.password, pc.redis.db)
		if err != nil {
			pc.logger.Warn("redis relay unavailable", "addr", pc.redis.addr, "error", err)
		} else {
			defer client.Close()
			r := relay.New(pc.hub, client, pc.engine.Topic(), pc.redis.channel,
				relay.WithLogger(pc.logger),
				relay.WithMetrics(pc.metrics),
			)
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = r.Run(ctx)
			}()
		}
	}

	pc.engine.Start(ctx)

	<-ctx.Done()
	pc.shutdown()
	wg.Wait()
	pc.logger.Info("pulsecast stopped")
	return nil
}

// shutdown stops the check loops, closes every subscription and releases
// idle probe connections.
func (pc *PulseCast) shutdown() {
	pc.engine.Stop()
	pc.hub.Close()
	pc.prober.Close()
}

// SingleCheck probes one endpoint by id, records the result and publishes an
// endpoint event followed by a log event. Returns [ErrNotFound] for an
// unknown id.
func (pc *PulseCast) SingleCheck(ctx context.Context, id string) (EndpointStatus, error) {
	return pc.engine.SingleCheck(ctx, id)
}

// BulkCheck probes every endpoint concurrently, recomputes the system
// metrics and publishes one metrics event, one endpoint event per endpoint
// and a summary log event, in that order.
func (pc *PulseCast) BulkCheck(ctx context.Context) (BulkResult, error) {
	return pc.engine.BulkCheck(ctx)
}

// RecordPerformance appends one performance sample and publishes it.
func (pc *PulseCast) RecordPerformance(ctx context.Context) (PerformanceSample, error) {
	return pc.engine.RecordPerformance(ctx)
}

// AddLog records an activity log entry and publishes it. An empty endpoint
// is recorded as "System".
func (pc *PulseCast) AddLog(level Level, message, endpoint string) (LogEntry, error) {
	return pc.engine.AddLog(level, message, endpoint)
}

// Register adds an endpoint at runtime under a generated id.
func (pc *PulseCast) Register(name, url string) (EndpointStatus, error) {
	return pc.registry.Register(name, url)
}

// Subscribe returns a new subscription to every event PulseCast publishes.
func (pc *PulseCast) Subscribe() *Subscription {
	return pc.hub.Subscribe(pc.engine.Topic())
}

// Unsubscribe releases sub. It is safe to call more than once.
func (pc *PulseCast) Unsubscribe(sub *Subscription) {
	pc.hub.Unsubscribe(sub)
}

// Endpoints returns every registered endpoint with its latest probe state,
// in registration order.
func (pc *PulseCast) Endpoints() []EndpointStatus {
	return pc.engine.Endpoints()
}

// Logs returns the activity log, newest first.
func (pc *PulseCast) Logs() []LogEntry {
	return pc.engine.Logs()
}

// Performance returns the performance series, oldest first.
func (pc *PulseCast) Performance() []PerformanceSample {
	return pc.engine.Performance()
}

// Metrics returns the latest system metrics.
func (pc *PulseCast) Metrics() Metrics {
	return pc.engine.Metrics()
}

// State reports whether a check is in progress.
func (pc *PulseCast) State() State {
	return pc.engine.State()
}

// Topic returns the hub topic events are published on.
func (pc *PulseCast) Topic() string {
	return pc.engine.Topic()
}

// Handler returns the HTTP API without starting a listener, for mounting
// under an existing server.
func (pc *PulseCast) Handler() http.Handler {
	return pc.server.Handler()
}

// Port returns the configured HTTP port.
func (pc *PulseCast) Port() int {
	return pc.port
}

// CheckInterval returns the configured interval between bulk checks.
func (pc *PulseCast) CheckInterval() time.Duration {
	return pc.checkInterval
}
