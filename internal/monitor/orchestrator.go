package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsecast/internal/aggregate"
	"github.com/jpalmerr/pulsecast/internal/hub"
	"github.com/jpalmerr/pulsecast/internal/models"
	"github.com/jpalmerr/pulsecast/internal/probe"
	"github.com/jpalmerr/pulsecast/internal/store"
	"github.com/jpalmerr/pulsecast/internal/telemetry"
)

// ErrCheckFailed is returned when a check could not be recorded. The error
// message carries a correlation id matching the server-side log entry.
var ErrCheckFailed = errors.New("check failed")

// ErrInvalidLevel is returned by [Orchestrator.AddLog] for an unknown level.
var ErrInvalidLevel = errors.New("invalid log level")

const (
	DefaultCheckInterval       = 30 * time.Second
	DefaultPerformanceInterval = 30 * time.Minute
	DefaultLogCapacity         = 100
	DefaultPerformanceCapacity = 24
)

// State is the orchestrator's observable activity.
type State string

const (
	StateIdle           State = "idle"
	StateCheckingSingle State = "checking_single"
	StateCheckingBulk   State = "checking_bulk"
)

// Stores holds the state owned by an orchestrator.
type Stores struct {
	Endpoints   *store.Keyed[string, models.Endpoint]
	Logs        *store.Bounded[models.LogEntry]
	Performance *store.Bounded[models.PerformanceSample]
	Metrics     *store.Value[models.Metrics]
}

// NewStores creates empty stores. Non-positive log and performance
// capacities fall back to the defaults; endpointCapacity <= 0 is unbounded.
func NewStores(logCapacity, performanceCapacity, endpointCapacity int) *Stores {
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	if performanceCapacity <= 0 {
		performanceCapacity = DefaultPerformanceCapacity
	}
	return &Stores{
		Endpoints:   store.NewKeyed[string, models.Endpoint](endpointCapacity),
		Logs:        store.NewBounded[models.LogEntry](logCapacity),
		Performance: store.NewBounded[models.PerformanceSample](performanceCapacity),
		Metrics:     store.NewValue(models.Metrics{}),
	}
}

// Config controls an [Orchestrator]. Zero values select the defaults.
type Config struct {
	CheckInterval       time.Duration
	PerformanceInterval time.Duration

	// MaxConcurrency caps the number of probes in flight during a bulk
	// check. Zero means one worker per endpoint.
	MaxConcurrency int

	LogCapacity         int
	PerformanceCapacity int
	EndpointCapacity    int

	// Stores overrides the stores built from the capacities above.
	Stores *Stores

	ErrorRate        ErrorRateSource
	Performance      PerformanceSource
	RequestIncrement aggregate.RequestIncrement

	// Topic is the hub topic events are published on.
	Topic string

	Logger  *slog.Logger
	Metrics *telemetry.Metrics
}

// BulkResult is the outcome of one [Orchestrator.BulkCheck].
type BulkResult struct {
	Metrics   models.Metrics    `json:"metrics"`
	Endpoints []models.Endpoint `json:"endpoints"`
	Log       *models.LogEntry  `json:"log,omitempty"`
	Healthy   int               `json:"healthy"`
	Total     int               `json:"total"`
}

// Orchestrator runs single and bulk checks, records their results and
// publishes every state change to the hub.
//
// All methods are safe for concurrent use.
type Orchestrator struct {
	registry Registry
	prober   probe.Prober
	hub      *hub.Hub
	stores   *Stores
	agg      *aggregate.Aggregator

	checkInterval       time.Duration
	performanceInterval time.Duration
	maxConcurrency      int
	errorRate           ErrorRateSource
	performance         PerformanceSource
	topic               string
	logger              *slog.Logger
	telemetry           *telemetry.Metrics

	singles atomic.Int32
	bulks   atomic.Int32

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an orchestrator over reg, probing with p and publishing to h.
func New(reg Registry, p probe.Prober, h *hub.Hub, cfg Config) *Orchestrator {
	o := &Orchestrator{
		registry:            reg,
		prober:              p,
		hub:                 h,
		stores:              cfg.Stores,
		agg:                 aggregate.New(cfg.RequestIncrement),
		checkInterval:       cfg.CheckInterval,
		performanceInterval: cfg.PerformanceInterval,
		maxConcurrency:      cfg.MaxConcurrency,
		errorRate:           cfg.ErrorRate,
		performance:         cfg.Performance,
		topic:               cfg.Topic,
		logger:              cfg.Logger,
		telemetry:           cfg.Metrics,
	}
	if o.stores == nil {
		o.stores = NewStores(cfg.LogCapacity, cfg.PerformanceCapacity, cfg.EndpointCapacity)
	}
	if o.checkInterval <= 0 {
		o.checkInterval = DefaultCheckInterval
	}
	if o.performanceInterval <= 0 {
		o.performanceInterval = DefaultPerformanceInterval
	}
	if o.maxConcurrency < 0 {
		o.maxConcurrency = 0
	}
	if o.errorRate == nil {
		o.errorRate = ObservedErrorRate
	}
	if o.performance == nil {
		o.performance = NewObservedPerformance()
	}
	if o.topic == "" {
		o.topic = hub.TopicMonitoring
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// SingleCheck probes the endpoint registered under id, records the result,
// appends a log entry and publishes an endpoint event followed by a log
// event. An unknown id returns [ErrNotFound] without touching any state.
//
// If ctx is cancelled before the probe completes, the context error is
// returned and nothing is recorded.
func (o *Orchestrator) SingleCheck(ctx context.Context, id string) (models.Endpoint, error) {
	ep, err := o.registry.Get(id)
	if err != nil {
		return models.Endpoint{}, err
	}

	o.singles.Add(1)
	defer o.singles.Add(-1)

	res := o.probe(ctx, ep)
	if !res.OK && ctx.Err() != nil {
		o.telemetry.CountCheck("single", "cancelled")
		return models.Endpoint{}, fmt.Errorf("check %s: %w", id, ctx.Err())
	}

	var updated models.Endpoint
	err = o.guard("single check", func() error {
		var err error
		updated, err = o.record(ep, res)
		if err != nil {
			return err
		}

		level, msg := models.LevelInfo, "Health check passed"
		if !res.OK {
			level, msg = models.LevelError, "Health check failed: "+failureDetail(res)
		}
		entry := o.appendLog(level, msg, ep.Name)

		o.publish(hub.KindEndpoint, updated)
		o.publish(hub.KindLog, entry)
		return nil
	})
	if err != nil {
		o.telemetry.CountCheck("single", "error")
		return models.Endpoint{}, err
	}

	o.telemetry.CountCheck("single", string(updated.Status))
	return updated.Clone(), nil
}

// BulkCheck probes every registered endpoint concurrently, waits for all of
// them, then stores the reduced metrics, every endpoint record and one
// summary log entry. It publishes one metrics event, one endpoint event per
// endpoint and one log event, in that order.
//
// With no registered endpoints nothing is recorded or published and the
// current metrics are returned.
func (o *Orchestrator) BulkCheck(ctx context.Context) (BulkResult, error) {
	eps := o.registry.List()
	if len(eps) == 0 {
		return BulkResult{Metrics: o.stores.Metrics.Load()}, nil
	}

	o.bulks.Add(1)
	defer o.bulks.Add(-1)

	results := o.probeAll(ctx, eps)
	if err := ctx.Err(); err != nil {
		o.telemetry.CountCheck("bulk", "cancelled")
		return BulkResult{}, fmt.Errorf("bulk check: %w", err)
	}

	var out BulkResult
	err := o.guard("bulk check", func() error {
		updated := make([]models.Endpoint, 0, len(eps))
		batch := make([]aggregate.Outcome, 0, len(eps))
		healthy := 0

		for i, ep := range eps {
			rec, err := o.record(ep, results[i])
			if err != nil {
				return err
			}
			if results[i].OK {
				healthy++
			}
			updated = append(updated, rec)
			batch = append(batch, aggregate.Outcome{
				Healthy:          results[i].OK,
				LatencyMs:        rec.ResponseTimeMs,
				ErrorRatePercent: rec.ErrorRatePercent,
			})
		}

		metrics := o.stores.Metrics.Update(func(prev models.Metrics) models.Metrics {
			next, _ := o.agg.Reduce(prev, batch)
			return next
		})

		entry := o.appendLog(models.LevelInfo,
			fmt.Sprintf("Bulk health check completed: %d/%d endpoints healthy", healthy, len(eps)),
			models.SystemEndpoint,
		)

		o.publish(hub.KindMetrics, metrics)
		for _, ep := range updated {
			o.publish(hub.KindEndpoint, ep)
		}
		o.publish(hub.KindLog, entry)

		out = BulkResult{
			Metrics:   metrics,
			Endpoints: updated,
			Log:       &entry,
			Healthy:   healthy,
			Total:     len(eps),
		}
		return nil
	})
	if err != nil {
		o.telemetry.CountCheck("bulk", "error")
		return BulkResult{}, err
	}

	o.telemetry.CountCheck("bulk", "ok")
	o.logger.Info("bulk check completed", "healthy", out.Healthy, "total", out.Total)
	return out, nil
}

// RecordPerformance appends one sample from the performance source and
// publishes it.
func (o *Orchestrator) RecordPerformance(ctx context.Context) (models.PerformanceSample, error) {
	if err := ctx.Err(); err != nil {
		return models.PerformanceSample{}, err
	}

	var sample models.PerformanceSample
	err := o.guard("performance sample", func() error {
		sample = o.performance.Sample(time.Now())
		if sample.ResponseTimeMs < 0 {
			sample.ResponseTimeMs = 0
		}
		o.stores.Performance.Append(sample)
		o.publish(hub.KindPerformance, sample)
		return nil
	})
	return sample, err
}

// AddLog records an externally supplied log entry and publishes it.
func (o *Orchestrator) AddLog(level models.Level, message, endpoint string) (models.LogEntry, error) {
	if !level.Valid() {
		return models.LogEntry{}, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	if endpoint == "" {
		endpoint = models.SystemEndpoint
	}
	entry := o.appendLog(level, message, endpoint)
	o.publish(hub.KindLog, entry)
	return entry, nil
}

// Endpoints returns every registered endpoint merged with its latest
// recorded probe state, in registration order.
func (o *Orchestrator) Endpoints() []models.Endpoint {
	eps := o.registry.List()
	for i, ep := range eps {
		if rec, ok := o.stores.Endpoints.Get(ep.ID); ok {
			eps[i] = withState(ep, rec)
		} else if ep.Status == "" {
			eps[i].Status = models.StatusUnknown
		}
	}
	return eps
}

// Endpoint returns one endpoint merged with its latest state.
func (o *Orchestrator) Endpoint(id string) (models.Endpoint, error) {
	ep, err := o.registry.Get(id)
	if err != nil {
		return models.Endpoint{}, err
	}
	if rec, ok := o.stores.Endpoints.Get(id); ok {
		return withState(ep, rec), nil
	}
	if ep.Status == "" {
		ep.Status = models.StatusUnknown
	}
	return ep, nil
}

// Logs returns the retained log entries, newest first.
func (o *Orchestrator) Logs() []models.LogEntry {
	return o.stores.Logs.Snapshot()
}

// Performance returns the retained samples, oldest first.
func (o *Orchestrator) Performance() []models.PerformanceSample {
	return o.stores.Performance.Snapshot()
}

// Metrics returns the current system metrics.
func (o *Orchestrator) Metrics() models.Metrics {
	return o.stores.Metrics.Load()
}

// State reports whether a check is in progress. A running bulk check takes
// precedence over single checks.
func (o *Orchestrator) State() State {
	switch {
	case o.bulks.Load() > 0:
		return StateCheckingBulk
	case o.singles.Load() > 0:
		return StateCheckingSingle
	default:
		return StateIdle
	}
}

// Topic returns the hub topic the orchestrator publishes on.
func (o *Orchestrator) Topic() string {
	return o.topic
}

// Start records the startup log entry and launches the check and
// performance loops in background goroutines. A bulk check runs
// immediately, then every check interval.
//
// Start is non-blocking and idempotent. If Stop was called first, Start
// is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	if o.started || o.stopped {
		o.mu.Unlock()
		return
	}
	o.started = true
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.wg.Add(2)
	o.mu.Unlock()

	if _, err := o.AddLog(models.LevelInfo, "System started successfully", models.SystemEndpoint); err != nil {
		o.logger.Error("failed to record startup log", "error", err)
	}

	go func() {
		defer o.wg.Done()
		o.runChecks(runCtx)

		ticker := time.NewTicker(o.checkInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				o.runChecks(runCtx)
			}
		}
	}()

	go func() {
		defer o.wg.Done()

		ticker := time.NewTicker(o.performanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C:
				if _, err := o.RecordPerformance(runCtx); err != nil && runCtx.Err() == nil {
					o.logger.Error("performance sample failed", "error", err)
				}
			}
		}
	}()

	o.logger.Info("monitoring started",
		"check_interval", o.checkInterval,
		"performance_interval", o.performanceInterval,
		"endpoints", len(o.registry.List()),
	)
}

// Stop cancels both loops and waits for them to exit. In-flight probes are
// abandoned without recording results. Stop is idempotent and safe to call
// before Start.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.stopped {
		o.stopped = true
		if o.cancel != nil {
			o.cancel()
		}
	}
	o.mu.Unlock()

	o.wg.Wait()
}

func (o *Orchestrator) runChecks(ctx context.Context) {
	if _, err := o.BulkCheck(ctx); err != nil && ctx.Err() == nil {
		o.logger.Error("bulk check failed", "error", err)
	}
}

// probeAll fans probes out over a worker pool and waits for every one.
// results[i] belongs to eps[i].
func (o *Orchestrator) probeAll(ctx context.Context, eps []models.Endpoint) []probe.Result {
	workers := o.maxConcurrency
	if workers == 0 || workers > len(eps) {
		workers = len(eps)
	}

	results := make([]probe.Result, len(eps))
	jobs := make(chan int, len(eps))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = o.probe(ctx, eps[idx])
			}
		}()
	}

	for i := range eps {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

func (o *Orchestrator) probe(ctx context.Context, ep models.Endpoint) probe.Result {
	res := o.prober.Probe(ctx, probe.Target{
		URL:     ep.URL,
		Method:  ep.Method,
		Headers: ep.Headers,
		Timeout: ep.Timeout,
	})
	if res.CheckedAt.IsZero() {
		res.CheckedAt = time.Now()
	}
	if res.Latency < 0 {
		res.Latency = 0
	}

	o.performance.Observe(res)

	outcome := "ok"
	if !res.OK {
		outcome = string(probe.KindOf(res.Err))
		if outcome == "" {
			outcome = "error"
		}
	}
	o.telemetry.ObserveProbe(ep.Name, outcome, res.Latency)

	if res.OK {
		o.logger.Debug("probe succeeded",
			"endpoint", ep.Name,
			"status_code", res.StatusCode,
			"latency", res.Latency,
		)
	} else {
		o.logger.Warn("probe failed",
			"endpoint", ep.Name,
			"url", ep.URL,
			"error", res.Err,
			"latency", res.Latency,
		)
	}
	return res
}

// record merges res into the stored state for ep and returns the new record.
func (o *Orchestrator) record(ep models.Endpoint, res probe.Result) (models.Endpoint, error) {
	return o.stores.Endpoints.Upsert(ep.ID, func(prev models.Endpoint, exists bool) models.Endpoint {
		if !exists {
			prev = ep
			prev.LastChecked = nil
			prev.ErrorRatePercent = 0
		}

		next := ep.Clone()
		next.Status = models.StatusUnhealthy
		if res.OK {
			next.Status = models.StatusHealthy
		}
		checked := res.CheckedAt
		next.LastChecked = &checked
		next.ResponseTimeMs = res.Latency.Milliseconds()
		next.ErrorRatePercent = clampPercent(o.errorRate(prev, res))
		return next
	})
}

func (o *Orchestrator) appendLog(level models.Level, message, endpoint string) models.LogEntry {
	entry := models.LogEntry{
		ID:        newLogID(),
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Endpoint:  endpoint,
	}
	o.stores.Logs.Prepend(entry)
	return entry
}

func (o *Orchestrator) publish(kind hub.Kind, data any) {
	o.hub.Publish(o.topic, hub.NewEvent(kind, data))
}

// guard runs fn, converting a panic into ErrCheckFailed with a correlation
// id. Store capacity violations are programmer errors and are re-panicked.
func (o *Orchestrator) guard(op string, fn func() error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if e, ok := r.(error); ok && errors.Is(e, store.ErrCapacity) {
			panic(r)
		}

		correlationID := uuid.NewString()
		o.logger.Error("check panic",
			"operation", op,
			"correlation_id", correlationID,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)
		err = fmt.Errorf("%w: %s (correlation_id: %s)", ErrCheckFailed, op, correlationID)
	}()

	if err := fn(); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrCheckFailed, op, err)
	}
	return nil
}

// withState overlays the probe-owned fields of rec onto the registry record.
func withState(ep, rec models.Endpoint) models.Endpoint {
	ep.Status = rec.Status
	if rec.LastChecked != nil {
		t := *rec.LastChecked
		ep.LastChecked = &t
	}
	ep.ResponseTimeMs = rec.ResponseTimeMs
	ep.ErrorRatePercent = rec.ErrorRatePercent
	return ep
}

func failureDetail(res probe.Result) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	if res.StatusCode != 0 {
		return fmt.Sprintf("HTTP %d", res.StatusCode)
	}
	return "unknown error"
}

func newLogID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
