package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/pulsecast/internal/hub"
	"github.com/jpalmerr/pulsecast/internal/models"
	"github.com/jpalmerr/pulsecast/internal/monitor"
	"github.com/jpalmerr/pulsecast/internal/telemetry"
)

const (
	// streamWriteTimeout bounds a single SSE or WebSocket write so a stalled
	// client cannot pin its handler. Must be <= shutdownTimeout.
	streamWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// maxBodyBytes caps JSON request bodies.
	maxBodyBytes = 1 << 20

	defaultTitle = "PulseCast"
)

// Monitor is the engine surface the HTTP API drives.
type Monitor interface {
	SingleCheck(ctx context.Context, id string) (models.Endpoint, error)
	BulkCheck(ctx context.Context) (monitor.BulkResult, error)
	RecordPerformance(ctx context.Context) (models.PerformanceSample, error)
	AddLog(level models.Level, message, endpoint string) (models.LogEntry, error)
	Register(name, url string) (models.Endpoint, error)

	Endpoints() []models.Endpoint
	Logs() []models.LogEntry
	Performance() []models.PerformanceSample
	Metrics() models.Metrics
	Topic() string
}

// Config holds the optional server settings.
type Config struct {
	Port  int
	Title string

	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
	Metrics  *telemetry.Metrics
	Logger   *slog.Logger
}

// Server exposes the engine over REST, Server-Sent Events and WebSocket.
//
// The server is designed for graceful shutdown via context cancellation.
type Server struct {
	mon      Monitor
	hub      *hub.Hub
	port     int
	title    string
	gatherer prometheus.Gatherer
	metrics  *telemetry.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
	started  time.Time

	handlerOnce sync.Once
	handler     http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	addr       net.Addr
}

// NewServer creates a new HTTP [Server]. It is not listening until
// [Server.Start] is called.
func NewServer(mon Monitor, h *hub.Hub, cfg Config) *Server {
	s := &Server{
		mon:      mon,
		hub:      h,
		port:     cfg.Port,
		title:    cfg.Title,
		gatherer: cfg.Gatherer,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		started: time.Now(),
	}
	if s.title == "" {
		s.title = defaultTitle
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	s.handlerOnce.Do(func() {
		mux := http.NewServeMux()

		mux.HandleFunc("GET /api/health", s.instrument("/api/health", s.handleHealth))
		mux.HandleFunc("GET /api/endpoints", s.instrument("/api/endpoints", s.handleListEndpoints))
		mux.HandleFunc("POST /api/endpoints", s.instrument("/api/endpoints", s.handleRegisterEndpoint))
		mux.HandleFunc("GET /api/logs", s.instrument("/api/logs", s.handleListLogs))
		mux.HandleFunc("POST /api/logs", s.instrument("/api/logs", s.handleAddLog))
		mux.HandleFunc("GET /api/metrics", s.instrument("/api/metrics", s.handleMetrics))
		mux.HandleFunc("GET /api/performance", s.instrument("/api/performance", s.handleListPerformance))
		mux.HandleFunc("POST /api/performance", s.instrument("/api/performance", s.handleRecordPerformance))
		mux.HandleFunc("POST /api/health-check", s.instrument("/api/health-check", s.handleBulkCheck))
		mux.HandleFunc("POST /api/health-check/{id}", s.instrument("/api/health-check/{id}", s.handleSingleCheck))

		// streams are long-lived and tracked by the hub subscriber gauge
		mux.HandleFunc("GET /api/sse", s.handleSSE)
		mux.HandleFunc("GET /ws", s.handleWS)

		mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

		s.handler = mux
	})
	return s.handler
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server will continue running until the context is
// cancelled, at which point it initiates a graceful shutdown with a 5-second
// timeout.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify port availability synchronously
	addr := fmt.Sprintf(":%d", s.port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// BaseContext derives all request contexts from the server context.
		// When ctx is cancelled, all request contexts are also cancelled,
		// enabling graceful shutdown of long-running handlers like SSE.
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.addr = ln.Addr()
	s.mu.Unlock()

	go func() {
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	// shutdown on context cancellation
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	s.logger.Info("http server listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
