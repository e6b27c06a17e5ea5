package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/pulsecast/internal/hub"
	"github.com/jpalmerr/pulsecast/internal/models"
	"github.com/jpalmerr/pulsecast/internal/monitor"
	"github.com/jpalmerr/pulsecast/internal/probe"
	"github.com/jpalmerr/pulsecast/internal/telemetry"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubProber fails every URL containing "down" and passes the rest.
type stubProber struct{}

func (stubProber) Probe(_ context.Context, t probe.Target) probe.Result {
	if strings.Contains(t.URL, "down") {
		return probe.Result{
			StatusCode: 503,
			Latency:    20 * time.Millisecond,
			Err:        &probe.Error{Kind: probe.KindStatus, StatusCode: 503},
			CheckedAt:  time.Now(),
		}
	}
	return probe.Result{OK: true, StatusCode: 200, Latency: 5 * time.Millisecond, CheckedAt: time.Now()}
}

// testEngine adds registration to an orchestrator, the way the root package
// does.
type testEngine struct {
	*monitor.Orchestrator
	reg *monitor.MemoryRegistry
}

func (e *testEngine) Register(name, url string) (models.Endpoint, error) {
	return e.reg.Register(name, url)
}

func newTestServer(t *testing.T, port int) (*Server, *testEngine, *hub.Hub) {
	t.Helper()

	reg, err := monitor.NewMemoryRegistry(
		models.Endpoint{ID: "api-1", Name: "API-1", URL: "http://api-1.local/health"},
		models.Endpoint{ID: "api-2", Name: "API-2", URL: "http://api-2.down.local/health"},
	)
	if err != nil {
		t.Fatalf("NewMemoryRegistry() error = %v", err)
	}

	promReg := prometheus.NewRegistry()
	metrics := telemetry.New(promReg)
	h := hub.New(hub.WithLogger(testLogger()), hub.WithMetrics(metrics))
	orch := monitor.New(reg, stubProber{}, h, monitor.Config{Logger: testLogger(), Metrics: metrics})
	engine := &testEngine{Orchestrator: orch, reg: reg}

	srv := NewServer(engine, h, Config{
		Port:     port,
		Gatherer: promReg,
		Metrics:  metrics,
		Logger:   testLogger(),
	})
	return srv, engine, h
}

// parseSSEEvents decodes every data line of an SSE body.
func parseSSEEvents(body string) []map[string]any {
	var events []map[string]any
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var e map[string]any
		if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &e); err == nil {
			events = append(events, e)
		}
	}
	return events
}

// --- SSE ---

func TestHandleSSE_SendsSnapshot(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	srv.handleSSE(rec, req)

	events := parseSSEEvents(rec.Body.String())
	if len(events) != 3 {
		t.Fatalf("got %d snapshot events, want 3: %s", len(events), rec.Body.String())
	}
	if events[0]["type"] != "metrics" {
		t.Errorf("first event type = %v, want metrics", events[0]["type"])
	}
	body := rec.Body.String()
	for _, name := range []string{"API-1", "API-2"} {
		if !strings.Contains(body, name) {
			t.Errorf("response should contain %s, got: %s", name, body)
		}
	}
	if !strings.Contains(body, "event: endpoint\n") {
		t.Errorf("response should name event types, got: %s", body)
	}
}

func TestHandleSSE_StreamsUpdates(t *testing.T) {
	srv, engine, h := newTestServer(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for h.Subscribers(hub.TopicMonitoring) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if _, err := engine.AddLog(models.LevelWarning, "streamed-entry", ""); err != nil {
		t.Fatalf("AddLog() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after context cancellation")
	}

	if body := rec.Body.String(); !strings.Contains(body, "streamed-entry") {
		t.Errorf("response should contain streamed update, got: %s", body)
	}
	if got := h.Subscribers(hub.TopicMonitoring); got != 0 {
		t.Errorf("Subscribers() = %d after disconnect, want 0", got)
	}
}

func TestHandleSSE_ServerShutdown(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	// when calling handleSSE directly (not through http.Server), the request
	// context must be derived from the server context to mimic BaseContext
	serverCtx, serverCancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(serverCtx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	serverCancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("handler did not exit after server shutdown")
	}
}

func TestHandleSSE_HubCloseEndsStream(t *testing.T) {
	srv, _, h := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodGet, "/api/sse", nil)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		srv.handleSSE(rec, req)
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for h.Subscribers(hub.TopicMonitoring) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("handler never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	h.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not exit after hub close")
	}
}

func TestHandleSSE_NoGoroutineLeaks(t *testing.T) {
	// allow existing goroutines to settle
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	before := runtime.NumGoroutine()

	srv, _, _ := newTestServer(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()

			req := httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx)
			srv.handleSSE(httptest.NewRecorder(), req)
		}()
	}
	wg.Wait()

	runtime.GC()
	time.Sleep(200 * time.Millisecond)

	after := runtime.NumGoroutine()
	if after > before+2 { // small tolerance for runtime variance
		t.Errorf("potential goroutine leak: before=%d, after=%d", before, after)
	}
}

// nonFlushWriter is a ResponseWriter without http.Flusher.
type nonFlushWriter struct {
	header http.Header
	code   int
}

func (n *nonFlushWriter) Header() http.Header {
	return n.header
}

func (n *nonFlushWriter) Write(b []byte) (int, error) {
	return len(b), nil
}

func (n *nonFlushWriter) WriteHeader(statusCode int) {
	n.code = statusCode
}

func TestHandleSSE_SSENotSupported(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	w := &nonFlushWriter{header: make(http.Header)}
	srv.handleSSE(w, httptest.NewRequest(http.MethodGet, "/api/sse", nil))

	if w.code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.code, http.StatusInternalServerError)
	}
}

func TestHandleSSE_Headers(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	srv.handleSSE(rec, httptest.NewRequest(http.MethodGet, "/api/sse", nil).WithContext(ctx))

	want := map[string]string{
		"Content-Type":  "text/event-stream",
		"Cache-Control": "no-cache",
		"Connection":    "keep-alive",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("header %s = %q, want %q", k, got, v)
		}
	}
}

// TestHandleSSE_ServerShutdownIntegration checks that a real SSE connection
// closes when the server context is cancelled.
func TestHandleSSE_ServerShutdownIntegration(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	serverCtx, serverCancel := context.WithCancel(context.Background())
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		srv.handleSSE(w, r.WithContext(serverCtx))
	})
	ts := httptest.NewServer(handler)
	defer ts.Close()

	connDone := make(chan error, 1)
	go func() {
		resp, err := ts.Client().Get(ts.URL)
		if err != nil {
			connDone <- err
			return
		}
		defer func() { _ = resp.Body.Close() }()

		buf := make([]byte, 1024)
		for {
			if _, err := resp.Body.Read(buf); err != nil {
				connDone <- nil
				return
			}
		}
	}()

	time.Sleep(100 * time.Millisecond)
	serverCancel()

	select {
	case <-connDone:
	case <-time.After(3 * time.Second):
		t.Fatal("SSE connection did not close after server shutdown")
	}
}

// --- REST ---

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("%s %s: invalid JSON %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec, env
}

func TestAPI_Health(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)

	rec, env := doRequest(t, srv.Handler(), http.MethodGet, "/api/health", "")
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("GET /api/health = %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "PulseCast is running") {
		t.Errorf("body = %s, want running message", rec.Body.String())
	}
}

func TestAPI_Routes(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		body        string
		wantCode    int
		wantSuccess bool
		wantBody    string
	}{
		{name: "list endpoints", method: http.MethodGet, path: "/api/endpoints", wantCode: 200, wantSuccess: true, wantBody: `"id":"api-1"`},
		{name: "register endpoint", method: http.MethodPost, path: "/api/endpoints", body: `{"name":"New","url":"https://new.local"}`, wantCode: 201, wantSuccess: true, wantBody: `"status":"unknown"`},
		{name: "register missing url", method: http.MethodPost, path: "/api/endpoints", body: `{"name":"New"}`, wantCode: 400},
		{name: "register invalid url", method: http.MethodPost, path: "/api/endpoints", body: `{"name":"New","url":"ftp://x"}`, wantCode: 400},
		{name: "register malformed body", method: http.MethodPost, path: "/api/endpoints", body: `{`, wantCode: 400},
		{name: "single check healthy", method: http.MethodPost, path: "/api/health-check/api-1", wantCode: 200, wantSuccess: true, wantBody: `"status":"healthy"`},
		{name: "single check unhealthy", method: http.MethodPost, path: "/api/health-check/api-2", wantCode: 200, wantSuccess: true, wantBody: `"status":"unhealthy"`},
		{name: "single check unknown", method: http.MethodPost, path: "/api/health-check/nope", wantCode: 404},
		{name: "bulk check", method: http.MethodPost, path: "/api/health-check", wantCode: 200, wantSuccess: true, wantBody: `"healthy":2`},
		{name: "add log", method: http.MethodPost, path: "/api/logs", body: `{"level":"warning","message":"manual"}`, wantCode: 201, wantSuccess: true, wantBody: `"endpoint":"System"`},
		{name: "add log invalid level", method: http.MethodPost, path: "/api/logs", body: `{"level":"fatal","message":"x"}`, wantCode: 400},
		{name: "add log empty message", method: http.MethodPost, path: "/api/logs", body: `{"level":"info"}`, wantCode: 400},
		{name: "list logs", method: http.MethodGet, path: "/api/logs", wantCode: 200, wantSuccess: true},
		{name: "metrics", method: http.MethodGet, path: "/api/metrics", wantCode: 200, wantSuccess: true, wantBody: `"total_requests"`},
		{name: "record performance", method: http.MethodPost, path: "/api/performance", wantCode: 201, wantSuccess: true, wantBody: `"time"`},
		{name: "list performance", method: http.MethodGet, path: "/api/performance", wantCode: 200, wantSuccess: true},
		{name: "wrong method", method: http.MethodDelete, path: "/api/metrics", wantCode: 405},
	}

	srv, _, _ := newTestServer(t, 0)
	handler := srv.Handler()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, env := doRequest(t, handler, tt.method, tt.path, tt.body)
			if rec.Code != tt.wantCode {
				t.Fatalf("%s %s = %d, want %d: %s", tt.method, tt.path, rec.Code, tt.wantCode, rec.Body.String())
			}
			if env.Success != tt.wantSuccess {
				t.Errorf("success = %v, want %v", env.Success, tt.wantSuccess)
			}
			if !tt.wantSuccess && rec.Code != http.StatusMethodNotAllowed && env.Error == "" {
				t.Error("error response has no message")
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body = %s, want to contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestAPI_PrometheusExposition(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)
	handler := srv.Handler()

	doRequest(t, handler, http.MethodPost, "/api/health-check", "")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics = %d", rec.Code)
	}
	body := rec.Body.String()
	for _, name := range []string{
		"pulsecast_probe_duration_seconds",
		"pulsecast_monitor_checks_total",
		"pulsecast_hub_events_published_total",
		"pulsecast_http_requests_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("/metrics missing %s", name)
		}
	}
}

// --- WebSocket ---

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg map[string]any
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

// readUntil reads messages until one has the wanted type.
func readUntil(t *testing.T, conn *websocket.Conn, wantType string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		if msg := readWS(t, conn); msg["type"] == wantType {
			return msg
		}
	}
	t.Fatalf("no %s message received", wantType)
	return nil
}

func TestWS_GreetsAndSendsSnapshot(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)

	if msg := readWS(t, conn); msg["type"] != typeSubscribed {
		t.Fatalf("first message = %v, want %s", msg, typeSubscribed)
	}
	if msg := readWS(t, conn); msg["type"] != "metrics" {
		t.Errorf("second message type = %v, want metrics", msg["type"])
	}
	for i := 0; i < 2; i++ {
		if msg := readWS(t, conn); msg["type"] != "endpoint" {
			t.Errorf("snapshot message type = %v, want endpoint", msg["type"])
		}
	}
}

func TestWS_Commands(t *testing.T) {
	srv, _, _ := newTestServer(t, 0)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readUntil(t, conn, typeSubscribed)

	tests := []struct {
		name     string
		command  string
		wantType string
		check    func(t *testing.T, msg map[string]any)
	}{
		{
			name:     "check endpoint",
			command:  `{"action":"check-endpoint","id":"api-1"}`,
			wantType: "log",
			check: func(t *testing.T, msg map[string]any) {
				data, _ := msg["data"].(map[string]any)
				if data["message"] != "Health check passed" {
					t.Errorf("log message = %v", data["message"])
				}
			},
		},
		{
			name:     "check all endpoints",
			command:  `{"action":"check-all-endpoints"}`,
			wantType: "metrics",
		},
		{
			name:     "update performance",
			command:  `{"action":"update-performance"}`,
			wantType: "performance",
		},
		{
			name:     "unknown endpoint",
			command:  `{"action":"check-endpoint","id":"missing"}`,
			wantType: typeError,
			check: func(t *testing.T, msg map[string]any) {
				data, _ := msg["data"].(map[string]any)
				if data["message"] != "endpoint not found" {
					t.Errorf("error message = %v", data["message"])
				}
			},
		},
		{
			name:     "unknown action",
			command:  `{"action":"reboot"}`,
			wantType: typeError,
		},
		{
			name:     "malformed command",
			command:  `not json`,
			wantType: typeError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.command)); err != nil {
				t.Fatalf("WriteMessage() error = %v", err)
			}
			msg := readUntil(t, conn, tt.wantType)
			if tt.check != nil {
				tt.check(t, msg)
			}
		})
	}
}

func TestWS_ClientCloseUnsubscribes(t *testing.T) {
	srv, _, h := newTestServer(t, 0)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn := dialWS(t, ts)
	readUntil(t, conn, typeSubscribed)
	_ = conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Subscribers(hub.TopicMonitoring) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription not removed after client close")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// --- Server Start ---

func TestStart_AvailablePort_ReturnsNil(t *testing.T) {
	// port 0 = OS assigns available port
	srv, _, _ := newTestServer(t, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		t.Fatalf("Start() on available port returned error: %v", err)
	}

	port := srv.Addr().(*net.TCPAddr).Port
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/health", port))
	if err != nil {
		t.Fatalf("GET /api/health: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !bytes.Contains(body, []byte(`"success":true`)) {
		t.Errorf("GET /api/health = %d %s", resp.StatusCode, body)
	}
}

func TestStart_PortInUse_ReturnsError(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer func() { _ = ln.Close() }()

	port := ln.Addr().(*net.TCPAddr).Port
	srv, _, _ := newTestServer(t, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = srv.Start(ctx)
	if err == nil {
		t.Fatal("Start() on occupied port should return error")
	}
	if !strings.Contains(err.Error(), "failed to bind") {
		t.Errorf("expected bind error, got: %v", err)
	}
}

func TestStart_InvalidPort_ReturnsError(t *testing.T) {
	srv, _, _ := newTestServer(t, -1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err == nil {
		t.Fatal("Start() with invalid port should return error")
	}
}
