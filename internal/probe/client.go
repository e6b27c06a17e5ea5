package probe

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// drained bodies are capped so a misbehaving endpoint cannot stream forever
const maxDrainSize = 1 << 20 // 1MB

// DefaultTimeout is used when neither the target nor the client sets one.
const DefaultTimeout = 10 * time.Second

// idle pool limits only; active connections per host stay uncapped so a
// probe never waits for a free connection inside its own deadline
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 60 * time.Second
)

// Target describes one endpoint to probe.
type Target struct {
	URL string

	// Method is the HTTP method. Empty means GET.
	Method string

	Headers map[string]string

	// Timeout bounds the whole request. Zero means the client default.
	Timeout time.Duration
}

// Result is the outcome of a single probe.
//
// A Result is data, not an error: every failure mode is reported with
// OK=false and a non-nil Err of type *Error.
type Result struct {
	OK bool

	// Latency is the wall-clock time from dispatch to response receipt, or
	// to the point of failure.
	Latency time.Duration

	// StatusCode is the HTTP status code, or zero if no response arrived.
	StatusCode int

	Err error

	CheckedAt time.Time
}

// Prober performs one health check against one target.
//
// Implementations must never panic and must honour the target timeout.
type Prober interface {
	Probe(ctx context.Context, target Target) Result
}

// Client is an HTTP [Prober] with a pooled transport.
//
// Timeouts are applied per request via context rather than as a global
// client timeout, so each target can carry its own bound.
type Client struct {
	httpClient     *http.Client
	defaultTimeout time.Duration
}

// NewClient creates a probing [Client]. A non-positive defaultTimeout falls
// back to [DefaultTimeout].
func NewClient(defaultTimeout time.Duration) *Client {
	if defaultTimeout <= 0 {
		defaultTimeout = DefaultTimeout
	}
	return &Client{
		defaultTimeout: defaultTimeout,
		httpClient: &http.Client{
			// no client timeout - each probe gets its own context deadline
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        defaultMaxIdleConns,
				MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
				IdleConnTimeout:     defaultIdleConnTimeout,
			},
		},
	}
}

// Probe sends exactly one request to target and classifies the outcome.
// There is no retry.
func (c *Client) Probe(ctx context.Context, target Target) Result {
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	method := target.Method
	if method == "" {
		method = http.MethodGet
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, target.URL, nil)
	if err != nil {
		return Result{
			Latency:   time.Since(start),
			Err:       &Error{Kind: KindConnection, Err: fmt.Errorf("failed to create request: %w", err)},
			CheckedAt: start,
		}
	}
	for key, value := range target.Headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return Result{
			Latency:   latency,
			Err:       classify(ctx, err, timeout),
			CheckedAt: start,
		}
	}

	// drain so the connection can be reused
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainSize))
	_ = resp.Body.Close()

	result := Result{
		OK:         resp.StatusCode >= 200 && resp.StatusCode < 300,
		Latency:    latency,
		StatusCode: resp.StatusCode,
		CheckedAt:  start,
	}
	if !result.OK {
		result.Err = &Error{Kind: KindStatus, StatusCode: resp.StatusCode}
	}
	return result
}

// Close releases idle pooled connections. The client stays usable.
func (c *Client) Close() {
	if c == nil || c.httpClient == nil {
		return
	}
	if transport, ok := c.httpClient.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}
