package pulsecast

import (
	"errors"
	"net/http"
	"time"
)

// endpointConfig holds mutable state during endpoint construction.
type endpointConfig struct {
	headers map[string]string
	timeout time.Duration
	method  string
}

// EndpointOption is a function that configures an [Endpoint] during construction.
//
// Options return an error if validation fails.
type EndpointOption func(*endpointConfig) error

// WithHeaders adds custom HTTP headers to probe requests for this endpoint.
//
// Use this for endpoints that require authentication. Headers are never
// included in API responses or published events.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	ep, err := pulsecast.NewEndpoint("api", "API", url,
//	    pulsecast.WithHeaders("Authorization", "Bearer token123"),
//	)
func WithHeaders(keyValues ...string) EndpointOption {
	return func(cfg *endpointConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithTimeout overrides the probe timeout for this endpoint.
//
// If the endpoint does not respond within this duration the check fails and
// the endpoint is marked unhealthy. Defaults to the engine-wide timeout set
// with [WithProbeTimeout].
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) EndpointOption {
	return func(cfg *endpointConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithMethod sets the HTTP method for health check requests.
//
// Supported methods are GET (default), HEAD, and POST.
//
// Returns an error if the method is not GET, HEAD, or POST.
func WithMethod(method string) EndpointOption {
	return func(cfg *endpointConfig) error {
		switch method {
		case http.MethodGet, http.MethodHead, http.MethodPost:
			cfg.method = method
			return nil
		default:
			return errors.New("method must be GET, HEAD, or POST")
		}
	}
}
