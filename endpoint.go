package pulsecast

import (
	"errors"
	"maps"
	"net/url"
	"strings"
	"time"

	"github.com/jpalmerr/pulsecast/internal/models"
)

// Endpoint is a target URL registered for health checks.
//
// Endpoint is immutable after creation via [NewEndpoint]. All fields are
// private with getter methods that return copies of mutable data (maps),
// ensuring the endpoint cannot be modified after construction.
//
// Endpoints are configured using the functional options pattern with
// [EndpointOption] functions such as [WithHeaders], [WithTimeout] and
// [WithMethod].
type Endpoint struct {
	id      string
	name    string
	url     string
	headers map[string]string
	timeout time.Duration
	method  string
}

// ID returns the endpoint's stable identifier.
// The id addresses the endpoint in single checks and in published events.
func (e Endpoint) ID() string {
	return e.id
}

// Name returns the endpoint's display name.
func (e Endpoint) Name() string {
	return e.name
}

// URL returns the endpoint's target URL as a string.
func (e Endpoint) URL() string {
	return e.url
}

// Headers returns a copy of the endpoint's custom HTTP headers.
// Returns nil if no custom headers are set.
func (e Endpoint) Headers() map[string]string {
	return maps.Clone(e.headers)
}

// Timeout returns the endpoint's request timeout override.
// Zero means the engine-wide probe timeout applies.
func (e Endpoint) Timeout() time.Duration {
	return e.timeout
}

// Method returns the HTTP method for health check requests.
// Returns empty string if not explicitly set, which means GET will be used.
func (e Endpoint) Method() string {
	return e.method
}

// NewEndpoint creates an [Endpoint] with the given id, name, URL and options.
//
// The id must be unique within a [PulseCast] instance. The rawURL parameter
// must be a valid URL with an http or https scheme.
//
// Returns an error if the id or name is empty or the URL is invalid.
//
// Example:
//
//	ep, err := pulsecast.NewEndpoint("payments", "Payments API", "https://payments.example.com/health",
//	    pulsecast.WithTimeout(5 * time.Second),
//	)
func NewEndpoint(id, name, rawURL string, opts ...EndpointOption) (Endpoint, error) {
	if strings.TrimSpace(id) == "" {
		return Endpoint{}, errors.New("endpoint id cannot be empty")
	}
	if strings.TrimSpace(name) == "" {
		return Endpoint{}, errors.New("endpoint name cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return Endpoint{}, errors.New("invalid URL: " + err.Error())
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return Endpoint{}, errors.New("URL must have a scheme (http:// or https://)")
	}

	cfg := &endpointConfig{
		headers: make(map[string]string),
	}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return Endpoint{}, err
		}
	}

	return Endpoint{
		id:      id,
		name:    name,
		url:     rawURL,
		headers: cfg.headers,
		timeout: cfg.timeout,
		method:  cfg.method,
	}, nil
}

// model converts e to the engine's record with no probe state.
func (e Endpoint) model() models.Endpoint {
	var headers map[string]string
	if len(e.headers) > 0 {
		headers = maps.Clone(e.headers)
	}
	return models.Endpoint{
		ID:      e.id,
		Name:    e.name,
		URL:     e.url,
		Method:  e.method,
		Headers: headers,
		Timeout: e.timeout,
		Status:  models.StatusUnknown,
	}
}
