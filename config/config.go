// Package config provides YAML configuration parsing for PulseCast.
//
// This package enables running PulseCast as a standalone binary with a
// configuration file, as an alternative to the programmatic SDK approach.
//
// Example configuration:
//
//	port: 8080
//	check_interval: 30s
//	performance_interval: 30m
//
//	endpoints:
//	  - id: github
//	    name: GitHub API
//	    url: https://api.github.com
//	    timeout: 5s
//
//	grids:
//	  - name: Platform
//	    url_template: "https://{{.env}}.example.com/health"
//	    dimensions:
//	      env: [prod, staging]
//
//	redis:
//	  addr: ${REDIS_ADDR:-localhost:6379}
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"text/template"
	"time"

	"gopkg.in/yaml.v3"
)

// minCheckInterval is the minimum allowed check interval for production configs.
// This prevents accidental DoS of endpoints with overly aggressive probing.
const minCheckInterval = 1 * time.Second

const (
	defaultPort                = 8080
	defaultCheckInterval       = 30 * time.Second
	defaultPerformanceInterval = 30 * time.Minute
	defaultProbeTimeout        = 10 * time.Second
	defaultLogCapacity         = 100
	defaultPerformanceCapacity = 24
	defaultObserverBuffer      = 64
)

// Config is the root configuration structure for PulseCast.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the service name reported by the health route.
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// CheckInterval is the time between bulk checks. Defaults to 30s.
	CheckInterval Duration `yaml:"check_interval"`

	// PerformanceInterval is the time between performance samples.
	// Defaults to 30m.
	PerformanceInterval Duration `yaml:"performance_interval"`

	// ProbeTimeout is the default per-probe timeout. Defaults to 10s.
	ProbeTimeout Duration `yaml:"probe_timeout"`

	// MaxConcurrency caps probes in flight per bulk check. Zero is unbounded.
	MaxConcurrency int `yaml:"max_concurrency"`

	LogCapacity         int `yaml:"log_capacity"`
	PerformanceCapacity int `yaml:"performance_capacity"`
	ObserverBuffer      int `yaml:"observer_buffer"`

	// MetricsSource selects observed (default) or synthetic metric values.
	MetricsSource MetricsSource `yaml:"metrics_source"`

	// Redis enables the pub/sub event relay when Addr is set.
	Redis RedisConfig `yaml:"redis"`

	// Endpoints defines individual health check endpoints.
	Endpoints []EndpointConfig `yaml:"endpoints"`

	// Grids defines endpoint grids that expand via cartesian product.
	Grids []GridConfig `yaml:"grids"`
}

// EndpointConfig defines a single health check endpoint.
type EndpointConfig struct {
	// ID is the stable identifier used by single checks. Derived from the
	// name if omitted.
	ID string `yaml:"id"`

	// Name is the display name.
	Name string `yaml:"name"`

	// URL is the health check endpoint URL.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Method is the HTTP method (GET, HEAD, POST). Defaults to GET.
	Method string `yaml:"method"`

	// Timeout overrides probe_timeout for this endpoint.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`
}

// GridConfig defines an endpoint grid that expands via cartesian product.
//
// For example, with dimensions {env: [prod, staging], svc: [api, web]},
// the grid expands to 4 endpoints: prod/api, prod/web, staging/api, staging/web.
type GridConfig struct {
	// Name is the base name for generated endpoints.
	Name string `yaml:"name"`

	// URLTemplate is a Go template for generating endpoint URLs.
	// Dimension keys are available as template variables: {{.env}}, {{.svc}}
	// Supports environment variable substitution in the template.
	URLTemplate string `yaml:"url_template"`

	// Dimensions maps dimension names to their possible values.
	// The cartesian product of all dimensions generates the endpoints.
	Dimensions map[string][]string `yaml:"dimensions"`

	// Method is the HTTP method for all generated endpoints.
	Method string `yaml:"method"`

	// Timeout is the request timeout for all generated endpoints.
	Timeout Duration `yaml:"timeout"`

	// Headers are custom HTTP headers for all generated endpoints.
	Headers map[string]string `yaml:"headers"`
}

// RedisConfig configures the optional event relay.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// Enabled reports whether a relay address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// MetricsSource selects where error rates, request counts and performance
// samples come from.
type MetricsSource string

const (
	MetricsObserved  MetricsSource = "observed"
	MetricsSynthetic MetricsSource = "synthetic"
)

// UnmarshalYAML implements yaml.Unmarshaler for MetricsSource.
func (m *MetricsSource) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	switch v := MetricsSource(strings.ToLower(strings.TrimSpace(s))); v {
	case "", MetricsObserved:
		*m = MetricsObserved
	case MetricsSynthetic:
		*m = v
	default:
		return fmt.Errorf("unknown metrics_source %q (expected 'observed' or 'synthetic')", s)
	}
	return nil
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	expanded, err := expandEnvVars(s)
	if err != nil {
		return err
	}

	parsed, err := time.ParseDuration(expanded)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Environment variables are expanded in URL, URLTemplate, header values,
// durations and the redis settings. Defaults are applied to every unset
// scalar.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.CheckInterval == 0 {
		c.CheckInterval = Duration(defaultCheckInterval)
	}
	if c.PerformanceInterval == 0 {
		c.PerformanceInterval = Duration(defaultPerformanceInterval)
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = Duration(defaultProbeTimeout)
	}
	if c.LogCapacity == 0 {
		c.LogCapacity = defaultLogCapacity
	}
	if c.PerformanceCapacity == 0 {
		c.PerformanceCapacity = defaultPerformanceCapacity
	}
	if c.ObserverBuffer == 0 {
		c.ObserverBuffer = defaultObserverBuffer
	}
	if c.MetricsSource == "" {
		c.MetricsSource = MetricsObserved
	}
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.CheckInterval.Duration() < minCheckInterval {
		return fmt.Errorf("check_interval must be at least %s, got %s", minCheckInterval, c.CheckInterval.Duration())
	}
	if c.PerformanceInterval.Duration() < minCheckInterval {
		return fmt.Errorf("performance_interval must be at least %s, got %s", minCheckInterval, c.PerformanceInterval.Duration())
	}
	if c.ProbeTimeout.Duration() <= 0 {
		return fmt.Errorf("probe_timeout must be positive, got %s", c.ProbeTimeout.Duration())
	}

	for name, v := range map[string]int{
		"max_concurrency":      c.MaxConcurrency,
		"log_capacity":         c.LogCapacity,
		"performance_capacity": c.PerformanceCapacity,
		"observer_buffer":      c.ObserverBuffer,
	} {
		if v < 0 {
			return fmt.Errorf("%s cannot be negative, got %d", name, v)
		}
	}

	if err := c.Redis.expand(); err != nil {
		return err
	}

	seen := make(map[string]int, len(c.Endpoints))
	for i := range c.Endpoints {
		ep := &c.Endpoints[i]

		if ep.Name == "" {
			return fmt.Errorf("endpoints[%d]: name is required", i)
		}
		if ep.ID == "" {
			ep.ID = slug(ep.Name)
		}
		if ep.ID == "" {
			ep.ID = fmt.Sprintf("endpoint-%d", i+1)
		}
		if j, dup := seen[ep.ID]; dup {
			return fmt.Errorf("endpoints[%d] (%s): id %q already used by endpoints[%d]", i, ep.Name, ep.ID, j)
		}
		seen[ep.ID] = i

		if ep.URL == "" {
			return fmt.Errorf("endpoints[%d] (%s): url is required", i, ep.Name)
		}
		expanded, err := expandEnvVars(ep.URL)
		if err != nil {
			return fmt.Errorf("endpoints[%d] (%s): url: %w", i, ep.Name, err)
		}
		ep.URL = expanded

		if err := validateURL(ep.URL); err != nil {
			return fmt.Errorf("endpoints[%d] (%s): %w", i, ep.Name, err)
		}

		if err := expandHeaders(ep.Headers); err != nil {
			return fmt.Errorf("endpoints[%d] (%s): %w", i, ep.Name, err)
		}

		if err := validateRequest(ep.Method, ep.Timeout); err != nil {
			return fmt.Errorf("endpoints[%d] (%s): %w", i, ep.Name, err)
		}
	}

	for i := range c.Grids {
		g := &c.Grids[i]

		if g.Name == "" {
			return fmt.Errorf("grids[%d]: name is required", i)
		}

		if g.URLTemplate == "" {
			return fmt.Errorf("grids[%d] (%s): url_template is required", i, g.Name)
		}
		expanded, err := expandEnvVars(g.URLTemplate)
		if err != nil {
			return fmt.Errorf("grids[%d] (%s): url_template: %w", i, g.Name, err)
		}
		g.URLTemplate = expanded

		// fail fast before the builder tries to use an invalid template
		if _, err := template.New("").Parse(g.URLTemplate); err != nil {
			return fmt.Errorf("grids[%d] (%s): invalid url_template: %w", i, g.Name, err)
		}

		if len(g.Dimensions) == 0 {
			return fmt.Errorf("grids[%d] (%s): at least one dimension is required", i, g.Name)
		}
		for dimName, dimValues := range g.Dimensions {
			if len(dimValues) == 0 {
				return fmt.Errorf("grids[%d] (%s): dimension %q has no values", i, g.Name, dimName)
			}
			seen := make(map[string]struct{}, len(dimValues))
			for _, v := range dimValues {
				if _, exists := seen[v]; exists {
					return fmt.Errorf("grids[%d] (%s): dimension %q has duplicate value %q", i, g.Name, dimName, v)
				}
				seen[v] = struct{}{}
			}
		}

		if err := expandHeaders(g.Headers); err != nil {
			return fmt.Errorf("grids[%d] (%s): %w", i, g.Name, err)
		}

		if err := validateRequest(g.Method, g.Timeout); err != nil {
			return fmt.Errorf("grids[%d] (%s): %w", i, g.Name, err)
		}
	}

	if len(c.Endpoints) == 0 && len(c.Grids) == 0 {
		return errors.New("at least one endpoint or grid must be defined")
	}

	return nil
}

func (r *RedisConfig) expand() error {
	for field, p := range map[string]*string{
		"addr":     &r.Addr,
		"password": &r.Password,
		"channel":  &r.Channel,
	} {
		expanded, err := expandEnvVars(*p)
		if err != nil {
			return fmt.Errorf("redis.%s: %w", field, err)
		}
		*p = expanded
	}
	if r.DB < 0 {
		return fmt.Errorf("redis.db cannot be negative, got %d", r.DB)
	}
	return nil
}

func validateURL(raw string) error {
	parsedURL, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme == "" {
		return errors.New("url must have a scheme (http:// or https://)")
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	return nil
}

func expandHeaders(headers map[string]string) error {
	for k, v := range headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		headers[k] = expanded
	}
	return nil
}

func validateRequest(method string, timeout Duration) error {
	if method != "" && method != "GET" && method != "HEAD" && method != "POST" {
		return errors.New("method must be GET, HEAD, or POST")
	}
	if timeout != 0 {
		if timeout.Duration() < 0 {
			return fmt.Errorf("timeout cannot be negative, got %s", timeout.Duration())
		}
		if timeout.Duration() < time.Second {
			return fmt.Errorf("timeout must be at least 1s if specified, got %s", timeout.Duration())
		}
	}
	return nil
}

// slug lowercases s and collapses every run of other characters to a
// single hyphen.
func slug(s string) string {
	var b strings.Builder
	hyphen := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			hyphen = false
			continue
		}
		if !hyphen && b.Len() > 0 {
			b.WriteByte('-')
			hyphen = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
