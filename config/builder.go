package config

import (
	"bytes"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"text/template"

	"github.com/jpalmerr/pulsecast"
)

// BuildEndpoints converts parsed configuration into SDK Endpoint objects.
//
// It processes both direct endpoints and grids, returning a combined slice.
// Grid dimensions are expanded via cartesian product. Ids are derived and
// checked for duplicates over the combined list, so a config that builds
// here is accepted by [pulsecast.New].
func BuildEndpoints(cfg *Config) ([]pulsecast.Endpoint, error) {
	configs := make([]EndpointConfig, 0, len(cfg.Endpoints))
	configs = append(configs, cfg.Endpoints...)

	// cartesian product expansion
	for _, gc := range cfg.Grids {
		gridConfigs, err := expandGrid(gc)
		if err != nil {
			return nil, err
		}
		configs = append(configs, gridConfigs...)
	}

	endpoints := make([]pulsecast.Endpoint, 0, len(configs))
	seen := make(map[string]string, len(configs))
	for i, ec := range configs {
		id := endpointID(ec, i)
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("endpoint %q: id %q already used by %q", ec.Name, id, prev)
		}
		seen[id] = ec.Name

		ep, err := buildEndpoint(id, ec)
		if err != nil {
			return nil, fmt.Errorf("endpoint %q: %w", ec.Name, err)
		}
		endpoints = append(endpoints, ep)
	}

	return endpoints, nil
}

// endpointID returns the configured id, else a slug of the name, else a
// positional id. i is the zero-based index in the combined endpoint list.
func endpointID(ec EndpointConfig, i int) string {
	if ec.ID != "" {
		return ec.ID
	}
	if id := slug(ec.Name); id != "" {
		return id
	}
	return fmt.Sprintf("endpoint-%d", i+1)
}

// BuildOptions converts parsed configuration into [pulsecast.Option] values,
// endpoints included.
func BuildOptions(cfg *Config, logger *slog.Logger) ([]pulsecast.Option, error) {
	endpoints, err := BuildEndpoints(cfg)
	if err != nil {
		return nil, err
	}

	opts := []pulsecast.Option{
		pulsecast.WithEndpoints(endpoints...),
		pulsecast.WithPort(cfg.Port),
		pulsecast.WithCheckInterval(cfg.CheckInterval.Duration()),
		pulsecast.WithPerformanceInterval(cfg.PerformanceInterval.Duration()),
		pulsecast.WithProbeTimeout(cfg.ProbeTimeout.Duration()),
		pulsecast.WithMaxConcurrency(cfg.MaxConcurrency),
		pulsecast.WithLogCapacity(cfg.LogCapacity),
		pulsecast.WithPerformanceCapacity(cfg.PerformanceCapacity),
		pulsecast.WithObserverBuffer(cfg.ObserverBuffer),
	}
	if logger != nil {
		opts = append(opts, pulsecast.WithLogger(logger))
	}
	if cfg.Title != "" {
		opts = append(opts, pulsecast.WithTitle(cfg.Title))
	}
	if cfg.MetricsSource == MetricsSynthetic {
		opts = append(opts, pulsecast.WithSyntheticMetrics())
	}
	if cfg.Redis.Enabled() {
		opts = append(opts, pulsecast.WithRedisRelay(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.Channel))
	}
	return opts, nil
}

// buildEndpoint converts a single EndpointConfig to an SDK Endpoint.
func buildEndpoint(id string, ec EndpointConfig) (pulsecast.Endpoint, error) {
	var opts []pulsecast.EndpointOption

	if ec.Method != "" {
		opts = append(opts, pulsecast.WithMethod(ec.Method))
	}

	if ec.Timeout != 0 {
		opts = append(opts, pulsecast.WithTimeout(ec.Timeout.Duration()))
	}

	if len(ec.Headers) > 0 {
		opts = append(opts, pulsecast.WithHeaders(mapToKeyValuePairs(ec.Headers)...))
	}

	return pulsecast.NewEndpoint(id, ec.Name, ec.URL, opts...)
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}

// expandGrid expands a GridConfig into one EndpointConfig per combination
// of dimension values.
func expandGrid(gc GridConfig) ([]EndpointConfig, error) {
	// use missingkey=error to fail fast on missing template variables
	tmpl, err := template.New("url").Option("missingkey=error").Parse(gc.URLTemplate)
	if err != nil {
		return nil, err
	}

	var configs []EndpointConfig
	for _, combo := range cartesianProduct(gc.Dimensions) {
		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, combo); err != nil {
			return nil, fmt.Errorf("grid (%s) with dimensions %v: template execution failed: %w", gc.Name, combo, err)
		}

		configs = append(configs, EndpointConfig{
			Name:    buildGridName(gc.Name, combo),
			URL:     buf.String(),
			Method:  gc.Method,
			Timeout: gc.Timeout,
			Headers: gc.Headers,
		})
	}

	return configs, nil
}

// buildGridName creates a display name for a grid endpoint.
func buildGridName(baseName string, combo map[string]string) string {
	keys := make([]string, 0, len(combo))
	for k := range combo {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{baseName}
	for _, k := range keys {
		parts = append(parts, combo[k])
	}
	return strings.Join(parts, " ")
}

// cartesianProduct generates all combinations of dimension values.
func cartesianProduct(dimensions map[string][]string) []map[string]string {
	if len(dimensions) == 0 {
		return nil
	}

	// sort dimension keys for deterministic ordering
	keys := make([]string, 0, len(dimensions))
	for k := range dimensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []map[string]string{{}}
	for _, key := range keys {
		var next []map[string]string
		for _, combo := range result {
			for _, val := range dimensions[key] {
				c := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					c[k] = v
				}
				c[key] = val
				next = append(next, c)
			}
		}
		result = next
	}

	return result
}
