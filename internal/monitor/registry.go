package monitor

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jpalmerr/pulsecast/internal/models"
)

// ErrNotFound is returned when an endpoint id is not registered.
var ErrNotFound = errors.New("endpoint not found")

// ErrInvalidEndpoint is returned when an endpoint cannot be registered.
var ErrInvalidEndpoint = errors.New("invalid endpoint")

// Registry is the source of the monitored endpoint set.
type Registry interface {
	List() []models.Endpoint
	Get(id string) (models.Endpoint, error)
}

// MemoryRegistry is an insertion-ordered, in-memory [Registry].
type MemoryRegistry struct {
	mu    sync.RWMutex
	order []string
	byID  map[string]models.Endpoint
}

// NewMemoryRegistry creates a registry seeded with eps. It fails on an
// invalid endpoint or a duplicate id.
func NewMemoryRegistry(eps ...models.Endpoint) (*MemoryRegistry, error) {
	r := &MemoryRegistry{byID: make(map[string]models.Endpoint, len(eps))}
	for i, ep := range eps {
		if err := r.add(ep); err != nil {
			return nil, fmt.Errorf("endpoint %d: %w", i, err)
		}
	}
	return r, nil
}

// Register adds a new endpoint with a generated id and returns it.
func (r *MemoryRegistry) Register(name, rawURL string) (models.Endpoint, error) {
	ep := models.Endpoint{
		ID:     uuid.NewString(),
		Name:   strings.TrimSpace(name),
		URL:    strings.TrimSpace(rawURL),
		Status: models.StatusUnknown,
	}
	if err := r.add(ep); err != nil {
		return models.Endpoint{}, err
	}
	return ep.Clone(), nil
}

func (r *MemoryRegistry) add(ep models.Endpoint) error {
	if err := Validate(ep); err != nil {
		return err
	}
	if ep.Status == "" {
		ep.Status = models.StatusUnknown
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[ep.ID]; dup {
		return fmt.Errorf("%w: duplicate id %q", ErrInvalidEndpoint, ep.ID)
	}
	r.byID[ep.ID] = ep.Clone()
	r.order = append(r.order, ep.ID)
	return nil
}

// List returns all endpoints in registration order.
func (r *MemoryRegistry) List() []models.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.Endpoint, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].Clone())
	}
	return out
}

// Get returns the endpoint registered under id, or [ErrNotFound].
func (r *MemoryRegistry) Get(id string) (models.Endpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.byID[id]
	if !ok {
		return models.Endpoint{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ep.Clone(), nil
}

// Len returns the number of registered endpoints.
func (r *MemoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Validate checks the fields an endpoint needs before it can be probed.
func Validate(ep models.Endpoint) error {
	if strings.TrimSpace(ep.ID) == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidEndpoint)
	}
	if strings.TrimSpace(ep.Name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidEndpoint)
	}

	u, err := url.Parse(ep.URL)
	if err != nil {
		return fmt.Errorf("%w: invalid URL %q: %v", ErrInvalidEndpoint, ep.URL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: URL %q must use http or https", ErrInvalidEndpoint, ep.URL)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: URL %q has no host", ErrInvalidEndpoint, ep.URL)
	}

	switch strings.ToUpper(ep.Method) {
	case "", "GET", "HEAD", "POST":
	default:
		return fmt.Errorf("%w: method %q not supported, use GET, HEAD or POST", ErrInvalidEndpoint, ep.Method)
	}
	if ep.Timeout < 0 {
		return fmt.Errorf("%w: timeout cannot be negative", ErrInvalidEndpoint)
	}
	return nil
}
