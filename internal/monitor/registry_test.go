package monitor

import (
	"errors"
	"testing"

	"github.com/jpalmerr/pulsecast/internal/models"
)

func TestNewMemoryRegistry(t *testing.T) {
	tests := []struct {
		name    string
		eps     []models.Endpoint
		wantErr bool
	}{
		{
			name: "valid endpoints",
			eps: []models.Endpoint{
				{ID: "a", Name: "A", URL: "http://a.local"},
				{ID: "b", Name: "B", URL: "https://b.local/health", Method: "HEAD"},
			},
		},
		{
			name: "duplicate id",
			eps: []models.Endpoint{
				{ID: "a", Name: "A", URL: "http://a.local"},
				{ID: "a", Name: "Other", URL: "http://other.local"},
			},
			wantErr: true,
		},
		{
			name:    "empty id",
			eps:     []models.Endpoint{{Name: "A", URL: "http://a.local"}},
			wantErr: true,
		},
		{
			name:    "empty name",
			eps:     []models.Endpoint{{ID: "a", URL: "http://a.local"}},
			wantErr: true,
		},
		{
			name:    "unsupported scheme",
			eps:     []models.Endpoint{{ID: "a", Name: "A", URL: "ftp://a.local"}},
			wantErr: true,
		},
		{
			name:    "missing host",
			eps:     []models.Endpoint{{ID: "a", Name: "A", URL: "http://"}},
			wantErr: true,
		},
		{
			name:    "unsupported method",
			eps:     []models.Endpoint{{ID: "a", Name: "A", URL: "http://a.local", Method: "DELETE"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMemoryRegistry(tt.eps...)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewMemoryRegistry() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEndpoint) {
				t.Errorf("error %v does not wrap ErrInvalidEndpoint", err)
			}
		})
	}
}

func TestMemoryRegistry_ListKeepsOrderAndDefaultsStatus(t *testing.T) {
	reg, err := NewMemoryRegistry(
		models.Endpoint{ID: "z", Name: "Z", URL: "http://z.local"},
		models.Endpoint{ID: "a", Name: "A", URL: "http://a.local"},
	)
	if err != nil {
		t.Fatalf("NewMemoryRegistry() error = %v", err)
	}

	got := reg.List()
	if len(got) != 2 || got[0].ID != "z" || got[1].ID != "a" {
		t.Fatalf("List() = %+v, want [z a]", got)
	}
	for _, ep := range got {
		if ep.Status != models.StatusUnknown {
			t.Errorf("%s status = %s, want unknown", ep.ID, ep.Status)
		}
		if ep.LastChecked != nil {
			t.Errorf("%s LastChecked = %v, want nil", ep.ID, ep.LastChecked)
		}
	}
}

func TestMemoryRegistry_Get(t *testing.T) {
	reg, _ := NewMemoryRegistry(models.Endpoint{
		ID:      "a",
		Name:    "A",
		URL:     "http://a.local",
		Headers: map[string]string{"X-Key": "1"},
	})

	ep, err := reg.Get("a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	ep.Headers["X-Key"] = "mutated"

	again, _ := reg.Get("a")
	if again.Headers["X-Key"] != "1" {
		t.Error("registry mutated through returned endpoint")
	}

	if _, err := reg.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryRegistry_Register(t *testing.T) {
	reg, _ := NewMemoryRegistry()

	ep, err := reg.Register("  Payments ", "https://payments.local/health")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if ep.ID == "" {
		t.Error("Register() did not assign an id")
	}
	if ep.Name != "Payments" {
		t.Errorf("Name = %q, want trimmed", ep.Name)
	}
	if reg.Len() != 1 {
		t.Errorf("Len() = %d, want 1", reg.Len())
	}

	if _, err := reg.Register("", "https://x.local"); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("Register(empty name) error = %v, want ErrInvalidEndpoint", err)
	}
	if _, err := reg.Register("Bad", "not a url"); !errors.Is(err, ErrInvalidEndpoint) {
		t.Errorf("Register(bad url) error = %v, want ErrInvalidEndpoint", err)
	}
}
