package aggregate

import (
	"testing"

	"github.com/jpalmerr/pulsecast/internal/models"
)

func TestReduce(t *testing.T) {
	tests := []struct {
		name   string
		prev   models.Metrics
		batch  []Outcome
		want   models.Metrics
		wantOK bool
	}{
		{
			name:   "empty batch is a no-op",
			prev:   models.Metrics{SystemHealthPercent: 50, TotalRequests: 7},
			batch:  nil,
			want:   models.Metrics{SystemHealthPercent: 50, TotalRequests: 7},
			wantOK: false,
		},
		{
			name: "all healthy",
			batch: []Outcome{
				{Healthy: true, LatencyMs: 10},
				{Healthy: true, LatencyMs: 20},
			},
			want: models.Metrics{
				SystemHealthPercent: 100,
				TotalRequests:       2,
				AvgResponseTimeMs:   15,
			},
			wantOK: true,
		},
		{
			name: "all failing",
			batch: []Outcome{
				{Healthy: false, LatencyMs: 100, ErrorRatePercent: 100},
				{Healthy: false, LatencyMs: 300, ErrorRatePercent: 100},
			},
			want: models.Metrics{
				SystemHealthPercent: 0,
				TotalRequests:       2,
				ErrorRatePercent:    100,
				AvgResponseTimeMs:   200,
			},
			wantOK: true,
		},
		{
			name: "mixed batch accumulates requests",
			prev: models.Metrics{TotalRequests: 10},
			batch: []Outcome{
				{Healthy: true, LatencyMs: 1, ErrorRatePercent: 0},
				{Healthy: false, LatencyMs: 2, ErrorRatePercent: 40},
				{Healthy: true, LatencyMs: 2, ErrorRatePercent: 20},
				{Healthy: false, LatencyMs: 2, ErrorRatePercent: 60},
			},
			want: models.Metrics{
				SystemHealthPercent: 50,
				TotalRequests:       14,
				ErrorRatePercent:    30,
				AvgResponseTimeMs:   2,
			},
			wantOK: true,
		},
		{
			name: "out of range error rates are clamped",
			batch: []Outcome{
				{Healthy: false, ErrorRatePercent: 250},
			},
			want: models.Metrics{
				TotalRequests:    1,
				ErrorRatePercent: 100,
			},
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := New(nil).Reduce(tt.prev, tt.batch)
			if ok != tt.wantOK {
				t.Errorf("Reduce() ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("Reduce() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestReduce_HealthStaysInRange(t *testing.T) {
	agg := New(nil)
	var m models.Metrics
	for n := 1; n <= 20; n++ {
		batch := make([]Outcome, n)
		for i := range batch {
			batch[i] = Outcome{Healthy: i%3 == 0, LatencyMs: int64(i)}
		}
		m, _ = agg.Reduce(m, batch)
		if m.SystemHealthPercent < 0 || m.SystemHealthPercent > 100 {
			t.Fatalf("n=%d: SystemHealthPercent = %v, out of [0,100]", n, m.SystemHealthPercent)
		}
		if m.AvgResponseTimeMs < 0 {
			t.Fatalf("n=%d: AvgResponseTimeMs = %d, want >= 0", n, m.AvgResponseTimeMs)
		}
	}
}

func TestReduce_TotalRequestsMonotonic(t *testing.T) {
	agg := New(SyntheticIncrement)
	batch := []Outcome{{Healthy: true}, {Healthy: false}}

	var m models.Metrics
	for i := 0; i < 10; i++ {
		next, _ := agg.Reduce(m, batch)
		if next.TotalRequests <= m.TotalRequests {
			t.Fatalf("TotalRequests went from %d to %d", m.TotalRequests, next.TotalRequests)
		}
		m = next
	}
}

func TestSyntheticIncrement_Range(t *testing.T) {
	for i := 0; i < 1000; i++ {
		n := SyntheticIncrement(Outcome{})
		if n < 50 || n >= 150 {
			t.Fatalf("SyntheticIncrement() = %d, want [50,150)", n)
		}
	}
}

func TestReduce_CustomIncrement(t *testing.T) {
	agg := New(func(o Outcome) uint64 {
		if o.Healthy {
			return 3
		}
		return 0
	})
	got, _ := agg.Reduce(models.Metrics{}, []Outcome{{Healthy: true}, {Healthy: false}, {Healthy: true}})
	if got.TotalRequests != 6 {
		t.Errorf("TotalRequests = %d, want 6", got.TotalRequests)
	}
}
