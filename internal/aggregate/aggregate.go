// Package aggregate reduces a batch of probe outcomes into fleet-wide
// metrics.
package aggregate

import (
	"math"
	"math/rand/v2"

	"github.com/jpalmerr/pulsecast/internal/models"
)

// Outcome is the per-endpoint input to a reduction.
type Outcome struct {
	Healthy          bool
	LatencyMs        int64
	ErrorRatePercent float64
}

// RequestIncrement returns how many requests a single outcome contributes to
// the cumulative request counter.
type RequestIncrement func(Outcome) uint64

// OnePerProbe counts each probe as one request.
func OnePerProbe(Outcome) uint64 { return 1 }

// SyntheticIncrement adds a random amount in [50, 150) per probe, for demo
// deployments that want a busy-looking counter.
func SyntheticIncrement(Outcome) uint64 {
	return 50 + rand.Uint64N(100)
}

// Aggregator turns one bulk check into a new [models.Metrics] value.
// It holds no state of its own; the previous metrics are passed in.
type Aggregator struct {
	increment RequestIncrement
}

// New creates an Aggregator. A nil inc defaults to [OnePerProbe].
func New(inc RequestIncrement) *Aggregator {
	if inc == nil {
		inc = OnePerProbe
	}
	return &Aggregator{increment: inc}
}

// Reduce folds batch into prev. It returns prev unchanged and false when the
// batch is empty, so an empty fleet never produces a division by zero.
func (a *Aggregator) Reduce(prev models.Metrics, batch []Outcome) (models.Metrics, bool) {
	n := len(batch)
	if n == 0 {
		return prev, false
	}

	var (
		healthy   int
		latency   int64
		errorRate float64
		requests  uint64
	)
	for _, o := range batch {
		if o.Healthy {
			healthy++
		}
		latency += o.LatencyMs
		errorRate += o.ErrorRatePercent
		requests += a.increment(o)
	}

	return models.Metrics{
		SystemHealthPercent: clampPercent(float64(healthy) / float64(n) * 100),
		TotalRequests:       prev.TotalRequests + requests,
		ErrorRatePercent:    clampPercent(errorRate / float64(n)),
		AvgResponseTimeMs:   int64(math.Round(float64(latency) / float64(n))),
	}, true
}

func clampPercent(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
