package monitor

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jpalmerr/pulsecast/internal/models"
	"github.com/jpalmerr/pulsecast/internal/probe"
)

// ErrorRateSource computes an endpoint's new error rate percentage from its
// previous record and the latest probe result. The result is clamped to
// [0,100] by the orchestrator.
type ErrorRateSource func(prev models.Endpoint, res probe.Result) float64

// errorRateAlpha weights the latest sample in [ObservedErrorRate].
const errorRateAlpha = 0.2

// ObservedErrorRate is an exponentially weighted failure percentage over the
// endpoint's own probe history. The first probe seeds the average directly.
func ObservedErrorRate(prev models.Endpoint, res probe.Result) float64 {
	sample := 0.0
	if !res.OK {
		sample = 100
	}
	if prev.LastChecked == nil {
		return sample
	}
	return errorRateAlpha*sample + (1-errorRateAlpha)*prev.ErrorRatePercent
}

// SyntheticErrorRate produces demo values: 0-2% for healthy probes, 0-10%
// for non-2xx responses and 100% when no response was received.
func SyntheticErrorRate(_ models.Endpoint, res probe.Result) float64 {
	switch {
	case res.OK:
		return rand.Float64() * 2
	case res.StatusCode != 0:
		return rand.Float64() * 10
	default:
		return 100
	}
}

// PerformanceSource produces the periodic performance series.
type PerformanceSource interface {
	// Observe is called once for every completed probe.
	Observe(res probe.Result)

	// Sample returns the sample for the window ending at now.
	Sample(now time.Time) models.PerformanceSample
}

// PerformanceTimeLayout formats the wall-clock label of a sample.
const PerformanceTimeLayout = "15:04"

// ObservedPerformance reports the number of probes sent and their mean
// latency since the previous sample.
type ObservedPerformance struct {
	mu       sync.Mutex
	requests uint64
	total    time.Duration
}

// NewObservedPerformance creates an empty [ObservedPerformance].
func NewObservedPerformance() *ObservedPerformance {
	return &ObservedPerformance{}
}

// Observe implements [PerformanceSource].
func (p *ObservedPerformance) Observe(res probe.Result) {
	p.mu.Lock()
	p.requests++
	p.total += res.Latency
	p.mu.Unlock()
}

// Sample implements [PerformanceSource]. It resets the window.
func (p *ObservedPerformance) Sample(now time.Time) models.PerformanceSample {
	p.mu.Lock()
	requests, total := p.requests, p.total
	p.requests, p.total = 0, 0
	p.mu.Unlock()

	var avg int64
	if requests > 0 {
		avg = int64(math.Round(float64(total.Milliseconds()) / float64(requests)))
	}
	return models.PerformanceSample{
		Time:           now.Format(PerformanceTimeLayout),
		Requests:       requests,
		ResponseTimeMs: avg,
		RecordedAt:     now,
	}
}

// SyntheticPerformance produces demo samples: 100-299 requests at 50-199ms.
type SyntheticPerformance struct{}

// Observe implements [PerformanceSource]; synthetic samples ignore probes.
func (SyntheticPerformance) Observe(probe.Result) {}

// Sample implements [PerformanceSource].
func (SyntheticPerformance) Sample(now time.Time) models.PerformanceSample {
	return models.PerformanceSample{
		Time:           now.Format(PerformanceTimeLayout),
		Requests:       100 + rand.Uint64N(200),
		ResponseTimeMs: 50 + rand.Int64N(150),
		RecordedAt:     now,
	}
}
