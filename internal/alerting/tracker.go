// Package alerting implements threshold checks over integration health, a
// debounced multi-channel alert pipeline and the periodic monitor loop.
package alerting

import (
	"sort"
	"sync"
	"time"
)

// DefaultWindow is the rolling window for error-rate tracking.
const DefaultWindow = 5 * time.Minute

type sample struct {
	at      time.Time
	success bool
}

type latencySample struct {
	at      time.Time
	seconds float64
}

// Tracker maintains per-integration sliding windows of request outcomes and
// latencies. Entries outside the window are pruned on every record.
type Tracker struct {
	mu        sync.Mutex
	window    time.Duration
	requests  map[string][]sample
	latencies map[string][]latencySample
}

// NewTracker creates a tracker with the given rolling window.
func NewTracker(window time.Duration) *Tracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Tracker{
		window:    window,
		requests:  make(map[string][]sample),
		latencies: make(map[string][]latencySample),
	}
}

// RecordRequest records one request outcome for an integration.
func (t *Tracker) RecordRequest(integration string, success bool) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.prune(t.requests[integration], now)
	t.requests[integration] = append(window, sample{at: now, success: success})
}

// RecordLatency records one request latency in seconds for an integration
// endpoint.
func (t *Tracker) RecordLatency(integration, endpoint string, seconds float64) {
	now := time.Now()
	key := integration + ":" + endpoint

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.latencies[key][:0]
	for _, s := range t.latencies[key] {
		if now.Sub(s.at) <= t.window {
			kept = append(kept, s)
		}
	}
	t.latencies[key] = append(kept, latencySample{at: now, seconds: seconds})
}

// ErrorRate returns the windowed error rate and the number of samples it was
// computed over. Zero samples yields a zero rate.
func (t *Tracker) ErrorRate(integration string) (float64, int) {
	now := time.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	window := t.prune(t.requests[integration], now)
	t.requests[integration] = window

	total := len(window)
	if total == 0 {
		return 0, 0
	}

	errors := 0
	for _, s := range window {
		if !s.success {
			errors++
		}
	}
	return float64(errors) / float64(total), total
}

// LatencyP95 returns the windowed P95 latency in seconds for an integration
// endpoint and the sample count.
func (t *Tracker) LatencyP95(integration, endpoint string) (float64, int) {
	now := time.Now()
	key := integration + ":" + endpoint

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.latencies[key][:0]
	for _, s := range t.latencies[key] {
		if now.Sub(s.at) <= t.window {
			kept = append(kept, s)
		}
	}
	t.latencies[key] = kept

	if len(kept) == 0 {
		return 0, 0
	}

	values := make([]float64, len(kept))
	for i, s := range kept {
		values[i] = s.seconds
	}
	sort.Float64s(values)

	idx := int(float64(len(values)) * 0.95)
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx], len(values)
}

// Integrations returns every integration with recorded request samples.
func (t *Tracker) Integrations() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	names := make([]string, 0, len(t.requests))
	for name := range t.requests {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (t *Tracker) prune(window []sample, now time.Time) []sample {
	kept := window[:0]
	for _, s := range window {
		if now.Sub(s.at) <= t.window {
			kept = append(kept, s)
		}
	}
	return kept
}
