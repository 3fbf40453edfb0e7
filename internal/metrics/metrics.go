// Package metrics tracks the channel manager's operational counters: dial
// attempts and their outcomes, callers coalesced onto an in-flight dial,
// live channel count, and idle expiry. Counters and gauges are plain
// atomics; no external metrics backend is involved.
package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics is the counter set one channel manager maintains.
type Metrics struct {
	// Dial metrics. A coalesced dial is a GetOrLaunch caller that joined
	// an in-flight dial for the same identity instead of starting its own.
	DialAttempts   *Counter
	DialSuccess    *Counter
	DialFailures   *Counter
	DialsCoalesced *Counter
	DialTime       *Histogram

	// Channel lifecycle metrics.
	ActiveChannels  *Gauge
	ChannelsExpired *Counter
}

// New creates an empty metrics set.
func New() *Metrics {
	return &Metrics{
		DialAttempts:    NewCounter(),
		DialSuccess:     NewCounter(),
		DialFailures:    NewCounter(),
		DialsCoalesced:  NewCounter(),
		DialTime:        NewHistogram(),
		ActiveChannels:  NewGauge(),
		ChannelsExpired: NewCounter(),
	}
}

// RecordDial records one owned dial attempt and its outcome.
func (m *Metrics) RecordDial(success bool, duration time.Duration) {
	m.DialAttempts.Inc()
	if success {
		m.DialSuccess.Inc()
	} else {
		m.DialFailures.Inc()
	}
	m.DialTime.Observe(duration)
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		DialAttempts:    m.DialAttempts.Value(),
		DialSuccess:     m.DialSuccess.Value(),
		DialFailures:    m.DialFailures.Value(),
		DialsCoalesced:  m.DialsCoalesced.Value(),
		DialTimeAvg:     m.DialTime.Mean(),
		DialTimeP95:     m.DialTime.Percentile(0.95),
		ActiveChannels:  m.ActiveChannels.Value(),
		ChannelsExpired: m.ChannelsExpired.Value(),
	}
}

// Snapshot is a point-in-time view of a Metrics set.
type Snapshot struct {
	DialAttempts    int64
	DialSuccess     int64
	DialFailures    int64
	DialsCoalesced  int64
	DialTimeAvg     time.Duration
	DialTimeP95     time.Duration
	ActiveChannels  int64
	ChannelsExpired int64
}

// Counter is a monotonically increasing counter.
type Counter struct {
	value int64
}

// NewCounter creates a new counter.
func NewCounter() *Counter {
	return &Counter{}
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	atomic.AddInt64(&c.value, 1)
}

// Add adds n to the counter.
func (c *Counter) Add(n int64) {
	atomic.AddInt64(&c.value, n)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return atomic.LoadInt64(&c.value)
}

// Gauge is a value that can go up or down.
type Gauge struct {
	value int64
}

// NewGauge creates a new gauge.
func NewGauge() *Gauge {
	return &Gauge{}
}

// Set sets the gauge to a specific value.
func (g *Gauge) Set(value int64) {
	atomic.StoreInt64(&g.value, value)
}

// Add adds n to the gauge.
func (g *Gauge) Add(n int64) {
	atomic.AddInt64(&g.value, n)
}

// Value returns the current gauge value.
func (g *Gauge) Value() int64 {
	return atomic.LoadInt64(&g.value)
}

// Histogram tracks the distribution of durations over a bounded window of
// the most recent observations.
type Histogram struct {
	mu           sync.RWMutex
	observations []time.Duration
}

const histogramWindow = 1000

// NewHistogram creates a new histogram.
func NewHistogram() *Histogram {
	return &Histogram{observations: make([]time.Duration, 0, histogramWindow)}
}

// Observe adds a new observation, discarding the oldest once the window is
// full.
func (h *Histogram) Observe(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.observations) >= histogramWindow {
		h.observations = h.observations[1:]
	}
	h.observations = append(h.observations, d)
}

// Mean returns the mean of the retained observations.
func (h *Histogram) Mean() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.observations) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range h.observations {
		sum += d
	}
	return sum / time.Duration(len(h.observations))
}

// Percentile returns the pth percentile (0.0 to 1.0) of the retained
// observations.
func (h *Histogram) Percentile(p float64) time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.observations) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(h.observations))
	copy(sorted, h.observations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}

// Count returns the number of retained observations.
func (h *Histogram) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observations)
}
