package stats

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	at    time.Time
	value float64
}

// MovingAverage is the mean of the samples inside a sliding time window.
//
// Thread Safety: all methods are safe for concurrent use.
type MovingAverage struct {
	window     time.Duration
	minSamples int

	mu      sync.Mutex
	samples []sample
}

// NewMovingAverage returns an empty average over window. minSamples below 1
// is treated as 1.
func NewMovingAverage(window time.Duration, minSamples int) *MovingAverage {
	if minSamples < 1 {
		minSamples = 1
	}
	return &MovingAverage{window: window, minSamples: minSamples}
}

// Add records value at time at, dropping samples that fell out of the window.
func (m *MovingAverage) Add(value float64, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expire(at)
	m.samples = append(m.samples, sample{at: at, value: value})
}

// Average returns the mean of the samples inside the window ending at now.
// ok is false while fewer than minSamples remain.
func (m *MovingAverage) Average(now time.Time) (avg float64, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expire(now)
	if len(m.samples) < m.minSamples {
		return 0, false
	}
	var sum float64
	for _, s := range m.samples {
		sum += s.value
	}
	return sum / float64(len(m.samples)), true
}

// Len returns the number of samples currently held.
func (m *MovingAverage) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

// Window returns the averaging window.
func (m *MovingAverage) Window() time.Duration {
	return m.window
}

func (m *MovingAverage) expire(now time.Time) {
	m.samples = slices.DeleteFunc(m.samples, func(s sample) bool {
		return now.Sub(s.at) > m.window
	})
}
