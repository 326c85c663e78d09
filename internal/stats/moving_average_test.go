package stats

import (
	"math"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMovingAverage(t *testing.T) {
	tests := []struct {
		name       string
		window     time.Duration
		minSamples int
		samples    []float64 // one per second from t0
		at         time.Duration
		want       float64
		wantOK     bool
	}{
		{"empty", time.Minute, 1, nil, 0, 0, false},
		{"single", time.Minute, 1, []float64{4}, 0, 4, true},
		{"mean", time.Minute, 1, []float64{1, 2, 3, 6}, 3 * time.Second, 3, true},
		{"below min samples", time.Minute, 3, []float64{1, 2}, 2 * time.Second, 0, false},
		{"at min samples", time.Minute, 3, []float64{1, 2, 3}, 2 * time.Second, 2, true},
		{"old samples expire", 2 * time.Second, 1, []float64{100, 100, 1, 2, 3}, 4 * time.Second, 2, true},
		{"edge of window kept", 2 * time.Second, 1, []float64{3, 5}, 3 * time.Second, 5, true},
		{"all expired", time.Second, 1, []float64{1, 2}, time.Hour, 0, false},
		{"zero min samples", time.Minute, 0, []float64{-2}, 0, -2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMovingAverage(tt.window, tt.minSamples)
			for i, v := range tt.samples {
				m.Add(v, t0.Add(time.Duration(i)*time.Second))
			}

			got, ok := m.Average(t0.Add(tt.at))
			if ok != tt.wantOK || math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Average() = %v, %v; want %v, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMovingAverage_AddExpires(t *testing.T) {
	m := NewMovingAverage(10*time.Second, 1)
	m.Add(1, t0)
	m.Add(2, t0.Add(5*time.Second))
	m.Add(3, t0.Add(20*time.Second))

	if m.Len() != 1 {
		t.Errorf("Len() = %d, want 1 after the window moved", m.Len())
	}
	if m.Window() != 10*time.Second {
		t.Errorf("Window() = %v", m.Window())
	}
}

func TestMovingAverage_Concurrent(t *testing.T) {
	m := NewMovingAverage(time.Hour, 1)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 100 {
				m.Add(float64(i), t0.Add(time.Duration(j)*time.Millisecond))
				m.Average(t0)
			}
		}()
	}
	wg.Wait()

	if m.Len() != 800 {
		t.Errorf("Len() = %d, want 800", m.Len())
	}
}
