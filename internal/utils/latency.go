package utils

import (
	"sort"
	"sync"
	"time"
)

// LatencyTracker keeps a bounded ring of recent duration samples and computes
// percentiles over them.
type LatencyTracker struct {
	mu      sync.RWMutex
	samples []time.Duration
	next    int
	filled  bool
}

// LatencyStats is a point-in-time summary of tracked samples.
type LatencyStats struct {
	Count int           `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	Max   time.Duration `json:"max"`
}

// NewLatencyTracker creates a tracker storing up to maxSize samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = 512
	}
	return &LatencyTracker{samples: make([]time.Duration, maxSize)}
}

// Observe records a new duration, overwriting the oldest sample once full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.samples[l.next] = d
	l.next++
	if l.next == len(l.samples) {
		l.next = 0
		l.filled = true
	}
}

// Percentile returns the percentile (0-100) duration. Returns zero if no
// samples have been observed.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	sorted := l.sortedSnapshot()
	if len(sorted) == 0 {
		return 0
	}
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	index := int((p / 100.0) * float64(len(sorted)-1))
	return sorted[index]
}

// Count returns the number of samples currently held.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count()
}

// Stats summarises the tracked samples for health reporting.
func (l *LatencyTracker) Stats() LatencyStats {
	sorted := l.sortedSnapshot()
	if len(sorted) == 0 {
		return LatencyStats{}
	}
	return LatencyStats{
		Count: len(sorted),
		P50:   sorted[int(0.50*float64(len(sorted)-1))],
		P95:   sorted[int(0.95*float64(len(sorted)-1))],
		Max:   sorted[len(sorted)-1],
	}
}

func (l *LatencyTracker) count() int {
	if l.filled {
		return len(l.samples)
	}
	return l.next
}

func (l *LatencyTracker) sortedSnapshot() []time.Duration {
	l.mu.RLock()
	sorted := append([]time.Duration(nil), l.samples[:l.count()]...)
	l.mu.RUnlock()

	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted
}
