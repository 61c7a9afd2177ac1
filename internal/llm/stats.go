package llm

import (
	"slices"
	"sync"
	"time"
)

type sample struct {
	timestamp    time.Time
	firstDeltaMs int64 // -1 when no text arrived
	totalMs      int64
	failed       bool
}

// LatencySnapshot aggregates one latency measure.
type LatencySnapshot struct {
	Count int     `json:"count"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

// StatsSnapshot is a point-in-time aggregate of recent generations.
type StatsSnapshot struct {
	Generations int             `json:"generations"`
	Failures    int             `json:"failures"`
	FirstDelta  LatencySnapshot `json:"first_delta"`
	Total       LatencySnapshot `json:"total"`
}

// LLMStats tracks recent generation latencies within a rolling window.
type LLMStats struct {
	mu      sync.Mutex
	samples []sample
	maxAge  time.Duration
}

func NewLLMStats(maxAge time.Duration) *LLMStats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &LLMStats{
		samples: make([]sample, 0, 256),
		maxAge:  maxAge,
	}
}

// Record adds one generation. firstDelta < 0 means no text was received.
func (s *LLMStats) Record(firstDelta, total time.Duration, failed bool) {
	sm := sample{
		timestamp:    time.Now(),
		firstDeltaMs: -1,
		totalMs:      max(total.Milliseconds(), 0),
		failed:       failed,
	}
	if firstDelta >= 0 {
		sm.firstDeltaMs = firstDelta.Milliseconds()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(sm.timestamp)
	s.samples = append(s.samples, sm)
}

func (s *LLMStats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)

	var snap StatsSnapshot
	first := make([]int64, 0, len(s.samples))
	total := make([]int64, 0, len(s.samples))
	for _, sm := range s.samples {
		snap.Generations++
		if sm.failed {
			snap.Failures++
		}
		if sm.firstDeltaMs >= 0 {
			first = append(first, sm.firstDeltaMs)
		}
		total = append(total, sm.totalMs)
	}
	snap.FirstDelta = aggregate(first)
	snap.Total = aggregate(total)
	return snap
}

func (s *LLMStats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	writeIdx := 0
	for _, sm := range s.samples {
		if !sm.timestamp.Before(cutoff) {
			s.samples[writeIdx] = sm
			writeIdx++
		}
	}
	s.samples = s.samples[:writeIdx]
}

func aggregate(values []int64) LatencySnapshot {
	if len(values) == 0 {
		return LatencySnapshot{}
	}
	slices.Sort(values)
	var sum int64
	for _, v := range values {
		sum += v
	}
	return LatencySnapshot{
		Count: len(values),
		MinMs: values[0],
		MaxMs: values[len(values)-1],
		AvgMs: float64(sum) / float64(len(values)),
		P50Ms: percentile(values, 50),
		P95Ms: percentile(values, 95),
		P99Ms: percentile(values, 99),
	}
}

func percentile(sortedValues []int64, pct float64) float64 {
	if len(sortedValues) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sortedValues[0])
	}
	if pct >= 100 {
		return float64(sortedValues[len(sortedValues)-1])
	}

	index := (float64(len(sortedValues)-1) * pct) / 100.0
	lower := int(index)
	upper := lower + 1
	if upper >= len(sortedValues) {
		return float64(sortedValues[lower])
	}
	weight := index - float64(lower)
	lo := float64(sortedValues[lower])
	hi := float64(sortedValues[upper])
	return lo + ((hi - lo) * weight)
}
