package llm

import (
	"testing"
	"time"
)

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func TestLLMStatsSnapshotPercentiles(t *testing.T) {
	stats := NewLLMStats(time.Hour)
	for _, n := range []int{100, 200, 300, 400, 500} {
		stats.Record(ms(n/10), ms(n), false)
	}

	snap := stats.Snapshot().Total
	if snap.Count != 5 {
		t.Fatalf("expected count=5, got %d", snap.Count)
	}
	if snap.MinMs != 100 {
		t.Fatalf("expected min=100, got %d", snap.MinMs)
	}
	if snap.MaxMs != 500 {
		t.Fatalf("expected max=500, got %d", snap.MaxMs)
	}
	if snap.AvgMs != 300 {
		t.Fatalf("expected avg=300, got %f", snap.AvgMs)
	}
	if snap.P50Ms != 300 {
		t.Fatalf("expected p50=300, got %f", snap.P50Ms)
	}
	if snap.P95Ms != 480 {
		t.Fatalf("expected p95=480, got %f", snap.P95Ms)
	}
	if snap.P99Ms != 496 {
		t.Fatalf("expected p99=496, got %f", snap.P99Ms)
	}
}

func TestLLMStatsFirstDeltaAndFailures(t *testing.T) {
	stats := NewLLMStats(time.Hour)
	stats.Record(ms(40), ms(900), false)
	stats.Record(-1, ms(50), true) // failed before any text
	stats.Record(ms(60), ms(700), true)

	snap := stats.Snapshot()
	if snap.Generations != 3 || snap.Failures != 2 {
		t.Fatalf("expected 3 generations / 2 failures, got %d / %d", snap.Generations, snap.Failures)
	}
	if snap.FirstDelta.Count != 2 || snap.FirstDelta.MinMs != 40 || snap.FirstDelta.MaxMs != 60 {
		t.Fatalf("unexpected first-delta aggregate %+v", snap.FirstDelta)
	}
	if snap.Total.Count != 3 {
		t.Fatalf("expected 3 totals, got %d", snap.Total.Count)
	}
}

func TestLLMStatsPrunesExpiredSamples(t *testing.T) {
	stats := NewLLMStats(10 * time.Millisecond)
	stats.Record(0, ms(100), false)
	time.Sleep(25 * time.Millisecond)

	snap := stats.Snapshot()
	if snap.Generations != 0 || snap.Total.Count != 0 {
		t.Fatalf("expected count=0 after prune, got %d", snap.Total.Count)
	}

	stats.Record(0, ms(200), false)
	snap = stats.Snapshot()
	if snap.Total.Count != 1 {
		t.Fatalf("expected count=1 for fresh sample, got %d", snap.Total.Count)
	}
	if snap.Total.MinMs != 200 || snap.Total.MaxMs != 200 {
		t.Fatalf("expected min=max=200, got min=%d max=%d", snap.Total.MinMs, snap.Total.MaxMs)
	}
}

func TestLLMStatsRecordClampsNegativeDuration(t *testing.T) {
	stats := NewLLMStats(time.Hour)
	stats.Record(-1, -10, false)
	snap := stats.Snapshot().Total
	if snap.Count != 1 {
		t.Fatalf("expected count=1, got %d", snap.Count)
	}
	if snap.MinMs != 0 || snap.MaxMs != 0 {
		t.Fatalf("expected clamped duration=0, got min=%d max=%d", snap.MinMs, snap.MaxMs)
	}
}
