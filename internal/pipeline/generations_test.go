package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dgallion1/prdbuilder/internal/llm"
	"github.com/dgallion1/prdbuilder/internal/stream"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestNewGeneration(t *testing.T) {
	g1 := NewGeneration("Atlas", []string{"brief.pdf"}, time.Minute)
	g2 := NewGeneration("Atlas", nil, time.Minute)
	if g1.ID == "" || g1.ID == g2.ID {
		t.Errorf("expected distinct non-empty IDs, got %q and %q", g1.ID, g2.ID)
	}
	if len(g1.ID) != 36 {
		t.Errorf("expected a UUID, got %q", g1.ID)
	}
	if g1.Session.State() != stream.Idle {
		t.Errorf("new generation should be idle, got %s", g1.Session.State())
	}
}

func TestGeneration_Snapshot(t *testing.T) {
	g := NewGeneration("Atlas", nil, time.Minute)
	g.Session.Start(t.Context())
	g.Session.OnDelta("# Overview\n\nAtlas tracks ")
	g.Session.OnDelta("inventory.\n")
	g.recordAttempt()

	snap := g.Snapshot(false)
	if snap.Attachments == nil {
		t.Error("attachments should encode as an empty list")
	}
	if snap.Session.State != stream.Streaming {
		t.Errorf("state = %s, want streaming", snap.Session.State)
	}
	if snap.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", snap.Attempts)
	}
	if snap.Stats.Sections != 1 || snap.Stats.Words != 5 {
		t.Errorf("unexpected stats %+v", snap.Stats)
	}
	if snap.Blocks != nil {
		t.Error("blocks should be omitted")
	}
	if withBlocks := g.Snapshot(true); len(withBlocks.Blocks) != 2 {
		t.Errorf("expected 2 blocks, got %d", len(withBlocks.Blocks))
	}
}

func TestStore_PutGetDelete(t *testing.T) {
	s := NewStore(time.Hour)
	g := NewGeneration("Atlas", nil, time.Minute)
	s.Put(g)

	if s.Get(g.ID) != g {
		t.Fatal("expected to find stored generation")
	}
	if s.Len() != 1 || len(s.All()) != 1 {
		t.Fatalf("expected 1 generation, got %d", s.Len())
	}

	g.Session.Start(t.Context())
	if !s.Delete(g.ID) {
		t.Fatal("expected delete to succeed")
	}
	if g.Session.State() != stream.Cancelled {
		t.Errorf("deleting an active generation should cancel it, got %s", g.Session.State())
	}
	if s.Get(g.ID) != nil || s.Delete(g.ID) {
		t.Error("generation should be gone")
	}
}

func TestStore_Cleanup(t *testing.T) {
	s := NewStore(10 * time.Millisecond)

	done := NewGeneration("done", nil, time.Minute)
	done.Session.Start(t.Context())
	done.Session.OnDone()

	active := NewGeneration("active", nil, time.Minute)
	active.Session.Start(t.Context())

	s.Put(done)
	s.Put(active)

	time.Sleep(20 * time.Millisecond)
	if n := s.Cleanup(); n != 1 {
		t.Errorf("expected 1 eviction, got %d", n)
	}
	if s.Get(done.ID) != nil {
		t.Error("expired generation should be evicted")
	}
	if s.Get(active.ID) == nil {
		t.Error("active generation should be kept")
	}
	active.Session.Cancel()
}

func TestStore_CleanupKeepsRecent(t *testing.T) {
	s := NewStore(time.Hour)
	g := NewGeneration("fresh", nil, time.Minute)
	s.Put(g)
	if n := s.Cleanup(); n != 0 {
		t.Errorf("expected no evictions, got %d", n)
	}
}

func TestBackoff_Bounds(t *testing.T) {
	for attempt := range 8 {
		d := Backoff(attempt)
		base := min(time.Duration(1<<uint(attempt))*time.Second, 30*time.Second)
		if d < base || d >= base+base/2 {
			t.Errorf("Backoff(%d) = %v, want in [%v, %v)", attempt, d, base, base+base/2)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	retryable := &llm.RetryableError{StatusCode: 529, Message: "overloaded"}
	tests := []struct {
		name     string
		err      error
		attempt  int
		gotDelta bool
		want     bool
	}{
		{"success", nil, 0, false, false},
		{"retryable first attempt", retryable, 0, false, true},
		{"retryable last attempt", retryable, MaxRetries - 1, false, false},
		{"after text", retryable, 0, true, false},
		{"permanent", &llm.APIError{StatusCode: 400, Message: "bad"}, 0, false, false},
		{"wrapped retryable", fmt.Errorf("call: %w", retryable), 1, false, true},
	}
	for _, tt := range tests {
		if got := shouldRetry(tt.err, tt.attempt, tt.gotDelta); got != tt.want {
			t.Errorf("%s: shouldRetry = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSleep_ContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("sleep = %v, want context.Canceled", err)
	}
	if err := sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("sleep = %v", err)
	}
}
