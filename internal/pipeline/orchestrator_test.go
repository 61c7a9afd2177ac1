package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/prdbuilder/internal/config"
	"github.com/dgallion1/prdbuilder/internal/llm"
	"github.com/dgallion1/prdbuilder/internal/stream"
)

type attempt struct {
	deltas []string
	err    error
	block  bool // wait for ctx after sending deltas
}

type fakeStreamer struct {
	mu       sync.Mutex
	attempts []attempt
	calls    int
	prompts  []string
	bound    []io.Closer
	started  chan struct{}
}

func (f *fakeStreamer) Stream(ctx context.Context, req llm.StreamRequest, onDelta func(string) error) (llm.Usage, error) {
	f.mu.Lock()
	a := f.attempts[min(f.calls, len(f.attempts)-1)]
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	f.mu.Unlock()

	body := io.NopCloser(strings.NewReader(""))
	if req.Bind != nil {
		req.Bind(body)
	}
	for _, d := range a.deltas {
		if err := onDelta(d); err != nil {
			return llm.Usage{}, err
		}
	}
	if a.block {
		if f.started != nil {
			close(f.started)
		}
		<-ctx.Done()
		return llm.Usage{}, ctx.Err()
	}
	if a.err != nil {
		return llm.Usage{}, a.err
	}
	return llm.Usage{OutputTokens: len(a.deltas), StopReason: "end_turn"}, nil
}

type recordingSink struct {
	mu     sync.Mutex
	deltas []string
	errs   []string
	done   int
	fail   error
}

func (s *recordingSink) Delta(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.deltas = append(s.deltas, text)
	return nil
}

func (s *recordingSink) Error(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, msg)
	return nil
}

func (s *recordingSink) Done() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.done++
	return nil
}

func testConfig() config.Config {
	return config.Config{
		MaxConcurrentGenerations: 2,
		GenerationTimeout:        time.Minute,
		GenerationTTL:            time.Hour,
	}
}

func newTestOrchestrator(cfg config.Config, client Streamer) *Orchestrator {
	o := NewOrchestrator(cfg, client, llm.NewLLMStats(time.Hour), slog.New(slog.DiscardHandler))
	o.backoff = func(int) time.Duration { return time.Millisecond }
	return o
}

func TestRun_Completes(t *testing.T) {
	fs := &fakeStreamer{attempts: []attempt{{deltas: []string{"# Atlas", "\n\nBody."}}}}
	o := newTestOrchestrator(testConfig(), fs)
	gen := o.Begin("Atlas", nil)
	sink := &recordingSink{}

	if err := o.Run(t.Context(), gen, "prompt text", sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gen.Session.State() != stream.Completed {
		t.Errorf("state = %s, want completed", gen.Session.State())
	}
	if gen.Session.Text() != "# Atlas\n\nBody." {
		t.Errorf("text = %q", gen.Session.Text())
	}
	if len(sink.deltas) != 2 || sink.done != 1 || len(sink.errs) != 0 {
		t.Errorf("unexpected sink events: %+v", sink)
	}
	if fs.prompts[0] != "prompt text" {
		t.Errorf("prompt = %q", fs.prompts[0])
	}
	snap := gen.Snapshot(false)
	if snap.Usage.OutputTokens != 2 || snap.Attempts != 1 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if st := o.Stats().Snapshot(); st.Generations != 1 || st.Failures != 0 || st.FirstDelta.Count != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestRun_RetriesBeforeFirstDelta(t *testing.T) {
	fs := &fakeStreamer{attempts: []attempt{
		{err: &llm.RetryableError{StatusCode: 529, Message: "overloaded"}},
		{deltas: []string{"ok"}},
	}}
	o := newTestOrchestrator(testConfig(), fs)
	gen := o.Begin("Atlas", nil)
	sink := &recordingSink{}

	if err := o.Run(t.Context(), gen, "p", sink); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fs.calls != 2 {
		t.Errorf("expected 2 calls, got %d", fs.calls)
	}
	if gen.Session.Text() != "ok" || sink.done != 1 {
		t.Errorf("text=%q done=%d", gen.Session.Text(), sink.done)
	}
}

func TestRun_NoRetryAfterFirstDelta(t *testing.T) {
	fs := &fakeStreamer{attempts: []attempt{
		{deltas: []string{"partial "}, err: &llm.RetryableError{StatusCode: 529, Message: "overloaded"}},
		{deltas: []string{"again"}},
	}}
	o := newTestOrchestrator(testConfig(), fs)
	gen := o.Begin("Atlas", nil)
	sink := &recordingSink{}

	err := o.Run(t.Context(), gen, "p", sink)
	var se *stream.StreamError
	if !errors.As(err, &se) {
		t.Fatalf("expected StreamError, got %v", err)
	}
	if fs.calls != 1 {
		t.Errorf("expected 1 call, got %d", fs.calls)
	}
	if gen.Session.State() != stream.Failed {
		t.Errorf("state = %s, want failed", gen.Session.State())
	}
	if gen.Session.Text() != "partial " {
		t.Errorf("partial text should be kept, got %q", gen.Session.Text())
	}
	if len(sink.errs) != 1 || sink.errs[0] != gen.Session.Err() {
		t.Errorf("sink errors %q, session error %q", sink.errs, gen.Session.Err())
	}
}

func TestRun_GivesUpAfterMaxRetries(t *testing.T) {
	fs := &fakeStreamer{attempts: []attempt{{err: &llm.RetryableError{StatusCode: 429, Message: "slow down"}}}}
	o := newTestOrchestrator(testConfig(), fs)
	gen := o.Begin("Atlas", nil)
	sink := &recordingSink{}

	if err := o.Run(t.Context(), gen, "p", sink); err == nil {
		t.Fatal("expected error")
	}
	if fs.calls != MaxRetries {
		t.Errorf("expected %d calls, got %d", MaxRetries, fs.calls)
	}
	want := llm.UserMessage(&llm.RetryableError{StatusCode: 429})
	if gen.Session.Err() != want {
		t.Errorf("error = %q, want %q", gen.Session.Err(), want)
	}
	if st := o.Stats().Snapshot(); st.Failures != 1 || st.FirstDelta.Count != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestRun_NonRetryableFailsFast(t *testing.T) {
	fs := &fakeStreamer{attempts: []attempt{{err: &llm.APIError{StatusCode: 400, Message: "prompt is too long"}}}}
	o := newTestOrchestrator(testConfig(), fs)
	gen := o.Begin("Atlas", nil)
	sink := &recordingSink{}

	_ = o.Run(t.Context(), gen, "p", sink)
	if fs.calls != 1 {
		t.Errorf("expected 1 call, got %d", fs.calls)
	}
	if len(sink.errs) != 1 || sink.errs[0] != "prompt is too long" {
		t.Errorf("sink errors = %q", sink.errs)
	}
}

func TestRun_CancelKeepsPartialText(t *testing.T) {
	fs := &fakeStreamer{
		attempts: []attempt{{deltas: []string{"# Draft"}, block: true}},
		started:  make(chan struct{}),
	}
	o := newTestOrchestrator(testConfig(), fs)
	gen := o.Begin("Atlas", nil)
	sink := &recordingSink{}

	errc := make(chan error, 1)
	go func() { errc <- o.Run(t.Context(), gen, "p", sink) }()

	<-fs.started
	found, cancelled := o.Cancel(gen.ID)
	if !found || !cancelled {
		t.Fatalf("Cancel = %v, %v", found, cancelled)
	}

	select {
	case err := <-errc:
		if !errors.Is(err, stream.ErrCancelled) {
			t.Errorf("expected ErrCancelled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if gen.Session.State() != stream.Cancelled || gen.Session.Text() != "# Draft" {
		t.Errorf("state=%s text=%q", gen.Session.State(), gen.Session.Text())
	}
	if len(sink.errs) != 1 || sink.errs[0] != MsgCancelled {
		t.Errorf("sink errors = %q", sink.errs)
	}
	if _, again := o.Cancel(gen.ID); again {
		t.Error("second cancel should report false")
	}
}

func TestRun_Timeout(t *testing.T) {
	cfg := testConfig()
	cfg.GenerationTimeout = 20 * time.Millisecond
	fs := &fakeStreamer{attempts: []attempt{{deltas: []string{"slow"}, block: true}}}
	o := newTestOrchestrator(cfg, fs)
	gen := o.Begin("Atlas", nil)
	sink := &recordingSink{}

	err := o.Run(t.Context(), gen, "p", sink)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if gen.Session.State() != stream.Failed || gen.Session.Err() != stream.MsgTimeout {
		t.Errorf("state=%s err=%q", gen.Session.State(), gen.Session.Err())
	}
	if len(sink.errs) != 1 || sink.errs[0] != stream.MsgTimeout {
		t.Errorf("sink errors = %q", sink.errs)
	}
}

func TestRun_ClientDisconnect(t *testing.T) {
	fs := &fakeStreamer{attempts: []attempt{{deltas: []string{"a", "b"}}}}
	o := newTestOrchestrator(testConfig(), fs)
	gen := o.Begin("Atlas", nil)
	sink := &recordingSink{fail: errors.New("broken pipe")}

	if err := o.Run(t.Context(), gen, "p", sink); err == nil {
		t.Fatal("expected error")
	}
	if gen.Session.State() != stream.Cancelled {
		t.Errorf("state = %s, want cancelled", gen.Session.State())
	}
	if sink.done != 0 || len(sink.errs) != 0 {
		t.Errorf("no events should follow a failed write: %+v", sink)
	}
}

func TestAcquire(t *testing.T) {
	o := newTestOrchestrator(testConfig(), &fakeStreamer{})

	r1, err := o.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	r2, err := o.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	if o.Active() != 2 {
		t.Errorf("active = %d, want 2", o.Active())
	}
	if _, err := o.Acquire(); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	r1()
	r1() // release is idempotent
	if o.Active() != 1 {
		t.Errorf("active = %d, want 1", o.Active())
	}
	r3, err := o.Acquire()
	if err != nil {
		t.Fatalf("slot should be free: %v", err)
	}
	r2()
	r3()
}

func TestOrchestrator_StopCancelsActive(t *testing.T) {
	fs := &fakeStreamer{
		attempts: []attempt{{block: true}},
		started:  make(chan struct{}),
	}
	o := newTestOrchestrator(testConfig(), fs)
	o.Start(t.Context())
	gen := o.Begin("Atlas", nil)

	errc := make(chan error, 1)
	go func() { errc <- o.Run(t.Context(), gen, "p", &recordingSink{}) }()
	<-fs.started

	o.Stop()
	select {
	case <-errc:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	if gen.Session.State() != stream.Cancelled {
		t.Errorf("state = %s, want cancelled", gen.Session.State())
	}
}
