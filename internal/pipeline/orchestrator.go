package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgallion1/prdbuilder/internal/config"
	"github.com/dgallion1/prdbuilder/internal/llm"
	"github.com/dgallion1/prdbuilder/internal/stream"
)

// MsgCancelled is sent to the client when a generation is cancelled.
const MsgCancelled = "Generation cancelled."

// ErrBusy is returned when all generation slots are taken.
var ErrBusy = errors.New("too many concurrent generations")

// errSessionEnded stops the provider stream once the session is terminal.
var errSessionEnded = errors.New("session ended")

// Streamer produces model output as ordered text deltas.
type Streamer interface {
	Stream(ctx context.Context, req llm.StreamRequest, onDelta func(string) error) (llm.Usage, error)
}

// Sink receives the events forwarded to the client. stream.Writer is the
// HTTP implementation.
type Sink interface {
	Delta(text string) error
	Error(msg string) error
	Done() error
}

var _ Sink = (*stream.Writer)(nil)

// Orchestrator runs generations against the model and keeps their
// sessions in a registry.
type Orchestrator struct {
	gens   *Store
	client Streamer
	stats  *llm.LLMStats
	sem    chan struct{}
	log    *slog.Logger
	cfg    config.Config

	// backoff is replaceable in tests.
	backoff func(attempt int) time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewOrchestrator creates the pipeline. Call Start to run registry cleanup.
func NewOrchestrator(cfg config.Config, client Streamer, stats *llm.LLMStats, log *slog.Logger) *Orchestrator {
	slots := cfg.MaxConcurrentGenerations
	if slots <= 0 {
		slots = 1
	}
	if stats == nil {
		stats = llm.NewLLMStats(time.Hour)
	}
	return &Orchestrator{
		gens:    NewStore(cfg.GenerationTTL),
		client:  client,
		stats:   stats,
		sem:     make(chan struct{}, slots),
		log:     log,
		cfg:     cfg,
		backoff: Backoff,
	}
}

// Start launches the registry cleanup loop.
func (o *Orchestrator) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if n := o.gens.Cleanup(); n > 0 {
					o.log.Debug("evicted generations", "count", n)
				}
			}
		}
	}()
}

// Stop cancels every active generation and waits for the cleanup loop.
func (o *Orchestrator) Stop() {
	if o.cancel != nil {
		o.cancel()
	}
	for _, g := range o.gens.All() {
		g.Session.Cancel()
	}
	o.wg.Wait()
}

// Begin registers a new generation.
func (o *Orchestrator) Begin(productName string, attachments []string) *Generation {
	g := NewGeneration(productName, attachments, o.cfg.GenerationTimeout)
	o.gens.Put(g)
	return g
}

// Acquire takes a generation slot without blocking. The returned func
// releases it.
func (o *Orchestrator) Acquire() (release func(), err error) {
	select {
	case o.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-o.sem }) }, nil
	default:
		return nil, fmt.Errorf("%w (%d)", ErrBusy, cap(o.sem))
	}
}

// Run streams the model's answer to prompt into gen's session and sink.
// Retryable provider errors are retried with backoff until the first delta
// arrives. The session always ends in a terminal state, and the sink
// always receives Done or Error unless it failed itself.
func (o *Orchestrator) Run(ctx context.Context, gen *Generation, prompt string, sink Sink) error {
	log := o.log.With("generation_id", gen.ID)
	sess := gen.Session
	ctx = sess.Start(ctx)
	start := time.Now()

	var sinkErr error
	gotDelta := false
	onDelta := func(text string) error {
		if !sess.OnDelta(text) {
			return errSessionEnded
		}
		gotDelta = true
		if err := sink.Delta(text); err != nil {
			sinkErr = err
			return err
		}
		return nil
	}

	var usage llm.Usage
	var err error
	for attempt := range MaxRetries {
		gen.recordAttempt()
		usage, err = o.client.Stream(ctx, llm.StreamRequest{
			System: llm.SystemPrompt,
			Prompt: prompt,
			Bind:   sess.Bind,
		}, onDelta)
		if !shouldRetry(err, attempt, gotDelta) {
			break
		}
		log.Warn("retryable generation error", "attempt", attempt, "error", err)
		if werr := sleep(ctx, o.backoff(attempt)); werr != nil {
			err = werr
			break
		}
	}
	gen.setUsage(usage)

	result := o.finish(ctx, log, gen, err, sinkErr, sink)

	snap := sess.Snapshot()
	firstDelta := time.Duration(-1)
	if snap.Deltas > 0 {
		firstDelta = snap.FirstByte
	}
	o.stats.Record(firstDelta, time.Since(start), snap.State != stream.Completed)
	log.Info("generation finished",
		"state", snap.State,
		"chars", snap.Chars,
		"deltas", snap.Deltas,
		"output_tokens", usage.OutputTokens,
		"stop_reason", usage.StopReason,
		"elapsed", snap.Elapsed,
	)
	return result
}

// finish moves the session to its terminal state and reports the outcome
// to the sink.
func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, gen *Generation, err, sinkErr error, sink Sink) error {
	sess := gen.Session
	switch {
	case err == nil:
		sess.OnDone()
		return sink.Done()

	case sinkErr != nil:
		// The client went away; nothing more can be sent.
		sess.Cancel()
		log.Info("client disconnected", "error", sinkErr)
		return fmt.Errorf("write event: %w", sinkErr)

	case sess.State() == stream.Cancelled:
		_ = sink.Error(MsgCancelled)
		return stream.ErrCancelled

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		sess.OnError(stream.MsgTimeout)
		_ = sink.Error(stream.MsgTimeout)
		return &stream.StreamError{Message: stream.MsgTimeout, Err: context.DeadlineExceeded}

	case errors.Is(ctx.Err(), context.Canceled):
		sess.Cancel()
		return stream.ErrCancelled

	default:
		msg := llm.UserMessage(err)
		log.Error("generation failed", "error", err)
		sess.OnError(msg)
		_ = sink.Error(msg)
		return &stream.StreamError{Message: msg, Err: err}
	}
}

// Get returns a generation by ID.
func (o *Orchestrator) Get(id string) *Generation {
	g := o.gens.Get(id)
	if g != nil {
		g.Touch()
	}
	return g
}

// Cancel stops an active generation. It reports false if the ID is unknown
// or the generation had already ended.
func (o *Orchestrator) Cancel(id string) (found, cancelled bool) {
	g := o.gens.Get(id)
	if g == nil {
		return false, false
	}
	return true, g.Session.Cancel()
}

// Delete removes a generation from the registry, cancelling it first.
func (o *Orchestrator) Delete(id string) bool {
	return o.gens.Delete(id)
}

// Active returns the number of generations holding a slot.
func (o *Orchestrator) Active() int {
	return len(o.sem)
}

// Stats returns the model latency tracker.
func (o *Orchestrator) Stats() *llm.LLMStats {
	return o.stats
}
