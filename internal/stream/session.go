// Package stream assembles an incrementally delivered Markdown document and
// moves data between the model provider, the HTTP API and its clients as
// server-sent events.
package stream

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/dgallion1/prdbuilder/internal/markdown"
)

// DefaultTimeout bounds a single generation when no timeout is configured.
const DefaultTimeout = 5 * time.Minute

// State is the lifecycle position of a Session.
type State uint8

const (
	Idle State = iota
	Streaming
	Completed
	Failed
	Cancelled
)

var stateNames = [...]string{
	Idle:      "idle",
	Streaming: "streaming",
	Completed: "completed",
	Failed:    "failed",
	Cancelled: "cancelled",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Terminal reports whether no further deltas can be accepted in state s.
func (s State) Terminal() bool {
	return s == Completed || s == Failed || s == Cancelled
}

// Session holds the buffer and lifecycle of one generation. A Session may be
// reused: Start discards the previous generation entirely.
type Session struct {
	timeout time.Duration

	mu        sync.Mutex
	buf       strings.Builder
	state     State
	errMsg    string
	deltas    int
	started   time.Time
	finished  time.Time
	firstByte time.Duration
	transport *onceCloser
	cancel    context.CancelFunc
}

// NewSession returns an idle session. A timeout <= 0 uses DefaultTimeout.
func NewSession(timeout time.Duration) *Session {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Session{timeout: timeout}
}

// Start resets the session for a new generation and returns a context that
// is cancelled when the session ends or the timeout elapses. Any generation
// still running on this session is cancelled first.
func (s *Session) Start(ctx context.Context) context.Context {
	s.Cancel()

	cctx, cancel := context.WithTimeout(ctx, s.timeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Reset()
	s.state = Streaming
	s.errMsg = ""
	s.deltas = 0
	s.started = time.Now()
	s.finished = time.Time{}
	s.firstByte = 0
	s.transport = nil
	s.cancel = cancel
	return cctx
}

// Bind registers the transport to release when the session ends. Binding to
// a session that has already ended closes c immediately.
func (s *Session) Bind(c io.Closer) {
	oc := &onceCloser{c: c}

	s.mu.Lock()
	if s.state != Streaming {
		s.mu.Unlock()
		oc.Close()
		return
	}
	prev := s.transport
	s.transport = oc
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}
}

// OnDelta appends text to the buffer. It reports false, leaving the buffer
// untouched, when the session is not streaming.
func (s *Session) OnDelta(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Streaming {
		return false
	}
	if s.deltas == 0 {
		s.firstByte = time.Since(s.started)
	}
	s.buf.WriteString(text)
	s.deltas++
	return true
}

// OnDone marks the generation complete.
func (s *Session) OnDone() bool {
	return s.finish(Completed, "")
}

// OnError marks the generation failed. Text received so far is kept.
func (s *Session) OnError(msg string) bool {
	return s.finish(Failed, msg)
}

// Cancel stops the generation, releasing the transport and cancelling the
// context returned by Start. Text received so far is kept.
func (s *Session) Cancel() bool {
	return s.finish(Cancelled, "")
}

func (s *Session) finish(state State, msg string) bool {
	s.mu.Lock()
	if s.state != Streaming {
		s.mu.Unlock()
		return false
	}
	s.state = state
	s.errMsg = msg
	s.finished = time.Now()
	transport, cancel := s.transport, s.cancel
	s.transport, s.cancel = nil, nil
	s.mu.Unlock()

	if transport != nil {
		transport.Close()
	}
	if cancel != nil {
		cancel()
	}
	return true
}

// Text returns the buffer received so far.
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Blocks parses the buffer received so far.
func (s *Session) Blocks() []markdown.Block {
	return markdown.Parse(s.Text())
}

// Live parses the buffer and flags an incomplete trailing block.
func (s *Session) Live() markdown.Live {
	return markdown.ParseLive(s.Text())
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the session is still accepting deltas.
func (s *Session) Active() bool {
	return s.State() == Streaming
}

// Err returns the failure message of a Failed session, or "".
func (s *Session) Err() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.errMsg
}

// Snapshot is a point-in-time copy of a session's progress.
type Snapshot struct {
	State     State         `json:"state"`
	Error     string        `json:"error,omitempty"`
	Text      string        `json:"-"`
	Chars     int           `json:"chars"`
	Deltas    int           `json:"deltas"`
	Started   time.Time     `json:"started,omitzero"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	FirstByte time.Duration `json:"first_byte_ns,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:     s.state,
		Error:     s.errMsg,
		Text:      s.buf.String(),
		Deltas:    s.deltas,
		Started:   s.started,
		FirstByte: s.firstByte,
	}
	snap.Chars = len(snap.Text)
	switch {
	case s.started.IsZero():
	case s.finished.IsZero():
		snap.Elapsed = time.Since(s.started)
	default:
		snap.Elapsed = s.finished.Sub(s.started)
	}
	return snap
}

type onceCloser struct {
	once sync.Once
	c    io.Closer
	err  error
}

func (o *onceCloser) Close() error {
	o.once.Do(func() { o.err = o.c.Close() })
	return o.err
}
