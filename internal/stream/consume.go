package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dgallion1/prdbuilder/internal/markdown"
)

// User-facing failure messages for transport problems.
const (
	MsgTimeout    = "Generation timed out. Please try again."
	MsgIncomplete = "The connection closed before the document was complete. Please try again."
	MsgTransport  = "An error occurred while generating the PRD. Please try again."
)

// ErrCancelled is returned by Consume when the session was cancelled.
var ErrCancelled = errors.New("generation cancelled")

// StreamError is a terminal failure while consuming a generation stream.
// Message is safe to show to users.
type StreamError struct {
	Message string
	Err     error
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// Update describes the session after one applied delta.
type Update struct {
	Delta  string
	Deltas int
	Live   markdown.Live
}

// Consume reads generation events from r into s until the stream reports
// completion or an error, ctx ends, or the transport fails. s must already
// be started; if r is an io.Closer it is bound to s so every exit path
// releases it. onUpdate, if non-nil, runs on the calling goroutine after each
// delta.
//
// Malformed event lines are logged and skipped.
func Consume(ctx context.Context, log *slog.Logger, r io.Reader, s *Session, onUpdate func(Update)) error {
	if c, ok := r.(io.Closer); ok {
		s.Bind(c)
	}

	stop := context.AfterFunc(ctx, func() {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			s.OnError(MsgTimeout)
			return
		}
		s.Cancel()
	})
	defer stop()

	rd := NewReader(r)
	deltas := 0
	for {
		_, data, err := rd.Next()
		if err != nil {
			return readFailure(s, err)
		}

		ev, done, err := DecodeEvent(data)
		switch {
		case err != nil:
			log.Warn("skipping malformed stream event", "error", err, "data", truncate(data, 120))
			continue
		case done:
			if !s.OnDone() {
				return ended(s)
			}
			return nil
		case ev.Error != "":
			s.OnError(ev.Error)
			return &StreamError{Message: ev.Error}
		}

		if !s.OnDelta(ev.Text) {
			return ended(s)
		}
		deltas++
		if onUpdate != nil {
			onUpdate(Update{Delta: ev.Text, Deltas: deltas, Live: s.Live()})
		}
	}
}

func readFailure(s *Session, err error) error {
	switch {
	case errors.Is(err, io.EOF):
		if s.OnError(MsgIncomplete) {
			return &StreamError{Message: MsgIncomplete, Err: io.ErrUnexpectedEOF}
		}
	default:
		if s.OnError(MsgTransport) {
			return &StreamError{Message: MsgTransport, Err: err}
		}
	}
	return ended(s)
}

// ended maps a session that was finished by someone else to Consume's result.
func ended(s *Session) error {
	switch s.State() {
	case Cancelled:
		return ErrCancelled
	case Failed:
		msg := s.Err()
		var cause error
		if msg == MsgTimeout {
			cause = context.DeadlineExceeded
		}
		return &StreamError{Message: msg, Err: cause}
	default:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
