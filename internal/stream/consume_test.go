package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConsume_Complete(t *testing.T) {
	body := strings.Join([]string{
		`data: {"text":"## Executive "}`,
		``,
		`data: {"text":"Summary\nThis is a test.\n"}`,
		``,
		`data: [DONE]`,
		``,
	}, "\n")

	s := NewSession(0)
	ctx := s.Start(context.Background())
	var updates []Update
	err := Consume(ctx, discardLogger(), strings.NewReader(body), s, func(u Update) {
		updates = append(updates, u)
	})
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if s.State() != Completed {
		t.Errorf("state = %v, want completed", s.State())
	}
	if s.Text() != "## Executive Summary\nThis is a test.\n" {
		t.Errorf("buffer = %q", s.Text())
	}
	if len(updates) != 2 {
		t.Fatalf("got %d updates, want 2", len(updates))
	}
	if !updates[0].Live.Pending || updates[1].Live.Pending {
		t.Error("pending flag should clear once the buffer ends in a newline")
	}
	if len(updates[1].Live.Blocks) != 2 {
		t.Errorf("final update has %d blocks, want 2", len(updates[1].Live.Blocks))
	}
}

func TestConsume_SkipsMalformed(t *testing.T) {
	body := strings.Join([]string{
		`data: {"text":"one "}`,
		`data: {not json`,
		`: keep-alive`,
		`data: {"unexpected":true}`,
		`event: ping`,
		`data: {"text":"two"}`,
		`data: [DONE]`,
	}, "\n")

	s := NewSession(0)
	ctx := s.Start(context.Background())
	if err := Consume(ctx, discardLogger(), strings.NewReader(body), s, nil); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if s.Text() != "one two" {
		t.Errorf("buffer = %q, want %q", s.Text(), "one two")
	}
}

func TestConsume_ErrorEvent(t *testing.T) {
	body := "data: {\"text\":\"partial\"}\n\ndata: {\"error\":\"Overloaded\"}\n\ndata: {\"text\":\"ignored\"}\n"

	s := NewSession(0)
	ctx := s.Start(context.Background())
	err := Consume(ctx, discardLogger(), strings.NewReader(body), s, nil)

	var se *StreamError
	if !errors.As(err, &se) || se.Message != "Overloaded" {
		t.Fatalf("err = %v, want StreamError Overloaded", err)
	}
	if s.State() != Failed || s.Err() != "Overloaded" {
		t.Errorf("state = %v err = %q", s.State(), s.Err())
	}
	if s.Text() != "partial" {
		t.Errorf("buffer = %q, want partial content kept", s.Text())
	}
}

func TestConsume_EOFWithoutDone(t *testing.T) {
	s := NewSession(0)
	ctx := s.Start(context.Background())
	err := Consume(ctx, discardLogger(), strings.NewReader("data: {\"text\":\"cut off\"}\n"), s, nil)

	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want unexpected EOF", err)
	}
	if s.State() != Failed || s.Err() != MsgIncomplete {
		t.Errorf("state = %v err = %q", s.State(), s.Err())
	}
	if s.Text() != "cut off" {
		t.Errorf("buffer = %q", s.Text())
	}
}

func TestConsume_CancelMidStream(t *testing.T) {
	pr, pw := io.Pipe()
	s := NewSession(0)
	parent, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx := s.Start(parent)

	got := make(chan Update, 4)
	result := make(chan error, 1)
	go func() {
		result <- Consume(ctx, discardLogger(), pr, s, func(u Update) { got <- u })
	}()

	pw.Write([]byte("data: {\"text\":\"first \"}\n\n"))
	<-got
	pw.Write([]byte("data: {\"text\":\"second\"}\n\n"))
	<-got
	cancel()

	select {
	case err := <-result:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after cancellation")
	}

	if s.Text() != "first second" {
		t.Errorf("buffer = %q, want the two deltas", s.Text())
	}
	if s.Active() {
		t.Error("session still active")
	}
	// The reading side was closed, so further writes fail.
	if _, err := pw.Write([]byte("data: [DONE]\n")); !errors.Is(err, io.ErrClosedPipe) {
		t.Errorf("write after cancel err = %v, want closed pipe", err)
	}
}

func TestConsume_ExternalCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewSession(0)
	ctx := s.Start(context.Background())

	result := make(chan error, 1)
	go func() { result <- Consume(ctx, discardLogger(), pr, s, nil) }()

	pw.Write([]byte("data: {\"text\":\"hello\"}\n\n"))
	s.Cancel()

	select {
	case err := <-result:
		if !errors.Is(err, ErrCancelled) {
			t.Errorf("err = %v, want ErrCancelled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Consume did not return after session cancel")
	}
}

func TestConsume_Timeout(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewSession(30 * time.Millisecond)
	ctx := s.Start(context.Background())

	err := Consume(ctx, discardLogger(), pr, s, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if s.State() != Failed || s.Err() != MsgTimeout {
		t.Errorf("state = %v err = %q", s.State(), s.Err())
	}
}
