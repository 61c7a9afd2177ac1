package stream

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// DoneMarker is the data payload that ends a generation stream.
const DoneMarker = "[DONE]"

const maxLineSize = 1 << 20

// Event is one decoded generation stream event. Error is set for failure
// events; otherwise Text holds the delta, which may be empty.
type Event struct {
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// DecodeEvent decodes a data payload. done is set for DoneMarker.
func DecodeEvent(data string) (ev Event, done bool, err error) {
	if data == DoneMarker {
		return Event{}, true, nil
	}
	var raw struct {
		Text  *string `json:"text"`
		Error *string `json:"error"`
	}
	if err := json.Unmarshal([]byte(data), &raw); err != nil {
		return Event{}, false, fmt.Errorf("decode event: %w", err)
	}
	switch {
	case raw.Error != nil:
		ev.Error = *raw.Error
		if ev.Error == "" {
			ev.Error = "unknown error"
		}
	case raw.Text != nil:
		ev.Text = *raw.Text
	default:
		return Event{}, false, fmt.Errorf("decode event: no text or error field")
	}
	return ev, false, nil
}

// Reader yields the data payloads of a server-sent event stream.
type Reader struct {
	scanner *bufio.Scanner
	event   string
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &Reader{scanner: sc}
}

// Next returns the next data line and the name of the event it belongs to
// ("" when the stream does not name events). It returns io.EOF when the
// stream ends cleanly.
func (r *Reader) Next() (event, data string, err error) {
	for r.scanner.Scan() {
		line := strings.TrimSuffix(r.scanner.Text(), "\r")

		switch {
		case line == "":
			r.event = ""
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "event:"):
			r.event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimPrefix(line, "data:")
			data = strings.TrimPrefix(data, " ")
			return r.event, data, nil
		}
	}
	if err := r.scanner.Err(); err != nil {
		return "", "", err
	}
	return "", "", io.EOF
}

// Writer encodes generation stream events, flushing after each one when the
// underlying writer supports it.
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

func NewWriter(w io.Writer) *Writer {
	f, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: f}
}

// SetHeaders prepares an HTTP response for streaming.
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

func (w *Writer) Delta(text string) error {
	return w.writeJSON(struct {
		Text string `json:"text"`
	}{text})
}

func (w *Writer) Error(msg string) error {
	return w.writeJSON(struct {
		Error string `json:"error"`
	}{msg})
}

func (w *Writer) Done() error {
	return w.write(DoneMarker)
}

func (w *Writer) writeJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return w.write(string(b))
}

func (w *Writer) write(data string) error {
	if _, err := fmt.Fprintf(w.w, "data: %s\n\n", data); err != nil {
		return err
	}
	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}
