package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"golang.org/x/term"

	"github.com/dgallion1/prdbuilder/internal/markdown"
	"github.com/dgallion1/prdbuilder/internal/stream"
)

const (
	defaultWidth = 80
	maxWidth     = 100
)

const (
	sgrBold      = "\x1b[1m"
	sgrItalic    = "\x1b[3m"
	sgrCode      = "\x1b[36m"
	sgrReset     = "\x1b[0m"
	sgrClearLine = "\r\x1b[K"
)

func resolveWidth(width int, w io.Writer) int {
	if width > 0 {
		return width
	}
	return min(terminalWidth(w, defaultWidth), maxWidth)
}

func terminalWidth(w io.Writer, fallback int) int {
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if cols, _, err := term.GetSize(int(f.Fd())); err == nil && cols > 0 {
			return cols
		}
	}
	if value := os.Getenv("COLUMNS"); value != "" {
		if cols, err := strconv.Atoi(value); err == nil && cols > 0 {
			return cols
		}
	}
	return fallback
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// display prints a growing document block by block. A block is printed once
// a later block exists, so nothing printed ever changes. On a terminal a
// status line with the elapsed time is kept below the text.
type display struct {
	mu      sync.Mutex
	out     io.Writer
	width   int
	tty     bool
	printed int
	prev    markdown.Block
	status  string
}

func newDisplay(out io.Writer, width int, tty bool) *display {
	return &display{out: out, width: width, tty: tty}
}

// Update prints the blocks that can no longer change.
func (d *display) Update(u stream.Update) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n := len(u.Live.Blocks) - 1; n > d.printed {
		d.flush(u.Live.Blocks[:n])
	}
}

// Tick redraws the status line. It is a no-op off a terminal.
func (d *display) Tick(snap stream.Snapshot) {
	if !d.tty {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = statusLine(snap)
	fmt.Fprint(d.out, sgrClearLine+d.status)
}

// Finish prints the remaining blocks and replaces the status line with
// summary.
func (d *display) Finish(blocks []markdown.Block, summary string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flush(blocks)
	d.status = ""
	if d.tty {
		fmt.Fprint(d.out, sgrClearLine)
	}
	if summary != "" {
		fmt.Fprintf(d.out, "\n%s\n", summary)
	}
}

func (d *display) flush(blocks []markdown.Block) {
	if d.printed >= len(blocks) {
		return
	}
	if d.tty && d.status != "" {
		fmt.Fprint(d.out, sgrClearLine)
	}
	for _, b := range blocks[d.printed:] {
		if d.printed > 0 && !(b.Kind == markdown.ListItem && d.prev.Kind == markdown.ListItem) {
			fmt.Fprintln(d.out)
		}
		fmt.Fprintln(d.out, formatBlock(b, d.width, d.tty))
		d.prev = b
		d.printed++
	}
	if d.tty && d.status != "" {
		fmt.Fprint(d.out, d.status)
	}
}

// formatBlock lays out one block as terminal text wrapped at width.
func formatBlock(b markdown.Block, width int, color bool) string {
	text := inlineText(b.Spans(), color)
	switch b.Kind {
	case markdown.Heading1:
		return underline(wordwrap.String(text, width), "=")
	case markdown.Heading2:
		return underline(wordwrap.String(text, width), "-")
	case markdown.Heading3:
		if color {
			return wordwrap.String(sgrBold+text+sgrReset, width)
		}
		return wordwrap.String("### "+text, width)
	case markdown.ListItem:
		bullet := b.Marker
		if bullet == "*" {
			bullet = "•"
		}
		head := "  " + bullet + " "
		hang := ansi.PrintableRuneWidth(head)
		first, rest, _ := strings.Cut(wordwrap.String(text, max(width-hang, 1)), "\n")
		if rest == "" {
			return head + first
		}
		return head + first + "\n" + indent.String(rest, uint(hang))
	default:
		return wordwrap.String(text, width)
	}
}

func inlineText(spans []markdown.Span, color bool) string {
	if !color {
		return markdown.PlainText(spans)
	}
	var sb strings.Builder
	for _, sp := range spans {
		switch sp.Kind {
		case markdown.Bold:
			sb.WriteString(sgrBold + sp.Text + sgrReset)
		case markdown.Italic:
			sb.WriteString(sgrItalic + sp.Text + sgrReset)
		case markdown.BoldItalic:
			sb.WriteString(sgrBold + sgrItalic + sp.Text + sgrReset)
		case markdown.Code:
			sb.WriteString(sgrCode + sp.Text + sgrReset)
		default:
			sb.WriteString(sp.Text)
		}
	}
	return sb.String()
}

func underline(text, ch string) string {
	n := 0
	for _, line := range strings.Split(text, "\n") {
		n = max(n, ansi.PrintableRuneWidth(line))
	}
	return text + "\n" + strings.Repeat(ch, n)
}

func statusLine(snap stream.Snapshot) string {
	return fmt.Sprintf("%s %s · %d chars", snap.State, formatElapsed(snap.Elapsed), snap.Chars)
}

// formatElapsed renders d as m:ss.
func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

func summaryLine(snap stream.Snapshot) string {
	st := markdown.ComputeStats(snap.Text)
	line := fmt.Sprintf("%s in %s · %d words · %d sections · ~%d pages · %d min read",
		snap.State, formatElapsed(snap.Elapsed), st.Words, st.Sections, st.Pages, st.ReadingMinutes)
	if snap.Error != "" {
		line += "\n" + snap.Error
	}
	return line
}
