package markdown

import (
	"regexp"
	"strings"
)

// SpanKind is the inline style of a Span.
type SpanKind uint8

const (
	Plain SpanKind = iota
	Bold
	Italic
	BoldItalic
	Code
)

var spanKindNames = [...]string{
	Plain:      "plain",
	Bold:       "bold",
	Italic:     "italic",
	BoldItalic: "bold_italic",
	Code:       "code",
}

func (k SpanKind) String() string {
	if int(k) < len(spanKindNames) {
		return spanKindNames[k]
	}
	return "unknown"
}

func (k SpanKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Span is one styled fragment of a block's inline text.
type Span struct {
	Kind SpanKind `json:"kind"`
	Text string   `json:"text"`
}

// Alternation order is the precedence: at a given start position the
// leftmost alternative that matches wins, so *** beats ** beats * beats `.
var inlineRe = regexp.MustCompile("\\*\\*\\*(.+?)\\*\\*\\*|\\*\\*(.+?)\\*\\*|\\*([^*\\n]+)\\*|`([^`\\n]+)`")

// groupKinds maps capture group index (1-based) to the span kind it yields.
var groupKinds = [...]SpanKind{1: BoldItalic, 2: Bold, 3: Italic, 4: Code}

// Tokenize splits a line of inline Markdown into ordered spans. Unterminated
// delimiters stay in the surrounding Plain text. It never fails.
func Tokenize(line string) []Span {
	matches := inlineRe.FindAllStringSubmatchIndex(line, -1)
	if len(matches) == 0 {
		return []Span{{Kind: Plain, Text: line}}
	}

	spans := make([]Span, 0, 2*len(matches)+1)
	last := 0
	for _, m := range matches {
		if m[0] > last {
			spans = append(spans, Span{Kind: Plain, Text: line[last:m[0]]})
		}
		for g := 1; g < len(groupKinds); g++ {
			start, end := m[2*g], m[2*g+1]
			if start >= 0 {
				spans = append(spans, Span{Kind: groupKinds[g], Text: line[start:end]})
				break
			}
		}
		last = m[1]
	}
	if last < len(line) {
		spans = append(spans, Span{Kind: Plain, Text: line[last:]})
	}
	return spans
}

// PlainText concatenates span contents, dropping all styling.
func PlainText(spans []Span) string {
	var sb strings.Builder
	for _, s := range spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}
