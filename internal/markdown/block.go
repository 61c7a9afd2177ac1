// Package markdown parses the small Markdown subset produced by the model
// into flat blocks and inline spans.
package markdown

import (
	"regexp"
	"strings"

	"github.com/dgallion1/prdbuilder/internal/sanitize"
)

// BlockKind is the structural type of a Block.
type BlockKind uint8

const (
	Heading1 BlockKind = iota
	Heading2
	Heading3
	Paragraph
	ListItem
)

var blockKindNames = [...]string{
	Heading1:  "heading1",
	Heading2:  "heading2",
	Heading3:  "heading3",
	Paragraph: "paragraph",
	ListItem:  "list_item",
}

func (k BlockKind) String() string {
	if int(k) < len(blockKindNames) {
		return blockKindNames[k]
	}
	return "unknown"
}

func (k BlockKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsHeading reports whether k is one of the heading kinds.
func (k BlockKind) IsHeading() bool {
	return k == Heading1 || k == Heading2 || k == Heading3
}

// Block is one structural unit of a parsed document.
type Block struct {
	Kind   BlockKind `json:"kind"`
	Text   string    `json:"text"`             // Inline text, markers intact
	Marker string    `json:"marker,omitempty"` // ListItem only: "*" or "3."
}

// Spans tokenizes the block's inline text.
func (b Block) Spans() []Span {
	return Tokenize(b.Text)
}

var (
	bulletRe  = regexp.MustCompile(`^[-*]\s`)
	orderedRe = regexp.MustCompile(`^(\d+\.)\s`)
)

// Parse converts a document, or a prefix of one, into blocks. It is a pure
// function of its input: parsing a longer prefix re-derives everything from
// scratch.
func Parse(doc string) []Block {
	clean := sanitize.Text(doc)
	if clean == "" {
		return nil
	}

	var blocks []Block
	var para strings.Builder

	flush := func() {
		if t := strings.TrimSpace(para.String()); t != "" {
			blocks = append(blocks, Block{Kind: Paragraph, Text: t})
		}
		para.Reset()
	}

	for _, line := range strings.Split(clean, "\n") {
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, "### "):
			flush()
			blocks = append(blocks, Block{Kind: Heading3, Text: trimmed[4:]})
		case strings.HasPrefix(trimmed, "## "):
			flush()
			blocks = append(blocks, Block{Kind: Heading2, Text: trimmed[3:]})
		case strings.HasPrefix(trimmed, "# "):
			flush()
			blocks = append(blocks, Block{Kind: Heading1, Text: trimmed[2:]})
		case bulletRe.MatchString(trimmed):
			flush()
			blocks = append(blocks, Block{Kind: ListItem, Marker: "*", Text: trimmed[2:]})
		case orderedRe.MatchString(trimmed):
			flush()
			m := orderedRe.FindStringSubmatch(trimmed)
			blocks = append(blocks, Block{Kind: ListItem, Marker: m[1], Text: trimmed[len(m[0]):]})
		case trimmed == "":
			flush()
		default:
			if para.Len() > 0 {
				para.WriteByte(' ')
			}
			para.WriteString(trimmed)
		}
	}
	flush()
	return blocks
}

// Live is the result of parsing a buffer that may still be growing.
type Live struct {
	Blocks []Block `json:"blocks"`
	// Pending is set when the buffer does not end at a line boundary, so the
	// last block may still change as more text arrives.
	Pending bool `json:"pending"`
}

// ParseLive parses a stream buffer for progressive display.
func ParseLive(buf string) Live {
	blocks := Parse(buf)
	return Live{
		Blocks:  blocks,
		Pending: len(blocks) > 0 && !strings.HasSuffix(buf, "\n"),
	}
}
