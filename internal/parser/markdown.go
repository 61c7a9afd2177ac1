package parser

import (
	"bytes"
	"io"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownParser handles Markdown files using goldmark. Markup is dropped;
// headings, paragraphs, list items and code blocks become text blocks.
type MarkdownParser struct{}

func (p *MarkdownParser) Parse(r io.Reader, filename string) (Attachment, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return Attachment{}, err
	}

	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var out textWriter
	var walk func(n ast.Node)
	walk = func(n ast.Node) {
		switch n.Kind() {
		case ast.KindList, ast.KindListItem, ast.KindBlockquote, ast.KindDocument:
			for c := n.FirstChild(); c != nil; c = c.NextSibling() {
				walk(c)
			}
		default:
			out.block(extractText(n, src))
		}
	}
	walk(doc)

	return Attachment{Name: filename, Type: TypeMarkdown, Content: out.String()}, nil
}

// extractText gets the text content of a goldmark AST node.
func extractText(n ast.Node, src []byte) string {
	var buf bytes.Buffer
	// Leaf blocks such as code carry raw lines; others carry inline children.
	if n.Type() == ast.TypeBlock && !n.HasChildren() {
		lines := n.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			buf.Write(line.Value(src))
		}
	}
	// Also handle inline children.
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			buf.Write(t.Value(src))
			if t.HardLineBreak() || t.SoftLineBreak() {
				buf.WriteByte('\n')
			}
		} else {
			// Recurse for nested inlines.
			buf.WriteString(extractText(c, src))
		}
	}
	return strings.TrimSpace(buf.String())
}
