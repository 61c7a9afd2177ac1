package render

import (
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/prdbuilder/internal/markdown"
	"github.com/dgallion1/prdbuilder/internal/sanitize"
)

const (
	DefaultMaxChars  = 30000
	TruncationMarker = "\n\n[Content truncated...]"

	DefaultProductName = "Product"
	EmptyBody          = "No content available."

	ContentTypePDF      = "application/pdf"
	ContentTypeMarkdown = "text/markdown; charset=utf-8"
)

// Document is the sanitized input to layout.
type Document struct {
	Name      string
	Body      string
	Truncated bool
	Blocks    []markdown.Block
}

// Prepare sanitizes the name and body, applies the length cap and parses
// the body into blocks. maxChars <= 0 disables the cap.
func Prepare(productName, body string, maxChars int) Document {
	name := sanitize.Text(productName)
	if name == "" {
		name = DefaultProductName
	}
	text := sanitize.Text(body)
	if text == "" {
		text = EmptyBody
	}
	text, truncated := Truncate(text, maxChars)
	return Document{
		Name:      name,
		Body:      text,
		Truncated: truncated,
		Blocks:    markdown.Parse(text),
	}
}

// Truncate keeps the first max characters of s and appends TruncationMarker
// when s is longer. max <= 0 returns s unchanged.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	n := 0
	for i := range s {
		if n == max {
			return s[:i] + TruncationMarker, true
		}
		n++
	}
	return s, false
}

// Markdown returns the raw document for the Markdown export, unchanged.
func Markdown(body string) []byte {
	return []byte(body)
}

// FileName suggests a download name such as "Task-Tracker-PRD.pdf".
func FileName(productName, ext string) string {
	return sanitize.FileStem(productName) + "-PRD." + strings.TrimPrefix(ext, ".")
}
