package parser

import (
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
)

// Content types reported on extracted attachments.
const (
	TypePDF      = "application/pdf"
	TypeDOCX     = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	TypeHTML     = "text/html"
	TypeMarkdown = "text/markdown"
	TypeCSV      = "text/csv"
	TypeText     = "text/plain"
)

// Attachment is an uploaded file reduced to prompt context.
type Attachment struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

// IsImage reports whether the attachment is an image placeholder.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.Type, "image/")
}

// Parser converts raw file bytes into an Attachment.
type Parser interface {
	Parse(r io.Reader, filename string) (Attachment, error)
}

// Options tune parser selection.
type Options struct {
	// PdftotextFallback retries PDFs the Go reader cannot open with the
	// pdftotext binary.
	PdftotextFallback bool
}

// ForFile returns the parser for a file, chosen by extension and then by
// the declared content type.
func ForFile(filename, contentType string, opts Options) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{FallbackPdftotext: opts.PdftotextFallback}, nil
	case ".docx":
		return &DOCXParser{}, nil
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return &ImageParser{ContentType: imageType(ext, contentType)}, nil
	}

	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, fmt.Errorf("unsupported file %q", filename)
	}
	switch {
	case strings.Contains(mt, "pdf"):
		return &PDFParser{FallbackPdftotext: opts.PdftotextFallback}, nil
	case strings.Contains(mt, "wordprocessingml.document"):
		return &DOCXParser{}, nil
	case mt == TypeHTML:
		return &HTMLParser{}, nil
	case mt == TypeMarkdown || mt == "text/x-markdown":
		return &MarkdownParser{}, nil
	case mt == TypeCSV:
		return &CSVParser{}, nil
	case mt == TypeText:
		return &TextParser{}, nil
	case strings.HasPrefix(mt, "image/"):
		return &ImageParser{ContentType: mt}, nil
	}
	return nil, fmt.Errorf("unsupported file %q (%s)", filename, mt)
}

// IsSupported checks whether ForFile can handle a file.
func IsSupported(filename, contentType string) bool {
	_, err := ForFile(filename, contentType, Options{})
	return err == nil
}

func imageType(ext, contentType string) string {
	if mt, _, err := mime.ParseMediaType(contentType); err == nil && strings.HasPrefix(mt, "image/") {
		return mt
	}
	if ext == ".jpg" {
		ext = ".jpeg"
	}
	return "image/" + strings.TrimPrefix(ext, ".")
}

// textWriter joins extracted blocks with blank lines.
type textWriter struct {
	sb strings.Builder
}

func (w *textWriter) block(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if w.sb.Len() > 0 {
		w.sb.WriteString("\n\n")
	}
	w.sb.WriteString(s)
}

func (w *textWriter) String() string {
	return w.sb.String()
}
