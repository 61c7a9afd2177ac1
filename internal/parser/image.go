package parser

import (
	"fmt"
	"io"
)

// ImageParser records an image upload. The image itself is not sent to the
// model; the prompt only notes that it was attached.
type ImageParser struct {
	ContentType string
}

func (p *ImageParser) Parse(r io.Reader, filename string) (Attachment, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return Attachment{}, fmt.Errorf("read image: %w", err)
	}
	typ := p.ContentType
	if typ == "" {
		typ = "image/octet-stream"
	}
	return Attachment{
		Name:    filename,
		Type:    typ,
		Content: fmt.Sprintf("[Image file: %s - Visual context provided]", filename),
	}, nil
}
