package parser

import (
	"strings"
	"testing"
)

func TestMarkdownParser_HeadingsAndParagraphs(t *testing.T) {
	input := `# Title

Intro text.

## Section A

Section A content.

### Subsection A1

Subsection A1 content.
`
	p := &MarkdownParser{}
	att, err := p.Parse(strings.NewReader(input), "doc.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if att.Name != "doc.md" || att.Type != TypeMarkdown {
		t.Errorf("unexpected attachment header: %+v", att)
	}
	want := "Title\n\nIntro text.\n\nSection A\n\nSection A content.\n\nSubsection A1\n\nSubsection A1 content."
	if att.Content != want {
		t.Errorf("content:\n got %q\nwant %q", att.Content, want)
	}
}

func TestMarkdownParser_StripsInlineMarkup(t *testing.T) {
	input := "Some **bold** and *italic* with `code`.\n"
	p := &MarkdownParser{}
	att, err := p.Parse(strings.NewReader(input), "inline.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.Content != "Some bold and italic with code." {
		t.Errorf("got %q", att.Content)
	}
}

func TestMarkdownParser_ListItems(t *testing.T) {
	input := "- first\n- second\n\n1. one\n2. two\n"
	p := &MarkdownParser{}
	att, err := p.Parse(strings.NewReader(input), "list.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "first\n\nsecond\n\none\n\ntwo"
	if att.Content != want {
		t.Errorf("got %q, want %q", att.Content, want)
	}
}

func TestMarkdownParser_MixedContentWithCodeBlocks(t *testing.T) {
	input := "# API Reference\n\nList of endpoints:\n\n```\nGET /api/users\nPOST /api/users\n```\n\nMore text after code.\n"

	p := &MarkdownParser{}
	att, err := p.Parse(strings.NewReader(input), "api.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, want := range []string{"API Reference", "GET /api/users\nPOST /api/users", "More text after code."} {
		if !strings.Contains(att.Content, want) {
			t.Errorf("expected content to contain %q, got %q", want, att.Content)
		}
	}
	if strings.Count(att.Content, "GET /api/users") != 1 {
		t.Errorf("code block duplicated: %q", att.Content)
	}
}

func TestMarkdownParser_EmptyInput(t *testing.T) {
	p := &MarkdownParser{}
	att, err := p.Parse(strings.NewReader(""), "empty.md")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if att.Content != "" {
		t.Errorf("expected empty content, got %q", att.Content)
	}
}
