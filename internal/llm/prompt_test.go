package llm

import (
	"strings"
	"testing"

	"github.com/dgallion1/prdbuilder/internal/parser"
)

func TestBuildPRDPrompt_RequiredOnly(t *testing.T) {
	got := BuildPRDPrompt(FormData{ProductName: "Atlas", Description: "Tracks stock."}, nil)
	want := "# Product Requirements Document Request\n\n" +
		"## Product Name\nAtlas\n\n" +
		"## Product Description\nTracks stock.\n\n" +
		closingInstruction
	if got != want {
		t.Errorf("prompt:\n got %q\nwant %q", got, want)
	}
}

func TestBuildPRDPrompt_AllSections(t *testing.T) {
	form := FormData{
		ProductName:    "Atlas",
		Description:    "Tracks stock.",
		Goals:          "Fewer stock-outs",
		TargetAudience: "Warehouse staff",
		Features:       []string{"Scanning", "Alerts"},
	}
	files := []parser.Attachment{
		{Name: "notes.txt", Type: parser.TypeText, Content: "Counted weekly."},
		{Name: "mock.png", Type: "image/png", Content: "[Image file: mock.png - Visual context provided]"},
	}
	got := BuildPRDPrompt(form, files)

	order := []string{
		"## Product Name\nAtlas",
		"## Product Description\nTracks stock.",
		"## Goals and Objectives\nFewer stock-outs",
		"## Target Audience\nWarehouse staff",
		"## Key Features\n- Scanning\n- Alerts",
		"## Additional Context from Uploaded Files",
		"### notes.txt\nCounted weekly.\n\n---",
		"### mock.png\n[Image file attached for visual context]",
		closingInstruction,
	}
	pos := 0
	for _, s := range order {
		i := strings.Index(got[pos:], s)
		if i < 0 {
			t.Fatalf("missing or out of order: %q\nprompt:\n%s", s, got)
		}
		pos += i + len(s)
	}
	if strings.Contains(got, "Visual context provided") {
		t.Error("image content should be replaced by the attachment note")
	}
}

func TestSystemPrompt_NamesSupportedMarkup(t *testing.T) {
	for _, want := range []string{"Executive Summary", "Additional Information Needed", "Do not use tables"} {
		if !strings.Contains(SystemPrompt, want) {
			t.Errorf("system prompt missing %q", want)
		}
	}
}
