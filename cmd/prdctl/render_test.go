package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleDoc = "# Task Tracker\n\nTracks **tasks** for teams.\n\n## Goals\n\n- one\n- two\n"

func TestRender_WritesPDFAndPreview(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "task_tracker.md")
	if err := os.WriteFile(in, []byte(sampleDoc), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.pdf")

	var stdout, stderr bytes.Buffer
	if err := runRender([]string{in, "--out", out, "--preview", "--width", "60"}, &stdout, &stderr); err != nil {
		t.Fatalf("runRender: %v", err)
	}

	pdf, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Error("output is not a PDF")
	}
	for _, want := range []string{"Task Tracker\n============", "Tracks tasks for teams.", "  • one\n  • two", "words"} {
		if !strings.Contains(stdout.String(), want) {
			t.Errorf("preview missing %q:\n%s", want, stdout.String())
		}
	}
	if !strings.Contains(stderr.String(), "saved "+out) {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRender_DefaultOutputName(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	if err := os.WriteFile("task_tracker.md", []byte(sampleDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := runRender([]string{"task_tracker.md"}, &stdout, &stderr); err != nil {
		t.Fatalf("runRender: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "task-tracker-PRD.pdf")); err != nil {
		t.Errorf("default output missing: %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("unexpected preview without --preview: %q", stdout.String())
	}
}

func TestRender_Args(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := runRender(nil, &stdout, &stderr); err == nil {
		t.Error("expected error with no input")
	}
	if err := runRender([]string{"a.md", "b.md"}, &stdout, &stderr); err == nil {
		t.Error("expected error with two inputs")
	}
	if err := runRender([]string{filepath.Join(t.TempDir(), "missing.md")}, &stdout, &stderr); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNameFromPath(t *testing.T) {
	tests := []struct {
		path, want string
	}{
		{"docs/task_tracker.md", "task tracker"},
		{"Atlas-PRD.md", "Atlas"},
		{"billing-portal.markdown", "billing portal"},
		{"-", "Product"},
	}
	for _, tt := range tests {
		if got := nameFromPath(tt.path); got != tt.want {
			t.Errorf("nameFromPath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
