package render

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestPDF_Smoke(t *testing.T) {
	body := `# Product Requirements Document

## Executive Summary
Task Tracker helps **small teams** plan *and* ship work.

## Goals
- Reduce status meetings
- Keep ` + "`tasks`" + ` in one place
1. Launch beta
2. Launch GA
`
	out, err := PDF("Task Tracker", body, WithTime(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if !bytes.HasPrefix(out, []byte("%PDF-")) {
		t.Fatalf("output does not start with a PDF header: %q", out[:min(len(out), 16)])
	}
	if !bytes.Contains(out, []byte("%%EOF")) {
		t.Error("output is missing the PDF trailer")
	}
}

func TestPDF_Uncompressed(t *testing.T) {
	out, err := PDF("Task Tracker", "## Scope\nHello world.", WithCompression(false))
	if err != nil {
		t.Fatalf("PDF: %v", err)
	}
	for _, want := range []string{
		"Product Requirements Document",
		"Task Tracker - Product Requirements Document",
		"Page 1 of 1",
		"Hello",
	} {
		if !bytes.Contains(out, []byte(want)) {
			t.Errorf("uncompressed output missing %q", want)
		}
	}
}

func TestPDF_LargeDocument(t *testing.T) {
	var sb strings.Builder
	for sb.Len() < 40000 {
		sb.WriteString("## Requirement\nThe system shall do a thing reliably and quickly.\n\n")
	}
	out, err := PDF("Big", sb.String(), WithCompression(false))
	if err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if !bytes.Contains(out, []byte("truncated...]")) {
		t.Error("expected truncation marker in output")
	}
}

func TestPDF_EmptyInput(t *testing.T) {
	out, err := PDF("", "", WithCompression(false))
	if err != nil {
		t.Fatalf("PDF: %v", err)
	}
	if !bytes.Contains(out, []byte("available.")) {
		t.Error("expected placeholder body")
	}
}

func TestPDF_InvalidStyle(t *testing.T) {
	st := DefaultStyle()
	st.FontFamily = "Comic Sans"
	out, err := PDF("Task Tracker", "body", WithStyle(st))
	if out != nil {
		t.Error("expected no output on failure")
	}
	var rerr *Error
	if !errors.As(err, &rerr) {
		t.Fatalf("err = %v, want *render.Error", err)
	}
	if rerr.UserMessage() != "Failed to generate PDF. Please try again." {
		t.Errorf("user message = %q", rerr.UserMessage())
	}
}
