package markdown

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	wordsPerPage   = 500
	wordsPerMinute = 200
)

var sectionRe = regexp.MustCompile(`(?m)^#{1,2}\s`)

// Stats summarizes a generated document for display.
type Stats struct {
	Words          int `json:"words"`
	Characters     int `json:"characters"`
	Sections       int `json:"sections"`
	Pages          int `json:"pages"`
	ReadingMinutes int `json:"reading_minutes"`
}

// ComputeStats derives word, section, and size estimates from raw Markdown.
// Sections count top- and second-level headings only.
func ComputeStats(doc string) Stats {
	words := len(strings.Fields(doc))
	st := Stats{
		Words:      words,
		Characters: utf8.RuneCountInString(doc),
		Sections:   len(sectionRe.FindAllStringIndex(doc, -1)),
	}
	if words > 0 {
		st.Pages = ceilDiv(words, wordsPerPage)
		st.ReadingMinutes = ceilDiv(words, wordsPerMinute)
	}
	return st
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
