// Package sanitize reduces arbitrary model output to the printable ASCII
// subset that the PDF core fonts can draw.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// punctuation maps typographic glyphs to their ASCII stand-ins. Every
// replacement is pure ASCII, so no later step can reintroduce a removed rune.
var punctuation = strings.NewReplacer(
	// single quotes and primes
	"\u2018", "'", "\u2019", "'", "\u201A", "'", "\u201B", "'", "\u2032", "'",
	// double quotes
	"\u201C", `"`, "\u201D", `"`, "\u201E", `"`, "\u201F", `"`, "\u2033", `"`,
	// dashes
	"\u2013", "-", "\u2014", "-", "\u2015", "-",
	"\u2026", "...",
	// bullets
	"\u2022", "*", "\u2023", "*", "\u25E6", "*", "\u2043", "*", "\u2219", "*", "\u00B7", "*",
	"\u00A0", " ",
)

// stripUnsafe drops everything outside printable ASCII plus \n, \r and \t.
var stripUnsafe = runes.Remove(runes.Predicate(func(r rune) bool { return !allowed(r) }))

var (
	spaceRunRe   = regexp.MustCompile(` {2,}`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	unsafeNameRe = regexp.MustCompile(`[/\\"<>:|?*]+`)
)

func allowed(r rune) bool {
	return (r >= 0x20 && r <= 0x7E) || r == '\n' || r == '\r' || r == '\t'
}

// Text normalizes s into a renderable character set. It never fails and is
// idempotent.
func Text(s string) string {
	if s == "" {
		return ""
	}
	s = punctuation.Replace(s)

	// runes.Remove never reports an error.
	s, _, _ = transform.String(stripUnsafe, s)

	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\t", "  ")
	s = spaceRunRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimFunc(s, unicode.IsSpace)
}

// FileStem turns a product name into a file-name stem: sanitized, whitespace
// runs replaced with hyphens, path and quoting characters dropped. Returns
// "PRD" when nothing usable remains.
func FileStem(name string) string {
	s := Text(name)
	s = unsafeNameRe.ReplaceAllString(s, "")
	s = whitespaceRe.ReplaceAllString(strings.TrimSpace(s), "-")
	s = strings.Trim(s, ".")
	if s == "" {
		return "PRD"
	}
	return s
}
