package render

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dgallion1/prdbuilder/internal/markdown"
)

// Font identifies a core font face and size.
type Font struct {
	Family string
	Style  string // "", "B", "I" or "BI"
	Size   float64
}

// Measurer reports the rendered width of text in points.
type Measurer interface {
	Width(f Font, s string) float64
}

// Fragment is a run of text placed at a fixed horizontal position.
type Fragment struct {
	X      float64
	Text   string
	Font   Font
	Color  Color
	Bullet bool // draw a bullet dot sized to Font instead of Text
}

type Line struct {
	Baseline  float64
	Fragments []Fragment
}

type Rule struct {
	X1, X2, Y float64
	Width     float64
	Color     Color
}

// Page is one content page. The cover page is described by Layout.Cover.
type Page struct {
	Lines []Line
	Rules []Rule
}

type Cover struct {
	Title    string
	Subtitle string
	Meta     []string
}

// Layout is a fully positioned document, ready to draw.
type Layout struct {
	Width, Height float64
	Cover         Cover
	Header        string
	Footer        string
	Pages         []Page
}

// PageLabel is the footer page number for content page i (0-based). The
// cover is not counted.
func (l Layout) PageLabel(i int) string {
	return fmt.Sprintf("Page %d of %d", i+1, len(l.Pages))
}

const (
	coverTitle = "Product Requirements Document"
	creditLine = "Created with PRD Builder"
	dateLayout = "January 2, 2006"
)

// Paginate lays out doc on pages of the given size. Page numbers are only
// known once the last block is placed, so drawing is a separate pass.
func Paginate(doc Document, st Style, m Measurer, width, height float64, generated time.Time) Layout {
	lo := &layouter{
		st:     st,
		m:      m,
		left:   st.Margin,
		right:  width - st.Margin,
		top:    st.contentTop(),
		bottom: height - st.MarginBottom,
	}
	lo.newPage()
	for _, b := range doc.Blocks {
		lo.block(b)
	}

	header := Font{Family: st.FontFamily, Size: st.HeaderSize}
	return Layout{
		Width:  width,
		Height: height,
		Cover: Cover{
			Title:    coverTitle,
			Subtitle: doc.Name,
			Meta:     []string{"Generated: " + generated.Format(dateLayout), creditLine},
		},
		Header: fitText(m, header, doc.Name+" - "+coverTitle, lo.right-lo.left),
		Footer: st.FooterLabel,
		Pages:  lo.pages,
	}
}

type layouter struct {
	st                       Style
	m                        Measurer
	left, right, top, bottom float64

	pages []Page
	y     float64 // top of the next line box
	fresh bool    // nothing placed on the current page yet
}

func (lo *layouter) newPage() {
	lo.pages = append(lo.pages, Page{})
	lo.y = lo.top
	lo.fresh = true
}

func (lo *layouter) page() *Page {
	return &lo.pages[len(lo.pages)-1]
}

type blockStyle struct {
	font    Font
	color   Color
	before  float64
	after   float64
	rule    RuleStyle
	indent  float64
	justify bool
}

func (lo *layouter) styleFor(k markdown.BlockKind) blockStyle {
	st := lo.st
	body := Font{Family: st.FontFamily, Size: st.BodySize}
	switch k {
	case markdown.Heading1, markdown.Heading2, markdown.Heading3:
		h := st.heading(int(k-markdown.Heading1) + 1)
		return blockStyle{
			font:   Font{Family: st.FontFamily, Style: "B", Size: h.Size},
			color:  h.Color,
			before: h.SpaceBefore,
			after:  h.SpaceAfter,
			rule:   h.Rule,
		}
	case markdown.ListItem:
		return blockStyle{font: body, color: st.Colors.Text, after: st.ListSpacing, indent: st.ListIndent}
	default:
		return blockStyle{font: body, color: st.Colors.Text, after: st.ParagraphSpacing, justify: true}
	}
}

func (lo *layouter) lineHeight(f Font) float64 {
	return f.Size * lo.st.LineHeight
}

func (lo *layouter) block(b markdown.Block) {
	bs := lo.styleFor(b.Kind)
	lh := lo.lineHeight(bs.font)
	space := lo.m.Width(bs.font, " ")

	textX := lo.left + bs.indent
	var marker *Fragment
	if b.Kind == markdown.ListItem {
		mf := Fragment{X: textX, Font: bs.font, Color: bs.color}
		markerW := bs.font.Size
		if b.Marker == "*" || b.Marker == "" {
			mf.Bullet = true
		} else {
			mf.Text = b.Marker
			markerW = lo.m.Width(bs.font, b.Marker) + space
		}
		marker = &mf
		textX += markerW
	}

	avail := lo.right - textX
	lines := wrap(lo.words(b.Spans(), bs.font, bs.color), avail, space, lo.m)

	if !lo.fresh {
		// Keep a heading with at least one line of what follows it.
		need := bs.before + lh
		if b.Kind.IsHeading() {
			need += lh*float64(len(lines)-1) + bs.after + lo.lineHeight(Font{Size: lo.st.BodySize})
			if bs.rule.Width > 0 {
				need += 2 + bs.rule.Width
			}
		}
		if lo.y+need > lo.bottom {
			lo.newPage()
		} else {
			lo.y += bs.before
		}
	}

	for i, ln := range lines {
		if lo.y+lh > lo.bottom && !lo.fresh {
			lo.newPage()
		}
		baseline := lo.y + lh/2 + bs.font.Size*0.35
		justify := bs.justify && i < len(lines)-1
		frags := place(ln, textX, avail, space, justify)
		if i == 0 && marker != nil {
			frags = append([]Fragment{*marker}, frags...)
		}
		pg := lo.page()
		pg.Lines = append(pg.Lines, Line{Baseline: baseline, Fragments: frags})
		lo.y += lh
		lo.fresh = false
	}

	if bs.rule.Width > 0 {
		y := lo.y + 2
		pg := lo.page()
		pg.Rules = append(pg.Rules, Rule{X1: lo.left, X2: lo.right, Y: y, Width: bs.rule.Width, Color: bs.rule.Color})
		lo.y = y + bs.rule.Width
	}
	lo.y += bs.after
}

type piece struct {
	text  string
	font  Font
	color Color
	w     float64
}

// word is a run of pieces with no space between them, e.g. "**bold**." is
// one word made of a bold piece and a plain piece.
type word struct {
	pieces []piece
	w      float64
}

func (w *word) add(p piece) {
	w.pieces = append(w.pieces, p)
	w.w += p.w
}

func (lo *layouter) words(spans []markdown.Span, base Font, color Color) []word {
	var out []word
	var cur word
	for _, sp := range spans {
		f, c := lo.spanFace(sp.Kind, base, color)
		for i, part := range strings.Split(sp.Text, " ") {
			if i > 0 && len(cur.pieces) > 0 {
				out = append(out, cur)
				cur = word{}
			}
			if part != "" {
				cur.add(piece{text: part, font: f, color: c, w: lo.m.Width(f, part)})
			}
		}
	}
	if len(cur.pieces) > 0 {
		out = append(out, cur)
	}
	return out
}

func (lo *layouter) spanFace(k markdown.SpanKind, base Font, color Color) (Font, Color) {
	bold := base.Style == "B"
	f := base
	switch k {
	case markdown.Bold:
		f.Style = "B"
	case markdown.Italic:
		f.Style = "I"
		if bold {
			f.Style = "BI"
		}
	case markdown.BoldItalic:
		f.Style = "BI"
	case markdown.Code:
		f.Family = lo.st.CodeFamily
		f.Style = ""
		f.Size = base.Size - (lo.st.BodySize - lo.st.CodeSize)
		if f.Size <= 0 {
			f.Size = base.Size
		}
		color = lo.st.Colors.Code
	}
	return f, color
}

// wrap breaks words into lines no wider than avail. Words wider than a whole
// line are split between characters.
func wrap(words []word, avail, space float64, m Measurer) [][]word {
	var lines [][]word
	var cur []word
	curW := 0.0
	for _, w := range words {
		parts := []word{w}
		if w.w > avail {
			parts = breakWord(w, avail, m)
		}
		for _, p := range parts {
			switch {
			case len(cur) == 0:
				cur, curW = []word{p}, p.w
			case curW+space+p.w <= avail:
				cur = append(cur, p)
				curW += space + p.w
			default:
				lines = append(lines, cur)
				cur, curW = []word{p}, p.w
			}
		}
	}
	if len(cur) > 0 {
		lines = append(lines, cur)
	}
	return lines
}

func breakWord(w word, avail float64, m Measurer) []word {
	var out []word
	var cur word
	for _, p := range w.pieces {
		var run strings.Builder
		runW := 0.0
		flushRun := func() {
			if run.Len() > 0 {
				cur.add(piece{text: run.String(), font: p.font, color: p.color, w: runW})
				run.Reset()
				runW = 0
			}
		}
		for _, r := range p.text {
			rw := m.Width(p.font, string(r))
			if cur.w+runW+rw > avail && (cur.w > 0 || runW > 0) {
				flushRun()
				out = append(out, cur)
				cur = word{}
			}
			run.WriteRune(r)
			runW += rw
		}
		flushRun()
	}
	if len(cur.pieces) > 0 {
		out = append(out, cur)
	}
	return out
}

func place(line []word, x0, avail, space float64, justify bool) []Fragment {
	gap := space
	if justify && len(line) > 1 {
		natural := -space
		for _, w := range line {
			natural += w.w + space
		}
		if extra := avail - natural; extra > 0 {
			gap += extra / float64(len(line)-1)
		}
	}

	var frags []Fragment
	x := x0
	for i, w := range line {
		if i > 0 {
			x += gap
		}
		for _, p := range w.pieces {
			frags = append(frags, Fragment{X: x, Text: p.text, Font: p.font, Color: p.color})
			x += p.w
		}
	}
	return frags
}

// fitText shortens s with a trailing "..." until it fits in width.
func fitText(m Measurer, f Font, s string, width float64) string {
	if m.Width(f, s) <= width {
		return s
	}
	for len(s) > 0 {
		_, size := utf8.DecodeLastRuneInString(s)
		s = s[:len(s)-size]
		if t := strings.TrimRight(s, " ") + "..."; m.Width(f, t) <= width {
			return t
		}
	}
	return ""
}
