// Package render turns a generated Markdown document into its export
// artifacts: a Markdown file and a paginated PDF with a cover page.
package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
)

// UserMessage is the only failure text shown to users for PDF exports.
const UserMessage = "Failed to generate PDF. Please try again."

// Error reports a failed PDF render. No partial output accompanies it.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return "render pdf: " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) UserMessage() string { return UserMessage }

type options struct {
	style    Style
	maxChars int
	now      time.Time
	compress bool
}

type Option func(*options)

func WithStyle(st Style) Option {
	return func(o *options) { o.style = st }
}

// WithMaxChars sets the body length cap. n <= 0 disables it.
func WithMaxChars(n int) Option {
	return func(o *options) { o.maxChars = n }
}

// WithTime sets the generation date printed on the cover.
func WithTime(t time.Time) Option {
	return func(o *options) { o.now = t }
}

func WithCompression(on bool) Option {
	return func(o *options) { o.compress = on }
}

// PDF renders productName and the Markdown body to a PDF document.
func PDF(productName, body string, opts ...Option) (out []byte, err error) {
	o := options{
		style:    DefaultStyle(),
		maxChars: DefaultMaxChars,
		now:      time.Now(),
		compress: true,
	}
	for _, opt := range opts {
		opt(&o)
	}

	defer func() {
		if r := recover(); r != nil {
			out, err = nil, &Error{Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if err := o.style.Validate(); err != nil {
		return nil, &Error{Err: err}
	}
	doc := Prepare(productName, body, o.maxChars)

	pdf := fpdf.New("P", "pt", o.style.PageSize, "")
	pdf.SetMargins(o.style.Margin, o.style.Margin, o.style.Margin)
	pdf.SetAutoPageBreak(false, o.style.MarginBottom)
	pdf.SetCompression(o.compress)
	pdf.SetTitle(doc.Name+" - "+coverTitle, false)
	pdf.SetSubject(coverTitle, false)
	pdf.SetCreator("PRD Builder", false)
	pdf.SetCreationDate(o.now)

	w, h := pdf.GetPageSize()
	layout := Paginate(doc, o.style, pdfMeasurer{pdf}, w, h, o.now)
	draw(pdf, layout, o.style)

	if err := pdf.Error(); err != nil {
		return nil, &Error{Err: err}
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, &Error{Err: err}
	}
	return buf.Bytes(), nil
}

type pdfMeasurer struct {
	pdf *fpdf.Fpdf
}

func (m pdfMeasurer) Width(f Font, s string) float64 {
	m.pdf.SetFont(f.Family, f.Style, f.Size)
	return m.pdf.GetStringWidth(s)
}

func draw(pdf *fpdf.Fpdf, l Layout, st Style) {
	drawCover(pdf, l, st)
	for i, pg := range l.Pages {
		pdf.AddPage()
		drawHeader(pdf, l, st)

		for _, r := range pg.Rules {
			pdf.SetDrawColor(r.Color.R, r.Color.G, r.Color.B)
			pdf.SetLineWidth(r.Width)
			pdf.Line(r.X1, r.Y, r.X2, r.Y)
		}
		for _, ln := range pg.Lines {
			for _, f := range ln.Fragments {
				if f.Bullet {
					pdf.SetFillColor(f.Color.R, f.Color.G, f.Color.B)
					radius := f.Font.Size * 0.16
					pdf.Circle(f.X+radius+1, ln.Baseline-f.Font.Size*0.3, radius, "F")
					continue
				}
				pdf.SetFont(f.Font.Family, f.Font.Style, f.Font.Size)
				pdf.SetTextColor(f.Color.R, f.Color.G, f.Color.B)
				pdf.Text(f.X, ln.Baseline, f.Text)
			}
		}

		drawFooter(pdf, l, st, i)
	}
}

func drawCover(pdf *fpdf.Fpdf, l Layout, st Style) {
	pdf.AddPage()
	bg := st.Colors.CoverBackground
	pdf.SetFillColor(bg.R, bg.G, bg.B)
	pdf.Rect(0, 0, l.Width, l.Height, "F")

	textW := l.Width - 2*st.Margin
	y := l.Height/2 - 60

	pdf.SetFont(st.FontFamily, "B", 32)
	setTextColor(pdf, st.Colors.CoverTitle)
	for _, line := range pdf.SplitText(l.Cover.Title, textW) {
		centered(pdf, l.Width, y, line)
		y += 38
	}
	y += 14

	pdf.SetFont(st.FontFamily, "", 18)
	setTextColor(pdf, st.Colors.CoverSubtitle)
	for _, line := range pdf.SplitText(l.Cover.Subtitle, textW) {
		centered(pdf, l.Width, y, line)
		y += 24
	}
	y += 32

	pdf.SetFont(st.FontFamily, "", 12)
	setTextColor(pdf, st.Colors.CoverMeta)
	for _, line := range l.Cover.Meta {
		centered(pdf, l.Width, y, line)
		y += 22
	}
}

func drawHeader(pdf *fpdf.Fpdf, l Layout, st Style) {
	pdf.SetFont(st.FontFamily, "", st.HeaderSize)
	setTextColor(pdf, st.Colors.Muted)
	pdf.Text(st.Margin, st.headerBaseline(), l.Header)

	a := st.Colors.Accent
	pdf.SetDrawColor(a.R, a.G, a.B)
	pdf.SetLineWidth(2)
	pdf.Line(st.Margin, st.headerRuleY(), l.Width-st.Margin, st.headerRuleY())
}

func drawFooter(pdf *fpdf.Fpdf, l Layout, st Style, i int) {
	y := st.footerBaseline(l.Height)
	pdf.SetFont(st.FontFamily, "", st.HeaderSize-1)
	setTextColor(pdf, st.Colors.Muted)
	pdf.Text(st.Margin, y, l.Footer)

	label := l.PageLabel(i)
	pdf.Text(l.Width-st.Margin-pdf.GetStringWidth(label), y, label)
}

func centered(pdf *fpdf.Fpdf, pageW, y float64, s string) {
	pdf.Text((pageW-pdf.GetStringWidth(s))/2, y, s)
}

func setTextColor(pdf *fpdf.Fpdf, c Color) {
	pdf.SetTextColor(c.R, c.G, c.B)
}
