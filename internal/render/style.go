package render

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/goccy/go-yaml"
)

const maxStyleFileSize = 1 << 20

// Color is an RGB color written as "#rrggbb" in style files.
type Color struct {
	R, G, B int
}

func (c Color) String() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseColor parses "#rrggbb" or "rrggbb".
func ParseColor(s string) (Color, error) {
	h := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(h) != 6 {
		return Color{}, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{R: int(v >> 16 & 0xff), G: int(v >> 8 & 0xff), B: int(v & 0xff)}, nil
}

func mustColor(s string) Color {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

var (
	prussianBlue = mustColor("#021A2E")
	yaleBlue     = mustColor("#014379")
	dodgerBlue   = mustColor("#0d91fd")
	coolSky      = mustColor("#5db5fe")
	icyBlue      = mustColor("#c2e3fe")
	white        = mustColor("#ffffff")
	gray         = mustColor("#6b7280")
)

// RuleStyle is a horizontal rule drawn under a heading. Width 0 disables it.
type RuleStyle struct {
	Width float64 `yaml:"width"`
	Color Color   `yaml:"color"`
}

type HeadingStyle struct {
	Size        float64   `yaml:"size"`
	SpaceBefore float64   `yaml:"space_before"`
	SpaceAfter  float64   `yaml:"space_after"`
	Color       Color     `yaml:"color"`
	Rule        RuleStyle `yaml:"rule"`
}

type Palette struct {
	Text            Color `yaml:"text"`
	Code            Color `yaml:"code"`
	Muted           Color `yaml:"muted"`
	Accent          Color `yaml:"accent"`
	CoverBackground Color `yaml:"cover_background"`
	CoverTitle      Color `yaml:"cover_title"`
	CoverSubtitle   Color `yaml:"cover_subtitle"`
	CoverMeta       Color `yaml:"cover_meta"`
}

// Style controls page geometry, fonts and colors. Only the PDF core font
// families are supported, which is why all text is reduced to ASCII first.
type Style struct {
	PageSize         string       `yaml:"page_size"`
	Margin           float64      `yaml:"margin"`
	MarginBottom     float64      `yaml:"margin_bottom"`
	FontFamily       string       `yaml:"font_family"`
	CodeFamily       string       `yaml:"code_family"`
	BodySize         float64      `yaml:"body_size"`
	CodeSize         float64      `yaml:"code_size"`
	HeaderSize       float64      `yaml:"header_size"`
	LineHeight       float64      `yaml:"line_height"`
	ListIndent       float64      `yaml:"list_indent"`
	ParagraphSpacing float64      `yaml:"paragraph_spacing"`
	ListSpacing      float64      `yaml:"list_spacing"`
	FooterLabel      string       `yaml:"footer_label"`
	Heading1         HeadingStyle `yaml:"heading1"`
	Heading2         HeadingStyle `yaml:"heading2"`
	Heading3         HeadingStyle `yaml:"heading3"`
	Colors           Palette      `yaml:"colors"`
}

func DefaultStyle() Style {
	return Style{
		PageSize:         "A4",
		Margin:           50,
		MarginBottom:     70,
		FontFamily:       "Helvetica",
		CodeFamily:       "Courier",
		BodySize:         11,
		CodeSize:         10,
		HeaderSize:       10,
		LineHeight:       1.4,
		ListIndent:       15,
		ParagraphSpacing: 8,
		ListSpacing:      4,
		FooterLabel:      "PRD Builder",
		Heading1: HeadingStyle{
			Size: 22, SpaceBefore: 20, SpaceAfter: 14, Color: prussianBlue,
			Rule: RuleStyle{Width: 1.5, Color: dodgerBlue},
		},
		Heading2: HeadingStyle{
			Size: 16, SpaceBefore: 16, SpaceAfter: 10, Color: yaleBlue,
			Rule: RuleStyle{Width: 1, Color: icyBlue},
		},
		Heading3: HeadingStyle{
			Size: 13, SpaceBefore: 12, SpaceAfter: 8, Color: dodgerBlue,
		},
		Colors: Palette{
			Text:            prussianBlue,
			Code:            yaleBlue,
			Muted:           gray,
			Accent:          dodgerBlue,
			CoverBackground: prussianBlue,
			CoverTitle:      white,
			CoverSubtitle:   coolSky,
			CoverMeta:       icyBlue,
		},
	}
}

var pageSizes = map[string]bool{
	"a3": true, "a4": true, "a5": true, "letter": true, "legal": true, "tabloid": true,
}

var coreFamilies = map[string]bool{
	"helvetica": true, "arial": true, "times": true, "courier": true,
}

// Validate checks that the style can be drawn with the core fonts.
func (s Style) Validate() error {
	var errs []error
	if !pageSizes[strings.ToLower(s.PageSize)] {
		errs = append(errs, fmt.Errorf("page_size %q is not supported", s.PageSize))
	}
	if !coreFamilies[strings.ToLower(s.FontFamily)] {
		errs = append(errs, fmt.Errorf("font_family %q is not a core font", s.FontFamily))
	}
	if !coreFamilies[strings.ToLower(s.CodeFamily)] {
		errs = append(errs, fmt.Errorf("code_family %q is not a core font", s.CodeFamily))
	}
	for name, v := range map[string]float64{
		"body_size":     s.BodySize,
		"code_size":     s.CodeSize,
		"header_size":   s.HeaderSize,
		"heading1.size": s.Heading1.Size,
		"heading2.size": s.Heading2.Size,
		"heading3.size": s.Heading3.Size,
	} {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	if s.LineHeight < 1 {
		errs = append(errs, fmt.Errorf("line_height must be at least 1"))
	}
	if s.Margin < 0 || s.MarginBottom < 0 || s.ListIndent < 0 {
		errs = append(errs, fmt.Errorf("margins and indents must not be negative"))
	}
	return errors.Join(errs...)
}

// LoadStyle reads a YAML style file. Fields it omits keep their defaults;
// unknown fields are rejected.
func LoadStyle(path string) (Style, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Style{}, fmt.Errorf("read style: %w", err)
	}
	return ParseStyle(data)
}

func ParseStyle(data []byte) (Style, error) {
	st := DefaultStyle()
	if len(data) > maxStyleFileSize {
		return Style{}, fmt.Errorf("style file exceeds %d bytes", maxStyleFileSize)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return st, nil
	}
	if err := yaml.UnmarshalWithOptions(data, &st, yaml.Strict()); err != nil {
		return Style{}, fmt.Errorf("parse style: %w", err)
	}
	if err := st.Validate(); err != nil {
		return Style{}, fmt.Errorf("invalid style: %w", err)
	}
	return st, nil
}

func (s Style) heading(k int) HeadingStyle {
	switch k {
	case 1:
		return s.Heading1
	case 2:
		return s.Heading2
	default:
		return s.Heading3
	}
}

func (s Style) headerBaseline() float64 { return s.Margin + s.HeaderSize }
func (s Style) headerRuleY() float64    { return s.headerBaseline() + 10 }
func (s Style) contentTop() float64     { return s.headerRuleY() + 20 }

func (s Style) footerBaseline(pageHeight float64) float64 {
	return pageHeight - s.MarginBottom/2
}
