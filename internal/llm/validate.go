package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLen        = 200
	maxDescriptionLen = 20000
	maxFieldLen       = 10000
	maxFeatures       = 50
	maxFeatureLen     = 500
)

// FormData is the product description submitted for a generation.
type FormData struct {
	ProductName    string   `json:"productName"`
	Description    string   `json:"description"`
	Goals          string   `json:"goals"`
	TargetAudience string   `json:"targetAudience"`
	Features       []string `json:"features"`
}

// ValidationError describes a form field that cannot be accepted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate trims all fields, drops blank features and enforces required
// fields and length limits.
func (f *FormData) Validate() error {
	f.ProductName = strings.TrimSpace(f.ProductName)
	f.Description = strings.TrimSpace(f.Description)
	f.Goals = strings.TrimSpace(f.Goals)
	f.TargetAudience = strings.TrimSpace(f.TargetAudience)

	features := f.Features[:0]
	for _, feat := range f.Features {
		if feat = strings.TrimSpace(feat); feat != "" {
			features = append(features, feat)
		}
	}
	f.Features = features

	if f.ProductName == "" || f.Description == "" {
		return &ValidationError{Field: "productName", Message: "Product name and description are required"}
	}
	for _, c := range []struct {
		field, value string
		max          int
	}{
		{"productName", f.ProductName, maxNameLen},
		{"description", f.Description, maxDescriptionLen},
		{"goals", f.Goals, maxFieldLen},
		{"targetAudience", f.TargetAudience, maxFieldLen},
	} {
		if utf8.RuneCountInString(c.value) > c.max {
			return &ValidationError{Field: c.field, Message: fmt.Sprintf("%s must be at most %d characters", c.field, c.max)}
		}
	}
	if len(f.Features) > maxFeatures {
		return &ValidationError{Field: "features", Message: fmt.Sprintf("at most %d features are allowed", maxFeatures)}
	}
	for _, feat := range f.Features {
		if utf8.RuneCountInString(feat) > maxFeatureLen {
			return &ValidationError{Field: "features", Message: fmt.Sprintf("each feature must be at most %d characters", maxFeatureLen)}
		}
	}
	return nil
}

// ParseFeatures decodes the features form field, a JSON array of strings.
// An empty field means no features.
func ParseFeatures(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var features []string
	if err := json.Unmarshal([]byte(s), &features); err != nil {
		return nil, &ValidationError{Field: "features", Message: "features must be a JSON array of strings"}
	}
	return features, nil
}
