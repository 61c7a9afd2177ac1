// Package chunker trims attachment text to fit the prompt's token budget.
package chunker

import (
	"strings"
)

// Fit keeps the leading paragraphs of text within maxTokens. A paragraph
// that does not fit is cut at sentence boundaries, and a sentence that does
// not fit is cut at word boundaries. The bool reports whether anything was
// dropped. maxTokens <= 0 means no limit.
func Fit(text string, maxTokens int) (string, bool) {
	text = strings.TrimSpace(text)
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text, false
	}

	budget := wordBudget(maxTokens)
	var out strings.Builder
	used := 0
	for _, para := range splitByParagraphs(text) {
		n := countWords(para)
		if used+n <= budget {
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			out.WriteString(para)
			used += n
			continue
		}

		if rest := fitSentences(para, budget-used); rest != "" {
			if out.Len() > 0 {
				out.WriteString("\n\n")
			}
			out.WriteString(rest)
		}
		break
	}
	return out.String(), true
}

// Budget fits each text into a shared token budget. Each text is offered
// an even share of what is left, so short texts leave room for later ones.
// truncated[i] reports whether texts[i] was cut.
func Budget(texts []string, maxTokens int) (out []string, truncated []bool) {
	out = make([]string, len(texts))
	truncated = make([]bool, len(texts))
	if maxTokens <= 0 {
		copy(out, texts)
		return out, truncated
	}

	remaining := maxTokens
	for i, t := range texts {
		share := remaining / (len(texts) - i)
		out[i], truncated[i] = Fit(t, share)
		remaining = max(remaining-EstimateTokens(out[i]), 0)
	}
	return out, truncated
}

// fitSentences returns the longest sentence prefix of para within a budget
// of words.
func fitSentences(para string, budget int) string {
	if budget <= 0 {
		return ""
	}
	var current strings.Builder
	used := 0
	for _, sent := range splitSentences(para) {
		n := countWords(sent)
		if used+n > budget {
			if used == 0 {
				words := strings.Fields(sent)
				return strings.Join(words[:budget], " ")
			}
			break
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sent)
		used += n
	}
	return current.String()
}

// splitByParagraphs splits on double-newlines.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}
