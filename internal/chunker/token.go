package chunker

import "strings"

const tokensPerWord = 1.33

// EstimateTokens gives a rough token count from the word count.
// Exact tokenization is not required for budgeting.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	// Roughly 0.75 words per token for English text.
	tokens := int(float64(countWords(text)) * tokensPerWord)
	if tokens < 1 {
		tokens = 1
	}
	return tokens
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

// wordBudget is the largest word count whose estimate fits maxTokens.
func wordBudget(maxTokens int) int {
	return int(float64(maxTokens) / tokensPerWord)
}
