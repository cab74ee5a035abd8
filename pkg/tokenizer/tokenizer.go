// Package tokenizer estimates token counts so ruling text can be packed
// into a model context budget.
package tokenizer

import (
	"strings"
)

// Separator is written between packed blocks.
const Separator = "\n---\n"

// EstimateTokens provides a rough token count estimate.
// Uses the heuristic of ~4 characters per token for English text.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	// Count words and characters for a blended estimate
	words := len(strings.Fields(text))
	chars := len(text)

	wordEstimate := int(float64(words) * 1.3) // ~1.3 tokens per word
	charEstimate := chars / 4                 // ~4 chars per token

	return (wordEstimate + charEstimate) / 2
}

// TruncateToTokenBudget truncates text to approximately fit within a token
// budget, cutting at a word boundary when one is close.
func TruncateToTokenBudget(text string, budget int) string {
	if budget <= 0 {
		return ""
	}
	if EstimateTokens(text) <= budget {
		return text
	}

	maxChars := budget * 4
	if maxChars >= len(text) {
		return text
	}

	truncated := text[:maxChars]
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > maxChars/2 {
		truncated = truncated[:lastSpace]
	}
	return strings.ToValidUTF8(truncated, "") + "..."
}

// PackWithBudget joins blocks in order until the next one would exceed the
// budget. The first block is truncated rather than dropped when it alone is
// too large, so a best match is never silently lost. It returns the packed
// text and the number of blocks included.
func PackWithBudget(blocks []string, budget int) (string, int) {
	if budget <= 0 || len(blocks) == 0 {
		return "", 0
	}

	var builder strings.Builder
	count := 0
	usedTokens := 0
	sepTokens := EstimateTokens(strings.TrimSpace(Separator)) + 1

	for _, block := range blocks {
		blockTokens := EstimateTokens(block) + sepTokens
		if usedTokens+blockTokens > budget {
			if count == 0 {
				builder.WriteString(TruncateToTokenBudget(block, budget-sepTokens))
				count++
			}
			break
		}
		if count > 0 {
			builder.WriteString(Separator)
		}
		builder.WriteString(block)
		usedTokens += blockTokens
		count++
	}

	return builder.String(), count
}
