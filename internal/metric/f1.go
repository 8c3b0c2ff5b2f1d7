package metric

import (
	"strings"
	"unicode"
)

// TokenF1 computes the token-level F1 between a prediction and a
// reference after normalization (lowercase, punctuation and article
// removal, whitespace collapse), the standard extractive-QA score.
func TokenF1(prediction, reference string) float64 {
	predTokens := normalizeTokens(prediction)
	refTokens := normalizeTokens(reference)

	if len(predTokens) == 0 || len(refTokens) == 0 {
		if len(predTokens) == len(refTokens) {
			return 1
		}
		return 0
	}

	refCounts := make(map[string]int, len(refTokens))
	for _, tok := range refTokens {
		refCounts[tok]++
	}

	common := 0
	for _, tok := range predTokens {
		if refCounts[tok] > 0 {
			refCounts[tok]--
			common++
		}
	}
	if common == 0 {
		return 0
	}

	precision := float64(common) / float64(len(predTokens))
	recall := float64(common) / float64(len(refTokens))
	return 2 * precision * recall / (precision + recall)
}

func normalizeTokens(s string) []string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsPunct(r) {
			continue
		}
		sb.WriteRune(r)
	}

	fields := strings.Fields(sb.String())
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		switch f {
		case "a", "an", "the":
			continue
		}
		out = append(out, f)
	}
	return out
}
