// Package metric implements reference-based text metrics used to score
// model generations.
package metric

import (
	"errors"
	"fmt"
	"strings"
)

const (
	chrfCharOrder = 6
	chrfBeta      = 2.0
)

type chrfStat struct {
	hyp   int
	ref   int
	match int
}

// ChrF computes the corpus-level chrF score on a 0-100 scale: character
// n-gram precision and recall up to order 6, averaged over orders with
// counts on both sides, combined as an F-score with beta 2. Whitespace is
// removed before n-gram extraction.
func ChrF(predictions, references []string) (float64, error) {
	if len(predictions) != len(references) {
		return 0, fmt.Errorf("metric: chrf: %d predictions vs %d references", len(predictions), len(references))
	}
	if len(predictions) == 0 {
		return 0, errors.New("metric: chrf: empty corpus")
	}

	stats := make([]chrfStat, chrfCharOrder)
	for i := range predictions {
		hyp := []rune(stripWhitespace(predictions[i]))
		ref := []rune(stripWhitespace(references[i]))

		for n := 1; n <= chrfCharOrder; n++ {
			h := ngramCounts(hyp, n)
			r := ngramCounts(ref, n)

			st := &stats[n-1]
			st.hyp += totalCount(h)
			st.ref += totalCount(r)
			st.match += overlapCount(h, r)
		}
	}

	var avgPrec, avgRec float64
	effectiveOrders := 0
	for _, st := range stats {
		if st.hyp == 0 || st.ref == 0 {
			continue
		}
		avgPrec += float64(st.match) / float64(st.hyp)
		avgRec += float64(st.match) / float64(st.ref)
		effectiveOrders++
	}
	if effectiveOrders == 0 {
		return 0, nil
	}
	avgPrec /= float64(effectiveOrders)
	avgRec /= float64(effectiveOrders)

	if avgPrec+avgRec == 0 {
		return 0, nil
	}

	factor := chrfBeta * chrfBeta
	score := (1 + factor) * avgPrec * avgRec / (factor*avgPrec + avgRec)
	return 100 * score, nil
}

// SentenceChrF scores a single prediction against its reference.
func SentenceChrF(prediction, reference string) (float64, error) {
	return ChrF([]string{prediction}, []string{reference})
}

func stripWhitespace(s string) string {
	return strings.Join(strings.Fields(s), "")
}

func ngramCounts(runes []rune, n int) map[string]int {
	if n <= 0 || len(runes) < n {
		return nil
	}
	out := make(map[string]int, len(runes)-n+1)
	for i := 0; i+n <= len(runes); i++ {
		out[string(runes[i:i+n])]++
	}
	return out
}

func totalCount(counts map[string]int) int {
	total := 0
	for _, c := range counts {
		total += c
	}
	return total
}

func overlapCount(a, b map[string]int) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	total := 0
	for k, ca := range a {
		cb := b[k]
		if cb < ca {
			total += cb
		} else {
			total += ca
		}
	}
	return total
}
