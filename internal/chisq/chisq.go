// Package chisq scores a candidate plaintext against an n-gram model with
// Pearson's chi-squared goodness-of-fit statistic.
//
// The statistic is taken over the full alphabet^n category space without
// enumerating it. Every category starts as "absent" (observed 0), whose term
// (0-e)^2/e reduces to e; summed over all categories these baseline terms total
// exactly the number of windows. Each n-gram present in the candidate then swaps
// its baseline term for its true term.
package chisq

import (
	"math"

	"github.com/haricheung/cribcrack/internal/ngram"
)

// Windows returns the number of length-n windows in a buffer of length l, floored at 0.
func Windows(l, n int) int {
	if w := l - n + 1; w > 0 {
		return w
	}
	return 0
}

// Score returns the square root of the chi-squared statistic of plaintext's
// n-gram distribution against m. Lower is a better fit.
//
// Expectations:
//   - Returns a finite value >= 0 for every input
//   - Returns 0 when plaintext has no window of the model's order
//   - Is independent of the order in which n-grams occur, up to rounding
//   - Identical input always gives a bit-identical result
func Score(plaintext []byte, m *ngram.Model) float64 {
	n := m.Order()
	obs := Windows(len(plaintext), n)
	if obs == 0 {
		return 0
	}

	// Distinct n-grams in order of first occurrence; the floating-point sum must
	// not depend on map iteration order.
	counts := make(map[string]int, obs)
	seen := make([]string, 0, obs)
	for i := 0; i < obs; i++ {
		g := string(plaintext[i : i+n])
		if counts[g] == 0 {
			seen = append(seen, g)
		}
		counts[g]++
	}

	total := float64(m.Total())
	chi2 := float64(obs)
	for _, g := range seen {
		expected := float64(m.Count([]byte(g))) / total * float64(obs)
		d := float64(counts[g]) - expected
		chi2 += d*d/expected - expected
	}
	// Rounding can leave a tiny negative residue when the fit is near perfect.
	return math.Sqrt(math.Max(chi2, 0))
}

// Scores returns one Score per model, in model order.
func Scores(plaintext []byte, models []*ngram.Model) []float64 {
	out := make([]float64, len(models))
	for i, m := range models {
		out[i] = Score(plaintext, m)
	}
	return out
}

// Weighted returns the sum of weights[i] * scores[i].
func Weighted(scores, weights []float64) float64 {
	var s float64
	for i, v := range scores {
		s += weights[i] * v
	}
	return s
}
