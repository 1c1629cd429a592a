// Package ngram builds additively smoothed byte n-gram frequency models from a crib.
//
// A Model stores only the n-grams observed in the crib. Every other n-gram of the
// working alphabet has an implicit smoothed count of 1, so the full alphabet^n
// table is never materialised and no n-gram ever has zero probability.
package ngram

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/haricheung/cribcrack/internal/alphabet"
)

// MaxOrder is the largest supported order. alphabet.Size^9 = 2^63 is the largest
// n-gram space whose size still fits the exact uint64 total count.
const MaxOrder = 9

// Model is the smoothed frequency model for one n-gram order. Immutable after NewModel.
type Model struct {
	order   int
	counts  map[string]uint64 // raw observed counts, before smoothing
	windows uint64            // number of sliding windows in the crib
	total   uint64            // windows + alphabet.Size^order
}

// Entry is one n-gram with its smoothed count, as returned by Top.
type Entry struct {
	Gram  []byte
	Count uint64
}

// Space returns alphabet.Size^n, the number of distinct n-grams over the alphabet.
func Space(n int) uint64 {
	return uint64(1) << (7 * uint(n))
}

// NewModel counts every length-n sliding window of crib and applies add-one smoothing.
// It panics when n is outside 1..MaxOrder.
//
// Expectations:
//   - A crib of length L yields max(L-n+1, 0) windows
//   - Total() == Windows() + Space(n) exactly
//   - Count(g) >= 1 for every g, observed or not
func NewModel(crib []byte, n int) *Model {
	if n < 1 || n > MaxOrder {
		panic(fmt.Sprintf("ngram: order %d outside 1..%d", n, MaxOrder))
	}
	m := &Model{order: n, counts: make(map[string]uint64)}
	for i := 0; i+n <= len(crib); i++ {
		m.counts[string(crib[i:i+n])]++
		m.windows++
	}
	m.total = m.windows + Space(n)
	return m
}

// Build returns one model per order 1..maxOrder, in order. When caseFold is set the
// crib is upper-cased first; the caller's buffer is left untouched.
func Build(crib []byte, maxOrder int, caseFold bool) []*Model {
	if caseFold {
		crib = alphabet.Fold(crib)
	}
	models := make([]*Model, 0, maxOrder)
	for n := 1; n <= maxOrder; n++ {
		models = append(models, NewModel(crib, n))
	}
	return models
}

// Order returns n.
func (m *Model) Order() int { return m.order }

// Windows returns the number of n-gram windows observed in the crib.
func (m *Model) Windows() uint64 { return m.windows }

// Total returns the smoothed total count: Windows() + Space(Order()).
func (m *Model) Total() uint64 { return m.total }

// Observed returns the number of distinct n-grams seen in the crib.
func (m *Model) Observed() int { return len(m.counts) }

// Count returns the smoothed count of gram: raw occurrences plus one.
func (m *Model) Count(gram []byte) uint64 {
	return m.counts[string(gram)] + 1
}

// Frequency returns Count(gram) / Total().
func (m *Model) Frequency(gram []byte) float64 {
	return float64(m.Count(gram)) / float64(m.total)
}

// Top returns up to k observed n-grams sorted by count descending, ties broken by
// byte order. k <= 0 returns every observed n-gram.
func (m *Model) Top(k int) []Entry {
	entries := make([]Entry, 0, len(m.counts))
	for g, c := range m.counts {
		entries = append(entries, Entry{Gram: []byte(g), Count: c + 1})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return bytes.Compare(entries[i].Gram, entries[j].Gram) < 0
	})
	if k > 0 && k < len(entries) {
		entries = entries[:k]
	}
	return entries
}
