package apportion

import (
	"cmp"
	"slices"

	"github.com/shopspring/decimal"
)

// Candidate is a weighted recipient of an apportioned amount.
type Candidate[K cmp.Ordered] struct {
	Key    K
	Weight decimal.Decimal
}

// SortByPriceSku orders candidates by weight descending, then key descending.
// The first candidate in this order absorbs any rounding remainder first, so
// changing the order changes which entry receives a fractional unit.
func SortByPriceSku[K cmp.Ordered](a, b Candidate[K]) int {
	if c := b.Weight.Cmp(a.Weight); c != 0 {
		return c
	}
	return cmp.Compare(b.Key, a.Key)
}

// orderedCandidates returns the weights as candidates sorted by SortByPriceSku.
func orderedCandidates[K cmp.Ordered](weights map[K]decimal.Decimal) []Candidate[K] {
	out := make([]Candidate[K], 0, len(weights))
	for k, w := range weights {
		out = append(out, Candidate[K]{Key: k, Weight: w})
	}
	slices.SortFunc(out, SortByPriceSku[K])
	return out
}
