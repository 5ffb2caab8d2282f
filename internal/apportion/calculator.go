// Package apportion splits monetary amounts across weighted recipients so that
// the parts always sum exactly to the input.
package apportion

import (
	"cmp"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrApportionmentOverflow is returned when the amount to split exceeds the sum of the weights.
	ErrApportionmentOverflow = errors.New("apportioned amount exceeds total weight")
	// ErrNegativeWeight is returned when a recipient has a negative weight.
	ErrNegativeWeight = errors.New("negative apportionment weight")
	// ErrNegativeAmount is returned when the amount to split is negative.
	ErrNegativeAmount = errors.New("negative apportionment amount")
	// ErrUnresolvedRemainder is returned if the rounding remainder could not be placed.
	ErrUnresolvedRemainder = errors.New("apportionment remainder could not be distributed")
)

// Apportion splits total across weights proportionally, rounding each share
// half-up to scale fractional digits. The rounding remainder is then carried
// through the SortByPriceSku order, each recipient taking as much as keeps its
// share within [0, weight]. The returned shares sum exactly to total.
func Apportion[K cmp.Ordered](total decimal.Decimal, weights map[K]decimal.Decimal, scale int32) (map[K]decimal.Decimal, error) {
	shares, _, err := apportion(total, weights, scale)
	return shares, err
}

// apportion also reports how many recipients had their share adjusted by the
// remainder pass.
func apportion[K cmp.Ordered](total decimal.Decimal, weights map[K]decimal.Decimal, scale int32) (map[K]decimal.Decimal, int, error) {
	if total.IsNegative() {
		return nil, 0, fmt.Errorf("%w: %s", ErrNegativeAmount, total)
	}
	ordered := orderedCandidates(weights)
	grandTotal := decimal.Zero
	for _, c := range ordered {
		if c.Weight.IsNegative() {
			return nil, 0, fmt.Errorf("%w: %v has %s", ErrNegativeWeight, c.Key, c.Weight)
		}
		grandTotal = grandTotal.Add(c.Weight)
	}
	if total.GreaterThan(grandTotal) {
		return nil, 0, fmt.Errorf("%w: %s > %s", ErrApportionmentOverflow, total, grandTotal)
	}

	shares := make(map[K]decimal.Decimal, len(ordered))
	if grandTotal.IsZero() {
		for _, c := range ordered {
			shares[c.Key] = decimal.Zero
		}
		return shares, 0, nil
	}

	allocated := decimal.Zero
	for _, c := range ordered {
		share := total.Mul(c.Weight).DivRound(grandTotal, scale)
		if share.GreaterThan(c.Weight) {
			share = c.Weight
		}
		shares[c.Key] = share
		allocated = allocated.Add(share)
	}

	remainder := total.Sub(allocated)
	adjusted := 0
	for _, c := range ordered {
		if remainder.IsZero() {
			break
		}
		proposed := shares[c.Key].Add(remainder)
		switch {
		case proposed.GreaterThan(c.Weight):
			remainder = proposed.Sub(c.Weight)
			proposed = c.Weight
		case proposed.IsNegative():
			remainder = proposed
			proposed = decimal.Zero
		default:
			remainder = decimal.Zero
		}
		if !proposed.Equal(shares[c.Key]) {
			shares[c.Key] = proposed
			adjusted++
		}
	}
	if !remainder.IsZero() {
		return nil, adjusted, fmt.Errorf("%w: %s left", ErrUnresolvedRemainder, remainder)
	}
	return shares, adjusted, nil
}
