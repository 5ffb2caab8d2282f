// Package lineitem models priced cart entries as seen by the apportionment and
// tax engines. An entry is either a Leaf or a Bundle of constituent entries.
package lineitem

import (
	"github.com/noah-isme/toko-tax/internal/money"
)

// Attributes holds the fields shared by leaves and bundles.
type Attributes struct {
	// ID is unique per cart entry, not per SKU.
	ID  string
	SKU string
	// PreDiscountTotal is nil for entries that have not been priced yet
	// (for example mid-exchange). Such entries are never apportioned or taxed.
	PreDiscountTotal *money.Amount
	TaxCode          string
	Discountable     bool
	// Tax is written back by tax.ApplyTaxes and is otherwise left untouched.
	Tax *money.Amount
}

// Priced reports whether the entry carries a pre-discount total.
func (a *Attributes) Priced() bool { return a != nil && a.PreDiscountTotal != nil }

// Item is a cart entry: *Leaf or *Bundle.
type Item interface {
	Attrs() *Attributes
	item()
}

// Leaf is a directly priced cart entry.
type Leaf struct {
	Attributes
}

// Bundle is a cart entry composed of constituents. When it has constituents
// only they take part in apportionment and tax; the bundle's own price is ignored.
type Bundle struct {
	Attributes
	Constituents []Item
}

// Attrs implements Item.
func (l *Leaf) Attrs() *Attributes { return &l.Attributes }

// Attrs implements Item.
func (b *Bundle) Attrs() *Attributes { return &b.Attributes }

func (*Leaf) item()   {}
func (*Bundle) item() {}

// DiscountCandidates returns the entries eligible for a share of a discount.
// Unpriced or non-discountable entries are skipped before bundles are
// considered, so a non-discountable bundle excludes all of its constituents.
// A bundle with constituents is replaced by its eligible constituents.
func DiscountCandidates(items []Item) []*Attributes {
	var out []*Attributes
	for _, it := range items {
		out = appendDiscountCandidates(out, it)
	}
	return out
}

func appendDiscountCandidates(out []*Attributes, it Item) []*Attributes {
	if it == nil {
		return out
	}
	attrs := it.Attrs()
	if !attrs.Priced() || !attrs.Discountable {
		return out
	}
	switch v := it.(type) {
	case *Bundle:
		if len(v.Constituents) > 0 {
			for _, c := range v.Constituents {
				out = appendDiscountCandidates(out, c)
			}
			return out
		}
		return append(out, attrs)
	case *Leaf:
		return append(out, attrs)
	}
	return out
}

// Taxable returns the priced units that receive tax: leaves, constituents of
// bundles, and bundles without constituents. A bundle's own price and
// discountability are ignored here, so an unpriced bundle still contributes its
// priced constituents even though DiscountCandidates skips it.
func Taxable(items []Item) []*Attributes {
	var out []*Attributes
	for _, it := range items {
		out = appendTaxable(out, it)
	}
	return out
}

func appendTaxable(out []*Attributes, it Item) []*Attributes {
	if it == nil {
		return out
	}
	switch v := it.(type) {
	case *Bundle:
		if len(v.Constituents) > 0 {
			for _, c := range v.Constituents {
				out = appendTaxable(out, c)
			}
			return out
		}
	}
	if attrs := it.Attrs(); attrs.Priced() {
		out = append(out, attrs)
	}
	return out
}
