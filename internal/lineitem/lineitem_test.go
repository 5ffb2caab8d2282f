package lineitem

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-tax/internal/money"
)

var usd = money.MustCurrency("USD")

func price(v string) *money.Amount {
	amt := money.New(decimal.RequireFromString(v), usd)
	return &amt
}

func leaf(id, value string, discountable bool) *Leaf {
	l := &Leaf{Attributes: Attributes{ID: id, SKU: "SKU-" + id, Discountable: discountable, TaxCode: "GOODS"}}
	if value != "" {
		l.PreDiscountTotal = price(value)
	}
	return l
}

func ids(attrs []*Attributes) []string {
	out := make([]string, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, a.ID)
	}
	return out
}

func TestDiscountCandidatesSkipsUnpricedAndNonDiscountable(t *testing.T) {
	items := []Item{
		leaf("a", "10", true),
		leaf("b", "", true),
		leaf("c", "5", false),
		leaf("d", "0", true),
	}
	require.Equal(t, []string{"a", "d"}, ids(DiscountCandidates(items)))
}

func TestDiscountCandidatesFlattensBundles(t *testing.T) {
	inner := &Bundle{
		Attributes:   Attributes{ID: "inner", PreDiscountTotal: price("15"), Discountable: true},
		Constituents: []Item{leaf("i1", "5", true), leaf("i2", "10", true)},
	}
	bundle := &Bundle{
		Attributes:   Attributes{ID: "bundle", PreDiscountTotal: price("99"), Discountable: true},
		Constituents: []Item{leaf("c1", "20", true), leaf("c2", "", true), inner},
	}
	got := ids(DiscountCandidates([]Item{bundle, leaf("x", "1", true)}))
	require.Equal(t, []string{"c1", "i1", "i2", "x"}, got)
	require.NotContains(t, got, "bundle")
	require.NotContains(t, got, "inner")
}

func TestDiscountCandidatesNonDiscountableBundleExcludesConstituents(t *testing.T) {
	bundle := &Bundle{
		Attributes:   Attributes{ID: "bundle", PreDiscountTotal: price("30"), Discountable: false},
		Constituents: []Item{leaf("c1", "20", true), leaf("c2", "10", true)},
	}
	require.Empty(t, DiscountCandidates([]Item{bundle}))
}

func TestEmptyBundleActsAsUnit(t *testing.T) {
	bundle := &Bundle{Attributes: Attributes{ID: "solo", PreDiscountTotal: price("12"), Discountable: true}}
	require.Equal(t, []string{"solo"}, ids(DiscountCandidates([]Item{bundle})))
	require.Equal(t, []string{"solo"}, ids(Taxable([]Item{bundle})))
}

func TestTaxableIgnoresDiscountability(t *testing.T) {
	bundle := &Bundle{
		Attributes:   Attributes{ID: "bundle", PreDiscountTotal: price("30"), Discountable: false},
		Constituents: []Item{leaf("c1", "20", false), leaf("c2", "", true)},
	}
	got := ids(Taxable([]Item{bundle, leaf("a", "3", false), nil}))
	require.Equal(t, []string{"c1", "a"}, got)
}

func TestUnpricedBundleTaxedThroughConstituents(t *testing.T) {
	bundle := &Bundle{
		Attributes:   Attributes{ID: "bundle", Discountable: true},
		Constituents: []Item{leaf("c1", "20", true), leaf("c2", "10", true)},
	}
	require.Empty(t, DiscountCandidates([]Item{bundle}))
	require.Equal(t, []string{"c1", "c2"}, ids(Taxable([]Item{bundle})))
}
