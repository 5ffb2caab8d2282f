package apportion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tax/internal/lineitem"
	"github.com/noah-isme/toko-tax/internal/money"
	"github.com/noah-isme/toko-tax/internal/obs"
)

var (
	// ErrInvalidDiscount is returned when a discount is negative or larger than the
	// total of the discountable items. Overflows also match ErrApportionmentOverflow.
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrMissingSKU is returned when a discountable item has no SKU.
	ErrMissingSKU = errors.New("discountable item has no sku")
	// ErrDuplicateItem is returned when two discountable items share an ID.
	ErrDuplicateItem = errors.New("duplicate line item id")
)

// ApportionDiscount splits discount across the discountable items, keyed by
// item ID. Bundles contribute their constituents instead of themselves. Items
// sharing a SKU code are apportioned independently.
func ApportionDiscount(discount money.Amount, items []lineitem.Item) (map[string]decimal.Decimal, error) {
	shares, err := apportionDiscount(discount, items)
	recordApportionment(err)
	return shares, err
}

func apportionDiscount(discount money.Amount, items []lineitem.Item) (map[string]decimal.Decimal, error) {
	if discount.Value.IsNegative() {
		return nil, fmt.Errorf("%w: negative discount %s", ErrInvalidDiscount, discount)
	}
	candidates := lineitem.DiscountCandidates(items)
	weights := make(map[string]decimal.Decimal, len(candidates))
	sum := decimal.Zero
	for _, c := range candidates {
		if c.PreDiscountTotal.Currency != discount.Currency {
			return nil, fmt.Errorf("item %s: %w: %s vs %s", c.ID, money.ErrCurrencyMismatch, c.PreDiscountTotal.Currency, discount.Currency)
		}
		if _, dup := weights[c.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, c.ID)
		}
		weights[c.ID] = c.PreDiscountTotal.Value
		sum = sum.Add(c.PreDiscountTotal.Value)
	}
	if discount.Value.GreaterThan(sum) {
		return nil, fmt.Errorf("%w: %w: discount %s exceeds discountable total %s", ErrInvalidDiscount, ErrApportionmentOverflow, discount.Value, sum)
	}
	for _, c := range candidates {
		if strings.TrimSpace(c.SKU) == "" {
			return nil, fmt.Errorf("%w: item %s", ErrMissingSKU, c.ID)
		}
	}
	shares, adjusted, err := apportion(discount.Value, weights, discount.Currency.Digits())
	if err != nil {
		return nil, err
	}
	if adjusted > 0 && obs.ApportionRemainderAdjustments != nil {
		obs.ApportionRemainderAdjustments.Add(float64(adjusted))
	}
	return shares, nil
}

func recordApportionment(err error) {
	if obs.DiscountApportionmentsTotal == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrApportionmentOverflow):
		result = "overflow"
	case errors.Is(err, ErrMissingSKU):
		result = "missing_sku"
	case errors.Is(err, ErrInvalidDiscount):
		result = "invalid"
	default:
		result = "error"
	}
	obs.DiscountApportionmentsTotal.WithLabelValues(result).Inc()
}
