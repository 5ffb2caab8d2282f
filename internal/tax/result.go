package tax

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tax/internal/money"
)

var (
	// ErrMissingCurrency is returned when money is requested before the result's default currency is set.
	ErrMissingCurrency = errors.New("tax result default currency not set")
	// ErrResultMismatch is returned when merging results with different currencies or pricing modes.
	ErrResultMismatch = errors.New("tax results cannot be merged")
)

// Result accumulates the outcome of one or more tax calculations. Values are
// kept at money.CalculationScale and are never rounded to minor units here.
// A Result is not safe for concurrent use; compute independent results and
// Merge them instead.
type Result struct {
	defaultCurrency money.Currency
	taxInclusive    bool

	categoryTaxes map[string]decimal.Decimal
	lineItemTaxes map[string]decimal.Decimal

	shippingTax       decimal.Decimal
	beforeTaxShipping decimal.Decimal
	beforeTaxSubtotal decimal.Decimal
	// beforeTaxSubtotalWithoutDiscount receives the same per-item values as
	// beforeTaxSubtotal; it is not re-derived from undiscounted prices.
	beforeTaxSubtotalWithoutDiscount decimal.Decimal
	taxInItemPrice                   decimal.Decimal
}

// CategoryTax is the tax accumulated for one category.
type CategoryTax struct {
	Category string
	Amount   money.Amount
}

// NewResult returns an empty Result with no default currency.
func NewResult() *Result {
	return &Result{
		categoryTaxes: map[string]decimal.Decimal{},
		lineItemTaxes: map[string]decimal.Decimal{},
	}
}

// SetDefaultCurrency sets the currency every added amount must be in.
func (r *Result) SetDefaultCurrency(cur money.Currency) { r.defaultCurrency = cur }

// DefaultCurrency returns the result currency; zero if unset.
func (r *Result) DefaultCurrency() money.Currency { return r.defaultCurrency }

// SetTaxInclusive records the pricing model of the calculation.
func (r *Result) SetTaxInclusive(inclusive bool) { r.taxInclusive = inclusive }

// IsTaxInclusive reports whether prices were treated as tax inclusive.
func (r *Result) IsTaxInclusive() bool { return r.taxInclusive }

// MoneyZero returns zero in the default currency.
func (r *Result) MoneyZero() (money.Amount, error) {
	if r.defaultCurrency.IsZero() {
		return money.Amount{}, ErrMissingCurrency
	}
	return money.Zero(r.defaultCurrency), nil
}

func (r *Result) check(amt money.Amount) error {
	if r.defaultCurrency.IsZero() {
		return ErrMissingCurrency
	}
	if amt.Currency != r.defaultCurrency {
		return fmt.Errorf("%w: %s into %s result", money.ErrCurrencyMismatch, amt.Currency, r.defaultCurrency)
	}
	return nil
}

func (r *Result) add(dst *decimal.Decimal, amt money.Amount) error {
	if err := r.check(amt); err != nil {
		return err
	}
	*dst = dst.Add(amt.Value)
	return nil
}

// AddTaxValue adds tax owed to a category.
func (r *Result) AddTaxValue(category string, amt money.Amount) error {
	if err := r.check(amt); err != nil {
		return err
	}
	if r.categoryTaxes == nil {
		r.categoryTaxes = map[string]decimal.Decimal{}
	}
	r.categoryTaxes[category] = r.categoryTaxes[category].Add(amt.Value)
	return nil
}

// AddItemTax adds tax for a line item. An entry is created even for zero tax.
func (r *Result) AddItemTax(itemID string, amt money.Amount) error {
	if err := r.check(amt); err != nil {
		return err
	}
	if r.lineItemTaxes == nil {
		r.lineItemTaxes = map[string]decimal.Decimal{}
	}
	r.lineItemTaxes[itemID] = r.lineItemTaxes[itemID].Add(amt.Value)
	return nil
}

// AddShippingTax adds to the shipping tax total.
func (r *Result) AddShippingTax(amt money.Amount) error { return r.add(&r.shippingTax, amt) }

// AddBeforeTaxShipping adds to the before-tax shipping cost.
func (r *Result) AddBeforeTaxShipping(amt money.Amount) error {
	return r.add(&r.beforeTaxShipping, amt)
}

// AddBeforeTaxItemPrice adds an item's before-tax price to the subtotal.
func (r *Result) AddBeforeTaxItemPrice(amt money.Amount) error {
	return r.add(&r.beforeTaxSubtotal, amt)
}

// AddBeforeTaxItemPriceWithoutDiscount adds to the without-discount subtotal.
func (r *Result) AddBeforeTaxItemPriceWithoutDiscount(amt money.Amount) error {
	return r.add(&r.beforeTaxSubtotalWithoutDiscount, amt)
}

// AddToTaxInItemPrice adds tax contained in inclusive item prices.
func (r *Result) AddToTaxInItemPrice(amt money.Amount) error {
	return r.add(&r.taxInItemPrice, amt)
}

func (r *Result) amount(v decimal.Decimal) money.Amount {
	return money.New(v, r.defaultCurrency)
}

// TaxForCategory returns the tax accumulated for category.
func (r *Result) TaxForCategory(category string) money.Amount {
	return r.amount(r.categoryTaxes[category])
}

// CategoryTaxes returns per-category totals sorted by category name.
func (r *Result) CategoryTaxes() []CategoryTax {
	names := make([]string, 0, len(r.categoryTaxes))
	for name := range r.categoryTaxes {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]CategoryTax, 0, len(names))
	for _, name := range names {
		out = append(out, CategoryTax{Category: name, Amount: r.amount(r.categoryTaxes[name])})
	}
	return out
}

// TaxForLineItem returns the tax computed for an item and whether one exists.
func (r *Result) TaxForLineItem(itemID string) (money.Amount, bool) {
	v, ok := r.lineItemTaxes[itemID]
	if !ok {
		return money.Amount{}, false
	}
	return r.amount(v), true
}

// LineItemTaxes returns a copy of the per-item taxes.
func (r *Result) LineItemTaxes() map[string]money.Amount {
	out := make(map[string]money.Amount, len(r.lineItemTaxes))
	for id, v := range r.lineItemTaxes {
		out[id] = r.amount(v)
	}
	return out
}

// TotalTaxes is the sum of all category taxes, shipping included.
func (r *Result) TotalTaxes() money.Amount {
	total := decimal.Zero
	for _, v := range r.categoryTaxes {
		total = total.Add(v)
	}
	return r.amount(total)
}

// TotalItemTax is the sum of line item taxes.
func (r *Result) TotalItemTax() money.Amount {
	total := decimal.Zero
	for _, v := range r.lineItemTaxes {
		total = total.Add(v)
	}
	return r.amount(total)
}

func (r *Result) ShippingTax() money.Amount       { return r.amount(r.shippingTax) }
func (r *Result) BeforeTaxShipping() money.Amount { return r.amount(r.beforeTaxShipping) }
func (r *Result) BeforeTaxSubtotal() money.Amount { return r.amount(r.beforeTaxSubtotal) }
func (r *Result) TaxInItemPrice() money.Amount    { return r.amount(r.taxInItemPrice) }

func (r *Result) BeforeTaxSubtotalWithoutDiscount() money.Amount {
	return r.amount(r.beforeTaxSubtotalWithoutDiscount)
}

// Subtotal is the item subtotal as the customer sees it: tax included for
// inclusive pricing, before tax otherwise.
func (r *Result) Subtotal() money.Amount {
	if r.taxInclusive {
		return r.amount(r.beforeTaxSubtotal.Add(r.TotalItemTax().Value))
	}
	return r.amount(r.beforeTaxSubtotal)
}

// Merge adds other's values into r. Both results must share a currency and
// pricing mode; a result with no currency yet adopts other's.
func (r *Result) Merge(other *Result) error {
	if other == nil || other.defaultCurrency.IsZero() {
		return nil
	}
	if r.defaultCurrency.IsZero() {
		r.defaultCurrency = other.defaultCurrency
		r.taxInclusive = other.taxInclusive
	}
	if other.defaultCurrency != r.defaultCurrency {
		return fmt.Errorf("%w: currency %s vs %s", ErrResultMismatch, r.defaultCurrency, other.defaultCurrency)
	}
	if other.taxInclusive != r.taxInclusive {
		return fmt.Errorf("%w: inclusive %t vs %t", ErrResultMismatch, r.taxInclusive, other.taxInclusive)
	}
	if r.categoryTaxes == nil {
		r.categoryTaxes = map[string]decimal.Decimal{}
	}
	if r.lineItemTaxes == nil {
		r.lineItemTaxes = map[string]decimal.Decimal{}
	}
	for k, v := range other.categoryTaxes {
		r.categoryTaxes[k] = r.categoryTaxes[k].Add(v)
	}
	for k, v := range other.lineItemTaxes {
		r.lineItemTaxes[k] = r.lineItemTaxes[k].Add(v)
	}
	r.shippingTax = r.shippingTax.Add(other.shippingTax)
	r.beforeTaxShipping = r.beforeTaxShipping.Add(other.beforeTaxShipping)
	r.beforeTaxSubtotal = r.beforeTaxSubtotal.Add(other.beforeTaxSubtotal)
	r.beforeTaxSubtotalWithoutDiscount = r.beforeTaxSubtotalWithoutDiscount.Add(other.beforeTaxSubtotalWithoutDiscount)
	r.taxInItemPrice = r.taxInItemPrice.Add(other.taxInItemPrice)
	return nil
}
