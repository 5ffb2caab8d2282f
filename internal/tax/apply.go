package tax

import (
	"errors"
	"fmt"

	"github.com/noah-isme/toko-tax/internal/lineitem"
)

// ErrMissingTaxData is returned when a priced item has no computed tax in the result.
var ErrMissingTaxData = errors.New("no tax computed for line item")

// ApplyTaxes writes each priced item's computed tax onto the item. Nothing is
// written unless every priced item has an entry in result.
func ApplyTaxes(result *Result, items []lineitem.Item) error {
	if result == nil {
		return fmt.Errorf("%w: nil result", ErrInvalidArgument)
	}
	units := lineitem.Taxable(items)
	for _, u := range units {
		if _, ok := result.TaxForLineItem(u.ID); !ok {
			return fmt.Errorf("%w: %s", ErrMissingTaxData, u.ID)
		}
	}
	for _, u := range units {
		amt, _ := result.TaxForLineItem(u.ID)
		u.Tax = &amt
	}
	return nil
}
