package taxquote

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tax/internal/lineitem"
	"github.com/noah-isme/toko-tax/internal/money"
	"github.com/noah-isme/toko-tax/internal/tax"
)

// ItemRequest is a line item tree. An item with constituents is a bundle.
type ItemRequest struct {
	ID           string        `json:"id" validate:"required"`
	SKU          string        `json:"sku"`
	Price        *string       `json:"price,omitempty" validate:"omitempty,numeric"`
	TaxCode      string        `json:"taxCode"`
	Discountable bool          `json:"discountable"`
	Constituents []ItemRequest `json:"constituents,omitempty" validate:"omitempty,dive"`
}

// AddressRequest is the shipping destination.
type AddressRequest struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	SubCountry string `json:"subCountry"`
	Country    string `json:"country" validate:"required"`
	PostalCode string `json:"postalCode"`
}

// ApportionRequest is the body of POST /api/v1/discounts/apportion.
type ApportionRequest struct {
	Currency string        `json:"currency" validate:"omitempty,iso4217"`
	Discount string        `json:"discount" validate:"required,numeric"`
	Items    []ItemRequest `json:"items" validate:"required,dive"`
}

// QuoteRequest is the body of POST /api/v1/tax/quote.
type QuoteRequest struct {
	StoreCode    string          `json:"storeCode" validate:"required"`
	Currency     string          `json:"currency" validate:"omitempty,iso4217"`
	Address      *AddressRequest `json:"address,omitempty"`
	ShippingCost string          `json:"shippingCost" validate:"required,numeric"`
	Discount     string          `json:"discount" validate:"omitempty,numeric"`
	Items        []ItemRequest   `json:"items" validate:"required,dive"`
}

func (a *AddressRequest) toAddress() *tax.Address {
	if a == nil {
		return nil
	}
	return &tax.Address{
		Street:     a.Street,
		City:       a.City,
		SubCountry: a.SubCountry,
		Country:    a.Country,
		PostalCode: a.PostalCode,
	}
}

func parseAmount(value string, cur money.Currency) (money.Amount, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return money.Zero(cur), nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return money.Amount{}, fmt.Errorf("invalid amount %q", value)
	}
	return money.New(d, cur), nil
}

func toItems(reqs []ItemRequest, cur money.Currency) ([]lineitem.Item, error) {
	items := make([]lineitem.Item, 0, len(reqs))
	for _, req := range reqs {
		item, err := toItem(req, cur)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, nil
}

func toItem(req ItemRequest, cur money.Currency) (lineitem.Item, error) {
	attrs := lineitem.Attributes{
		ID:           req.ID,
		SKU:          req.SKU,
		TaxCode:      req.TaxCode,
		Discountable: req.Discountable,
	}
	if req.Price != nil {
		price, err := parseAmount(*req.Price, cur)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", req.ID, err)
		}
		if price.Value.IsNegative() {
			return nil, fmt.Errorf("item %s: price must not be negative", req.ID)
		}
		attrs.PreDiscountTotal = &price
	}
	if len(req.Constituents) == 0 {
		return &lineitem.Leaf{Attributes: attrs}, nil
	}
	constituents, err := toItems(req.Constituents, cur)
	if err != nil {
		return nil, err
	}
	return &lineitem.Bundle{Attributes: attrs, Constituents: constituents}, nil
}

// AmountView reports a value at calculation precision and rounded to minor units.
type AmountView struct {
	Amount  string `json:"amount"`
	Rounded string `json:"rounded"`
}

func view(a money.Amount) AmountView {
	return AmountView{
		Amount:  a.Value.String(),
		Rounded: a.Finalize().Value.StringFixed(a.Currency.Digits()),
	}
}

// CategoryView is a category's tax.
type CategoryView struct {
	Name string     `json:"name"`
	Tax  AmountView `json:"tax"`
}

// LineItemView is an item's tax.
type LineItemView struct {
	ID      string     `json:"id"`
	SKU     string     `json:"sku,omitempty"`
	TaxCode string     `json:"taxCode,omitempty"`
	Tax     AmountView `json:"tax"`
}

// QuoteResponse is the data payload of a tax quote.
type QuoteResponse struct {
	CalculationID     string         `json:"calculationId"`
	Currency          string         `json:"currency"`
	TaxInclusive      bool           `json:"taxInclusive"`
	ShippingTax       AmountView     `json:"shippingTax"`
	BeforeTaxShipping AmountView     `json:"beforeTaxShipping"`
	Subtotal          AmountView     `json:"subtotal"`
	BeforeTaxSubtotal AmountView     `json:"beforeTaxSubtotal"`
	TaxInItemPrice    AmountView     `json:"taxInItemPrice"`
	TotalTaxes        AmountView     `json:"totalTaxes"`
	Categories        []CategoryView `json:"categories"`
	LineItems         []LineItemView `json:"lineItems"`
}

// ApportionResponse is the data payload of a discount apportionment.
type ApportionResponse struct {
	Currency string            `json:"currency"`
	Shares   map[string]string `json:"shares"`
}
