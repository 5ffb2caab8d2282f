// Package tax computes shipping and line-item taxes for a jurisdiction under
// inclusive or exclusive pricing and accumulates them into a Result.
package tax

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// ShippingTaxCode is the tax code applied to shipping costs.
const ShippingTaxCode = "SHIPPING"

// Mode selects whether prices already contain tax.
type Mode string

const (
	// ModeExclusive adds tax on top of tax-free prices.
	ModeExclusive Mode = "EXCLUSIVE"
	// ModeInclusive extracts tax from prices that already contain it.
	ModeInclusive Mode = "INCLUSIVE"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeExclusive || m == ModeInclusive }

// FieldMatchType names the address field a category's regions are matched against.
type FieldMatchType string

const (
	MatchCountry    FieldMatchType = "COUNTRY"
	MatchSubCountry FieldMatchType = "SUBCOUNTRY"
	MatchCity       FieldMatchType = "CITY"
	MatchPostalCode FieldMatchType = "POSTAL_CODE"
)

// Valid reports whether t is a known match type.
func (t FieldMatchType) Valid() bool {
	switch t {
	case MatchCountry, MatchSubCountry, MatchCity, MatchPostalCode:
		return true
	}
	return false
}

// Address is the destination used to pick regions.
type Address struct {
	Street     string `json:"street,omitempty"`
	City       string `json:"city,omitempty"`
	SubCountry string `json:"subCountry,omitempty"`
	Country    string `json:"country"`
	PostalCode string `json:"postalCode,omitempty"`
}

func (a Address) field(t FieldMatchType) string {
	switch t {
	case MatchCountry:
		return a.Country
	case MatchSubCountry:
		return a.SubCountry
	case MatchCity:
		return a.City
	case MatchPostalCode:
		return a.PostalCode
	}
	return ""
}

// Region holds percentage rates keyed by tax code, e.g. "7.5" for 7.5%.
type Region struct {
	Name  string                     `json:"name"`
	Rates map[string]decimal.Decimal `json:"rates"`
}

// Category is a family of taxes (GST, PST, VAT...) levied per region.
type Category struct {
	Name           string         `json:"name"`
	FieldMatchType FieldMatchType `json:"fieldMatchType"`
	Regions        []Region       `json:"regions"`
}

// MatchingRegions returns the regions whose name equals the address field
// selected by the category's match type.
func (c Category) MatchingRegions(addr Address) []Region {
	value := strings.TrimSpace(addr.field(c.FieldMatchType))
	if value == "" {
		return nil
	}
	var out []Region
	for _, r := range c.Regions {
		if strings.EqualFold(strings.TrimSpace(r.Name), value) {
			out = append(out, r)
		}
	}
	return out
}

// Jurisdiction is the set of tax categories applicable for a store and destination.
type Jurisdiction struct {
	RegionCode string     `json:"regionCode"`
	Mode       Mode       `json:"mode"`
	Categories []Category `json:"categories"`
}

// Resolver finds the jurisdiction for a store and address. A nil jurisdiction
// with a nil error means no tax applies.
type Resolver interface {
	Resolve(ctx context.Context, storeCode string, addr *Address) (*Jurisdiction, error)
}

// TaxCodeProvider lists the tax codes enabled for a store.
type TaxCodeProvider interface {
	ActiveTaxCodes(ctx context.Context, storeCode string) ([]string, error)
}

// appliedRate is a single (category, region) rate for one tax code.
type appliedRate struct {
	category string
	region   string
	rate     decimal.Decimal
}

// ratesFor returns the non-zero rates, as fractions, for code at addr.
func ratesFor(j *Jurisdiction, addr Address, code string) []appliedRate {
	if j == nil || code == "" {
		return nil
	}
	var out []appliedRate
	for _, c := range j.Categories {
		for _, r := range c.MatchingRegions(addr) {
			pct, ok := r.Rates[code]
			if !ok || pct.IsZero() {
				continue
			}
			out = append(out, appliedRate{category: c.Name, region: r.Name, rate: RateFraction(pct)})
		}
	}
	return out
}

func sumRates(rates []appliedRate) decimal.Decimal {
	total := decimal.Zero
	for _, r := range rates {
		total = total.Add(r.rate)
	}
	return total
}
