// Package jurisdiction provides tax.Resolver and tax.TaxCodeProvider
// implementations backed by a JSON seed, Postgres, or a Redis cache.
package jurisdiction

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-tax/internal/tax"
)

// ErrInvalidSeed is returned when a jurisdiction seed fails validation.
var ErrInvalidSeed = errors.New("invalid jurisdiction seed")

var hundred = decimal.NewFromInt(100)

// Seed is the document format shared by the static resolver, the seeder and Import.
type Seed struct {
	Stores []StoreSeed `json:"stores"`
}

// StoreSeed lists a store's enabled tax codes and the jurisdictions it sells into.
type StoreSeed struct {
	Code           string             `json:"code"`
	ActiveTaxCodes []string           `json:"activeTaxCodes"`
	Jurisdictions  []tax.Jurisdiction `json:"jurisdictions"`
}

// LoadSeed reads and validates a seed file.
func LoadSeed(path string) (*Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open seed: %w", err)
	}
	defer f.Close()
	return ParseSeed(f)
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(r io.Reader) (*Seed, error) {
	var seed Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&seed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeed, err)
	}
	if err := seed.Validate(); err != nil {
		return nil, err
	}
	return &seed, nil
}

// Validate checks codes, modes, match types and rate bounds.
func (s *Seed) Validate() error {
	stores := map[string]bool{}
	for i, st := range s.Stores {
		code := strings.TrimSpace(st.Code)
		if code == "" {
			return fmt.Errorf("%w: stores[%d]: code is required", ErrInvalidSeed, i)
		}
		if stores[code] {
			return fmt.Errorf("%w: duplicate store %q", ErrInvalidSeed, code)
		}
		stores[code] = true

		regions := map[string]bool{}
		for _, j := range st.Jurisdictions {
			rc := strings.ToUpper(strings.TrimSpace(j.RegionCode))
			if rc == "" {
				return fmt.Errorf("%w: store %s: regionCode is required", ErrInvalidSeed, code)
			}
			if regions[rc] {
				return fmt.Errorf("%w: store %s: duplicate jurisdiction %s", ErrInvalidSeed, code, rc)
			}
			regions[rc] = true
			if !j.Mode.Valid() {
				return fmt.Errorf("%w: store %s/%s: unknown mode %q", ErrInvalidSeed, code, rc, j.Mode)
			}
			if err := validateCategories(j.Categories); err != nil {
				return fmt.Errorf("%w: store %s/%s: %v", ErrInvalidSeed, code, rc, err)
			}
		}
	}
	return nil
}

func validateCategories(categories []tax.Category) error {
	for _, c := range categories {
		if strings.TrimSpace(c.Name) == "" {
			return errors.New("category name is required")
		}
		if !c.FieldMatchType.Valid() {
			return fmt.Errorf("category %s: unknown fieldMatchType %q", c.Name, c.FieldMatchType)
		}
		for _, r := range c.Regions {
			if strings.TrimSpace(r.Name) == "" {
				return fmt.Errorf("category %s: region name is required", c.Name)
			}
			for code, pct := range r.Rates {
				if pct.IsNegative() || pct.GreaterThan(hundred) {
					return fmt.Errorf("category %s region %s: rate %s for %s out of range", c.Name, r.Name, pct, code)
				}
			}
		}
	}
	return nil
}
