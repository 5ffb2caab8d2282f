package jurisdiction

import (
	"context"
	"slices"
	"strings"

	"github.com/noah-isme/toko-tax/internal/tax"
)

// Static serves jurisdictions from an in-memory seed.
type Static struct {
	stores map[string]staticStore
}

type staticStore struct {
	codes    []string
	byRegion map[string]tax.Jurisdiction
}

// NewStatic indexes seed by store code and region code.
func NewStatic(seed *Seed) *Static {
	s := &Static{stores: map[string]staticStore{}}
	if seed == nil {
		return s
	}
	for _, st := range seed.Stores {
		entry := staticStore{
			codes:    slices.Clone(st.ActiveTaxCodes),
			byRegion: make(map[string]tax.Jurisdiction, len(st.Jurisdictions)),
		}
		for _, j := range st.Jurisdictions {
			entry.byRegion[regionKey(j.RegionCode)] = j
		}
		s.stores[strings.TrimSpace(st.Code)] = entry
	}
	return s
}

// Resolve returns the store's jurisdiction for the address country, or nil.
func (s *Static) Resolve(_ context.Context, storeCode string, addr *tax.Address) (*tax.Jurisdiction, error) {
	if addr == nil {
		return nil, nil
	}
	st, ok := s.stores[storeCode]
	if !ok {
		return nil, nil
	}
	j, ok := st.byRegion[regionKey(addr.Country)]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

// ActiveTaxCodes returns the store's enabled tax codes. Unknown stores have none.
func (s *Static) ActiveTaxCodes(_ context.Context, storeCode string) ([]string, error) {
	return slices.Clone(s.stores[storeCode].codes), nil
}

func regionKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
