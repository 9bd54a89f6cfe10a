package search

import (
	"slices"

	"github.com/simp-lee/carhire/internal/domain"
)

// Facet names accepted by FilterStore.Toggle.
const (
	FacetFuel         = "fuel"
	FacetTransmission = "transmission"
	FacetCarType      = "car_type"
	FacetBodyType     = "body_type"
)

// IsToggleFacet reports whether facet names a set-valued facet.
func IsToggleFacet(facet string) bool {
	switch facet {
	case FacetFuel, FacetTransmission, FacetCarType, FacetBodyType:
		return true
	default:
		return false
	}
}

// FilterStore holds the active FilterSelection. It does not validate values;
// callers wanting the UI clamping rule use ClampPriceRange first.
// A FilterStore is not safe for concurrent use.
type FilterStore struct {
	cur domain.FilterSelection
}

// NewFilterStore returns a store initialised to DefaultFilters.
func NewFilterStore() *FilterStore {
	return &FilterStore{cur: domain.DefaultFilters()}
}

// Get returns a copy of the current selection.
func (s *FilterStore) Get() domain.FilterSelection {
	return cloneSelection(s.cur)
}

// Set replaces the selection wholesale.
func (s *FilterStore) Set(sel domain.FilterSelection) {
	s.cur = normalizeSelection(sel)
}

// Update shallow-merges patch into the selection. Facets the patch leaves nil
// keep their previous value.
func (s *FilterStore) Update(patch domain.FilterPatch) {
	next := s.cur
	if patch.Fuel != nil {
		next.Fuel = uniq(*patch.Fuel)
	}
	if patch.Transmissions != nil {
		next.Transmissions = uniq(*patch.Transmissions)
	}
	if patch.CarTypes != nil {
		next.CarTypes = uniq(*patch.CarTypes)
	}
	if patch.BodyTypes != nil {
		next.BodyTypes = uniq(*patch.BodyTypes)
	}
	if patch.PriceRange != nil {
		next.PriceRange = *patch.PriceRange
	}
	s.cur = next
}

// Reset restores DefaultFilters.
func (s *FilterStore) Reset() {
	s.cur = domain.DefaultFilters()
}

// Toggle adds value to the named facet set, or removes it when already
// present. It reports false for an unknown facet.
func (s *FilterStore) Toggle(facet, value string) bool {
	var set *[]string
	switch facet {
	case FacetFuel:
		set = &s.cur.Fuel
	case FacetTransmission:
		set = &s.cur.Transmissions
	case FacetCarType:
		set = &s.cur.CarTypes
	case FacetBodyType:
		set = &s.cur.BodyTypes
	default:
		return false
	}

	if i := slices.Index(*set, value); i >= 0 {
		*set = slices.Delete(slices.Clone(*set), i, i+1)
	} else {
		*set = append(slices.Clone(*set), value)
	}
	return true
}

// ClampPriceRange applies the price inputs' clamping rule: negatives become
// MinPrice, max is capped at MaxPrice, and min is capped at the (clamped) max.
func ClampPriceRange(r domain.PriceRange) domain.PriceRange {
	lo, hi := r.Min(), r.Max()
	hi = min(max(hi, domain.MinPrice), domain.MaxPrice)
	lo = min(max(lo, domain.MinPrice), hi)
	return domain.PriceRange{lo, hi}
}

func normalizeSelection(sel domain.FilterSelection) domain.FilterSelection {
	return domain.FilterSelection{
		Fuel:          uniq(sel.Fuel),
		Transmissions: uniq(sel.Transmissions),
		CarTypes:      uniq(sel.CarTypes),
		BodyTypes:     uniq(sel.BodyTypes),
		PriceRange:    sel.PriceRange,
	}
}

func cloneSelection(sel domain.FilterSelection) domain.FilterSelection {
	return domain.FilterSelection{
		Fuel:          cloneOrEmpty(sel.Fuel),
		Transmissions: cloneOrEmpty(sel.Transmissions),
		CarTypes:      cloneOrEmpty(sel.CarTypes),
		BodyTypes:     cloneOrEmpty(sel.BodyTypes),
		PriceRange:    sel.PriceRange,
	}
}

func cloneOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}

// uniq drops duplicates and empty members, keeping first-seen order.
func uniq(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v == "" || slices.Contains(out, v) {
			continue
		}
		out = append(out, v)
	}
	return out
}
