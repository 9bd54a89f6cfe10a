package search

import (
	"strings"

	"github.com/simp-lee/carhire/internal/domain"
)

// MatchPolicy decides which location wins when several addresses match.
type MatchPolicy string

const (
	// MatchFirst returns the first match in source order.
	MatchFirst MatchPolicy = "first"
	// MatchRanked prefers an exact match, then the address closest in length
	// to the input. Ties keep source order.
	MatchRanked MatchPolicy = "ranked"
)

// Valid reports whether p names a known policy.
func (p MatchPolicy) Valid() bool {
	return p == MatchFirst || p == MatchRanked
}

// Resolve maps address to a location id under the policy. Unknown policies
// behave like MatchFirst.
func (p MatchPolicy) Resolve(address string, locs []domain.Location) (int64, bool) {
	if p == MatchRanked {
		return ResolveLocationIDRanked(address, locs)
	}
	return ResolveLocationID(address, locs)
}

// ResolveLocationID returns the id of the first location whose address
// contains address, or is contained by it, ignoring case.
func ResolveLocationID(address string, locs []domain.Location) (int64, bool) {
	if address == "" || len(locs) == 0 {
		return 0, false
	}
	needle := strings.ToLower(address)
	for _, loc := range locs {
		if matches(needle, loc.Address) {
			return loc.ID, true
		}
	}
	return 0, false
}

// ResolveLocationIDRanked applies the same matching rule as ResolveLocationID
// but breaks ties deterministically instead of by list position alone.
func ResolveLocationIDRanked(address string, locs []domain.Location) (int64, bool) {
	if address == "" || len(locs) == 0 {
		return 0, false
	}
	needle := strings.ToLower(address)

	var (
		bestID    int64
		bestScore = -1
	)
	for _, loc := range locs {
		if !matches(needle, loc.Address) {
			continue
		}
		if strings.EqualFold(loc.Address, address) {
			return loc.ID, true
		}
		score := len(loc.Address) - len(address)
		if score < 0 {
			score = -score
		}
		if bestScore < 0 || score < bestScore {
			bestID, bestScore = loc.ID, score
		}
	}
	return bestID, bestScore >= 0
}

// matches reports bidirectional containment. Locations without an address
// never match, otherwise every input would contain them.
func matches(needle, address string) bool {
	if address == "" {
		return false
	}
	hay := strings.ToLower(address)
	return strings.Contains(hay, needle) || strings.Contains(needle, hay)
}
