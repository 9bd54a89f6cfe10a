package domain

// Price bounds of the price-range facet.
const (
	MinPrice = 0
	MaxPrice = 120000
)

// SearchCriteria is one user-submitted search. It is persisted verbatim as the
// "last search" blob, so its JSON shape is part of the durable storage contract.
// Location IDs are optional because address resolution may fail.
type SearchCriteria struct {
	PickupLocation    string `json:"pickupLocation"`
	PickupDate        string `json:"pickupDate"`
	DropoffLocation   string `json:"dropoffLocation"`
	DropoffDate       string `json:"dropoffDate"`
	PickupLocationID  *int64 `json:"pickupLocationId,omitempty"`
	DropoffLocationID *int64 `json:"dropoffLocationId,omitempty"`
}

// IsZero reports whether no field of the criteria is set.
func (c SearchCriteria) IsZero() bool {
	return c.PickupLocation == "" && c.PickupDate == "" &&
		c.DropoffLocation == "" && c.DropoffDate == "" &&
		c.PickupLocationID == nil && c.DropoffLocationID == nil
}

// HasPickup reports whether a pickup location was chosen and resolved.
func (c SearchCriteria) HasPickup() bool {
	return c.PickupLocationID != nil && *c.PickupLocationID != 0 && c.PickupLocation != ""
}

// PriceRange is an inclusive [min, max] price interval.
type PriceRange [2]int

// Min returns the lower bound.
func (r PriceRange) Min() int { return r[0] }

// Max returns the upper bound.
func (r PriceRange) Max() int { return r[1] }

// FullPriceRange is the default, unfiltered price interval.
func FullPriceRange() PriceRange {
	return PriceRange{MinPrice, MaxPrice}
}

// FilterSelection holds the active facet filters. Each slice is a set:
// members are unique and their order carries no meaning.
type FilterSelection struct {
	Fuel          []string   `json:"fuel"`
	Transmissions []string   `json:"transmissions"`
	CarTypes      []string   `json:"car_types"`
	BodyTypes     []string   `json:"body_types"`
	PriceRange    PriceRange `json:"price_range"`
}

// DefaultFilters returns the "all empty, full price range" selection.
func DefaultFilters() FilterSelection {
	return FilterSelection{
		Fuel:          []string{},
		Transmissions: []string{},
		CarTypes:      []string{},
		BodyTypes:     []string{},
		PriceRange:    FullPriceRange(),
	}
}

// FilterPatch is a partial FilterSelection. Nil fields are left untouched
// when merged.
type FilterPatch struct {
	Fuel          *[]string   `json:"fuel,omitempty"`
	Transmissions *[]string   `json:"transmissions,omitempty"`
	CarTypes      *[]string   `json:"car_types,omitempty"`
	BodyTypes     *[]string   `json:"body_types,omitempty"`
	PriceRange    *PriceRange `json:"price_range,omitempty"`
}

// IsEmpty reports whether the patch touches no facet.
func (p FilterPatch) IsEmpty() bool {
	return p.Fuel == nil && p.Transmissions == nil && p.CarTypes == nil &&
		p.BodyTypes == nil && p.PriceRange == nil
}

// PageData is the pagination metadata reported by the car list endpoint.
type PageData struct {
	CurrentPage int `json:"current_page"`
	TotalPages  int `json:"total_pages"`
	Count       int `json:"count"`
	PageSize    int `json:"page_size"`
}

// HasNextPage derives next-page availability from the backend's metadata.
func (p PageData) HasNextPage() bool {
	return p.CurrentPage < p.TotalPages
}

// CarPage is one page of car list results.
type CarPage struct {
	Cars     []Car    `json:"cars"`
	PageData PageData `json:"page_data"`
}
