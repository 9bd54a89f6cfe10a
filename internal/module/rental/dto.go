package rental

import "github.com/simp-lee/carhire/internal/domain"

// SearchRequest is a submitted search form. Location ids are optional; when
// absent they are resolved from the address against the loaded locations.
type SearchRequest struct {
	PickupLocation    string `json:"pickup_location" binding:"max=255"`
	PickupLocationID  *int64 `json:"pickup_location_id" binding:"omitempty,gte=1"`
	PickupDate        string `json:"pickup_date" binding:"max=64"`
	DropoffLocation   string `json:"dropoff_location" binding:"max=255"`
	DropoffLocationID *int64 `json:"dropoff_location_id" binding:"omitempty,gte=1"`
	DropoffDate       string `json:"dropoff_date" binding:"max=64"`
}

func (r SearchRequest) criteria() domain.SearchCriteria {
	return domain.SearchCriteria{
		PickupLocation:    r.PickupLocation,
		PickupLocationID:  r.PickupLocationID,
		PickupDate:        r.PickupDate,
		DropoffLocation:   r.DropoffLocation,
		DropoffLocationID: r.DropoffLocationID,
		DropoffDate:       r.DropoffDate,
	}
}

// ToggleRequest flips one value of a set-valued facet.
type ToggleRequest struct {
	Facet string `json:"facet" binding:"required,oneof=fuel transmission car_type body_type"`
	Value string `json:"value" binding:"required,max=100"`
}

// ResolveQuery is the address lookup input.
type ResolveQuery struct {
	Address string `form:"address" binding:"required,max=255"`
}

// LocationsQuery selects which location subset to list.
type LocationsQuery struct {
	Kind string `form:"kind" binding:"omitempty,oneof=pickup dropoff all"`
}

// QuoteRequest asks for a price using the session's last search.
type QuoteRequest struct {
	ExtraKms int `json:"extra_kms" binding:"gte=0,lte=100000"`
}

// LanguageRequest changes the session language.
type LanguageRequest struct {
	Language string `json:"language" binding:"required"`
}

// LanguageResponse reports the session language and the supported set.
type LanguageResponse struct {
	Language  string   `json:"language"`
	Languages []string `json:"languages"`
}

// ResolveResponse is the result of an address lookup.
type ResolveResponse struct {
	Address    string `json:"address"`
	LocationID *int64 `json:"location_id"`
	Found      bool   `json:"found"`
}

// CarResponse is a car detail with the criteria the detail page starts from.
type CarResponse struct {
	domain.CarDetail
	Criteria domain.SearchCriteria `json:"criteria"`
	Seeded   bool                  `json:"seeded"`
}
