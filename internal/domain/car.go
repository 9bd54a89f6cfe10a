package domain

// Location is a pickup or dropoff point operated by the rental backend.
type Location struct {
	ID               int64   `json:"id"`
	Address          string  `json:"address"`
	IsPickupLocation bool    `json:"is_pickup_location"`
	IsDropLocation   bool    `json:"is_drop_location"`
	IsActive         bool    `json:"is_active"`
	GoogleMapLink    string  `json:"google_map_link,omitempty"`
	OpeningTime      *string `json:"opening_time,omitempty"`
	ClosingTime      *string `json:"closing_time,omitempty"`
	Description      *string `json:"description,omitempty"`
	ContactNumber    *string `json:"contact_number,omitempty"`
	ContactEmail     *string `json:"contact_email,omitempty"`
	ContactPerson    *string `json:"contact_person,omitempty"`
}

// PickupLocations returns the active, pickup-eligible locations in source order.
func PickupLocations(all []Location) []Location {
	out := make([]Location, 0, len(all))
	for _, loc := range all {
		if loc.IsActive && loc.IsPickupLocation {
			out = append(out, loc)
		}
	}
	return out
}

// DropoffLocations returns the active, dropoff-eligible locations in source order.
func DropoffLocations(all []Location) []Location {
	out := make([]Location, 0, len(all))
	for _, loc := range all {
		if loc.IsActive && loc.IsDropLocation {
			out = append(out, loc)
		}
	}
	return out
}

// Car is the read-only listing projection returned by the car list endpoint.
// Prices arrive as decimal strings and are passed through untouched.
type Car struct {
	ID                  int64    `json:"id"`
	Brand               string   `json:"brand"`
	Model               string   `json:"model"`
	Year                int      `json:"year"`
	Color               string   `json:"color"`
	Seats               int      `json:"seats"`
	FuelType            string   `json:"fuel_type"`
	Transmission        string   `json:"transmission"`
	CarType             string   `json:"car_type"`
	BodyType            string   `json:"body_type"`
	PricePerDay         string   `json:"price_per_day"`
	PricePerKm          string   `json:"price_per_km"`
	FreeKm              int      `json:"free_km"`
	ExtraKm             int      `json:"extra_km"`
	DiscountPricePerDay *float64 `json:"discount_price_per_day,omitempty"`
	DiscountPricePerKm  *float64 `json:"discount_price_per_km,omitempty"`
	ThumbnailImage      string   `json:"thumbnail_image"`
	ImageList           []string `json:"image_list,omitempty"`
	FeatureList         []string `json:"feature_list,omitempty"`
	CurrentLocation     int64    `json:"current_location,omitempty"`
}

// Facet kinds understood by the vocabulary endpoints.
const (
	FacetCarType      = "car_type"
	FacetBodyType     = "body_type"
	FacetFuelType     = "fuel_type"
	FacetTransmission = "transmission"
)

// IsFacetKind reports whether kind names a known facet vocabulary.
func IsFacetKind(kind string) bool {
	switch kind {
	case FacetCarType, FacetBodyType, FacetFuelType, FacetTransmission:
		return true
	default:
		return false
	}
}

// FacetOption is one entry of a facet vocabulary. Name is the value sent back
// to the list endpoint; OtherName is the localized display label.
type FacetOption struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	OtherName string `json:"other_name"`
}
