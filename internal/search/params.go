package search

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/simp-lee/carhire/internal/domain"
)

// Resolver maps a free-text address to a location id.
type Resolver func(address string) (int64, bool)

// ListRequest is everything needed to build one car list query.
type ListRequest struct {
	Criteria domain.SearchCriteria
	Filters  domain.FilterSelection
	Page     int
	PageSize int
	Language string
}

// BuildListParams derives the car list query. For pickup and dropoff a stored
// id wins, then an id resolved against the loaded locations, then the raw
// address. Empty facets are sent as empty strings.
func BuildListParams(req ListRequest, resolve Resolver) url.Values {
	q := url.Values{}
	q.Set("fuel_type", strings.Join(req.Filters.Fuel, ","))
	q.Set("transmission", strings.Join(req.Filters.Transmissions, ","))
	q.Set("car_type", strings.Join(req.Filters.CarTypes, ","))
	q.Set("body_type", strings.Join(req.Filters.BodyTypes, ","))
	q.Set("pickup_location", locationParam(req.Criteria.PickupLocationID, req.Criteria.PickupLocation, resolve))
	q.Set("pickup_date", req.Criteria.PickupDate)
	q.Set("drop_date", req.Criteria.DropoffDate)
	q.Set("dropoff_location", locationParam(req.Criteria.DropoffLocationID, req.Criteria.DropoffLocation, resolve))
	q.Set("page", strconv.Itoa(req.Page))
	q.Set("page_size", strconv.Itoa(req.PageSize))
	q.Set("min_price", strconv.Itoa(req.Filters.PriceRange.Min()))
	q.Set("max_price", strconv.Itoa(req.Filters.PriceRange.Max()))
	q.Set("selected_language", req.Language)
	return q
}

func locationParam(id *int64, address string, resolve Resolver) string {
	if id != nil && *id != 0 {
		return strconv.FormatInt(*id, 10)
	}
	if address == "" {
		return ""
	}
	if resolve != nil {
		if resolved, ok := resolve(address); ok && resolved != 0 {
			return strconv.FormatInt(resolved, 10)
		}
	}
	return address
}
