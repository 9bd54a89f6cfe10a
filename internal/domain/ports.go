package domain

import (
	"context"
	"net/url"
)

// KVStore is the durable key-value storage used for client state that must
// outlive a single page session. Get reports found=false for absent keys.
type KVStore interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
}

// RentalAPI is the external rental backend as consumed by this service.
type RentalAPI interface {
	ListCars(ctx context.Context, params url.Values) (*CarPage, error)
	GetCar(ctx context.Context, id int64, language string) (*Car, error)
	ListLocations(ctx context.Context, language string) ([]Location, error)
	ListFacet(ctx context.Context, kind, language string) ([]FacetOption, error)
	CalculateQuote(ctx context.Context, req QuoteRequest) (*Quote, error)
	GetDiscountOffer(ctx context.Context, carID int64) (string, error)
}

// LocationSource supplies the location list for a language.
type LocationSource interface {
	Locations(ctx context.Context, language string) ([]Location, error)
}
