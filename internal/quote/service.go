// Package quote prices bookings and assembles car detail views.
package quote

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/simp-lee/carhire/internal/domain"
)

// Service wraps the pricing and car detail backend calls.
type Service struct {
	api    domain.RentalAPI
	logger *slog.Logger
}

// NewService returns a Service over api.
func NewService(api domain.RentalAPI, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, logger: logger}
}

// Calculate prices renting carID for the dates in criteria. Both dates are
// required. The pickup location is sent as its resolved id when known and as
// the raw address otherwise. A car booked in the meantime yields an error
// satisfying domain.IsNotAvailable.
func (s *Service) Calculate(ctx context.Context, carID int64, extraKms int, criteria domain.SearchCriteria) (*domain.Quote, error) {
	if carID <= 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "invalid car id", nil)
	}
	if extraKms < 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "extra kilometres must not be negative", nil)
	}
	if criteria.PickupDate == "" || criteria.DropoffDate == "" {
		return nil, domain.NewAppError(domain.CodeValidation, "pickup and dropoff dates are required", nil)
	}

	req := domain.QuoteRequest{
		CarID:     carID,
		ExtraKms:  extraKms,
		StartDate: criteria.PickupDate,
		EndDate:   criteria.DropoffDate,
	}
	switch {
	case criteria.PickupLocationID != nil && *criteria.PickupLocationID != 0:
		req.PickupLocation = *criteria.PickupLocationID
	case criteria.PickupLocation != "":
		req.PickupLocation = criteria.PickupLocation
	}

	q, err := s.api.CalculateQuote(ctx, req)
	if err != nil {
		if domain.IsNotAvailable(err) {
			s.logger.InfoContext(ctx, "car no longer available", slog.Int64("car_id", carID))
		} else {
			s.logger.ErrorContext(ctx, "calculate quote failed", slog.Int64("car_id", carID), slog.Any("error", err))
		}
		return nil, err
	}
	return q, nil
}

// CarDetail fetches a car and its promotional offer concurrently. A failed
// offer lookup is logged and leaves the offer empty.
func (s *Service) CarDetail(ctx context.Context, carID int64, language string) (*domain.CarDetail, error) {
	if carID <= 0 {
		return nil, domain.NewAppError(domain.CodeValidation, "invalid car id", nil)
	}

	var (
		car   *domain.Car
		offer string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		car, err = s.api.GetCar(gctx, carID, language)
		return err
	})
	g.Go(func() error {
		o, err := s.api.GetDiscountOffer(gctx, carID)
		if err != nil {
			s.logger.WarnContext(ctx, "discount lookup failed", slog.Int64("car_id", carID), slog.Any("error", err))
			return nil
		}
		offer = o
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &domain.CarDetail{Car: *car, Offer: offer}, nil
}
