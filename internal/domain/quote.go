package domain

// QuoteRequest is the pricing calculation input.
type QuoteRequest struct {
	CarID          int64  `json:"car_id"`
	ExtraKms       int    `json:"extra_kms"`
	PickupLocation any    `json:"pickup_location"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
}

// Quote is the server-computed price breakdown for one booking.
type Quote struct {
	TotalDays                int     `json:"total_days"`
	ExtraKms                 int     `json:"extra_kms"`
	TotalDaysAmount          float64 `json:"total_days_amount"`
	ExtraKmAmount            float64 `json:"extra_km_amount"`
	TotalAmount              float64 `json:"total_amount"`
	DiscountType             string  `json:"discount_type"`
	DiscountValue            float64 `json:"discount_value"`
	TotalDiscount            float64 `json:"total_discount"`
	TotalAmountAfterDiscount float64 `json:"total_amount_after_discount"`
	TaxRate                  float64 `json:"tax_rate"`
	TaxAmount                float64 `json:"tax_amount"`
	TotalAmountWithTax       float64 `json:"total_amount_with_tax"`
}

// CarDetail is a single car with its current promotional offer, if any.
type CarDetail struct {
	Car   Car    `json:"car"`
	Offer string `json:"offer,omitempty"`
}
