package dto

import "github.com/shopspring/decimal"

// BillingRunRequest triggers a monthly billing run. AsOf defaults to today when empty.
type BillingRunRequest struct {
	AsOf string `json:"as_of" example:"2024-02-01"`
}

// CollectPaymentRequest is the body of a payment collection.
type CollectPaymentRequest struct {
	Amount decimal.Decimal `json:"amount" swaggertype:"string" example:"1000.00"`
}

// CreateDiscountRequest is the body of a discount grant.
type CreateDiscountRequest struct {
	DiscountType        string          `json:"discount_type" example:"FIXED"`
	DiscountAmount      decimal.Decimal `json:"discount_amount" swaggertype:"string" example:"500"`
	DiscountDuration    string          `json:"discount_duration" example:"SINGLE_MONTH"`
	ApplicableFromMonth int             `json:"applicable_from_month" example:"1"`
}
