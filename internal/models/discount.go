package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType says how DiscountAmount is interpreted.
type DiscountType string

// Supported discount types.
const (
	DiscountTypeFixed      DiscountType = "FIXED"
	DiscountTypePercentage DiscountType = "PERCENTAGE"
)

// DiscountDuration scopes a discount to one month or the whole course.
type DiscountDuration string

// Supported discount durations.
const (
	DiscountSingleMonth  DiscountDuration = "SINGLE_MONTH"
	DiscountEntireCourse DiscountDuration = "ENTIRE_COURSE"
)

// StudentDiscount grants a reduction on the fees of one enrollment.
type StudentDiscount struct {
	ID                  string           `db:"id" json:"id"`
	StudentID           string           `db:"student_id" json:"student_id"`
	EnrollmentID        string           `db:"enrollment_id" json:"enrollment_id"`
	DiscountType        DiscountType     `db:"discount_type" json:"discount_type"`
	DiscountAmount      decimal.Decimal  `db:"discount_amount" json:"discount_amount"`
	DiscountDuration    DiscountDuration `db:"discount_duration" json:"discount_duration"`
	ApplicableFromMonth int              `db:"applicable_from_month" json:"applicable_from_month"`
	ApplicableToMonth   *int             `db:"applicable_to_month" json:"applicable_to_month,omitempty"`
	CreatedBy           string           `db:"created_by" json:"created_by"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
}

// Covers reports whether the discount window includes the 1-based month index.
func (d StudentDiscount) Covers(monthIndex int) bool {
	switch d.DiscountDuration {
	case DiscountSingleMonth:
		return monthIndex == d.ApplicableFromMonth
	case DiscountEntireCourse:
		if monthIndex < d.ApplicableFromMonth {
			return false
		}
		return d.ApplicableToMonth == nil || monthIndex <= *d.ApplicableToMonth
	default:
		return false
	}
}
