package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FeeStatus is derived from the paid and final amounts of a fee.
type FeeStatus string

// Possible fee statuses.
const (
	FeeStatusUnpaid  FeeStatus = "UNPAID"
	FeeStatusPartial FeeStatus = "PARTIAL"
	FeeStatusPaid    FeeStatus = "PAID"
)

// Fee is the invoice of one billing cycle of one enrollment.
type Fee struct {
	ID             string          `db:"id" json:"id"`
	StudentID      string          `db:"student_id" json:"student_id"`
	EnrollmentID   string          `db:"enrollment_id" json:"enrollment_id"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	DiscountAmount decimal.Decimal `db:"discount_amount" json:"discount_amount"`
	FinalAmount    decimal.Decimal `db:"final_amount" json:"final_amount"`
	RolloverAmount decimal.Decimal `db:"rollover_amount" json:"rollover_amount"`
	PaidAmount     decimal.Decimal `db:"paid_amount" json:"paid_amount"`
	DueDate        time.Time       `db:"due_date" json:"due_date"`
	CycleDate      time.Time       `db:"cycle_date" json:"cycle_date"`
	Status         FeeStatus       `db:"status" json:"status"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// FinalAmountFor computes max(0, amount + rollover - discount).
func FinalAmountFor(amount, rollover, discount decimal.Decimal) decimal.Decimal {
	final := amount.Add(rollover).Sub(discount)
	if final.IsNegative() {
		return decimal.Zero
	}
	return final
}

// DeriveFeeStatus is the single source of truth for fee status.
// A fee whose final amount is zero counts as paid.
func DeriveFeeStatus(finalAmount, paidAmount decimal.Decimal) FeeStatus {
	switch {
	case paidAmount.GreaterThanOrEqual(finalAmount):
		return FeeStatusPaid
	case paidAmount.IsPositive():
		return FeeStatusPartial
	default:
		return FeeStatusUnpaid
	}
}

// Gross is the amount subject to discount: nominal fee plus carried rollover.
func (f Fee) Gross() decimal.Decimal {
	return f.Amount.Add(f.RolloverAmount)
}

// Outstanding is what remains to be collected on the fee.
func (f Fee) Outstanding() decimal.Decimal {
	rest := f.FinalAmount.Sub(f.PaidAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// Recalculate refreshes the derived final amount and status.
func (f *Fee) Recalculate() {
	f.FinalAmount = FinalAmountFor(f.Amount, f.RolloverAmount, f.DiscountAmount)
	f.Status = DeriveFeeStatus(f.FinalAmount, f.PaidAmount)
}

// FirstOfMonth normalises t to midnight UTC on the first day of its month.
func FirstOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthsBetween counts whole calendar months from start to end, day-of-month aware.
// It returns 0 when end precedes start.
func MonthsBetween(start, end time.Time) int {
	start, end = start.UTC(), end.UTC()
	if end.Before(start) {
		return 0
	}
	months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
	if start.AddDate(0, months, 0).After(end) {
		months--
	}
	if months < 0 {
		return 0
	}
	return months
}

// MonthIndex is the 1-based course month that a billing cycle falls in.
func MonthIndex(joiningDate, cycleDate time.Time) int {
	return MonthsBetween(joiningDate, cycleDate) + 1
}

// FeeFilter provides filters for listing fees.
type FeeFilter struct {
	StudentID    string
	EnrollmentID string
	Status       FeeStatus
	CycleFrom    *time.Time
	CycleTo      *time.Time
	Page         int
	PageSize     int
}

// StudentLedger summarises every fee of a student.
type StudentLedger struct {
	StudentID        string          `json:"student_id"`
	Fees             []Fee           `json:"fees"`
	TotalBilled      decimal.Decimal `json:"total_billed"`
	TotalDiscount    decimal.Decimal `json:"total_discount"`
	TotalPaid        decimal.Decimal `json:"total_paid"`
	TotalOutstanding decimal.Decimal `json:"total_outstanding"`
	GeneratedAt      time.Time       `json:"generated_at"`
}

// BillingRunSummary reports the outcome of a monthly billing run.
type BillingRunSummary struct {
	Cycle       time.Time `json:"cycle"`
	Completed   int       `json:"completed"`
	Enrollments int       `json:"enrollments"`
	Created     int       `json:"created"`
	Skipped     int       `json:"skipped"`
	Failed      int       `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}
