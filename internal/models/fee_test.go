package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFinalAmountFor(t *testing.T) {
	cases := []struct {
		name                       string
		amount, rollover, discount string
		want                       string
	}{
		{"no adjustments", "1000", "0", "0", "1000"},
		{"rollover added", "1000", "500", "0", "1500"},
		{"discount subtracted", "1000", "500", "300", "1200"},
		{"clamped at zero", "100", "0", "250", "0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := FinalAmountFor(dec(tc.amount), dec(tc.rollover), dec(tc.discount))
			assert.True(t, dec(tc.want).Equal(got), "got %s", got)
		})
	}
}

func TestDeriveFeeStatus(t *testing.T) {
	cases := []struct {
		final, paid string
		want        FeeStatus
	}{
		{"1000", "0", FeeStatusUnpaid},
		{"1000", "1", FeeStatusPartial},
		{"1000", "999.99", FeeStatusPartial},
		{"1000", "1000", FeeStatusPaid},
		{"0", "0", FeeStatusPaid},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, DeriveFeeStatus(dec(tc.final), dec(tc.paid)), "final=%s paid=%s", tc.final, tc.paid)
	}
}

func TestFeeRecalculate(t *testing.T) {
	fee := Fee{Amount: dec("1000"), RolloverAmount: dec("500"), DiscountAmount: dec("150"), PaidAmount: dec("200")}
	fee.Recalculate()

	assert.True(t, dec("1350").Equal(fee.FinalAmount))
	assert.Equal(t, FeeStatusPartial, fee.Status)
	assert.True(t, dec("1150").Equal(fee.Outstanding()))
	assert.True(t, dec("1500").Equal(fee.Gross()))
}

func TestFirstOfMonth(t *testing.T) {
	got := FirstOfMonth(time.Date(2024, time.February, 29, 17, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestMonthIndex(t *testing.T) {
	joined := time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		cycle time.Time
		want  int
	}{
		{time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), 1},
		{time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), 1},
		{time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), 2},
		{time.Date(2024, time.March, 15, 9, 0, 0, 0, time.UTC), 3},
		{time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), 12},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MonthIndex(joined, tc.cycle), "cycle %s", tc.cycle.Format("2006-01-02"))
	}

	firstDay := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 2, MonthIndex(firstDay, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)))
}

func TestEnrollmentScheduledEnd(t *testing.T) {
	joined := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC)
	e := Enrollment{JoiningDate: joined, ExtendedDays: 5}
	assert.Equal(t, time.Date(2024, time.April, 15, 0, 0, 0, 0, time.UTC), e.ScheduledEnd(3))

	end := time.Date(2024, time.May, 1, 0, 0, 0, 0, time.UTC)
	e.EndDate = &end
	assert.Equal(t, end, e.ScheduledEnd(3))
}
