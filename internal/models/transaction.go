package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is an immutable payment collected against a fee.
type Transaction struct {
	ID          string          `db:"id" json:"id"`
	FeeID       string          `db:"fee_id" json:"fee_id"`
	Amount      decimal.Decimal `db:"amount" json:"amount"`
	Date        time.Time       `db:"collected_at" json:"date"`
	CollectedBy string          `db:"collected_by" json:"collected_by"`
}

// PaymentReceipt pairs a transaction with the fee state it produced.
type PaymentReceipt struct {
	Transaction Transaction `json:"transaction"`
	Fee         Fee         `json:"fee"`
}
