package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-api/internal/models"
)

// TransactionRepository stores payments. Rows are insert-only.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository constructs the repository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create records a payment inside the caller's transaction.
func (r *TransactionRepository) Create(ctx context.Context, exec sqlx.ExtContext, txn *models.Transaction) error {
	if exec == nil {
		exec = r.db
	}
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	if txn.Date.IsZero() {
		txn.Date = time.Now().UTC()
	}
	const query = `INSERT INTO fee_transactions (id, fee_id, amount, collected_at, collected_by) VALUES (:id, :fee_id, :amount, :collected_at, :collected_by)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, txn); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// ListByFee returns the payments of a fee in collection order.
func (r *TransactionRepository) ListByFee(ctx context.Context, feeID string) ([]models.Transaction, error) {
	const query = `SELECT id, fee_id, amount, collected_at, collected_by FROM fee_transactions WHERE fee_id = $1 ORDER BY collected_at`
	var txns []models.Transaction
	if err := r.db.SelectContext(ctx, &txns, query, feeID); err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txns, nil
}
