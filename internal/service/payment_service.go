package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-api/internal/models"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
	"github.com/noah-isme/institute-api/pkg/logger"
)

type paymentFeeStore interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Fee, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Fee, error)
	UpdatePayment(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error
}

type transactionStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, txn *models.Transaction) error
	ListByFee(ctx context.Context, feeID string) ([]models.Transaction, error)
}

// CollectPaymentRequest records money received against a fee.
type CollectPaymentRequest struct {
	FeeID       string          `json:"-" validate:"required"`
	CollectorID string          `json:"-" validate:"required"`
	Amount      decimal.Decimal `json:"amount"`
}

// PaymentService records payments. Transactions are never updated or refunded.
type PaymentService struct {
	tx           txRunner
	fees         paymentFeeStore
	transactions transactionStore
	cache        *CacheService
	metrics      *MetricsService
	validator    *validator.Validate
	logger       *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(tx txRunner, fees paymentFeeStore, transactions transactionStore, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *PaymentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{tx: tx, fees: fees, transactions: transactions, cache: cache, metrics: metrics, validator: validate, logger: logger}
}

// Collect applies a payment of 0 < amount <= outstanding to a locked fee.
func (s *PaymentService) Collect(ctx context.Context, req CollectPaymentRequest) (*models.PaymentReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
	}
	if !wholeCents(req.Amount) {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "payment amount cannot have more than 2 decimal places")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "payment amount must be greater than zero")
	}
	amount := req.Amount.Round(2)

	var receipt models.PaymentReceipt
	err := s.tx.WithTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		fee, err := s.fees.FindByIDForUpdate(ctx, exec, req.FeeID)
		if err != nil {
			return storeError(err, "fee not found", "failed to load fee")
		}
		outstanding := fee.Outstanding()
		if amount.GreaterThan(outstanding) {
			return appErrors.Clone(appErrors.ErrInvalidAmount,
				fmt.Sprintf("payment of %s exceeds outstanding balance %s", amount.StringFixed(2), outstanding.StringFixed(2)))
		}

		txn := models.Transaction{FeeID: fee.ID, Amount: amount, Date: time.Now().UTC(), CollectedBy: req.CollectorID}
		if err := s.transactions.Create(ctx, exec, &txn); err != nil {
			return storeError(err, "", "failed to record transaction")
		}

		fee.PaidAmount = fee.PaidAmount.Add(amount)
		fee.Status = models.DeriveFeeStatus(fee.FinalAmount, fee.PaidAmount)
		if err := s.fees.UpdatePayment(ctx, exec, fee); err != nil {
			return storeError(err, "", "failed to update fee")
		}
		receipt = models.PaymentReceipt{Transaction: txn, Fee: *fee}
		return nil
	})
	if err != nil {
		err = storeError(err, "", "failed to collect payment")
		if appErrors.IsRetryable(err) {
			s.metrics.RecordTxConflict("collect_payment")
		}
		return nil, err
	}

	s.metrics.RecordPayment(amount.InexactFloat64())
	s.cache.InvalidateStudentLedger(ctx, receipt.Fee.StudentID)
	logger.FromContext(ctx, s.logger).Info("payment collected",
		zap.String("fee_id", receipt.Fee.ID),
		zap.String("transaction_id", receipt.Transaction.ID),
		zap.String("amount", amount.StringFixed(2)),
		zap.String("status", string(receipt.Fee.Status)))
	return &receipt, nil
}

// ListTransactions returns the payments of a fee.
func (s *PaymentService) ListTransactions(ctx context.Context, feeID string) ([]models.Transaction, error) {
	if _, err := s.fees.FindByID(ctx, nil, feeID); err != nil {
		return nil, storeError(err, "fee not found", "failed to load fee")
	}
	txns, err := s.transactions.ListByFee(ctx, feeID)
	if err != nil {
		return nil, storeError(err, "", "failed to list transactions")
	}
	return txns, nil
}

// wholeCents reports whether d is representable in cents without rounding.
func wholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(2))
}
