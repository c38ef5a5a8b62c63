package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-api/internal/models"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
)

func TestCollectPaymentTransitions(t *testing.T) {
	e := newEngine(date(2024, 1, 15))
	ctx := context.Background()
	res, err := e.enrollments.Enroll(ctx, EnrollStudentRequest{StudentID: "student-1", CourseSlotID: "cs-a"})
	require.NoError(t, err)
	feeID := res.InitialFee.ID

	receipt, err := e.payments.Collect(ctx, CollectPaymentRequest{FeeID: feeID, CollectorID: "collector-1", Amount: money("1000")})
	require.NoError(t, err)
	assert.True(t, money("1000").Equal(receipt.Transaction.Amount))
	assert.Equal(t, "collector-1", receipt.Transaction.CollectedBy)
	assert.Equal(t, models.FeeStatusPartial, receipt.Fee.Status)

	_, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: feeID, CollectorID: "collector-1", Amount: money("2000.01")})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidAmount))

	receipt, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: feeID, CollectorID: "collector-1", Amount: money("2000")})
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, receipt.Fee.Status)
	assert.True(t, receipt.Fee.Outstanding().IsZero())

	_, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: feeID, CollectorID: "collector-1", Amount: money("1")})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidAmount))

	txns, err := e.payments.ListTransactions(ctx, feeID)
	require.NoError(t, err)
	assert.Len(t, txns, 2)
}

func TestCollectPaymentRejectsBadInput(t *testing.T) {
	e := newEngine(date(2024, 1, 15))
	ctx := context.Background()
	res, err := e.enrollments.Enroll(ctx, EnrollStudentRequest{StudentID: "student-1", CourseSlotID: "cs-a"})
	require.NoError(t, err)

	_, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: res.InitialFee.ID, CollectorID: "c", Amount: money("0")})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidAmount))

	_, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: res.InitialFee.ID, CollectorID: "c", Amount: money("-5")})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidAmount))

	_, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: res.InitialFee.ID, CollectorID: "c", Amount: money("0.004")})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidAmount))

	_, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: res.InitialFee.ID, CollectorID: "c", Amount: money("1000.004")})
	assert.True(t, errors.Is(err, appErrors.ErrInvalidAmount))

	_, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: res.InitialFee.ID, Amount: money("5")})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = e.payments.Collect(ctx, CollectPaymentRequest{FeeID: "missing", CollectorID: "c", Amount: money("5")})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = e.payments.ListTransactions(ctx, "missing")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.Empty(t, e.db.txns)
}

func TestConcurrentPaymentsNeverOverpay(t *testing.T) {
	e := newEngine(date(2024, 1, 15))
	ctx := context.Background()
	res, err := e.enrollments.Enroll(ctx, EnrollStudentRequest{StudentID: "student-1", CourseSlotID: "cs-a"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.payments.Collect(ctx, CollectPaymentRequest{FeeID: res.InitialFee.ID, CollectorID: "c", Amount: money("1000")}); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, accepted)
	fee := e.db.fees[res.InitialFee.ID]
	assert.True(t, money("3000").Equal(fee.PaidAmount))
	assert.Equal(t, models.FeeStatusPaid, fee.Status)
}
