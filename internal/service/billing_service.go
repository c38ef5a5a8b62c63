package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-api/internal/models"
	"github.com/noah-isme/institute-api/pkg/database"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
	"github.com/noah-isme/institute-api/pkg/jobs"
	"github.com/noah-isme/institute-api/pkg/logger"
)

const (
	invoiceKindInitial = "initial"
	invoiceKindMonthly = "monthly"
	jobTypeMonthlyFee  = "monthly_fee"
)

type feeStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error
	ExistsForCycle(ctx context.Context, exec sqlx.ExtContext, enrollmentID string, cycle time.Time) (bool, error)
	FindPreviousCycle(ctx context.Context, exec sqlx.ExtContext, enrollmentID string, cycle time.Time) (*models.Fee, error)
	FindLatestForUpdate(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.Fee, error)
	List(ctx context.Context, filter models.FeeFilter) ([]models.Fee, int, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.Fee, error)
}

type billingEnrollmentStore interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	ListActiveIDs(ctx context.Context) ([]string, error)
	CompleteExpired(ctx context.Context, cutoff time.Time) (int, error)
}

type discountLister interface {
	ListByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) ([]models.StudentDiscount, error)
}

// BillingConfig tunes the worker pool of a monthly run.
type BillingConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
	LedgerTTL  time.Duration
}

// BillingService creates fees and serves the fee ledger.
type BillingService struct {
	tx          txRunner
	fees        feeStore
	enrollments billingEnrollmentStore
	placements  placementReader
	discounts   discountLister
	cache       *CacheService
	metrics     *MetricsService
	config      BillingConfig
	logger      *zap.Logger

	running sync.Mutex
}

// NewBillingService constructs BillingService.
func NewBillingService(tx txRunner, fees feeStore, enrollments billingEnrollmentStore, placements placementReader, discounts discountLister, cache *CacheService, metrics *MetricsService, config BillingConfig, logger *zap.Logger) *BillingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	return &BillingService{tx: tx, fees: fees, enrollments: enrollments, placements: placements, discounts: discounts, cache: cache, metrics: metrics, config: config, logger: logger}
}

// GenerateInitialInvoice creates the first fee of a new enrollment inside the caller's transaction.
func (s *BillingService) GenerateInitialInvoice(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment, course models.Course) (*models.Fee, error) {
	today := enrollment.JoiningDate.UTC()
	if today.IsZero() {
		today = time.Now().UTC()
	}
	fee := &models.Fee{
		StudentID:      enrollment.StudentID,
		EnrollmentID:   enrollment.ID,
		Amount:         course.BaseFee,
		DiscountAmount: decimal.Zero,
		RolloverAmount: decimal.Zero,
		PaidAmount:     decimal.Zero,
		DueDate:        today,
		CycleDate:      models.FirstOfMonth(today),
	}
	fee.Recalculate()

	if err := s.fees.Create(ctx, exec, fee); err != nil {
		return nil, feeInsertError(err)
	}
	s.metrics.RecordInvoice(invoiceKindInitial)
	return fee, nil
}

// GenerateMonthlyInvoice bills one enrollment for the month containing asOf in its own transaction.
// It returns a nil fee when the cycle is already billed, precedes the joining month or an already
// billed cycle, or the enrollment is no longer ACTIVE.
func (s *BillingService) GenerateMonthlyInvoice(ctx context.Context, enrollmentID string, asOf time.Time) (*models.Fee, error) {
	cycle := models.FirstOfMonth(asOf)
	log := logger.FromContext(ctx, s.logger).With(zap.String("enrollment_id", enrollmentID), zap.Time("cycle", cycle))

	var created *models.Fee
	err := s.tx.WithTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		enrollment, err := s.enrollments.FindByIDForUpdate(ctx, exec, enrollmentID)
		if err != nil {
			return storeError(err, "enrollment not found", "failed to load enrollment")
		}
		if enrollment.Status != models.EnrollmentStatusActive {
			log.Debug("enrollment not active, skipping", zap.String("status", string(enrollment.Status)))
			return nil
		}

		if cycle.Before(models.FirstOfMonth(enrollment.JoiningDate)) {
			log.Debug("cycle precedes joining month, skipping", zap.Time("joining_date", enrollment.JoiningDate))
			return nil
		}

		exists, err := s.fees.ExistsForCycle(ctx, exec, enrollmentID, cycle)
		if err != nil {
			return storeError(err, "", "failed to check billing cycle")
		}
		if exists {
			return nil
		}

		latest, err := s.fees.FindLatestForUpdate(ctx, exec, enrollmentID)
		switch {
		case err == nil:
			if latest.CycleDate.After(cycle) {
				log.Debug("later cycle already billed, skipping", zap.Time("latest_cycle", latest.CycleDate))
				return nil
			}
		case isNoRows(err):
		default:
			return storeError(err, "", "failed to load latest fee")
		}

		placement, err := s.placements.FindPlacement(ctx, exec, enrollment.CourseSlotID)
		if err != nil {
			return storeError(err, "course slot not found", "failed to load course")
		}

		rollover := decimal.Zero
		previous, err := s.fees.FindPreviousCycle(ctx, exec, enrollmentID, cycle)
		switch {
		case err == nil:
			rollover = previous.Outstanding()
		case isNoRows(err):
		default:
			return storeError(err, "", "failed to load previous fee")
		}

		fee := models.Fee{
			StudentID:      enrollment.StudentID,
			EnrollmentID:   enrollment.ID,
			Amount:         placement.BaseFee,
			DiscountAmount: decimal.Zero,
			RolloverAmount: rollover,
			PaidAmount:     decimal.Zero,
			DueDate:        cycle,
			CycleDate:      cycle,
		}
		fee.Recalculate()

		discounts, err := s.discounts.ListByEnrollment(ctx, exec, enrollmentID)
		if err != nil {
			return storeError(err, "", "failed to load discounts")
		}
		monthIndex := models.MonthIndex(enrollment.JoiningDate, cycle)
		if discount, ok := PickDiscount(discounts, monthIndex); ok {
			fee, _ = ApplyDiscount(fee, discount, monthIndex)
		}

		if err := s.fees.Create(ctx, exec, &fee); err != nil {
			return feeInsertError(err)
		}
		created = &fee
		return nil
	})
	if err != nil {
		err = storeError(err, "", "failed to generate monthly invoice")
		if appErrors.IsRetryable(err) {
			s.metrics.RecordTxConflict("generate_monthly_invoice")
		}
		return nil, err
	}
	if created != nil {
		s.metrics.RecordInvoice(invoiceKindMonthly)
		s.cache.InvalidateStudentLedger(ctx, created.StudentID)
		log.Info("monthly invoice generated", zap.String("fee_id", created.ID), zap.String("final_amount", created.FinalAmount.StringFixed(2)))
	}
	return created, nil
}

// RunMonthlyBilling completes expired enrollments and bills every ACTIVE enrollment for the cycle of asOf.
// Only one run executes at a time.
func (s *BillingService) RunMonthlyBilling(ctx context.Context, asOf time.Time) (*models.BillingRunSummary, error) {
	if !s.running.TryLock() {
		return nil, appErrors.Clone(appErrors.ErrInvalidState, "billing run already in progress")
	}
	defer s.running.Unlock()

	summary := &models.BillingRunSummary{Cycle: models.FirstOfMonth(asOf), StartedAt: time.Now().UTC()}
	log := logger.FromContext(ctx, s.logger).With(zap.Time("cycle", summary.Cycle))

	completed, err := s.enrollments.CompleteExpired(ctx, summary.Cycle)
	if err != nil {
		return nil, storeError(err, "", "failed to complete expired enrollments")
	}
	summary.Completed = completed

	ids, err := s.enrollments.ListActiveIDs(ctx)
	if err != nil {
		return nil, storeError(err, "", "failed to list active enrollments")
	}
	summary.Enrollments = len(ids)

	var created, skipped, failed int64
	queue := jobs.NewQueue("monthly-billing", func(ctx context.Context, job jobs.Job) error {
		enrollmentID, ok := job.Payload.(string)
		if !ok {
			return fmt.Errorf("unexpected payload %T", job.Payload)
		}
		fee, err := s.GenerateMonthlyInvoice(ctx, enrollmentID, asOf)
		if err != nil {
			if appErrors.FromError(err).Code == appErrors.ErrDuplicateCycle.Code {
				atomic.AddInt64(&skipped, 1)
				return nil
			}
			return err
		}
		if fee == nil {
			atomic.AddInt64(&skipped, 1)
			return nil
		}
		atomic.AddInt64(&created, 1)
		return nil
	}, jobs.QueueConfig{
		Workers:    s.config.Workers,
		BufferSize: len(ids) + 1,
		MaxRetries: s.config.MaxRetries,
		RetryDelay: s.config.RetryDelay,
		Retryable:  appErrors.IsRetryable,
		OnFailure: func(job jobs.Job, err error) {
			atomic.AddInt64(&failed, 1)
			log.Error("monthly invoice failed", zap.Any("enrollment_id", job.Payload), zap.Int("attempts", job.Attempt), zap.Error(err))
		},
		Logger: log,
	})

	queue.Start(ctx)
	defer queue.Stop()

	for _, id := range ids {
		if err := queue.Enqueue(jobs.Job{ID: id, Type: jobTypeMonthlyFee, Payload: id}); err != nil {
			atomic.AddInt64(&failed, 1)
			log.Error("failed to enqueue monthly invoice", zap.String("enrollment_id", id), zap.Error(err))
		}
	}
	if err := queue.Drain(ctx); err != nil {
		return nil, appErrors.Internal(err, "billing run interrupted")
	}

	summary.Created = int(atomic.LoadInt64(&created))
	summary.Skipped = int(atomic.LoadInt64(&skipped))
	summary.Failed = int(atomic.LoadInt64(&failed))
	summary.FinishedAt = time.Now().UTC()
	s.metrics.ObserveBillingRun(summary.FinishedAt.Sub(summary.StartedAt))

	log.Info("monthly billing finished",
		zap.Int("completed", summary.Completed),
		zap.Int("enrollments", summary.Enrollments),
		zap.Int("created", summary.Created),
		zap.Int("skipped", summary.Skipped),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// ListFees returns fees with pagination metadata.
func (s *BillingService) ListFees(ctx context.Context, filter models.FeeFilter) ([]models.Fee, *models.Pagination, error) {
	fees, total, err := s.fees.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "", "failed to list fees")
	}
	return fees, paginationFor(filter.Page, filter.PageSize, total), nil
}

// StudentLedger summarises every fee of a student, served from cache when enabled.
func (s *BillingService) StudentLedger(ctx context.Context, studentID string) (*models.StudentLedger, error) {
	key := studentLedgerKey(studentID)
	var cached models.StudentLedger
	if hit, _ := s.cache.Get(ctx, key, &cached); hit {
		return &cached, nil
	}

	fees, err := s.fees.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, storeError(err, "", "failed to load student fees")
	}
	if len(fees) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "no fees found for student")
	}

	ledger := &models.StudentLedger{
		StudentID:        studentID,
		Fees:             fees,
		TotalBilled:      decimal.Zero,
		TotalDiscount:    decimal.Zero,
		TotalPaid:        decimal.Zero,
		TotalOutstanding: decimal.Zero,
		GeneratedAt:      time.Now().UTC(),
	}
	latest := make(map[string]models.Fee)
	for _, fee := range fees {
		ledger.TotalBilled = ledger.TotalBilled.Add(fee.Amount)
		ledger.TotalDiscount = ledger.TotalDiscount.Add(fee.DiscountAmount)
		ledger.TotalPaid = ledger.TotalPaid.Add(fee.PaidAmount)
		latest[fee.EnrollmentID] = fee
	}
	// Earlier shortfalls are carried into the latest cycle as rollover, so only that fee counts.
	for _, fee := range latest {
		ledger.TotalOutstanding = ledger.TotalOutstanding.Add(fee.Outstanding())
	}

	_ = s.cache.Set(ctx, key, ledger, s.config.LedgerTTL)
	return ledger, nil
}

const feeCycleConstraint = "fees_enrollment_cycle_uq"

func feeInsertError(err error) error {
	if database.IsUniqueViolation(err) && database.ConstraintName(err) == feeCycleConstraint {
		return appErrors.Wrap(err, appErrors.ErrDuplicateCycle.Code, appErrors.ErrDuplicateCycle.Status, appErrors.ErrDuplicateCycle.Message)
	}
	return storeError(err, "", "failed to create fee")
}

func paginationFor(page, size, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
