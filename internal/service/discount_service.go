package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-api/internal/models"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
)

var hundred = decimal.NewFromInt(100)

type discountStore interface {
	Create(ctx context.Context, exec sqlx.ExtContext, discount *models.StudentDiscount) error
	ListByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) ([]models.StudentDiscount, error)
}

type discountEnrollmentReader interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
}

type discountFeeStore interface {
	FindLatestForUpdate(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.Fee, error)
	UpdateDiscount(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error
}

// CreateDiscountRequest grants a discount to an enrollment.
type CreateDiscountRequest struct {
	EnrollmentID        string                  `json:"-" validate:"required"`
	DiscountType        models.DiscountType     `json:"discount_type" validate:"required,oneof=FIXED PERCENTAGE"`
	DiscountAmount      decimal.Decimal         `json:"discount_amount"`
	DiscountDuration    models.DiscountDuration `json:"discount_duration" validate:"required,oneof=SINGLE_MONTH ENTIRE_COURSE"`
	ApplicableFromMonth int                     `json:"applicable_from_month" validate:"required,min=1"`
	CreatedBy           string                  `json:"-"`
}

// DiscountResult returns the stored discount and, when it applied, the adjusted current fee.
type DiscountResult struct {
	Discount   models.StudentDiscount `json:"discount"`
	AppliedFee *models.Fee            `json:"applied_fee,omitempty"`
}

// DiscountService grants discounts and computes their effect on fees.
type DiscountService struct {
	tx          txRunner
	discounts   discountStore
	enrollments discountEnrollmentReader
	fees        discountFeeStore
	placements  placementReader
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewDiscountService constructs DiscountService.
func NewDiscountService(tx txRunner, discounts discountStore, enrollments discountEnrollmentReader, fees discountFeeStore, placements placementReader, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *DiscountService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DiscountService{tx: tx, discounts: discounts, enrollments: enrollments, fees: fees, placements: placements, cache: cache, validator: validate, logger: logger}
}

// ApplyDiscount returns fee with discount applied when the discount covers monthIndex and the fee is not PAID.
// The second result reports whether anything changed.
func ApplyDiscount(fee models.Fee, discount models.StudentDiscount, monthIndex int) (models.Fee, bool) {
	if fee.Status == models.FeeStatusPaid || !discount.Covers(monthIndex) {
		return fee, false
	}

	gross := fee.Gross()
	var amount decimal.Decimal
	switch discount.DiscountType {
	case models.DiscountTypeFixed:
		amount = decimal.Min(discount.DiscountAmount, gross)
	case models.DiscountTypePercentage:
		amount = gross.Mul(discount.DiscountAmount).Div(hundred).Round(2)
	default:
		return fee, false
	}

	fee.DiscountAmount = amount
	fee.Recalculate()
	return fee, true
}

// PickDiscount returns the newest discount covering monthIndex. discounts must be ordered newest first.
func PickDiscount(discounts []models.StudentDiscount, monthIndex int) (models.StudentDiscount, bool) {
	for _, d := range discounts {
		if d.Covers(monthIndex) {
			return d, true
		}
	}
	return models.StudentDiscount{}, false
}

// CreateDiscount persists a discount and applies it to the enrollment's current fee when its window covers it.
func (s *DiscountService) CreateDiscount(ctx context.Context, req CreateDiscountRequest) (*DiscountResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid discount payload")
	}
	if !wholeCents(req.DiscountAmount) {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "discount amount cannot have more than 2 decimal places")
	}
	if !req.DiscountAmount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "discount amount must be greater than zero")
	}
	if req.DiscountType == models.DiscountTypePercentage && req.DiscountAmount.GreaterThan(hundred) {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "percentage discount cannot exceed 100")
	}

	var result DiscountResult
	err := s.tx.WithTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		enrollment, err := s.enrollments.FindByIDForUpdate(ctx, exec, req.EnrollmentID)
		if err != nil {
			return storeError(err, "enrollment not found", "failed to load enrollment")
		}
		placement, err := s.placements.FindPlacement(ctx, exec, enrollment.CourseSlotID)
		if err != nil {
			return storeError(err, "course slot not found", "failed to load course")
		}

		discount := models.StudentDiscount{
			StudentID:           enrollment.StudentID,
			EnrollmentID:        enrollment.ID,
			DiscountType:        req.DiscountType,
			DiscountAmount:      req.DiscountAmount.Round(2),
			DiscountDuration:    req.DiscountDuration,
			ApplicableFromMonth: req.ApplicableFromMonth,
			CreatedBy:           req.CreatedBy,
			CreatedAt:           time.Now().UTC(),
		}
		if req.DiscountDuration == models.DiscountEntireCourse {
			to := req.ApplicableFromMonth + placement.DurationMonths - 1
			discount.ApplicableToMonth = &to
		}
		if err := s.discounts.Create(ctx, exec, &discount); err != nil {
			return storeError(err, "", "failed to create discount")
		}
		result.Discount = discount

		current, err := s.fees.FindLatestForUpdate(ctx, exec, enrollment.ID)
		if err != nil {
			if isNoRows(err) {
				return nil
			}
			return storeError(err, "", "failed to load current fee")
		}
		updated, applied := ApplyDiscount(*current, discount, models.MonthIndex(enrollment.JoiningDate, current.CycleDate))
		if !applied {
			return nil
		}
		if err := s.fees.UpdateDiscount(ctx, exec, &updated); err != nil {
			return storeError(err, "", "failed to apply discount")
		}
		result.AppliedFee = &updated
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to create discount")
	}

	if result.AppliedFee != nil {
		s.cache.InvalidateStudentLedger(ctx, result.AppliedFee.StudentID)
	}
	s.logger.Info("discount created",
		zap.String("enrollment_id", req.EnrollmentID),
		zap.String("discount_id", result.Discount.ID),
		zap.Bool("applied_to_current_fee", result.AppliedFee != nil))
	return &result, nil
}

// ListDiscounts returns every discount granted to an enrollment, newest first.
func (s *DiscountService) ListDiscounts(ctx context.Context, enrollmentID string) ([]models.StudentDiscount, error) {
	discounts, err := s.discounts.ListByEnrollment(ctx, nil, enrollmentID)
	if err != nil {
		return nil, storeError(err, "", "failed to list discounts")
	}
	return discounts, nil
}
