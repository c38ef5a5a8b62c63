package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-api/internal/models"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
	"github.com/noah-isme/institute-api/pkg/logger"
)

type enrollmentRepository interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error
	UpdateCourseSlot(ctx context.Context, exec sqlx.ExtContext, id, courseSlotID string, updatedAt time.Time) error
	UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, endDate *time.Time, updatedAt time.Time) error
	UpdateExtension(ctx context.Context, exec sqlx.ExtContext, id string, extendedDays int, endDate time.Time, updatedAt time.Time) error
}

type seatLedger interface {
	Occupancy(ctx context.Context, exec sqlx.ExtContext, slotID string) (int, error)
	ReserveSeat(ctx context.Context, exec sqlx.ExtContext, placement *models.ClassPlacement) error
}

type initialInvoicer interface {
	GenerateInitialInvoice(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment, course models.Course) (*models.Fee, error)
}

// EnrollStudentRequest describes enrollment creation request.
type EnrollStudentRequest struct {
	StudentID    string `json:"student_id" validate:"required"`
	CourseSlotID string `json:"course_slot_id" validate:"required"`
}

// ChangeTimingRequest moves an enrollment to another class of the same course.
type ChangeTimingRequest struct {
	CourseSlotID string `json:"course_slot_id" validate:"required"`
}

// ExtendEnrollmentRequest pushes the end date of an enrollment.
type ExtendEnrollmentRequest struct {
	AdditionalDays int `json:"additional_days"`
}

// EnrollmentResult pairs a new enrollment with its first fee.
type EnrollmentResult struct {
	Enrollment models.Enrollment `json:"enrollment"`
	InitialFee models.Fee        `json:"initial_fee"`
}

// EnrollmentService orchestrates enrollment workflows.
type EnrollmentService struct {
	tx         txRunner
	repo       enrollmentRepository
	placements placementReader
	seats      seatLedger
	invoices   initialInvoicer
	cache      *CacheService
	metrics    *MetricsService
	validator  *validator.Validate
	logger     *zap.Logger
	now        func() time.Time
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(tx txRunner, repo enrollmentRepository, placements placementReader, seats seatLedger, invoices initialInvoicer, cache *CacheService, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{
		tx:         tx,
		repo:       repo,
		placements: placements,
		seats:      seats,
		invoices:   invoices,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, storeError(err, "", "failed to list enrollments")
	}
	return enrollments, paginationFor(filter.Page, filter.PageSize, total), nil
}

// Get returns a single enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		return nil, storeError(err, "enrollment not found", "failed to load enrollment")
	}
	return enrollment, nil
}

// Enroll seats a student in a course slot and issues the first fee in one transaction.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollStudentRequest) (result *EnrollmentResult, err error) {
	defer func() { s.observe(ctx, "enroll", err) }()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		placement, err := s.placements.FindPlacement(ctx, exec, req.CourseSlotID)
		if err != nil {
			return storeError(err, "course slot not found", "failed to load course slot")
		}
		if err := s.seats.ReserveSeat(ctx, exec, placement); err != nil {
			return err
		}

		now := s.now()
		end := now.AddDate(0, placement.DurationMonths, 0)
		enrollment := models.Enrollment{
			StudentID:    req.StudentID,
			CourseSlotID: placement.CourseSlotID,
			JoiningDate:  now,
			EndDate:      &end,
			Status:       models.EnrollmentStatusActive,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := s.repo.Create(ctx, exec, &enrollment); err != nil {
			return storeError(err, "", "failed to create enrollment")
		}

		fee, err := s.invoices.GenerateInitialInvoice(ctx, exec, &enrollment, placement.Course())
		if err != nil {
			return err
		}
		result = &EnrollmentResult{Enrollment: enrollment, InitialFee: *fee}
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to enroll student")
	}

	s.cache.InvalidateStudentLedger(ctx, req.StudentID)
	logger.FromContext(ctx, s.logger).Info("student enrolled",
		zap.String("enrollment_id", result.Enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("course_slot_id", req.CourseSlotID),
		zap.String("fee_id", result.InitialFee.ID))
	return result, nil
}

// ChangeTiming moves an ACTIVE enrollment to another course slot of the same course.
func (s *EnrollmentService) ChangeTiming(ctx context.Context, id string, req ChangeTimingRequest) (enrollment *models.Enrollment, err error) {
	defer func() { s.observe(ctx, "change_timing", err) }()
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timing payload")
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		current, err := s.repo.FindByIDForUpdate(ctx, exec, id)
		if err != nil {
			return storeError(err, "enrollment not found", "failed to load enrollment")
		}
		if current.Status != models.EnrollmentStatusActive {
			return appErrors.Clone(appErrors.ErrInvalidState, "only active enrollments can change timing")
		}
		if current.CourseSlotID == req.CourseSlotID {
			enrollment = current
			return nil
		}

		source, err := s.placements.FindPlacement(ctx, exec, current.CourseSlotID)
		if err != nil {
			return storeError(err, "course slot not found", "failed to load current course slot")
		}
		target, err := s.placements.FindPlacement(ctx, exec, req.CourseSlotID)
		if err != nil {
			return storeError(err, "target course slot not found", "failed to load target course slot")
		}
		if source.CourseID != target.CourseID {
			return appErrors.Clone(appErrors.ErrCourseMismatch, "target class belongs to a different course")
		}
		// Within the same slot the student keeps the seat they already hold.
		if source.SlotID != target.SlotID {
			if err := s.seats.ReserveSeat(ctx, exec, target); err != nil {
				return err
			}
		}

		now := s.now()
		if err := s.repo.UpdateCourseSlot(ctx, exec, id, target.CourseSlotID, now); err != nil {
			return storeError(err, "", "failed to change timing")
		}
		current.CourseSlotID = target.CourseSlotID
		current.UpdatedAt = now
		enrollment = current
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to change timing")
	}
	return enrollment, nil
}

// Drop marks an enrollment DROPPED and ends it now.
func (s *EnrollmentService) Drop(ctx context.Context, id string) (enrollment *models.Enrollment, err error) {
	defer func() { s.observe(ctx, "drop", err) }()
	err = s.tx.WithTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		current, err := s.repo.FindByIDForUpdate(ctx, exec, id)
		if err != nil {
			return storeError(err, "enrollment not found", "failed to load enrollment")
		}
		now := s.now()
		if err := s.repo.UpdateStatus(ctx, exec, id, models.EnrollmentStatusDropped, &now, now); err != nil {
			return storeError(err, "", "failed to drop enrollment")
		}
		current.Status = models.EnrollmentStatusDropped
		current.EndDate = &now
		current.UpdatedAt = now
		enrollment = current
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to drop enrollment")
	}
	return enrollment, nil
}

// Restore reactivates an enrollment and clears its end date. Capacity is not re-checked;
// an over-capacity slot is only reported in the logs.
func (s *EnrollmentService) Restore(ctx context.Context, id string) (enrollment *models.Enrollment, err error) {
	defer func() { s.observe(ctx, "restore", err) }()
	var placement *models.ClassPlacement
	var occupied int
	err = s.tx.WithTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		current, err := s.repo.FindByIDForUpdate(ctx, exec, id)
		if err != nil {
			return storeError(err, "enrollment not found", "failed to load enrollment")
		}
		now := s.now()
		if err := s.repo.UpdateStatus(ctx, exec, id, models.EnrollmentStatusActive, nil, now); err != nil {
			return storeError(err, "", "failed to restore enrollment")
		}
		current.Status = models.EnrollmentStatusActive
		current.EndDate = nil
		current.UpdatedAt = now
		enrollment = current

		placement, err = s.placements.FindPlacement(ctx, exec, current.CourseSlotID)
		if err != nil {
			return storeError(err, "course slot not found", "failed to load course slot")
		}
		occupied, err = s.seats.Occupancy(ctx, exec, placement.SlotID)
		return err
	})
	if err != nil {
		return nil, storeError(err, "", "failed to restore enrollment")
	}

	if occupied > placement.RoomCapacity {
		logger.FromContext(ctx, s.logger).Warn("restored enrollment exceeds room capacity",
			zap.String("enrollment_id", id),
			zap.String("slot_id", placement.SlotID),
			zap.String("room", placement.RoomName),
			zap.Int("occupied", occupied),
			zap.Int("capacity", placement.RoomCapacity))
	}
	return enrollment, nil
}

// Extend adds days to the end of an enrollment.
func (s *EnrollmentService) Extend(ctx context.Context, id string, req ExtendEnrollmentRequest) (enrollment *models.Enrollment, err error) {
	defer func() { s.observe(ctx, "extend", err) }()
	if req.AdditionalDays <= 0 {
		return nil, appErrors.Clone(appErrors.ErrInvalidAmount, "additional days must be greater than zero")
	}

	err = s.tx.WithTx(ctx, func(ctx context.Context, exec sqlx.ExtContext) error {
		current, err := s.repo.FindByIDForUpdate(ctx, exec, id)
		if err != nil {
			return storeError(err, "enrollment not found", "failed to load enrollment")
		}
		placement, err := s.placements.FindPlacement(ctx, exec, current.CourseSlotID)
		if err != nil {
			return storeError(err, "course slot not found", "failed to load course")
		}

		end := current.ScheduledEnd(placement.DurationMonths).AddDate(0, 0, req.AdditionalDays)
		days := current.ExtendedDays + req.AdditionalDays
		now := s.now()
		if err := s.repo.UpdateExtension(ctx, exec, id, days, end, now); err != nil {
			return storeError(err, "", "failed to extend enrollment")
		}
		current.ExtendedDays = days
		current.EndDate = &end
		current.UpdatedAt = now
		enrollment = current
		return nil
	})
	if err != nil {
		return nil, storeError(err, "", "failed to extend enrollment")
	}
	return enrollment, nil
}

func (s *EnrollmentService) observe(ctx context.Context, operation string, err error) {
	s.metrics.RecordEnrollmentOperation(operation, err)
	if err != nil && appErrors.IsRetryable(err) {
		s.metrics.RecordTxConflict(operation)
		logger.FromContext(ctx, s.logger).Warn("enrollment transaction conflict", zap.String("operation", operation), zap.Error(err))
	}
}
