package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-api/internal/models"
)

const feeColumns = `id, student_id, enrollment_id, amount, discount_amount, final_amount, rollover_amount, paid_amount,
        due_date, cycle_date, status, created_at, updated_at`

// FeeRepository persists monthly invoices.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs the repository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

func (r *FeeRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a fee. A second fee for the same enrollment and cycle violates fees_enrollment_cycle_uq.
func (r *FeeRepository) Create(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = now
	}
	fee.UpdatedAt = now

	const query = `INSERT INTO fees (id, student_id, enrollment_id, amount, discount_amount, final_amount, rollover_amount, paid_amount, due_date, cycle_date, status, created_at, updated_at)
        VALUES (:id, :student_id, :enrollment_id, :amount, :discount_amount, :final_amount, :rollover_amount, :paid_amount, :due_date, :cycle_date, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, fee); err != nil {
		return fmt.Errorf("create fee: %w", err)
	}
	return nil
}

// ExistsForCycle reports whether the enrollment already has a fee for the cycle.
func (r *FeeRepository) ExistsForCycle(ctx context.Context, exec sqlx.ExtContext, enrollmentID string, cycle time.Time) (bool, error) {
	const query = `SELECT 1 FROM fees WHERE enrollment_id = $1 AND cycle_date = $2 LIMIT 1`
	var exists int
	if err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, enrollmentID, cycle); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("check fee cycle: %w", err)
	}
	return true, nil
}

// FindPreviousCycle returns the latest fee billed before cycle, or sql.ErrNoRows.
func (r *FeeRepository) FindPreviousCycle(ctx context.Context, exec sqlx.ExtContext, enrollmentID string, cycle time.Time) (*models.Fee, error) {
	query := `SELECT ` + feeColumns + ` FROM fees WHERE enrollment_id = $1 AND cycle_date < $2 ORDER BY cycle_date DESC LIMIT 1`
	var fee models.Fee
	if err := sqlx.GetContext(ctx, r.exec(exec), &fee, query, enrollmentID, cycle); err != nil {
		return nil, fmt.Errorf("find previous fee: %w", err)
	}
	return &fee, nil
}

// FindByID returns a fee by identifier.
func (r *FeeRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Fee, error) {
	query := `SELECT ` + feeColumns + ` FROM fees WHERE id = $1`
	var fee models.Fee
	if err := sqlx.GetContext(ctx, r.exec(exec), &fee, query, id); err != nil {
		return nil, fmt.Errorf("find fee: %w", err)
	}
	return &fee, nil
}

// FindByIDForUpdate returns a fee and locks its row until the transaction ends.
func (r *FeeRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Fee, error) {
	query := `SELECT ` + feeColumns + ` FROM fees WHERE id = $1 FOR UPDATE`
	var fee models.Fee
	if err := sqlx.GetContext(ctx, r.exec(exec), &fee, query, id); err != nil {
		return nil, fmt.Errorf("lock fee: %w", err)
	}
	return &fee, nil
}

// FindLatestForUpdate locks the most recent cycle fee of an enrollment.
func (r *FeeRepository) FindLatestForUpdate(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.Fee, error) {
	query := `SELECT ` + feeColumns + ` FROM fees WHERE enrollment_id = $1 ORDER BY cycle_date DESC LIMIT 1 FOR UPDATE`
	var fee models.Fee
	if err := sqlx.GetContext(ctx, r.exec(exec), &fee, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("lock latest fee: %w", err)
	}
	return &fee, nil
}

// UpdateDiscount stores a recomputed discount, final amount and status.
func (r *FeeRepository) UpdateDiscount(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error {
	fee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fees SET discount_amount = :discount_amount, final_amount = :final_amount, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, fee); err != nil {
		return fmt.Errorf("update fee discount: %w", err)
	}
	return nil
}

// UpdatePayment stores the paid amount and derived status.
func (r *FeeRepository) UpdatePayment(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error {
	fee.UpdatedAt = time.Now().UTC()
	const query = `UPDATE fees SET paid_amount = :paid_amount, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, fee); err != nil {
		return fmt.Errorf("update fee payment: %w", err)
	}
	return nil
}

// List returns fees filtered by the provided criteria.
func (r *FeeRepository) List(ctx context.Context, filter models.FeeFilter) ([]models.Fee, int, error) {
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.EnrollmentID != "" {
		conditions = append(conditions, fmt.Sprintf("enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.CycleFrom != nil {
		conditions = append(conditions, fmt.Sprintf("cycle_date >= $%d", len(args)+1))
		args = append(args, *filter.CycleFrom)
	}
	if filter.CycleTo != nil {
		conditions = append(conditions, fmt.Sprintf("cycle_date <= $%d", len(args)+1))
		args = append(args, *filter.CycleTo)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}
	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s FROM fees%s ORDER BY cycle_date DESC, created_at DESC LIMIT %d OFFSET %d", feeColumns, clause, size, offset)
	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list fees: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM fees"+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("count fees: %w", err)
	}
	return fees, total, nil
}

// ListByStudent returns every fee of a student ordered by cycle.
func (r *FeeRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Fee, error) {
	query := `SELECT ` + feeColumns + ` FROM fees WHERE student_id = $1 ORDER BY cycle_date, created_at`
	var fees []models.Fee
	if err := r.db.SelectContext(ctx, &fees, query, studentID); err != nil {
		return nil, fmt.Errorf("list student fees: %w", err)
	}
	return fees, nil
}
