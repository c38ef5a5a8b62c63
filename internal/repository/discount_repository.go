package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-api/internal/models"
)

// DiscountRepository persists student discounts.
type DiscountRepository struct {
	db *sqlx.DB
}

// NewDiscountRepository constructs the repository.
func NewDiscountRepository(db *sqlx.DB) *DiscountRepository {
	return &DiscountRepository{db: db}
}

// Create inserts a discount.
func (r *DiscountRepository) Create(ctx context.Context, exec sqlx.ExtContext, discount *models.StudentDiscount) error {
	if exec == nil {
		exec = r.db
	}
	if discount.ID == "" {
		discount.ID = uuid.NewString()
	}
	if discount.CreatedAt.IsZero() {
		discount.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO student_discounts (id, student_id, enrollment_id, discount_type, discount_amount, discount_duration, applicable_from_month, applicable_to_month, created_by, created_at)
        VALUES (:id, :student_id, :enrollment_id, :discount_type, :discount_amount, :discount_duration, :applicable_from_month, :applicable_to_month, :created_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, discount); err != nil {
		return fmt.Errorf("create discount: %w", err)
	}
	return nil
}

// ListByEnrollment returns discounts of an enrollment, newest first.
func (r *DiscountRepository) ListByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) ([]models.StudentDiscount, error) {
	if exec == nil {
		exec = r.db
	}
	const query = `SELECT id, student_id, enrollment_id, discount_type, discount_amount, discount_duration, applicable_from_month, applicable_to_month, created_by, created_at
        FROM student_discounts WHERE enrollment_id = $1 ORDER BY created_at DESC`
	var discounts []models.StudentDiscount
	if err := sqlx.SelectContext(ctx, exec, &discounts, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("list discounts: %w", err)
	}
	return discounts, nil
}
