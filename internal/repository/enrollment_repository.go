package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-api/internal/models"
)

const enrollmentColumns = `id, student_id, course_slot_id, joining_date, end_date, extended_days, status, created_at, updated_at`

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

func (r *EnrollmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN course_slots cs ON cs.id = e.course_slot_id
JOIN courses c ON c.id = cs.course_id
JOIN slots s ON s.id = cs.slot_id
JOIN rooms rm ON rm.id = s.room_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.CourseSlotID != "" {
		conditions = append(conditions, fmt.Sprintf("e.course_slot_id = $%d", len(args)+1))
		args = append(args, filter.CourseSlotID)
	}
	if filter.CourseID != "" {
		conditions = append(conditions, fmt.Sprintf("cs.course_id = $%d", len(args)+1))
		args = append(args, filter.CourseID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"joining_date": "e.joining_date",
		"end_date":     "e.end_date",
		"course_name":  "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.joining_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page, size := normalisePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.course_slot_id, e.joining_date, e.end_date, e.extended_days, e.status,
        e.created_at, e.updated_at, c.id AS course_id, c.name AS course_name, s.id AS slot_id, rm.name AS room_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id); err != nil {
		return nil, fmt.Errorf("find enrollment: %w", err)
	}
	return &enrollment, nil
}

// FindByIDForUpdate returns an enrollment and locks its row until the transaction ends.
func (r *EnrollmentRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	query := `SELECT ` + enrollmentColumns + ` FROM enrollments WHERE id = $1 FOR UPDATE`
	var enrollment models.Enrollment
	if err := sqlx.GetContext(ctx, r.exec(exec), &enrollment, query, id); err != nil {
		return nil, fmt.Errorf("lock enrollment: %w", err)
	}
	return &enrollment, nil
}

// Create persists a new enrollment record.
func (r *EnrollmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if enrollment.JoiningDate.IsZero() {
		enrollment.JoiningDate = now
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	if enrollment.CreatedAt.IsZero() {
		enrollment.CreatedAt = now
	}
	enrollment.UpdatedAt = now

	const query = `INSERT INTO enrollments (id, student_id, course_slot_id, joining_date, end_date, extended_days, status, created_at, updated_at)
        VALUES (:id, :student_id, :course_slot_id, :joining_date, :end_date, :extended_days, :status, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, enrollment); err != nil {
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// UpdateCourseSlot moves an enrollment to another course slot.
func (r *EnrollmentRepository) UpdateCourseSlot(ctx context.Context, exec sqlx.ExtContext, id, courseSlotID string, updatedAt time.Time) error {
	const query = `UPDATE enrollments SET course_slot_id = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, courseSlotID, updatedAt); err != nil {
		return fmt.Errorf("change enrollment course slot: %w", err)
	}
	return nil
}

// UpdateStatus updates status and end date for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, endDate *time.Time, updatedAt time.Time) error {
	const query = `UPDATE enrollments SET status = $2, end_date = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, status, endDate, updatedAt); err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	return nil
}

// UpdateExtension stores the accumulated extension and the resulting end date.
func (r *EnrollmentRepository) UpdateExtension(ctx context.Context, exec sqlx.ExtContext, id string, extendedDays int, endDate time.Time, updatedAt time.Time) error {
	const query = `UPDATE enrollments SET extended_days = $2, end_date = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, extendedDays, endDate, updatedAt); err != nil {
		return fmt.Errorf("extend enrollment: %w", err)
	}
	return nil
}

// ListActiveIDs returns the IDs of every ACTIVE enrollment.
func (r *EnrollmentRepository) ListActiveIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT id FROM enrollments WHERE status = $1 ORDER BY joining_date`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list active enrollments: %w", err)
	}
	return ids, nil
}

// CompleteExpired marks ACTIVE enrollments whose scheduled end precedes cutoff as COMPLETED.
// A missing end date falls back to joining date plus course duration and extension.
func (r *EnrollmentRepository) CompleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	const query = `UPDATE enrollments e SET status = $1, updated_at = $3
        FROM course_slots cs JOIN courses c ON c.id = cs.course_id
        WHERE cs.id = e.course_slot_id AND e.status = $2
        AND COALESCE(e.end_date, e.joining_date + make_interval(months => c.duration_months, days => e.extended_days)) < $4`
	res, err := r.db.ExecContext(ctx, query, models.EnrollmentStatusCompleted, models.EnrollmentStatusActive, time.Now().UTC(), cutoff)
	if err != nil {
		return 0, fmt.Errorf("complete expired enrollments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("complete expired enrollments rows: %w", err)
	}
	return int(affected), nil
}

func normalisePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
