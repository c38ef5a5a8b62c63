package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-api/internal/models"
)

// CourseSlotRepository reads scheduled classes.
type CourseSlotRepository struct {
	db *sqlx.DB
}

// NewCourseSlotRepository constructs the repository.
func NewCourseSlotRepository(db *sqlx.DB) *CourseSlotRepository {
	return &CourseSlotRepository{db: db}
}

func (r *CourseSlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindPlacement loads a course slot with its slot, room and course.
func (r *CourseSlotRepository) FindPlacement(ctx context.Context, exec sqlx.ExtContext, courseSlotID string) (*models.ClassPlacement, error) {
	const query = `SELECT cs.id AS course_slot_id, cs.teacher_id, s.id AS slot_id, rm.id AS room_id, rm.name AS room_name,
        rm.capacity AS room_capacity, c.id AS course_id, c.name AS course_name, c.base_fee, c.duration_months, c.fee_type
        FROM course_slots cs
        JOIN slots s ON s.id = cs.slot_id
        JOIN rooms rm ON rm.id = s.room_id
        JOIN courses c ON c.id = cs.course_id
        WHERE cs.id = $1`
	var placement models.ClassPlacement
	if err := sqlx.GetContext(ctx, r.exec(exec), &placement, query, courseSlotID); err != nil {
		return nil, fmt.Errorf("find course slot placement: %w", err)
	}
	return &placement, nil
}
