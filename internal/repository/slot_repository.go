package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/institute-api/internal/models"
)

// SlotRepository answers seat questions about slots. Occupancy is always counted, never stored.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository constructs the repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

func (r *SlotRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// LockForUpdate takes a row lock on the slot so that concurrent seat checks serialise.
func (r *SlotRepository) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, slotID string) error {
	const query = `SELECT id FROM slots WHERE id = $1 FOR UPDATE`
	var id string
	if err := sqlx.GetContext(ctx, r.exec(exec), &id, query, slotID); err != nil {
		return fmt.Errorf("lock slot: %w", err)
	}
	return nil
}

// FindWithRoom returns a slot together with the room hosting it.
func (r *SlotRepository) FindWithRoom(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.Slot, *models.Room, error) {
	const query = `SELECT s.id, s.room_id, s.days, s.start_time, s.end_time, rm.name AS room_name, rm.capacity AS room_capacity
        FROM slots s
        JOIN rooms rm ON rm.id = s.room_id
        WHERE s.id = $1`
	var row struct {
		models.Slot
		RoomName     string `db:"room_name"`
		RoomCapacity int    `db:"room_capacity"`
	}
	if err := sqlx.GetContext(ctx, r.exec(exec), &row, query, slotID); err != nil {
		return nil, nil, fmt.Errorf("find slot: %w", err)
	}
	room := &models.Room{ID: row.RoomID, Name: row.RoomName, Capacity: row.RoomCapacity}
	slot := row.Slot
	return &slot, room, nil
}

// CountActive counts ACTIVE enrollments across every course slot sharing the slot.
func (r *SlotRepository) CountActive(ctx context.Context, exec sqlx.ExtContext, slotID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments e
        JOIN course_slots cs ON cs.id = e.course_slot_id
        WHERE cs.slot_id = $1 AND e.status = $2`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, slotID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count slot occupancy: %w", err)
	}
	return count, nil
}

// CountActiveInCourseSlot counts ACTIVE enrollments of a single course slot.
func (r *SlotRepository) CountActiveInCourseSlot(ctx context.Context, exec sqlx.ExtContext, courseSlotID string) (int, error) {
	const query = `SELECT COUNT(*) FROM enrollments WHERE course_slot_id = $1 AND status = $2`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, courseSlotID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("count course slot enrollments: %w", err)
	}
	return count, nil
}
