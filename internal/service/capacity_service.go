package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/institute-api/internal/models"
	appErrors "github.com/noah-isme/institute-api/pkg/errors"
)

type slotStore interface {
	LockForUpdate(ctx context.Context, exec sqlx.ExtContext, slotID string) error
	FindWithRoom(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.Slot, *models.Room, error)
	CountActive(ctx context.Context, exec sqlx.ExtContext, slotID string) (int, error)
	CountActiveInCourseSlot(ctx context.Context, exec sqlx.ExtContext, courseSlotID string) (int, error)
}

type placementReader interface {
	FindPlacement(ctx context.Context, exec sqlx.ExtContext, courseSlotID string) (*models.ClassPlacement, error)
}

// CapacityService answers seat questions from committed enrollment rows. Nothing is cached.
type CapacityService struct {
	slots      slotStore
	placements placementReader
	logger     *zap.Logger
}

// NewCapacityService constructs CapacityService.
func NewCapacityService(slots slotStore, placements placementReader, logger *zap.Logger) *CapacityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CapacityService{slots: slots, placements: placements, logger: logger}
}

// Occupancy counts ACTIVE enrollments across every course slot sharing slotID.
func (s *CapacityService) Occupancy(ctx context.Context, exec sqlx.ExtContext, slotID string) (int, error) {
	count, err := s.slots.CountActive(ctx, exec, slotID)
	if err != nil {
		return 0, storeError(err, "", "failed to count slot occupancy")
	}
	return count, nil
}

// EffectiveCapacity is room capacity minus slot occupancy plus the seats this course slot already holds.
func (s *CapacityService) EffectiveCapacity(ctx context.Context, exec sqlx.ExtContext, placement *models.ClassPlacement) (int, error) {
	occupied, err := s.Occupancy(ctx, exec, placement.SlotID)
	if err != nil {
		return 0, err
	}
	enrolled, err := s.slots.CountActiveInCourseSlot(ctx, exec, placement.CourseSlotID)
	if err != nil {
		return 0, storeError(err, "", "failed to count course slot enrollments")
	}
	return placement.RoomCapacity - occupied + enrolled, nil
}

// ReserveSeat locks the slot row and fails with CAPACITY_EXCEEDED when the room is full.
// It must run inside the caller's transaction so the lock is held until commit.
func (s *CapacityService) ReserveSeat(ctx context.Context, exec sqlx.ExtContext, placement *models.ClassPlacement) error {
	if err := s.slots.LockForUpdate(ctx, exec, placement.SlotID); err != nil {
		return storeError(err, "slot not found", "failed to lock slot")
	}
	occupied, err := s.Occupancy(ctx, exec, placement.SlotID)
	if err != nil {
		return err
	}
	if occupied >= placement.RoomCapacity {
		return appErrors.Clone(appErrors.ErrCapacityExceeded,
			fmt.Sprintf("slot is full: %d/%d seats occupied in room %s", occupied, placement.RoomCapacity, placement.RoomName))
	}
	return nil
}

// SlotOccupancy returns the occupancy read model of a slot.
func (s *CapacityService) SlotOccupancy(ctx context.Context, slotID string) (*models.SlotOccupancy, error) {
	_, room, err := s.slots.FindWithRoom(ctx, nil, slotID)
	if err != nil {
		return nil, storeError(err, "slot not found", "failed to load slot")
	}
	occupied, err := s.Occupancy(ctx, nil, slotID)
	if err != nil {
		return nil, err
	}
	available := room.Capacity - occupied
	if available < 0 {
		available = 0
	}
	return &models.SlotOccupancy{
		SlotID:       slotID,
		RoomName:     room.Name,
		Capacity:     room.Capacity,
		Occupied:     occupied,
		Available:    available,
		CalculatedAt: time.Now().UTC(),
	}, nil
}

// CourseSlotCapacity returns the effective capacity read model of a course slot.
func (s *CapacityService) CourseSlotCapacity(ctx context.Context, courseSlotID string) (*models.CourseSlotCapacity, error) {
	placement, err := s.placements.FindPlacement(ctx, nil, courseSlotID)
	if err != nil {
		return nil, storeError(err, "course slot not found", "failed to load course slot")
	}
	occupied, err := s.Occupancy(ctx, nil, placement.SlotID)
	if err != nil {
		return nil, err
	}
	enrolled, err := s.slots.CountActiveInCourseSlot(ctx, nil, courseSlotID)
	if err != nil {
		return nil, storeError(err, "", "failed to count course slot enrollments")
	}
	return &models.CourseSlotCapacity{
		CourseSlotID:       courseSlotID,
		SlotID:             placement.SlotID,
		RoomCapacity:       placement.RoomCapacity,
		SlotOccupied:       occupied,
		CourseSlotEnrolled: enrolled,
		EffectiveCapacity:  placement.RoomCapacity - occupied + enrolled,
	}, nil
}
