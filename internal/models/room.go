package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Room is a physical room whose seats are shared by every slot it hosts.
type Room struct {
	ID       string `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Capacity int    `db:"capacity" json:"capacity"`
}

// Slot is a recurring time block tied to exactly one room.
type Slot struct {
	ID        string `db:"id" json:"id"`
	RoomID    string `db:"room_id" json:"room_id"`
	Days      string `db:"days" json:"days"`
	StartTime string `db:"start_time" json:"start_time"`
	EndTime   string `db:"end_time" json:"end_time"`
}

// FeeType describes how a course is charged.
type FeeType string

// Supported fee types.
const (
	FeeTypeMonthly FeeType = "MONTHLY"
)

// Course is an offering with a monthly base fee and a nominal duration.
type Course struct {
	ID             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	BaseFee        decimal.Decimal `db:"base_fee" json:"base_fee"`
	DurationMonths int             `db:"duration_months" json:"duration_months"`
	FeeType        FeeType         `db:"fee_type" json:"fee_type"`
}

// CourseSlot is a scheduled class: one course taught in one slot by one teacher.
// Several course slots may reference the same slot.
type CourseSlot struct {
	ID        string `db:"id" json:"id"`
	CourseID  string `db:"course_id" json:"course_id"`
	SlotID    string `db:"slot_id" json:"slot_id"`
	TeacherID string `db:"teacher_id" json:"teacher_id"`
}

// ClassPlacement joins a course slot with its slot, room and course.
type ClassPlacement struct {
	CourseSlotID   string          `db:"course_slot_id" json:"course_slot_id"`
	TeacherID      string          `db:"teacher_id" json:"teacher_id"`
	SlotID         string          `db:"slot_id" json:"slot_id"`
	RoomID         string          `db:"room_id" json:"room_id"`
	RoomName       string          `db:"room_name" json:"room_name"`
	RoomCapacity   int             `db:"room_capacity" json:"room_capacity"`
	CourseID       string          `db:"course_id" json:"course_id"`
	CourseName     string          `db:"course_name" json:"course_name"`
	BaseFee        decimal.Decimal `db:"base_fee" json:"base_fee"`
	DurationMonths int             `db:"duration_months" json:"duration_months"`
	FeeType        FeeType         `db:"fee_type" json:"fee_type"`
}

// Course returns the course part of the placement.
func (p ClassPlacement) Course() Course {
	return Course{ID: p.CourseID, Name: p.CourseName, BaseFee: p.BaseFee, DurationMonths: p.DurationMonths, FeeType: p.FeeType}
}

// SlotOccupancy is the read model served to the settings screens.
type SlotOccupancy struct {
	SlotID       string    `json:"slot_id"`
	RoomName     string    `json:"room_name"`
	Capacity     int       `json:"capacity"`
	Occupied     int       `json:"occupied"`
	Available    int       `json:"available"`
	CalculatedAt time.Time `json:"calculated_at"`
}

// CourseSlotCapacity reports the seats left for a single course slot.
type CourseSlotCapacity struct {
	CourseSlotID       string `json:"course_slot_id"`
	SlotID             string `json:"slot_id"`
	RoomCapacity       int    `json:"room_capacity"`
	SlotOccupied       int    `json:"slot_occupied"`
	CourseSlotEnrolled int    `json:"course_slot_enrolled"`
	EffectiveCapacity  int    `json:"effective_capacity"`
}
