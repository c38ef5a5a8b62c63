package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses.
const (
	EnrollmentStatusActive    EnrollmentStatus = "ACTIVE"
	EnrollmentStatusDropped   EnrollmentStatus = "DROPPED"
	EnrollmentStatusCompleted EnrollmentStatus = "COMPLETED"
)

// Enrollment seats a student in a course slot. It is never hard-deleted.
type Enrollment struct {
	ID           string           `db:"id" json:"id"`
	StudentID    string           `db:"student_id" json:"student_id"`
	CourseSlotID string           `db:"course_slot_id" json:"course_slot_id"`
	JoiningDate  time.Time        `db:"joining_date" json:"joining_date"`
	EndDate      *time.Time       `db:"end_date" json:"end_date,omitempty"`
	ExtendedDays int              `db:"extended_days" json:"extended_days"`
	Status       EnrollmentStatus `db:"status" json:"status"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updated_at"`
}

// ScheduledEnd returns the end date, deriving it from the course duration when unset.
func (e Enrollment) ScheduledEnd(durationMonths int) time.Time {
	if e.EndDate != nil {
		return *e.EndDate
	}
	return e.JoiningDate.AddDate(0, durationMonths, e.ExtendedDays)
}

// EnrollmentDetail enriches Enrollment with course and room info.
type EnrollmentDetail struct {
	Enrollment
	CourseID   string `db:"course_id" json:"course_id"`
	CourseName string `db:"course_name" json:"course_name"`
	SlotID     string `db:"slot_id" json:"slot_id"`
	RoomName   string `db:"room_name" json:"room_name"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID    string
	CourseSlotID string
	CourseID     string
	Status       EnrollmentStatus
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
