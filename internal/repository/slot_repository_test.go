package repository

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/institute-api/internal/models"
)

func TestSlotRepositoryLockForUpdate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM slots WHERE id = $1 FOR UPDATE")).
		WithArgs("slot-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("slot-1"))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM slots WHERE id = $1 FOR UPDATE")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	require.NoError(t, repo.LockForUpdate(context.Background(), nil, "slot-1"))
	err := repo.LockForUpdate(context.Background(), nil, "missing")
	assert.True(t, errors.Is(err, sql.ErrNoRows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryCountActiveSpansCourseSlots(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM enrollments e\s+JOIN course_slots cs ON cs.id = e.course_slot_id\s+WHERE cs.slot_id = \$1 AND e.status = \$2`).
		WithArgs("slot-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM enrollments WHERE course_slot_id = $1 AND status = $2")).
		WithArgs("cs-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	occupied, err := repo.CountActive(context.Background(), nil, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, 2, occupied)

	enrolled, err := repo.CountActiveInCourseSlot(context.Background(), nil, "cs-1")
	require.NoError(t, err)
	assert.Equal(t, 1, enrolled)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSlotRepositoryFindWithRoom(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSlotRepository(db)

	rows := sqlmock.NewRows([]string{"id", "room_id", "days", "start_time", "end_time", "room_name", "room_capacity"}).
		AddRow("slot-1", "room-a", "MON,WED", "09:00", "11:00", "Room A", 2)
	mock.ExpectQuery("SELECT s.id, s.room_id .* FROM slots s\\s+JOIN rooms rm").WithArgs("slot-1").WillReturnRows(rows)

	slot, room, err := repo.FindWithRoom(context.Background(), nil, "slot-1")
	require.NoError(t, err)
	assert.Equal(t, "room-a", slot.RoomID)
	assert.Equal(t, "Room A", room.Name)
	assert.Equal(t, 2, room.Capacity)
	assert.NoError(t, mock.ExpectationsWereMet())
}
