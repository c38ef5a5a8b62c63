package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/institute-api/internal/models"
	"github.com/noah-isme/institute-api/internal/repository"
)

// memDB is an in-memory store whose WithTx serialises transactions and restores a snapshot on error.
type memDB struct {
	txMu sync.Mutex
	mu   sync.Mutex

	rooms       map[string]models.Room
	slots       map[string]models.Slot
	courses     map[string]models.Course
	courseSlots map[string]models.CourseSlot
	enrollments map[string]models.Enrollment
	fees        map[string]models.Fee
	txns        []models.Transaction
	discounts   []models.StudentDiscount
	seq         int

	conflictsLeft int
}

type memSnapshot struct {
	enrollments map[string]models.Enrollment
	fees        map[string]models.Fee
	txns        []models.Transaction
	discounts   []models.StudentDiscount
}

func newMemDB() *memDB {
	db := &memDB{
		rooms:       map[string]models.Room{},
		slots:       map[string]models.Slot{},
		courses:     map[string]models.Course{},
		courseSlots: map[string]models.CourseSlot{},
		enrollments: map[string]models.Enrollment{},
		fees:        map[string]models.Fee{},
	}
	db.addRoom("room-a", "A", 2)
	db.addRoom("room-b", "B", 1)
	db.addSlot("slot-1", "room-a")
	db.addSlot("slot-2", "room-b")
	db.addCourse("course-1", "Guitar", 3000, 3)
	db.addCourse("course-2", "Piano", 2500, 6)
	db.addCourseSlot("cs-a", "course-1", "slot-1")
	db.addCourseSlot("cs-b", "course-2", "slot-1")
	db.addCourseSlot("cs-c", "course-1", "slot-2")
	db.addCourseSlot("cs-d", "course-1", "slot-1")
	return db
}

func (db *memDB) addRoom(id, name string, capacity int) {
	db.rooms[id] = models.Room{ID: id, Name: name, Capacity: capacity}
}

func (db *memDB) addSlot(id, roomID string) {
	db.slots[id] = models.Slot{ID: id, RoomID: roomID, Days: "MON,WED", StartTime: "09:00", EndTime: "11:00"}
}

func (db *memDB) addCourse(id, name string, baseFee int64, months int) {
	db.courses[id] = models.Course{ID: id, Name: name, BaseFee: decimal.NewFromInt(baseFee), DurationMonths: months, FeeType: models.FeeTypeMonthly}
}

func (db *memDB) addCourseSlot(id, courseID, slotID string) {
	db.courseSlots[id] = models.CourseSlot{ID: id, CourseID: courseID, SlotID: slotID, TeacherID: "teacher-" + id}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%d", prefix, db.seq)
}

func (db *memDB) WithTx(ctx context.Context, fn repository.TxFunc) error {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	db.mu.Lock()
	if db.conflictsLeft > 0 {
		db.conflictsLeft--
		db.mu.Unlock()
		return &pq.Error{Code: "40001", Message: "could not serialize access"}
	}
	snap := db.snapshot()
	db.mu.Unlock()

	if err := fn(ctx, nil); err != nil {
		db.mu.Lock()
		db.restore(snap)
		db.mu.Unlock()
		return err
	}
	return nil
}

func (db *memDB) snapshot() memSnapshot {
	snap := memSnapshot{
		enrollments: make(map[string]models.Enrollment, len(db.enrollments)),
		fees:        make(map[string]models.Fee, len(db.fees)),
		txns:        append([]models.Transaction(nil), db.txns...),
		discounts:   append([]models.StudentDiscount(nil), db.discounts...),
	}
	for k, v := range db.enrollments {
		snap.enrollments[k] = v
	}
	for k, v := range db.fees {
		snap.fees[k] = v
	}
	return snap
}

func (db *memDB) restore(snap memSnapshot) {
	db.enrollments = snap.enrollments
	db.fees = snap.fees
	db.txns = snap.txns
	db.discounts = snap.discounts
}

func (db *memDB) activeIn(slotID string) int {
	count := 0
	for _, e := range db.enrollments {
		if e.Status == models.EnrollmentStatusActive && db.courseSlots[e.CourseSlotID].SlotID == slotID {
			count++
		}
	}
	return count
}

type fakeSlots struct{ db *memDB }

func (f fakeSlots) LockForUpdate(ctx context.Context, exec sqlx.ExtContext, slotID string) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if _, ok := f.db.slots[slotID]; !ok {
		return fmt.Errorf("lock slot: %w", sql.ErrNoRows)
	}
	return nil
}

func (f fakeSlots) FindWithRoom(ctx context.Context, exec sqlx.ExtContext, slotID string) (*models.Slot, *models.Room, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	slot, ok := f.db.slots[slotID]
	if !ok {
		return nil, nil, fmt.Errorf("find slot: %w", sql.ErrNoRows)
	}
	room := f.db.rooms[slot.RoomID]
	return &slot, &room, nil
}

func (f fakeSlots) CountActive(ctx context.Context, exec sqlx.ExtContext, slotID string) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.db.activeIn(slotID), nil
}

func (f fakeSlots) CountActiveInCourseSlot(ctx context.Context, exec sqlx.ExtContext, courseSlotID string) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	count := 0
	for _, e := range f.db.enrollments {
		if e.Status == models.EnrollmentStatusActive && e.CourseSlotID == courseSlotID {
			count++
		}
	}
	return count, nil
}

type fakePlacements struct{ db *memDB }

func (f fakePlacements) FindPlacement(ctx context.Context, exec sqlx.ExtContext, courseSlotID string) (*models.ClassPlacement, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	cs, ok := f.db.courseSlots[courseSlotID]
	if !ok {
		return nil, fmt.Errorf("find course slot placement: %w", sql.ErrNoRows)
	}
	slot := f.db.slots[cs.SlotID]
	room := f.db.rooms[slot.RoomID]
	course := f.db.courses[cs.CourseID]
	return &models.ClassPlacement{
		CourseSlotID:   cs.ID,
		TeacherID:      cs.TeacherID,
		SlotID:         slot.ID,
		RoomID:         room.ID,
		RoomName:       room.Name,
		RoomCapacity:   room.Capacity,
		CourseID:       course.ID,
		CourseName:     course.Name,
		BaseFee:        course.BaseFee,
		DurationMonths: course.DurationMonths,
		FeeType:        course.FeeType,
	}, nil
}

type fakeEnrollments struct{ db *memDB }

func (f fakeEnrollments) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var list []models.EnrollmentDetail
	for _, e := range f.db.enrollments {
		if filter.StudentID != "" && e.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		list = append(list, models.EnrollmentDetail{Enrollment: e})
	}
	return list, len(list), nil
}

func (f fakeEnrollments) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e, ok := f.db.enrollments[id]
	if !ok {
		return nil, fmt.Errorf("find enrollment: %w", sql.ErrNoRows)
	}
	return &e, nil
}

func (f fakeEnrollments) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Enrollment, error) {
	return f.FindByID(ctx, exec, id)
}

func (f fakeEnrollments) Create(ctx context.Context, exec sqlx.ExtContext, enrollment *models.Enrollment) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if enrollment.ID == "" {
		enrollment.ID = f.db.nextID("enr")
	}
	f.db.enrollments[enrollment.ID] = *enrollment
	return nil
}

func (f fakeEnrollments) UpdateCourseSlot(ctx context.Context, exec sqlx.ExtContext, id, courseSlotID string, updatedAt time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e := f.db.enrollments[id]
	e.CourseSlotID = courseSlotID
	e.UpdatedAt = updatedAt
	f.db.enrollments[id] = e
	return nil
}

func (f fakeEnrollments) UpdateStatus(ctx context.Context, exec sqlx.ExtContext, id string, status models.EnrollmentStatus, endDate *time.Time, updatedAt time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e := f.db.enrollments[id]
	e.Status = status
	e.EndDate = endDate
	e.UpdatedAt = updatedAt
	f.db.enrollments[id] = e
	return nil
}

func (f fakeEnrollments) UpdateExtension(ctx context.Context, exec sqlx.ExtContext, id string, extendedDays int, endDate time.Time, updatedAt time.Time) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	e := f.db.enrollments[id]
	e.ExtendedDays = extendedDays
	e.EndDate = &endDate
	e.UpdatedAt = updatedAt
	f.db.enrollments[id] = e
	return nil
}

func (f fakeEnrollments) ListActiveIDs(ctx context.Context) ([]string, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var ids []string
	for id, e := range f.db.enrollments {
		if e.Status == models.EnrollmentStatusActive {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f fakeEnrollments) CompleteExpired(ctx context.Context, cutoff time.Time) (int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	completed := 0
	for id, e := range f.db.enrollments {
		if e.Status != models.EnrollmentStatusActive {
			continue
		}
		course := f.db.courses[f.db.courseSlots[e.CourseSlotID].CourseID]
		if e.ScheduledEnd(course.DurationMonths).Before(cutoff) {
			e.Status = models.EnrollmentStatusCompleted
			f.db.enrollments[id] = e
			completed++
		}
	}
	return completed, nil
}

type fakeFees struct{ db *memDB }

func (f fakeFees) Create(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, existing := range f.db.fees {
		if existing.EnrollmentID == fee.EnrollmentID && existing.CycleDate.Equal(fee.CycleDate) {
			return fmt.Errorf("create fee: %w", &pq.Error{Code: "23505", Constraint: "fees_enrollment_cycle_uq"})
		}
	}
	if fee.ID == "" {
		fee.ID = f.db.nextID("fee")
	}
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = time.Now().UTC()
	}
	f.db.fees[fee.ID] = *fee
	return nil
}

func (f fakeFees) ExistsForCycle(ctx context.Context, exec sqlx.ExtContext, enrollmentID string, cycle time.Time) (bool, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	for _, fee := range f.db.fees {
		if fee.EnrollmentID == enrollmentID && fee.CycleDate.Equal(cycle) {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeFees) sorted(match func(models.Fee) bool) []models.Fee {
	var list []models.Fee
	for _, fee := range f.db.fees {
		if match(fee) {
			list = append(list, fee)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].CycleDate.Before(list[j].CycleDate) })
	return list
}

func (f fakeFees) FindPreviousCycle(ctx context.Context, exec sqlx.ExtContext, enrollmentID string, cycle time.Time) (*models.Fee, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	list := f.sorted(func(fee models.Fee) bool { return fee.EnrollmentID == enrollmentID && fee.CycleDate.Before(cycle) })
	if len(list) == 0 {
		return nil, fmt.Errorf("find previous fee: %w", sql.ErrNoRows)
	}
	fee := list[len(list)-1]
	return &fee, nil
}

func (f fakeFees) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Fee, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	fee, ok := f.db.fees[id]
	if !ok {
		return nil, fmt.Errorf("find fee: %w", sql.ErrNoRows)
	}
	return &fee, nil
}

func (f fakeFees) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Fee, error) {
	return f.FindByID(ctx, exec, id)
}

func (f fakeFees) FindLatestForUpdate(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) (*models.Fee, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	list := f.sorted(func(fee models.Fee) bool { return fee.EnrollmentID == enrollmentID })
	if len(list) == 0 {
		return nil, fmt.Errorf("lock latest fee: %w", sql.ErrNoRows)
	}
	fee := list[len(list)-1]
	return &fee, nil
}

func (f fakeFees) UpdateDiscount(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored := f.db.fees[fee.ID]
	stored.DiscountAmount = fee.DiscountAmount
	stored.FinalAmount = fee.FinalAmount
	stored.Status = fee.Status
	f.db.fees[fee.ID] = stored
	return nil
}

func (f fakeFees) UpdatePayment(ctx context.Context, exec sqlx.ExtContext, fee *models.Fee) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	stored := f.db.fees[fee.ID]
	stored.PaidAmount = fee.PaidAmount
	stored.Status = fee.Status
	f.db.fees[fee.ID] = stored
	return nil
}

func (f fakeFees) List(ctx context.Context, filter models.FeeFilter) ([]models.Fee, int, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	list := f.sorted(func(fee models.Fee) bool {
		return (filter.StudentID == "" || fee.StudentID == filter.StudentID) &&
			(filter.EnrollmentID == "" || fee.EnrollmentID == filter.EnrollmentID) &&
			(filter.Status == "" || fee.Status == filter.Status)
	})
	return list, len(list), nil
}

func (f fakeFees) ListByStudent(ctx context.Context, studentID string) ([]models.Fee, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.sorted(func(fee models.Fee) bool { return fee.StudentID == studentID }), nil
}

func (f fakeFees) forEnrollment(enrollmentID string) []models.Fee {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	return f.sorted(func(fee models.Fee) bool { return fee.EnrollmentID == enrollmentID })
}

type fakeTransactions struct{ db *memDB }

func (f fakeTransactions) Create(ctx context.Context, exec sqlx.ExtContext, txn *models.Transaction) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if txn.ID == "" {
		txn.ID = f.db.nextID("txn")
	}
	f.db.txns = append(f.db.txns, *txn)
	return nil
}

func (f fakeTransactions) ListByFee(ctx context.Context, feeID string) ([]models.Transaction, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var list []models.Transaction
	for _, txn := range f.db.txns {
		if txn.FeeID == feeID {
			list = append(list, txn)
		}
	}
	return list, nil
}

type fakeDiscounts struct{ db *memDB }

func (f fakeDiscounts) Create(ctx context.Context, exec sqlx.ExtContext, discount *models.StudentDiscount) error {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	if discount.ID == "" {
		discount.ID = f.db.nextID("disc")
	}
	f.db.discounts = append(f.db.discounts, *discount)
	return nil
}

func (f fakeDiscounts) ListByEnrollment(ctx context.Context, exec sqlx.ExtContext, enrollmentID string) ([]models.StudentDiscount, error) {
	f.db.mu.Lock()
	defer f.db.mu.Unlock()
	var list []models.StudentDiscount
	for i := len(f.db.discounts) - 1; i >= 0; i-- {
		if f.db.discounts[i].EnrollmentID == enrollmentID {
			list = append(list, f.db.discounts[i])
		}
	}
	return list, nil
}

// engine wires every service over one memDB.
type engine struct {
	db          *memDB
	capacity    *CapacityService
	billing     *BillingService
	enrollments *EnrollmentService
	discounts   *DiscountService
	payments    *PaymentService
}

func newEngine(now time.Time) *engine {
	db := newMemDB()
	capacity := NewCapacityService(fakeSlots{db}, fakePlacements{db}, nil)
	billing := NewBillingService(db, fakeFees{db}, fakeEnrollments{db}, fakePlacements{db}, fakeDiscounts{db}, nil, nil,
		BillingConfig{Workers: 3, MaxRetries: 2, RetryDelay: time.Millisecond}, nil)
	enrollments := NewEnrollmentService(db, fakeEnrollments{db}, fakePlacements{db}, capacity, billing, nil, nil, nil, nil)
	enrollments.now = func() time.Time { return now }
	discounts := NewDiscountService(db, fakeDiscounts{db}, fakeEnrollments{db}, fakeFees{db}, fakePlacements{db}, nil, nil, nil)
	payments := NewPaymentService(db, fakeFees{db}, fakeTransactions{db}, nil, nil, nil, nil)
	return &engine{db: db, capacity: capacity, billing: billing, enrollments: enrollments, discounts: discounts, payments: payments}
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}
