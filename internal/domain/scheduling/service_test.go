package scheduling

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// -- Mock Repositories --

type mockScheduleRepo struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*RecurringSession
	overrides map[uuid.UUID]*ScheduleOverride
}

func newMockScheduleRepo() *mockScheduleRepo {
	return &mockScheduleRepo{
		sessions:  make(map[uuid.UUID]*RecurringSession),
		overrides: make(map[uuid.UUID]*ScheduleOverride),
	}
}

func (m *mockScheduleRepo) CreateSession(_ context.Context, s *RecurringSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.sessions {
		if existing.DoctorID == s.DoctorID && existing.DispensaryID == s.DispensaryID && existing.Weekday == s.Weekday {
			return ErrDuplicateSession
		}
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = time.Now()
	m.sessions[s.ID] = s
	return nil
}

func (m *mockScheduleRepo) GetSession(_ context.Context, id uuid.UUID) (*RecurringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *mockScheduleRepo) GetSessionByWeekday(_ context.Context, doctorID, dispensaryID uuid.UUID, weekday int) (*RecurringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.DoctorID == doctorID && s.DispensaryID == dispensaryID && s.Weekday == weekday {
			return s, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockScheduleRepo) UpdateSession(_ context.Context, s *RecurringSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return ErrNotFound
	}
	m.sessions[s.ID] = s
	return nil
}

func (m *mockScheduleRepo) DeleteSession(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(m.sessions, id)
	return nil
}

func (m *mockScheduleRepo) ListSessions(_ context.Context, doctorID, dispensaryID uuid.UUID) ([]*RecurringSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*RecurringSession
	for _, s := range m.sessions {
		if s.DoctorID == doctorID && s.DispensaryID == dispensaryID {
			result = append(result, s)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Weekday < result[j].Weekday })
	return result, nil
}

func (m *mockScheduleRepo) CreateOverride(_ context.Context, o *ScheduleOverride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.overrides {
		if existing.DoctorID == o.DoctorID && existing.DispensaryID == o.DispensaryID && existing.Day.Equal(o.Day.Time) {
			return ErrDuplicateOverride
		}
	}
	o.ID = uuid.New()
	o.CreatedAt = time.Now()
	o.UpdatedAt = time.Now()
	m.overrides[o.ID] = o
	return nil
}

func (m *mockScheduleRepo) GetOverride(_ context.Context, id uuid.UUID) (*ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.overrides[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o, nil
}

func (m *mockScheduleRepo) GetOverrideByDate(_ context.Context, doctorID, dispensaryID uuid.UUID, day Date) (*ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.overrides {
		if o.DoctorID == doctorID && o.DispensaryID == dispensaryID && o.Day.Equal(day.Time) {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockScheduleRepo) DeleteOverride(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.overrides[id]; !ok {
		return ErrNotFound
	}
	delete(m.overrides, id)
	return nil
}

func (m *mockScheduleRepo) ListOverrides(_ context.Context, doctorID, dispensaryID uuid.UUID, from, to Date) ([]*ScheduleOverride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*ScheduleOverride
	for _, o := range m.overrides {
		if o.DoctorID != doctorID || o.DispensaryID != dispensaryID {
			continue
		}
		if o.Day.Before(from.Time) || o.Day.After(to.Time) {
			continue
		}
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Day.Before(result[j].Day.Time) })
	return result, nil
}

// mockBookingRepo enforces the same active-slot uniqueness as the partial
// unique index, so allocator races behave as they do against Postgres.
type mockBookingRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*Booking
}

func newMockBookingRepo() *mockBookingRepo {
	return &mockBookingRepo{bookings: make(map[uuid.UUID]*Booking)}
}

func (m *mockBookingRepo) Insert(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.bookings {
		if existing.Active() &&
			existing.DoctorID == b.DoctorID && existing.DispensaryID == b.DispensaryID &&
			existing.Day.Equal(b.Day.Time) && existing.SlotNumber == b.SlotNumber {
			return ErrSlotTaken
		}
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = time.Now()
	copied := *b
	m.bookings[b.ID] = &copied
	return nil
}

func (m *mockBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *b
	return &copied, nil
}

func (m *mockBookingRepo) UpdateStatus(_ context.Context, b *Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bookings[b.ID]; !ok {
		return ErrNotFound
	}
	// The partial index also fires when an update re-activates a row whose
	// slot number is held by another active booking.
	if b.Active() {
		for id, existing := range m.bookings {
			if id != b.ID && existing.Active() &&
				existing.DoctorID == b.DoctorID && existing.DispensaryID == b.DispensaryID &&
				existing.Day.Equal(b.Day.Time) && existing.SlotNumber == b.SlotNumber {
				return ErrSlotTaken
			}
		}
	}
	copied := *b
	copied.UpdatedAt = time.Now()
	m.bookings[b.ID] = &copied
	return nil
}

func (m *mockBookingRepo) OccupiedSlots(_ context.Context, doctorID, dispensaryID uuid.UUID, day Date) ([]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var slots []int
	for _, b := range m.bookings {
		if b.Active() && b.DoctorID == doctorID && b.DispensaryID == dispensaryID && b.Day.Equal(day.Time) {
			slots = append(slots, b.SlotNumber)
		}
	}
	sort.Ints(slots)
	return slots, nil
}

func (m *mockBookingRepo) ListByDay(_ context.Context, doctorID, dispensaryID uuid.UUID, day Date, limit, offset int) ([]*Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []*Booking
	for _, b := range m.bookings {
		if b.DoctorID == doctorID && b.DispensaryID == dispensaryID && b.Day.Equal(day.Time) {
			copied := *b
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SlotNumber < result[j].SlotNumber })
	total := len(result)
	if offset > len(result) {
		offset = len(result)
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, total, nil
}

// -- Test Helpers --

func newTestService() (*Service, *mockScheduleRepo, *mockBookingRepo) {
	schedules := newMockScheduleRepo()
	bookings := newMockBookingRepo()
	return NewService(schedules, bookings), schedules, bookings
}

func intPtr(v int) *int { return &v }

func strPtr(v string) *string { return &v }
func mustDate(t *testing.T, s string) Date {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("parse date %s: %v", s, err)
	}
	return d
}

// 2025-06-02 is a Monday.
const testMonday = "2025-06-02"

func seedMondaySession(t *testing.T, svc *Service, doctorID, dispensaryID uuid.UUID) *RecurringSession {
	t.Helper()
	sess := &RecurringSession{
		DoctorID:     doctorID,
		DispensaryID: dispensaryID,
		Weekday:      1,
		StartTime:    "09:00",
		EndTime:      "10:00",
		MaxPatients:  10,
	}
	if err := svc.CreateSession(context.Background(), sess); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	return sess
}

// -- Recurring Session Tests --

func TestCreateSessionValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()

	cases := []struct {
		name string
		sess RecurringSession
	}{
		{"missing doctor", RecurringSession{DispensaryID: dispensaryID, Weekday: 1, StartTime: "09:00", EndTime: "10:00", MaxPatients: 5}},
		{"weekday out of range", RecurringSession{DoctorID: doctorID, DispensaryID: dispensaryID, Weekday: 7, StartTime: "09:00", EndTime: "10:00", MaxPatients: 5}},
		{"end before start", RecurringSession{DoctorID: doctorID, DispensaryID: dispensaryID, Weekday: 1, StartTime: "10:00", EndTime: "09:00", MaxPatients: 5}},
		{"end equals start", RecurringSession{DoctorID: doctorID, DispensaryID: dispensaryID, Weekday: 1, StartTime: "09:00", EndTime: "09:00", MaxPatients: 5}},
		{"zero capacity", RecurringSession{DoctorID: doctorID, DispensaryID: dispensaryID, Weekday: 1, StartTime: "09:00", EndTime: "10:00", MaxPatients: 0}},
		{"bad time format", RecurringSession{DoctorID: doctorID, DispensaryID: dispensaryID, Weekday: 1, StartTime: "9am", EndTime: "10:00", MaxPatients: 5}},
		{"zero slot minutes", RecurringSession{DoctorID: doctorID, DispensaryID: dispensaryID, Weekday: 1, StartTime: "09:00", EndTime: "10:00", MaxPatients: 5, SlotMinutes: intPtr(0)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sess := tc.sess
			if err := svc.CreateSession(ctx, &sess); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestCreateSessionRejectsDuplicateWeekday(t *testing.T) {
	svc, _, _ := newTestService()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	seedMondaySession(t, svc, doctorID, dispensaryID)

	dup := &RecurringSession{
		DoctorID:     doctorID,
		DispensaryID: dispensaryID,
		Weekday:      1,
		StartTime:    "14:00",
		EndTime:      "16:00",
		MaxPatients:  5,
	}
	if err := svc.CreateSession(context.Background(), dup); err != ErrDuplicateSession {
		t.Errorf("expected ErrDuplicateSession, got %v", err)
	}
}

func TestSessionCRUD(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	sess := seedMondaySession(t, svc, doctorID, dispensaryID)

	got, err := svc.GetSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.StartTime != "09:00" {
		t.Errorf("expected start 09:00, got %s", got.StartTime)
	}

	got.MaxPatients = 20
	if err := svc.UpdateSession(ctx, got); err != nil {
		t.Fatalf("UpdateSession: %v", err)
	}

	items, err := svc.ListSessions(ctx, doctorID, dispensaryID)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(items) != 1 || items[0].MaxPatients != 20 {
		t.Errorf("unexpected list result: %+v", items)
	}

	if err := svc.DeleteSession(ctx, sess.ID); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := svc.GetSession(ctx, sess.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

// -- Override Tests --

func TestCreateOverrideClosure(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)

	o := &ScheduleOverride{
		DoctorID:     doctorID,
		DispensaryID: dispensaryID,
		Day:          day,
		Closed:       true,
		Note:         strPtr("personal leave"),
	}
	if err := svc.CreateOverride(ctx, o); err != nil {
		t.Fatalf("CreateOverride: %v", err)
	}

	dup := &ScheduleOverride{DoctorID: doctorID, DispensaryID: dispensaryID, Day: day, Closed: true}
	if err := svc.CreateOverride(ctx, dup); err != ErrDuplicateOverride {
		t.Errorf("expected ErrDuplicateOverride, got %v", err)
	}
}

func TestCreateOverrideWithoutRecurringRequiresFullWindow(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	o := &ScheduleOverride{
		DoctorID:     uuid.New(),
		DispensaryID: uuid.New(),
		Day:          mustDate(t, testMonday),
		MaxPatients:  intPtr(5),
	}
	err := svc.CreateOverride(ctx, o)
	if !IsConfigurationError(err) {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestCreateOverrideCannotShrinkBelowBooked(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)
	seedMondaySession(t, svc, doctorID, dispensaryID)

	// Fill three slots.
	for i := 0; i < 3; i++ {
		_, rejection, err := svc.CreateBooking(ctx, CreateBookingInput{
			DoctorID: doctorID, DispensaryID: dispensaryID, Day: day,
			PatientName: "Patient", PatientPhone: "0770000000",
		})
		if err != nil || rejection != nil {
			t.Fatalf("booking %d: rejection=%v err=%v", i, rejection, err)
		}
	}

	o := &ScheduleOverride{
		DoctorID:     doctorID,
		DispensaryID: dispensaryID,
		Day:          day,
		MaxPatients:  intPtr(2),
	}
	err := svc.CreateOverride(ctx, o)
	if !IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}

	// Shrinking to exactly the booked count is allowed.
	o.MaxPatients = intPtr(3)
	if err := svc.CreateOverride(ctx, o); err != nil {
		t.Errorf("expected override at booked count to succeed, got %v", err)
	}
}

// -- Booking Lifecycle Tests --

func createTestBooking(t *testing.T, svc *Service, doctorID, dispensaryID uuid.UUID, day Date) *Booking {
	t.Helper()
	booking, rejection, err := svc.CreateBooking(context.Background(), CreateBookingInput{
		DoctorID: doctorID, DispensaryID: dispensaryID, Day: day,
		PatientName: "Nimal Perera", PatientPhone: "0771234567",
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if rejection != nil {
		t.Fatalf("unexpected rejection: %s", rejection.Reason)
	}
	return booking
}

func TestUpdateBookingStatus(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)
	seedMondaySession(t, svc, doctorID, dispensaryID)
	booking := createTestBooking(t, svc, doctorID, dispensaryID, day)

	for _, status := range []string{StatusCheckedIn, StatusCompleted} {
		updated, err := svc.UpdateBookingStatus(ctx, booking.ID, status, nil)
		if err != nil {
			t.Fatalf("UpdateBookingStatus(%s): %v", status, err)
		}
		if updated.Status != status {
			t.Errorf("expected status %s, got %s", status, updated.Status)
		}
	}

	if _, err := svc.UpdateBookingStatus(ctx, booking.ID, "archived", nil); err == nil {
		t.Error("expected error for invalid status")
	}
	if _, err := svc.UpdateBookingStatus(ctx, uuid.New(), StatusCheckedIn, nil); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateBookingStatusSameStatusIsNoError(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)
	seedMondaySession(t, svc, doctorID, dispensaryID)
	booking := createTestBooking(t, svc, doctorID, dispensaryID, day)

	if _, err := svc.UpdateBookingStatus(ctx, booking.ID, StatusScheduled, nil); err != nil {
		t.Errorf("setting the current status should succeed, got %v", err)
	}
}

func TestCancelBookingAppendsReasonAndIsIdempotent(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)
	seedMondaySession(t, svc, doctorID, dispensaryID)
	booking := createTestBooking(t, svc, doctorID, dispensaryID, day)

	cancelled, err := svc.CancelBooking(ctx, booking.ID, "patient unavailable")
	if err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Errorf("expected cancelled status, got %s", cancelled.Status)
	}
	if cancelled.Note == nil || *cancelled.Note != "cancelled: patient unavailable" {
		t.Errorf("unexpected note: %v", cancelled.Note)
	}

	// Second cancel is a no-op; note is not appended again.
	again, err := svc.CancelBooking(ctx, booking.ID, "other reason")
	if err != nil {
		t.Fatalf("second CancelBooking: %v", err)
	}
	if *again.Note != "cancelled: patient unavailable" {
		t.Errorf("note changed on repeat cancel: %q", *again.Note)
	}
}

func TestCancelFreesSlotForReuse(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)
	seedMondaySession(t, svc, doctorID, dispensaryID)

	first := createTestBooking(t, svc, doctorID, dispensaryID, day)
	second := createTestBooking(t, svc, doctorID, dispensaryID, day)
	if first.SlotNumber != 1 || second.SlotNumber != 2 {
		t.Fatalf("expected slots 1 and 2, got %d and %d", first.SlotNumber, second.SlotNumber)
	}

	if _, err := svc.CancelBooking(ctx, first.ID, "no show expected"); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}

	third := createTestBooking(t, svc, doctorID, dispensaryID, day)
	if third.SlotNumber != 1 {
		t.Errorf("expected freed slot 1 to be reused, got %d", third.SlotNumber)
	}

	// The cancelled record is preserved.
	kept, err := svc.GetBooking(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetBooking after cancel: %v", err)
	}
	if kept.Status != StatusCancelled {
		t.Errorf("expected cancelled record retained, got %s", kept.Status)
	}
}

func TestReactivateCancelledBookingBlockedWhenSlotReused(t *testing.T) {
	svc, _, bookings := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)
	seedMondaySession(t, svc, doctorID, dispensaryID)

	first := createTestBooking(t, svc, doctorID, dispensaryID, day) // slot 1
	if _, err := svc.CancelBooking(ctx, first.ID, "patient request"); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}
	replacement := createTestBooking(t, svc, doctorID, dispensaryID, day)
	if replacement.SlotNumber != 1 {
		t.Fatalf("expected replacement to reuse slot 1, got %d", replacement.SlotNumber)
	}

	// The freed number now belongs to the replacement; the cancelled booking
	// cannot come back as active.
	_, err := svc.UpdateBookingStatus(ctx, first.ID, StatusScheduled, nil)
	if !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}

	occupied, err := bookings.OccupiedSlots(ctx, doctorID, dispensaryID, day)
	if err != nil {
		t.Fatalf("OccupiedSlots: %v", err)
	}
	if len(occupied) != 1 || occupied[0] != 1 {
		t.Errorf("expected slot 1 held once, got %v", occupied)
	}
	kept, err := svc.GetBooking(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetBooking: %v", err)
	}
	if kept.Status != StatusCancelled {
		t.Errorf("expected booking to stay cancelled, got %s", kept.Status)
	}
}

func TestReactivateCancelledBookingWhenSlotStillFree(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)
	seedMondaySession(t, svc, doctorID, dispensaryID)

	booking := createTestBooking(t, svc, doctorID, dispensaryID, day)
	if _, err := svc.CancelBooking(ctx, booking.ID, "rescheduling"); err != nil {
		t.Fatalf("CancelBooking: %v", err)
	}

	restored, err := svc.UpdateBookingStatus(ctx, booking.ID, StatusScheduled, nil)
	if err != nil {
		t.Fatalf("UpdateBookingStatus: %v", err)
	}
	if restored.Status != StatusScheduled || restored.SlotNumber != 1 {
		t.Errorf("expected slot 1 restored as scheduled, got slot %d status %s", restored.SlotNumber, restored.Status)
	}
}

func TestListBookings(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	doctorID, dispensaryID := uuid.New(), uuid.New()
	day := mustDate(t, testMonday)
	seedMondaySession(t, svc, doctorID, dispensaryID)

	for i := 0; i < 3; i++ {
		createTestBooking(t, svc, doctorID, dispensaryID, day)
	}

	items, total, err := svc.ListBookings(ctx, doctorID, dispensaryID, day, 2, 0)
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if total != 3 {
		t.Errorf("expected total 3, got %d", total)
	}
	if len(items) != 2 {
		t.Errorf("expected 2 items with limit 2, got %d", len(items))
	}
	if items[0].SlotNumber != 1 {
		t.Errorf("expected slot order, got first slot %d", items[0].SlotNumber)
	}
}
