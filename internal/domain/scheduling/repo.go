package scheduling

import (
	"context"

	"github.com/google/uuid"
)

// ScheduleRepository is the configuration store boundary: recurring weekly
// sessions and date-specific overrides. Create methods enforce uniqueness of
// (doctor, dispensary, weekday) and (doctor, dispensary, date) respectively.
type ScheduleRepository interface {
	CreateSession(ctx context.Context, s *RecurringSession) error
	GetSession(ctx context.Context, id uuid.UUID) (*RecurringSession, error)
	GetSessionByWeekday(ctx context.Context, doctorID, dispensaryID uuid.UUID, weekday int) (*RecurringSession, error)
	UpdateSession(ctx context.Context, s *RecurringSession) error
	DeleteSession(ctx context.Context, id uuid.UUID) error
	ListSessions(ctx context.Context, doctorID, dispensaryID uuid.UUID) ([]*RecurringSession, error)

	CreateOverride(ctx context.Context, o *ScheduleOverride) error
	GetOverride(ctx context.Context, id uuid.UUID) (*ScheduleOverride, error)
	GetOverrideByDate(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date) (*ScheduleOverride, error)
	DeleteOverride(ctx context.Context, id uuid.UUID) error
	ListOverrides(ctx context.Context, doctorID, dispensaryID uuid.UUID, from, to Date) ([]*ScheduleOverride, error)
}

// BookingRepository is the booking store boundary. Insert must reject a
// duplicate active (doctor, dispensary, date, slot number) combination with
// ErrSlotTaken; that property is what makes the allocator's read-then-insert
// loop safe under concurrent writers.
type BookingRepository interface {
	Insert(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	UpdateStatus(ctx context.Context, b *Booking) error
	OccupiedSlots(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date) ([]int, error)
	ListByDay(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date, limit, offset int) ([]*Booking, int, error)
}
