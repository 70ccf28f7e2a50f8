package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	schedules ScheduleRepository
	bookings  BookingRepository
}

func NewService(schedules ScheduleRepository, bookings BookingRepository) *Service {
	return &Service{schedules: schedules, bookings: bookings}
}

// -- Recurring sessions --

func validateSessionFields(weekday int, startTime, endTime string, maxPatients int, slotMinutes *int) error {
	if weekday < 0 || weekday > 6 {
		return &ConfigurationError{Detail: fmt.Sprintf("weekday must be 0-6, got %d", weekday)}
	}
	return validateWindowFields(startTime, endTime, maxPatients, slotMinutes)
}

func validateWindowFields(startTime, endTime string, maxPatients int, slotMinutes *int) error {
	trial := &ResolvedSession{
		Open:        true,
		StartTime:   startTime,
		EndTime:     endTime,
		MaxPatients: maxPatients,
		SlotMinutes: DefaultSlotMinutes,
	}
	if slotMinutes != nil {
		trial.SlotMinutes = *slotMinutes
	}
	if _, err := trial.AddressableSlots(); err != nil {
		return err
	}
	if maxPatients <= 0 {
		return &ConfigurationError{Detail: fmt.Sprintf("max patients must be positive, got %d", maxPatients)}
	}
	return nil
}

func (s *Service) CreateSession(ctx context.Context, sess *RecurringSession) error {
	if sess.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if sess.DispensaryID == uuid.Nil {
		return fmt.Errorf("dispensary_id is required")
	}
	if err := validateSessionFields(sess.Weekday, sess.StartTime, sess.EndTime, sess.MaxPatients, sess.SlotMinutes); err != nil {
		return err
	}
	return s.schedules.CreateSession(ctx, sess)
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*RecurringSession, error) {
	return s.schedules.GetSession(ctx, id)
}

func (s *Service) UpdateSession(ctx context.Context, sess *RecurringSession) error {
	if err := validateSessionFields(sess.Weekday, sess.StartTime, sess.EndTime, sess.MaxPatients, sess.SlotMinutes); err != nil {
		return err
	}
	return s.schedules.UpdateSession(ctx, sess)
}

func (s *Service) DeleteSession(ctx context.Context, id uuid.UUID) error {
	return s.schedules.DeleteSession(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context, doctorID, dispensaryID uuid.UUID) ([]*RecurringSession, error) {
	return s.schedules.ListSessions(ctx, doctorID, dispensaryID)
}

// -- Schedule overrides --

// CreateOverride records a full closure or a modified session for one date.
// A modified session may not shrink the effective capacity below the number
// of slots already booked for that date.
func (s *Service) CreateOverride(ctx context.Context, o *ScheduleOverride) error {
	if o.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if o.DispensaryID == uuid.Nil {
		return fmt.Errorf("dispensary_id is required")
	}
	if o.Day.IsZero() {
		return fmt.Errorf("date is required")
	}
	if !o.Closed {
		if err := s.checkOverrideCapacity(ctx, o); err != nil {
			return err
		}
	}
	return s.schedules.CreateOverride(ctx, o)
}

// checkOverrideCapacity validates a modified-session override against the
// recurring session it would merge with and against existing bookings.
func (s *Service) checkOverrideCapacity(ctx context.Context, o *ScheduleOverride) error {
	recurring, err := s.schedules.GetSessionByWeekday(ctx, o.DoctorID, o.DispensaryID, o.Day.Weekday())
	if errors.Is(err, ErrNotFound) {
		// No weekday config: the override alone must carry a full window.
		if o.StartTime == nil || o.EndTime == nil || o.MaxPatients == nil {
			return &ConfigurationError{Detail: "no recurring session for this weekday: override must set start_time, end_time, and max_patients"}
		}
		return validateWindowFields(*o.StartTime, *o.EndTime, *o.MaxPatients, o.SlotMinutes)
	}
	if err != nil {
		return fmt.Errorf("look up recurring session: %w", err)
	}

	merged := &ResolvedSession{
		Open:        true,
		StartTime:   recurring.StartTime,
		EndTime:     recurring.EndTime,
		MaxPatients: recurring.MaxPatients,
		SlotMinutes: DefaultSlotMinutes,
	}
	if recurring.SlotMinutes != nil {
		merged.SlotMinutes = *recurring.SlotMinutes
	}
	if o.StartTime != nil {
		merged.StartTime = *o.StartTime
	}
	if o.EndTime != nil {
		merged.EndTime = *o.EndTime
	}
	if o.MaxPatients != nil {
		merged.MaxPatients = *o.MaxPatients
	}
	if o.SlotMinutes != nil {
		merged.SlotMinutes = *o.SlotMinutes
	}

	total, err := merged.AddressableSlots()
	if err != nil {
		return err
	}
	occupied, err := s.bookings.OccupiedSlots(ctx, o.DoctorID, o.DispensaryID, o.Day)
	if err != nil {
		return fmt.Errorf("read occupancy: %w", err)
	}
	if len(occupied) > total {
		return &ConfigurationError{Detail: fmt.Sprintf("override capacity %d is below %d already-booked slots", total, len(occupied))}
	}
	return nil
}

func (s *Service) GetOverride(ctx context.Context, id uuid.UUID) (*ScheduleOverride, error) {
	return s.schedules.GetOverride(ctx, id)
}

func (s *Service) DeleteOverride(ctx context.Context, id uuid.UUID) error {
	return s.schedules.DeleteOverride(ctx, id)
}

func (s *Service) ListOverrides(ctx context.Context, doctorID, dispensaryID uuid.UUID, from, to Date) ([]*ScheduleOverride, error) {
	return s.schedules.ListOverrides(ctx, doctorID, dispensaryID, from, to)
}

// -- Booking lifecycle --

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

func (s *Service) ListBookings(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date, limit, offset int) ([]*Booking, int, error) {
	return s.bookings.ListByDay(ctx, doctorID, dispensaryID, day, limit, offset)
}

// UpdateBookingStatus moves a booking to any valid status. Setting the same
// status twice is not an error. Cancelling through here frees the slot
// number the same way CancelBooking does. Moving a cancelled booking back to
// an active status reclaims its slot number, which fails with ErrSlotTaken
// when another booking took the number in the meantime.
func (s *Service) UpdateBookingStatus(ctx context.Context, id uuid.UUID, status string, note *string) (*Booking, error) {
	if !validBookingStatuses[status] {
		return nil, fmt.Errorf("invalid booking status: %s", status)
	}
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == StatusCancelled && status != StatusCancelled {
		occupied, err := s.bookings.OccupiedSlots(ctx, booking.DoctorID, booking.DispensaryID, booking.Day)
		if err != nil {
			return nil, fmt.Errorf("read occupancy: %w", err)
		}
		for _, n := range occupied {
			if n == booking.SlotNumber {
				return nil, ErrSlotTaken
			}
		}
	}
	booking.Status = status
	if note != nil {
		booking.Note = note
	}
	if err := s.bookings.UpdateStatus(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}

// CancelBooking sets status=cancelled and appends the reason to the note.
// The record is preserved; its slot number becomes reusable immediately.
// Cancelling an already-cancelled booking is a no-op, not an error.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID, reason string) (*Booking, error) {
	booking, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if booking.Status == StatusCancelled {
		return booking, nil
	}
	booking.Status = StatusCancelled
	if reason != "" {
		entry := "cancelled: " + reason
		if booking.Note != nil && *booking.Note != "" {
			entry = *booking.Note + "\n" + entry
		}
		booking.Note = &entry
	}
	if err := s.bookings.UpdateStatus(ctx, booking); err != nil {
		return nil, err
	}
	return booking, nil
}
