package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/akudahewa/doc-spot-connect-sub000/pkg/timeofday"
)

// maxAllocateAttempts bounds the optimistic retry loop when concurrent
// writers race for the same slot number. Contention is scoped to a single
// (doctor, dispensary, date), so a small bound is enough.
const maxAllocateAttempts = 3

// FreeSlot describes one unoccupied slot and its derived clock-time window.
type FreeSlot struct {
	SlotNumber int    `json:"slot_number"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Window     string `json:"window"`
}

// slotWindow derives the clock-time window for a slot number within an open
// session: offset = (n-1) * slotMinutes from the session start.
func slotWindow(session *ResolvedSession, slotNumber int) (FreeSlot, error) {
	start, err := timeofday.Parse(session.StartTime)
	if err != nil {
		return FreeSlot{}, &ConfigurationError{Detail: err.Error()}
	}
	offset := start + (slotNumber-1)*session.SlotMinutes
	return FreeSlot{
		SlotNumber: slotNumber,
		StartTime:  timeofday.Format(offset),
		EndTime:    timeofday.Format(offset + session.SlotMinutes),
		Window:     timeofday.Window(offset, session.SlotMinutes),
	}, nil
}

// firstFree returns the lowest slot number in [1, limit] not present in
// occupied, or 0 when every number is taken. First-fit keeps assigned
// numbers dense and deterministic for a fixed view of occupancy.
func firstFree(occupied []int, limit int) int {
	taken := make(map[int]bool, len(occupied))
	for _, n := range occupied {
		taken[n] = true
	}
	for n := 1; n <= limit; n++ {
		if !taken[n] {
			return n
		}
	}
	return 0
}

// CreateBookingInput is the explicit request record for booking creation.
// DoctorID, DispensaryID, Day, PatientName, and PatientPhone are required;
// PatientEmail and Note are optional.
type CreateBookingInput struct {
	DoctorID     uuid.UUID `json:"doctor_id"`
	DispensaryID uuid.UUID `json:"dispensary_id"`
	Day          Date      `json:"date"`
	PatientName  string    `json:"patient_name"`
	PatientPhone string    `json:"patient_phone"`
	PatientEmail *string   `json:"patient_email,omitempty"`
	Note         *string   `json:"note,omitempty"`
}

func (in *CreateBookingInput) validate() error {
	if in.DoctorID == uuid.Nil {
		return fmt.Errorf("doctor_id is required")
	}
	if in.DispensaryID == uuid.Nil {
		return fmt.Errorf("dispensary_id is required")
	}
	if in.Day.IsZero() {
		return fmt.Errorf("date is required")
	}
	if in.PatientName == "" {
		return fmt.Errorf("patient_name is required")
	}
	if in.PatientPhone == "" {
		return fmt.Errorf("patient_phone is required")
	}
	return nil
}

// CreateBooking resolves the session, picks the lowest free slot number, and
// commits a booking for it. A non-nil Rejection reports the normal negative
// outcomes (closed day, full session); error is reserved for invalid input,
// invalid configuration, and storage failures.
//
// The booking store's active-slot uniqueness makes the read-pick-insert
// sequence safe under concurrent callers: a loser of the race gets
// ErrSlotTaken, re-reads occupancy, and tries the next free number.
func (s *Service) CreateBooking(ctx context.Context, in CreateBookingInput) (*Booking, *Rejection, error) {
	if err := in.validate(); err != nil {
		return nil, nil, err
	}

	session, err := s.ResolveSession(ctx, in.DoctorID, in.DispensaryID, in.Day)
	if err != nil {
		return nil, nil, err
	}
	if !session.Open {
		return nil, &Rejection{Reason: session.Reason}, nil
	}
	total, err := session.AddressableSlots()
	if err != nil {
		return nil, nil, err
	}

	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		occupied, err := s.bookings.OccupiedSlots(ctx, in.DoctorID, in.DispensaryID, in.Day)
		if err != nil {
			return nil, nil, fmt.Errorf("read occupancy: %w", err)
		}
		if len(occupied) >= total {
			return nil, &Rejection{Reason: ReasonFull}, nil
		}
		number := firstFree(occupied, total)
		if number == 0 {
			return nil, &Rejection{Reason: ReasonFull}, nil
		}
		slot, err := slotWindow(session, number)
		if err != nil {
			return nil, nil, err
		}

		booking := &Booking{
			DoctorID:     in.DoctorID,
			DispensaryID: in.DispensaryID,
			Day:          in.Day,
			SlotNumber:   slot.SlotNumber,
			StartTime:    slot.StartTime,
			EndTime:      slot.EndTime,
			PatientName:  in.PatientName,
			PatientPhone: in.PatientPhone,
			PatientEmail: in.PatientEmail,
			Status:       StatusScheduled,
			Note:         in.Note,
		}
		err = s.bookings.Insert(ctx, booking)
		if err == nil {
			return booking, nil, nil
		}
		if !errors.Is(err, ErrSlotTaken) {
			return nil, nil, fmt.Errorf("insert booking: %w", err)
		}
		// Lost the race for this number; re-read occupancy and retry.
	}
	return nil, nil, ErrServiceUnavailable
}

// NextAvailableSlot runs the allocation steps without committing. The result
// is advisory: a concurrent booking may take the number before the caller
// commits.
func (s *Service) NextAvailableSlot(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date) (*FreeSlot, *Rejection, error) {
	session, err := s.ResolveSession(ctx, doctorID, dispensaryID, day)
	if err != nil {
		return nil, nil, err
	}
	if !session.Open {
		return nil, &Rejection{Reason: session.Reason}, nil
	}
	total, err := session.AddressableSlots()
	if err != nil {
		return nil, nil, err
	}
	occupied, err := s.bookings.OccupiedSlots(ctx, doctorID, dispensaryID, day)
	if err != nil {
		return nil, nil, fmt.Errorf("read occupancy: %w", err)
	}
	number := firstFree(occupied, total)
	if number == 0 || len(occupied) >= total {
		return nil, &Rejection{Reason: ReasonFull}, nil
	}
	slot, err := slotWindow(session, number)
	if err != nil {
		return nil, nil, err
	}
	return &slot, nil, nil
}

// Availability is the read-only "what's free" view for one date.
type Availability struct {
	Open      bool             `json:"open"`
	Reason    Reason           `json:"reason,omitempty"`
	Session   *ResolvedSession `json:"session,omitempty"`
	FreeSlots []FreeSlot       `json:"free_slots"`
}

// GetAvailability lists every free slot for the date. Reads are advisory and
// may be slightly stale relative to concurrent bookings.
func (s *Service) GetAvailability(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date) (*Availability, error) {
	session, err := s.ResolveSession(ctx, doctorID, dispensaryID, day)
	if err != nil {
		return nil, err
	}
	if !session.Open {
		return &Availability{Reason: session.Reason, FreeSlots: []FreeSlot{}}, nil
	}
	total, err := session.AddressableSlots()
	if err != nil {
		return nil, err
	}
	occupied, err := s.bookings.OccupiedSlots(ctx, doctorID, dispensaryID, day)
	if err != nil {
		return nil, fmt.Errorf("read occupancy: %w", err)
	}
	taken := make(map[int]bool, len(occupied))
	for _, n := range occupied {
		taken[n] = true
	}

	free := make([]FreeSlot, 0, total)
	for n := 1; n <= total; n++ {
		if taken[n] {
			continue
		}
		slot, err := slotWindow(session, n)
		if err != nil {
			return nil, err
		}
		free = append(free, slot)
	}
	return &Availability{Open: true, Session: session, FreeSlots: free}, nil
}
