package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/akudahewa/doc-spot-connect-sub000/pkg/timeofday"
)

// DefaultSlotMinutes applies when neither the override nor the recurring
// session specifies a slot duration. The resolver is the only place this
// default is applied.
const DefaultSlotMinutes = 15

// ResolvedSession is the effective working window for one doctor at one
// dispensary on one calendar date, after folding the weekday default and any
// date-specific override together.
type ResolvedSession struct {
	Open        bool   `json:"open"`
	Reason      Reason `json:"reason,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	EndTime     string `json:"end_time,omitempty"`
	MaxPatients int    `json:"max_patients,omitempty"`
	SlotMinutes int    `json:"slot_minutes,omitempty"`
}

// ResolveSession determines the effective session for the given date.
// A closed day is a normal outcome, reported via Open=false and a reason
// code, never an error.
func (s *Service) ResolveSession(ctx context.Context, doctorID, dispensaryID uuid.UUID, day Date) (*ResolvedSession, error) {
	override, err := s.schedules.GetOverrideByDate(ctx, doctorID, dispensaryID, day)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("look up override: %w", err)
	}
	if override != nil && override.Closed {
		return &ResolvedSession{Reason: ReasonAbsent}, nil
	}

	recurring, err := s.schedules.GetSessionByWeekday(ctx, doctorID, dispensaryID, day.Weekday())
	if errors.Is(err, ErrNotFound) {
		return &ResolvedSession{Reason: ReasonNoConfig}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("look up recurring session: %w", err)
	}

	resolved := &ResolvedSession{
		Open:        true,
		StartTime:   recurring.StartTime,
		EndTime:     recurring.EndTime,
		MaxPatients: recurring.MaxPatients,
		SlotMinutes: DefaultSlotMinutes,
	}
	if recurring.SlotMinutes != nil {
		resolved.SlotMinutes = *recurring.SlotMinutes
	}
	if override != nil {
		if override.StartTime != nil {
			resolved.StartTime = *override.StartTime
		}
		if override.EndTime != nil {
			resolved.EndTime = *override.EndTime
		}
		if override.MaxPatients != nil {
			resolved.MaxPatients = *override.MaxPatients
		}
		if override.SlotMinutes != nil {
			resolved.SlotMinutes = *override.SlotMinutes
		}
	}
	return resolved, nil
}

// AddressableSlots returns the upper bound on valid slot numbers for an open
// session: min(max patients, floor(session minutes / slot minutes)).
// A session whose end is not strictly after its start is invalid configuration.
func (rs *ResolvedSession) AddressableSlots() (int, error) {
	start, err := timeofday.Parse(rs.StartTime)
	if err != nil {
		return 0, &ConfigurationError{Detail: err.Error()}
	}
	end, err := timeofday.Parse(rs.EndTime)
	if err != nil {
		return 0, &ConfigurationError{Detail: err.Error()}
	}
	if end <= start {
		return 0, &ConfigurationError{Detail: fmt.Sprintf("end time %s must be after start time %s", rs.EndTime, rs.StartTime)}
	}
	if rs.SlotMinutes <= 0 {
		return 0, &ConfigurationError{Detail: fmt.Sprintf("slot duration must be positive, got %d", rs.SlotMinutes)}
	}

	slots := (end - start) / rs.SlotMinutes
	if rs.MaxPatients < slots {
		slots = rs.MaxPatients
	}
	if slots < 0 {
		slots = 0
	}
	return slots, nil
}
