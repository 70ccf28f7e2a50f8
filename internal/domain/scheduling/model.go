package scheduling

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Date is a timezone-naive calendar day. It marshals as "YYYY-MM-DD" and
// accepts RFC3339 timestamps on input, truncating them to the date component.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date {
	return Date{time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDate accepts "YYYY-MM-DD" or a full RFC3339 timestamp; timestamps are
// truncated to their date component.
func ParseDate(s string) (Date, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return NewDate(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NewDate(t), nil
	}
	return Date{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
}

// Weekday returns the day of week, 0=Sunday through 6=Saturday.
func (d Date) Weekday() int { return int(d.Time.Weekday()) }

func (d Date) String() string { return d.Format("2006-01-02") }

func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("invalid date value %s", b)
	}
	parsed, err := ParseDate(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

func (d Date) Value() (driver.Value, error) { return d.Time, nil }

func (d *Date) Scan(src interface{}) error {
	t, ok := src.(time.Time)
	if !ok {
		return fmt.Errorf("cannot scan %T into Date", src)
	}
	*d = NewDate(t)
	return nil
}

// RecurringSession is the weekly working window for a doctor at a dispensary.
// One active row exists per (doctor, dispensary, weekday); the store rejects
// duplicates. Read-only input to the allocator.
type RecurringSession struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DispensaryID uuid.UUID `db:"dispensary_id" json:"dispensary_id"`
	Weekday      int       `db:"weekday" json:"weekday"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	MaxPatients  int       `db:"max_patients" json:"max_patients"`
	SlotMinutes  *int      `db:"slot_minutes" json:"slot_minutes,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// ScheduleOverride replaces or cancels the recurring session for one calendar
// date. Closed marks a full-day absence; otherwise any nil field falls back
// to the recurring session's value.
type ScheduleOverride struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DispensaryID uuid.UUID `db:"dispensary_id" json:"dispensary_id"`
	Day          Date      `db:"day" json:"date"`
	Closed       bool      `db:"closed" json:"closed"`
	StartTime    *string   `db:"start_time" json:"start_time,omitempty"`
	EndTime      *string   `db:"end_time" json:"end_time,omitempty"`
	MaxPatients  *int      `db:"max_patients" json:"max_patients,omitempty"`
	SlotMinutes  *int      `db:"slot_minutes" json:"slot_minutes,omitempty"`
	Note         *string   `db:"note" json:"note,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Booking statuses. A booking starts as scheduled; every other status is
// reachable directly via an explicit status update.
const (
	StatusScheduled = "scheduled"
	StatusCheckedIn = "checked_in"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusNoShow    = "no_show"
)

var validBookingStatuses = map[string]bool{
	StatusScheduled: true, StatusCheckedIn: true, StatusCompleted: true,
	StatusCancelled: true, StatusNoShow: true,
}

// Booking maps to the booking table. Rows are never deleted; cancellation is
// a status change that frees the slot number for reuse on the same date.
type Booking struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	DispensaryID uuid.UUID `db:"dispensary_id" json:"dispensary_id"`
	Day          Date      `db:"day" json:"date"`
	SlotNumber   int       `db:"slot_number" json:"slot_number"`
	StartTime    string    `db:"start_time" json:"start_time"`
	EndTime      string    `db:"end_time" json:"end_time"`
	PatientName  string    `db:"patient_name" json:"patient_name"`
	PatientPhone string    `db:"patient_phone" json:"patient_phone"`
	PatientEmail *string   `db:"patient_email" json:"patient_email,omitempty"`
	Status       string    `db:"status" json:"status"`
	Note         *string   `db:"note" json:"note,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Window renders the booking's time window as "HH:MM-HH:MM".
func (b *Booking) Window() string { return b.StartTime + "-" + b.EndTime }

// Active reports whether the booking still holds its slot number.
func (b *Booking) Active() bool { return b.Status != StatusCancelled }
