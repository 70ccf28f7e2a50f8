package scheduling

import "errors"

var (
	// ErrNotFound is returned when a booking, session, or override id is unknown.
	ErrNotFound = errors.New("not found")

	// ErrSlotTaken is returned by the booking store when a write loses the
	// race for a slot number. The allocator retries it internally; a status
	// update that re-activates a cancelled booking surfaces it to the caller
	// when the freed number was reassigned.
	ErrSlotTaken = errors.New("slot number already taken")

	// ErrDuplicateSession is returned when a second active recurring session
	// for the same (doctor, dispensary, weekday) is created.
	ErrDuplicateSession = errors.New("recurring session already exists for this weekday")

	// ErrDuplicateOverride is returned when an override already exists for
	// the same (doctor, dispensary, date).
	ErrDuplicateOverride = errors.New("schedule override already exists for this date")

	// ErrServiceUnavailable is surfaced when the allocator exhausts its
	// retry budget under write contention.
	ErrServiceUnavailable = errors.New("temporarily unable to allocate a slot")
)

// ConfigurationError marks invalid session configuration, such as an end time
// at or before the start time. It is fatal for the request and never retried.
type ConfigurationError struct {
	Detail string
}

func (e *ConfigurationError) Error() string {
	return "invalid session configuration: " + e.Detail
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}

// Reason codes for the normal negative outcomes of session resolution and
// slot allocation. These are expected, frequent results, not errors.
type Reason string

const (
	ReasonAbsent   Reason = "absent"
	ReasonNoConfig Reason = "no_config"
	ReasonFull     Reason = "full"
)

// Rejection is the typed negative outcome of an allocation attempt.
type Rejection struct {
	Reason Reason `json:"reason"`
}
