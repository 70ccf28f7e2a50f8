// Package timeofday provides helpers for the zero-padded 24-hour HH:MM
// values used by session configuration and booking time windows. Values
// are represented as minutes since midnight so that slot arithmetic stays
// integer-only.
package timeofday

import (
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// Parse converts a "HH:MM" string into minutes since midnight.
func Parse(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time of day %q: expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}

// Format renders minutes since midnight as zero-padded "HH:MM".
// Values outside a single day are clamped into [0, 24h).
func Format(minutes int) string {
	minutes %= minutesPerDay
	if minutes < 0 {
		minutes += minutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Window renders a start plus duration as "HH:MM-HH:MM".
func Window(startMinutes, durationMinutes int) string {
	return Format(startMinutes) + "-" + Format(startMinutes+durationMinutes)
}

// Valid reports whether s is a parseable HH:MM value.
func Valid(s string) bool {
	_, err := Parse(s)
	return err == nil
}
