package utils

import (
	"fmt"
	"time"
)

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsWithinSession reports whether t falls on a weekday between open and close ("15:04")
// in the given location.
func IsWithinSession(t time.Time, location, open, close string) (bool, error) {
	loc, err := time.LoadLocation(location)
	if err != nil {
		return false, fmt.Errorf("invalid market timezone %q: %w", location, err)
	}
	local := t.In(loc)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false, nil
	}

	openAt, err := clockOn(local, open)
	if err != nil {
		return false, err
	}
	closeAt, err := clockOn(local, close)
	if err != nil {
		return false, err
	}
	return !local.Before(openAt) && local.Before(closeAt), nil
}

func clockOn(day time.Time, hhmm string) (time.Time, error) {
	parsed, err := time.Parse("15:04", hhmm)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid session time %q: %w", hhmm, err)
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, parsed.Hour(), parsed.Minute(), 0, 0, day.Location()), nil
}
