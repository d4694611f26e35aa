package shared

import (
	"time"
)

// ParseDate accepts RFC3339 or YYYY-MM-DD.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed, nil
	}
	return time.Parse(time.DateOnly, value)
}

// ParseDay parses a calendar date as midnight in loc. Time-of-day parts of
// RFC3339 input are dropped.
func ParseDay(value string, loc *time.Location) (time.Time, error) {
	parsed, err := ParseDate(value)
	if err != nil || parsed.IsZero() {
		return parsed, err
	}
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, loc), nil
}
