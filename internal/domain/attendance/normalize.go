package attendance

import (
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

// Normalize converts a closed record into net worked minutes. A clock-out
// earlier than the clock-in is read as the next day (one midnight crossing);
// anything spanning more than a day is rejected.
func Normalize(record Record) (NormalizedInterval, error) {
	if record.ClockOut == nil {
		return NormalizedInterval{}, ErrOpenRecord
	}
	if record.BreakMinutes < 0 {
		return NormalizedInterval{}, fmt.Errorf("%w: negative break minutes", ErrMalformedInterval)
	}

	loc := record.WorkDate.Location()
	midnight := time.Date(record.WorkDate.Year(), record.WorkDate.Month(), record.WorkDate.Day(), 0, 0, 0, 0, loc)
	start := int(record.ClockIn.In(loc).Sub(midnight) / time.Minute)
	if start < 0 || start >= minutesPerDay {
		return NormalizedInterval{}, fmt.Errorf("%w: clock-in is not on the work date", ErrMalformedInterval)
	}

	span := record.ClockOut.Sub(record.ClockIn)
	switch {
	case span < -24*time.Hour:
		return NormalizedInterval{}, fmt.Errorf("%w: clock-out precedes clock-in by more than 24h", ErrMalformedInterval)
	case span < 0:
		span += 24 * time.Hour
	case span > 24*time.Hour:
		return NormalizedInterval{}, fmt.Errorf("%w: interval spans more than one day", ErrMalformedInterval)
	}

	gross := int(span / time.Minute)
	if record.BreakMinutes > gross {
		return NormalizedInterval{}, fmt.Errorf("%w: break minutes exceed gross duration", ErrMalformedInterval)
	}

	return NormalizedInterval{
		RecordID:     record.ID,
		EmployeeID:   record.EmployeeID,
		WorkDate:     midnight,
		StartMinute:  start,
		EndMinute:    start + gross,
		BreakMinutes: record.BreakMinutes,
		NetMinutes:   gross - record.BreakMinutes,
	}, nil
}
