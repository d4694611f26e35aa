package wage

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"wfm/internal/domain/attendance"
)

const minutesPerDay = 24 * 60

type span struct {
	start int
	end   int
}

// SupplementMinutes measures every auto-calculated rule against the whole
// interval independently. Categories stack: a Sunday night shift earns both
// night and weekend minutes for the same clock time. The categories are not
// mutually exclusive and must not be made so.
//
// Weekday and holiday restrictions test the work date. Minutes are measured
// on the wall-clock span, so a break inside a window does not reduce them.
// Several rules of one category never add up to more than the span, and zero
// entries are omitted.
func SupplementMinutes(interval attendance.NormalizedInterval, rules []SupplementRule, holidays HolidayCalendar) map[string]int {
	out := map[string]int{}
	for _, rule := range rules {
		if !rule.AutoCalculated || !rule.appliesOn(interval.WorkDate, holidays) {
			continue
		}
		minutes := interval.SpanMinutes()
		if rule.HasWindow() {
			minutes = windowOverlap(interval.StartMinute, interval.EndMinute, *rule.WindowStart, *rule.WindowEnd)
		}
		if minutes > 0 {
			out[rule.Category] += minutes
		}
	}
	for category, minutes := range out {
		out[category] = min(minutes, interval.SpanMinutes())
	}
	return out
}

func (r SupplementRule) appliesOn(date time.Time, holidays HolidayCalendar) bool {
	if r.HolidayOnly && !holidays.IsHoliday(date) {
		return false
	}
	if len(r.Weekdays) > 0 && !slices.Contains(r.Weekdays, date.Weekday()) {
		return false
	}
	return true
}

// windowOverlap splits the interval at midnight (at most two parts) and sums
// the overlap of each part with the window, itself split if it wraps.
func windowOverlap(start, end, windowStart, windowEnd int) int {
	total := 0
	for _, part := range splitAtMidnight(start, end) {
		for _, window := range windowSpans(windowStart, windowEnd) {
			total += overlap(part, window)
		}
	}
	return total
}

func splitAtMidnight(start, end int) []span {
	if end <= minutesPerDay {
		return []span{{start, end}}
	}
	return []span{{start, minutesPerDay}, {0, end - minutesPerDay}}
}

func windowSpans(start, end int) []span {
	switch {
	case start == end:
		return []span{{0, minutesPerDay}}
	case start < end:
		return []span{{start, end}}
	default:
		return []span{{start, minutesPerDay}, {0, end}}
	}
}

func overlap(a, b span) int {
	return max(0, min(a.end, b.end)-max(a.start, b.start))
}

// ValidateRule checks a rule at edit time.
func ValidateRule(rule SupplementRule) error {
	if strings.TrimSpace(rule.Category) == "" {
		return fmt.Errorf("%w: category required", ErrInvalidRule)
	}
	if !slices.Contains(Categories, rule.Category) {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidRule, rule.Category)
	}
	if (rule.WindowStart == nil) != (rule.WindowEnd == nil) {
		return fmt.Errorf("%w: window needs both start and end", ErrInvalidRule)
	}
	if rule.HasWindow() {
		for _, bound := range []int{*rule.WindowStart, *rule.WindowEnd} {
			if bound < 0 || bound > minutesPerDay {
				return fmt.Errorf("%w: window bound %d outside 0-%d", ErrInvalidRule, bound, minutesPerDay)
			}
		}
	}
	if !rule.HasWindow() && len(rule.Weekdays) == 0 && !rule.HolidayOnly {
		return fmt.Errorf("%w: rule %q would match every minute worked", ErrInvalidRule, rule.Category)
	}
	return nil
}

// ClockMinute parses HH:MM into minutes from midnight; "24:00" is allowed as
// an end bound.
func ClockMinute(value string) (int, error) {
	parsed, err := time.Parse("15:04", value)
	if err == nil {
		return parsed.Hour()*60 + parsed.Minute(), nil
	}
	if value == "24:00" {
		return minutesPerDay, nil
	}
	return 0, fmt.Errorf("invalid clock time %q", value)
}
