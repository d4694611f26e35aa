package wage

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ResolveRate picks the level whose [min, max) range holds hours. When no
// range matches (a gap in the configuration) it falls back to the highest
// level with min <= hours, and below every minimum to the first level.
// Levels not yet effective at asOf are ignored; a zero asOf uses all levels.
func ResolveRate(hours decimal.Decimal, ladder Ladder, asOf time.Time) (RateResolution, error) {
	levels := effectiveLevels(ladder, asOf)
	if len(levels) == 0 {
		return RateResolution{}, fmt.Errorf("%w: %s", ErrNoLadderLevels, ladder.ID)
	}

	chosen := -1
	for i, level := range levels {
		if level.contains(hours) {
			chosen = i
		}
	}
	if chosen < 0 {
		for i, level := range levels {
			if level.MinHours.LessThanOrEqual(hours) {
				chosen = i
			}
		}
	}
	if chosen < 0 {
		chosen = 0
	}

	current := levels[chosen]
	resolution := RateResolution{Level: current.Level, Rate: current.HourlyRate}
	if chosen+1 < len(levels) {
		next := levels[chosen+1]
		resolution.Next = &NextLevel{
			Level:          next.Level,
			Rate:           next.HourlyRate,
			HoursRemaining: decimal.Max(next.MinHours.Sub(hours), decimal.Zero),
		}
	}
	return resolution, nil
}

// LevelRate returns the rate recorded for a specific level number.
func LevelRate(ladder Ladder, level int, asOf time.Time) (decimal.Decimal, bool) {
	for _, candidate := range effectiveLevels(ladder, asOf) {
		if candidate.Level == level {
			return candidate.HourlyRate, true
		}
	}
	return decimal.Zero, false
}

func (l LadderLevel) contains(hours decimal.Decimal) bool {
	if hours.LessThan(l.MinHours) {
		return false
	}
	return l.MaxHours == nil || hours.LessThan(*l.MaxHours)
}

func effectiveLevels(ladder Ladder, asOf time.Time) []LadderLevel {
	levels := make([]LadderLevel, 0, len(ladder.Levels))
	for _, level := range ladder.Levels {
		if !asOf.IsZero() && level.EffectiveFrom.After(asOf) {
			continue
		}
		levels = append(levels, level)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })
	return levels
}

// ValidateLadder enforces the configuration invariants at edit time: unique
// level numbers, strictly increasing minimums, each level's max equal to the
// next level's min, and exactly one open-ended top level.
func ValidateLadder(ladder Ladder) error {
	if len(ladder.Levels) == 0 {
		return ErrNoLadderLevels
	}
	levels := make([]LadderLevel, len(ladder.Levels))
	copy(levels, ladder.Levels)
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })

	openEnded := 0
	for i, level := range levels {
		if level.MinHours.IsNegative() {
			return fmt.Errorf("%w: level %d has negative min hours", ErrLadderGapOrOverlap, level.Level)
		}
		if level.HourlyRate.IsNegative() {
			return fmt.Errorf("%w: level %d has negative rate", ErrLadderGapOrOverlap, level.Level)
		}
		if level.MaxHours == nil {
			openEnded++
		} else if !level.MaxHours.GreaterThan(level.MinHours) {
			return fmt.Errorf("%w: level %d max must exceed min", ErrLadderGapOrOverlap, level.Level)
		}
		if i == 0 {
			continue
		}
		prev := levels[i-1]
		if prev.Level == level.Level {
			return fmt.Errorf("%w: duplicate level %d", ErrLadderGapOrOverlap, level.Level)
		}
		if !level.MinHours.GreaterThan(prev.MinHours) {
			return fmt.Errorf("%w: level %d min hours must exceed level %d", ErrLadderGapOrOverlap, level.Level, prev.Level)
		}
		if prev.MaxHours == nil || !prev.MaxHours.Equal(level.MinHours) {
			return fmt.Errorf("%w: level %d does not start where level %d ends", ErrLadderGapOrOverlap, level.Level, prev.Level)
		}
	}
	if openEnded != 1 || levels[len(levels)-1].MaxHours != nil {
		return fmt.Errorf("%w: exactly the top level must be open-ended", ErrLadderGapOrOverlap)
	}
	return nil
}
