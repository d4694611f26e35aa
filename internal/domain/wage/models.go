package wage

import (
	"time"

	"github.com/shopspring/decimal"
)

// SupplementRule is one premium category. Window bounds are minutes from
// midnight; an end at or before the start wraps past midnight.
type SupplementRule struct {
	ID             string         `json:"id"`
	Category       string         `json:"category"`
	WindowStart    *int           `json:"windowStart,omitempty"`
	WindowEnd      *int           `json:"windowEnd,omitempty"`
	Weekdays       []time.Weekday `json:"weekdays,omitempty"`
	HolidayOnly    bool           `json:"holidayOnly"`
	AutoCalculated bool           `json:"autoCalculated"`
}

func (r SupplementRule) HasWindow() bool {
	return r.WindowStart != nil && r.WindowEnd != nil
}

// HolidayCalendar maps YYYY-MM-DD to the holiday name.
type HolidayCalendar map[string]string

func (c HolidayCalendar) IsHoliday(date time.Time) bool {
	_, ok := c[date.Format(time.DateOnly)]
	return ok
}

// OvertimePolicy holds the daily tiers. A nil Tier1StartHours means no daily
// threshold is configured; zero is a real threshold that makes every hour
// overtime.
type OvertimePolicy struct {
	Tier1StartHours *decimal.Decimal `json:"tier1StartHours"`
	Tier1WidthHours decimal.Decimal  `json:"tier1WidthHours"`
	WeeklyCapHours  *decimal.Decimal `json:"weeklyCapHours,omitempty"`
	AnnualCapHours  *decimal.Decimal `json:"annualCapHours,omitempty"`
}

type OvertimeSplit struct {
	Base  decimal.Decimal `json:"base"`
	Tier1 decimal.Decimal `json:"tier1"`
	Tier2 decimal.Decimal `json:"tier2"`
}

type Ladder struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	CompetenceTag string        `json:"competenceTag"`
	Levels        []LadderLevel `json:"levels"`
}

type LadderLevel struct {
	Level         int              `json:"level"`
	MinHours      decimal.Decimal  `json:"minHours"`
	MaxHours      *decimal.Decimal `json:"maxHours,omitempty"`
	HourlyRate    decimal.Decimal  `json:"hourlyRate"`
	EffectiveFrom time.Time        `json:"effectiveFrom"`
}

type RateResolution struct {
	Level int             `json:"level"`
	Rate  decimal.Decimal `json:"rate"`
	Next  *NextLevel      `json:"next,omitempty"`
}

// NextLevel is informational; it never affects pricing.
type NextLevel struct {
	Level          int             `json:"level"`
	Rate           decimal.Decimal `json:"rate"`
	HoursRemaining decimal.Decimal `json:"hoursRemaining"`
}

type EmployeeState struct {
	EmployeeID       string          `json:"employeeId"`
	LadderID         string          `json:"ladderId,omitempty"`
	AccumulatedHours decimal.Decimal `json:"accumulatedHours"`
	CurrentLevel     int             `json:"currentLevel"`
	Version          int64           `json:"version"`
}

type PendingProgression struct {
	EmployeeID       string          `json:"employeeId"`
	LadderID         string          `json:"ladderId"`
	AccumulatedHours decimal.Decimal `json:"accumulatedHours"`
	OldLevel         int             `json:"oldLevel"`
	OldRate          decimal.Decimal `json:"oldRate"`
	NewLevel         int             `json:"newLevel"`
	NewRate          decimal.Decimal `json:"newRate"`
	Version          int64           `json:"version"`
}

// PricingRule prices one line component for one target system:
// amount = quantity * (rate * Multiplier + FixedPerHour).
type PricingRule struct {
	Component    string          `json:"component"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	FixedPerHour decimal.Decimal `json:"fixedPerHour"`
}

type HourAdjustment struct {
	ID         string          `json:"id"`
	EmployeeID string          `json:"employeeId"`
	Hours      decimal.Decimal `json:"hours"`
	Source     string          `json:"source"`
	Reason     string          `json:"reason"`
	CreatedAt  time.Time       `json:"createdAt"`
}
