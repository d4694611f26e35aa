package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusOpen     = "open"
	StatusClosed   = "closed"
	StatusApproved = "approved"
)

// Record is one clock-in/clock-out pair. WorkDate carries the location the
// wall-clock offsets are computed in.
type Record struct {
	ID             string     `json:"id"`
	EmployeeID     string     `json:"employeeId"`
	WorkDate       time.Time  `json:"workDate"`
	ClockIn        time.Time  `json:"clockIn"`
	ClockOut       *time.Time `json:"clockOut,omitempty"`
	BreakMinutes   int        `json:"breakMinutes"`
	PlannedShiftID string     `json:"plannedShiftId,omitempty"`
	Status         string     `json:"status"`
}

// NormalizedInterval is a worked span expressed in minutes from midnight of
// the work date. EndMinute may exceed 1440 when the shift crosses midnight.
type NormalizedInterval struct {
	RecordID     string
	EmployeeID   string
	WorkDate     time.Time
	StartMinute  int
	EndMinute    int
	BreakMinutes int
	NetMinutes   int
}

func (n NormalizedInterval) SpanMinutes() int {
	return n.EndMinute - n.StartMinute
}

func (n NormalizedInterval) NetHours() decimal.Decimal {
	return MinutesToHours(n.NetMinutes)
}

func MinutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60))
}
