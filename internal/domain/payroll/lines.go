package payroll

import (
	"errors"
	"slices"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wfm/internal/domain/attendance"
	"wfm/internal/domain/wage"
)

const quantityPlaces = 4

type BuildInput struct {
	EmployeeID string
	Period     Period
	Records    []attendance.Record
	Rate       decimal.Decimal
	Rules      []wage.SupplementRule
	Holidays   wage.HolidayCalendar
	Overtime   wage.OvertimePolicy
}

type workDay struct {
	date        time.Time
	netMinutes  int
	supplements map[string]int
	sources     []string
}

// BuildLines turns one employee's approved records for a period into lines:
// per work date one base line, one line per non-zero supplement category and
// one per non-zero overtime tier. Records that cannot be normalized become
// warnings and the rest of the employee's records still count.
func BuildLines(input BuildInput) LineSet {
	set := LineSet{EmployeeID: input.EmployeeID, Lines: []Line{}, Warnings: []Warning{}}
	days := map[string]*workDay{}

	for _, record := range input.Records {
		if record.EmployeeID != input.EmployeeID {
			continue
		}
		interval, err := attendance.Normalize(record)
		if err != nil {
			code := WarningMalformedInterval
			if errors.Is(err, attendance.ErrOpenRecord) {
				code = WarningOpenRecord
			}
			set.Warnings = append(set.Warnings, Warning{Code: code, EmployeeID: record.EmployeeID, RecordID: record.ID, Message: err.Error()})
			continue
		}
		if !input.Period.Contains(interval.WorkDate) {
			continue
		}
		key := interval.WorkDate.Format(time.DateOnly)
		day, ok := days[key]
		if !ok {
			day = &workDay{date: interval.WorkDate, supplements: map[string]int{}}
			days[key] = day
		}
		day.netMinutes += interval.NetMinutes
		for category, minutes := range wage.SupplementMinutes(interval, input.Rules, input.Holidays) {
			day.supplements[category] += minutes
		}
		day.sources = append(day.sources, record.ID)
	}

	keys := make([]string, 0, len(days))
	for key := range days {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	daily := make(map[time.Time]wage.OvertimeSplit, len(days))
	for _, key := range keys {
		day := days[key]
		split := wage.SplitOvertime(attendance.MinutesToHours(day.netMinutes).Round(quantityPlaces), input.Overtime)
		daily[day.date] = split

		set.Lines = append(set.Lines, input.line(day, ComponentBase, KindBase, split.Base, SourceAttendance))

		categories := make([]string, 0, len(day.supplements))
		for category := range day.supplements {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			quantity := attendance.MinutesToHours(day.supplements[category]).Round(quantityPlaces)
			set.Lines = append(set.Lines, input.line(day, category, KindSupplement, quantity, SourceAttendance))
		}

		if split.Tier1.IsPositive() {
			set.Lines = append(set.Lines, input.line(day, ComponentOvertime1, KindOvertime, split.Tier1, SourceCalculated))
		}
		if split.Tier2.IsPositive() {
			set.Lines = append(set.Lines, input.line(day, ComponentOvertime2, KindOvertime, split.Tier2, SourceCalculated))
		}
	}

	for _, notice := range wage.WeeklyCapNotices(daily, input.Overtime) {
		set.Warnings = append(set.Warnings, Warning{Code: wage.WarningWeeklyOvertimeCap, EmployeeID: input.EmployeeID, Message: notice.String()})
	}
	return set
}

func (input BuildInput) line(day *workDay, component, kind string, quantity decimal.Decimal, sourceType string) Line {
	return Line{
		EmployeeID: input.EmployeeID,
		Period:     input.Period,
		WorkDate:   day.date,
		Component:  component,
		Kind:       kind,
		Quantity:   quantity,
		Rate:       input.Rate,
		Amount:     decimal.Zero,
		SourceType: sourceType,
		SourceIDs:  slices.Clone(day.sources),
	}
}

// EmployeeRate returns the rate lines are built with: the rate of the
// employee's recorded level. Hours that imply a higher level do not change
// it until the progression is applied. Without an assigned ladder the rate
// is zero and a warning is returned. Only a ladder with no usable levels is
// an error.
func EmployeeRate(employeeID string, state wage.EmployeeState, found bool, snapshot wage.Snapshot, asOf time.Time) (decimal.Decimal, *Warning, error) {
	if !found || state.LadderID == "" {
		return decimal.Zero, &Warning{Code: WarningNoWageLadder, EmployeeID: employeeID, Message: wage.ErrNoLadderAssigned.Error()}, nil
	}
	ladder, ok := snapshot.Ladder(state.LadderID)
	if !ok {
		return decimal.Zero, &Warning{Code: WarningNoWageLadder, EmployeeID: employeeID, Message: wage.ErrLadderNotFound.Error()}, nil
	}
	if rate, ok := wage.LevelRate(ladder, state.CurrentLevel, asOf); ok {
		return rate, nil, nil
	}
	resolution, err := wage.ResolveRate(state.AccumulatedHours, ladder, asOf)
	if err != nil {
		return decimal.Zero, nil, err
	}
	return resolution.Rate, nil, nil
}
