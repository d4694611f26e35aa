package wage

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DailyTiers builds a policy with a configured daily threshold.
func DailyTiers(start, width decimal.Decimal) OvertimePolicy {
	return OvertimePolicy{Tier1StartHours: &start, Tier1WidthHours: width}
}

// Enabled reports whether a daily threshold is configured. Without one every
// hour is base time.
func (p OvertimePolicy) Enabled() bool {
	return p.Tier1StartHours != nil
}

// SplitOvertime splits one work date's net hours into base and two overtime
// tiers. Weekly and annual caps are not applied here.
func SplitOvertime(total decimal.Decimal, policy OvertimePolicy) OvertimeSplit {
	if total.IsNegative() {
		total = decimal.Zero
	}
	if !policy.Enabled() {
		return OvertimeSplit{Base: total, Tier1: decimal.Zero, Tier2: decimal.Zero}
	}
	start := decimal.Max(*policy.Tier1StartHours, decimal.Zero)
	width := decimal.Max(policy.Tier1WidthHours, decimal.Zero)
	over := decimal.Max(total.Sub(start), decimal.Zero)
	return OvertimeSplit{
		Base:  decimal.Min(total, start),
		Tier1: decimal.Min(over, width),
		Tier2: decimal.Max(over.Sub(width), decimal.Zero),
	}
}

func (s OvertimeSplit) Overtime() decimal.Decimal {
	return s.Tier1.Add(s.Tier2)
}

type CapNotice struct {
	Week          string          `json:"week"`
	OvertimeHours decimal.Decimal `json:"overtimeHours"`
	CapHours      decimal.Decimal `json:"capHours"`
}

func (n CapNotice) String() string {
	return fmt.Sprintf("%s: %s overtime hours in %s exceeds weekly cap %s", WarningWeeklyOvertimeCap, n.OvertimeHours.StringFixed(2), n.Week, n.CapHours.StringFixed(2))
}

// WeeklyCapNotices sums overtime per ISO week and reports weeks above the
// configured weekly cap. The result is for display; nothing is cut.
func WeeklyCapNotices(daily map[time.Time]OvertimeSplit, policy OvertimePolicy) []CapNotice {
	if policy.WeeklyCapHours == nil {
		return nil
	}
	totals := map[string]decimal.Decimal{}
	for date, split := range daily {
		year, week := date.ISOWeek()
		key := fmt.Sprintf("%04d-W%02d", year, week)
		totals[key] = totals[key].Add(split.Overtime())
	}
	var notices []CapNotice
	for week, hours := range totals {
		if hours.GreaterThan(*policy.WeeklyCapHours) {
			notices = append(notices, CapNotice{Week: week, OvertimeHours: hours, CapHours: *policy.WeeklyCapHours})
		}
	}
	sort.Slice(notices, func(i, j int) bool { return notices[i].Week < notices[j].Week })
	return notices
}
