package wage

const (
	CategoryEvening = "evening"
	CategoryNight   = "night"
	CategoryWeekend = "weekend"
	CategoryHoliday = "holiday"

	AdjustmentSourceAccrual = "accrual"
	AdjustmentSourceManual  = "manual"

	WarningWeeklyOvertimeCap = "weekly_overtime_cap_exceeded"
)

// Categories lists the supplement categories every export system can map.
var Categories = []string{CategoryEvening, CategoryNight, CategoryWeekend, CategoryHoliday}
