package payroll

const (
	RunStatusProcessing = "processing"
	RunStatusCompleted  = "completed"
	RunStatusFailed     = "failed"

	LineStatusPending  = "pending"
	LineStatusExported = "exported"
	LineStatusFailed   = "failed"

	ComponentBase      = "base"
	ComponentOvertime1 = "overtime_1"
	ComponentOvertime2 = "overtime_2"

	KindBase       = "base"
	KindSupplement = "supplement"
	KindOvertime   = "overtime"

	SourceAttendance = "attendance"
	SourceCalculated = "calculated"

	WarningMissingMapping    = "missing_identity_mapping"
	WarningMalformedInterval = "malformed_interval"
	WarningOpenRecord        = "open_record"
	WarningNoWageLadder      = "no_wage_ladder"
	WarningUnpricedComponent = "unpriced_component"
)
