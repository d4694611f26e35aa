package wage

import "errors"

var (
	ErrLadderGapOrOverlap   = errors.New("wage ladder levels have a gap or overlap")
	ErrNoLadderLevels       = errors.New("wage ladder has no levels")
	ErrLadderNotFound       = errors.New("wage ladder not found")
	ErrEmployeeNotFound     = errors.New("employee wage state not found")
	ErrNoLadderAssigned     = errors.New("employee has no wage ladder assigned")
	ErrStaleWageState       = errors.New("employee wage state changed concurrently")
	ErrNoPendingProgression = errors.New("employee has no pending progression")
	ErrNegativeHours        = errors.New("adjustment would make accumulated hours negative")
	ErrInvalidRule          = errors.New("invalid wage supplement rule")
	ErrInvalidInput         = errors.New("invalid wage input")
)
