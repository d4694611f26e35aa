package wage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"wfm/internal/domain/attendance"
)

type ConfigStore interface {
	LoadSnapshot(ctx context.Context) (Snapshot, error)
}

type LadderStore interface {
	ListLadders(ctx context.Context) ([]Ladder, error)
	GetLadder(ctx context.Context, ladderID string) (Ladder, error)
	CreateLadder(ctx context.Context, ladder Ladder) (string, error)
	ReplaceLadderLevels(ctx context.Context, ladderID string, levels []LadderLevel) error
	CreateRule(ctx context.Context, rule SupplementRule) (string, error)
}

// StateStore writes are conditional on the version read; a mismatch returns
// ErrStaleWageState and the caller re-reads.
type StateStore interface {
	GetState(ctx context.Context, employeeID string) (EmployeeState, error)
	ListStates(ctx context.Context, employeeIDs []string) (map[string]EmployeeState, error)
	ListAssignedStates(ctx context.Context) ([]EmployeeState, error)
	SetRecordedLevel(ctx context.Context, employeeID string, expectedVersion int64, level int, forwardOnly bool) error
	AdjustHours(ctx context.Context, employeeID string, expectedVersion int64, hours decimal.Decimal, source, reason string) (EmployeeState, error)
	ListAdjustments(ctx context.Context, employeeID string, limit, offset int) ([]HourAdjustment, error)
	AssignLadder(ctx context.Context, employeeID, ladderID string) error
}

type ProgressionStore interface {
	GetState(ctx context.Context, employeeID string) (EmployeeState, error)
	ListAssignedStates(ctx context.Context) ([]EmployeeState, error)
	SetRecordedLevel(ctx context.Context, employeeID string, expectedVersion int64, level int, forwardOnly bool) error
	GetLadder(ctx context.Context, ladderID string) (Ladder, error)
}

type AccrualStore interface {
	BeginTx(ctx context.Context) (pgx.Tx, error)
	ListUnaccruedApprovedTx(ctx context.Context, tx pgx.Tx, limit int) ([]attendance.Record, error)
	AccrueHoursTx(ctx context.Context, tx pgx.Tx, employeeID string, hours decimal.Decimal) error
	MarkAccruedTx(ctx context.Context, tx pgx.Tx, recordIDs []string, accruedAt time.Time) error
}

type StoreAPI interface {
	ConfigStore
	LadderStore
	StateStore
	AccrualStore
}
