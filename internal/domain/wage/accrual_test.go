package wage

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"wfm/internal/domain/attendance"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeAccrualStore struct {
	pending []attendance.Record
	hours   map[string]decimal.Decimal
	marked  []string
	txs     []*fakeTx
}

func (f *fakeAccrualStore) BeginTx(context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	f.txs = append(f.txs, tx)
	return tx, nil
}

func (f *fakeAccrualStore) ListUnaccruedApprovedTx(_ context.Context, _ pgx.Tx, limit int) ([]attendance.Record, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeAccrualStore) AccrueHoursTx(_ context.Context, _ pgx.Tx, employeeID string, h decimal.Decimal) error {
	f.hours[employeeID] = f.hours[employeeID].Add(h)
	return nil
}

func (f *fakeAccrualStore) MarkAccruedTx(_ context.Context, _ pgx.Tx, recordIDs []string, _ time.Time) error {
	f.marked = append(f.marked, recordIDs...)
	f.pending = f.pending[len(recordIDs):]
	return nil
}

func approvedRecord(id, employeeID string, inHour, outHour, breakMinutes int) attendance.Record {
	day := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	clockOut := time.Date(2025, 3, 14, outHour, 0, 0, 0, time.UTC)
	return attendance.Record{
		ID:           id,
		EmployeeID:   employeeID,
		WorkDate:     day,
		ClockIn:      time.Date(2025, 3, 14, inHour, 0, 0, 0, time.UTC),
		ClockOut:     &clockOut,
		BreakMinutes: breakMinutes,
		Status:       attendance.StatusApproved,
	}
}

func TestAccrueApprovedAttendance(t *testing.T) {
	store := &fakeAccrualStore{
		hours: map[string]decimal.Decimal{},
		pending: []attendance.Record{
			approvedRecord("att-1", "emp-1", 8, 16, 30),
			approvedRecord("att-2", "emp-1", 23, 7, 30),
			approvedRecord("att-3", "emp-2", 9, 10, 90),
		},
	}

	summary, err := AccrueApprovedAttendance(context.Background(), store, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary.RecordsAccrued != 2 || summary.RecordsSkipped != 1 || summary.EmployeesUpdated != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if !store.hours["emp-1"].Equal(decimal.NewFromInt(15)) {
		t.Fatalf("expected 15 hours for emp-1, got %s", store.hours["emp-1"])
	}
	if _, ok := store.hours["emp-2"]; ok {
		t.Fatalf("malformed record must not accrue hours")
	}
	if len(store.marked) != 3 {
		t.Fatalf("expected all three records marked, got %v", store.marked)
	}
	if len(store.txs) != 1 || !store.txs[0].committed {
		t.Fatalf("expected a single committed transaction")
	}
}

func TestAccrueApprovedAttendanceNothingPending(t *testing.T) {
	store := &fakeAccrualStore{hours: map[string]decimal.Decimal{}}
	summary, err := AccrueApprovedAttendance(context.Background(), store, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if summary != (AccrualSummary{}) {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
	if len(store.txs) != 1 || store.txs[0].committed || !store.txs[0].rolledBack {
		t.Fatalf("expected the empty transaction to be rolled back")
	}
}
