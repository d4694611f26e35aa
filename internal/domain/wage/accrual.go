package wage

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"wfm/internal/domain/attendance"
)

const accrualBatchSize = 500

type AccrualSummary struct {
	RecordsAccrued   int `json:"recordsAccrued"`
	RecordsSkipped   int `json:"recordsSkipped"`
	EmployeesUpdated int `json:"employeesUpdated"`
}

// AccrueApprovedAttendance adds the net hours of approved, not yet accrued
// attendance to each employee's accumulated hours. Each batch runs in one
// transaction: hours and the accrued markers commit together. Records that
// cannot be normalized are marked so they are not retried forever.
func AccrueApprovedAttendance(ctx context.Context, store AccrualStore, now time.Time) (AccrualSummary, error) {
	var summary AccrualSummary
	for {
		done, err := accrueBatch(ctx, store, now, &summary)
		if err != nil || done {
			return summary, err
		}
	}
}

func accrueBatch(ctx context.Context, store AccrualStore, now time.Time, summary *AccrualSummary) (bool, error) {
	tx, err := store.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	rollback := func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			slog.Warn("hour accrual rollback failed", "err", rbErr)
		}
	}

	records, err := store.ListUnaccruedApprovedTx(ctx, tx, accrualBatchSize)
	if err != nil {
		rollback()
		return false, err
	}
	if len(records) == 0 {
		rollback()
		return true, nil
	}

	hours := map[string]decimal.Decimal{}
	ids := make([]string, 0, len(records))
	skipped := 0
	for _, record := range records {
		ids = append(ids, record.ID)
		interval, err := attendance.Normalize(record)
		if err != nil {
			if !errors.Is(err, attendance.ErrOpenRecord) {
				slog.Warn("attendance record not accrued", "recordId", record.ID, "employeeId", record.EmployeeID, "err", err)
			}
			skipped++
			continue
		}
		hours[record.EmployeeID] = hours[record.EmployeeID].Add(interval.NetHours())
	}

	employees := make([]string, 0, len(hours))
	for employeeID := range hours {
		employees = append(employees, employeeID)
	}
	sort.Strings(employees)
	for _, employeeID := range employees {
		if err := store.AccrueHoursTx(ctx, tx, employeeID, hours[employeeID]); err != nil {
			rollback()
			return false, err
		}
	}
	if err := store.MarkAccruedTx(ctx, tx, ids, now); err != nil {
		rollback()
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}

	summary.RecordsAccrued += len(records) - skipped
	summary.RecordsSkipped += skipped
	summary.EmployeesUpdated += len(employees)
	return len(records) < accrualBatchSize, nil
}
