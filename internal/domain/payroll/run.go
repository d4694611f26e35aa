package payroll

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// NewRun starts a run in processing. Counts reflect only employees with an
// external mapping.
func NewRun(req ExportRequest, configVersion string, now time.Time) ExportRun {
	return ExportRun{
		ID:            uuid.NewString(),
		System:        req.System,
		Format:        req.Format,
		PeriodStart:   req.Period.Start,
		PeriodEnd:     req.Period.End,
		EmployeeIDs:   slices.Clone(req.EmployeeIDs),
		Status:        RunStatusProcessing,
		TotalAmount:   decimal.Zero,
		Warnings:      []Warning{},
		ConfigVersion: configVersion,
		CreatedAt:     now,
	}
}

func (r ExportRun) Terminal() bool {
	return r.Status == RunStatusCompleted || r.Status == RunStatusFailed
}

// Complete moves a processing run to completed. A terminal run never
// transitions again; exporting the same period means a new run.
func (r *ExportRun) Complete(total decimal.Decimal, file File, location string, at time.Time) error {
	if r.Status != RunStatusProcessing {
		return fmt.Errorf("%w: run %s is %s", ErrRunTerminal, r.ID, r.Status)
	}
	r.Status = RunStatusCompleted
	r.TotalAmount = total
	r.FileName = file.Filename
	r.FileLocation = location
	r.ExportedAt = &at
	return nil
}

func (r *ExportRun) Fail(cause error) error {
	if r.Status != RunStatusProcessing {
		return fmt.Errorf("%w: run %s is %s", ErrRunTerminal, r.ID, r.Status)
	}
	r.Status = RunStatusFailed
	r.ErrorMessage = cause.Error()
	return nil
}

// LineStatus is the status persisted lines take when the run finishes.
func (r ExportRun) LineStatus() string {
	if r.Status == RunStatusCompleted {
		return LineStatusExported
	}
	return LineStatusFailed
}
