package wage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

const maxStateAttempts = 3

// DetectProgression compares the level implied by accumulated hours with the
// recorded level. Only upward moves are reported.
func DetectProgression(state EmployeeState, ladder Ladder, asOf time.Time) (PendingProgression, bool, error) {
	resolution, err := ResolveRate(state.AccumulatedHours, ladder, asOf)
	if err != nil {
		return PendingProgression{}, false, err
	}
	if resolution.Level <= state.CurrentLevel {
		return PendingProgression{}, false, nil
	}
	oldRate, _ := LevelRate(ladder, state.CurrentLevel, asOf)
	return PendingProgression{
		EmployeeID:       state.EmployeeID,
		LadderID:         ladder.ID,
		AccumulatedHours: state.AccumulatedHours,
		OldLevel:         state.CurrentLevel,
		OldRate:          oldRate,
		NewLevel:         resolution.Level,
		NewRate:          resolution.Rate,
		Version:          state.Version,
	}, true, nil
}

// ReconcileProgressions lists every employee whose hours have moved past
// the recorded level. It reads only; applying is a separate step.
func ReconcileProgressions(ctx context.Context, store ProgressionStore, asOf time.Time) ([]PendingProgression, error) {
	states, err := store.ListAssignedStates(ctx)
	if err != nil {
		return nil, err
	}
	ladders := map[string]Ladder{}
	var pending []PendingProgression
	for _, state := range states {
		ladder, ok := ladders[state.LadderID]
		if !ok {
			ladder, err = store.GetLadder(ctx, state.LadderID)
			if err != nil {
				return nil, err
			}
			ladders[state.LadderID] = ladder
		}
		progression, found, err := DetectProgression(state, ladder, asOf)
		if err != nil {
			slog.Warn("progression check skipped", "employeeId", state.EmployeeID, "ladderId", state.LadderID, "err", err)
			continue
		}
		if found {
			pending = append(pending, progression)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].EmployeeID < pending[j].EmployeeID })
	return pending, nil
}

// ApplyProgression re-reads the employee's state and writes the implied
// level conditioned on the version read, so a concurrent hour adjustment
// forces a re-evaluation instead of being overwritten. Already issued
// payroll lines are not touched.
func ApplyProgression(ctx context.Context, store ProgressionStore, employeeID string, asOf time.Time) (PendingProgression, error) {
	for attempt := 0; attempt < maxStateAttempts; attempt++ {
		state, err := store.GetState(ctx, employeeID)
		if err != nil {
			return PendingProgression{}, err
		}
		if state.LadderID == "" {
			return PendingProgression{}, ErrNoLadderAssigned
		}
		ladder, err := store.GetLadder(ctx, state.LadderID)
		if err != nil {
			return PendingProgression{}, err
		}
		pending, found, err := DetectProgression(state, ladder, asOf)
		if err != nil {
			return PendingProgression{}, err
		}
		if !found {
			return PendingProgression{}, ErrNoPendingProgression
		}
		err = store.SetRecordedLevel(ctx, employeeID, state.Version, pending.NewLevel, true)
		if errors.Is(err, ErrStaleWageState) {
			continue
		}
		if err != nil {
			return PendingProgression{}, err
		}
		pending.Version = state.Version + 1
		return pending, nil
	}
	return PendingProgression{}, fmt.Errorf("%w: %s", ErrStaleWageState, employeeID)
}

type ProgressionFailure struct {
	EmployeeID string `json:"employeeId"`
	Reason     string `json:"reason"`
}

type ProgressionBatch struct {
	Applied []PendingProgression `json:"applied"`
	Failed  []ProgressionFailure `json:"failed"`
}

// ApplyProgressions applies each employee independently; one failure does
// not stop the batch. An empty list applies every pending progression.
func ApplyProgressions(ctx context.Context, store ProgressionStore, employeeIDs []string, asOf time.Time) (ProgressionBatch, error) {
	batch := ProgressionBatch{Applied: []PendingProgression{}, Failed: []ProgressionFailure{}}
	if len(employeeIDs) == 0 {
		pending, err := ReconcileProgressions(ctx, store, asOf)
		if err != nil {
			return batch, err
		}
		for _, p := range pending {
			employeeIDs = append(employeeIDs, p.EmployeeID)
		}
	}
	for _, employeeID := range employeeIDs {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		applied, err := ApplyProgression(ctx, store, employeeID, asOf)
		if err != nil {
			batch.Failed = append(batch.Failed, ProgressionFailure{EmployeeID: employeeID, Reason: err.Error()})
			continue
		}
		batch.Applied = append(batch.Applied, applied)
	}
	return batch, nil
}

// AdjustHours records a manual correction. It is the only path that may
// lower accumulated hours; the total never goes below zero.
func AdjustHours(ctx context.Context, store StateStore, employeeID string, hours decimal.Decimal, reason string) (EmployeeState, error) {
	for attempt := 0; attempt < maxStateAttempts; attempt++ {
		state, err := store.GetState(ctx, employeeID)
		if err != nil {
			return EmployeeState{}, err
		}
		if state.AccumulatedHours.Add(hours).IsNegative() {
			return EmployeeState{}, ErrNegativeHours
		}
		updated, err := store.AdjustHours(ctx, employeeID, state.Version, hours, AdjustmentSourceManual, reason)
		if errors.Is(err, ErrStaleWageState) {
			continue
		}
		return updated, err
	}
	return EmployeeState{}, fmt.Errorf("%w: %s", ErrStaleWageState, employeeID)
}

// CorrectLevel overwrites the recorded level, downward included. It is the
// manual counterpart of ApplyProgression.
func CorrectLevel(ctx context.Context, store ProgressionStore, employeeID string, level int) error {
	for attempt := 0; attempt < maxStateAttempts; attempt++ {
		state, err := store.GetState(ctx, employeeID)
		if err != nil {
			return err
		}
		if state.LadderID == "" {
			return ErrNoLadderAssigned
		}
		ladder, err := store.GetLadder(ctx, state.LadderID)
		if err != nil {
			return err
		}
		if _, ok := LevelRate(ladder, level, time.Time{}); !ok {
			return fmt.Errorf("%w: level %d not in ladder %s", ErrLadderNotFound, level, ladder.ID)
		}
		err = store.SetRecordedLevel(ctx, employeeID, state.Version, level, false)
		if errors.Is(err, ErrStaleWageState) {
			continue
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrStaleWageState, employeeID)
}
