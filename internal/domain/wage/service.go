package wage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Service struct {
	Store StoreAPI
	Now   func() time.Time
}

func NewService(store StoreAPI) *Service {
	return &Service{Store: store, Now: time.Now}
}

// Progress is what an employee sees about their position on the ladder.
// The recorded level prices lines; the implied level only tells whether a
// progression is waiting to be applied.
type Progress struct {
	EmployeeID       string          `json:"employeeId"`
	LadderID         string          `json:"ladderId"`
	AccumulatedHours decimal.Decimal `json:"accumulatedHours"`
	RecordedLevel    int             `json:"recordedLevel"`
	RecordedRate     decimal.Decimal `json:"recordedRate"`
	Implied          RateResolution  `json:"implied"`
	Pending          bool            `json:"pending"`
}

func (s *Service) Snapshot(ctx context.Context) (Snapshot, error) {
	return s.Store.LoadSnapshot(ctx)
}

func (s *Service) Progress(ctx context.Context, employeeID string) (Progress, error) {
	state, err := s.Store.GetState(ctx, employeeID)
	if err != nil {
		return Progress{}, err
	}
	if state.LadderID == "" {
		return Progress{}, ErrNoLadderAssigned
	}
	ladder, err := s.Store.GetLadder(ctx, state.LadderID)
	if err != nil {
		return Progress{}, err
	}
	now := s.Now()
	implied, err := ResolveRate(state.AccumulatedHours, ladder, now)
	if err != nil {
		return Progress{}, err
	}
	recordedRate, _ := LevelRate(ladder, state.CurrentLevel, now)
	return Progress{
		EmployeeID:       state.EmployeeID,
		LadderID:         state.LadderID,
		AccumulatedHours: state.AccumulatedHours,
		RecordedLevel:    state.CurrentLevel,
		RecordedRate:     recordedRate,
		Implied:          implied,
		Pending:          implied.Level > state.CurrentLevel,
	}, nil
}

func (s *Service) PendingProgressions(ctx context.Context) ([]PendingProgression, error) {
	return ReconcileProgressions(ctx, s.Store, s.Now())
}

func (s *Service) ApplyProgression(ctx context.Context, employeeID string) (PendingProgression, error) {
	return ApplyProgression(ctx, s.Store, employeeID, s.Now())
}

func (s *Service) ApplyProgressions(ctx context.Context, employeeIDs []string) (ProgressionBatch, error) {
	return ApplyProgressions(ctx, s.Store, employeeIDs, s.Now())
}

func (s *Service) AdjustHours(ctx context.Context, employeeID string, hours decimal.Decimal, reason string) (EmployeeState, error) {
	if hours.IsZero() {
		return EmployeeState{}, fmt.Errorf("%w: adjustment hours must be non-zero", ErrInvalidInput)
	}
	if strings.TrimSpace(reason) == "" {
		return EmployeeState{}, fmt.Errorf("%w: adjustment reason required", ErrInvalidInput)
	}
	return AdjustHours(ctx, s.Store, employeeID, hours, reason)
}

func (s *Service) CorrectLevel(ctx context.Context, employeeID string, level int) error {
	return CorrectLevel(ctx, s.Store, employeeID, level)
}

func (s *Service) ListAdjustments(ctx context.Context, employeeID string, limit, offset int) ([]HourAdjustment, error) {
	return s.Store.ListAdjustments(ctx, employeeID, limit, offset)
}

func (s *Service) AssignLadder(ctx context.Context, employeeID, ladderID string) error {
	if _, err := s.Store.GetLadder(ctx, ladderID); err != nil {
		return err
	}
	return s.Store.AssignLadder(ctx, employeeID, ladderID)
}

func (s *Service) ListLadders(ctx context.Context) ([]Ladder, error) {
	return s.Store.ListLadders(ctx)
}

func (s *Service) GetLadder(ctx context.Context, ladderID string) (Ladder, error) {
	return s.Store.GetLadder(ctx, ladderID)
}

func (s *Service) CreateLadder(ctx context.Context, ladder Ladder) (string, error) {
	if strings.TrimSpace(ladder.Name) == "" {
		return "", fmt.Errorf("%w: ladder name required", ErrInvalidInput)
	}
	if err := ValidateLadder(ladder); err != nil {
		return "", err
	}
	return s.Store.CreateLadder(ctx, ladder)
}

func (s *Service) ReplaceLadderLevels(ctx context.Context, ladderID string, levels []LadderLevel) error {
	if err := ValidateLadder(Ladder{ID: ladderID, Levels: levels}); err != nil {
		return err
	}
	return s.Store.ReplaceLadderLevels(ctx, ladderID, levels)
}

func (s *Service) CreateRule(ctx context.Context, rule SupplementRule) (string, error) {
	if err := ValidateRule(rule); err != nil {
		return "", err
	}
	return s.Store.CreateRule(ctx, rule)
}

func (s *Service) Accrue(ctx context.Context) (AccrualSummary, error) {
	return AccrueApprovedAttendance(ctx, s.Store, s.Now())
}
