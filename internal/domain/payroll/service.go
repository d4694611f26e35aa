package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"wfm/internal/domain/attendance"
	"wfm/internal/domain/audit"
	"wfm/internal/domain/wage"
)

const defaultWorkers = 8

type WageSource interface {
	LoadSnapshot(ctx context.Context) (wage.Snapshot, error)
	ListStates(ctx context.Context, employeeIDs []string) (map[string]wage.EmployeeState, error)
}

// Deliverer hands a serialized file to its destination and returns where it
// was put.
type Deliverer interface {
	Deliver(ctx context.Context, runID string, file File) (string, error)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type RunRecorder interface {
	RecordExportRun(system, status string, lines int, duration time.Duration)
}

type Service struct {
	Store      StoreAPI
	Attendance attendance.StoreAPI
	Wages      WageSource
	Registry   *Registry
	Delivery   Deliverer
	Audit      Auditor
	Metrics    RunRecorder
	Workers    int
	Now        func() time.Time
}

func NewService(store StoreAPI, attendanceStore attendance.StoreAPI, wages WageSource, registry *Registry, delivery Deliverer, workers int) *Service {
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Service{
		Store:      store,
		Attendance: attendanceStore,
		Wages:      wages,
		Registry:   registry,
		Delivery:   delivery,
		Workers:    workers,
		Now:        time.Now,
	}
}

func (req ExportRequest) validate() error {
	if strings.TrimSpace(req.System) == "" {
		return fmt.Errorf("%w: system required", ErrUnknownSystem)
	}
	if strings.TrimSpace(req.Format) == "" {
		return fmt.Errorf("%w: format required", ErrUnsupportedFormat)
	}
	return req.Period.Validate()
}

// Export runs one export for one system and period. Configuration absence
// (unknown system, a ladder without levels) aborts before any run is
// recorded. Once the run exists, failures end it as failed and the failed
// run is returned without an error; the error is kept on the run.
func (s *Service) Export(ctx context.Context, req ExportRequest) (ExportRun, error) {
	if err := req.validate(); err != nil {
		return ExportRun{}, err
	}
	snapshot, err := s.Wages.LoadSnapshot(ctx)
	if err != nil {
		return ExportRun{}, err
	}
	return s.export(ctx, req, snapshot, "")
}

// Retry re-executes a failed run as a new run against the current
// configuration. The failed run is left as it is.
func (s *Service) Retry(ctx context.Context, runID, actor, requestID string) (ExportRun, error) {
	previous, err := s.Store.GetRun(ctx, runID)
	if err != nil {
		return ExportRun{}, err
	}
	if previous.Status != RunStatusFailed {
		return ExportRun{}, fmt.Errorf("%w: run %s is %s", ErrRunNotFailed, previous.ID, previous.Status)
	}
	snapshot, err := s.Wages.LoadSnapshot(ctx)
	if err != nil {
		return ExportRun{}, err
	}
	req := ExportRequest{
		System:      previous.System,
		Format:      previous.Format,
		Period:      Period{Start: previous.PeriodStart, End: previous.PeriodEnd},
		EmployeeIDs: previous.EmployeeIDs,
		Actor:       actor,
		RequestID:   requestID,
	}
	return s.export(ctx, req, snapshot, previous.ID)
}

func (s *Service) export(ctx context.Context, req ExportRequest, snapshot wage.Snapshot, retryOf string) (ExportRun, error) {
	started := s.Now()
	if _, err := s.Registry.Adapter(req.System, nil); err != nil {
		return ExportRun{}, err
	}

	sets, err := s.buildAll(ctx, req, snapshot)
	if err != nil {
		return ExportRun{}, err
	}

	employeeIDs := make([]string, 0, len(sets))
	for _, set := range sets {
		if len(set.Lines) > 0 {
			employeeIDs = append(employeeIDs, set.EmployeeID)
		}
	}
	identities, err := s.Store.ListIdentityMappings(ctx, req.System, employeeIDs)
	if err != nil {
		return ExportRun{}, err
	}
	adapter, err := s.Registry.Adapter(req.System, identities)
	if err != nil {
		return ExportRun{}, err
	}
	partition := adapter.ValidateEmployeeIdentities(employeeIDs)
	valid := make(map[string]bool, len(partition.Valid))
	for _, employeeID := range partition.Valid {
		valid[employeeID] = true
	}

	run := NewRun(req, snapshot.Version, started)
	run.RetryOf = retryOf
	var built []Line
	for _, set := range sets {
		switch {
		case len(set.Lines) == 0:
			// Every record was malformed or open; the warnings are all that is left.
			run.Warnings = append(run.Warnings, set.Warnings...)
		case valid[set.EmployeeID]:
			built = append(built, set.Lines...)
			run.Warnings = append(run.Warnings, set.Warnings...)
		}
	}
	for _, employeeID := range partition.Missing {
		run.Warnings = append(run.Warnings, Warning{
			Code:       WarningMissingMapping,
			EmployeeID: employeeID,
			Message:    fmt.Sprintf("no external mapping for employee %s in %s", employeeID, req.System),
		})
	}
	lines, pricingWarnings := PriceLines(built, snapshot.PricingFor(req.System))
	run.Warnings = append(run.Warnings, pricingWarnings...)
	run.EmployeeCount = len(partition.Valid)
	run.LineCount = len(lines)

	if err := s.Store.CreateRun(ctx, run); err != nil {
		return ExportRun{}, err
	}

	// From here the run exists and must reach a terminal state even if the
	// caller goes away.
	persistCtx := context.WithoutCancel(ctx)

	exportLines := make([]ExportLine, len(lines))
	for i, line := range lines {
		exportLines[i] = ExportLine{ID: uuid.NewString(), RunID: run.ID, Status: LineStatusPending, Line: line}
	}
	if err := s.Store.InsertLines(persistCtx, exportLines); err != nil {
		return s.fail(persistCtx, req, run, fmt.Errorf("persist lines: %w", err), started)
	}

	file, err := adapter.Serialize(lines, req.Format)
	if err != nil {
		if !errors.Is(err, ErrUnsupportedFormat) && !errors.Is(err, ErrAdapterSerialization) {
			err = SerializationError(req.System, err)
		}
		return s.fail(persistCtx, req, run, err, started)
	}

	location, err := s.Delivery.Deliver(persistCtx, run.ID, file)
	if err != nil {
		return s.fail(persistCtx, req, run, fmt.Errorf("deliver %s: %w", file.Filename, err), started)
	}

	if err := run.Complete(TotalAmount(lines), file, location, s.Now()); err != nil {
		return ExportRun{}, err
	}
	if err := s.Store.FinishRun(persistCtx, run); err != nil {
		slog.Error("payroll export run left processing", "runId", run.ID, "system", run.System, "status", run.Status, "err", err)
		return ExportRun{}, fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	s.after(persistCtx, req, run, started)
	return run, nil
}

func (s *Service) fail(ctx context.Context, req ExportRequest, run ExportRun, cause error, started time.Time) (ExportRun, error) {
	slog.Warn("payroll export run failed", "runId", run.ID, "system", run.System, "err", cause)
	if err := run.Fail(cause); err != nil {
		return ExportRun{}, err
	}
	if err := s.Store.FinishRun(ctx, run); err != nil {
		slog.Error("payroll export run left processing", "runId", run.ID, "system", run.System, "status", run.Status, "err", err)
		return ExportRun{}, fmt.Errorf("finish run %s: %w", run.ID, err)
	}
	s.after(ctx, req, run, started)
	return run, nil
}

func (s *Service) after(ctx context.Context, req ExportRequest, run ExportRun, started time.Time) {
	if s.Metrics != nil {
		s.Metrics.RecordExportRun(run.System, run.Status, run.LineCount, s.Now().Sub(started))
	}
	if s.Audit == nil {
		return
	}
	action := audit.ActionExportRun
	if run.RetryOf != "" {
		action = audit.ActionExportRetry
	}
	if err := s.Audit.Record(ctx, audit.Entry{
		Actor:      req.Actor,
		Action:     action,
		EntityType: "payroll_export_run",
		EntityID:   run.ID,
		RequestID:  req.RequestID,
		After:      run,
	}); err != nil {
		slog.Warn("audit record failed", "runId", run.ID, "err", err)
	}
}

// buildAll builds every employee's lines on a bounded pool and returns them
// ordered by employee id, whatever order the workers finish in.
func (s *Service) buildAll(ctx context.Context, req ExportRequest, snapshot wage.Snapshot) ([]LineSet, error) {
	records, err := s.Attendance.ListApproved(ctx, req.Period.Start, req.Period.End, req.EmployeeIDs)
	if err != nil {
		return nil, err
	}
	byEmployee := map[string][]attendance.Record{}
	for _, record := range records {
		byEmployee[record.EmployeeID] = append(byEmployee[record.EmployeeID], record)
	}
	employeeIDs := make([]string, 0, len(byEmployee))
	for employeeID := range byEmployee {
		employeeIDs = append(employeeIDs, employeeID)
	}
	sort.Strings(employeeIDs)
	if len(employeeIDs) == 0 {
		return nil, nil
	}

	states, err := s.Wages.ListStates(ctx, employeeIDs)
	if err != nil {
		return nil, err
	}

	sets := make([]LineSet, len(employeeIDs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Workers)
	for i, employeeID := range employeeIDs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			state, found := states[employeeID]
			rate, warning, err := EmployeeRate(employeeID, state, found, snapshot, req.Period.End)
			if err != nil {
				return fmt.Errorf("employee %s: %w", employeeID, err)
			}
			set := BuildLines(BuildInput{
				EmployeeID: employeeID,
				Period:     req.Period,
				Records:    byEmployee[employeeID],
				Rate:       rate,
				Rules:      snapshot.Rules,
				Holidays:   snapshot.Holidays,
				Overtime:   snapshot.Overtime,
			})
			if warning != nil {
				set.Warnings = append([]Warning{*warning}, set.Warnings...)
			}
			sets[i] = set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return sets, nil
}

// Preview builds and prices a period's lines for a system without recording
// a run. Unmapped employees are reported but their lines are kept.
func (s *Service) Preview(ctx context.Context, req ExportRequest) (Preview, error) {
	if err := req.Period.Validate(); err != nil {
		return Preview{}, err
	}
	snapshot, err := s.Wages.LoadSnapshot(ctx)
	if err != nil {
		return Preview{}, err
	}
	sets, err := s.buildAll(ctx, req, snapshot)
	if err != nil {
		return Preview{}, err
	}

	preview := Preview{ConfigVersion: snapshot.Version, Lines: []Line{}, Warnings: []Warning{}}
	var employeeIDs []string
	for _, set := range sets {
		preview.Lines = append(preview.Lines, set.Lines...)
		preview.Warnings = append(preview.Warnings, set.Warnings...)
		if len(set.Lines) > 0 {
			employeeIDs = append(employeeIDs, set.EmployeeID)
		}
	}
	if req.System != "" {
		identities, err := s.Store.ListIdentityMappings(ctx, req.System, employeeIDs)
		if err != nil {
			return Preview{}, err
		}
		adapter, err := s.Registry.Adapter(req.System, identities)
		if err != nil {
			return Preview{}, err
		}
		for _, employeeID := range adapter.ValidateEmployeeIdentities(employeeIDs).Missing {
			preview.Warnings = append(preview.Warnings, Warning{Code: WarningMissingMapping, EmployeeID: employeeID, Message: "no external mapping"})
		}
	}
	var pricingWarnings []Warning
	preview.Lines, pricingWarnings = PriceLines(preview.Lines, snapshot.PricingFor(req.System))
	preview.Warnings = append(preview.Warnings, pricingWarnings...)
	preview.TotalAmount = TotalAmount(preview.Lines)
	return preview, nil
}

func (s *Service) GetRun(ctx context.Context, runID string) (ExportRun, error) {
	return s.Store.GetRun(ctx, runID)
}

func (s *Service) ListRuns(ctx context.Context, system string, limit, offset int) ([]ExportRun, int, error) {
	total, err := s.Store.CountRuns(ctx, system)
	if err != nil {
		return nil, 0, err
	}
	runs, err := s.Store.ListRuns(ctx, system, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return runs, total, nil
}

func (s *Service) RunLines(ctx context.Context, runID string, limit, offset int) ([]ExportLine, error) {
	if _, err := s.Store.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.Store.ListRunLines(ctx, runID, limit, offset)
}

func (s *Service) Systems() []SystemInfo {
	return s.Registry.Systems()
}

func (s *Service) MapIdentity(ctx context.Context, system, employeeID, externalCode string) error {
	if _, err := s.Registry.Adapter(system, nil); err != nil {
		return err
	}
	if strings.TrimSpace(employeeID) == "" || strings.TrimSpace(externalCode) == "" {
		return ErrInvalidMapping
	}
	return s.Store.UpsertIdentityMapping(ctx, system, employeeID, externalCode)
}
