package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wfm/internal/domain/attendance"
)

type Store struct {
	DB       *pgxpool.Pool
	Location *time.Location
}

func NewStore(db *pgxpool.Pool, loc *time.Location) *Store {
	if loc == nil {
		loc = time.UTC
	}
	return &Store{DB: db, Location: loc}
}

func (s *Store) CreateRun(ctx context.Context, run ExportRun) error {
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return err
	}
	employeeIDs := run.EmployeeIDs
	if employeeIDs == nil {
		employeeIDs = []string{}
	}
	var retryOf any
	if run.RetryOf != "" {
		retryOf = run.RetryOf
	}
	_, err = s.DB.Exec(ctx, `
    INSERT INTO payroll_export_runs
      (id, system, format, period_start, period_end, employee_ids, status, employee_count, line_count, total_amount, warnings_json, config_version, retry_of, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
  `, run.ID, run.System, run.Format, run.PeriodStart, run.PeriodEnd, employeeIDs, run.Status, run.EmployeeCount, run.LineCount,
		run.TotalAmount, warningsJSON, run.ConfigVersion, retryOf, run.CreatedAt)
	return err
}

// InsertLines writes all lines of a run in one batch inside a transaction.
func (s *Store) InsertLines(ctx context.Context, lines []ExportLine) error {
	if len(lines) == 0 {
		return nil
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, line := range lines {
		batch.Queue(`
      INSERT INTO payroll_export_lines
        (id, run_id, employee_id, component, work_date, quantity, rate, amount, source_type, source_ids, status)
      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
    `, line.ID, line.RunID, line.EmployeeID, line.Component, line.WorkDate.Format(time.DateOnly), line.Quantity,
			line.Rate, line.Amount, line.SourceType, line.SourceIDs, line.Status)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FinishRun writes the terminal state and moves the run's pending lines to
// the matching line status. The update only matches a processing run.
func (s *Store) FinishRun(ctx context.Context, run ExportRun) error {
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return err
	}
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
    UPDATE payroll_export_runs
    SET status = $1, total_amount = $2, warnings_json = $3, error_message = $4,
        file_name = $5, file_location = $6, exported_at = $7
    WHERE id = $8 AND status = $9
  `, run.Status, run.TotalAmount, warningsJSON, run.ErrorMessage, run.FileName, run.FileLocation, run.ExportedAt,
		run.ID, RunStatusProcessing)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRunTerminal
	}
	if _, err := tx.Exec(ctx, `
    UPDATE payroll_export_lines SET status = $1 WHERE run_id = $2 AND status = $3
  `, run.LineStatus(), run.ID, LineStatusPending); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const runColumns = `id, system, format, period_start, period_end, employee_ids, status, employee_count, line_count, total_amount,
    warnings_json, error_message, file_name, file_location, config_version, COALESCE(retry_of::text, ''), created_at, exported_at`

func (s *Store) scanRun(row pgx.Row) (ExportRun, error) {
	var run ExportRun
	var warningsJSON []byte
	if err := row.Scan(&run.ID, &run.System, &run.Format, &run.PeriodStart, &run.PeriodEnd, &run.EmployeeIDs, &run.Status, &run.EmployeeCount,
		&run.LineCount, &run.TotalAmount, &warningsJSON, &run.ErrorMessage, &run.FileName, &run.FileLocation,
		&run.ConfigVersion, &run.RetryOf, &run.CreatedAt, &run.ExportedAt); err != nil {
		return ExportRun{}, err
	}
	run.Warnings = []Warning{}
	if len(warningsJSON) > 0 {
		if err := json.Unmarshal(warningsJSON, &run.Warnings); err != nil {
			return ExportRun{}, err
		}
	}
	run.PeriodStart = attendance.LocalDate(run.PeriodStart, s.Location)
	run.PeriodEnd = attendance.LocalDate(run.PeriodEnd, s.Location)
	return run, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (ExportRun, error) {
	run, err := s.scanRun(s.DB.QueryRow(ctx, `SELECT `+runColumns+` FROM payroll_export_runs WHERE id = $1`, runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return ExportRun{}, ErrRunNotFound
	}
	return run, err
}

func (s *Store) CountRuns(ctx context.Context, system string) (int, error) {
	var total int
	err := s.DB.QueryRow(ctx, `
    SELECT COUNT(1) FROM payroll_export_runs WHERE ($1 = '' OR system = $1)
  `, system).Scan(&total)
	return total, err
}

func (s *Store) ListRuns(ctx context.Context, system string, limit, offset int) ([]ExportRun, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT `+runColumns+`
    FROM payroll_export_runs
    WHERE ($1 = '' OR system = $1)
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, system, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []ExportRun
	for rows.Next() {
		run, err := s.scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) ListRunLines(ctx context.Context, runID string, limit, offset int) ([]ExportLine, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT l.id, l.run_id, l.status, l.employee_id, l.component, l.work_date, l.quantity, l.rate, l.amount,
           l.source_type, l.source_ids, r.period_start, r.period_end
    FROM payroll_export_lines l
    JOIN payroll_export_runs r ON r.id = l.run_id
    WHERE l.run_id = $1
    ORDER BY l.employee_id, l.work_date, l.created_at, l.id
    LIMIT $2 OFFSET $3
  `, runID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []ExportLine
	for rows.Next() {
		var line ExportLine
		if err := rows.Scan(&line.ID, &line.RunID, &line.Status, &line.EmployeeID, &line.Component, &line.WorkDate,
			&line.Quantity, &line.Rate, &line.Amount, &line.SourceType, &line.SourceIDs, &line.Period.Start, &line.Period.End); err != nil {
			return nil, err
		}
		line.WorkDate = attendance.LocalDate(line.WorkDate, s.Location)
		line.Period.Start = attendance.LocalDate(line.Period.Start, s.Location)
		line.Period.End = attendance.LocalDate(line.Period.End, s.Location)
		line.Kind = componentKind(line.Component)
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

func (s *Store) ListIdentityMappings(ctx context.Context, system string, employeeIDs []string) (map[string]string, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT employee_id, external_code
    FROM employee_identity_mappings
    WHERE system = $1 AND employee_id = ANY($2)
  `, system, employeeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mappings := make(map[string]string, len(employeeIDs))
	for rows.Next() {
		var employeeID, code string
		if err := rows.Scan(&employeeID, &code); err != nil {
			return nil, err
		}
		mappings[employeeID] = code
	}
	return mappings, rows.Err()
}

func (s *Store) UpsertIdentityMapping(ctx context.Context, system, employeeID, externalCode string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO employee_identity_mappings (system, employee_id, external_code)
    VALUES ($1,$2,$3)
    ON CONFLICT (system, employee_id) DO UPDATE SET external_code = EXCLUDED.external_code
  `, system, employeeID, externalCode)
	return err
}

func componentKind(component string) string {
	switch component {
	case ComponentBase:
		return KindBase
	case ComponentOvertime1, ComponentOvertime2:
		return KindOvertime
	default:
		return KindSupplement
	}
}
