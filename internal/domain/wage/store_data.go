package wage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"wfm/internal/domain/attendance"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

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

// LoadSnapshot reads the whole wage configuration. The version is derived
// from the latest edit across the configuration tables so two runs can be
// compared for the configuration they used. All tables are read in one
// read-only repeatable-read transaction so a concurrent edit cannot leave the
// snapshot half old and half new.
func (s *Store) LoadSnapshot(ctx context.Context) (Snapshot, error) {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Snapshot{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	snapshot := Snapshot{
		Holidays: HolidayCalendar{},
		Ladders:  map[string]Ladder{},
		Pricing:  map[string]map[string]PricingRule{},
	}

	if err := tx.QueryRow(ctx, `
    SELECT COALESCE(to_char(GREATEST(
      (SELECT max(updated_at) FROM wage_supplement_rules),
      (SELECT max(updated_at) FROM holidays),
      (SELECT max(updated_at) FROM overtime_policy),
      (SELECT max(updated_at) FROM wage_ladders),
      (SELECT max(updated_at) FROM export_pricing_rules)
    ) AT TIME ZONE 'UTC', 'YYYYMMDDHH24MISSUS'), '0')
  `).Scan(&snapshot.Version); err != nil {
		return Snapshot{}, err
	}

	rules, err := s.listRules(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Rules = rules

	rows, err := tx.Query(ctx, `SELECT holiday_date, name FROM holidays`)
	if err != nil {
		return Snapshot{}, err
	}
	for rows.Next() {
		var date time.Time
		var name string
		if err := rows.Scan(&date, &name); err != nil {
			rows.Close()
			return Snapshot{}, err
		}
		snapshot.Holidays[date.Format(time.DateOnly)] = name
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Snapshot{}, err
	}

	policy, err := s.overtimePolicy(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Overtime = policy

	ladders, err := s.listLadders(ctx, tx)
	if err != nil {
		return Snapshot{}, err
	}
	for _, ladder := range ladders {
		snapshot.Ladders[ladder.ID] = ladder
	}

	rows, err = tx.Query(ctx, `SELECT system, component, multiplier, fixed_per_hour FROM export_pricing_rules`)
	if err != nil {
		return Snapshot{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var system string
		var rule PricingRule
		if err := rows.Scan(&system, &rule.Component, &rule.Multiplier, &rule.FixedPerHour); err != nil {
			return Snapshot{}, err
		}
		if snapshot.Pricing[system] == nil {
			snapshot.Pricing[system] = map[string]PricingRule{}
		}
		snapshot.Pricing[system][rule.Component] = rule
	}
	return snapshot, rows.Err()
}

func (s *Store) listRules(ctx context.Context, q querier) ([]SupplementRule, error) {
	rows, err := q.Query(ctx, `
    SELECT id, category, window_start_minute, window_end_minute, weekdays, holiday_only, auto_calculated
    FROM wage_supplement_rules
    ORDER BY category, id
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []SupplementRule
	for rows.Next() {
		var rule SupplementRule
		var weekdays []int16
		if err := rows.Scan(&rule.ID, &rule.Category, &rule.WindowStart, &rule.WindowEnd, &weekdays, &rule.HolidayOnly, &rule.AutoCalculated); err != nil {
			return nil, err
		}
		for _, day := range weekdays {
			rule.Weekdays = append(rule.Weekdays, time.Weekday(day))
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (s *Store) overtimePolicy(ctx context.Context, q querier) (OvertimePolicy, error) {
	var policy OvertimePolicy
	var start, weekly, annual decimal.NullDecimal
	err := q.QueryRow(ctx, `
    SELECT tier1_start_hours, tier1_width_hours, weekly_cap_hours, annual_cap_hours
    FROM overtime_policy
    WHERE id = 1
  `).Scan(&start, &policy.Tier1WidthHours, &weekly, &annual)
	if errors.Is(err, pgx.ErrNoRows) {
		return OvertimePolicy{}, nil
	}
	if err != nil {
		return OvertimePolicy{}, err
	}
	if start.Valid {
		policy.Tier1StartHours = &start.Decimal
	}
	if weekly.Valid {
		policy.WeeklyCapHours = &weekly.Decimal
	}
	if annual.Valid {
		policy.AnnualCapHours = &annual.Decimal
	}
	return policy, nil
}

func (s *Store) CreateRule(ctx context.Context, rule SupplementRule) (string, error) {
	weekdays := make([]int16, 0, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdays = append(weekdays, int16(day))
	}
	var id string
	err := s.DB.QueryRow(ctx, `
    INSERT INTO wage_supplement_rules (category, window_start_minute, window_end_minute, weekdays, holiday_only, auto_calculated)
    VALUES ($1,$2,$3,$4,$5,$6)
    RETURNING id
  `, rule.Category, rule.WindowStart, rule.WindowEnd, weekdays, rule.HolidayOnly, rule.AutoCalculated).Scan(&id)
	return id, err
}

func (s *Store) ListLadders(ctx context.Context) ([]Ladder, error) {
	return s.listLadders(ctx, s.DB)
}

func (s *Store) listLadders(ctx context.Context, q querier) ([]Ladder, error) {
	rows, err := q.Query(ctx, `
    SELECT l.id, l.name, l.competence_tag, v.level, v.min_hours, v.max_hours, v.hourly_rate, v.effective_from
    FROM wage_ladders l
    LEFT JOIN wage_ladder_levels v ON v.ladder_id = l.id
    ORDER BY l.name, l.id, v.level
  `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ladders []Ladder
	for rows.Next() {
		var ladderID, name, tag string
		var level *int
		var minHours, maxHours, rate decimal.NullDecimal
		var effectiveFrom *time.Time
		if err := rows.Scan(&ladderID, &name, &tag, &level, &minHours, &maxHours, &rate, &effectiveFrom); err != nil {
			return nil, err
		}
		if len(ladders) == 0 || ladders[len(ladders)-1].ID != ladderID {
			ladders = append(ladders, Ladder{ID: ladderID, Name: name, CompetenceTag: tag})
		}
		if level == nil {
			continue
		}
		current := &ladders[len(ladders)-1]
		current.Levels = append(current.Levels, s.levelFromRow(*level, minHours, maxHours, rate, effectiveFrom))
	}
	return ladders, rows.Err()
}

func (s *Store) GetLadder(ctx context.Context, ladderID string) (Ladder, error) {
	var ladder Ladder
	err := s.DB.QueryRow(ctx, `SELECT id, name, competence_tag FROM wage_ladders WHERE id = $1`, ladderID).
		Scan(&ladder.ID, &ladder.Name, &ladder.CompetenceTag)
	if errors.Is(err, pgx.ErrNoRows) {
		return Ladder{}, ErrLadderNotFound
	}
	if err != nil {
		return Ladder{}, err
	}

	rows, err := s.DB.Query(ctx, `
    SELECT level, min_hours, max_hours, hourly_rate, effective_from
    FROM wage_ladder_levels
    WHERE ladder_id = $1
    ORDER BY level
  `, ladderID)
	if err != nil {
		return Ladder{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var level int
		var minHours, maxHours, rate decimal.NullDecimal
		var effectiveFrom *time.Time
		if err := rows.Scan(&level, &minHours, &maxHours, &rate, &effectiveFrom); err != nil {
			return Ladder{}, err
		}
		ladder.Levels = append(ladder.Levels, s.levelFromRow(level, minHours, maxHours, rate, effectiveFrom))
	}
	return ladder, rows.Err()
}

func (s *Store) levelFromRow(level int, minHours, maxHours, rate decimal.NullDecimal, effectiveFrom *time.Time) LadderLevel {
	out := LadderLevel{Level: level, MinHours: minHours.Decimal, HourlyRate: rate.Decimal}
	if maxHours.Valid {
		upper := maxHours.Decimal
		out.MaxHours = &upper
	}
	if effectiveFrom != nil {
		out.EffectiveFrom = attendance.LocalDate(*effectiveFrom, s.Location)
	}
	return out
}

func (s *Store) CreateLadder(ctx context.Context, ladder Ladder) (string, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	if err := tx.QueryRow(ctx, `
    INSERT INTO wage_ladders (name, competence_tag) VALUES ($1,$2) RETURNING id
  `, ladder.Name, ladder.CompetenceTag).Scan(&id); err != nil {
		return "", err
	}
	if err := insertLevelsTx(ctx, tx, id, ladder.Levels); err != nil {
		return "", err
	}
	return id, tx.Commit(ctx)
}

func (s *Store) ReplaceLadderLevels(ctx context.Context, ladderID string, levels []LadderLevel) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `UPDATE wage_ladders SET updated_at = now() WHERE id = $1`, ladderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrLadderNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM wage_ladder_levels WHERE ladder_id = $1`, ladderID); err != nil {
		return err
	}
	if err := insertLevelsTx(ctx, tx, ladderID, levels); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func insertLevelsTx(ctx context.Context, tx pgx.Tx, ladderID string, levels []LadderLevel) error {
	for _, level := range levels {
		effectiveFrom := level.EffectiveFrom
		if effectiveFrom.IsZero() {
			effectiveFrom = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
		}
		var maxHours any
		if level.MaxHours != nil {
			maxHours = *level.MaxHours
		}
		if _, err := tx.Exec(ctx, `
      INSERT INTO wage_ladder_levels (ladder_id, level, min_hours, max_hours, hourly_rate, effective_from)
      VALUES ($1,$2,$3,$4,$5,$6)
    `, ladderID, level.Level, level.MinHours, maxHours, level.HourlyRate, effectiveFrom); err != nil {
			return fmt.Errorf("insert level %d: %w", level.Level, err)
		}
	}
	return nil
}

const stateColumns = `employee_id, COALESCE(ladder_id::text, ''), accumulated_hours, current_level, version`

func scanState(row pgx.Row) (EmployeeState, error) {
	var state EmployeeState
	err := row.Scan(&state.EmployeeID, &state.LadderID, &state.AccumulatedHours, &state.CurrentLevel, &state.Version)
	return state, err
}

func (s *Store) GetState(ctx context.Context, employeeID string) (EmployeeState, error) {
	state, err := scanState(s.DB.QueryRow(ctx, `SELECT `+stateColumns+` FROM employee_wage_state WHERE employee_id = $1`, employeeID))
	if errors.Is(err, pgx.ErrNoRows) {
		return EmployeeState{}, ErrEmployeeNotFound
	}
	return state, err
}

func (s *Store) ListStates(ctx context.Context, employeeIDs []string) (map[string]EmployeeState, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+stateColumns+` FROM employee_wage_state WHERE employee_id = ANY($1)`, employeeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	states := make(map[string]EmployeeState, len(employeeIDs))
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states[state.EmployeeID] = state
	}
	return states, rows.Err()
}

func (s *Store) ListAssignedStates(ctx context.Context) ([]EmployeeState, error) {
	rows, err := s.DB.Query(ctx, `SELECT `+stateColumns+` FROM employee_wage_state WHERE ladder_id IS NOT NULL ORDER BY employee_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var states []EmployeeState
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		states = append(states, state)
	}
	return states, rows.Err()
}

// SetRecordedLevel is a single conditional update; zero rows affected means
// the version moved or, with forwardOnly, the level is already at or above.
func (s *Store) SetRecordedLevel(ctx context.Context, employeeID string, expectedVersion int64, level int, forwardOnly bool) error {
	query := `
    UPDATE employee_wage_state
    SET current_level = $1, version = version + 1, updated_at = now()
    WHERE employee_id = $2 AND version = $3
  `
	if forwardOnly {
		query += " AND current_level < $1"
	}
	tag, err := s.DB.Exec(ctx, query, level, employeeID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleWageState
	}
	return nil
}

func (s *Store) AdjustHours(ctx context.Context, employeeID string, expectedVersion int64, hours decimal.Decimal, source, reason string) (EmployeeState, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return EmployeeState{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	state, err := scanState(tx.QueryRow(ctx, `
    UPDATE employee_wage_state
    SET accumulated_hours = accumulated_hours + $1, version = version + 1, updated_at = now()
    WHERE employee_id = $2 AND version = $3 AND accumulated_hours + $1 >= 0
    RETURNING `+stateColumns, hours, employeeID, expectedVersion))
	if errors.Is(err, pgx.ErrNoRows) {
		return EmployeeState{}, ErrStaleWageState
	}
	if err != nil {
		return EmployeeState{}, err
	}
	if _, err := tx.Exec(ctx, `
    INSERT INTO wage_hour_adjustments (employee_id, hours, source, reason) VALUES ($1,$2,$3,$4)
  `, employeeID, hours, source, reason); err != nil {
		return EmployeeState{}, err
	}
	return state, tx.Commit(ctx)
}

func (s *Store) ListAdjustments(ctx context.Context, employeeID string, limit, offset int) ([]HourAdjustment, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, employee_id, hours, source, reason, created_at
    FROM wage_hour_adjustments
    WHERE employee_id = $1
    ORDER BY created_at DESC
    LIMIT $2 OFFSET $3
  `, employeeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HourAdjustment
	for rows.Next() {
		var adj HourAdjustment
		if err := rows.Scan(&adj.ID, &adj.EmployeeID, &adj.Hours, &adj.Source, &adj.Reason, &adj.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, adj)
	}
	return out, rows.Err()
}

func (s *Store) BeginTx(ctx context.Context) (pgx.Tx, error) {
	return s.DB.Begin(ctx)
}

func (s *Store) ListUnaccruedApprovedTx(ctx context.Context, tx pgx.Tx, limit int) ([]attendance.Record, error) {
	rows, err := tx.Query(ctx, `
    SELECT id, employee_id, work_date, clock_in, clock_out, break_minutes, COALESCE(planned_shift_id, ''), status
    FROM attendance_records
    WHERE status = $1 AND accrued_at IS NULL
    ORDER BY work_date, id
    LIMIT $2
    FOR UPDATE SKIP LOCKED
  `, attendance.StatusApproved, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []attendance.Record
	for rows.Next() {
		var record attendance.Record
		var workDate time.Time
		if err := rows.Scan(&record.ID, &record.EmployeeID, &workDate, &record.ClockIn, &record.ClockOut, &record.BreakMinutes, &record.PlannedShiftID, &record.Status); err != nil {
			return nil, err
		}
		record.WorkDate = attendance.LocalDate(workDate, s.Location)
		records = append(records, record)
	}
	return records, rows.Err()
}

// AccrueHoursTx creates the state row on first accrual so hours are kept
// even before a ladder is assigned.
func (s *Store) AccrueHoursTx(ctx context.Context, tx pgx.Tx, employeeID string, hours decimal.Decimal) error {
	if _, err := tx.Exec(ctx, `
    INSERT INTO employee_wage_state (employee_id, accumulated_hours)
    VALUES ($1,$2)
    ON CONFLICT (employee_id)
      DO UPDATE SET accumulated_hours = employee_wage_state.accumulated_hours + EXCLUDED.accumulated_hours,
                    version = employee_wage_state.version + 1,
                    updated_at = now()
  `, employeeID, hours); err != nil {
		return err
	}
	_, err := tx.Exec(ctx, `
    INSERT INTO wage_hour_adjustments (employee_id, hours, source) VALUES ($1,$2,$3)
  `, employeeID, hours, AdjustmentSourceAccrual)
	return err
}

func (s *Store) MarkAccruedTx(ctx context.Context, tx pgx.Tx, recordIDs []string, accruedAt time.Time) error {
	_, err := tx.Exec(ctx, `UPDATE attendance_records SET accrued_at = $1 WHERE id = ANY($2)`, accruedAt, recordIDs)
	return err
}

func (s *Store) AssignLadder(ctx context.Context, employeeID, ladderID string) error {
	_, err := s.DB.Exec(ctx, `
    INSERT INTO employee_wage_state (employee_id, ladder_id)
    VALUES ($1,$2)
    ON CONFLICT (employee_id)
      DO UPDATE SET ladder_id = EXCLUDED.ladder_id, version = employee_wage_state.version + 1, updated_at = now()
  `, employeeID, ladderID)
	return err
}
