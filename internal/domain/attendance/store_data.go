package attendance

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
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

func (s *Store) ListApproved(ctx context.Context, from, to time.Time, employeeIDs []string) ([]Record, error) {
	query := `
    SELECT id, employee_id, work_date, clock_in, clock_out, break_minutes, COALESCE(planned_shift_id, ''), status
    FROM attendance_records
    WHERE status = $1 AND work_date >= $2 AND work_date <= $3
  `
	args := []any{StatusApproved, from, to}
	if len(employeeIDs) > 0 {
		query += " AND employee_id = ANY($4)"
		args = append(args, employeeIDs)
	}
	query += " ORDER BY employee_id, work_date, clock_in"

	rows, err := s.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		record, err := s.scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func (s *Store) scanRecord(row pgx.Row) (Record, error) {
	var record Record
	var workDate time.Time
	if err := row.Scan(&record.ID, &record.EmployeeID, &workDate, &record.ClockIn, &record.ClockOut, &record.BreakMinutes, &record.PlannedShiftID, &record.Status); err != nil {
		return Record{}, err
	}
	record.WorkDate = LocalDate(workDate, s.Location)
	return record, nil
}

// LocalDate re-anchors a calendar date (as returned for DATE columns) at
// midnight in loc without shifting the day.
func LocalDate(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
}
