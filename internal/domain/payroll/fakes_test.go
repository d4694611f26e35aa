package payroll

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"wfm/internal/domain/attendance"
	"wfm/internal/domain/audit"
	"wfm/internal/domain/wage"
)

type memoryStore struct {
	mu       sync.Mutex
	runs     map[string]ExportRun
	lines    map[string][]ExportLine
	mappings map[string]map[string]string

	finishErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		runs:     map[string]ExportRun{},
		lines:    map[string][]ExportLine{},
		mappings: map[string]map[string]string{},
	}
}

func (m *memoryStore) CreateRun(_ context.Context, run ExportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; ok {
		return fmt.Errorf("run %s exists", run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *memoryStore) InsertLines(_ context.Context, lines []ExportLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, line := range lines {
		m.lines[line.RunID] = append(m.lines[line.RunID], line)
	}
	return nil
}

func (m *memoryStore) FinishRun(_ context.Context, run ExportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.finishErr != nil {
		return m.finishErr
	}
	stored, ok := m.runs[run.ID]
	if !ok || stored.Status != RunStatusProcessing {
		return ErrRunTerminal
	}
	m.runs[run.ID] = run
	for i := range m.lines[run.ID] {
		if m.lines[run.ID][i].Status == LineStatusPending {
			m.lines[run.ID][i].Status = run.LineStatus()
		}
	}
	return nil
}

func (m *memoryStore) GetRun(_ context.Context, runID string) (ExportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ExportRun{}, ErrRunNotFound
	}
	return run, nil
}

func (m *memoryStore) CountRuns(_ context.Context, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.runs), nil
}

func (m *memoryStore) ListRuns(_ context.Context, _ string, _, _ int) ([]ExportRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ExportRun
	for _, run := range m.runs {
		out = append(out, run)
	}
	return out, nil
}

func (m *memoryStore) ListRunLines(_ context.Context, runID string, _, _ int) ([]ExportLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lines[runID], nil
}

func (m *memoryStore) ListIdentityMappings(_ context.Context, system string, employeeIDs []string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]string{}
	for _, employeeID := range employeeIDs {
		if code, ok := m.mappings[system][employeeID]; ok {
			out[employeeID] = code
		}
	}
	return out, nil
}

func (m *memoryStore) UpsertIdentityMapping(_ context.Context, system, employeeID, externalCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.mappings[system] == nil {
		m.mappings[system] = map[string]string{}
	}
	m.mappings[system][employeeID] = externalCode
	return nil
}

type memoryAttendance struct {
	records []attendance.Record
}

func (m *memoryAttendance) ListApproved(_ context.Context, from, to time.Time, employeeIDs []string) ([]attendance.Record, error) {
	period := Period{Start: from, End: to}
	var out []attendance.Record
	for _, record := range m.records {
		if !period.Contains(record.WorkDate) {
			continue
		}
		if len(employeeIDs) > 0 && !contains(employeeIDs, record.EmployeeID) {
			continue
		}
		out = append(out, record)
	}
	return out, nil
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}

type memoryWages struct {
	snapshot wage.Snapshot
	states   map[string]wage.EmployeeState
}

func (m *memoryWages) LoadSnapshot(context.Context) (wage.Snapshot, error) {
	return m.snapshot, nil
}

func (m *memoryWages) ListStates(_ context.Context, employeeIDs []string) (map[string]wage.EmployeeState, error) {
	out := map[string]wage.EmployeeState{}
	for _, employeeID := range employeeIDs {
		if state, ok := m.states[employeeID]; ok {
			out[employeeID] = state
		}
	}
	return out, nil
}

type memoryDelivery struct {
	files map[string]File
	err   error
}

func (m *memoryDelivery) Deliver(_ context.Context, runID string, file File) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if m.files == nil {
		m.files = map[string]File{}
	}
	m.files[runID] = file
	return "memory://" + runID + "/" + file.Filename, nil
}

type memoryAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (m *memoryAudit) Record(_ context.Context, entry audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

type countingRecorder struct {
	statuses []string
}

func (c *countingRecorder) RecordExportRun(_, status string, _ int, _ time.Duration) {
	c.statuses = append(c.statuses, status)
}

// lineAdapter writes one "code;component;date;quantity;amount" row per line.
type lineAdapter struct {
	identities map[string]string
}

func (a lineAdapter) System() string    { return "test" }
func (a lineAdapter) Formats() []string { return []string{"txt"} }

func (a lineAdapter) ValidateEmployeeIdentities(employeeIDs []string) IdentityPartition {
	return PartitionByMapping(employeeIDs, a.identities, nil)
}

func (a lineAdapter) Serialize(lines []Line, format string) (File, error) {
	if format != "txt" {
		return File{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	var b strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&b, "%s;%s;%s;%s;%s\n", a.identities[line.EmployeeID], line.Component,
			line.WorkDate.Format(time.DateOnly), line.Quantity.StringFixed(2), line.Amount.StringFixed(2))
	}
	return File{Content: []byte(b.String()), Filename: "lines.txt", MimeType: "text/plain"}, nil
}

func testRegistry() *Registry {
	registry := NewRegistry()
	registry.Register("test", func(identities map[string]string) Adapter { return lineAdapter{identities: identities} })
	return registry
}

var (
	friday   = time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	march    = Period{Start: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2025, 3, 31, 0, 0, 0, 0, time.UTC)}
	rate200  = decimal.NewFromInt(200)
	testTime = time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
)

func shift(id, employeeID string, day time.Time, inHour, inMinute, outHour, outMinute, breakMinutes int) attendance.Record {
	clockOut := time.Date(day.Year(), day.Month(), day.Day(), outHour, outMinute, 0, 0, day.Location())
	return attendance.Record{
		ID:           id,
		EmployeeID:   employeeID,
		WorkDate:     day,
		ClockIn:      time.Date(day.Year(), day.Month(), day.Day(), inHour, inMinute, 0, 0, day.Location()),
		ClockOut:     &clockOut,
		BreakMinutes: breakMinutes,
		Status:       attendance.StatusApproved,
	}
}

func singleLevelLadder() wage.Ladder {
	return wage.Ladder{ID: "ladder-1", Name: "Standard", Levels: []wage.LadderLevel{
		{Level: 1, MinHours: decimal.Zero, HourlyRate: rate200},
	}}
}

type harness struct {
	service  *Service
	store    *memoryStore
	delivery *memoryDelivery
	audit    *memoryAudit
	metrics  *countingRecorder
	wages    *memoryWages
}

func newHarness(records []attendance.Record, states map[string]wage.EmployeeState) *harness {
	h := &harness{
		store:    newMemoryStore(),
		delivery: &memoryDelivery{},
		audit:    &memoryAudit{},
		metrics:  &countingRecorder{},
		wages: &memoryWages{
			snapshot: wage.Snapshot{
				Version:  "v1",
				Holidays: wage.HolidayCalendar{},
				Ladders:  map[string]wage.Ladder{"ladder-1": singleLevelLadder()},
				Pricing:  map[string]map[string]wage.PricingRule{},
			},
			states: states,
		},
	}
	h.service = NewService(h.store, &memoryAttendance{records: records}, h.wages, testRegistry(), h.delivery, 4)
	h.service.Audit = h.audit
	h.service.Metrics = h.metrics
	h.service.Now = func() time.Time { return testTime }
	return h
}

func assigned(employeeIDs ...string) map[string]wage.EmployeeState {
	states := map[string]wage.EmployeeState{}
	for _, employeeID := range employeeIDs {
		states[employeeID] = wage.EmployeeState{EmployeeID: employeeID, LadderID: "ladder-1", CurrentLevel: 1, Version: 1}
	}
	return states
}

func fileEmployees(file File) []string {
	seen := map[string]bool{}
	for _, row := range strings.Split(strings.TrimSpace(string(file.Content)), "\n") {
		if row == "" {
			continue
		}
		seen[strings.SplitN(row, ";", 2)[0]] = true
	}
	var out []string
	for code := range seen {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
