package wagehandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"wfm/internal/domain/audit"
	"wfm/internal/domain/wage"
	"wfm/internal/transport/http/middleware"
)

type fakeWages struct {
	states      map[string]wage.EmployeeState
	pending     map[string]wage.PendingProgression
	rules       []wage.SupplementRule
	adjustments []decimal.Decimal
}

func newFakeWages() *fakeWages {
	return &fakeWages{
		states: map[string]wage.EmployeeState{
			"emp-1": {EmployeeID: "emp-1", LadderID: "ladder-1", AccumulatedHours: decimal.NewFromInt(1200), CurrentLevel: 1},
			"emp-2": {EmployeeID: "emp-2"},
		},
		pending: map[string]wage.PendingProgression{
			"emp-1": {EmployeeID: "emp-1", LadderID: "ladder-1", OldLevel: 1, NewLevel: 2},
		},
	}
}

func (f *fakeWages) Snapshot(context.Context) (wage.Snapshot, error) {
	return wage.Snapshot{Version: "v1"}, nil
}

func (f *fakeWages) Progress(_ context.Context, employeeID string) (wage.Progress, error) {
	state, ok := f.states[employeeID]
	if !ok {
		return wage.Progress{}, wage.ErrEmployeeNotFound
	}
	if state.LadderID == "" {
		return wage.Progress{}, wage.ErrNoLadderAssigned
	}
	return wage.Progress{EmployeeID: employeeID, LadderID: state.LadderID, RecordedLevel: state.CurrentLevel}, nil
}

func (f *fakeWages) PendingProgressions(context.Context) ([]wage.PendingProgression, error) {
	out := []wage.PendingProgression{}
	for _, p := range f.pending {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeWages) ApplyProgression(_ context.Context, employeeID string) (wage.PendingProgression, error) {
	p, ok := f.pending[employeeID]
	if !ok {
		return wage.PendingProgression{}, wage.ErrNoPendingProgression
	}
	delete(f.pending, employeeID)
	return p, nil
}

func (f *fakeWages) ApplyProgressions(ctx context.Context, employeeIDs []string) (wage.ProgressionBatch, error) {
	batch := wage.ProgressionBatch{Applied: []wage.PendingProgression{}, Failed: []wage.ProgressionFailure{}}
	if len(employeeIDs) == 0 {
		for id := range f.pending {
			employeeIDs = append(employeeIDs, id)
		}
	}
	for _, id := range employeeIDs {
		p, err := f.ApplyProgression(ctx, id)
		if err != nil {
			batch.Failed = append(batch.Failed, wage.ProgressionFailure{EmployeeID: id, Reason: err.Error()})
			continue
		}
		batch.Applied = append(batch.Applied, p)
	}
	return batch, nil
}

func (f *fakeWages) AdjustHours(_ context.Context, employeeID string, hours decimal.Decimal, _ string) (wage.EmployeeState, error) {
	state, ok := f.states[employeeID]
	if !ok {
		return wage.EmployeeState{}, wage.ErrEmployeeNotFound
	}
	next := state.AccumulatedHours.Add(hours)
	if next.IsNegative() {
		return wage.EmployeeState{}, wage.ErrNegativeHours
	}
	state.AccumulatedHours = next
	f.states[employeeID] = state
	f.adjustments = append(f.adjustments, hours)
	return state, nil
}

func (f *fakeWages) CorrectLevel(context.Context, string, int) error { return nil }

func (f *fakeWages) ListAdjustments(context.Context, string, int, int) ([]wage.HourAdjustment, error) {
	return []wage.HourAdjustment{}, nil
}

func (f *fakeWages) AssignLadder(_ context.Context, _, ladderID string) error {
	if ladderID != "ladder-1" {
		return wage.ErrLadderNotFound
	}
	return nil
}

func (f *fakeWages) ListLadders(context.Context) ([]wage.Ladder, error) { return []wage.Ladder{}, nil }

func (f *fakeWages) GetLadder(_ context.Context, ladderID string) (wage.Ladder, error) {
	if ladderID != "ladder-1" {
		return wage.Ladder{}, wage.ErrLadderNotFound
	}
	return wage.Ladder{ID: ladderID}, nil
}

func (f *fakeWages) CreateLadder(_ context.Context, ladder wage.Ladder) (string, error) {
	if err := wage.ValidateLadder(ladder); err != nil {
		return "", err
	}
	return "ladder-2", nil
}

func (f *fakeWages) ReplaceLadderLevels(_ context.Context, ladderID string, levels []wage.LadderLevel) error {
	return wage.ValidateLadder(wage.Ladder{ID: ladderID, Levels: levels})
}

func (f *fakeWages) CreateRule(_ context.Context, rule wage.SupplementRule) (string, error) {
	if err := wage.ValidateRule(rule); err != nil {
		return "", err
	}
	f.rules = append(f.rules, rule)
	return "rule-1", nil
}

type fakeJobs struct {
	accrued int
}

func (f *fakeJobs) Accrue(context.Context) (any, error) {
	f.accrued++
	return wage.AccrualSummary{RecordsAccrued: 3, EmployeesUpdated: 1}, nil
}

func (f *fakeJobs) Reconcile(context.Context) (any, error) {
	return map[string]any{"pending": 1}, nil
}

type recordingAuditor struct {
	entries []audit.Entry
}

func (a *recordingAuditor) Record(_ context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

type fixture struct {
	wages  *fakeWages
	jobs   *fakeJobs
	audit  *recordingAuditor
	router http.Handler
}

func newFixture() *fixture {
	f := &fixture{wages: newFakeWages(), jobs: &fakeJobs{}, audit: &recordingAuditor{}}
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	NewHandler(f.wages, f.jobs, f.audit).RegisterRoutes(router)
	f.router = router
	return f
}

type response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func (f *fixture) do(t *testing.T, method, path, body string) (int, response) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set(middleware.ActorHeader, "hr-admin")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var out response
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
	}
	return rec.Code, out
}

func TestProgressStatusCodes(t *testing.T) {
	f := newFixture()
	tests := []struct {
		path string
		want int
	}{
		{"/wage/employees/emp-1/progress", http.StatusOK},
		{"/wage/employees/emp-2/progress", http.StatusConflict},
		{"/wage/employees/emp-9/progress", http.StatusNotFound},
	}
	for _, tt := range tests {
		if code, _ := f.do(t, http.MethodGet, tt.path, ""); code != tt.want {
			t.Fatalf("%s: expected %d, got %d", tt.path, tt.want, code)
		}
	}
}

func TestApplyProgressionRecordsAudit(t *testing.T) {
	f := newFixture()
	code, out := f.do(t, http.MethodPost, "/wage/employees/emp-1/progression/apply", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var applied wage.PendingProgression
	if err := json.Unmarshal(out.Data, &applied); err != nil || applied.NewLevel != 2 {
		t.Fatalf("unexpected body %s", out.Data)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != audit.ActionProgressionApply || f.audit.entries[0].Actor != "hr-admin" {
		t.Fatalf("unexpected audit entries %+v", f.audit.entries)
	}

	code, out = f.do(t, http.MethodPost, "/wage/employees/emp-1/progression/apply", "")
	if code != http.StatusConflict || out.Error.Code != "invalid_state" {
		t.Fatalf("expected conflict on second apply, got %d", code)
	}
}

func TestApplyProgressionsWithoutBodyAppliesAll(t *testing.T) {
	f := newFixture()
	code, out := f.do(t, http.MethodPost, "/wage/progressions/apply", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	var batch wage.ProgressionBatch
	if err := json.Unmarshal(out.Data, &batch); err != nil {
		t.Fatal(err)
	}
	if len(batch.Applied) != 1 || len(batch.Failed) != 0 {
		t.Fatalf("unexpected batch %+v", batch)
	}

	code, out = f.do(t, http.MethodPost, "/wage/progressions/apply", `{"employeeIds":["emp-2"]}`)
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if err := json.Unmarshal(out.Data, &batch); err != nil || len(batch.Failed) != 1 {
		t.Fatalf("expected one failure, got %s", out.Data)
	}
}

func TestAdjustHours(t *testing.T) {
	f := newFixture()
	tests := []struct {
		name string
		body string
		want int
	}{
		{"negative correction", `{"hours":"-200.5","reason":"double counted shift"}`, http.StatusOK},
		{"below zero", `{"hours":"-5000","reason":"typo"}`, http.StatusBadRequest},
		{"not a number", `{"hours":"ten","reason":"typo"}`, http.StatusBadRequest},
		{"missing reason", `{"hours":"4"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code, _ := f.do(t, http.MethodPost, "/wage/employees/emp-1/adjustments", tt.body); code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, code)
			}
		})
	}
	if len(f.wages.adjustments) != 1 || !f.wages.adjustments[0].Equal(decimal.RequireFromString("-200.5")) {
		t.Fatalf("unexpected adjustments %v", f.wages.adjustments)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != audit.ActionHoursAdjust {
		t.Fatalf("unexpected audit entries %+v", f.audit.entries)
	}
}

func TestCreateRule(t *testing.T) {
	f := newFixture()
	code, _ := f.do(t, http.MethodPost, "/wage/rules", `{"category":"Night","windowStart":"22:00","windowEnd":"06:00"}`)
	if code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", code)
	}
	rule := f.wages.rules[0]
	if rule.Category != "night" || *rule.WindowStart != 22*60 || *rule.WindowEnd != 6*60 || !rule.AutoCalculated {
		t.Fatalf("unexpected rule %+v", rule)
	}

	tests := []struct {
		name string
		body string
		code string
	}{
		{"bad clock", `{"category":"night","windowStart":"25:00","windowEnd":"06:00"}`, "validation_error"},
		{"bad weekday", `{"category":"weekend","weekdays":[7]}`, "validation_error"},
		{"unrestricted", `{"category":"anytime"}`, "invalid_request"},
		{"unmapped category", `{"category":"hazard","windowStart":"22:00","windowEnd":"06:00"}`, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, out := f.do(t, http.MethodPost, "/wage/rules", tt.body)
			if code != http.StatusBadRequest || out.Error.Code != tt.code {
				t.Fatalf("expected 400 %s, got %d %+v", tt.code, code, out.Error)
			}
		})
	}
}

func TestLadderEndpoints(t *testing.T) {
	f := newFixture()
	gap := `{"name":"Care","levels":[{"level":1,"minHours":"0","maxHours":"1000","hourlyRate":"180"},{"level":2,"minHours":"1200","hourlyRate":"195"}]}`
	code, out := f.do(t, http.MethodPost, "/wage/ladders", gap)
	if code != http.StatusBadRequest || out.Error.Code != "invalid_request" {
		t.Fatalf("expected gap to be rejected, got %d", code)
	}

	valid := `{"levels":[{"level":1,"minHours":"0","maxHours":"1000","hourlyRate":"180"},{"level":2,"minHours":"1000","hourlyRate":"195"}]}`
	if code, _ := f.do(t, http.MethodPut, "/wage/ladders/ladder-1/levels", valid); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPut, "/wage/ladders/ladder-9/levels", valid); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code, _ := f.do(t, http.MethodPut, "/wage/employees/emp-1/ladder", `{"ladderId":"ladder-9"}`); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if len(f.audit.entries) != 1 || f.audit.entries[0].Action != audit.ActionLadderUpdate {
		t.Fatalf("unexpected audit entries %+v", f.audit.entries)
	}
}

func TestRunAccrual(t *testing.T) {
	f := newFixture()
	code, out := f.do(t, http.MethodPost, "/wage/accrual/run", "")
	if code != http.StatusOK || f.jobs.accrued != 1 {
		t.Fatalf("expected accrual to run, got %d", code)
	}
	var summary wage.AccrualSummary
	if err := json.Unmarshal(out.Data, &summary); err != nil || summary.RecordsAccrued != 3 {
		t.Fatalf("unexpected summary %s", out.Data)
	}
}
