package wagehandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"wfm/internal/domain/audit"
	"wfm/internal/domain/wage"
	"wfm/internal/transport/http/api"
	"wfm/internal/transport/http/middleware"
	"wfm/internal/transport/http/shared"
)

type WageService interface {
	Snapshot(ctx context.Context) (wage.Snapshot, error)
	Progress(ctx context.Context, employeeID string) (wage.Progress, error)
	PendingProgressions(ctx context.Context) ([]wage.PendingProgression, error)
	ApplyProgression(ctx context.Context, employeeID string) (wage.PendingProgression, error)
	ApplyProgressions(ctx context.Context, employeeIDs []string) (wage.ProgressionBatch, error)
	AdjustHours(ctx context.Context, employeeID string, hours decimal.Decimal, reason string) (wage.EmployeeState, error)
	CorrectLevel(ctx context.Context, employeeID string, level int) error
	ListAdjustments(ctx context.Context, employeeID string, limit, offset int) ([]wage.HourAdjustment, error)
	AssignLadder(ctx context.Context, employeeID, ladderID string) error
	ListLadders(ctx context.Context) ([]wage.Ladder, error)
	GetLadder(ctx context.Context, ladderID string) (wage.Ladder, error)
	CreateLadder(ctx context.Context, ladder wage.Ladder) (string, error)
	ReplaceLadderLevels(ctx context.Context, ladderID string, levels []wage.LadderLevel) error
	CreateRule(ctx context.Context, rule wage.SupplementRule) (string, error)
}

// Jobs runs batch work through the job log so manual runs show up next to
// scheduled ones.
type Jobs interface {
	Accrue(ctx context.Context) (any, error)
	Reconcile(ctx context.Context) (any, error)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Handler struct {
	Service WageService
	Jobs    Jobs
	Audit   Auditor
}

func NewHandler(service WageService, jobs Jobs, auditor Auditor) *Handler {
	return &Handler{Service: service, Jobs: jobs, Audit: auditor}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/wage", func(r chi.Router) {
		r.Get("/snapshot", h.handleSnapshot)
		r.Get("/ladders", h.handleListLadders)
		r.Post("/ladders", h.handleCreateLadder)
		r.Get("/ladders/{ladderID}", h.handleGetLadder)
		r.Put("/ladders/{ladderID}/levels", h.handleReplaceLevels)
		r.Post("/rules", h.handleCreateRule)
		r.Get("/employees/{employeeID}/progress", h.handleProgress)
		r.Put("/employees/{employeeID}/ladder", h.handleAssignLadder)
		r.Put("/employees/{employeeID}/level", h.handleCorrectLevel)
		r.Get("/employees/{employeeID}/adjustments", h.handleListAdjustments)
		r.Post("/employees/{employeeID}/adjustments", h.handleAdjustHours)
		r.Post("/employees/{employeeID}/progression/apply", h.handleApplyProgression)
		r.Get("/progressions/pending", h.handlePendingProgressions)
		r.Post("/progressions/apply", h.handleApplyProgressions)
		r.Post("/progressions/reconcile", h.handleReconcile)
		r.Post("/accrual/run", h.handleRunAccrual)
	})
}

func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.Service.Snapshot(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, snapshot, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListLadders(w http.ResponseWriter, r *http.Request) {
	ladders, err := h.Service.ListLadders(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, ladders, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetLadder(w http.ResponseWriter, r *http.Request) {
	ladder, err := h.Service.GetLadder(r.Context(), chi.URLParam(r, "ladderID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, ladder, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateLadder(w http.ResponseWriter, r *http.Request) {
	var payload wage.Ladder
	if !decode(w, r, &payload) {
		return
	}
	id, err := h.Service.CreateLadder(r.Context(), payload)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, audit.ActionLadderCreate, "wage_ladder", id, nil, payload)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReplaceLevels(w http.ResponseWriter, r *http.Request) {
	ladderID := chi.URLParam(r, "ladderID")
	var payload struct {
		Levels []wage.LadderLevel `json:"levels"`
	}
	if !decode(w, r, &payload) {
		return
	}
	before, err := h.Service.GetLadder(r.Context(), ladderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Service.ReplaceLadderLevels(r.Context(), ladderID, payload.Levels); err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, audit.ActionLadderUpdate, "wage_ladder", ladderID, before.Levels, payload.Levels)
	api.Success(w, map[string]string{"status": "updated"}, middleware.GetRequestID(r.Context()))
}

type rulePayload struct {
	Category       string `json:"category"`
	WindowStart    string `json:"windowStart"`
	WindowEnd      string `json:"windowEnd"`
	Weekdays       []int  `json:"weekdays"`
	HolidayOnly    bool   `json:"holidayOnly"`
	AutoCalculated *bool  `json:"autoCalculated"`
}

func (h *Handler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var payload rulePayload
	if !decode(w, r, &payload) {
		return
	}
	rule, ok := parseRule(w, r, payload)
	if !ok {
		return
	}
	id, err := h.Service.CreateRule(r.Context(), rule)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, audit.ActionRuleCreate, "wage_supplement_rule", id, nil, rule)
	api.Created(w, map[string]string{"id": id}, middleware.GetRequestID(r.Context()))
}

func parseRule(w http.ResponseWriter, r *http.Request, payload rulePayload) (wage.SupplementRule, bool) {
	v := shared.NewValidator()
	v.Required("category", payload.Category, "is required")
	rule := wage.SupplementRule{
		Category:       strings.ToLower(strings.TrimSpace(payload.Category)),
		HolidayOnly:    payload.HolidayOnly,
		AutoCalculated: payload.AutoCalculated == nil || *payload.AutoCalculated,
	}
	for field, raw := range map[string]string{"windowStart": payload.WindowStart, "windowEnd": payload.WindowEnd} {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		minute, err := wage.ClockMinute(strings.TrimSpace(raw))
		if err != nil {
			v.Add(field, "must be a clock time in HH:MM format")
			continue
		}
		if field == "windowStart" {
			rule.WindowStart = &minute
		} else {
			rule.WindowEnd = &minute
		}
	}
	for _, day := range payload.Weekdays {
		if day < 0 || day > 6 {
			v.Add("weekdays", "must be between 0 (Sunday) and 6 (Saturday)")
			break
		}
		rule.Weekdays = append(rule.Weekdays, time.Weekday(day))
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return wage.SupplementRule{}, false
	}
	return rule, true
}

func (h *Handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	progress, err := h.Service.Progress(r.Context(), chi.URLParam(r, "employeeID"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, progress, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAssignLadder(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	var payload struct {
		LadderID string `json:"ladderId"`
	}
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("ladderId", payload.LadderID, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	if err := h.Service.AssignLadder(r.Context(), employeeID, payload.LadderID); err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, map[string]string{"employeeId": employeeID, "ladderId": payload.LadderID}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCorrectLevel(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	var payload struct {
		Level  int    `json:"level"`
		Reason string `json:"reason"`
	}
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	v.Required("reason", payload.Reason, "is required")
	if payload.Level <= 0 {
		v.Add("level", "must be positive")
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	if err := h.Service.CorrectLevel(r.Context(), employeeID, payload.Level); err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, audit.ActionLevelCorrect, "employee_wage_state", employeeID, nil, payload)
	api.Success(w, map[string]any{"employeeId": employeeID, "level": payload.Level}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListAdjustments(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 500)
	adjustments, err := h.Service.ListAdjustments(r.Context(), chi.URLParam(r, "employeeID"), page.Limit, page.Offset)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, adjustments, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleAdjustHours(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	var payload struct {
		Hours  string `json:"hours"`
		Reason string `json:"reason"`
	}
	if !decode(w, r, &payload) {
		return
	}
	v := shared.NewValidator()
	hours, _ := v.Decimal("hours", payload.Hours)
	v.Required("reason", payload.Reason, "is required")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	state, err := h.Service.AdjustHours(r.Context(), employeeID, hours, payload.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, audit.ActionHoursAdjust, "employee_wage_state", employeeID, nil, map[string]string{"hours": hours.String(), "reason": payload.Reason})
	api.Success(w, state, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleApplyProgression(w http.ResponseWriter, r *http.Request) {
	employeeID := chi.URLParam(r, "employeeID")
	applied, err := h.Service.ApplyProgression(r.Context(), employeeID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.record(r, audit.ActionProgressionApply, "employee_wage_state", employeeID, map[string]int{"level": applied.OldLevel}, map[string]int{"level": applied.NewLevel})
	api.Success(w, applied, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePendingProgressions(w http.ResponseWriter, r *http.Request) {
	pending, err := h.Service.PendingProgressions(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, pending, middleware.GetRequestID(r.Context()))
}

// handleApplyProgressions applies the listed employees, or every pending
// progression when the list is empty.
func (h *Handler) handleApplyProgressions(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		EmployeeIDs []string `json:"employeeIds"`
	}
	if r.ContentLength != 0 && !decode(w, r, &payload) {
		return
	}
	batch, err := h.Service.ApplyProgressions(r.Context(), payload.EmployeeIDs)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, applied := range batch.Applied {
		h.record(r, audit.ActionProgressionApply, "employee_wage_state", applied.EmployeeID, map[string]int{"level": applied.OldLevel}, map[string]int{"level": applied.NewLevel})
	}
	api.Success(w, batch, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, r, h.Jobs.Reconcile)
}

func (h *Handler) handleRunAccrual(w http.ResponseWriter, r *http.Request) {
	h.runJob(w, r, h.Jobs.Accrue)
}

func (h *Handler) runJob(w http.ResponseWriter, r *http.Request, run func(context.Context) (any, error)) {
	result, err := run(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return false
	}
	return true
}

func (h *Handler) record(r *http.Request, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	entry := audit.Entry{
		Actor:      middleware.GetActor(r.Context()),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		Before:     before,
		After:      after,
	}
	if err := h.Audit.Record(r.Context(), entry); err != nil {
		slog.Warn("audit record failed", "action", action, "entityId", entityID, "err", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	switch {
	case errors.Is(err, wage.ErrEmployeeNotFound), errors.Is(err, wage.ErrLadderNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", err.Error(), requestID)
	case errors.Is(err, wage.ErrLadderGapOrOverlap),
		errors.Is(err, wage.ErrNoLadderLevels),
		errors.Is(err, wage.ErrInvalidRule),
		errors.Is(err, wage.ErrInvalidInput),
		errors.Is(err, wage.ErrNegativeHours):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), requestID)
	case errors.Is(err, wage.ErrNoLadderAssigned), errors.Is(err, wage.ErrNoPendingProgression):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case errors.Is(err, wage.ErrStaleWageState):
		api.Fail(w, http.StatusConflict, "stale_state", err.Error(), requestID)
	default:
		slog.Warn("wage request failed", "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "wage_failed", "wage request failed", requestID)
	}
}
