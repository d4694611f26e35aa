package payrollhandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"wfm/internal/delivery"
	"wfm/internal/domain/audit"
	"wfm/internal/domain/payroll"
	"wfm/internal/domain/wage"
	"wfm/internal/export"
	"wfm/internal/transport/http/api"
	"wfm/internal/transport/http/middleware"
	"wfm/internal/transport/http/shared"
)

const exportEndpoint = "payroll.export"

type ExportService interface {
	Export(ctx context.Context, req payroll.ExportRequest) (payroll.ExportRun, error)
	Retry(ctx context.Context, runID, actor, requestID string) (payroll.ExportRun, error)
	Preview(ctx context.Context, req payroll.ExportRequest) (payroll.Preview, error)
	GetRun(ctx context.Context, runID string) (payroll.ExportRun, error)
	ListRuns(ctx context.Context, system string, limit, offset int) ([]payroll.ExportRun, int, error)
	RunLines(ctx context.Context, runID string, limit, offset int) ([]payroll.ExportLine, error)
	Systems() []payroll.SystemInfo
	MapIdentity(ctx context.Context, system, employeeID, externalCode string) error
}

type FileStore interface {
	Open(location string) ([]byte, error)
}

type Auditor interface {
	Record(ctx context.Context, entry audit.Entry) error
}

type Handler struct {
	Service     ExportService
	Files       FileStore
	Idempotency middleware.IdempotencyKeys
	Audit       Auditor
	Location    *time.Location
}

func NewHandler(service ExportService, files FileStore, idempotency middleware.IdempotencyKeys, auditor Auditor, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{Service: service, Files: files, Idempotency: idempotency, Audit: auditor, Location: loc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.Get("/systems", h.handleListSystems)
		r.Post("/preview", h.handlePreview)
		r.Get("/exports", h.handleListRuns)
		r.Post("/exports", h.handleCreateExport)
		r.Get("/exports/{runID}", h.handleGetRun)
		r.Get("/exports/{runID}/lines", h.handleListRunLines)
		r.Get("/exports/{runID}/download", h.handleDownload)
		r.Post("/exports/{runID}/retry", h.handleRetry)
		r.Put("/identity-mappings/{system}/{employeeID}", h.handleMapIdentity)
	})
}

type exportPayload struct {
	System      string   `json:"system"`
	Format      string   `json:"format"`
	PeriodStart string   `json:"periodStart"`
	PeriodEnd   string   `json:"periodEnd"`
	EmployeeIDs []string `json:"employeeIds"`
}

func (h *Handler) decodeExportRequest(w http.ResponseWriter, r *http.Request, requireTarget bool) (payroll.ExportRequest, []byte, bool) {
	requestID := middleware.GetRequestID(r.Context())
	var payload exportPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return payroll.ExportRequest{}, nil, false
	}

	v := shared.NewValidator()
	if requireTarget {
		v.Required("system", payload.System, "is required")
		v.Required("format", payload.Format, "is required")
	}
	start, _ := v.Day("periodStart", payload.PeriodStart, h.Location)
	end, _ := v.Day("periodEnd", payload.PeriodEnd, h.Location)
	v.DateOrder("periodStart", start, "periodEnd", end)
	if v.Reject(w, requestID) {
		return payroll.ExportRequest{}, nil, false
	}

	canonical, err := json.Marshal(payload)
	if err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return payroll.ExportRequest{}, nil, false
	}
	return payroll.ExportRequest{
		System:      strings.TrimSpace(payload.System),
		Format:      strings.ToLower(strings.TrimSpace(payload.Format)),
		Period:      payroll.Period{Start: start, End: end},
		EmployeeIDs: payload.EmployeeIDs,
		Actor:       middleware.GetActor(r.Context()),
		RequestID:   requestID,
	}, canonical, true
}

func (h *Handler) handleCreateExport(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	req, canonical, ok := h.decodeExportRequest(w, r, true)
	if !ok {
		return
	}

	idempotencyKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	requestHash := middleware.RequestHash(canonical)
	if idempotencyKey != "" && h.Idempotency != nil {
		stored, found, err := h.Idempotency.Check(r.Context(), exportEndpoint, idempotencyKey, requestHash)
		if errors.Is(err, middleware.ErrIdempotencyConflict) {
			api.Fail(w, http.StatusConflict, "idempotency_conflict", "idempotency key was used for a different request", requestID)
			return
		}
		if err != nil {
			slog.Warn("idempotency check failed", "endpoint", exportEndpoint, "err", err)
		}
		if found {
			api.Created(w, json.RawMessage(stored), requestID)
			return
		}
	}

	run, err := h.Service.Export(r.Context(), req)
	if err != nil {
		h.fail(w, err, requestID)
		return
	}

	if idempotencyKey != "" && h.Idempotency != nil {
		payload, err := json.Marshal(run)
		if err != nil {
			slog.Warn("export response marshal failed", "runId", run.ID, "err", err)
		} else if err := h.Idempotency.Save(r.Context(), exportEndpoint, idempotencyKey, requestHash, payload); err != nil {
			slog.Warn("idempotency save failed", "endpoint", exportEndpoint, "runId", run.ID, "err", err)
		}
	}
	api.Created(w, run, requestID)
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	req, _, ok := h.decodeExportRequest(w, r, false)
	if !ok {
		return
	}
	preview, err := h.Service.Preview(r.Context(), req)
	if err != nil {
		h.fail(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, preview, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListSystems(w http.ResponseWriter, r *http.Request) {
	api.Success(w, h.Service.Systems(), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 50, 200)
	runs, total, err := h.Service.ListRuns(r.Context(), r.URL.Query().Get("system"), page.Limit, page.Offset)
	if err != nil {
		h.fail(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	api.Success(w, page.Page(runs, total), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Service.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, run, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRunLines(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r, 500, 5000)
	lines, err := h.Service.RunLines(r.Context(), chi.URLParam(r, "runID"), page.Limit, page.Offset)
	if err != nil {
		h.fail(w, err, middleware.GetRequestID(r.Context()))
		return
	}
	api.Success(w, lines, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	run, err := h.Service.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.fail(w, err, requestID)
		return
	}
	if run.Status != payroll.RunStatusCompleted || run.FileLocation == "" {
		api.Fail(w, http.StatusConflict, "file_unavailable", "only completed runs have a file", requestID)
		return
	}
	content, err := h.Files.Open(run.FileLocation)
	if err != nil {
		if errors.Is(err, delivery.ErrFileNotFound) {
			api.Fail(w, http.StatusNotFound, "file_not_found", "export file not found", requestID)
			return
		}
		slog.Warn("export file open failed", "runId", run.ID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "file_open_failed", "failed to open export file", requestID)
		return
	}
	w.Header().Set("Content-Type", export.MimeType(run.Format))
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(run.FileName))
	w.Header().Set("Content-Length", strconv.Itoa(len(content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(content); err != nil {
		slog.Warn("export file write failed", "runId", run.ID, "err", err)
	}
}

func (h *Handler) handleRetry(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	run, err := h.Service.Retry(r.Context(), chi.URLParam(r, "runID"), middleware.GetActor(r.Context()), requestID)
	if err != nil {
		h.fail(w, err, requestID)
		return
	}
	api.Created(w, run, requestID)
}

func (h *Handler) handleMapIdentity(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetRequestID(r.Context())
	var payload struct {
		ExternalCode string `json:"externalCode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}
	system := chi.URLParam(r, "system")
	employeeID := chi.URLParam(r, "employeeID")
	code := strings.TrimSpace(payload.ExternalCode)
	if err := h.Service.MapIdentity(r.Context(), system, employeeID, code); err != nil {
		h.fail(w, err, requestID)
		return
	}
	if h.Audit != nil {
		entry := audit.Entry{
			Actor:      middleware.GetActor(r.Context()),
			Action:     audit.ActionMappingUpsert,
			EntityType: "identity_mapping",
			EntityID:   system + ":" + employeeID,
			RequestID:  requestID,
			After:      map[string]string{"externalCode": code},
		}
		if err := h.Audit.Record(r.Context(), entry); err != nil {
			slog.Warn("audit payroll.mapping.upsert failed", "err", err)
		}
	}
	api.Success(w, map[string]string{"system": system, "employeeId": employeeID, "externalCode": code}, requestID)
}

func (h *Handler) fail(w http.ResponseWriter, err error, requestID string) {
	switch {
	case errors.Is(err, payroll.ErrRunNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "payroll export run not found", requestID)
	case errors.Is(err, payroll.ErrUnknownSystem):
		api.Fail(w, http.StatusBadRequest, "unknown_system", err.Error(), requestID)
	case errors.Is(err, payroll.ErrUnsupportedFormat):
		api.Fail(w, http.StatusBadRequest, "unsupported_format", err.Error(), requestID)
	case errors.Is(err, payroll.ErrInvalidPeriod), errors.Is(err, payroll.ErrInvalidMapping):
		api.Fail(w, http.StatusBadRequest, "invalid_request", err.Error(), requestID)
	case errors.Is(err, payroll.ErrRunNotFailed), errors.Is(err, payroll.ErrRunTerminal):
		api.Fail(w, http.StatusConflict, "invalid_state", err.Error(), requestID)
	case errors.Is(err, wage.ErrNoLadderLevels):
		api.Fail(w, http.StatusUnprocessableEntity, "configuration_error", err.Error(), requestID)
	default:
		slog.Warn("payroll request failed", "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "payroll_failed", "payroll request failed", requestID)
	}
}
