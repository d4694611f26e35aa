package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"wfm/internal/domain/wage"
	"wfm/internal/platform/config"
)

const (
	JobHourAccrual          = "hour_accrual"
	JobProgressionReconcile = "progression_reconcile"

	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"

	queueSize = 128
)

// RunLog persists one row per job execution.
type RunLog interface {
	Start(ctx context.Context, jobType string) (string, error)
	Finish(ctx context.Context, runID, status string, details []byte) error
}

type Service struct {
	Runs  RunLog
	Wages *wage.Service
	Cfg   config.Config
	queue chan job
}

type job struct {
	Type string
	Run  func(context.Context) (any, error)
}

func New(runs RunLog, wages *wage.Service, cfg config.Config) *Service {
	return &Service{
		Runs:  runs,
		Wages: wages,
		Cfg:   cfg,
		queue: make(chan job, queueSize),
	}
}

func (s *Service) Start(ctx context.Context) {
	go s.worker(ctx)
	if s.Cfg.AccrualInterval > 0 {
		go s.schedule(ctx, s.Cfg.AccrualInterval, JobHourAccrual, s.accrue)
	}
	if s.Cfg.ProgressionInterval > 0 {
		go s.schedule(ctx, s.Cfg.ProgressionInterval, JobProgressionReconcile, s.reconcile)
	}
}

// Enqueue never blocks; a job is dropped with a warning when the queue is full.
func (s *Service) Enqueue(jobType string, run func(context.Context) (any, error)) bool {
	select {
	case s.queue <- job{Type: jobType, Run: run}:
		return true
	default:
		slog.Warn("job queue full", "jobType", jobType)
		return false
	}
}

func (s *Service) RunNow(ctx context.Context, jobType string, run func(context.Context) (any, error)) (any, error) {
	return s.runJob(ctx, job{Type: jobType, Run: run})
}

// Accrue runs the hour accrual job immediately.
func (s *Service) Accrue(ctx context.Context) (any, error) {
	return s.RunNow(ctx, JobHourAccrual, s.accrue)
}

// Reconcile runs progression reconciliation immediately. It only reports
// pending progressions; applying them stays an explicit action.
func (s *Service) Reconcile(ctx context.Context) (any, error) {
	return s.RunNow(ctx, JobProgressionReconcile, s.reconcile)
}

func (s *Service) accrue(ctx context.Context) (any, error) {
	return s.Wages.Accrue(ctx)
}

func (s *Service) reconcile(ctx context.Context) (any, error) {
	pending, err := s.Wages.PendingProgressions(ctx)
	if err != nil {
		return nil, err
	}
	employees := make([]string, 0, len(pending))
	for _, p := range pending {
		employees = append(employees, p.EmployeeID)
	}
	return map[string]any{"pending": len(pending), "employees": employees}, nil
}

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			if _, err := s.runJob(ctx, j); err != nil {
				slog.Warn("job run failed", "jobType", j.Type, "err", err)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, j job) (any, error) {
	runID, err := s.Runs.Start(ctx, j.Type)
	if err != nil {
		slog.Warn("job run insert failed", "jobType", j.Type, "err", err)
	}

	details, err := j.Run(ctx)
	status := StatusCompleted
	if err != nil {
		status = StatusFailed
		details = map[string]any{"error": err.Error(), "result": details}
	}
	detailsJSON, marshalErr := json.Marshal(details)
	if marshalErr != nil {
		slog.Warn("job details marshal failed", "jobType", j.Type, "err", marshalErr)
		detailsJSON = []byte("{}")
	}
	if runID != "" {
		if updErr := s.Runs.Finish(context.WithoutCancel(ctx), runID, status, detailsJSON); updErr != nil {
			slog.Warn("job run update failed", "jobType", j.Type, "err", updErr)
		}
	}
	return details, err
}

func (s *Service) schedule(ctx context.Context, interval time.Duration, jobType string, run func(context.Context) (any, error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Enqueue(jobType, run)
		}
	}
}
