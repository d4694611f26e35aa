package payroll

import "context"

// StoreAPI persists runs and their lines. Nothing here deletes: runs and
// lines are the audit trail of what was sent where.
type StoreAPI interface {
	CreateRun(ctx context.Context, run ExportRun) error
	InsertLines(ctx context.Context, lines []ExportLine) error
	FinishRun(ctx context.Context, run ExportRun) error
	GetRun(ctx context.Context, runID string) (ExportRun, error)
	CountRuns(ctx context.Context, system string) (int, error)
	ListRuns(ctx context.Context, system string, limit, offset int) ([]ExportRun, error)
	ListRunLines(ctx context.Context, runID string, limit, offset int) ([]ExportLine, error)
	ListIdentityMappings(ctx context.Context, system string, employeeIDs []string) (map[string]string, error)
	UpsertIdentityMapping(ctx context.Context, system, employeeID, externalCode string) error
}
