package payroll

import (
	"time"

	"github.com/shopspring/decimal"
)

type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains compares calendar dates only, so the check does not depend on
// the locations the bounds were parsed in.
func (p Period) Contains(date time.Time) bool {
	day := date.Format(time.DateOnly)
	return day >= p.Start.Format(time.DateOnly) && day <= p.End.Format(time.DateOnly)
}

func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() || p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// Line is one quantity for one employee, component and work date. Amount
// stays zero until a pricing step for the target system runs.
type Line struct {
	EmployeeID string          `json:"employeeId"`
	Period     Period          `json:"period"`
	WorkDate   time.Time       `json:"workDate"`
	Component  string          `json:"component"`
	Kind       string          `json:"kind"`
	Quantity   decimal.Decimal `json:"quantity"`
	Rate       decimal.Decimal `json:"rate"`
	Amount     decimal.Decimal `json:"amount"`
	SourceType string          `json:"sourceType"`
	SourceIDs  []string        `json:"sourceIds"`
}

type Warning struct {
	Code       string `json:"code"`
	EmployeeID string `json:"employeeId,omitempty"`
	RecordID   string `json:"recordId,omitempty"`
	Message    string `json:"message"`
}

type LineSet struct {
	EmployeeID string    `json:"employeeId"`
	Lines      []Line    `json:"lines"`
	Warnings   []Warning `json:"warnings"`
}

type ExportRun struct {
	ID            string          `json:"id"`
	System        string          `json:"system"`
	Format        string          `json:"format"`
	PeriodStart   time.Time       `json:"periodStart"`
	PeriodEnd     time.Time       `json:"periodEnd"`
	EmployeeIDs   []string        `json:"employeeIds,omitempty"`
	Status        string          `json:"status"`
	EmployeeCount int             `json:"employeeCount"`
	LineCount     int             `json:"lineCount"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	Warnings      []Warning       `json:"warnings"`
	ErrorMessage  string          `json:"errorMessage,omitempty"`
	FileName      string          `json:"fileName,omitempty"`
	FileLocation  string          `json:"-"`
	ConfigVersion string          `json:"configVersion"`
	RetryOf       string          `json:"retryOf,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	ExportedAt    *time.Time      `json:"exportedAt,omitempty"`
}

// ExportLine is a Line as persisted against a run.
type ExportLine struct {
	ID     string `json:"id"`
	RunID  string `json:"runId"`
	Status string `json:"status"`
	Line
}

type ExportRequest struct {
	System      string   `json:"system"`
	Format      string   `json:"format"`
	Period      Period   `json:"period"`
	EmployeeIDs []string `json:"employeeIds,omitempty"`
	Actor       string   `json:"-"`
	RequestID   string   `json:"-"`
}

type Preview struct {
	ConfigVersion string          `json:"configVersion"`
	Lines         []Line          `json:"lines"`
	Warnings      []Warning       `json:"warnings"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
}
