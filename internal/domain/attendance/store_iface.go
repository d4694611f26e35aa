package attendance

import (
	"context"
	"time"
)

// StoreAPI is the read side the payroll engine consumes. Approval itself
// happens elsewhere; only approved records are returned.
type StoreAPI interface {
	ListApproved(ctx context.Context, from, to time.Time, employeeIDs []string) ([]Record, error)
}

var _ StoreAPI = (*Store)(nil)
