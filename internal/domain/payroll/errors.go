package payroll

import "errors"

var (
	ErrRunNotFound          = errors.New("payroll export run not found")
	ErrRunTerminal          = errors.New("payroll export run is already completed or failed")
	ErrRunNotFailed         = errors.New("only failed payroll export runs can be retried")
	ErrInvalidPeriod        = errors.New("payroll period end must not precede start")
	ErrUnknownSystem        = errors.New("unknown payroll system")
	ErrUnsupportedFormat    = errors.New("unsupported export format")
	ErrAdapterSerialization = errors.New("payroll export serialization failed")
	ErrInvalidMapping       = errors.New("employee id and external code required")
)
