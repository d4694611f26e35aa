// Package export holds one payroll adapter per external payroll system.
package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"wfm/internal/domain/payroll"
)

const (
	MimeCSV  = "text/csv"
	MimeJSON = "application/json"
	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimePDF  = "application/pdf"
	MimeText = "text/plain"
)

// MimeType is the content type of files written in format.
func MimeType(format string) string {
	switch format {
	case "csv":
		return MimeCSV
	case "json":
		return MimeJSON
	case "xlsx":
		return MimeXLSX
	case "pdf":
		return MimePDF
	case "txt":
		return MimeText
	}
	return "application/octet-stream"
}

// RegisterDefaults installs every adapter this package ships.
func RegisterDefaults(registry *payroll.Registry) {
	registry.Register(SystemGeneric, func(identities map[string]string) payroll.Adapter { return NewGeneric(identities) })
	registry.Register(SystemWageType, func(identities map[string]string) payroll.Adapter { return NewWageType(identities) })
	registry.Register(SystemFixedWidth, func(identities map[string]string) payroll.Adapter { return NewFixedWidth(identities) })
}

// fileName is derived from the lines only, so the same lines always give the
// same name.
func fileName(system string, lines []payroll.Line, ext string) string {
	if len(lines) == 0 {
		return fmt.Sprintf("%s_empty.%s", system, ext)
	}
	period := lines[0].Period
	return fmt.Sprintf("%s_%s_%s.%s", system, period.Start.Format("20060102"), period.End.Format("20060102"), ext)
}

func unsupported(system, format string) error {
	return fmt.Errorf("%w: %s does not support %q", payroll.ErrUnsupportedFormat, system, format)
}

func isDigits(code string, maxLen int) bool {
	if code == "" || (maxLen > 0 && len(code) > maxLen) {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func decimalComma(value decimal.Decimal, places int32) string {
	return strings.Replace(value.StringFixed(places), ".", ",", 1)
}

func isoDate(t time.Time) string {
	return t.Format(time.DateOnly)
}
