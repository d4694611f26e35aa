package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"wfm/internal/domain/payroll"
	"wfm/internal/domain/wage"
)

const (
	SystemFixedWidth = "fixedwidth"

	fixedEmployeeWidth = 8
	fixedRecordLength  = 50
)

var fixedComponents = map[string]string{
	payroll.ComponentBase:      "BASE",
	wage.CategoryEvening:       "EVEN",
	wage.CategoryNight:         "NGHT",
	wage.CategoryWeekend:       "WKND",
	wage.CategoryHoliday:       "HOLI",
	payroll.ComponentOvertime1: "OT1 ",
	payroll.ComponentOvertime2: "OT2 ",
}

// FixedWidth writes a header record, one detail record per line and a
// trailer with count and total. Every record is fixedRecordLength bytes
// followed by CRLF; numbers are zero padded in hundredths.
//
//	H YYYYMMDD YYYYMMDD
//	D employee(8) date(8) component(4) hours(7) rate(9) amount(11)
//	T count(9) total(13)
type FixedWidth struct {
	identities map[string]string
}

func NewFixedWidth(identities map[string]string) *FixedWidth {
	return &FixedWidth{identities: identities}
}

func (f *FixedWidth) System() string { return SystemFixedWidth }

func (f *FixedWidth) Formats() []string { return []string{"txt"} }

func (f *FixedWidth) ValidateEmployeeIdentities(employeeIDs []string) payroll.IdentityPartition {
	return payroll.PartitionByMapping(employeeIDs, f.identities, func(code string) bool { return isDigits(code, fixedEmployeeWidth) })
}

func (f *FixedWidth) Serialize(lines []payroll.Line, format string) (payroll.File, error) {
	if format != "txt" {
		return payroll.File{}, unsupported(SystemFixedWidth, format)
	}

	var buf bytes.Buffer
	header := "H"
	if len(lines) > 0 {
		header += lines[0].Period.Start.Format("20060102") + lines[0].Period.End.Format("20060102")
	}
	writeRecord(&buf, header)

	for _, line := range lines {
		record, err := f.detail(line)
		if err != nil {
			return payroll.File{}, payroll.SerializationError(SystemFixedWidth, err)
		}
		writeRecord(&buf, record)
	}

	total, err := hundredths(payroll.TotalAmount(lines), 13)
	if err != nil {
		return payroll.File{}, payroll.SerializationError(SystemFixedWidth, err)
	}
	writeRecord(&buf, fmt.Sprintf("T%09d%s", len(lines), total))

	return payroll.File{Content: buf.Bytes(), Filename: fileName(SystemFixedWidth, lines, "txt"), MimeType: MimeText}, nil
}

func (f *FixedWidth) detail(line payroll.Line) (string, error) {
	code := f.identities[line.EmployeeID]
	if !isDigits(code, fixedEmployeeWidth) {
		return "", fmt.Errorf("employee %s has no personnel number of at most %d digits", line.EmployeeID, fixedEmployeeWidth)
	}
	component, ok := fixedComponents[line.Component]
	if !ok {
		return "", fmt.Errorf("no record code for component %q", line.Component)
	}
	hours, err := hundredths(line.Quantity, 7)
	if err != nil {
		return "", err
	}
	rate, err := hundredths(line.Rate, 9)
	if err != nil {
		return "", err
	}
	amount, err := hundredths(line.Amount, 11)
	if err != nil {
		return "", err
	}
	return "D" + strings.Repeat("0", fixedEmployeeWidth-len(code)) + code + line.WorkDate.Format("20060102") + component + hours + rate + amount, nil
}

// hundredths renders a non-negative value as zero padded hundredths.
func hundredths(value decimal.Decimal, width int) (string, error) {
	if value.IsNegative() {
		return "", fmt.Errorf("negative value %s", value)
	}
	out := value.Shift(2).Round(0).String()
	if len(out) > width {
		return "", fmt.Errorf("value %s does not fit %d digits", value, width)
	}
	return strings.Repeat("0", width-len(out)) + out, nil
}

func writeRecord(buf *bytes.Buffer, record string) {
	buf.WriteString(record)
	buf.WriteString(strings.Repeat(" ", max(0, fixedRecordLength-len(record))))
	buf.WriteString("\r\n")
}
