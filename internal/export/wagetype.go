package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/xuri/excelize/v2"

	"wfm/internal/domain/payroll"
	"wfm/internal/domain/wage"
)

const SystemWageType = "wagetype"

// wageTypes maps line components to the numeric wage-type keys the target
// payroll system books against.
var wageTypes = map[string]string{
	payroll.ComponentBase:      "1000",
	wage.CategoryEvening:       "1210",
	wage.CategoryNight:         "1220",
	wage.CategoryWeekend:       "1230",
	wage.CategoryHoliday:       "1240",
	payroll.ComponentOvertime1: "1310",
	payroll.ComponentOvertime2: "1320",
}

var wageTypeHeader = []string{"personnel_number", "wage_type", "date", "hours", "rate", "amount"}

// WageType writes semicolon separated rows with decimal commas and
// DD.MM.YYYY dates. Personnel numbers must be numeric.
type WageType struct {
	identities map[string]string
}

func NewWageType(identities map[string]string) *WageType {
	return &WageType{identities: identities}
}

func (w *WageType) System() string { return SystemWageType }

func (w *WageType) Formats() []string { return []string{"csv", "xlsx"} }

func (w *WageType) ValidateEmployeeIdentities(employeeIDs []string) payroll.IdentityPartition {
	return payroll.PartitionByMapping(employeeIDs, w.identities, func(code string) bool { return isDigits(code, 0) })
}

func (w *WageType) Serialize(lines []payroll.Line, format string) (payroll.File, error) {
	if format != "csv" && format != "xlsx" {
		return payroll.File{}, unsupported(SystemWageType, format)
	}
	rows := make([][]string, 0, len(lines))
	for _, line := range lines {
		row, err := w.row(line)
		if err != nil {
			return payroll.File{}, payroll.SerializationError(SystemWageType, err)
		}
		rows = append(rows, row)
	}

	var content []byte
	var err error
	mime := MimeCSV
	if format == "csv" {
		content, err = w.csv(rows)
	} else {
		content, err = w.xlsx(rows)
		mime = MimeXLSX
	}
	if err != nil {
		return payroll.File{}, payroll.SerializationError(SystemWageType, err)
	}
	return payroll.File{Content: content, Filename: fileName(SystemWageType, lines, format), MimeType: mime}, nil
}

func (w *WageType) row(line payroll.Line) ([]string, error) {
	code, ok := wageTypes[line.Component]
	if !ok {
		return nil, fmt.Errorf("no wage type for component %q", line.Component)
	}
	number := w.identities[line.EmployeeID]
	if !isDigits(number, 0) {
		return nil, fmt.Errorf("employee %s has no numeric personnel number", line.EmployeeID)
	}
	return []string{
		number,
		code,
		line.WorkDate.Format("02.01.2006"),
		decimalComma(line.Quantity, 2),
		decimalComma(line.Rate, 2),
		decimalComma(line.Amount, 2),
	}, nil
}

func (w *WageType) csv(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	cw.Comma = ';'
	cw.UseCRLF = true
	if err := cw.Write(wageTypeHeader); err != nil {
		return nil, err
	}
	if err := cw.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (w *WageType) xlsx(rows [][]string) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Wage types"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := writeSheetRow(f, sheet, 1, wageTypeHeader); err != nil {
		return nil, err
	}
	for i, row := range rows {
		if err := writeSheetRow(f, sheet, i+2, row); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
