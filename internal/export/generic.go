package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"wfm/internal/domain/payroll"
)

const SystemGeneric = "generic"

var genericHeader = []string{"employee_code", "employee_id", "work_date", "component", "kind", "quantity", "rate", "amount", "source_type", "source_ids"}

// Generic accepts any non-empty external code and writes plain tabular
// formats with dot decimals.
type Generic struct {
	identities map[string]string
}

func NewGeneric(identities map[string]string) *Generic {
	return &Generic{identities: identities}
}

func (g *Generic) System() string { return SystemGeneric }

func (g *Generic) Formats() []string { return []string{"csv", "json", "xlsx", "pdf"} }

func (g *Generic) ValidateEmployeeIdentities(employeeIDs []string) payroll.IdentityPartition {
	return payroll.PartitionByMapping(employeeIDs, g.identities, nil)
}

func (g *Generic) Serialize(lines []payroll.Line, format string) (payroll.File, error) {
	var content []byte
	var mime string
	var err error
	switch format {
	case "csv":
		content, err = g.csv(lines)
		mime = MimeCSV
	case "json":
		content, err = g.json(lines)
		mime = MimeJSON
	case "xlsx":
		content, err = g.xlsx(lines)
		mime = MimeXLSX
	case "pdf":
		content, err = g.pdf(lines)
		mime = MimePDF
	default:
		return payroll.File{}, unsupported(SystemGeneric, format)
	}
	if err != nil {
		return payroll.File{}, payroll.SerializationError(SystemGeneric, err)
	}
	return payroll.File{Content: content, Filename: fileName(SystemGeneric, lines, format), MimeType: mime}, nil
}

func (g *Generic) row(line payroll.Line) []string {
	return []string{
		g.identities[line.EmployeeID],
		line.EmployeeID,
		isoDate(line.WorkDate),
		line.Component,
		line.Kind,
		line.Quantity.StringFixed(4),
		line.Rate.StringFixed(2),
		line.Amount.StringFixed(2),
		line.SourceType,
		strings.Join(line.SourceIDs, "|"),
	}
}

func (g *Generic) csv(lines []payroll.Line) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(genericHeader); err != nil {
		return nil, err
	}
	for _, line := range lines {
		if err := w.Write(g.row(line)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type genericDocument struct {
	System      string        `json:"system"`
	PeriodStart string        `json:"periodStart,omitempty"`
	PeriodEnd   string        `json:"periodEnd,omitempty"`
	Count       int           `json:"count"`
	Total       string        `json:"total"`
	Lines       []genericLine `json:"lines"`
}

type genericLine struct {
	EmployeeCode string   `json:"employeeCode"`
	EmployeeID   string   `json:"employeeId"`
	WorkDate     string   `json:"workDate"`
	Component    string   `json:"component"`
	Kind         string   `json:"kind"`
	Quantity     string   `json:"quantity"`
	Rate         string   `json:"rate"`
	Amount       string   `json:"amount"`
	SourceType   string   `json:"sourceType"`
	SourceIDs    []string `json:"sourceIds"`
}

func (g *Generic) json(lines []payroll.Line) ([]byte, error) {
	doc := genericDocument{
		System: SystemGeneric,
		Count:  len(lines),
		Total:  payroll.TotalAmount(lines).StringFixed(2),
		Lines:  make([]genericLine, 0, len(lines)),
	}
	if len(lines) > 0 {
		doc.PeriodStart = isoDate(lines[0].Period.Start)
		doc.PeriodEnd = isoDate(lines[0].Period.End)
	}
	for _, line := range lines {
		sources := line.SourceIDs
		if sources == nil {
			sources = []string{}
		}
		doc.Lines = append(doc.Lines, genericLine{
			EmployeeCode: g.identities[line.EmployeeID],
			EmployeeID:   line.EmployeeID,
			WorkDate:     isoDate(line.WorkDate),
			Component:    line.Component,
			Kind:         line.Kind,
			Quantity:     line.Quantity.StringFixed(4),
			Rate:         line.Rate.StringFixed(2),
			Amount:       line.Amount.StringFixed(2),
			SourceType:   line.SourceType,
			SourceIDs:    sources,
		})
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal json: %w", err)
	}
	return data, nil
}

const genericSheet = "Lines"

func (g *Generic) xlsx(lines []payroll.Line) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", genericSheet); err != nil {
		return nil, err
	}
	if err := writeSheetRow(f, genericSheet, 1, genericHeader); err != nil {
		return nil, err
	}
	for i, line := range lines {
		if err := writeSheetRow(f, genericSheet, i+2, g.row(line)); err != nil {
			return nil, err
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeSheetRow(f *excelize.File, sheet string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]any, len(values))
	for i, value := range values {
		cells[i] = value
	}
	return f.SetSheetRow(sheet, cell, &cells)
}

func (g *Generic) pdf(lines []payroll.Line) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	// Fonts and images are kept in maps; sorting fixes their object order.
	pdf.SetCatalogSort(true)
	stamp := time.Unix(0, 0).UTC()
	if len(lines) > 0 {
		stamp = lines[0].Period.End
	}
	pdf.SetCreationDate(stamp)
	pdf.SetModificationDate(stamp)
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	title := "Payroll lines"
	if len(lines) > 0 {
		title = fmt.Sprintf("Payroll lines %s to %s", isoDate(lines[0].Period.Start), isoDate(lines[0].Period.End))
	}
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	widths := []float64{28, 34, 24, 28, 22, 22, 22, 26}
	header := []string{"Code", "Employee", "Date", "Component", "Hours", "Rate", "Amount", "Source"}
	pdf.SetFont("Helvetica", "B", 9)
	for i, title := range header {
		pdf.CellFormat(widths[i], 7, title, "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, line := range lines {
		row := g.row(line)
		cells := []string{row[0], row[1], row[2], row[3], line.Quantity.StringFixed(2), row[6], row[7], row[8]}
		for i, value := range cells {
			align := "L"
			if i >= 4 && i <= 6 {
				align = "R"
			}
			pdf.CellFormat(widths[i], 6, value, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 8, fmt.Sprintf("Lines: %d  Total: %s", len(lines), payroll.TotalAmount(lines).StringFixed(2)))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
