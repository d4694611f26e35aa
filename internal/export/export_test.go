package export

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"wfm/internal/domain/payroll"
	"wfm/internal/domain/wage"
)

var (
	march   = payroll.Period{Start: date("2025-03-01"), End: date("2025-03-31")}
	mapping = map[string]string{"emp-1": "123", "emp-2": "45"}
)

func date(value string) time.Time {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		panic(err)
	}
	return t
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

func sampleLines() []payroll.Line {
	return []payroll.Line{
		{
			EmployeeID: "emp-1", Period: march, WorkDate: date("2025-03-10"),
			Component: payroll.ComponentBase, Kind: payroll.KindBase,
			Quantity: dec("7.5"), Rate: dec("200"), Amount: dec("1500"),
			SourceType: payroll.SourceAttendance, SourceIDs: []string{"rec-1"},
		},
		{
			EmployeeID: "emp-1", Period: march, WorkDate: date("2025-03-10"),
			Component: "night", Kind: payroll.KindSupplement,
			Quantity: dec("2"), Rate: dec("200"), Amount: dec("100"),
			SourceType: payroll.SourceAttendance, SourceIDs: []string{"rec-1"},
		},
		{
			EmployeeID: "emp-2", Period: march, WorkDate: date("2025-03-11"),
			Component: payroll.ComponentOvertime1, Kind: payroll.KindOvertime,
			Quantity: dec("1.25"), Rate: dec("180"), Amount: dec("337.5"),
			SourceType: payroll.SourceCalculated, SourceIDs: []string{"rec-2"},
		},
	}
}

func adapters() []payroll.Adapter {
	return []payroll.Adapter{NewGeneric(mapping), NewWageType(mapping), NewFixedWidth(mapping)}
}

func TestRegisterDefaults(t *testing.T) {
	registry := payroll.NewRegistry()
	RegisterDefaults(registry)

	systems := registry.Systems()
	require.Len(t, systems, 3)
	require.Equal(t, SystemFixedWidth, systems[0].System)
	require.Equal(t, SystemGeneric, systems[1].System)
	require.Equal(t, SystemWageType, systems[2].System)

	_, err := registry.Adapter("unknown", nil)
	require.ErrorIs(t, err, payroll.ErrUnknownSystem)
}

func TestSerializeIsDeterministic(t *testing.T) {
	for _, adapter := range adapters() {
		for _, format := range adapter.Formats() {
			t.Run(adapter.System()+"/"+format, func(t *testing.T) {
				first, err := adapter.Serialize(sampleLines(), format)
				require.NoError(t, err)
				second, err := adapter.Serialize(sampleLines(), format)
				require.NoError(t, err)
				require.Equal(t, first, second)
				require.NotEmpty(t, first.Filename)
				require.NotEmpty(t, first.MimeType)
			})
		}
	}
}

func TestSerializeDoesNotModifyLines(t *testing.T) {
	for _, adapter := range adapters() {
		for _, format := range adapter.Formats() {
			lines := sampleLines()
			_, err := adapter.Serialize(lines, format)
			require.NoError(t, err, "%s/%s", adapter.System(), format)
			require.Equal(t, sampleLines(), lines, "%s/%s", adapter.System(), format)
		}
	}
}

func TestUnsupportedFormat(t *testing.T) {
	for _, adapter := range adapters() {
		file, err := adapter.Serialize(sampleLines(), "docx")
		require.ErrorIs(t, err, payroll.ErrUnsupportedFormat, adapter.System())
		require.NotErrorIs(t, err, payroll.ErrAdapterSerialization)
		require.Empty(t, file.Content)
	}
}

func TestEveryCategoryHasACode(t *testing.T) {
	for _, category := range wage.Categories {
		require.Contains(t, wageTypes, category)
		require.Contains(t, fixedComponents, category)
	}
}

func TestValidateEmployeeIdentities(t *testing.T) {
	identities := map[string]string{
		"numeric":   "00042",
		"long":      "123456789",
		"alpha":     "EMP-7",
		"blank":     "",
		"eightwide": "12345678",
	}
	ids := []string{"numeric", "long", "alpha", "blank", "eightwide", "unmapped"}

	tests := []struct {
		name    string
		adapter payroll.Adapter
		valid   []string
		missing []string
	}{
		{
			name:    "generic accepts any code",
			adapter: NewGeneric(identities),
			valid:   []string{"numeric", "long", "alpha", "eightwide"},
			missing: []string{"blank", "unmapped"},
		},
		{
			name:    "wagetype needs digits",
			adapter: NewWageType(identities),
			valid:   []string{"numeric", "long", "eightwide"},
			missing: []string{"alpha", "blank", "unmapped"},
		},
		{
			name:    "fixedwidth needs at most eight digits",
			adapter: NewFixedWidth(identities),
			valid:   []string{"numeric", "eightwide"},
			missing: []string{"long", "alpha", "blank", "unmapped"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			partition := tt.adapter.ValidateEmployeeIdentities(ids)
			require.Equal(t, tt.valid, partition.Valid)
			require.Equal(t, tt.missing, partition.Missing)
		})
	}
}

func TestGenericCSV(t *testing.T) {
	file, err := NewGeneric(mapping).Serialize(sampleLines(), "csv")
	require.NoError(t, err)
	require.Equal(t, "generic_20250301_20250331.csv", file.Filename)
	require.Equal(t, MimeCSV, file.MimeType)

	rows := strings.Split(strings.TrimSpace(string(file.Content)), "\n")
	require.Len(t, rows, 4)
	require.Equal(t, strings.Join(genericHeader, ","), rows[0])
	require.Equal(t, "123,emp-1,2025-03-10,base,base,7.5000,200.00,1500.00,attendance,rec-1", rows[1])
	require.Equal(t, "45,emp-2,2025-03-11,overtime_1,overtime,1.2500,180.00,337.50,calculated,rec-2", rows[3])
}

func TestGenericJSON(t *testing.T) {
	file, err := NewGeneric(mapping).Serialize(sampleLines(), "json")
	require.NoError(t, err)

	var doc genericDocument
	require.NoError(t, json.Unmarshal(file.Content, &doc))
	require.Equal(t, 3, doc.Count)
	require.Equal(t, "1937.50", doc.Total)
	require.Equal(t, "2025-03-01", doc.PeriodStart)
	require.Equal(t, "night", doc.Lines[1].Component)
	require.Equal(t, []string{"rec-1"}, doc.Lines[1].SourceIDs)
}

func TestGenericEmptyJSON(t *testing.T) {
	file, err := NewGeneric(mapping).Serialize(nil, "json")
	require.NoError(t, err)
	require.Equal(t, "generic_empty.json", file.Filename)

	var doc genericDocument
	require.NoError(t, json.Unmarshal(file.Content, &doc))
	require.Zero(t, doc.Count)
	require.Equal(t, "0.00", doc.Total)
	require.Empty(t, doc.Lines)
}

func TestGenericXLSXReadsBack(t *testing.T) {
	file, err := NewGeneric(mapping).Serialize(sampleLines(), "xlsx")
	require.NoError(t, err)
	require.Equal(t, MimeXLSX, file.MimeType)

	book, err := excelize.OpenReader(bytes.NewReader(file.Content))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows(genericSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, genericHeader, rows[0])
	require.Equal(t, "123", rows[1][0])
	require.Equal(t, "337.50", rows[3][7])
}

func TestGenericPDF(t *testing.T) {
	file, err := NewGeneric(mapping).Serialize(sampleLines(), "pdf")
	require.NoError(t, err)
	require.Equal(t, MimePDF, file.MimeType)
	require.True(t, bytes.HasPrefix(file.Content, []byte("%PDF")))

	for i := 0; i < 5; i++ {
		again, err := NewGeneric(mapping).Serialize(sampleLines(), "pdf")
		require.NoError(t, err)
		require.Equal(t, file.Content, again.Content)
	}

	empty, err := NewGeneric(mapping).Serialize(nil, "pdf")
	require.NoError(t, err)
	emptyAgain, err := NewGeneric(mapping).Serialize(nil, "pdf")
	require.NoError(t, err)
	require.Equal(t, empty.Content, emptyAgain.Content)
}

func TestWageTypeCSV(t *testing.T) {
	file, err := NewWageType(mapping).Serialize(sampleLines(), "csv")
	require.NoError(t, err)
	require.Equal(t, "wagetype_20250301_20250331.csv", file.Filename)

	want := "personnel_number;wage_type;date;hours;rate;amount\r\n" +
		"123;1000;10.03.2025;7,50;200,00;1500,00\r\n" +
		"123;1220;10.03.2025;2,00;200,00;100,00\r\n" +
		"45;1310;11.03.2025;1,25;180,00;337,50\r\n"
	require.Equal(t, want, string(file.Content))
}

func TestWageTypeXLSX(t *testing.T) {
	file, err := NewWageType(mapping).Serialize(sampleLines(), "xlsx")
	require.NoError(t, err)

	book, err := excelize.OpenReader(bytes.NewReader(file.Content))
	require.NoError(t, err)
	defer book.Close()

	rows, err := book.GetRows("Wage types")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.Equal(t, []string{"123", "1220", "10.03.2025", "2,00", "200,00", "100,00"}, rows[2])
}

func TestWageTypeRejectsWholeFile(t *testing.T) {
	tests := []struct {
		name  string
		patch func(lines []payroll.Line)
	}{
		{"unknown component", func(lines []payroll.Line) { lines[1].Component = "standby" }},
		{"non numeric identity", func(lines []payroll.Line) { lines[2].EmployeeID = "emp-9" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := sampleLines()
			tt.patch(lines)
			file, err := NewWageType(map[string]string{"emp-1": "123", "emp-2": "45", "emp-9": "X9"}).Serialize(lines, "csv")
			require.ErrorIs(t, err, payroll.ErrAdapterSerialization)
			require.Empty(t, file.Content)
		})
	}
}

func TestFixedWidthRecords(t *testing.T) {
	file, err := NewFixedWidth(mapping).Serialize(sampleLines(), "txt")
	require.NoError(t, err)
	require.Equal(t, MimeText, file.MimeType)
	require.Equal(t, "fixedwidth_20250301_20250331.txt", file.Filename)

	content := string(file.Content)
	require.True(t, strings.HasSuffix(content, "\r\n"))
	records := strings.Split(strings.TrimSuffix(content, "\r\n"), "\r\n")
	require.Len(t, records, 5)
	for _, record := range records {
		require.Len(t, record, fixedRecordLength)
	}

	require.Equal(t, "H2025030120250331", strings.TrimRight(records[0], " "))
	require.Equal(t, "D0000012320250310BASE000075000002000000000150000", strings.TrimRight(records[1], " "))
	require.Equal(t, "D0000012320250310NGHT000020000002000000000010000", strings.TrimRight(records[2], " "))
	require.Equal(t, "D0000004520250311OT1 000012500001800000000033750", strings.TrimRight(records[3], " "))
	require.Equal(t, "T0000000030000000193750", strings.TrimRight(records[4], " "))
}

func TestFixedWidthRejectsUnrepresentableValues(t *testing.T) {
	tests := []struct {
		name  string
		patch func(lines []payroll.Line)
	}{
		{"negative amount", func(lines []payroll.Line) { lines[0].Amount = dec("-1") }},
		{"hours overflow", func(lines []payroll.Line) { lines[0].Quantity = dec("100000") }},
		{"unknown component", func(lines []payroll.Line) { lines[0].Component = "standby" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := sampleLines()
			tt.patch(lines)
			_, err := NewFixedWidth(mapping).Serialize(lines, "txt")
			require.ErrorIs(t, err, payroll.ErrAdapterSerialization)
		})
	}
}

func TestHundredths(t *testing.T) {
	tests := []struct {
		value string
		width int
		want  string
	}{
		{"0", 5, "00000"},
		{"7.5", 7, "0000750"},
		{"0.005", 4, "0001"},
		{"12.344", 6, "001234"},
	}
	for _, tt := range tests {
		got, err := hundredths(dec(tt.value), tt.width)
		require.NoError(t, err)
		require.Equal(t, tt.want, got, tt.value)
	}
}
