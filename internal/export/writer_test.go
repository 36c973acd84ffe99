package export

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/dataspect/dataspect/internal/frame"

	"github.com/xuri/excelize/v2"
)

func resultFrame() *frame.Frame {
	f := frame.New([]string{"customers.name", "revenue", "signed_up"})
	f.AppendRow([]any{"Alice", float64(150), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)})
	f.AppendRow([]any{"Bob", int64(75), nil})
	return f
}

func TestWriteCSV_HeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, resultFrame(), FormatCSV); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse output: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d records", len(records))
	}
	if records[0][0] != "customers.name" {
		t.Errorf("expected qualified header, got %q", records[0][0])
	}
	if records[1][2] != "2024-03-01T00:00:00Z" {
		t.Errorf("expected RFC3339 timestamp, got %q", records[1][2])
	}
	if records[2][2] != "" {
		t.Errorf("expected empty cell for NULL, got %q", records[2][2])
	}
}

func TestWriteXLSX_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, resultFrame(), FormatXLSX); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	file, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("failed to reopen workbook: %v", err)
	}
	defer file.Close()

	rows, err := file.GetRows(file.GetSheetName(0))
	if err != nil {
		t.Fatalf("failed to read rows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d", len(rows))
	}
	if rows[0][1] != "revenue" {
		t.Errorf("expected revenue header, got %q", rows[0][1])
	}
	if rows[2][0] != "Bob" {
		t.Errorf("expected Bob in second data row, got %q", rows[2][0])
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat(""); err != nil || f != FormatCSV {
		t.Errorf("expected empty input to default to csv, got %v %v", f, err)
	}
	if f, err := ParseFormat("xlsx"); err != nil || f != FormatXLSX {
		t.Errorf("expected xlsx, got %v %v", f, err)
	}
	if _, err := ParseFormat("parquet"); err == nil || !strings.Contains(err.Error(), "parquet") {
		t.Errorf("expected unsupported format error naming parquet, got %v", err)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := FormatCSV.Filename("orders"); got != "orders.csv" {
		t.Errorf("unexpected filename %q", got)
	}
	if got := FormatXLSX.ContentType(); !strings.Contains(got, "spreadsheetml") {
		t.Errorf("unexpected content type %q", got)
	}
}
