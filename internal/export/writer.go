// Package export renders query result frames as downloadable files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/dataspect/dataspect/internal/frame"

	"github.com/xuri/excelize/v2"
)

// Format is a supported download format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat maps a request parameter to a format, defaulting to CSV.
func ParseFormat(raw string) (Format, error) {
	switch raw {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", raw)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// Filename builds a download filename from a base name.
func (f Format) Filename(base string) string {
	if base == "" {
		base = "result"
	}
	return fmt.Sprintf("%s.%s", base, f)
}

// Write renders the frame to w in the given format.
func Write(w io.Writer, f *frame.Frame, format Format) error {
	if format == FormatXLSX {
		return writeXLSX(w, f)
	}
	return writeCSV(w, f)
}

func writeCSV(w io.Writer, f *frame.Frame) error {
	csvWriter := csv.NewWriter(w)

	if err := csvWriter.Write(f.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(f.Columns))
	for _, row := range f.Rows {
		for i := range f.Columns {
			var cell any
			if i < len(row) {
				cell = row[i]
			}
			record[i] = formatValue(cell)
		}
		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	csvWriter.Flush()
	if err := csvWriter.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func writeXLSX(w io.Writer, f *frame.Frame) error {
	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	stream, err := file.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("create stream writer: %w", err)
	}

	header := make([]any, len(f.Columns))
	for i, col := range f.Columns {
		header[i] = col
	}
	cell, _ := excelize.CoordinatesToCellName(1, 1)
	if err := stream.SetRow(cell, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for rowIdx, row := range f.Rows {
		out := make([]any, len(f.Columns))
		for i := range f.Columns {
			if i < len(row) {
				out[i] = excelCell(row[i])
			}
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := stream.SetRow(cell, out); err != nil {
			return fmt.Errorf("write row %d: %w", rowIdx+1, err)
		}
	}

	if err := stream.Flush(); err != nil {
		return fmt.Errorf("flush stream: %w", err)
	}
	if err := file.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// excelCell passes native types through so spreadsheets keep numeric and
// time cells typed; everything else falls back to the CSV string form.
func excelCell(value any) any {
	switch value.(type) {
	case nil:
		return ""
	case bool, int64, float64, time.Time:
		return value
	default:
		return formatValue(value)
	}
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
