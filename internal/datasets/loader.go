// Package datasets registers tabular sources and loads them into in-memory
// frames.
package datasets

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/frame"
)

// ErrUnsupportedFormat is returned when a registered file is neither CSV nor
// XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format")

var (
	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}

	timeLayouts = []string{
		time.RFC3339,
		time.RFC3339Nano,
		"2006-01-02",
		"2006-01-02 15:04:05",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05.000000",
		"2006/01/02",
		"01/02/2006",
		"02/01/2006",
	}
)

// Loader reads dataset files into typed frames.
type Loader struct {
	// Timeout bounds a single load. Zero means the caller's context is the
	// only limit.
	Timeout time.Duration
}

// NewLoader creates a loader with the given per-load timeout.
func NewLoader(timeout time.Duration) *Loader {
	return &Loader{Timeout: timeout}
}

// Load reads the dataset's file and returns a frame with cells coerced to the
// dataset's column types. Datasets registered without a column schema get one
// inferred from the data. Cancellation and deadline expiry surface as
// DatasetLoadTimeoutError so partially loaded frames never escape.
func (l *Loader) Load(ctx context.Context, d domain.Dataset) (*frame.Frame, error) {
	if l.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.Timeout)
		defer cancel()
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &domain.DatasetLoadTimeoutError{DatasetID: d.ID}
		}
		return nil, err
	}

	type result struct {
		f   *frame.Frame
		err error
	}
	done := make(chan result, 1)
	go func() {
		f, err := l.load(d)
		done <- result{f, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &domain.DatasetLoadTimeoutError{DatasetID: d.ID}
		}
		return nil, ctx.Err()
	case res := <-done:
		return res.f, res.err
	}
}

func (l *Loader) load(d domain.Dataset) (*frame.Frame, error) {
	payload, err := os.ReadFile(d.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, &domain.DatasetNotFoundError{DatasetID: d.ID}
		}
		return nil, &domain.DatasetLoadError{DatasetID: d.ID, Reason: err.Error()}
	}

	headers, rows, err := parseTable(d.FilePath, d.FileType, payload)
	if err != nil {
		return nil, &domain.DatasetLoadError{DatasetID: d.ID, Reason: err.Error()}
	}

	columns := d.Columns
	if len(columns) == 0 {
		columns = InferColumns(headers, rows)
	}

	f := frame.New(headers)
	for _, row := range rows {
		cells := make([]any, len(headers))
		for i := range headers {
			raw := ""
			if i < len(row) {
				raw = strings.TrimSpace(row[i])
			}
			colType := domain.ColumnTypeString
			if i < len(columns) {
				colType = columns[i].Type
			}
			cells[i] = coerceCell(colType, raw)
		}
		f.AppendRow(cells)
	}
	return f, nil
}

// Describe loads a dataset and refreshes its schema and counts from the file.
// Used at registration time.
func (l *Loader) Describe(ctx context.Context, d domain.Dataset) (domain.Dataset, *frame.Frame, error) {
	f, err := l.Load(ctx, d)
	if err != nil {
		return domain.Dataset{}, nil, err
	}
	if len(d.Columns) == 0 {
		stats := Stats(f)
		d.Columns = make([]domain.ColumnSchema, 0, f.NumColumns())
		for _, name := range f.Columns {
			d.Columns = append(d.Columns, domain.ColumnSchema{Name: name, Type: stats.Columns[name].Type})
		}
	}
	d.RowCount = f.NumRows()
	d.ColumnCount = f.NumColumns()
	return d, f, nil
}

func parseTable(filePath, fileType string, payload []byte) ([]string, [][]string, error) {
	format := strings.ToLower(fileType)
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(filePath)), ".")
	}
	switch format {
	case "csv":
		return parseCSV(payload)
	case "xlsx":
		return parseExcel(payload)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func parseCSV(payload []byte) ([]string, [][]string, error) {
	reader := bufio.NewReader(bytes.NewReader(payload))
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return normalizeTable(records)
}

func parseExcel(payload []byte) ([]string, [][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.New("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	return normalizeTable(rows)
}

func normalizeTable(records [][]string) ([]string, [][]string, error) {
	var headerRow []string
	var dataRows [][]string
	for _, row := range records {
		if isEmptyRow(row) {
			continue
		}
		if headerRow == nil {
			headerRow = row
			continue
		}
		dataRows = append(dataRows, row)
	}
	if headerRow == nil {
		return nil, nil, errors.New("header row could not be detected")
	}

	headers := sanitizeHeaders(headerRow)
	for i := range dataRows {
		dataRows[i] = padRow(dataRows[i], len(headers))
	}
	return headers, dataRows, nil
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		name = strings.ReplaceAll(name, " ", "_")
		name = strings.ReplaceAll(name, ".", "_")
		name = strings.ReplaceAll(name, "-", "_")
		name = strings.Trim(name, "_")
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}
	return headers
}

func padRow(row []string, length int) []string {
	if len(row) >= length {
		return row[:length]
	}
	padded := make([]string, length)
	copy(padded, row)
	return padded
}

// InferColumns profiles every column and returns the narrowest type each one
// supports. Empty cells do not vote.
func InferColumns(headers []string, rows [][]string) []domain.ColumnSchema {
	columns := make([]domain.ColumnSchema, len(headers))
	for idx, header := range headers {
		columns[idx] = domain.ColumnSchema{Name: header, Type: profileColumn(idx, rows)}
	}
	return columns
}

func profileColumn(col int, rows [][]string) domain.ColumnType {
	isBool := true
	isInt := true
	isFloat := true
	isTimestamp := true
	hasValue := false

	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		hasValue = true

		if !looksLikeBool(value) {
			isBool = false
		}
		if !looksLikeInt(value) {
			isInt = false
		}
		if !looksLikeFloat(value) {
			isFloat = false
		}
		if !looksLikeTimestamp(value) {
			isTimestamp = false
		}
	}

	switch {
	case isBool && hasValue:
		return domain.ColumnTypeBoolean
	case isInt && hasValue:
		return domain.ColumnTypeInteger
	case isFloat && hasValue:
		return domain.ColumnTypeFloat
	case isTimestamp && hasValue:
		return domain.ColumnTypeTimestamp
	default:
		return domain.ColumnTypeString
	}
}

func looksLikeBool(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "true", "false", "yes", "no":
		return true
	}
	_, err := strconv.ParseBool(value)
	return err == nil
}

func looksLikeInt(value string) bool {
	if _, err := strconv.ParseInt(value, 10, 64); err == nil {
		return true
	}
	// Allow float representations that convert losslessly to int.
	if f, err := strconv.ParseFloat(value, 64); err == nil {
		return math.Mod(f, 1) == 0
	}
	return false
}

func looksLikeFloat(value string) bool {
	_, err := strconv.ParseFloat(value, 64)
	return err == nil
}

func looksLikeTimestamp(value string) bool {
	_, err := parseTimestamp(value)
	return err == nil
}

// coerceCell converts a raw cell to its typed value. Empty cells are NULL and
// unparsable cells fall back to the raw string rather than failing the load.
func coerceCell(colType domain.ColumnType, raw string) any {
	if raw == "" {
		return nil
	}
	switch colType {
	case domain.ColumnTypeInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil && math.Mod(f, 1) == 0 {
			return int64(f)
		}
	case domain.ColumnTypeFloat:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	case domain.ColumnTypeBoolean:
		value := strings.ToLower(raw)
		switch value {
		case "1", "yes", "y":
			return true
		case "0", "no", "n":
			return false
		}
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	case domain.ColumnTypeTimestamp:
		if ts, err := parseTimestamp(raw); err == nil {
			return ts
		}
	}
	return raw
}

func parseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format")
}
