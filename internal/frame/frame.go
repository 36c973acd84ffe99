// Package frame holds the in-memory tabular representation queries execute
// against, and the sequential join executor that combines per-alias frames
// into a single joined frame.
package frame

import (
	"fmt"
	"strings"
)

// Frame is an in-memory table. Cell values are nil (missing), string, bool,
// int64, float64 or time.Time. Column names may be alias-qualified
// ("o.order_amount") once a frame has passed through the join executor.
type Frame struct {
	Columns []string
	Rows    [][]any
}

// New creates an empty frame with the given columns.
func New(columns []string) *Frame {
	return &Frame{Columns: append([]string(nil), columns...)}
}

// ColumnIndex resolves a column reference to its position. Exact names win;
// an unqualified name also matches a single qualified column with that
// suffix. Ambiguous unqualified references fail.
func (f *Frame) ColumnIndex(name string) (int, error) {
	for i, col := range f.Columns {
		if col == name {
			return i, nil
		}
	}
	if !strings.Contains(name, ".") {
		suffix := "." + name
		found := -1
		for i, col := range f.Columns {
			if strings.HasSuffix(col, suffix) {
				if found >= 0 {
					return 0, fmt.Errorf("column %q is ambiguous: matches %q and %q", name, f.Columns[found], col)
				}
				found = i
			}
		}
		if found >= 0 {
			return found, nil
		}
	}
	return 0, fmt.Errorf("column %q not found", name)
}

// HasColumn reports whether the reference resolves to a column.
func (f *Frame) HasColumn(name string) bool {
	_, err := f.ColumnIndex(name)
	return err == nil
}

// NumRows returns the row count.
func (f *Frame) NumRows() int { return len(f.Rows) }

// NumColumns returns the column count.
func (f *Frame) NumColumns() int { return len(f.Columns) }

// AppendRow adds a row, padding or truncating to the column count.
func (f *Frame) AppendRow(row []any) {
	if len(row) < len(f.Columns) {
		padded := make([]any, len(f.Columns))
		copy(padded, row)
		row = padded
	} else if len(row) > len(f.Columns) {
		row = row[:len(f.Columns)]
	}
	f.Rows = append(f.Rows, row)
}

// Qualify returns a copy of the frame with every column prefixed by the
// alias, so joined frames never collide on column names.
func (f *Frame) Qualify(alias string) *Frame {
	out := &Frame{
		Columns: make([]string, len(f.Columns)),
		Rows:    f.Rows,
	}
	for i, col := range f.Columns {
		if strings.Contains(col, ".") {
			out.Columns[i] = col
			continue
		}
		out.Columns[i] = alias + "." + col
	}
	return out
}

// Value returns the cell at (row, col index).
func (f *Frame) Value(row, col int) any {
	if row < 0 || row >= len(f.Rows) || col < 0 || col >= len(f.Rows[row]) {
		return nil
	}
	return f.Rows[row][col]
}
