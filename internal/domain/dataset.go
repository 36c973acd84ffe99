package domain

import (
	"time"

	"github.com/google/uuid"
)

// ColumnType is the declared type of a dataset column.
type ColumnType string

const (
	ColumnTypeString    ColumnType = "string"
	ColumnTypeInteger   ColumnType = "integer"
	ColumnTypeFloat     ColumnType = "float"
	ColumnTypeBoolean   ColumnType = "boolean"
	ColumnTypeTimestamp ColumnType = "timestamp"
)

// ColumnSchema describes one column of a registered dataset.
type ColumnSchema struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
}

// Dataset is a registry record for one loadable tabular dataset. The engine
// holds non-owning references to datasets from contexts; deleting a dataset
// leaves the context intact with a dangling reference that validation flags.
type Dataset struct {
	ID          uuid.UUID      `json:"id"`
	OwnerID     uuid.UUID      `json:"owner_id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	FilePath    string         `json:"file_path"`
	FileType    string         `json:"file_type"` // csv, xlsx
	Columns     []ColumnSchema `json:"columns"`
	RowCount    int            `json:"row_count"`
	ColumnCount int            `json:"column_count"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Column returns the schema entry for a named column.
func (d Dataset) Column(name string) (ColumnSchema, bool) {
	for _, col := range d.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return ColumnSchema{}, false
}

// ColumnStats summarizes one column of a loaded frame.
type ColumnStats struct {
	Type          ColumnType `json:"type"`
	NullCount     int        `json:"null_count"`
	DistinctCount int        `json:"distinct_count"`
	Min           *float64   `json:"min,omitempty"`
	Max           *float64   `json:"max,omitempty"`
	Mean          *float64   `json:"mean,omitempty"`
}

// FrameStats summarizes a loaded frame for validation and prompting.
type FrameStats struct {
	RowCount    int                    `json:"row_count"`
	ColumnCount int                    `json:"column_count"`
	Columns     map[string]ColumnStats `json:"columns"`
}
