package domain

import (
	"time"

	"github.com/google/uuid"
)

// QueryType is the entry mode of a recorded query.
type QueryType string

const (
	QueryTypeDirect          QueryType = "direct"
	QueryTypeNaturalLanguage QueryType = "natural_language"
)

// QueryUsage is the explainability record attached to every executed query:
// which declared relationships, metrics and filters the engine actually used.
type QueryUsage struct {
	Relationships []string `json:"relationships,omitempty"`
	Metrics       []string `json:"metrics,omitempty"`
	Filters       []string `json:"filters,omitempty"`
}

// RuleWarning is a warning-severity business rule attached to a successful
// result.
type RuleWarning struct {
	RuleID    string `json:"rule_id"`
	Condition string `json:"condition"`
	Message   string `json:"message"`
}

// QueryRecord is the immutable, append-only record of one executed query
// attempt, successful or failed.
type QueryRecord struct {
	ID        uuid.UUID  `json:"id"`
	OwnerID   uuid.UUID  `json:"owner_id"`
	ContextID *uuid.UUID `json:"context_id,omitempty"`
	Type      QueryType  `json:"query_type"`

	OriginalInput  string `json:"original_input"`
	GeneratedQuery string `json:"generated_query,omitempty"`

	ResultRows    int           `json:"result_rows"`
	ResultColumns int           `json:"result_columns"`
	ExecutionTime time.Duration `json:"execution_time"`

	Usage    QueryUsage    `json:"usage"`
	Warnings []RuleWarning `json:"warnings,omitempty"`
	Error    string        `json:"error,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// NewQueryRecord creates the record shell for an attempt about to run.
func NewQueryRecord(ownerID uuid.UUID, contextID *uuid.UUID, queryType QueryType, input string) QueryRecord {
	return QueryRecord{
		ID:            uuid.New(),
		OwnerID:       ownerID,
		ContextID:     contextID,
		Type:          queryType,
		OriginalInput: input,
		CreatedAt:     time.Now(),
	}
}

// Failed reports whether the attempt ended in an error.
func (r QueryRecord) Failed() bool {
	return r.Error != ""
}
