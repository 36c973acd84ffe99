package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ContextType distinguishes single-dataset documentation contexts from
// multi-dataset relationship contexts.
type ContextType string

const (
	ContextTypeSingleDataset ContextType = "single_dataset"
	ContextTypeMultiDataset  ContextType = "multi_dataset"
	// ContextTypeDocumentation marks narrative-only contexts with no dataset
	// associations.
	ContextTypeDocumentation ContextType = "documentation"
)

// ContextStatus is the lifecycle state of a context.
type ContextStatus string

const (
	ContextStatusDraft      ContextStatus = "draft"
	ContextStatusActive     ContextStatus = "active"
	ContextStatusDeprecated ContextStatus = "deprecated"
)

// JoinType enumerates the supported relationship join semantics.
type JoinType string

const (
	JoinTypeInner JoinType = "inner"
	JoinTypeLeft  JoinType = "left"
	JoinTypeRight JoinType = "right"
	JoinTypeOuter JoinType = "outer"
)

// ValidJoinType reports whether jt is one of the four supported join types.
func ValidJoinType(jt JoinType) bool {
	switch jt {
	case JoinTypeInner, JoinTypeLeft, JoinTypeRight, JoinTypeOuter:
		return true
	}
	return false
}

// RuleSeverity controls whether a violated business rule aborts a query.
type RuleSeverity string

const (
	SeverityWarning RuleSeverity = "warning"
	SeverityError   RuleSeverity = "error"
)

// DatasetRef binds a local alias used inside a context to an external dataset
// in the registry. The external id is checked at validation time only; a
// dangling reference is a warning, not a storage error.
type DatasetRef struct {
	Alias     string    `json:"alias"`
	DatasetID uuid.UUID `json:"dataset_id"`
	Name      string    `json:"name,omitempty"`
}

// JoinCondition is a single key-column pair of a relationship. Multiple
// conditions on one relationship are conjunctive.
type JoinCondition struct {
	LeftColumn  string `json:"left_column"`
	RightColumn string `json:"right_column"`
	Operator    string `json:"operator"`
}

// Relationship declares a join between two dataset aliases within a context.
type Relationship struct {
	ID         string          `json:"id"`
	LeftAlias  string          `json:"left_alias"`
	RightAlias string          `json:"right_alias"`
	JoinType   JoinType        `json:"join_type"`
	Conditions []JoinCondition `json:"conditions"`
}

// Metric is a named aggregate or scalar expression reusable across queries.
type Metric struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Expression string `json:"expression"`
	DataType   string `json:"data_type,omitempty"`
	Format     string `json:"format,omitempty"`
}

// Filter is a named predicate, applied only when a caller explicitly
// requests it.
type Filter struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Predicate string `json:"predicate"`
}

// BusinessRule is a post-execution assertion over a query result.
type BusinessRule struct {
	ID        string       `json:"id"`
	Name      string       `json:"name,omitempty"`
	Condition string       `json:"condition"`
	Severity  RuleSeverity `json:"severity"`
}

// GlossaryEntry documents a business term. Consulted for explainability and
// search only, never by execution.
type GlossaryEntry struct {
	Term       string   `json:"term"`
	Definition string   `json:"definition"`
	Synonyms   []string `json:"synonyms,omitempty"`
	Columns    []string `json:"columns,omitempty"`
}

// ValidationIssue is one violated rule found while validating a context.
type ValidationIssue struct {
	Code     string       `json:"code"`
	Message  string       `json:"message"`
	Field    string       `json:"field,omitempty"`
	Severity RuleSeverity `json:"severity"`
}

// ValidationState is the cached outcome of the most recent validation run.
type ValidationState struct {
	Status   string            `json:"status"` // pending, passed, warning, failed
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

const (
	ValidationPending = "pending"
	ValidationPassed  = "passed"
	ValidationWarning = "warning"
	ValidationFailed  = "failed"
)

// Passed reports whether the run produced no errors.
func (v ValidationState) Passed() bool {
	return v.Status == ValidationPassed || v.Status == ValidationWarning
}

// Context is a named, versioned declaration of how one or more datasets
// relate. It exclusively owns its relationships, metrics, filters, business
// rules and glossary; dataset references are non-owning.
type Context struct {
	ID          uuid.UUID     `json:"id"`
	OwnerID     uuid.UUID     `json:"owner_id"`
	Name        string        `json:"name"`
	Version     string        `json:"version"`
	Description string        `json:"description"`
	Type        ContextType   `json:"context_type"`
	Status      ContextStatus `json:"status"`

	// Body is the free-form narrative; Source is the raw submitted text.
	Body   string `json:"body"`
	Source string `json:"source"`

	Datasets      []DatasetRef    `json:"datasets"`
	Relationships []Relationship  `json:"relationships,omitempty"`
	Metrics       []Metric        `json:"metrics,omitempty"`
	Filters       []Filter        `json:"filters,omitempty"`
	BusinessRules []BusinessRule  `json:"business_rules,omitempty"`
	Glossary      []GlossaryEntry `json:"glossary,omitempty"`

	Validation ValidationState `json:"validation"`

	SourceHash string    `json:"source_hash"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// NewContext creates a context shell for freshly parsed content. Validation
// status starts pending; the validator fills it in before persistence.
func NewContext(ownerID uuid.UUID, source string) Context {
	now := time.Now()
	return Context{
		ID:         uuid.New(),
		OwnerID:    ownerID,
		Source:     source,
		Status:     ContextStatusDraft,
		Validation: ValidationState{Status: ValidationPending},
		SourceHash: HashSource(source),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// DatasetRefByAlias returns the dataset reference for a local alias.
func (c Context) DatasetRefByAlias(alias string) (DatasetRef, bool) {
	for _, ref := range c.Datasets {
		if ref.Alias == alias {
			return ref, true
		}
	}
	return DatasetRef{}, false
}

// RelationshipByID returns the relationship with the given id.
func (c Context) RelationshipByID(id string) (Relationship, bool) {
	for _, rel := range c.Relationships {
		if rel.ID == id {
			return rel, true
		}
	}
	return Relationship{}, false
}

// MetricByID returns the metric with the given id.
func (c Context) MetricByID(id string) (Metric, bool) {
	for _, m := range c.Metrics {
		if m.ID == id {
			return m, true
		}
	}
	return Metric{}, false
}

// FilterByID returns the filter with the given id.
func (c Context) FilterByID(id string) (Filter, bool) {
	for _, f := range c.Filters {
		if f.ID == id {
			return f, true
		}
	}
	return Filter{}, false
}

// DatasetIDs returns the external dataset ids referenced by the context.
func (c Context) DatasetIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Datasets))
	for _, ref := range c.Datasets {
		ids = append(ids, ref.DatasetID)
	}
	return ids
}

// HashSource computes the sha256 content hash used for deduplication.
func HashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// MarshalJSONB encodes a context component slice for JSONB storage.
func MarshalJSONB(v any) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	return json.Marshal(v)
}
