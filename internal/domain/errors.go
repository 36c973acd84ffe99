package domain

import (
	"fmt"

	"github.com/google/uuid"
)

// ParseError is fatal: the submitted context text could not be decomposed
// into either of the two recognized shapes.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("context parse failed: %s", e.Reason)
}

// UnreachableDatasetError means a query needs an alias with no path to the
// already-joined alias set.
type UnreachableDatasetError struct {
	Alias string
}

func (e *UnreachableDatasetError) Error() string {
	return fmt.Sprintf("dataset %q is not reachable through the declared relationships", e.Alias)
}

// JoinKeyError means a declared join key column is absent from a loaded
// frame's schema (schema drift since validation).
type JoinKeyError struct {
	Alias  string
	Column string
}

func (e *JoinKeyError) Error() string {
	return fmt.Sprintf("join key column %q is missing from dataset %q", e.Column, e.Alias)
}

// UnsupportedOperationError rejects non-read query text before execution.
type UnsupportedOperationError struct {
	Operation string
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %q is not permitted: only read queries may execute", e.Operation)
}

// GenerationError means the language-model collaborator failed to produce
// usable query text. The original question is preserved so the caller can
// retry with different phrasing.
type GenerationError struct {
	Question string
	Reason   string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("query generation failed for %q: %s", e.Question, e.Reason)
}

// GenerationTimeoutError means the collaborator call exceeded the
// caller-supplied deadline. Never retried by the engine itself.
type GenerationTimeoutError struct {
	Question string
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("query generation timed out for %q", e.Question)
}

// DatasetNotFoundError means the dataset registry has no record for the id.
type DatasetNotFoundError struct {
	DatasetID uuid.UUID
}

func (e *DatasetNotFoundError) Error() string {
	return fmt.Sprintf("dataset %s not found", e.DatasetID)
}

// DatasetLoadError means a registered dataset could not be materialized as a
// frame.
type DatasetLoadError struct {
	DatasetID uuid.UUID
	Reason    string
}

func (e *DatasetLoadError) Error() string {
	return fmt.Sprintf("dataset %s failed to load: %s", e.DatasetID, e.Reason)
}

// DatasetLoadTimeoutError means loading exceeded the caller-supplied
// deadline.
type DatasetLoadTimeoutError struct {
	DatasetID uuid.UUID
}

func (e *DatasetLoadTimeoutError) Error() string {
	return fmt.Sprintf("dataset %s load timed out", e.DatasetID)
}

// BusinessRuleViolation aborts a query when an error-severity rule fails.
// The QueryRecord still records the attempt.
type BusinessRuleViolation struct {
	RuleID    string
	Condition string
	Message   string
}

func (e *BusinessRuleViolation) Error() string {
	return fmt.Sprintf("business rule %q violated: %s", e.RuleID, e.Message)
}
