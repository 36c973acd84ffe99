// Package engine orchestrates query execution: context resolution, metric
// and filter expansion, join planning, in-memory execution and history
// recording.
package engine

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/frame"
	"github.com/dataspect/dataspect/internal/query"
	"github.com/dataspect/dataspect/internal/relgraph"
	"github.com/dataspect/dataspect/internal/repository"
)

// ContextSource resolves stored contexts.
type ContextSource interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Context, error)
}

// FrameSource resolves dataset descriptors and loads their frames.
type FrameSource interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Dataset, error)
	LoadFrame(ctx context.Context, id uuid.UUID) (domain.Dataset, *frame.Frame, error)
}

// QueryGenerator turns a natural language question into query text.
type QueryGenerator interface {
	GenerateQuery(ctx context.Context, question string, c domain.Context, datasets map[string]domain.Dataset) (string, error)
}

// Engine executes restricted queries against context-joined datasets.
type Engine struct {
	contexts  ContextSource
	datasets  FrameSource
	generator QueryGenerator
	records   repository.QueryRecordRepository
}

// New creates an engine. generator may be nil when natural language queries
// are disabled.
func New(contexts ContextSource, datasets FrameSource, generator QueryGenerator, records repository.QueryRecordRepository) *Engine {
	return &Engine{contexts: contexts, datasets: datasets, generator: generator, records: records}
}

// QueryRequest is a direct query. It runs against a context, or against a
// single bare dataset when ContextID is zero and DatasetID names one.
type QueryRequest struct {
	OwnerID   uuid.UUID
	ContextID uuid.UUID
	// DatasetID selects the context-less mode: the query runs against this
	// one dataset with no metrics, filters or relationships in scope.
	DatasetID uuid.UUID
	Query     string
	// ApplyFilters names context filters to apply. Filters never apply
	// implicitly.
	ApplyFilters []string
}

// AskRequest is a natural language question against a context.
type AskRequest struct {
	OwnerID      uuid.UUID
	ContextID    uuid.UUID
	Question     string
	ApplyFilters []string
}

// QueryResult is an executed query: the result frame plus the persisted
// history record describing what ran.
type QueryResult struct {
	Frame  *frame.Frame
	Record domain.QueryRecord
}

// Query executes direct query text. Every attempt, failed or not, lands in
// the query history. Without a context id the query runs against the single
// dataset named by DatasetID and the history record carries no context.
func (e *Engine) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if req.ContextID == uuid.Nil {
		rec := domain.NewQueryRecord(req.OwnerID, nil, domain.QueryTypeDirect, req.Query)
		return e.runSingle(ctx, rec, req.DatasetID, req.Query, req.ApplyFilters)
	}
	rec := domain.NewQueryRecord(req.OwnerID, &req.ContextID, domain.QueryTypeDirect, req.Query)
	return e.run(ctx, rec, req.ContextID, req.Query, req.ApplyFilters)
}

// Ask answers a natural language question by generating query text and
// pushing it through the same restricted pipeline as direct queries. The
// generated text is untrusted: a model that produces anything but a single
// SELECT is rejected exactly like a hostile user.
func (e *Engine) Ask(ctx context.Context, req AskRequest) (QueryResult, error) {
	rec := domain.NewQueryRecord(req.OwnerID, &req.ContextID, domain.QueryTypeNaturalLanguage, req.Question)

	if e.generator == nil {
		err := &domain.GenerationError{Question: req.Question, Reason: "no query generator configured"}
		return e.fail(ctx, rec, err)
	}

	c, err := e.contexts.Get(ctx, req.ContextID)
	if err != nil {
		return e.fail(ctx, rec, fmt.Errorf("resolve context: %w", err))
	}

	descriptors := make(map[string]domain.Dataset, len(c.Datasets))
	for _, ref := range c.Datasets {
		d, err := e.datasets.Get(ctx, ref.DatasetID)
		if err != nil {
			// The prompt degrades to alias-only for this dataset.
			log.Printf("[engine] dataset %s unavailable for prompt: %v", ref.DatasetID, err)
			continue
		}
		descriptors[ref.Alias] = d
	}

	generated, err := e.generator.GenerateQuery(ctx, req.Question, c, descriptors)
	if err != nil {
		return e.fail(ctx, rec, err)
	}
	rec.GeneratedQuery = generated
	log.Printf("[engine] generated query for %q: %s", req.Question, generated)

	return e.run(ctx, rec, req.ContextID, generated, req.ApplyFilters)
}

func (e *Engine) run(ctx context.Context, rec domain.QueryRecord, contextID uuid.UUID, queryText string, applyFilters []string) (QueryResult, error) {
	started := time.Now()

	c, err := e.contexts.Get(ctx, contextID)
	if err != nil {
		return e.fail(ctx, rec, fmt.Errorf("resolve context: %w", err))
	}

	exp, err := query.Expand(queryText, c.Metrics, c.Filters, applyFilters)
	if err != nil {
		return e.fail(ctx, rec, err)
	}
	rec.Usage.Metrics = exp.UsedMetrics

	stmt, err := query.Parse(exp.Query)
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	extras, usedFilters, err := e.filterPredicates(c, applyFilters, exp.UsedFilters)
	if err != nil {
		return e.fail(ctx, rec, err)
	}
	rec.Usage.Filters = usedFilters

	targets := referencedAliases(stmt, extras, c)
	if len(targets) == 0 {
		// Documentation-only contexts declare no datasets at all.
		return e.fail(ctx, rec, &domain.UnreachableDatasetError{Alias: stmt.From})
	}
	resolver := relgraph.NewResolver(c.Relationships)
	start, steps, err := resolver.JoinOrder(targets)
	if err != nil {
		return e.fail(ctx, rec, err)
	}
	for _, step := range steps {
		rec.Usage.Relationships = append(rec.Usage.Relationships, step.Relationship.ID)
	}

	frames, err := e.loadFrames(ctx, c, start, steps)
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	joined, err := frame.ExecuteJoins(start, frames, steps)
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	result, err := query.Execute(stmt, joined, extras)
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	warnings, err := checkRules(c.BusinessRules, result)
	rec.Warnings = warnings
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	rec.ExecutionTime = time.Since(started)
	rec.ResultRows = result.NumRows()
	rec.ResultColumns = result.NumColumns()
	e.persist(ctx, rec)

	return QueryResult{Frame: result, Record: rec}, nil
}

// runSingle executes query text against one bare dataset. No context means
// no metrics, no filters, no relationships and no business rules: the frame
// is qualified with an alias derived from the dataset name and the parsed
// statement runs as-is.
func (e *Engine) runSingle(ctx context.Context, rec domain.QueryRecord, datasetID uuid.UUID, queryText string, applyFilters []string) (QueryResult, error) {
	started := time.Now()

	if datasetID == uuid.Nil {
		return e.fail(ctx, rec, fmt.Errorf("query needs a context or a dataset"))
	}
	if len(applyFilters) > 0 {
		return e.fail(ctx, rec, fmt.Errorf("filters are declared by contexts; a context-less query cannot apply any"))
	}

	stmt, err := query.Parse(queryText)
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	d, f, err := e.datasets.LoadFrame(ctx, datasetID)
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	result, err := query.Execute(stmt, f.Qualify(datasetAlias(d.Name)), nil)
	if err != nil {
		return e.fail(ctx, rec, err)
	}

	rec.ExecutionTime = time.Since(started)
	rec.ResultRows = result.NumRows()
	rec.ResultColumns = result.NumColumns()
	e.persist(ctx, rec)

	return QueryResult{Frame: result, Record: rec}, nil
}

// datasetAlias derives the qualification alias for a bare dataset from its
// name, so "Order Items" columns resolve as order_items.<column>.
func datasetAlias(name string) string {
	alias := strings.ToLower(strings.TrimSpace(name))
	alias = strings.ReplaceAll(alias, " ", "_")
	if alias == "" {
		return "dataset"
	}
	return alias
}

// filterPredicates parses the predicates of every applied filter that was not
// already spliced into the query text. They are ANDed into the WHERE clause
// at execution.
func (e *Engine) filterPredicates(c domain.Context, applyFilters, alreadyUsed []string) ([]query.Expr, []string, error) {
	spliced := make(map[string]bool, len(alreadyUsed))
	for _, id := range alreadyUsed {
		spliced[id] = true
	}

	var extras []query.Expr
	used := append([]string(nil), alreadyUsed...)
	for _, id := range applyFilters {
		f, ok := c.FilterByID(id)
		if !ok {
			return nil, nil, fmt.Errorf("context has no filter %q", id)
		}
		if spliced[strings.ToLower(f.ID)] {
			continue
		}
		expr, err := query.ParseExpression(f.Predicate)
		if err != nil {
			return nil, nil, fmt.Errorf("filter %q predicate: %w", f.ID, err)
		}
		extras = append(extras, expr)
		used = append(used, strings.ToLower(f.ID))
	}
	return extras, used, nil
}

// referencedAliases returns the context aliases the query touches, in
// declaration order. Aliases surface through qualified column references and
// the FROM clause. A query referencing no alias at all runs against the first
// declared dataset.
func referencedAliases(stmt *query.SelectStmt, extras []query.Expr, c domain.Context) []string {
	var columns []string
	for _, item := range stmt.Items {
		if item.Expr != nil {
			query.CollectColumns(item.Expr, &columns)
		}
	}
	if stmt.Where != nil {
		query.CollectColumns(stmt.Where, &columns)
	}
	for _, expr := range stmt.GroupBy {
		query.CollectColumns(expr, &columns)
	}
	for _, item := range stmt.OrderBy {
		query.CollectColumns(item.Expr, &columns)
	}
	for _, expr := range extras {
		query.CollectColumns(expr, &columns)
	}

	referenced := make(map[string]bool)
	for _, col := range columns {
		if alias, _, ok := strings.Cut(col, "."); ok {
			referenced[alias] = true
		}
	}
	if stmt.From != "" {
		if _, ok := c.DatasetRefByAlias(stmt.From); ok {
			referenced[stmt.From] = true
		}
	}

	var ordered []string
	for _, ref := range c.Datasets {
		if referenced[ref.Alias] {
			ordered = append(ordered, ref.Alias)
		}
	}
	if len(ordered) == 0 && len(c.Datasets) > 0 {
		ordered = []string{c.Datasets[0].Alias}
	}
	return ordered
}

// loadFrames loads every alias the join plan touches.
func (e *Engine) loadFrames(ctx context.Context, c domain.Context, start string, steps []frame.JoinStep) (map[string]*frame.Frame, error) {
	needed := []string{start}
	for _, step := range steps {
		needed = append(needed, step.NewAlias())
	}

	frames := make(map[string]*frame.Frame, len(needed))
	for _, alias := range needed {
		if _, done := frames[alias]; done {
			continue
		}
		ref, ok := c.DatasetRefByAlias(alias)
		if !ok {
			return nil, &domain.UnreachableDatasetError{Alias: alias}
		}
		_, f, err := e.datasets.LoadFrame(ctx, ref.DatasetID)
		if err != nil {
			return nil, err
		}
		frames[alias] = f
	}
	return frames, nil
}

// fail records the failed attempt and returns the original error.
func (e *Engine) fail(ctx context.Context, rec domain.QueryRecord, cause error) (QueryResult, error) {
	rec.Error = cause.Error()
	e.persist(ctx, rec)
	return QueryResult{Record: rec}, cause
}

func (e *Engine) persist(ctx context.Context, rec domain.QueryRecord) {
	if e.records == nil {
		return
	}
	if _, err := e.records.Record(ctx, rec); err != nil {
		// History is best effort; the query result still stands.
		log.Printf("[engine] failed to record query history: %v", err)
	}
}
