package contexts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/query"
	"github.com/dataspect/dataspect/internal/relgraph"
)

// DatasetChecker resolves dataset ids to stored datasets. Validation uses it
// to flag references to datasets that do not (or no longer) exist.
type DatasetChecker interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Dataset, error)
}

// Validate runs the three validation tiers over a parsed context and returns
// the aggregated outcome. Tiers run in order and all issues are collected:
//
//  1. schema: required fields, enum values, duplicate identifiers;
//  2. referential: aliases and identifiers resolve within the context;
//  3. graph: the relationship graph is connected sanely and acyclic.
//
// Validation never fails hard. A context with errors is stored as a draft and
// the issues travel with it.
func Validate(c domain.Context) domain.ValidationState {
	v := &validation{}

	v.checkSchema(c)
	v.checkReferences(c)
	v.checkGraph(c)

	state := domain.ValidationState{
		Status:   domain.ValidationPassed,
		Errors:   v.errors,
		Warnings: v.warnings,
	}
	if len(v.warnings) > 0 {
		state.Status = domain.ValidationWarning
	}
	if len(v.errors) > 0 {
		state.Status = domain.ValidationFailed
	}
	return state
}

// ValidateWithRegistry runs Validate and additionally resolves every declared
// dataset id against the registry. A reference to an unknown dataset is a
// warning, not an error: datasets may be registered after the context that
// names them, and existing ones can be deleted out from under it.
func ValidateWithRegistry(ctx context.Context, c domain.Context, registry DatasetChecker) domain.ValidationState {
	state := Validate(c)
	if registry == nil {
		return state
	}
	for i, ds := range c.Datasets {
		if ds.DatasetID == uuid.Nil {
			continue // checkSchema already failed this one
		}
		if _, err := registry.Get(ctx, ds.DatasetID); err != nil {
			state.Warnings = append(state.Warnings, domain.ValidationIssue{
				Code:     "dangling_dataset",
				Field:    fmt.Sprintf("datasets[%d]", i),
				Message:  fmt.Sprintf("dataset %q references id %s, which is not registered", ds.Alias, ds.DatasetID),
				Severity: domain.SeverityWarning,
			})
		}
	}
	if state.Status == domain.ValidationPassed && len(state.Warnings) > 0 {
		state.Status = domain.ValidationWarning
	}
	return state
}

type validation struct {
	errors   []domain.ValidationIssue
	warnings []domain.ValidationIssue
}

func (v *validation) fail(code, field, format string, args ...any) {
	v.errors = append(v.errors, domain.ValidationIssue{
		Code:     code,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: domain.SeverityError,
	})
}

func (v *validation) warn(code, field, format string, args ...any) {
	v.warnings = append(v.warnings, domain.ValidationIssue{
		Code:     code,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
		Severity: domain.SeverityWarning,
	})
}

func (v *validation) checkSchema(c domain.Context) {
	if strings.TrimSpace(c.Name) == "" {
		v.fail("missing_name", "name", "context name is required")
	}
	switch c.Type {
	case domain.ContextTypeSingleDataset, domain.ContextTypeMultiDataset, domain.ContextTypeDocumentation:
	default:
		v.fail("invalid_type", "context_type", "unknown context type %q", c.Type)
	}

	seenAliases := map[string]bool{}
	for i, ds := range c.Datasets {
		field := fmt.Sprintf("datasets[%d]", i)
		if ds.Alias == "" {
			v.fail("missing_alias", field, "dataset reference has no alias")
			continue
		}
		if seenAliases[ds.Alias] {
			v.fail("duplicate_alias", field, "dataset alias %q declared more than once", ds.Alias)
		}
		seenAliases[ds.Alias] = true
		if ds.DatasetID == uuid.Nil {
			v.fail("missing_dataset_id", field, "dataset %q has no dataset id", ds.Alias)
		}
	}

	seenRels := map[string]bool{}
	for i, rel := range c.Relationships {
		field := fmt.Sprintf("relationships[%d]", i)
		if rel.ID == "" {
			v.fail("missing_relationship_id", field, "relationship has no id")
		} else if seenRels[rel.ID] {
			v.fail("duplicate_relationship_id", field, "relationship id %q declared more than once", rel.ID)
		}
		seenRels[rel.ID] = true
		if !domain.ValidJoinType(rel.JoinType) {
			v.fail("invalid_join_type", field, "relationship %q has unknown join type %q", rel.ID, rel.JoinType)
		}
		if len(rel.Conditions) == 0 {
			v.fail("missing_conditions", field, "relationship %q has no join conditions", rel.ID)
		}
		for _, cond := range rel.Conditions {
			if cond.LeftColumn == "" || cond.RightColumn == "" {
				v.fail("incomplete_condition", field, "relationship %q has a condition without both columns", rel.ID)
			}
			// The join executor only performs equality joins.
			if cond.Operator != "" && cond.Operator != "=" {
				v.fail("unsupported_operator", field, "relationship %q uses join operator %q; only = is supported", rel.ID, cond.Operator)
			}
		}
	}

	v.checkNamedExpressions(c)
}

func (v *validation) checkNamedExpressions(c domain.Context) {
	seen := map[string]bool{}
	for i, m := range c.Metrics {
		field := fmt.Sprintf("metrics[%d]", i)
		if m.ID == "" {
			v.fail("missing_metric_id", field, "metric has no id")
			continue
		}
		if seen["m:"+m.ID] {
			v.fail("duplicate_metric_id", field, "metric id %q declared more than once", m.ID)
		}
		seen["m:"+m.ID] = true
		if strings.TrimSpace(m.Expression) == "" {
			v.fail("missing_expression", field, "metric %q has no expression", m.ID)
		} else if _, err := query.ParseExpression(m.Expression); err != nil {
			v.fail("invalid_expression", field, "metric %q: %v", m.ID, err)
		}
	}
	for i, f := range c.Filters {
		field := fmt.Sprintf("filters[%d]", i)
		if f.ID == "" {
			v.fail("missing_filter_id", field, "filter has no id")
			continue
		}
		if seen["f:"+f.ID] {
			v.fail("duplicate_filter_id", field, "filter id %q declared more than once", f.ID)
		}
		seen["f:"+f.ID] = true
		if strings.TrimSpace(f.Predicate) == "" {
			v.fail("missing_predicate", field, "filter %q has no predicate", f.ID)
		} else if _, err := query.ParseExpression(f.Predicate); err != nil {
			v.fail("invalid_predicate", field, "filter %q: %v", f.ID, err)
		}
	}
	for i, r := range c.BusinessRules {
		field := fmt.Sprintf("business_rules[%d]", i)
		if r.ID == "" {
			v.fail("missing_rule_id", field, "business rule has no id")
			continue
		}
		if r.Severity != domain.SeverityWarning && r.Severity != domain.SeverityError {
			v.fail("invalid_severity", field, "business rule %q has unknown severity %q", r.ID, r.Severity)
		}
		if strings.TrimSpace(r.Condition) == "" {
			v.fail("missing_condition", field, "business rule %q has no condition", r.ID)
		} else if _, err := query.ParseExpression(r.Condition); err != nil {
			v.fail("invalid_condition", field, "business rule %q: %v", r.ID, err)
		}
	}
}

func (v *validation) checkReferences(c domain.Context) {
	aliases := map[string]bool{}
	for _, ds := range c.Datasets {
		aliases[ds.Alias] = true
	}

	for i, rel := range c.Relationships {
		field := fmt.Sprintf("relationships[%d]", i)
		if !aliases[rel.LeftAlias] {
			v.fail("unknown_alias", field, "relationship %q references undeclared alias %q", rel.ID, rel.LeftAlias)
		}
		if !aliases[rel.RightAlias] {
			v.fail("unknown_alias", field, "relationship %q references undeclared alias %q", rel.ID, rel.RightAlias)
		}
	}

	// Qualified column references in metric and filter expressions must use
	// declared aliases. Unqualified columns cannot be checked without the
	// dataset schemas, so those pass through.
	check := func(field, owner, expression string) {
		expr, err := query.ParseExpression(expression)
		if err != nil {
			return
		}
		var columns []string
		query.CollectColumns(expr, &columns)
		for _, col := range columns {
			alias, _, ok := strings.Cut(col, ".")
			if ok && !aliases[alias] {
				v.warn("unknown_column_alias", field, "%s references column %q with undeclared alias %q", owner, col, alias)
			}
		}
	}
	for i, m := range c.Metrics {
		check(fmt.Sprintf("metrics[%d]", i), "metric "+m.ID, m.Expression)
	}
	for i, f := range c.Filters {
		check(fmt.Sprintf("filters[%d]", i), "filter "+f.ID, f.Predicate)
	}
	for i, r := range c.BusinessRules {
		check(fmt.Sprintf("business_rules[%d]", i), "business rule "+r.ID, r.Condition)
	}
}

func (v *validation) checkGraph(c domain.Context) {
	if len(c.Relationships) == 0 {
		if len(c.Datasets) > 1 {
			v.warn("no_relationships", "relationships",
				"context declares %d datasets but no relationships; they cannot be joined", len(c.Datasets))
		}
		return
	}

	// Parallel relationships between the same pair are legal but usually a
	// mistake, so they warn. Distinct pairs forming a cycle are an error.
	seenPairs := map[string]string{}
	for i, rel := range c.Relationships {
		a, b := rel.LeftAlias, rel.RightAlias
		if a > b {
			a, b = b, a
		}
		pair := a + "\x00" + b
		if prior, ok := seenPairs[pair]; ok {
			v.warn("duplicate_relationship", fmt.Sprintf("relationships[%d]", i),
				"relationships %q and %q connect the same datasets", prior, rel.ID)
			continue
		}
		seenPairs[pair] = rel.ID
	}

	if cycle := relgraph.FindCycle(c.Relationships); cycle != nil {
		v.fail("relationship_cycle", "relationships",
			"relationships form a cycle through %s", strings.Join(cycle, " -> "))
	}
}
