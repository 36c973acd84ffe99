package engine

import (
	"fmt"

	"github.com/dataspect/dataspect/internal/domain"
	"github.com/dataspect/dataspect/internal/frame"
	"github.com/dataspect/dataspect/internal/query"
)

// checkRules evaluates every business rule against the executed result frame,
// so what the rule vets is what the caller receives. Row-level conditions must
// hold on every result row; conditions containing an aggregate are evaluated
// once over the whole result. A failing error-severity rule aborts with
// BusinessRuleViolation; warning-severity failures and rules whose columns do
// not appear in the result come back as warnings attached to the query record.
func checkRules(rules []domain.BusinessRule, f *frame.Frame) ([]domain.RuleWarning, error) {
	var warnings []domain.RuleWarning

	for _, rule := range rules {
		expr, err := query.ParseExpression(rule.Condition)
		if err != nil {
			warnings = append(warnings, domain.RuleWarning{
				RuleID:    rule.ID,
				Condition: rule.Condition,
				Message:   fmt.Sprintf("rule condition does not parse: %v", err),
			})
			continue
		}

		holds, evalErr := ruleHolds(expr, f)
		if evalErr != nil {
			warnings = append(warnings, domain.RuleWarning{
				RuleID:    rule.ID,
				Condition: rule.Condition,
				Message:   fmt.Sprintf("rule could not be evaluated: %v", evalErr),
			})
			continue
		}
		if holds {
			continue
		}

		if rule.Severity == domain.SeverityError {
			return warnings, &domain.BusinessRuleViolation{
				RuleID:    rule.ID,
				Condition: rule.Condition,
				Message:   fmt.Sprintf("condition %q does not hold", rule.Condition),
			}
		}
		warnings = append(warnings, domain.RuleWarning{
			RuleID:    rule.ID,
			Condition: rule.Condition,
			Message:   fmt.Sprintf("condition %q does not hold", rule.Condition),
		})
	}
	return warnings, nil
}

func ruleHolds(expr query.Expr, f *frame.Frame) (bool, error) {
	if query.ContainsAggregate(expr) {
		group := make([]int, f.NumRows())
		for i := range group {
			group[i] = i
		}
		v, err := query.EvalGroup(expr, f, group)
		if err != nil {
			return false, err
		}
		return query.Truthy(v), nil
	}

	for row := 0; row < f.NumRows(); row++ {
		v, err := query.Eval(expr, f, row)
		if err != nil {
			return false, err
		}
		if !query.Truthy(v) {
			return false, nil
		}
	}
	return true, nil
}
