package query

import (
	"fmt"
	"strings"

	"github.com/dataspect/dataspect/internal/domain"
)

// Expansion is the result of rewriting a query: the expanded text plus the
// metric and filter ids that were actually substituted, for explainability.
type Expansion struct {
	Query       string
	UsedMetrics []string
	UsedFilters []string
}

// Expand substitutes metric and filter ids in the query text with their
// parenthesized expressions. Matching is whole-token only, so a metric named
// "total" never fires inside "total_revenue", and running Expand over
// already-expanded text is a no-op (the substituted expression contains
// column identifiers, not the metric id). Expansion is single-pass and
// non-recursive: a metric expression mentioning another metric id is left
// literal.
//
// Filters are substituted only for ids present in applyFilters; a filter
// never applies silently.
func Expand(queryText string, metrics []domain.Metric, filters []domain.Filter, applyFilters []string) (Expansion, error) {
	tokens, err := tokenize(queryText)
	if err != nil {
		return Expansion{}, fmt.Errorf("tokenize query: %w", err)
	}

	metricExprs := make(map[string]string, len(metrics))
	for _, m := range metrics {
		metricExprs[strings.ToLower(m.ID)] = m.Expression
	}
	filterExprs := make(map[string]string)
	for _, id := range applyFilters {
		for _, f := range filters {
			if strings.EqualFold(f.ID, id) {
				filterExprs[strings.ToLower(f.ID)] = f.Predicate
			}
		}
	}

	var out strings.Builder
	usedMetrics := map[string]bool{}
	usedFilters := map[string]bool{}
	last := 0

	for _, tok := range tokens {
		if tok.kind == tokenEOF {
			break
		}
		out.WriteString(queryText[last:tok.start])
		last = tok.end

		if tok.kind != tokenIdent {
			out.WriteString(queryText[tok.start:tok.end])
			continue
		}

		key := strings.ToLower(tok.text)
		if expr, ok := metricExprs[key]; ok {
			out.WriteString("(" + expr + ")")
			usedMetrics[key] = true
			continue
		}
		if expr, ok := filterExprs[key]; ok {
			out.WriteString("(" + expr + ")")
			usedFilters[key] = true
			continue
		}
		out.WriteString(queryText[tok.start:tok.end])
	}
	out.WriteString(queryText[last:])

	return Expansion{
		Query:       out.String(),
		UsedMetrics: sortedKeys(usedMetrics),
		UsedFilters: sortedKeys(usedFilters),
	}, nil
}

func sortedKeys(set map[string]bool) []string {
	if len(set) == 0 {
		return nil
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	// Insertion order of a map is not stable; keep output deterministic.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
