package contexts

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dataspect/dataspect/internal/domain"
)

// Serialize renders a context back into the structured text format: a YAML
// frontmatter header followed by the narrative body. Parsing the output
// yields a context equivalent to the input, so simplified-format contexts are
// upgraded to structured form on their first round trip.
func Serialize(c domain.Context) (string, error) {
	h := header{
		Name:        c.Name,
		Version:     c.Version,
		Description: c.Description,
		ContextType: string(c.Type),
		Status:      string(c.Status),
	}
	for _, ds := range c.Datasets {
		h.Datasets = append(h.Datasets, datasetRef{
			Alias:     ds.Alias,
			DatasetID: ds.DatasetID.String(),
			Name:      ds.Name,
		})
	}
	for _, rel := range c.Relationships {
		out := relationship{
			ID:       rel.ID,
			Left:     rel.LeftAlias,
			Right:    rel.RightAlias,
			JoinType: string(rel.JoinType),
		}
		for _, cond := range rel.Conditions {
			out.Conditions = append(out.Conditions, joinCondition{
				LeftColumn:  cond.LeftColumn,
				RightColumn: cond.RightColumn,
				Operator:    cond.Operator,
			})
		}
		h.Relationships = append(h.Relationships, out)
	}
	for _, m := range c.Metrics {
		h.Metrics = append(h.Metrics, metric{
			ID: m.ID, Name: m.Name, Expression: m.Expression,
			DataType: m.DataType, Format: m.Format,
		})
	}
	for _, f := range c.Filters {
		h.Filters = append(h.Filters, filter{ID: f.ID, Name: f.Name, Predicate: f.Predicate})
	}
	for _, r := range c.BusinessRules {
		h.BusinessRules = append(h.BusinessRules, businessRule{
			ID: r.ID, Name: r.Name, Condition: r.Condition, Severity: string(r.Severity),
		})
	}
	for _, g := range c.Glossary {
		h.Glossary = append(h.Glossary, glossaryEntry{
			Term: g.Term, Definition: g.Definition,
			Synonyms: g.Synonyms, Columns: g.Columns,
		})
	}

	encoded, err := yaml.Marshal(h)
	if err != nil {
		return "", fmt.Errorf("serialize context header: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(encoded)
	b.WriteString("---\n")
	if body := strings.TrimSpace(c.Body); body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		b.WriteString("\n")
	}
	return b.String(), nil
}
