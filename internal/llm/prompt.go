package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dataspect/dataspect/internal/domain"
)

const systemPrompt = `You are a SQL expert. Generate SQL queries based on user questions.

IMPORTANT RULES:
1. Only return the SQL query, nothing else
2. Use standard SQL syntax
3. Use dataset aliases and column names exactly as they appear in the schema
4. Qualify columns with their dataset alias, e.g. orders.order_amount
5. Handle potential NULL values appropriately
6. Do not use any DDL or DML statements (CREATE, DROP, ALTER, INSERT, UPDATE, DELETE)
7. Only use SELECT statements
8. Supported aggregate functions: SUM, AVG, COUNT, MIN, MAX, MEDIAN`

// Completer is the slice of Client that the generator needs. Tests substitute
// a canned implementation.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Generator builds prompts from context metadata and asks the model for a
// query. Output is untrusted text; the caller must push it through the same
// restricted parser as user-written queries.
type Generator struct {
	completer Completer
}

// NewGenerator creates a generator on top of a completer.
func NewGenerator(completer Completer) *Generator {
	return &Generator{completer: completer}
}

// GenerateQuery asks the model to answer question against the described
// datasets. The prompt carries schemas, relationships, metric definitions and
// glossary terms but never raw rows. Timeouts come from ctx and surface as
// GenerationTimeoutError.
func (g *Generator) GenerateQuery(ctx context.Context, question string, c domain.Context, datasets map[string]domain.Dataset) (string, error) {
	userPrompt := buildUserPrompt(question, c, datasets)

	response, err := g.completer.Complete(ctx, systemPrompt, userPrompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &domain.GenerationTimeoutError{Question: question}
		}
		return "", &domain.GenerationError{Question: question, Reason: err.Error()}
	}

	query := StripCodeFence(response)
	if query == "" {
		return "", &domain.GenerationError{Question: question, Reason: "model returned an empty query"}
	}
	return query, nil
}

func buildUserPrompt(question string, c domain.Context, datasets map[string]domain.Dataset) string {
	var b strings.Builder

	b.WriteString("Schema:\n")
	for _, ref := range c.Datasets {
		fmt.Fprintf(&b, "Dataset %q (alias %s):\n", ref.Name, ref.Alias)
		if d, ok := datasets[ref.Alias]; ok {
			for _, col := range d.Columns {
				fmt.Fprintf(&b, "  - %s.%s (%s)\n", ref.Alias, col.Name, col.Type)
			}
		}
	}

	if len(c.Relationships) > 0 {
		b.WriteString("\nRelationships:\n")
		for _, rel := range c.Relationships {
			for _, cond := range rel.Conditions {
				fmt.Fprintf(&b, "  - %s.%s %s %s.%s (%s join)\n",
					rel.LeftAlias, cond.LeftColumn, cond.Operator, rel.RightAlias, cond.RightColumn, rel.JoinType)
			}
		}
	}

	if len(c.Metrics) > 0 {
		b.WriteString("\nNamed metrics (use the expression, not the name):\n")
		for _, m := range c.Metrics {
			fmt.Fprintf(&b, "  - %s = %s\n", m.ID, m.Expression)
		}
	}

	if len(c.Glossary) > 0 {
		b.WriteString("\nBusiness glossary:\n")
		for _, g := range c.Glossary {
			fmt.Fprintf(&b, "  - %s: %s", g.Term, g.Definition)
			if len(g.Columns) > 0 {
				fmt.Fprintf(&b, " (columns: %s)", strings.Join(g.Columns, ", "))
			}
			b.WriteString("\n")
		}
	}

	if body := strings.TrimSpace(c.Body); body != "" {
		b.WriteString("\nContext notes:\n")
		b.WriteString(body)
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "\nQuestion: %s\n\nGenerate a SQL query to answer this question. Only return the SQL query, no explanation.", question)
	return b.String()
}
