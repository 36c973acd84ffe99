// Package contexts parses, validates and manages context definitions: the
// declarative configuration describing how datasets relate.
package contexts

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/dataspect/dataspect/internal/domain"
)

const (
	defaultVersion        = "1.0.0"
	maxDerivedDescription = 200
)

// header is the YAML frontmatter of the structured context format.
type header struct {
	Name          string          `yaml:"name"`
	Version       string          `yaml:"version"`
	Description   string          `yaml:"description"`
	ContextType   string          `yaml:"context_type,omitempty"`
	Status        string          `yaml:"status,omitempty"`
	Datasets      []datasetRef    `yaml:"datasets"`
	Relationships []relationship  `yaml:"relationships,omitempty"`
	Metrics       []metric        `yaml:"metrics,omitempty"`
	Filters       []filter        `yaml:"filters,omitempty"`
	BusinessRules []businessRule  `yaml:"business_rules,omitempty"`
	Glossary      []glossaryEntry `yaml:"glossary,omitempty"`
}

type datasetRef struct {
	Alias     string `yaml:"alias"`
	DatasetID string `yaml:"dataset_id"`
	Name      string `yaml:"name,omitempty"`
}

type relationship struct {
	ID         string          `yaml:"id"`
	Left       string          `yaml:"left"`
	Right      string          `yaml:"right"`
	JoinType   string          `yaml:"join_type"`
	Conditions []joinCondition `yaml:"conditions"`
}

type joinCondition struct {
	LeftColumn  string `yaml:"left_column"`
	RightColumn string `yaml:"right_column"`
	Operator    string `yaml:"operator,omitempty"`
}

type metric struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name,omitempty"`
	Expression string `yaml:"expression"`
	DataType   string `yaml:"data_type,omitempty"`
	Format     string `yaml:"format,omitempty"`
}

type filter struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name,omitempty"`
	Predicate string `yaml:"predicate"`
}

type businessRule struct {
	ID        string `yaml:"id"`
	Name      string `yaml:"name,omitempty"`
	Condition string `yaml:"condition"`
	Severity  string `yaml:"severity"`
}

type glossaryEntry struct {
	Term       string   `yaml:"term"`
	Definition string   `yaml:"definition"`
	Synonyms   []string `yaml:"synonyms,omitempty"`
	Columns    []string `yaml:"columns,omitempty"`
}

var (
	frontmatterPattern = regexp.MustCompile(`(?s)^---\s*\n(.*?)\n---\s*\n?(.*)$`)
	headingPattern     = regexp.MustCompile(`(?m)^#\s+(.+)$`)
	datasetHeading     = regexp.MustCompile(`(?im)^##\s+Dataset:\s+(.+?)\s+\(id:\s*([a-f0-9-]+)\)`)
	datasetListBlock   = regexp.MustCompile(`(?im)^##\s+Datasets?\s*\n((?:[-*]\s+.+\n?)+)`)
	datasetListItem    = regexp.MustCompile(`[-*]\s+(.+?)\s+\(id:\s*([a-f0-9-]+)\)`)
	relationshipsBlock = regexp.MustCompile(`(?im)^##\s+Relationships?\s*\n((?:[-*]\s+.+\n?)+)`)
	relationshipItem   = regexp.MustCompile(`[-*]\s+(\w+)\s*(?:→|->)\s*(\w+)\s+via\s+(\w+)`)
)

// Parse decomposes raw context text into a Context entity. Two shapes are
// recognized:
//
//   - structured: a "---" delimited YAML header followed by a markdown
//     narrative body;
//   - simplified: plain markdown, with the name taken from the first
//     heading, the description from the first paragraph and dataset or
//     relationship declarations read from markdown conventions.
//
// callerDatasetID optionally attaches a dataset when the simplified
// narrative declares none. A narrative with no dataset association at all is
// still accepted: documentation-only contexts are valid. Returns ParseError
// only when the text fits neither shape; everything else is left for the
// validator to flag softly.
func Parse(ownerID uuid.UUID, source string, callerDatasetID *uuid.UUID) (domain.Context, error) {
	if strings.TrimSpace(source) == "" {
		return domain.Context{}, &domain.ParseError{Reason: "context text is empty"}
	}

	c := domain.NewContext(ownerID, source)

	if match := frontmatterPattern.FindStringSubmatch(source); match != nil {
		return parseStructured(c, match[1], strings.TrimSpace(match[2]))
	}
	if strings.HasPrefix(strings.TrimSpace(source), "---") {
		return domain.Context{}, &domain.ParseError{Reason: "structured header is not terminated by a closing ---"}
	}
	return parseSimplified(c, source, callerDatasetID), nil
}

func parseStructured(c domain.Context, headerText, body string) (domain.Context, error) {
	var h header
	if err := yaml.Unmarshal([]byte(headerText), &h); err != nil {
		return domain.Context{}, &domain.ParseError{Reason: "invalid YAML header: " + err.Error()}
	}

	c.Name = h.Name
	c.Version = h.Version
	if c.Version == "" {
		c.Version = defaultVersion
	}
	c.Description = h.Description
	c.Body = body
	c.Status = domain.ContextStatus(valueOr(h.Status, string(domain.ContextStatusDraft)))

	for _, ds := range h.Datasets {
		ref := domain.DatasetRef{Alias: ds.Alias, Name: ds.Name}
		if id, err := uuid.Parse(ds.DatasetID); err == nil {
			ref.DatasetID = id
		}
		c.Datasets = append(c.Datasets, ref)
	}
	for _, rel := range h.Relationships {
		conditions := make([]domain.JoinCondition, 0, len(rel.Conditions))
		for _, cond := range rel.Conditions {
			conditions = append(conditions, domain.JoinCondition{
				LeftColumn:  cond.LeftColumn,
				RightColumn: cond.RightColumn,
				Operator:    valueOr(cond.Operator, "="),
			})
		}
		c.Relationships = append(c.Relationships, domain.Relationship{
			ID:         rel.ID,
			LeftAlias:  rel.Left,
			RightAlias: rel.Right,
			JoinType:   domain.JoinType(valueOr(rel.JoinType, string(domain.JoinTypeInner))),
			Conditions: conditions,
		})
	}
	for _, m := range h.Metrics {
		c.Metrics = append(c.Metrics, domain.Metric{
			ID: m.ID, Name: m.Name, Expression: m.Expression,
			DataType: m.DataType, Format: m.Format,
		})
	}
	for _, f := range h.Filters {
		c.Filters = append(c.Filters, domain.Filter{ID: f.ID, Name: f.Name, Predicate: f.Predicate})
	}
	for _, r := range h.BusinessRules {
		c.BusinessRules = append(c.BusinessRules, domain.BusinessRule{
			ID: r.ID, Name: r.Name, Condition: r.Condition,
			Severity: domain.RuleSeverity(valueOr(r.Severity, string(domain.SeverityWarning))),
		})
	}
	for _, g := range h.Glossary {
		c.Glossary = append(c.Glossary, domain.GlossaryEntry{
			Term: g.Term, Definition: g.Definition,
			Synonyms: g.Synonyms, Columns: g.Columns,
		})
	}

	c.Type = deriveType(h.ContextType, c)
	return c, nil
}

func parseSimplified(c domain.Context, source string, callerDatasetID *uuid.UUID) domain.Context {
	c.Body = strings.TrimSpace(source)
	c.Version = defaultVersion

	c.Name = "Dataset Context"
	if match := headingPattern.FindStringSubmatch(source); match != nil {
		c.Name = strings.TrimSpace(match[1])
	}
	c.Description = firstParagraph(source)

	for _, match := range datasetHeading.FindAllStringSubmatch(source, -1) {
		if ref, ok := makeSimpleRef(match[1], match[2]); ok {
			c.Datasets = append(c.Datasets, ref)
		}
	}
	if block := datasetListBlock.FindStringSubmatch(source); block != nil {
		for _, match := range datasetListItem.FindAllStringSubmatch(block[1], -1) {
			if ref, ok := makeSimpleRef(match[1], match[2]); ok {
				c.Datasets = append(c.Datasets, ref)
			}
		}
	}
	if len(c.Datasets) == 0 && callerDatasetID != nil {
		c.Datasets = append(c.Datasets, domain.DatasetRef{
			Alias:     "main",
			DatasetID: *callerDatasetID,
			Name:      c.Name,
		})
	}

	if block := relationshipsBlock.FindStringSubmatch(source); block != nil {
		for _, match := range relationshipItem.FindAllStringSubmatch(block[1], -1) {
			left := strings.ToLower(match[1])
			right := strings.ToLower(match[2])
			column := match[3]
			c.Relationships = append(c.Relationships, domain.Relationship{
				ID:         left + "_" + right,
				LeftAlias:  left,
				RightAlias: right,
				JoinType:   domain.JoinTypeInner,
				Conditions: []domain.JoinCondition{{LeftColumn: column, RightColumn: column, Operator: "="}},
			})
		}
	}

	c.Type = deriveType("", c)
	return c
}

func makeSimpleRef(name, rawID string) (domain.DatasetRef, bool) {
	id, err := uuid.Parse(strings.TrimSpace(rawID))
	if err != nil {
		return domain.DatasetRef{}, false
	}
	name = strings.TrimSpace(name)
	return domain.DatasetRef{
		Alias:     strings.ToLower(strings.ReplaceAll(name, " ", "_")),
		DatasetID: id,
		Name:      name,
	}, true
}

// deriveType picks the context type: an explicit header value wins, a context
// with no datasets is documentation-only, one dataset without relationships
// is single-dataset, anything else is multi-dataset.
func deriveType(explicit string, c domain.Context) domain.ContextType {
	if explicit != "" {
		return domain.ContextType(explicit)
	}
	switch {
	case len(c.Datasets) == 0:
		return domain.ContextTypeDocumentation
	case len(c.Datasets) == 1 && len(c.Relationships) == 0:
		return domain.ContextTypeSingleDataset
	}
	return domain.ContextTypeMultiDataset
}

func firstParagraph(source string) string {
	for _, para := range strings.Split(source, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" || strings.HasPrefix(para, "#") {
			continue
		}
		para = strings.Join(strings.Fields(para), " ")
		if len(para) > maxDerivedDescription {
			para = para[:maxDerivedDescription]
		}
		return para
	}
	return "Dataset context documentation"
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
