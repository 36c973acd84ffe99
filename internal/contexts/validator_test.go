package contexts

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/dataspect/dataspect/internal/domain"
)

func validContext() domain.Context {
	c := domain.NewContext(uuid.New(), "source")
	c.Name = "Orders"
	c.Type = domain.ContextTypeMultiDataset
	c.Datasets = []domain.DatasetRef{
		{Alias: "customers", DatasetID: uuid.New()},
		{Alias: "orders", DatasetID: uuid.New()},
	}
	c.Relationships = []domain.Relationship{{
		ID:         "customer_orders",
		LeftAlias:  "customers",
		RightAlias: "orders",
		JoinType:   domain.JoinTypeInner,
		Conditions: []domain.JoinCondition{{LeftColumn: "customer_id", RightColumn: "customer_id", Operator: "="}},
	}}
	c.Metrics = []domain.Metric{{ID: "total_revenue", Expression: "SUM(orders.order_amount)"}}
	c.Filters = []domain.Filter{{ID: "active_only", Predicate: "customers.status = 'active'"}}
	return c
}

func hasIssue(issues []domain.ValidationIssue, code string) bool {
	for _, issue := range issues {
		if issue.Code == code {
			return true
		}
	}
	return false
}

func TestValidate_PassesCleanContext(t *testing.T) {
	state := Validate(validContext())
	if state.Status != domain.ValidationPassed {
		t.Fatalf("expected passed, got %q with errors %+v warnings %+v", state.Status, state.Errors, state.Warnings)
	}
}

func TestValidate_SchemaTier(t *testing.T) {
	c := validContext()
	c.Name = ""
	c.Datasets = append(c.Datasets, domain.DatasetRef{Alias: "orders", DatasetID: uuid.New()})
	c.Relationships[0].JoinType = "cross"
	c.Relationships[0].Conditions = nil
	c.Metrics[0].Expression = "SUM("

	state := Validate(c)
	if state.Status != domain.ValidationFailed {
		t.Fatalf("expected failed, got %q", state.Status)
	}
	for _, code := range []string{"missing_name", "duplicate_alias", "invalid_join_type", "missing_conditions", "invalid_expression"} {
		if !hasIssue(state.Errors, code) {
			t.Fatalf("expected %s error, got %+v", code, state.Errors)
		}
	}
}

func TestValidate_ReferentialTier(t *testing.T) {
	c := validContext()
	c.Relationships[0].RightAlias = "shipments"

	state := Validate(c)
	if state.Status != domain.ValidationFailed {
		t.Fatalf("expected failed, got %q", state.Status)
	}
	if !hasIssue(state.Errors, "unknown_alias") {
		t.Fatalf("expected unknown_alias error, got %+v", state.Errors)
	}
}

func TestValidate_UnknownMetricAliasWarns(t *testing.T) {
	c := validContext()
	c.Metrics = append(c.Metrics, domain.Metric{ID: "bad_ref", Expression: "SUM(payments.amount)"})

	state := Validate(c)
	if state.Status != domain.ValidationWarning {
		t.Fatalf("expected warning status, got %q with %+v", state.Status, state.Errors)
	}
	if !hasIssue(state.Warnings, "unknown_column_alias") {
		t.Fatalf("expected unknown_column_alias warning, got %+v", state.Warnings)
	}
}

func TestValidate_CycleIsError(t *testing.T) {
	c := validContext()
	c.Datasets = append(c.Datasets, domain.DatasetRef{Alias: "items", DatasetID: uuid.New()})
	cond := []domain.JoinCondition{{LeftColumn: "k", RightColumn: "k", Operator: "="}}
	c.Relationships = append(c.Relationships,
		domain.Relationship{ID: "orders_items", LeftAlias: "orders", RightAlias: "items", JoinType: domain.JoinTypeInner, Conditions: cond},
		domain.Relationship{ID: "items_customers", LeftAlias: "items", RightAlias: "customers", JoinType: domain.JoinTypeInner, Conditions: cond},
	)

	state := Validate(c)
	if state.Status != domain.ValidationFailed {
		t.Fatalf("expected failed for a relationship cycle, got %q", state.Status)
	}
	if !hasIssue(state.Errors, "relationship_cycle") {
		t.Fatalf("expected relationship_cycle error, got %+v", state.Errors)
	}
}

func TestValidate_ParallelRelationshipsWarnOnly(t *testing.T) {
	c := validContext()
	c.Relationships = append(c.Relationships, domain.Relationship{
		ID:         "customer_orders_by_email",
		LeftAlias:  "customers",
		RightAlias: "orders",
		JoinType:   domain.JoinTypeInner,
		Conditions: []domain.JoinCondition{{LeftColumn: "email", RightColumn: "customer_email", Operator: "="}},
	})

	state := Validate(c)
	if state.Status != domain.ValidationWarning {
		t.Fatalf("parallel relationships should warn, not fail: %q %+v", state.Status, state.Errors)
	}
	if !hasIssue(state.Warnings, "duplicate_relationship") {
		t.Fatalf("expected duplicate_relationship warning, got %+v", state.Warnings)
	}
}

func TestValidate_SelfJoinAllowed(t *testing.T) {
	c := domain.NewContext(uuid.New(), "source")
	c.Name = "Org Chart"
	c.Type = domain.ContextTypeMultiDataset
	c.Datasets = []domain.DatasetRef{{Alias: "employees", DatasetID: uuid.New()}}
	c.Relationships = []domain.Relationship{{
		ID:         "manager",
		LeftAlias:  "employees",
		RightAlias: "employees",
		JoinType:   domain.JoinTypeLeft,
		Conditions: []domain.JoinCondition{{LeftColumn: "manager_id", RightColumn: "employee_id", Operator: "="}},
	}}

	state := Validate(c)
	if state.Status != domain.ValidationPassed {
		t.Fatalf("self join should validate, got %q with %+v", state.Status, state.Errors)
	}
}

func TestValidate_MultiDatasetWithoutRelationshipsWarns(t *testing.T) {
	c := validContext()
	c.Relationships = nil
	c.Metrics = nil
	c.Filters = nil

	state := Validate(c)
	if state.Status != domain.ValidationWarning {
		t.Fatalf("expected warning status, got %q with errors %+v", state.Status, state.Errors)
	}
	if !hasIssue(state.Warnings, "no_relationships") {
		t.Fatalf("expected no_relationships warning, got %+v", state.Warnings)
	}
}

func TestValidate_NonEqualityJoinOperatorIsError(t *testing.T) {
	c := validContext()
	c.Relationships[0].Conditions[0].Operator = "<"

	state := Validate(c)
	if state.Status != domain.ValidationFailed {
		t.Fatalf("expected failed, got %q", state.Status)
	}
	if !hasIssue(state.Errors, "unsupported_operator") {
		t.Fatalf("expected unsupported_operator error, got %+v", state.Errors)
	}
}

type staticRegistry struct {
	known map[uuid.UUID]bool
}

func (r *staticRegistry) Get(_ context.Context, id uuid.UUID) (domain.Dataset, error) {
	if r.known[id] {
		return domain.Dataset{ID: id}, nil
	}
	return domain.Dataset{}, errors.New("no rows")
}

func TestValidateWithRegistry_DanglingDatasetWarns(t *testing.T) {
	c := validContext()
	registry := &staticRegistry{known: map[uuid.UUID]bool{c.Datasets[0].DatasetID: true}}

	state := ValidateWithRegistry(context.Background(), c, registry)
	if state.Status != domain.ValidationWarning {
		t.Fatalf("expected warning status, got %q with %+v", state.Status, state.Errors)
	}
	if !hasIssue(state.Warnings, "dangling_dataset") {
		t.Fatalf("expected dangling_dataset warning, got %+v", state.Warnings)
	}
}

func TestValidateWithRegistry_AllDatasetsKnownPasses(t *testing.T) {
	c := validContext()
	registry := &staticRegistry{known: map[uuid.UUID]bool{
		c.Datasets[0].DatasetID: true,
		c.Datasets[1].DatasetID: true,
	}}

	state := ValidateWithRegistry(context.Background(), c, registry)
	if state.Status != domain.ValidationPassed {
		t.Fatalf("expected passed, got %q with %+v", state.Status, state.Warnings)
	}
}
