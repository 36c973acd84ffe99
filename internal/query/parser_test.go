package query

import (
	"errors"
	"strings"
	"testing"

	"github.com/dataspect/dataspect/internal/domain"
)

func TestParse_BasicSelect(t *testing.T) {
	stmt, err := Parse("SELECT c.name, o.amount FROM customers WHERE o.amount > 100 ORDER BY o.amount DESC LIMIT 10")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(stmt.Items) != 2 {
		t.Fatalf("expected 2 select items, got %d", len(stmt.Items))
	}
	if stmt.From != "customers" {
		t.Fatalf("expected FROM customers, got %q", stmt.From)
	}
	if stmt.Where == nil {
		t.Fatalf("expected WHERE clause")
	}
	if len(stmt.OrderBy) != 1 || !stmt.OrderBy[0].Desc {
		t.Fatalf("expected descending order item, got %+v", stmt.OrderBy)
	}
	if stmt.Limit != 10 {
		t.Fatalf("expected limit 10, got %d", stmt.Limit)
	}
}

func TestParse_RejectsNonSelect(t *testing.T) {
	for _, q := range []string{
		"DROP TABLE users",
		"DELETE FROM orders",
		"UPDATE t SET x = 1",
		"INSERT INTO t VALUES (1)",
		"CREATE TABLE t (x int)",
		"ALTER TABLE t ADD COLUMN y int",
		"",
	} {
		_, err := Parse(q)
		var unsupported *domain.UnsupportedOperationError
		if !errors.As(err, &unsupported) {
			t.Fatalf("Parse(%q): expected UnsupportedOperationError, got %v", q, err)
		}
	}
}

func TestParse_RejectsStackedStatements(t *testing.T) {
	_, err := Parse("SELECT a FROM t WHERE x = 1 DELETE")
	var unsupported *domain.UnsupportedOperationError
	if !errors.As(err, &unsupported) {
		t.Fatalf("trailing keyword should reject, got %v", err)
	}
}

func TestParse_AggregatesAndAliases(t *testing.T) {
	stmt, err := Parse("SELECT c.name AS customer, SUM(o.amount) AS revenue, COUNT(*)")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if stmt.Items[0].Alias != "customer" || stmt.Items[1].Alias != "revenue" {
		t.Fatalf("aliases not captured: %+v", stmt.Items)
	}
	if !ContainsAggregate(stmt.Items[1].Expr) {
		t.Fatalf("SUM call should register as aggregate")
	}
	call, ok := stmt.Items[2].Expr.(*FuncCall)
	if !ok || !call.Star {
		t.Fatalf("COUNT(*) should parse as star call, got %+v", stmt.Items[2].Expr)
	}
}

func TestParse_GroupByAndConditions(t *testing.T) {
	stmt, err := Parse("SELECT c.region, AVG(o.amount) GROUP BY c.region")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(stmt.GroupBy) != 1 {
		t.Fatalf("expected 1 group key, got %d", len(stmt.GroupBy))
	}
}

func TestParse_NullAndInPredicates(t *testing.T) {
	stmt, err := Parse("SELECT c.name WHERE c.email IS NOT NULL AND c.region IN ('eu', 'us') AND NOT c.blocked")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	text := stmt.Where.Text()
	for _, want := range []string{"IS NOT NULL", "IN"} {
		if !strings.Contains(text, want) {
			t.Fatalf("where text %q missing %q", text, want)
		}
	}
}

func TestParse_UnknownFunctionRejected(t *testing.T) {
	if _, err := Parse("SELECT EXEC(c.name)"); err == nil {
		t.Fatalf("unknown functions must not parse")
	}
}

func TestParseExpression_Standalone(t *testing.T) {
	expr, err := ParseExpression("c.status = 'active' AND o.amount >= 0")
	if err != nil {
		t.Fatalf("parse expression: %v", err)
	}
	var cols []string
	CollectColumns(expr, &cols)
	if len(cols) != 2 {
		t.Fatalf("expected 2 columns collected, got %v", cols)
	}
}

func TestParse_StringEscapes(t *testing.T) {
	stmt, err := Parse("SELECT c.name WHERE c.note = 'it''s fine'")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cmp, ok := stmt.Where.(*Binary)
	if !ok {
		t.Fatalf("expected binary comparison, got %T", stmt.Where)
	}
	lit, ok := cmp.Right.(*Literal)
	if !ok || lit.Value != "it's fine" {
		t.Fatalf("escaped quote not unescaped: %+v", cmp.Right)
	}
}
