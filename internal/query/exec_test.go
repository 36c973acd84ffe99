package query

import (
	"testing"

	"github.com/dataspect/dataspect/internal/frame"
)

func ordersFrame() *frame.Frame {
	f := frame.New([]string{"customers.customer_name", "customers.region", "orders.order_amount"})
	f.AppendRow([]any{"Alice", "eu", 100.0})
	f.AppendRow([]any{"Alice", "eu", 50.0})
	f.AppendRow([]any{"Bob", "us", 75.0})
	f.AppendRow([]any{"Carol", "eu", nil})
	f.AppendRow([]any{"Carol", "eu", 200.0})
	return f
}

func mustParse(t *testing.T, src string) *SelectStmt {
	t.Helper()
	stmt, err := Parse(src)
	if err != nil {
		t.Fatalf("parse %q: %v", src, err)
	}
	return stmt
}

func TestExecute_PlainProjection(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT customers.customer_name, orders.order_amount"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumRows() != 5 || out.NumColumns() != 2 {
		t.Fatalf("unexpected shape %dx%d", out.NumRows(), out.NumColumns())
	}
}

func TestExecute_WhereAndLimit(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT customers.customer_name WHERE orders.order_amount > 60 LIMIT 1"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumRows() != 1 {
		t.Fatalf("expected LIMIT 1, got %d rows", out.NumRows())
	}
	if out.Rows[0][0] != "Alice" {
		t.Fatalf("expected first matching row, got %v", out.Rows[0][0])
	}
}

func TestExecute_ImplicitGrouping(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT customers.customer_name, SUM(orders.order_amount) AS revenue"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumRows() != 3 {
		t.Fatalf("expected one row per customer, got %d", out.NumRows())
	}
	if out.Columns[1] != "revenue" {
		t.Fatalf("alias should name the column, got %q", out.Columns[1])
	}
	// First-appearance order: Alice, Bob, Carol.
	if out.Rows[0][0] != "Alice" || out.Rows[0][1] != 150.0 {
		t.Fatalf("unexpected first group: %+v", out.Rows[0])
	}
	if out.Rows[2][0] != "Carol" || out.Rows[2][1] != 200.0 {
		t.Fatalf("NULL amounts must be excluded from SUM: %+v", out.Rows[2])
	}
}

func TestExecute_ExplicitGroupBy(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT customers.region, COUNT(*) AS orders GROUP BY customers.region"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumRows() != 2 {
		t.Fatalf("expected eu and us groups, got %d", out.NumRows())
	}
	if out.Rows[0][0] != "eu" || out.Rows[0][1] != int64(4) {
		t.Fatalf("unexpected eu group: %+v", out.Rows[0])
	}
}

func TestExecute_PureAggregates(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT COUNT(*), COUNT(orders.order_amount), AVG(orders.order_amount), MEDIAN(orders.order_amount)"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumRows() != 1 {
		t.Fatalf("pure aggregate query yields one row, got %d", out.NumRows())
	}
	row := out.Rows[0]
	if row[0] != int64(5) {
		t.Fatalf("COUNT(*) counts all rows, got %v", row[0])
	}
	if row[1] != int64(4) {
		t.Fatalf("COUNT(col) excludes NULLs, got %v", row[1])
	}
	if row[2] != 106.25 {
		t.Fatalf("AVG excludes NULLs: got %v, want 106.25", row[2])
	}
	if row[3] != 87.5 {
		t.Fatalf("MEDIAN of 50,75,100,200 is 87.5, got %v", row[3])
	}
}

func TestExecute_OrderByWithNullsLast(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT customers.customer_name, orders.order_amount ORDER BY orders.order_amount DESC"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Rows[0][1] != 200.0 {
		t.Fatalf("expected largest amount first, got %v", out.Rows[0][1])
	}
	if out.Rows[len(out.Rows)-1][1] != nil {
		t.Fatalf("NULLs sort last, got %v", out.Rows[len(out.Rows)-1][1])
	}
}

func TestExecute_StarProjection(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT *"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumColumns() != 3 || out.NumRows() != 5 {
		t.Fatalf("star should project every column, got %dx%d", out.NumRows(), out.NumColumns())
	}
}

func TestExecute_ExtraPredicatesAndIntoWhere(t *testing.T) {
	extra, err := ParseExpression("customers.region = 'eu'")
	if err != nil {
		t.Fatalf("parse extra: %v", err)
	}
	out, err := Execute(mustParse(t, "SELECT customers.customer_name WHERE orders.order_amount > 60"), ordersFrame(), []Expr{extra})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	// amount > 60 AND region = eu: Alice(100), Carol(200).
	if out.NumRows() != 2 {
		t.Fatalf("expected 2 rows, got %d", out.NumRows())
	}
}

func TestExecute_NullComparisonsNeverMatch(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT customers.customer_name WHERE orders.order_amount > 0"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, row := range out.Rows {
		if row[0] == "Carol" && out.NumRows() > 4 {
			t.Fatalf("NULL comparison leaked a row")
		}
	}
	if out.NumRows() != 4 {
		t.Fatalf("expected 4 non-NULL rows, got %d", out.NumRows())
	}
}

func TestExecute_IsNullPredicate(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT customers.customer_name WHERE orders.order_amount IS NULL"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumRows() != 1 || out.Rows[0][0] != "Carol" {
		t.Fatalf("IS NULL should match exactly the NULL row: %+v", out.Rows)
	}
}

func TestExecute_ArithmeticAndDivisionByZero(t *testing.T) {
	f := frame.New([]string{"a", "b"})
	f.AppendRow([]any{int64(10), int64(2)})
	f.AppendRow([]any{int64(10), int64(0)})

	out, err := Execute(mustParse(t, "SELECT a / b AS ratio"), f, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Rows[0][0] != 5.0 {
		t.Fatalf("expected 5.0, got %v", out.Rows[0][0])
	}
	if out.Rows[1][0] != nil {
		t.Fatalf("division by zero yields NULL, got %v", out.Rows[1][0])
	}
}

func TestExecute_UnqualifiedColumnResolution(t *testing.T) {
	// Unqualified names resolve against qualified frames when unambiguous.
	out, err := Execute(mustParse(t, "SELECT customer_name WHERE region = 'us'"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumRows() != 1 || out.Rows[0][0] != "Bob" {
		t.Fatalf("suffix resolution failed: %+v", out.Rows)
	}
}

func TestExecute_PureAggregatesOverNoMatchingRows(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT COUNT(*), SUM(orders.order_amount) WHERE orders.order_amount > 10000"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.NumRows() != 1 {
		t.Fatalf("aggregates over no rows still yield one row, got %d", out.NumRows())
	}
	if out.Rows[0][0] != int64(0) {
		t.Fatalf("COUNT(*) over no rows is 0, got %v", out.Rows[0][0])
	}
	if out.Rows[0][1] != nil {
		t.Fatalf("SUM over no rows is NULL, got %v", out.Rows[0][1])
	}
}

func TestExecute_OrderByAscendingKeepsNullsLast(t *testing.T) {
	out, err := Execute(mustParse(t, "SELECT orders.order_amount ORDER BY orders.order_amount"), ordersFrame(), nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out.Rows[0][0] != 50.0 {
		t.Fatalf("expected smallest amount first, got %v", out.Rows[0][0])
	}
	if out.Rows[len(out.Rows)-1][0] != nil {
		t.Fatalf("NULLs sort last, got %v", out.Rows[len(out.Rows)-1][0])
	}
}

func TestEvalGroup_AggregateComparisonOverEmptyGroup(t *testing.T) {
	f := frame.New([]string{"orders.order_amount"})
	expr, err := ParseExpression("COUNT(*) >= 0")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, err := EvalGroup(expr, f, nil)
	if err != nil {
		t.Fatalf("eval over empty group: %v", err)
	}
	if !Truthy(v) {
		t.Fatalf("COUNT(*) >= 0 must hold over an empty group, got %v", v)
	}
}

func TestEvalGroup_GroupingKeyOverEmptyGroupIsNull(t *testing.T) {
	f := frame.New([]string{"customers.region"})
	expr, err := ParseExpression("customers.region")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	v, err := EvalGroup(expr, f, nil)
	if err != nil {
		t.Fatalf("eval over empty group: %v", err)
	}
	if v != nil {
		t.Fatalf("grouping key has no value over an empty group, got %v", v)
	}
}
