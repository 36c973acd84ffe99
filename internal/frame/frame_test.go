package frame

import (
	"testing"
)

func TestColumnIndex_QualifiedSuffixResolution(t *testing.T) {
	f := New([]string{"customers.customer_id", "customers.name", "orders.order_amount"})

	idx, err := f.ColumnIndex("orders.order_amount")
	if err != nil || idx != 2 {
		t.Fatalf("exact match failed: %d %v", idx, err)
	}

	idx, err = f.ColumnIndex("name")
	if err != nil || idx != 1 {
		t.Fatalf("unique suffix should resolve: %d %v", idx, err)
	}

	if _, err := f.ColumnIndex("missing"); err == nil {
		t.Fatalf("expected error for unknown column")
	}
}

func TestColumnIndex_AmbiguousSuffix(t *testing.T) {
	f := New([]string{"customers.customer_id", "orders.customer_id"})
	if _, err := f.ColumnIndex("customer_id"); err == nil {
		t.Fatalf("ambiguous suffix must error")
	}
}

func TestQualify(t *testing.T) {
	f := New([]string{"id", "orders.total"})
	f.AppendRow([]any{int64(1), 10.0})

	q := f.Qualify("customers")
	if q.Columns[0] != "customers.id" {
		t.Fatalf("unqualified column should gain prefix, got %q", q.Columns[0])
	}
	if q.Columns[1] != "orders.total" {
		t.Fatalf("already-qualified column must keep its prefix, got %q", q.Columns[1])
	}
	if q.NumRows() != 1 {
		t.Fatalf("rows should be shared")
	}
}

func TestAppendRow_PadsAndTruncates(t *testing.T) {
	f := New([]string{"a", "b", "c"})
	f.AppendRow([]any{int64(1)})
	f.AppendRow([]any{int64(1), int64(2), int64(3), int64(4)})

	if len(f.Rows[0]) != 3 || f.Rows[0][2] != nil {
		t.Fatalf("short row should be padded with NULLs: %+v", f.Rows[0])
	}
	if len(f.Rows[1]) != 3 {
		t.Fatalf("long row should be truncated: %+v", f.Rows[1])
	}
}
