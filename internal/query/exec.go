package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dataspect/dataspect/internal/frame"
)

// Execute runs a parsed SELECT over the frame. extraPredicates are caller-
// applied filter predicates ANDed into the WHERE clause (the explicit apply
// list; filters never apply silently).
//
// When the projection mixes aggregates with plain columns and no GROUP BY is
// given, the plain select expressions become the implicit grouping keys, so
// "SELECT customer_name, SUM(o.order_amount) ..." groups by customer_name.
func Execute(stmt *SelectStmt, f *frame.Frame, extraPredicates []Expr) (*frame.Frame, error) {
	where := stmt.Where
	for _, pred := range extraPredicates {
		if where == nil {
			where = pred
		} else {
			where = &Binary{Op: "AND", Left: where, Right: pred}
		}
	}

	var rows []int
	for i := range f.Rows {
		if where != nil {
			v, err := evalRow(where, f, i)
			if err != nil {
				return nil, fmt.Errorf("evaluate WHERE: %w", err)
			}
			if !truthy(v) {
				continue
			}
		}
		rows = append(rows, i)
	}

	items, err := expandStars(stmt.Items, f)
	if err != nil {
		return nil, err
	}

	hasAggregate := false
	for _, item := range items {
		if ContainsAggregate(item.Expr) {
			hasAggregate = true
			break
		}
	}

	out := frame.New(projectionNames(items))

	if !hasAggregate && len(stmt.GroupBy) == 0 {
		for _, row := range rows {
			outRow := make([]any, len(items))
			for i, item := range items {
				v, err := evalRow(item.Expr, f, row)
				if err != nil {
					return nil, fmt.Errorf("evaluate select item %d: %w", i+1, err)
				}
				outRow[i] = v
			}
			out.Rows = append(out.Rows, outRow)
		}
	} else {
		groupExprs := stmt.GroupBy
		if len(groupExprs) == 0 {
			for _, item := range items {
				if !ContainsAggregate(item.Expr) {
					groupExprs = append(groupExprs, item.Expr)
				}
			}
		}

		groups, order, err := groupRows(groupExprs, f, rows)
		if err != nil {
			return nil, err
		}
		for _, key := range order {
			group := groups[key]
			outRow := make([]any, len(items))
			for i, item := range items {
				v, err := evalAggregate(item.Expr, f, group)
				if err != nil {
					return nil, fmt.Errorf("evaluate select item %d: %w", i+1, err)
				}
				outRow[i] = v
			}
			out.Rows = append(out.Rows, outRow)
		}
	}

	if len(stmt.OrderBy) > 0 {
		if err := orderResult(out, items, stmt.OrderBy); err != nil {
			return nil, err
		}
	}

	if stmt.Limit > 0 && len(out.Rows) > stmt.Limit {
		out.Rows = out.Rows[:stmt.Limit]
	}

	return out, nil
}

func expandStars(items []SelectItem, f *frame.Frame) ([]SelectItem, error) {
	expanded := make([]SelectItem, 0, len(items))
	for _, item := range items {
		if !item.Star {
			expanded = append(expanded, item)
			continue
		}
		for _, col := range f.Columns {
			expanded = append(expanded, SelectItem{Expr: &Column{Name: col}})
		}
	}
	if len(expanded) == 0 {
		return nil, fmt.Errorf("empty projection")
	}
	return expanded, nil
}

func projectionNames(items []SelectItem) []string {
	names := make([]string, len(items))
	for i, item := range items {
		switch {
		case item.Alias != "":
			names[i] = item.Alias
		default:
			names[i] = item.Expr.Text()
		}
	}
	return names
}

// groupRows buckets row indices by their grouping-key tuple, preserving first-
// appearance order so results are deterministic.
func groupRows(groupExprs []Expr, f *frame.Frame, rows []int) (map[string][]int, []string, error) {
	if len(groupExprs) == 0 {
		// Single implicit group covering everything (pure aggregate query).
		// No matching rows still yields the one group, so COUNT comes back
		// as 0 and SUM as NULL instead of an empty result.
		return map[string][]int{"": rows}, []string{""}, nil
	}

	groups := make(map[string][]int)
	var order []string
	for _, row := range rows {
		var key strings.Builder
		for _, expr := range groupExprs {
			v, err := evalRow(expr, f, row)
			if err != nil {
				return nil, nil, fmt.Errorf("evaluate GROUP BY: %w", err)
			}
			fmt.Fprintf(&key, "%v\x00", v)
		}
		k := key.String()
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], row)
	}
	return groups, order, nil
}

// orderResult sorts the projected frame. ORDER BY keys must reference
// projected columns (by alias or expression text) so both plain and grouped
// results sort the same way.
func orderResult(out *frame.Frame, items []SelectItem, orderBy []OrderItem) error {
	type sortKey struct {
		col  int
		desc bool
	}
	keys := make([]sortKey, len(orderBy))
	for i, ord := range orderBy {
		ref := ord.Expr.Text()
		found := -1
		for c, item := range items {
			if strings.EqualFold(item.Alias, ref) || strings.EqualFold(item.Expr.Text(), ref) {
				found = c
				break
			}
		}
		if found < 0 {
			idx, err := out.ColumnIndex(ref)
			if err != nil {
				return fmt.Errorf("ORDER BY %q does not reference a projected column", ref)
			}
			found = idx
		}
		keys[i] = sortKey{col: found, desc: ord.Desc}
	}

	// NULLs sort last in both directions, so they sit outside the DESC
	// negation below. Incomparable values rank as equal.
	sort.SliceStable(out.Rows, func(a, b int) bool {
		for _, key := range keys {
			av, bv := out.Rows[a][key.col], out.Rows[b][key.col]
			switch {
			case av == nil && bv == nil:
				continue
			case av == nil:
				return false
			case bv == nil:
				return true
			}
			cmp, ok := compareValues(av, bv)
			if !ok || cmp == 0 {
				continue
			}
			if key.desc {
				cmp = -cmp
			}
			return cmp < 0
		}
		return false
	})
	return nil
}
