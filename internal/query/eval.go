package query

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dataspect/dataspect/internal/frame"
)

// Eval evaluates a non-aggregate expression against one frame row.
func Eval(expr Expr, f *frame.Frame, row int) (any, error) {
	return evalRow(expr, f, row)
}

// EvalGroup evaluates an expression over a group of row indexes, computing
// aggregate calls across the whole group.
func EvalGroup(expr Expr, f *frame.Frame, group []int) (any, error) {
	return evalAggregate(expr, f, group)
}

// Truthy reports whether an evaluated value counts as true. NULL is false.
func Truthy(v any) bool {
	return truthy(v)
}

// evalRow evaluates a non-aggregate expression against one frame row.
func evalRow(expr Expr, f *frame.Frame, row int) (any, error) {
	switch e := expr.(type) {
	case *Literal:
		return e.Value, nil

	case *Column:
		idx, err := f.ColumnIndex(e.Name)
		if err != nil {
			return nil, err
		}
		return f.Value(row, idx), nil

	case *Unary:
		v, err := evalRow(e.Operand, f, row)
		if err != nil {
			return nil, err
		}
		return applyUnary(e.Op, v)

	case *Binary:
		return evalBinary(e, f, row)

	case *IsNull:
		v, err := evalRow(e.Operand, f, row)
		if err != nil {
			return nil, err
		}
		return (v == nil) != e.Negate, nil

	case *InList:
		v, err := evalRow(e.Operand, f, row)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return false, nil
		}
		for _, candidate := range e.Values {
			cv, err := evalRow(candidate, f, row)
			if err != nil {
				return nil, err
			}
			if eq, ok := compareValues(v, cv); ok && eq == 0 {
				return !e.Negate, nil
			}
		}
		return e.Negate, nil

	case *FuncCall:
		return nil, fmt.Errorf("aggregate %s used outside an aggregation context", e.Name)
	}
	return nil, fmt.Errorf("unsupported expression node %T", expr)
}

func evalBinary(e *Binary, f *frame.Frame, row int) (any, error) {
	switch e.Op {
	case "AND", "OR":
		lv, err := evalRow(e.Left, f, row)
		if err != nil {
			return nil, err
		}
		lb := truthy(lv)
		if e.Op == "AND" && !lb {
			return false, nil
		}
		if e.Op == "OR" && lb {
			return true, nil
		}
		rv, err := evalRow(e.Right, f, row)
		if err != nil {
			return nil, err
		}
		return truthy(rv), nil
	}

	lv, err := evalRow(e.Left, f, row)
	if err != nil {
		return nil, err
	}
	rv, err := evalRow(e.Right, f, row)
	if err != nil {
		return nil, err
	}

	switch e.Op {
	case "+", "-", "*", "/", "%":
		return applyArithmetic(e.Op, lv, rv)
	case "=", "!=", "<", "<=", ">", ">=":
		if lv == nil || rv == nil {
			return false, nil
		}
		cmp, ok := compareValues(lv, rv)
		if !ok {
			return false, nil
		}
		switch e.Op {
		case "=":
			return cmp == 0, nil
		case "!=":
			return cmp != 0, nil
		case "<":
			return cmp < 0, nil
		case "<=":
			return cmp <= 0, nil
		case ">":
			return cmp > 0, nil
		case ">=":
			return cmp >= 0, nil
		}
	}
	return nil, fmt.Errorf("unsupported operator %q", e.Op)
}

// evalAggregate evaluates an expression that may contain aggregate calls over
// a group of row indices. Non-aggregate subexpressions are taken from the
// group's first row (they are grouping keys, constant within the group).
func evalAggregate(expr Expr, f *frame.Frame, group []int) (any, error) {
	switch e := expr.(type) {
	case *FuncCall:
		return computeAggregate(e, f, group)

	case *Unary:
		if !ContainsAggregate(e) {
			return evalGroupRow(e, f, group)
		}
		v, err := evalAggregate(e.Operand, f, group)
		if err != nil {
			return nil, err
		}
		return applyUnary(e.Op, v)

	case *Binary:
		if !ContainsAggregate(e) {
			return evalGroupRow(e, f, group)
		}
		lv, err := evalAggregate(e.Left, f, group)
		if err != nil {
			return nil, err
		}
		rv, err := evalAggregate(e.Right, f, group)
		if err != nil {
			return nil, err
		}
		switch e.Op {
		case "+", "-", "*", "/", "%":
			return applyArithmetic(e.Op, lv, rv)
		default:
			if lv == nil || rv == nil {
				return false, nil
			}
			cmp, ok := compareValues(lv, rv)
			if !ok {
				return false, nil
			}
			switch e.Op {
			case "=":
				return cmp == 0, nil
			case "!=":
				return cmp != 0, nil
			case "<":
				return cmp < 0, nil
			case "<=":
				return cmp <= 0, nil
			case ">":
				return cmp > 0, nil
			case ">=":
				return cmp >= 0, nil
			}
			return nil, fmt.Errorf("unsupported operator %q", e.Op)
		}

	default:
		return evalGroupRow(expr, f, group)
	}
}

// evalGroupRow evaluates a non-aggregate subexpression inside an aggregation
// context. Such expressions are grouping keys, constant within the group, so
// the first row stands in. An empty group has no key values: column
// references yield NULL and column-free expressions (literals, arithmetic on
// literals) still evaluate.
func evalGroupRow(expr Expr, f *frame.Frame, group []int) (any, error) {
	if len(group) > 0 {
		return evalRow(expr, f, group[0])
	}
	var columns []string
	CollectColumns(expr, &columns)
	if len(columns) > 0 {
		return nil, nil
	}
	return evalRow(expr, f, 0)
}

// computeAggregate runs one aggregate call over the group. NULLs are excluded
// from SUM, AVG, MEDIAN, MIN and MAX; COUNT(col) counts non-NULL cells and
// COUNT(*) counts rows.
func computeAggregate(call *FuncCall, f *frame.Frame, group []int) (any, error) {
	if call.Star {
		if call.Name != "COUNT" {
			return nil, fmt.Errorf("%s(*) is not supported", call.Name)
		}
		return int64(len(group)), nil
	}

	var values []any
	for _, row := range group {
		v, err := evalRow(call.Arg, f, row)
		if err != nil {
			return nil, err
		}
		if v != nil {
			values = append(values, v)
		}
	}

	switch call.Name {
	case "COUNT":
		return int64(len(values)), nil

	case "SUM":
		if len(values) == 0 {
			return nil, nil
		}
		sum := 0.0
		for _, v := range values {
			n, ok := asNumber(v)
			if !ok {
				return nil, fmt.Errorf("SUM over non-numeric value %v", v)
			}
			sum += n
		}
		return sum, nil

	case "AVG":
		if len(values) == 0 {
			return nil, nil
		}
		sum := 0.0
		for _, v := range values {
			n, ok := asNumber(v)
			if !ok {
				return nil, fmt.Errorf("AVG over non-numeric value %v", v)
			}
			sum += n
		}
		return sum / float64(len(values)), nil

	case "MEDIAN":
		if len(values) == 0 {
			return nil, nil
		}
		nums := make([]float64, 0, len(values))
		for _, v := range values {
			n, ok := asNumber(v)
			if !ok {
				return nil, fmt.Errorf("MEDIAN over non-numeric value %v", v)
			}
			nums = append(nums, n)
		}
		sort.Float64s(nums)
		mid := len(nums) / 2
		if len(nums)%2 == 1 {
			return nums[mid], nil
		}
		return (nums[mid-1] + nums[mid]) / 2, nil

	case "MIN", "MAX":
		if len(values) == 0 {
			return nil, nil
		}
		best := values[0]
		for _, v := range values[1:] {
			cmp, ok := compareValues(v, best)
			if !ok {
				return nil, fmt.Errorf("%s over incomparable values", call.Name)
			}
			if (call.Name == "MIN" && cmp < 0) || (call.Name == "MAX" && cmp > 0) {
				best = v
			}
		}
		return best, nil
	}
	return nil, fmt.Errorf("unknown aggregate %q", call.Name)
}

func applyUnary(op string, v any) (any, error) {
	switch op {
	case "NOT":
		return !truthy(v), nil
	case "-":
		n, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %v", v)
		}
		return -n, nil
	}
	return nil, fmt.Errorf("unsupported unary operator %q", op)
}

func applyArithmetic(op string, lv, rv any) (any, error) {
	if lv == nil || rv == nil {
		return nil, nil
	}
	l, lok := asNumber(lv)
	r, rok := asNumber(rv)
	if !lok || !rok {
		if op == "+" {
			// String concatenation falls out of + on two strings.
			ls, lsok := lv.(string)
			rs, rsok := rv.(string)
			if lsok && rsok {
				return ls + rs, nil
			}
		}
		return nil, fmt.Errorf("arithmetic %q over non-numeric values %v, %v", op, lv, rv)
	}
	switch op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return nil, nil
		}
		return l / r, nil
	case "%":
		if r == 0 {
			return nil, nil
		}
		return float64(int64(l) % int64(r)), nil
	}
	return nil, fmt.Errorf("unsupported operator %q", op)
}

// compareValues orders two non-nil cell values. Numbers compare numerically,
// strings case-sensitively, booleans false<true, times chronologically.
func compareValues(a, b any) (int, bool) {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			switch {
			case an < bn:
				return -1, true
			case an > bn:
				return 1, true
			}
			return 0, true
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return strings.Compare(av, fmt.Sprintf("%v", b)), true
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		switch {
		case av.Before(bv):
			return -1, true
		case av.After(bv):
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}

func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	default:
		n, ok := asNumber(v)
		return ok && n != 0
	}
}
