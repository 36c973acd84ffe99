package frame

import (
	"fmt"

	"github.com/dataspect/dataspect/internal/domain"
)

// JoinStep is one resolved join: the relationship to apply and the alias it
// introduces. The relgraph resolver guarantees the other side is already part
// of the joined set.
type JoinStep struct {
	Relationship domain.Relationship
	// Reversed is true when the step introduces the relationship's left
	// alias (the declared right side is already joined).
	Reversed bool
}

// NewAlias returns the alias this step introduces into the joined frame.
func (s JoinStep) NewAlias() string {
	if s.Reversed {
		return s.Relationship.LeftAlias
	}
	return s.Relationship.RightAlias
}

// ExecuteJoins folds per-alias frames into a single joined frame, applying
// each step strictly in order with its declared join type. Column names in
// the result are alias-qualified. start names the alias the fold begins from.
func ExecuteJoins(start string, frames map[string]*Frame, steps []JoinStep) (*Frame, error) {
	base, ok := frames[start]
	if !ok {
		return nil, fmt.Errorf("no frame loaded for alias %q", start)
	}
	joined := base.Qualify(start)

	for _, step := range steps {
		rel := step.Relationship
		newAlias := step.NewAlias()
		right, ok := frames[newAlias]
		if !ok {
			return nil, fmt.Errorf("no frame loaded for alias %q", newAlias)
		}

		joinType := rel.JoinType
		conditions := rel.Conditions
		if step.Reversed {
			// The declared right side is already joined, so the key
			// columns and the left/right join semantics swap sides.
			conditions = reverseConditions(conditions)
			joinType = reverseJoinType(joinType)
		}

		knownAlias := rel.LeftAlias
		if step.Reversed {
			knownAlias = rel.RightAlias
		}

		var err error
		joined, err = joinPair(joined, right.Qualify(newAlias), knownAlias, newAlias, joinType, conditions)
		if err != nil {
			return nil, err
		}
	}
	return joined, nil
}

// joinPair joins the accumulated frame with one qualified per-alias frame.
// Multi-column conditions are conjunctive and strictly equality joins; any
// other declared operator is rejected rather than silently treated as =.
// A missing key column surfaces as JoinKeyError: the frame's schema drifted
// since the context was validated.
func joinPair(left, right *Frame, leftAlias, newAlias string, joinType domain.JoinType, conditions []domain.JoinCondition) (*Frame, error) {
	leftKeys := make([]int, len(conditions))
	rightKeys := make([]int, len(conditions))
	for i, cond := range conditions {
		if cond.Operator != "" && cond.Operator != "=" {
			return nil, &domain.UnsupportedOperationError{
				Operation: fmt.Sprintf("%s %s %s join condition", cond.LeftColumn, cond.Operator, cond.RightColumn),
			}
		}
		idx, err := left.ColumnIndex(leftAlias + "." + cond.LeftColumn)
		if err != nil {
			return nil, &domain.JoinKeyError{Alias: leftAlias, Column: cond.LeftColumn}
		}
		leftKeys[i] = idx

		idx, err = right.ColumnIndex(newAlias + "." + cond.RightColumn)
		if err != nil {
			return nil, &domain.JoinKeyError{Alias: newAlias, Column: cond.RightColumn}
		}
		rightKeys[i] = idx
	}

	out := &Frame{Columns: append(append([]string{}, left.Columns...), right.Columns...)}

	// Hash the right side on its key tuple.
	rightIndex := make(map[string][]int, len(right.Rows))
	for i, row := range right.Rows {
		key, ok := keyOf(row, rightKeys)
		if !ok {
			continue // NULL keys never match
		}
		rightIndex[key] = append(rightIndex[key], i)
	}

	rightMatched := make([]bool, len(right.Rows))
	nullRight := make([]any, len(right.Columns))
	nullLeft := make([]any, len(left.Columns))

	for _, lrow := range left.Rows {
		key, ok := keyOf(lrow, leftKeys)
		var matches []int
		if ok {
			matches = rightIndex[key]
		}
		if len(matches) == 0 {
			if joinType == domain.JoinTypeLeft || joinType == domain.JoinTypeOuter {
				out.Rows = append(out.Rows, concatRows(lrow, nullRight))
			}
			continue
		}
		for _, ri := range matches {
			rightMatched[ri] = true
			out.Rows = append(out.Rows, concatRows(lrow, right.Rows[ri]))
		}
	}

	if joinType == domain.JoinTypeRight || joinType == domain.JoinTypeOuter {
		for i, matched := range rightMatched {
			if !matched {
				out.Rows = append(out.Rows, concatRows(nullLeft, right.Rows[i]))
			}
		}
	}

	return out, nil
}

func concatRows(left, right []any) []any {
	row := make([]any, 0, len(left)+len(right))
	row = append(row, left...)
	row = append(row, right...)
	return row
}

// keyOf builds a hashable key string for the key tuple. Returns false when
// any key cell is NULL.
func keyOf(row []any, keys []int) (string, bool) {
	parts := make([]byte, 0, 32)
	for _, idx := range keys {
		if idx >= len(row) || row[idx] == nil {
			return "", false
		}
		parts = append(parts, fmt.Sprintf("%v\x00", row[idx])...)
	}
	return string(parts), true
}

func reverseConditions(conditions []domain.JoinCondition) []domain.JoinCondition {
	reversed := make([]domain.JoinCondition, len(conditions))
	for i, cond := range conditions {
		reversed[i] = domain.JoinCondition{
			LeftColumn:  cond.RightColumn,
			RightColumn: cond.LeftColumn,
			Operator:    cond.Operator,
		}
	}
	return reversed
}

func reverseJoinType(jt domain.JoinType) domain.JoinType {
	switch jt {
	case domain.JoinTypeLeft:
		return domain.JoinTypeRight
	case domain.JoinTypeRight:
		return domain.JoinTypeLeft
	default:
		return jt
	}
}
