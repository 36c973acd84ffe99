package query

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dataspect/dataspect/internal/domain"
)

// Expr is a node in the restricted expression grammar.
type Expr interface {
	// Text renders the expression back to query-language text.
	Text() string
}

// Column references a dataset column, optionally alias-qualified.
type Column struct {
	Name string
}

func (c *Column) Text() string { return c.Name }

// Literal is a number, string, boolean or NULL constant.
type Literal struct {
	Value any
}

func (l *Literal) Text() string {
	switch v := l.Value.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Unary is negation or NOT.
type Unary struct {
	Op      string // "-", "NOT"
	Operand Expr
}

func (u *Unary) Text() string { return u.Op + " " + u.Operand.Text() }

// Binary covers arithmetic, comparison and boolean connectives.
type Binary struct {
	Op          string // + - * / % = != < <= > >= AND OR
	Left, Right Expr
}

func (b *Binary) Text() string { return b.Left.Text() + " " + b.Op + " " + b.Right.Text() }

// IsNull is "expr IS [NOT] NULL".
type IsNull struct {
	Operand Expr
	Negate  bool
}

func (i *IsNull) Text() string {
	if i.Negate {
		return i.Operand.Text() + " IS NOT NULL"
	}
	return i.Operand.Text() + " IS NULL"
}

// InList is "expr [NOT] IN (v1, v2, ...)".
type InList struct {
	Operand Expr
	Values  []Expr
	Negate  bool
}

func (in *InList) Text() string {
	parts := make([]string, len(in.Values))
	for i, v := range in.Values {
		parts[i] = v.Text()
	}
	op := " IN ("
	if in.Negate {
		op = " NOT IN ("
	}
	return in.Operand.Text() + op + strings.Join(parts, ", ") + ")"
}

// FuncCall is an aggregate call. Star marks COUNT(*).
type FuncCall struct {
	Name string // SUM AVG COUNT MIN MAX MEDIAN
	Arg  Expr
	Star bool
}

func (f *FuncCall) Text() string {
	if f.Star {
		return f.Name + "(*)"
	}
	return f.Name + "(" + f.Arg.Text() + ")"
}

// SelectItem is one projected expression with an optional alias.
type SelectItem struct {
	Expr  Expr
	Alias string
	Star  bool
}

// OrderItem is one ORDER BY key.
type OrderItem struct {
	Expr Expr
	Desc bool
}

// SelectStmt is the parsed restricted query.
type SelectStmt struct {
	Items   []SelectItem
	From    string
	Where   Expr
	GroupBy []Expr
	OrderBy []OrderItem
	Limit   int // 0 = no limit
}

var aggregateFuncs = map[string]bool{
	"SUM": true, "AVG": true, "COUNT": true, "MIN": true, "MAX": true, "MEDIAN": true,
}

var reservedWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "GROUP": true, "ORDER": true,
	"BY": true, "LIMIT": true, "AS": true, "AND": true, "OR": true, "NOT": true,
	"IN": true, "IS": true, "NULL": true, "TRUE": true, "FALSE": true,
	"ASC": true, "DESC": true,
}

// Parse parses restricted query text. Anything that is not a single SELECT
// statement is rejected with UnsupportedOperationError before any execution
// can happen; this is the security boundary both direct and generated query
// text pass through.
func Parse(src string) (*SelectStmt, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("tokenize query: %w", err)
	}
	p := &parser{tokens: tokens}

	first := p.peek()
	if first.kind == tokenEOF {
		return nil, &domain.UnsupportedOperationError{Operation: "(empty query)"}
	}
	if !first.isKeyword("SELECT") {
		return nil, &domain.UnsupportedOperationError{Operation: strings.ToUpper(first.text)}
	}
	p.next()

	stmt := &SelectStmt{}

	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Items = append(stmt.Items, item)
		if !p.accept(",") {
			break
		}
	}

	if p.peek().isKeyword("FROM") {
		p.next()
		tok := p.peek()
		if tok.kind != tokenIdent {
			return nil, fmt.Errorf("expected table name after FROM, got %q", tok.text)
		}
		stmt.From = tok.text
		p.next()
	}

	if p.peek().isKeyword("WHERE") {
		p.next()
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = expr
	}

	if p.peek().isKeyword("GROUP") {
		p.next()
		if !p.peek().isKeyword("BY") {
			return nil, fmt.Errorf("expected BY after GROUP")
		}
		p.next()
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			stmt.GroupBy = append(stmt.GroupBy, expr)
			if !p.accept(",") {
				break
			}
		}
	}

	if p.peek().isKeyword("ORDER") {
		p.next()
		if !p.peek().isKeyword("BY") {
			return nil, fmt.Errorf("expected BY after ORDER")
		}
		p.next()
		for {
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			item := OrderItem{Expr: expr}
			if p.peek().isKeyword("DESC") {
				item.Desc = true
				p.next()
			} else if p.peek().isKeyword("ASC") {
				p.next()
			}
			stmt.OrderBy = append(stmt.OrderBy, item)
			if !p.accept(",") {
				break
			}
		}
	}

	if p.peek().isKeyword("LIMIT") {
		p.next()
		tok := p.peek()
		if tok.kind != tokenNumber {
			return nil, fmt.Errorf("expected number after LIMIT, got %q", tok.text)
		}
		limit, err := strconv.Atoi(tok.text)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid LIMIT value %q", tok.text)
		}
		stmt.Limit = limit
		p.next()
	}

	if trailing := p.peek(); trailing.kind != tokenEOF {
		if trailing.isKeyword("SELECT") || reservedWords[strings.ToUpper(trailing.text)] {
			return nil, &domain.UnsupportedOperationError{Operation: strings.ToUpper(trailing.text)}
		}
		return nil, fmt.Errorf("unexpected trailing token %q", trailing.text)
	}

	return stmt, nil
}

// ParseExpression parses standalone expression text (a filter predicate or a
// business rule condition).
func ParseExpression(src string) (Expr, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, fmt.Errorf("tokenize expression: %w", err)
	}
	p := &parser{tokens: tokens}
	expr, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokenEOF {
		return nil, fmt.Errorf("unexpected trailing token %q in expression", tok.text)
	}
	return expr, nil
}

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) accept(punct string) bool {
	if p.peek().kind == tokenPunct && p.peek().text == punct {
		p.next()
		return true
	}
	return false
}

func (p *parser) parseSelectItem() (SelectItem, error) {
	if p.peek().kind == tokenPunct && p.peek().text == "*" {
		p.next()
		return SelectItem{Star: true}, nil
	}
	expr, err := p.parseExpr()
	if err != nil {
		return SelectItem{}, err
	}
	item := SelectItem{Expr: expr}
	if p.peek().isKeyword("AS") {
		p.next()
		tok := p.peek()
		if tok.kind != tokenIdent {
			return SelectItem{}, fmt.Errorf("expected alias after AS, got %q", tok.text)
		}
		item.Alias = tok.text
		p.next()
	} else if tok := p.peek(); tok.kind == tokenIdent && !reservedWords[strings.ToUpper(tok.text)] {
		item.Alias = tok.text
		p.next()
	}
	return item, nil
}

func (p *parser) parseExpr() (Expr, error) { return p.parseOr() }

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.peek().isKeyword("OR") {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "OR", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.peek().isKeyword("AND") {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: "AND", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.peek().isKeyword("NOT") {
		p.next()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", Operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseAdditive()
	if err != nil {
		return nil, err
	}

	tok := p.peek()
	switch {
	case tok.kind == tokenOperator && isComparisonOp(tok.text):
		p.next()
		right, err := p.parseAdditive()
		if err != nil {
			return nil, err
		}
		op := tok.text
		if op == "<>" {
			op = "!="
		}
		return &Binary{Op: op, Left: left, Right: right}, nil

	case tok.isKeyword("IS"):
		p.next()
		negate := false
		if p.peek().isKeyword("NOT") {
			negate = true
			p.next()
		}
		if !p.peek().isKeyword("NULL") {
			return nil, fmt.Errorf("expected NULL after IS, got %q", p.peek().text)
		}
		p.next()
		return &IsNull{Operand: left, Negate: negate}, nil

	case tok.isKeyword("IN") || tok.isKeyword("NOT"):
		negate := false
		if tok.isKeyword("NOT") {
			if !p.tokens[p.pos+1].isKeyword("IN") {
				return left, nil
			}
			negate = true
			p.next()
		}
		p.next() // IN
		if !p.accept("(") {
			return nil, fmt.Errorf("expected ( after IN")
		}
		var values []Expr
		for {
			v, err := p.parseAdditive()
			if err != nil {
				return nil, err
			}
			values = append(values, v)
			if !p.accept(",") {
				break
			}
		}
		if !p.accept(")") {
			return nil, fmt.Errorf("expected ) to close IN list")
		}
		return &InList{Operand: left, Values: values, Negate: negate}, nil
	}

	return left, nil
}

func (p *parser) parseAdditive() (Expr, error) {
	left, err := p.parseMultiplicative()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.kind == tokenOperator && (tok.text == "+" || tok.text == "-") {
			p.next()
			right, err := p.parseMultiplicative()
			if err != nil {
				return nil, err
			}
			left = &Binary{Op: tok.text, Left: left, Right: right}
			continue
		}
		return left, nil
	}
}

func (p *parser) parseMultiplicative() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		isMul := (tok.kind == tokenOperator && (tok.text == "/" || tok.text == "%")) ||
			(tok.kind == tokenPunct && tok.text == "*")
		if !isMul {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = &Binary{Op: tok.text, Left: left, Right: right}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if tok := p.peek(); tok.kind == tokenOperator && tok.text == "-" {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", Operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	tok := p.peek()
	switch tok.kind {
	case tokenNumber:
		p.next()
		if strings.Contains(tok.text, ".") {
			f, err := strconv.ParseFloat(tok.text, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q", tok.text)
			}
			return &Literal{Value: f}, nil
		}
		i, err := strconv.ParseInt(tok.text, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok.text)
		}
		return &Literal{Value: i}, nil

	case tokenString:
		p.next()
		return &Literal{Value: stringLiteralValue(tok.text)}, nil

	case tokenIdent:
		upper := strings.ToUpper(tok.text)
		switch upper {
		case "NULL":
			p.next()
			return &Literal{Value: nil}, nil
		case "TRUE":
			p.next()
			return &Literal{Value: true}, nil
		case "FALSE":
			p.next()
			return &Literal{Value: false}, nil
		}

		if aggregateFuncs[upper] && p.tokens[p.pos+1].kind == tokenPunct && p.tokens[p.pos+1].text == "(" {
			p.next()
			p.next()
			if upper == "COUNT" && p.peek().kind == tokenPunct && p.peek().text == "*" {
				p.next()
				if !p.accept(")") {
					return nil, fmt.Errorf("expected ) after COUNT(*")
				}
				return &FuncCall{Name: "COUNT", Star: true}, nil
			}
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if !p.accept(")") {
				return nil, fmt.Errorf("expected ) to close %s()", upper)
			}
			return &FuncCall{Name: upper, Arg: arg}, nil
		}

		if reservedWords[upper] {
			return nil, fmt.Errorf("unexpected keyword %q", tok.text)
		}
		p.next()
		return &Column{Name: tok.text}, nil

	case tokenPunct:
		if tok.text == "(" {
			p.next()
			expr, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if !p.accept(")") {
				return nil, fmt.Errorf("expected ) to close group")
			}
			return expr, nil
		}
	}
	return nil, fmt.Errorf("unexpected token %q", tok.text)
}

func isComparisonOp(op string) bool {
	switch op {
	case "=", "!=", "<>", "<", "<=", ">", ">=":
		return true
	}
	return false
}

// ContainsAggregate reports whether the expression tree contains an aggregate
// call anywhere.
func ContainsAggregate(expr Expr) bool {
	switch e := expr.(type) {
	case *FuncCall:
		return true
	case *Unary:
		return ContainsAggregate(e.Operand)
	case *Binary:
		return ContainsAggregate(e.Left) || ContainsAggregate(e.Right)
	case *IsNull:
		return ContainsAggregate(e.Operand)
	case *InList:
		if ContainsAggregate(e.Operand) {
			return true
		}
		for _, v := range e.Values {
			if ContainsAggregate(v) {
				return true
			}
		}
	}
	return false
}

// CollectColumns appends every column reference in the expression tree.
func CollectColumns(expr Expr, out *[]string) {
	switch e := expr.(type) {
	case *Column:
		*out = append(*out, e.Name)
	case *Unary:
		CollectColumns(e.Operand, out)
	case *Binary:
		CollectColumns(e.Left, out)
		CollectColumns(e.Right, out)
	case *IsNull:
		CollectColumns(e.Operand, out)
	case *InList:
		CollectColumns(e.Operand, out)
		for _, v := range e.Values {
			CollectColumns(v, out)
		}
	case *FuncCall:
		if e.Arg != nil {
			CollectColumns(e.Arg, out)
		}
	}
}
