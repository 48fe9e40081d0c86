package rbac

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oarkflow/date"
)

// Conditions are tiny boolean expressions attached to rules, evaluated
// against the user's attribute record. The operand language is intentionally
// minimal: literals and {field} references only, no calls, no side effects.
// Example: {age} > 18 && {department} == "engineering"

// Expr is a node of a parsed condition expression.
type Expr interface {
	Eval(attrs map[string]any) (any, error)
	String() string
}

// Literal is a constant operand: a string, a float64 or a bool.
type Literal struct {
	Value any
}

func (l *Literal) Eval(map[string]any) (any, error) { return l.Value, nil }

func (l *Literal) String() string {
	if s, ok := l.Value.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(l.Value)
}

// FieldRef resolves a {name} placeholder from the attribute record.
type FieldRef struct {
	Name string
}

func (f *FieldRef) Eval(attrs map[string]any) (any, error) {
	v, ok := attrs[f.Name]
	if !ok {
		return nil, fmt.Errorf("unknown field %q", f.Name)
	}
	return v, nil
}

func (f *FieldRef) String() string { return "{" + f.Name + "}" }

// BinaryExpr applies a comparison or boolean operator to two operands.
type BinaryExpr struct {
	Op    string
	Left  Expr
	Right Expr
}

func (b *BinaryExpr) Eval(attrs map[string]any) (any, error) {
	switch b.Op {
	case "&&":
		lv, err := evalBool(b.Left, attrs)
		if err != nil || !lv {
			return false, err
		}
		return evalBool(b.Right, attrs)
	case "||":
		lv, err := evalBool(b.Left, attrs)
		if err != nil {
			return false, err
		}
		if lv {
			return true, nil
		}
		return evalBool(b.Right, attrs)
	}

	lv, err := b.Left.Eval(attrs)
	if err != nil {
		return nil, err
	}
	rv, err := b.Right.Eval(attrs)
	if err != nil {
		return nil, err
	}
	switch b.Op {
	case "==":
		return equalValues(lv, rv), nil
	case "!=":
		return !equalValues(lv, rv), nil
	case "<", ">", "<=", ">=":
		cmp, err := compareValues(lv, rv)
		if err != nil {
			return nil, err
		}
		switch b.Op {
		case "<":
			return cmp < 0, nil
		case ">":
			return cmp > 0, nil
		case "<=":
			return cmp <= 0, nil
		default:
			return cmp >= 0, nil
		}
	}
	return nil, fmt.Errorf("unknown operator %q", b.Op)
}

func (b *BinaryExpr) String() string {
	return fmt.Sprintf("(%s %s %s)", b.Left.String(), b.Op, b.Right.String())
}

// NotExpr negates a boolean operand.
type NotExpr struct {
	Expr Expr
}

func (n *NotExpr) Eval(attrs map[string]any) (any, error) {
	v, err := evalBool(n.Expr, attrs)
	if err != nil {
		return nil, err
	}
	return !v, nil
}

func (n *NotExpr) String() string { return "!" + n.Expr.String() }

func evalBool(e Expr, attrs map[string]any) (bool, error) {
	v, err := e.Eval(attrs)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
	return b, nil
}

// equalValues compares for equality with numeric coercion. Mixed
// incomparable types are simply unequal, never an error.
func equalValues(a, b any) bool {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case time.Time:
		if bt, ok := toTime(b); ok {
			return av.Equal(bt)
		}
	}
	return false
}

// compareValues orders two values: numerically when both are numbers, as
// timestamps when both parse as dates, lexicographically for plain strings.
func compareValues(a, b any) (int, error) {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			default:
				return 0, nil
			}
		}
		return 0, fmt.Errorf("cannot compare number with %T", b)
	}
	if at, aok := toTime(a); aok {
		if bt, bok := toTime(b); bok {
			switch {
			case at.Before(bt):
				return -1, nil
			case at.After(bt):
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), nil
	}
	return 0, fmt.Errorf("cannot order %T against %T", a, b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// toTime accepts time.Time directly and strings that parse as dates in any
// common layout.
func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		// reject obvious non-dates cheaply before the flexible parse
		if len(t) < 6 || !strings.ContainsAny(t, "-/:") {
			return time.Time{}, false
		}
		if parsed, err := date.Parse(t); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// ============================================================================
// PARSER
// ============================================================================

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokField
	tokString
	tokNumber
	tokBool
	tokOp
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	kind tokenKind
	text string
}

type lexer struct {
	input string
	pos   int
}

func (l *lexer) next() (token, error) {
	for l.pos < len(l.input) && (l.input[l.pos] == ' ' || l.input[l.pos] == '\t') {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return token{kind: tokEOF}, nil
	}
	c := l.input[l.pos]
	switch c {
	case '(':
		l.pos++
		return token{kind: tokLParen}, nil
	case ')':
		l.pos++
		return token{kind: tokRParen}, nil
	case '{':
		end := strings.IndexByte(l.input[l.pos:], '}')
		if end < 0 {
			return token{}, fmt.Errorf("unterminated field reference at %d", l.pos)
		}
		name := strings.TrimSpace(l.input[l.pos+1 : l.pos+end])
		if name == "" {
			return token{}, fmt.Errorf("empty field reference at %d", l.pos)
		}
		l.pos += end + 1
		return token{kind: tokField, text: name}, nil
	case '"', '\'':
		quote := c
		end := strings.IndexByte(l.input[l.pos+1:], quote)
		if end < 0 {
			return token{}, fmt.Errorf("unterminated string at %d", l.pos)
		}
		s := l.input[l.pos+1 : l.pos+1+end]
		l.pos += end + 2
		return token{kind: tokString, text: s}, nil
	case '&':
		if strings.HasPrefix(l.input[l.pos:], "&&") {
			l.pos += 2
			return token{kind: tokAnd}, nil
		}
		return token{}, fmt.Errorf("unexpected %q at %d", c, l.pos)
	case '|':
		if strings.HasPrefix(l.input[l.pos:], "||") {
			l.pos += 2
			return token{kind: tokOr}, nil
		}
		return token{}, fmt.Errorf("unexpected %q at %d", c, l.pos)
	case '=', '!', '<', '>':
		if strings.HasPrefix(l.input[l.pos:], "==") ||
			strings.HasPrefix(l.input[l.pos:], "!=") ||
			strings.HasPrefix(l.input[l.pos:], "<=") ||
			strings.HasPrefix(l.input[l.pos:], ">=") {
			op := l.input[l.pos : l.pos+2]
			l.pos += 2
			return token{kind: tokOp, text: op}, nil
		}
		if c == '<' || c == '>' {
			l.pos++
			return token{kind: tokOp, text: string(c)}, nil
		}
		if c == '!' {
			l.pos++
			return token{kind: tokNot}, nil
		}
		return token{}, fmt.Errorf("unexpected %q at %d", c, l.pos)
	}
	if c == '-' || (c >= '0' && c <= '9') {
		start := l.pos
		l.pos++
		for l.pos < len(l.input) && (l.input[l.pos] == '.' || (l.input[l.pos] >= '0' && l.input[l.pos] <= '9')) {
			l.pos++
		}
		return token{kind: tokNumber, text: l.input[start:l.pos]}, nil
	}
	if isIdentByte(c) {
		start := l.pos
		for l.pos < len(l.input) && isIdentByte(l.input[l.pos]) {
			l.pos++
		}
		word := l.input[start:l.pos]
		switch word {
		case "true", "false":
			return token{kind: tokBool, text: word}, nil
		}
		return token{}, fmt.Errorf("unexpected identifier %q at %d", word, start)
	}
	return token{}, fmt.Errorf("unexpected %q at %d", c, l.pos)
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

type parser struct {
	lex  lexer
	tok  token
	peek *token
}

func (p *parser) advance() error {
	if p.peek != nil {
		p.tok = *p.peek
		p.peek = nil
		return nil
	}
	t, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

// ParseCondition parses a condition expression into its AST. An empty
// condition parses to the constant true.
func ParseCondition(s string) (Expr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return &Literal{Value: true}, nil
	}
	p := &parser{lex: lexer{input: s}}
	if err := p.advance(); err != nil {
		return nil, err
	}
	expr, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("trailing input in condition %q", s)
	}
	return expr, nil
}

func (p *parser) parseOr() (Expr, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "||", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (Expr, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		left = &BinaryExpr{Op: "&&", Left: left, Right: right}
	}
	return left, nil
}

func (p *parser) parseComparison() (Expr, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokOp {
		op := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &BinaryExpr{Op: op, Left: left, Right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (Expr, error) {
	switch p.tok.kind {
	case tokNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &NotExpr{Expr: inner}, nil
	case tokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.tok.kind != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return inner, nil
	case tokField:
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &FieldRef{Name: name}, nil
	case tokString:
		s := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Value: s}, nil
	case tokNumber:
		n, err := strconv.ParseFloat(p.tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q: %w", p.tok.text, err)
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Value: n}, nil
	case tokBool:
		b := p.tok.text == "true"
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Literal{Value: b}, nil
	}
	return nil, fmt.Errorf("unexpected token in condition")
}

// ============================================================================
// EVALUATOR
// ============================================================================

// ConditionEvaluator parses and evaluates rule conditions, caching parsed
// ASTs by source string. Evaluation is pure: it can only read the supplied
// attribute record.
type ConditionEvaluator struct {
	mu    sync.RWMutex
	cache map[string]Expr
}

func NewConditionEvaluator() *ConditionEvaluator {
	return &ConditionEvaluator{cache: make(map[string]Expr)}
}

// Evaluate runs a condition against the attribute record. Parse errors,
// unknown fields and type mismatches are returned as errors; callers decide
// whether to surface or swallow them.
func (e *ConditionEvaluator) Evaluate(condition string, attrs map[string]any) (bool, error) {
	expr, err := e.compile(condition)
	if err != nil {
		return false, err
	}
	return evalBool(expr, attrs)
}

func (e *ConditionEvaluator) compile(condition string) (Expr, error) {
	e.mu.RLock()
	expr, ok := e.cache[condition]
	e.mu.RUnlock()
	if ok {
		return expr, nil
	}
	expr, err := ParseCondition(condition)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.cache[condition] = expr
	e.mu.Unlock()
	return expr, nil
}
