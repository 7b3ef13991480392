package validation

import (
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/rpattn/vendorflow/internal/normalize"
)

// ErrEvaluation wraps every runtime failure of a formula.
var ErrEvaluation = errors.New("formula evaluation failed")

// Formula is a compiled boolean expression over row fields.
//
// Grammar: numeric and string literals, true/false, field identifiers,
// unary - + !, binary + - * /, comparisons, && ||, parentheses. Nothing
// else parses; there are no calls, selectors or indexing.
type Formula struct {
	source string
	expr   ast.Expr
	idents []string
}

// CompileFormula parses and whitelists an expression.
func CompileFormula(source string) (*Formula, error) {
	expr, err := parser.ParseExpr(source)
	if err != nil {
		return nil, fmt.Errorf("formula %q: %w", source, err)
	}

	seen := map[string]bool{}
	var walkErr error
	ast.Inspect(expr, func(n ast.Node) bool {
		if walkErr != nil || n == nil {
			return false
		}
		switch node := n.(type) {
		case *ast.BinaryExpr:
			if !allowedBinary[node.Op] {
				walkErr = fmt.Errorf("formula %q: operator %s is not allowed", source, node.Op)
			}
		case *ast.UnaryExpr:
			if node.Op != token.SUB && node.Op != token.ADD && node.Op != token.NOT {
				walkErr = fmt.Errorf("formula %q: operator %s is not allowed", source, node.Op)
			}
		case *ast.ParenExpr:
		case *ast.BasicLit:
			if node.Kind != token.INT && node.Kind != token.FLOAT && node.Kind != token.STRING {
				walkErr = fmt.Errorf("formula %q: literal %s is not allowed", source, node.Value)
			}
		case *ast.Ident:
			if node.Name != "true" && node.Name != "false" {
				seen[node.Name] = true
			}
		default:
			walkErr = fmt.Errorf("formula %q: %T is not allowed", source, n)
		}
		return walkErr == nil
	})
	if walkErr != nil {
		return nil, walkErr
	}

	idents := make([]string, 0, len(seen))
	for name := range seen {
		idents = append(idents, name)
	}
	sort.Strings(idents)

	return &Formula{source: source, expr: expr, idents: idents}, nil
}

var allowedBinary = map[token.Token]bool{
	token.ADD: true, token.SUB: true, token.MUL: true, token.QUO: true,
	token.EQL: true, token.NEQ: true, token.LSS: true, token.LEQ: true, token.GTR: true, token.GEQ: true,
	token.LAND: true, token.LOR: true,
}

func (f *Formula) String() string {
	return f.source
}

// Identifiers returns the field names referenced by the formula, sorted.
func (f *Formula) Identifiers() []string {
	return append([]string(nil), f.idents...)
}

// Eval evaluates the formula against env. The result must be boolean.
func (f *Formula) Eval(env map[string]any) (bool, error) {
	v, err := eval(f.expr, env)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: result is %s, not a boolean", ErrEvaluation, describe(v))
	}
	return b, nil
}

func evalErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrEvaluation, fmt.Sprintf(format, args...))
}

func eval(expr ast.Expr, env map[string]any) (any, error) {
	switch node := expr.(type) {
	case *ast.ParenExpr:
		return eval(node.X, env)
	case *ast.BasicLit:
		return literal(node)
	case *ast.Ident:
		return identifier(node.Name, env)
	case *ast.UnaryExpr:
		return unary(node, env)
	case *ast.BinaryExpr:
		return binary(node, env)
	default:
		return nil, evalErr("unsupported expression %T", expr)
	}
}

func literal(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT, token.FLOAT:
		d, err := normalize.ParseDecimal(lit.Value)
		if err != nil {
			return nil, evalErr("bad number %s", lit.Value)
		}
		return d, nil
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, evalErr("bad string %s", lit.Value)
		}
		return s, nil
	default:
		return nil, evalErr("unsupported literal %s", lit.Value)
	}
}

func identifier(name string, env map[string]any) (any, error) {
	switch name {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	raw, ok := env[name]
	if !ok || raw == nil {
		return nil, evalErr("field %s has no value", name)
	}
	if b, ok := raw.(bool); ok {
		return b, nil
	}
	if d, err := toDecimal(raw); err == nil {
		return d, nil
	}
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return nil, evalErr("field %s has unsupported value %v", name, raw)
}

func unary(node *ast.UnaryExpr, env map[string]any) (any, error) {
	v, err := eval(node.X, env)
	if err != nil {
		return nil, err
	}
	switch node.Op {
	case token.NOT:
		b, ok := v.(bool)
		if !ok {
			return nil, evalErr("! needs a boolean, got %s", describe(v))
		}
		return !b, nil
	case token.SUB, token.ADD:
		d, ok := v.(decimal.Decimal)
		if !ok {
			return nil, evalErr("%s needs a number, got %s", node.Op, describe(v))
		}
		if node.Op == token.SUB {
			return d.Neg(), nil
		}
		return d, nil
	}
	return nil, evalErr("operator %s is not allowed", node.Op)
}

func binary(node *ast.BinaryExpr, env map[string]any) (any, error) {
	left, err := eval(node.X, env)
	if err != nil {
		return nil, err
	}

	if node.Op == token.LAND || node.Op == token.LOR {
		lb, ok := left.(bool)
		if !ok {
			return nil, evalErr("%s needs booleans, got %s", node.Op, describe(left))
		}
		if node.Op == token.LAND && !lb {
			return false, nil
		}
		if node.Op == token.LOR && lb {
			return true, nil
		}
		right, err := eval(node.Y, env)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(bool)
		if !ok {
			return nil, evalErr("%s needs booleans, got %s", node.Op, describe(right))
		}
		return rb, nil
	}

	right, err := eval(node.Y, env)
	if err != nil {
		return nil, err
	}

	switch l := left.(type) {
	case decimal.Decimal:
		r, ok := right.(decimal.Decimal)
		if !ok {
			return nil, evalErr("cannot apply %s to number and %s", node.Op, describe(right))
		}
		return numeric(node.Op, l, r)
	case string:
		r, ok := right.(string)
		if !ok {
			return nil, evalErr("cannot apply %s to string and %s", node.Op, describe(right))
		}
		return compareStrings(node.Op, l, r)
	case bool:
		r, ok := right.(bool)
		if !ok {
			return nil, evalErr("cannot apply %s to boolean and %s", node.Op, describe(right))
		}
		switch node.Op {
		case token.EQL:
			return l == r, nil
		case token.NEQ:
			return l != r, nil
		}
	}
	return nil, evalErr("cannot apply %s to %s", node.Op, describe(left))
}

func numeric(op token.Token, l, r decimal.Decimal) (any, error) {
	switch op {
	case token.ADD:
		return l.Add(r), nil
	case token.SUB:
		return l.Sub(r), nil
	case token.MUL:
		return l.Mul(r), nil
	case token.QUO:
		if r.IsZero() {
			return nil, evalErr("division by zero")
		}
		return l.Div(r), nil
	case token.EQL:
		return l.Equal(r), nil
	case token.NEQ:
		return !l.Equal(r), nil
	case token.LSS:
		return l.LessThan(r), nil
	case token.LEQ:
		return l.LessThanOrEqual(r), nil
	case token.GTR:
		return l.GreaterThan(r), nil
	case token.GEQ:
		return l.GreaterThanOrEqual(r), nil
	}
	return nil, evalErr("operator %s is not allowed on numbers", op)
}

func compareStrings(op token.Token, l, r string) (any, error) {
	switch op {
	case token.EQL:
		return l == r, nil
	case token.NEQ:
		return l != r, nil
	case token.LSS:
		return l < r, nil
	case token.LEQ:
		return l <= r, nil
	case token.GTR:
		return l > r, nil
	case token.GEQ:
		return l >= r, nil
	}
	return nil, evalErr("operator %s is not allowed on strings", op)
}

func describe(v any) string {
	switch v.(type) {
	case decimal.Decimal:
		return "number"
	case string:
		return "string"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
