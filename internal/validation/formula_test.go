package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileFormulaRejectsOutsideGrammar(t *testing.T) {
	for _, expr := range []string{
		`os.Exit(1)`,
		`len(sku) > 2`,
		`items[0] == 1`,
		`x % 2 == 0`,
		`a << 2`,
		`func() bool { return true }()`,
		`'a' == b`,
		`quantity *`,
	} {
		_, err := CompileFormula(expr)
		assert.Error(t, err, expr)
	}
}

func TestFormulaEval(t *testing.T) {
	tests := []struct {
		expr string
		env  map[string]any
		want bool
	}{
		{"quantity * price == total", map[string]any{"quantity": "3", "price": "0.1", "total": "0.3"}, true},
		{"(a + b) / 2 >= 5", map[string]any{"a": "4", "b": "6"}, true},
		{"-a < 0 && !(b == 0)", map[string]any{"a": 2, "b": 1.5}, true},
		{`status == "open" || qty > 10`, map[string]any{"status": "closed", "qty": "11"}, true},
		{"flag == true", map[string]any{"flag": true}, true},
		{`currency != "USD"`, map[string]any{"currency": "USD"}, false},
	}
	for _, tt := range tests {
		f, err := CompileFormula(tt.expr)
		require.NoError(t, err, tt.expr)
		got, err := f.Eval(tt.env)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}
}

func TestFormulaEvalErrors(t *testing.T) {
	tests := []struct {
		expr string
		env  map[string]any
	}{
		{"a / b > 1", map[string]any{"a": "1", "b": "0"}},
		{"a + 1", map[string]any{"a": "1"}},
		{`a + "x" == 1`, map[string]any{"a": "1"}},
		{"missing > 1", map[string]any{}},
		{"a > 1", map[string]any{"a": nil}},
	}
	for _, tt := range tests {
		f, err := CompileFormula(tt.expr)
		require.NoError(t, err, tt.expr)
		_, err = f.Eval(tt.env)
		assert.ErrorIs(t, err, ErrEvaluation, tt.expr)
	}
}

func TestFormulaIdentifiers(t *testing.T) {
	f, err := CompileFormula("total == quantity * price && true")
	require.NoError(t, err)
	assert.Equal(t, []string{"price", "quantity", "total"}, f.Identifiers())
	assert.Equal(t, "total == quantity * price && true", f.String())
}
