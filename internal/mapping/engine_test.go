package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/vendorflow/internal/domain"
)

func exact(vendor, canonical string, priority int) domain.MappingRule {
	return domain.MappingRule{VendorField: vendor, CanonicalField: canonical, Kind: domain.MatchExact, Priority: priority}
}

func TestPriorityFirstWriterWins(t *testing.T) {
	engine, err := NewEngine([]domain.MappingRule{
		exact("Quantity", "quantity", 2),
		exact("Qty", "quantity", 1),
	})
	require.NoError(t, err)

	res := engine.Map(map[string]any{"Qty": "5", "Quantity": "7"})

	assert.Equal(t, "5", res.Canonical["quantity"])
	assert.Equal(t, 1.0, res.Confidence["quantity"])
	assert.Equal(t, []string{"Quantity"}, res.Unmapped)
}

func TestTiesKeepDeclarationOrder(t *testing.T) {
	engine, err := NewEngine([]domain.MappingRule{
		exact("B", "target", 5),
		exact("A", "target", 5),
	})
	require.NoError(t, err)

	res := engine.Map(map[string]any{"A": "a", "B": "b"})
	assert.Equal(t, "b", res.Canonical["target"])
}

func TestFallbackOnlyWhenNothingElseMatched(t *testing.T) {
	rules := []domain.MappingRule{
		{VendorField: "Ref", CanonicalField: "sku", Kind: domain.MatchExact, Priority: 0, Fallback: true},
		exact("SKU", "sku", 10),
	}
	engine, err := NewEngine(rules)
	require.NoError(t, err)

	res := engine.Map(map[string]any{"SKU": "A100", "Ref": "R-1"})
	assert.Equal(t, "A100", res.Canonical["sku"])

	res = engine.Map(map[string]any{"Ref": "R-1"})
	assert.Equal(t, "R-1", res.Canonical["sku"])
}

func TestPatternAndSubstringRules(t *testing.T) {
	engine, err := NewEngine([]domain.MappingRule{
		{VendorField: "code", CanonicalField: "sku", Kind: domain.MatchPattern, Pattern: `^[A-Z]\d+$`, Priority: 1, Confidence: 0.8},
		{VendorField: "code", CanonicalField: "legacy_code", Kind: domain.MatchSubstring, Pattern: "LEG", Priority: 2},
	})
	require.NoError(t, err)

	res := engine.Map(map[string]any{"code": "A100"})
	assert.Equal(t, "A100", res.Canonical["sku"])
	assert.Equal(t, 0.8, res.Confidence["sku"])
	assert.NotContains(t, res.Canonical, "legacy_code")

	res = engine.Map(map[string]any{"code": "LEG-7"})
	assert.NotContains(t, res.Canonical, "sku")
	assert.Equal(t, "LEG-7", res.Canonical["legacy_code"])
}

func TestFunctionRulesSkipped(t *testing.T) {
	engine, err := NewEngine([]domain.MappingRule{
		{VendorField: "x", CanonicalField: "y", Kind: domain.MatchFunction},
	})
	require.NoError(t, err)

	res := engine.Map(map[string]any{"x": "1"})
	assert.Empty(t, res.Canonical)
	assert.Equal(t, []string{"x->y"}, res.Skipped)
	assert.Equal(t, []string{"x"}, res.Unmapped)
}

func TestNullValuesDoNotPopulate(t *testing.T) {
	engine, err := NewEngine([]domain.MappingRule{
		exact("Qty", "quantity", 1),
		exact("Quantity", "quantity", 2),
	})
	require.NoError(t, err)

	res := engine.Map(map[string]any{"Qty": nil, "Quantity": "3"})
	assert.Equal(t, "3", res.Canonical["quantity"])
	assert.Empty(t, res.Unmapped)
}

func TestTransformApplied(t *testing.T) {
	engine, err := NewEngine([]domain.MappingRule{
		{VendorField: "Price", CanonicalField: "price", Kind: domain.MatchExact, Transform: "decimal"},
		{VendorField: "When", CanonicalField: "created_at", Kind: domain.MatchExact, Transform: "date"},
	})
	require.NoError(t, err)

	res := engine.Map(map[string]any{"Price": "1.234,50", "When": "garbage"})
	assert.Equal(t, "1234.50", res.Canonical["price"])
	assert.Equal(t, "garbage", res.Canonical["created_at"])
	assert.Len(t, res.TransformErrors, 1)
}

func TestNewEngineRejectsBadRules(t *testing.T) {
	_, err := NewEngine([]domain.MappingRule{{VendorField: "a", CanonicalField: "b", Kind: domain.MatchPattern, Pattern: "("}})
	assert.Error(t, err)

	_, err = NewEngine([]domain.MappingRule{{VendorField: "a", CanonicalField: "b", Kind: "fuzzy"}})
	assert.Error(t, err)

	_, err = NewEngine([]domain.MappingRule{{VendorField: "a", CanonicalField: "b", Kind: domain.MatchExact, Transform: "upper"}})
	assert.Error(t, err)
}

func TestMapIsDeterministic(t *testing.T) {
	engine, err := NewEngine([]domain.MappingRule{exact("a", "x", 1), exact("b", "y", 1)})
	require.NoError(t, err)

	row := map[string]any{"a": "1", "b": "2", "c": "3", "d": "4"}
	first := engine.Map(row)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, engine.Map(row))
	}
}
