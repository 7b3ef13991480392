package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowTrimsAndBlanks(t *testing.T) {
	raw := map[string]any{"a": "  x ", "b": "   ", "c": nil, "d": 4}
	got := Row(raw)

	assert.Equal(t, map[string]any{"a": "x", "b": nil, "c": nil, "d": 4}, got)
	assert.Equal(t, "  x ", raw["a"], "input must not be modified")
}

func TestDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024-03-05", "2024-03-05"},
		{"2024-03-05T10:00:00Z", "2024-03-05"},
		{"2024/03/05", "2024-03-05"},
		{"05.03.2024", "2024-03-05"},
		{"20240305", "2024-03-05"},
	}
	for _, tt := range tests {
		got, err := Date(tt.in, "")
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := Date("not a date", "")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestDecimalSeparators(t *testing.T) {
	tests := map[string]string{
		"1,000.50":  "1000.50",
		"1.000,50":  "1000.50",
		"1,000,000": "1000000",
		"12.5":      "12.5",
	}
	for in, want := range tests {
		got, err := Decimal(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := Decimal("abc")
	assert.Error(t, err)

	_, err = Decimal("1e-999999999")
	assert.ErrorIs(t, err, ErrUnparseable)
}

func TestParseDecimalBoundsExponent(t *testing.T) {
	d, err := ParseDecimal(" 1.5e3 ")
	require.NoError(t, err)
	assert.Equal(t, "1500", d.String())

	_, err = ParseDecimal("1e-1000")
	assert.NoError(t, err)

	for _, in := range []string{"1e-999999999", "1e1001", "abc"} {
		_, err := ParseDecimal(in)
		assert.Error(t, err, in)
	}
}

func TestEmailPhoneBooleanText(t *testing.T) {
	email, err := Email(" Ops@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", email)

	_, err = Email("nope")
	assert.Error(t, err)

	phone, err := Phone("+1 (555) 010-2030")
	require.NoError(t, err)
	assert.Equal(t, "+15550102030", phone)

	yes, err := Boolean("Yes")
	require.NoError(t, err)
	assert.True(t, yes)

	_, err = Boolean("maybe")
	assert.Error(t, err)

	text, err := Text("  a   b\tc ", 3)
	require.NoError(t, err)
	assert.Equal(t, "a b", text)
}

func TestApply(t *testing.T) {
	got, err := Apply("decimal", "1.234,5")
	require.NoError(t, err)
	assert.Equal(t, "1234.5", got)

	got, err = Apply("date", nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = Apply("rot13", "x")
	assert.Error(t, err)
	assert.False(t, HasTransform("rot13"))
	assert.Contains(t, Transforms(), "phone")
}
