package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rpattn/vendorflow/internal/normalize"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// dateLayouts accepted by the date type and by business-hours checks.
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// lookup returns the value of field and whether it is set (present and not null).
func lookup(data map[string]any, field string) (any, bool) {
	v, ok := data[field]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

func text(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case decimal.Decimal:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return normalize.ParseDecimal(t)
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Decimal{}, fmt.Errorf("%v is not a finite number", t)
		}
		return decimal.NewFromFloat(t), nil
	case json.Number:
		return normalize.ParseDecimal(t.String())
	default:
		return decimal.Decimal{}, fmt.Errorf("%T is not numeric", v)
	}
}

func isInteger(v any) bool {
	switch t := v.(type) {
	case int, int64:
		return true
	case float64:
		return t == math.Trunc(t) && !math.IsInf(t, 0)
	case string:
		_, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return err == nil
	default:
		return false
	}
}

func parseTimestamp(v any) (time.Time, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	s := strings.TrimSpace(text(v))
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
