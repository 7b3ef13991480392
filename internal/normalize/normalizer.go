// Package normalize standardises raw vendor values before mapping.
package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnparseable is returned when a value cannot be converted.
var ErrUnparseable = errors.New("unparseable value")

// MaxDecimalExponent bounds the exponent of parsed decimals. Arithmetic on a
// decimal rescales to 10^|exponent|, so an unbounded "1e-999999999" cell
// would stall every comparison it reaches.
const MaxDecimalExponent = 1000

// ParseDecimal parses s as a decimal and rejects exponents beyond
// MaxDecimalExponent.
func ParseDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if exp := d.Exponent(); exp > MaxDecimalExponent || exp < -MaxDecimalExponent {
		return decimal.Decimal{}, fmt.Errorf("decimal %q: exponent %d out of range", s, exp)
	}
	return d, nil
}

// dateLayouts are tried in order when no source layout is given.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"01-02-2006",
	"01/02/2006",
	"20060102",
	"02.01.2006",
	"2006-01-02 15:04:05",
	"02/01/2006 15:04:05",
}

var (
	isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	emailPattern  = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneStrip    = regexp.MustCompile(`[^0-9+]`)
	spaceRun      = regexp.MustCompile(`\s+`)
)

// Row trims string values and turns blank strings into nil. Non-string
// values pass through unchanged. The input map is not modified.
func Row(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for key, value := range raw {
		s, ok := value.(string)
		if !ok {
			out[key] = value
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			out[key] = nil
			continue
		}
		out[key] = s
	}
	return out
}

// Date converts a date string to YYYY-MM-DD. sourceLayout, when set, is tried
// before the built-in layouts.
func Date(value string, sourceLayout string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrUnparseable
	}
	if isoDatePrefix.MatchString(value) {
		return value[:10], nil
	}

	layouts := dateLayouts
	if sourceLayout != "" {
		layouts = append([]string{sourceLayout}, dateLayouts...)
	}
	for _, layout := range layouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("date %q: %w", value, ErrUnparseable)
}

// Decimal rewrites a number with "." as the decimal separator and no
// thousands separators. Separators are detected from the value itself.
func Decimal(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", ErrUnparseable
	}

	decimalSep, thousandsSep := detectSeparators(value)
	if thousandsSep != "" {
		value = strings.ReplaceAll(value, thousandsSep, "")
	}
	if decimalSep != "." {
		value = strings.ReplaceAll(value, decimalSep, ".")
	}
	if _, err := ParseDecimal(value); err != nil {
		return "", fmt.Errorf("decimal %q: %w", value, ErrUnparseable)
	}
	return value, nil
}

func detectSeparators(value string) (decimalSep, thousandsSep string) {
	dots := strings.Count(value, ".")
	commas := strings.Count(value, ",")

	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(value, ".") > strings.LastIndex(value, ",") {
			return ".", ","
		}
		return ",", "."
	case commas > 1:
		return ".", ","
	case dots > 1:
		return ",", "."
	default:
		return ".", ""
	}
}

// Email lower-cases and checks an address.
func Email(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if !emailPattern.MatchString(value) {
		return "", fmt.Errorf("email %q: %w", value, ErrUnparseable)
	}
	return value, nil
}

// Phone strips everything except digits and a leading plus sign.
func Phone(value string) (string, error) {
	value = phoneStrip.ReplaceAllString(value, "")
	if value == "" {
		return "", ErrUnparseable
	}
	return value, nil
}

// Boolean accepts the usual yes/no spellings.
func Boolean(value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes", "1", "y", "on":
			return true, nil
		case "false", "no", "0", "n", "off":
			return false, nil
		}
	}
	return false, fmt.Errorf("boolean %v: %w", value, ErrUnparseable)
}

// Text trims and collapses internal whitespace. maxLength > 0 truncates to
// that many runes.
func Text(value string, maxLength int) (string, error) {
	value = spaceRun.ReplaceAllString(strings.TrimSpace(value), " ")
	if maxLength > 0 {
		if runes := []rune(value); len(runes) > maxLength {
			value = string(runes[:maxLength])
		}
	}
	if value == "" {
		return "", ErrUnparseable
	}
	return value, nil
}
