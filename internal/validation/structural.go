package validation

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rpattn/vendorflow/internal/domain"
)

func violation(kind Kind, message, fallback string, fields ...string) []domain.Violation {
	if message == "" {
		message = fallback
	}
	return []domain.Violation{domain.NewViolation(string(kind), message, fields...)}
}

func checkRequired(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(RequiredRule)
	v, ok := lookup(data, r.Field)
	if ok && strings.TrimSpace(text(v)) != "" {
		return nil
	}
	return violation(KindRequired, r.Message, fmt.Sprintf("%s is required", r.Field), r.Field)
}

func checkType(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(TypeRule)
	v, ok := lookup(data, r.Field)
	if !ok {
		return nil
	}

	var valid bool
	switch r.Expected {
	case TypeString:
		valid = true
	case TypeInteger:
		valid = isInteger(v)
	case TypeDecimal:
		_, err := toDecimal(v)
		valid = err == nil
	case TypeDate:
		_, valid = parseTimestamp(v)
	case TypeEmail:
		valid = emailPattern.MatchString(strings.TrimSpace(text(v)))
	}
	if valid {
		return nil
	}
	return violation(KindType, r.Message, fmt.Sprintf("%s must be of type %s, got %q", r.Field, r.Expected, text(v)), r.Field)
}

func checkRange(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(RangeRule)
	v, ok := lookup(data, r.Field)
	if !ok {
		return nil
	}

	d, err := toDecimal(v)
	if err != nil {
		return violation(KindRange, r.Message, fmt.Sprintf("%s must be numeric, got %q", r.Field, text(v)), r.Field)
	}
	if r.Min != nil && d.LessThan(*r.Min) {
		return violation(KindRange, r.Message, fmt.Sprintf("%s must be >= %s, got %s", r.Field, r.Min, d), r.Field)
	}
	if r.Max != nil && d.GreaterThan(*r.Max) {
		return violation(KindRange, r.Message, fmt.Sprintf("%s must be <= %s, got %s", r.Field, r.Max, d), r.Field)
	}
	return nil
}

func checkEnum(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(EnumRule)
	v, ok := lookup(data, r.Field)
	if !ok {
		return nil
	}

	got := strings.TrimSpace(text(v))
	for _, allowed := range r.Values {
		if strings.EqualFold(got, allowed) {
			return nil
		}
	}
	return violation(KindEnum, r.Message, fmt.Sprintf("%s must be one of %s, got %q", r.Field, strings.Join(r.Values, ", "), got), r.Field)
}

func checkLength(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(LengthRule)
	v, ok := lookup(data, r.Field)
	if !ok {
		return nil
	}

	n := utf8.RuneCountInString(text(v))
	if r.Min != nil && n < *r.Min {
		return violation(KindLength, r.Message, fmt.Sprintf("%s must be at least %d characters, got %d", r.Field, *r.Min, n), r.Field)
	}
	if r.Max != nil && n > *r.Max {
		return violation(KindLength, r.Message, fmt.Sprintf("%s must be at most %d characters, got %d", r.Field, *r.Max, n), r.Field)
	}
	return nil
}

func checkDateFormat(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(DateFormatRule)
	v, ok := lookup(data, r.Field)
	if !ok {
		return nil
	}

	if _, err := time.Parse(r.Layout, strings.TrimSpace(text(v))); err == nil {
		return nil
	}
	return violation(KindDateFormat, r.Message, fmt.Sprintf("%s must match date format %s, got %q", r.Field, r.Layout, text(v)), r.Field)
}

func checkPattern(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(PatternRule)
	v, ok := lookup(data, r.Field)
	if !ok {
		return nil
	}

	if r.Pattern.MatchString(text(v)) {
		return nil
	}
	return violation(KindPattern, r.Message, fmt.Sprintf("%s does not match pattern %s", r.Field, r.Pattern), r.Field)
}
