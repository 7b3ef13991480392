// Package mapping turns normalized vendor rows into canonical rows using
// priority-ordered rules.
package mapping

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/normalize"
)

type compiledRule struct {
	domain.MappingRule
	pattern *regexp.Regexp
}

// Engine applies a fixed rule set. It holds no per-row state and is safe for
// concurrent use.
type Engine struct {
	rules []compiledRule
}

// Result is the outcome of mapping one row.
type Result struct {
	Canonical  map[string]any
	Confidence map[string]float64
	// Unmapped lists source fields no rule consumed, sorted.
	Unmapped []string
	// Skipped lists function rules that were recognised but not applied.
	Skipped []string
	// TransformErrors describes values whose transform failed; the
	// normalized value is kept for those fields.
	TransformErrors []string
}

// NewEngine validates and orders the rules. Non-fallback rules come first,
// then by ascending priority, then by declaration order.
func NewEngine(rules []domain.MappingRule) (*Engine, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, rule := range rules {
		if rule.Confidence == 0 {
			rule.Confidence = 1.0
		}
		if err := rule.Check(); err != nil {
			return nil, err
		}
		if rule.Transform != "" && !normalize.HasTransform(rule.Transform) {
			return nil, fmt.Errorf("mapping rule %s->%s: unknown transform %q", rule.VendorField, rule.CanonicalField, rule.Transform)
		}
		c := compiledRule{MappingRule: rule}
		if rule.Kind == domain.MatchPattern {
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				return nil, fmt.Errorf("mapping rule %s->%s: invalid pattern: %w", rule.VendorField, rule.CanonicalField, err)
			}
			c.pattern = re
		}
		compiled = append(compiled, c)
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		if compiled[i].Fallback != compiled[j].Fallback {
			return !compiled[i].Fallback
		}
		return compiled[i].Priority < compiled[j].Priority
	})

	return &Engine{rules: compiled}, nil
}

// Rules returns the rules in evaluation order.
func (e *Engine) Rules() []domain.MappingRule {
	out := make([]domain.MappingRule, len(e.rules))
	for i, r := range e.rules {
		out[i] = r.MappingRule
	}
	return out
}

// Map derives canonical data from a normalized row. The first rule to write
// a canonical field wins. A rule only applies when its vendor field holds a
// non-null value.
func (e *Engine) Map(source map[string]any) Result {
	res := Result{
		Canonical:  make(map[string]any),
		Confidence: make(map[string]float64),
	}
	consumed := make(map[string]bool, len(source))

	for _, rule := range e.rules {
		value, present := source[rule.VendorField]
		if !present {
			continue
		}
		if rule.Kind == domain.MatchFunction {
			res.Skipped = append(res.Skipped, rule.VendorField+"->"+rule.CanonicalField)
			continue
		}
		if value == nil {
			consumed[rule.VendorField] = true
			continue
		}
		if _, taken := res.Canonical[rule.CanonicalField]; taken {
			continue
		}
		if !rule.matches(value) {
			continue
		}

		if rule.Transform != "" {
			transformed, err := normalize.Apply(rule.Transform, value)
			if err != nil {
				res.TransformErrors = append(res.TransformErrors, fmt.Sprintf("%s: %v", rule.CanonicalField, err))
			} else {
				value = transformed
			}
		}

		res.Canonical[rule.CanonicalField] = value
		res.Confidence[rule.CanonicalField] = rule.Confidence
		consumed[rule.VendorField] = true
	}

	for field := range source {
		if !consumed[field] {
			res.Unmapped = append(res.Unmapped, field)
		}
	}
	sort.Strings(res.Unmapped)

	return res
}

func (r compiledRule) matches(value any) bool {
	switch r.Kind {
	case domain.MatchExact:
		return true
	case domain.MatchPattern:
		return r.pattern.MatchString(stringify(value))
	case domain.MatchSubstring:
		return strings.Contains(stringify(value), r.Pattern)
	default:
		return false
	}
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprint(value)
}
