package validation

import (
	"fmt"

	"github.com/rpattn/vendorflow/internal/domain"
)

// RuleSet is the validated configuration for one vendor.
type RuleSet struct {
	Structural []Rule
	CrossField []Rule
	Semantic   []Rule
}

// Len returns the total number of rules.
func (s RuleSet) Len() int {
	return len(s.Structural) + len(s.CrossField) + len(s.Semantic)
}

type boundRule struct {
	rule  Rule
	check Checker
}

// Engine runs a rule set. It is immutable and safe for concurrent use.
type Engine struct {
	layers [3][]boundRule
}

// Result is the verdict for one row.
type Result struct {
	Violations []domain.Violation
	Status     domain.RowStatus
}

// Valid reports whether no rule fired.
func (r Result) Valid() bool {
	return len(r.Violations) == 0
}

// builtinKinds may not be claimed by CustomRule names.
var builtinKinds = map[Kind]bool{
	KindRequired: true, KindType: true, KindRange: true, KindEnum: true, KindLength: true,
	KindDateFormat: true, KindPattern: true, KindFormula: true, KindDependency: true,
	KindMutualExclusion: true, KindStatusTransition: true, KindBusinessHours: true,
}

// NewEngine binds every rule to its checker. Unknown kinds, rules placed in
// the wrong layer and incomplete rules are configuration errors.
func NewEngine(registry *Registry, set RuleSet) (*Engine, error) {
	if registry == nil {
		registry = NewRegistry()
	}

	e := &Engine{}
	groups := []struct {
		layer Layer
		rules []Rule
	}{
		{LayerStructural, set.Structural},
		{LayerCrossField, set.CrossField},
		{LayerSemantic, set.Semantic},
	}
	for i, group := range groups {
		for _, rule := range group.rules {
			if rule == nil {
				return nil, fmt.Errorf("%s rule %d is nil", group.layer, len(e.layers[i]))
			}
			if rule.Layer() != group.layer {
				return nil, fmt.Errorf("%s rule placed in %s layer", rule.Kind(), group.layer)
			}
			if err := rule.Check(); err != nil {
				return nil, fmt.Errorf("invalid %s rule: %w", rule.Kind(), err)
			}
			if _, custom := rule.(CustomRule); custom && builtinKinds[rule.Kind()] {
				return nil, fmt.Errorf("custom rule cannot use built-in kind %q", rule.Kind())
			}
			check, ok := registry.Lookup(rule.Kind())
			if !ok {
				return nil, fmt.Errorf("no checker registered for rule kind %q", rule.Kind())
			}
			e.layers[i] = append(e.layers[i], boundRule{rule: rule, check: check})
		}
	}
	return e, nil
}

// Validate runs every layer in order and collects all violations. A row is
// VALID only when nothing fired.
func (e *Engine) Validate(data map[string]any) Result {
	violations := []domain.Violation{}
	for _, layer := range e.layers {
		for _, bound := range layer {
			violations = append(violations, bound.check(bound.rule, data)...)
		}
	}

	status := domain.RowStatusValid
	if len(violations) > 0 {
		status = domain.RowStatusFlagged
	}
	return Result{Violations: violations, Status: status}
}
