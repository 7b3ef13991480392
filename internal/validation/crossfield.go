package validation

import (
	"fmt"
	"strings"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/logger"
)

// formulaChecker evaluates formula rules over the declared fields only.
// A formula that cannot be evaluated is logged and reported as a violation.
func formulaChecker(log *logger.Logger) Checker {
	return func(rule Rule, data map[string]any) []domain.Violation {
		r := rule.(FormulaRule)

		env := make(map[string]any, len(r.Fields))
		for _, field := range r.Fields {
			if v, ok := data[field]; ok {
				env[field] = v
			}
		}

		message := r.Message
		if message == "" {
			message = fmt.Sprintf("formula %s failed", r.Formula)
		}

		ok, err := r.Formula.Eval(env)
		if err != nil {
			log.Warn("formula evaluation failed", "formula", r.Formula.String(), "error", err)
			return violation(KindFormula, fmt.Sprintf("%s (%v)", message, err), "", r.Fields...)
		}
		if ok {
			return nil
		}
		return violation(KindFormula, message, "", r.Fields...)
	}
}

func checkDependency(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(DependencyRule)

	cond, ok := lookup(data, r.ConditionField)
	if !ok {
		return nil
	}
	if r.ConditionValue != "" && text(cond) != r.ConditionValue {
		return nil
	}
	if v, ok := lookup(data, r.RequiredField); ok && strings.TrimSpace(text(v)) != "" {
		return nil
	}

	fallback := fmt.Sprintf("%s is required when %s is set", r.RequiredField, r.ConditionField)
	if r.ConditionValue != "" {
		fallback = fmt.Sprintf("%s is required when %s is %q", r.RequiredField, r.ConditionField, r.ConditionValue)
	}
	return violation(KindDependency, r.Message, fallback, r.ConditionField, r.RequiredField)
}

func checkMutualExclusion(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(MutualExclusionRule)

	var set []string
	for _, field := range r.Fields {
		if _, ok := lookup(data, field); ok {
			set = append(set, field)
		}
	}
	if len(set) <= 1 {
		return nil
	}
	return violation(KindMutualExclusion, r.Message,
		fmt.Sprintf("only one of %s may be set, got %s", strings.Join(r.Fields, ", "), strings.Join(set, ", ")),
		r.Fields...)
}
