package validation

import (
	"fmt"
	"slices"

	"github.com/rpattn/vendorflow/internal/domain"
)

func checkStatusTransition(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(StatusTransitionRule)

	to, hasTo := lookup(data, r.Field)
	if r.FromField != "" && len(r.Transitions) > 0 {
		if from, ok := lookup(data, r.FromField); ok {
			next := r.Transitions[text(from)]
			if hasTo && slices.Contains(next, text(to)) {
				return nil
			}
			return violation(KindStatusTransition, r.Message,
				fmt.Sprintf("%s cannot move from %q to %q", r.Field, text(from), textOrEmpty(to)),
				r.FromField, r.Field)
		}
	}

	if len(r.Allowed) == 0 {
		return nil
	}
	if hasTo && slices.Contains(r.Allowed, text(to)) {
		return nil
	}
	return violation(KindStatusTransition, r.Message,
		fmt.Sprintf("%s %q is not an allowed status", r.Field, textOrEmpty(to)), r.Field)
}

func textOrEmpty(v any) string {
	if v == nil {
		return ""
	}
	return text(v)
}

func checkBusinessHours(rule Rule, data map[string]any) []domain.Violation {
	r := rule.(BusinessHoursRule)

	v, ok := lookup(data, r.Field)
	if !ok {
		return nil
	}
	ts, ok := parseTimestamp(v)
	if !ok {
		return nil
	}
	if hour := ts.Hour(); hour >= r.StartHour && hour < r.EndHour {
		return nil
	}
	return violation(KindBusinessHours, r.Message,
		fmt.Sprintf("%s %s is outside business hours %02d:00-%02d:00", r.Field, text(v), r.StartHour, r.EndHour), r.Field)
}

// checkInventory is the default inventory check. Deployments with stock data
// register their own checker under KindInventory.
func checkInventory(Rule, map[string]any) []domain.Violation {
	return nil
}
