package domain

import (
	"fmt"
	"sort"
)

// MatchKind selects how a mapping rule decides whether it applies.
type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchPattern   MatchKind = "pattern"
	MatchSubstring MatchKind = "substring"
	// MatchFunction rules are accepted in configuration but never applied.
	MatchFunction MatchKind = "function"
)

// MappingRule maps one vendor field onto one canonical field.
type MappingRule struct {
	VendorField    string    `json:"vendor_field" yaml:"vendor_field"`
	CanonicalField string    `json:"canonical_field" yaml:"canonical_field"`
	Kind           MatchKind `json:"kind" yaml:"kind"`
	Pattern        string    `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Priority       int       `json:"priority" yaml:"priority"`
	Confidence     float64   `json:"confidence" yaml:"confidence"`
	Fallback       bool      `json:"fallback,omitempty" yaml:"fallback,omitempty"`
	Transform      string    `json:"transform,omitempty" yaml:"transform,omitempty"`
}

// Check reports configuration problems with the rule.
func (r MappingRule) Check() error {
	if r.VendorField == "" {
		return fmt.Errorf("mapping rule for %q: vendor_field is required", r.CanonicalField)
	}
	if r.CanonicalField == "" {
		return fmt.Errorf("mapping rule for %q: canonical_field is required", r.VendorField)
	}
	switch r.Kind {
	case MatchExact, MatchSubstring, MatchFunction:
	case MatchPattern:
		if r.Pattern == "" {
			return fmt.Errorf("mapping rule %s->%s: pattern is required", r.VendorField, r.CanonicalField)
		}
	default:
		return fmt.Errorf("mapping rule %s->%s: unknown kind %q", r.VendorField, r.CanonicalField, r.Kind)
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("mapping rule %s->%s: confidence must be within [0,1]", r.VendorField, r.CanonicalField)
	}
	return nil
}

// SchemaField describes one canonical field.
type SchemaField struct {
	Type        string `json:"type" yaml:"type"`
	Required    bool   `json:"required" yaml:"required"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// CanonicalSchema is the target shape every vendor is mapped onto.
type CanonicalSchema struct {
	Version string                 `json:"version" yaml:"version"`
	Fields  map[string]SchemaField `json:"fields" yaml:"fields"`
}

// FieldNames returns the canonical field names.
func (s CanonicalSchema) FieldNames() []string {
	names := make([]string, 0, len(s.Fields))
	for name := range s.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
