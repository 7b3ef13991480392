package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/normalize"
	"github.com/rpattn/vendorflow/internal/validation"
)

// ErrInvalidRules marks configuration that cannot be turned into rules.
var ErrInvalidRules = errors.New("invalid rule configuration")

const (
	schemaFile          = "canonical_schema.yaml"
	mappingRulesFile    = "mapping_rules.yaml"
	validationRulesFile = "validation_rules.yaml"
)

// Rules is everything loaded for one vendor.
type Rules struct {
	Vendor     string
	Schema     domain.CanonicalSchema
	Mapping    []domain.MappingRule
	Validation validation.RuleSet
}

// LoadRules reads <dir>/canonical_schema.yaml and
// <dir>/vendors/<vendor>/{mapping_rules,validation_rules}.yaml. Missing
// vendor rule files yield empty sections; a missing schema file or vendor
// directory is an error.
func LoadRules(dir, vendor string) (Rules, error) {
	vendorDir := filepath.Join(dir, "vendors", vendor)
	if info, err := os.Stat(vendorDir); err != nil || !info.IsDir() {
		return Rules{}, fmt.Errorf("%w: vendor directory %s not found", ErrInvalidRules, vendorDir)
	}

	rules := Rules{Vendor: vendor}

	schemaPath := filepath.Join(dir, schemaFile)
	data, err := os.ReadFile(schemaPath)
	if errors.Is(err, os.ErrNotExist) {
		return Rules{}, fmt.Errorf("%w: canonical schema %s not found", ErrInvalidRules, schemaPath)
	}
	if err != nil {
		return Rules{}, fmt.Errorf("failed to read %s: %w", schemaPath, err)
	}
	if rules.Schema, err = ParseCanonicalSchema(data); err != nil {
		return Rules{}, err
	}

	if data, err = readOptional(filepath.Join(vendorDir, mappingRulesFile)); err != nil {
		return Rules{}, err
	}
	if rules.Mapping, err = ParseMappingRules(data); err != nil {
		return Rules{}, fmt.Errorf("%s: %w", mappingRulesFile, err)
	}

	if data, err = readOptional(filepath.Join(vendorDir, validationRulesFile)); err != nil {
		return Rules{}, err
	}
	if rules.Validation, err = ParseValidationRules(data); err != nil {
		return Rules{}, fmt.Errorf("%s: %w", validationRulesFile, err)
	}

	return rules, nil
}

func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// ParseCanonicalSchema decodes the canonical schema document.
func ParseCanonicalSchema(data []byte) (domain.CanonicalSchema, error) {
	schema := domain.CanonicalSchema{Version: "1.0", Fields: map[string]domain.SchemaField{}}
	if len(data) == 0 {
		return schema, nil
	}
	if err := yaml.Unmarshal(data, &schema); err != nil {
		return domain.CanonicalSchema{}, fmt.Errorf("%w: canonical schema: %v", ErrInvalidRules, err)
	}
	if schema.Fields == nil {
		schema.Fields = map[string]domain.SchemaField{}
	}
	return schema, nil
}

type mappingDocument struct {
	// Mappings is the shorthand form vendor_field: canonical_field. Entries
	// become exact rules with priority 10, in document order.
	Mappings yaml.Node            `yaml:"mappings"`
	Rules    []domain.MappingRule `yaml:"rules"`
}

// ParseMappingRules decodes a mapping rule document.
func ParseMappingRules(data []byte) ([]domain.MappingRule, error) {
	var doc mappingDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	var rules []domain.MappingRule
	if doc.Mappings.Kind == yaml.MappingNode {
		content := doc.Mappings.Content
		for i := 0; i+1 < len(content); i += 2 {
			rules = append(rules, domain.MappingRule{
				VendorField:    content[i].Value,
				CanonicalField: content[i+1].Value,
				Kind:           domain.MatchExact,
				Priority:       10,
				Confidence:     1.0,
			})
		}
	} else if doc.Mappings.Kind != 0 {
		return nil, fmt.Errorf("%w: mappings must be a map of vendor field to canonical field", ErrInvalidRules)
	}

	for _, rule := range doc.Rules {
		if rule.Kind == "" {
			rule.Kind = domain.MatchExact
		}
		if rule.Confidence == 0 {
			rule.Confidence = 1.0
		}
		rules = append(rules, rule)
	}

	for _, rule := range rules {
		if err := rule.Check(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRules, err)
		}
	}
	return rules, nil
}

// ruleSpec is the union of every parameter any rule kind accepts. It is
// converted into exactly one validation rule variant.
type ruleSpec struct {
	RuleType       string              `yaml:"rule_type"`
	Type           string              `yaml:"type"`
	Field          string              `yaml:"field"`
	Fields         []string            `yaml:"fields"`
	Message        string              `yaml:"message"`
	ExpectedType   string              `yaml:"expected_type"`
	MinValue       *string             `yaml:"min_value"`
	MaxValue       *string             `yaml:"max_value"`
	Values         []string            `yaml:"values"`
	Pattern        string              `yaml:"pattern"`
	MinLength      *int                `yaml:"min_length"`
	MaxLength      *int                `yaml:"max_length"`
	Format         string              `yaml:"format"`
	Formula        string              `yaml:"formula"`
	ConditionField string              `yaml:"condition_field"`
	ConditionValue string              `yaml:"condition_value"`
	RequiredField  string              `yaml:"required_field"`
	FromField      string              `yaml:"from_field"`
	AllowedFrom    []string            `yaml:"allowed_from"`
	Transitions    map[string][]string `yaml:"transitions"`
	StartHour      *int                `yaml:"start_hour"`
	EndHour        *int                `yaml:"end_hour"`
	Params         map[string]any      `yaml:"params"`
}

func (s ruleSpec) kind() string {
	if s.RuleType != "" {
		return s.RuleType
	}
	return s.Type
}

type validationDocument struct {
	FieldRules    []ruleSpec `yaml:"field_validation_rules"`
	CrossRules    []ruleSpec `yaml:"cross_field_rules"`
	SemanticRules []ruleSpec `yaml:"semantic_rules"`
}

// ParseValidationRules decodes a validation rule document. Every rule is
// built and checked here so a bad file fails before any data is touched.
func ParseValidationRules(data []byte) (validation.RuleSet, error) {
	var doc validationDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return validation.RuleSet{}, fmt.Errorf("%w: %v", ErrInvalidRules, err)
	}

	var set validation.RuleSet
	sections := []struct {
		name    string
		entries []ruleSpec
		dest    *[]validation.Rule
	}{
		{"field_validation_rules", doc.FieldRules, &set.Structural},
		{"cross_field_rules", doc.CrossRules, &set.CrossField},
		{"semantic_rules", doc.SemanticRules, &set.Semantic},
	}
	for _, section := range sections {
		for i, entry := range section.entries {
			rule, err := buildRule(entry)
			if err != nil {
				return validation.RuleSet{}, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidRules, section.name, i, err)
			}
			if err := rule.Check(); err != nil {
				return validation.RuleSet{}, fmt.Errorf("%w: %s[%d]: %v", ErrInvalidRules, section.name, i, err)
			}
			*section.dest = append(*section.dest, rule)
		}
	}
	return set, nil
}

func buildRule(s ruleSpec) (validation.Rule, error) {
	switch validation.Kind(s.kind()) {
	case validation.KindRequired:
		return validation.RequiredRule{Field: s.Field, Message: s.Message}, nil
	case validation.KindType:
		return validation.TypeRule{Field: s.Field, Expected: s.ExpectedType, Message: s.Message}, nil
	case validation.KindRange:
		min, err := optionalDecimal(s.MinValue)
		if err != nil {
			return nil, fmt.Errorf("min_value: %w", err)
		}
		max, err := optionalDecimal(s.MaxValue)
		if err != nil {
			return nil, fmt.Errorf("max_value: %w", err)
		}
		return validation.RangeRule{Field: s.Field, Min: min, Max: max, Message: s.Message}, nil
	case validation.KindEnum:
		return validation.EnumRule{Field: s.Field, Values: s.Values, Message: s.Message}, nil
	case validation.KindLength:
		return validation.LengthRule{Field: s.Field, Min: s.MinLength, Max: s.MaxLength, Message: s.Message}, nil
	case validation.KindDateFormat:
		return validation.NewDateFormatRule(s.Field, s.Format, s.Message), nil
	case validation.KindPattern, "regex":
		return validation.NewPatternRule(s.Field, s.Pattern, s.Message)
	case validation.KindFormula:
		if s.Formula == "" {
			return nil, errors.New("formula is required")
		}
		return validation.NewFormulaRule(s.Fields, s.Formula, s.Message)
	case validation.KindDependency:
		return validation.DependencyRule{
			ConditionField: s.ConditionField,
			ConditionValue: s.ConditionValue,
			RequiredField:  s.RequiredField,
			Message:        s.Message,
		}, nil
	case validation.KindMutualExclusion:
		return validation.MutualExclusionRule{Fields: s.Fields, Message: s.Message}, nil
	case validation.KindStatusTransition:
		field := s.Field
		if field == "" {
			field = "order_status"
		}
		return validation.StatusTransitionRule{
			Field:       field,
			FromField:   s.FromField,
			Allowed:     s.AllowedFrom,
			Transitions: s.Transitions,
			Message:     s.Message,
		}, nil
	case validation.KindBusinessHours:
		rule := validation.BusinessHoursRule{Field: s.Field, StartHour: 9, EndHour: 17, Message: s.Message}
		if rule.Field == "" {
			rule.Field = "created_at"
		}
		if s.StartHour != nil {
			rule.StartHour = *s.StartHour
		}
		if s.EndHour != nil {
			rule.EndHour = *s.EndHour
		}
		return rule, nil
	case "":
		return nil, errors.New("rule_type is required")
	default:
		fields := s.Fields
		if len(fields) == 0 && s.Field != "" {
			fields = []string{s.Field}
		}
		return validation.CustomRule{Name: s.kind(), Fields: fields, Params: s.Params, Message: s.Message}, nil
	}
}

func optionalDecimal(raw *string) (*decimal.Decimal, error) {
	if raw == nil {
		return nil, nil
	}
	d, err := normalize.ParseDecimal(*raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
