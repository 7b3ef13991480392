// Package validation checks canonical rows against structural, cross-field
// and semantic rules.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Kind names a rule kind. It is also the rule name recorded on violations.
type Kind string

const (
	KindRequired         Kind = "required"
	KindType             Kind = "type"
	KindRange            Kind = "range"
	KindEnum             Kind = "enum"
	KindLength           Kind = "length"
	KindDateFormat       Kind = "date_format"
	KindPattern          Kind = "pattern"
	KindFormula          Kind = "formula"
	KindDependency       Kind = "dependency"
	KindMutualExclusion  Kind = "mutual_exclusion"
	KindStatusTransition Kind = "status_transition"
	KindBusinessHours    Kind = "business_hours"
	KindInventory        Kind = "inventory"
)

// Layer groups rules. Layers run in declaration order and never
// short-circuit each other.
type Layer string

const (
	LayerStructural Layer = "structural"
	LayerCrossField Layer = "cross_field"
	LayerSemantic   Layer = "semantic"
)

// Rule is implemented by every rule variant. Check reports missing or
// inconsistent parameters and is called when a rule set is loaded.
type Rule interface {
	Kind() Kind
	Layer() Layer
	Check() error
}

var errNoField = errors.New("field is required")

// RequiredRule flags rows where Field is absent, null or blank.
type RequiredRule struct {
	Field   string
	Message string
}

func (r RequiredRule) Kind() Kind   { return KindRequired }
func (r RequiredRule) Layer() Layer { return LayerStructural }
func (r RequiredRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	return nil
}

// Value types understood by TypeRule.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeDecimal = "decimal"
	TypeDate    = "date"
	TypeEmail   = "email"
)

// TypeRule requires the value to parse losslessly as Expected.
type TypeRule struct {
	Field    string
	Expected string
	Message  string
}

func (r TypeRule) Kind() Kind   { return KindType }
func (r TypeRule) Layer() Layer { return LayerStructural }
func (r TypeRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	switch r.Expected {
	case TypeString, TypeInteger, TypeDecimal, TypeDate, TypeEmail:
		return nil
	case "":
		return fmt.Errorf("type rule on %s: expected type is required", r.Field)
	default:
		return fmt.Errorf("type rule on %s: unknown type %q", r.Field, r.Expected)
	}
}

// RangeRule bounds a numeric value. Either bound may be nil.
type RangeRule struct {
	Field   string
	Min     *decimal.Decimal
	Max     *decimal.Decimal
	Message string
}

func (r RangeRule) Kind() Kind   { return KindRange }
func (r RangeRule) Layer() Layer { return LayerStructural }
func (r RangeRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	if r.Min == nil && r.Max == nil {
		return fmt.Errorf("range rule on %s: min or max is required", r.Field)
	}
	if r.Min != nil && r.Max != nil && r.Min.GreaterThan(*r.Max) {
		return fmt.Errorf("range rule on %s: min %s exceeds max %s", r.Field, r.Min, r.Max)
	}
	return nil
}

// EnumRule restricts the value to Values, compared case-insensitively.
type EnumRule struct {
	Field   string
	Values  []string
	Message string
}

func (r EnumRule) Kind() Kind   { return KindEnum }
func (r EnumRule) Layer() Layer { return LayerStructural }
func (r EnumRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	if len(r.Values) == 0 {
		return fmt.Errorf("enum rule on %s: values are required", r.Field)
	}
	return nil
}

// LengthRule bounds the rune length of the value.
type LengthRule struct {
	Field   string
	Min     *int
	Max     *int
	Message string
}

func (r LengthRule) Kind() Kind   { return KindLength }
func (r LengthRule) Layer() Layer { return LayerStructural }
func (r LengthRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	if r.Min == nil && r.Max == nil {
		return fmt.Errorf("length rule on %s: min or max is required", r.Field)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("length rule on %s: min exceeds max", r.Field)
	}
	return nil
}

// DateFormatRule requires the value to parse with Layout, a Go time layout.
type DateFormatRule struct {
	Field   string
	Layout  string
	Message string
}

// NewDateFormatRule accepts either a Go layout or a strftime-style format
// such as %Y-%m-%d.
func NewDateFormatRule(field, format, message string) DateFormatRule {
	return DateFormatRule{Field: field, Layout: goLayout(format), Message: message}
}

func (r DateFormatRule) Kind() Kind   { return KindDateFormat }
func (r DateFormatRule) Layer() Layer { return LayerStructural }
func (r DateFormatRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	if r.Layout == "" {
		return fmt.Errorf("date_format rule on %s: format is required", r.Field)
	}
	return nil
}

var strftime = strings.NewReplacer(
	"%Y", "2006", "%y", "06", "%m", "01", "%d", "02",
	"%H", "15", "%M", "04", "%S", "05", "%b", "Jan", "%B", "January",
)

func goLayout(format string) string {
	if !strings.Contains(format, "%") {
		return format
	}
	return strftime.Replace(format)
}

// PatternRule requires the value to contain a match of Pattern.
type PatternRule struct {
	Field   string
	Pattern *regexp.Regexp
	Message string
}

// NewPatternRule compiles pattern.
func NewPatternRule(field, pattern, message string) (PatternRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return PatternRule{}, fmt.Errorf("pattern rule on %s: %w", field, err)
	}
	return PatternRule{Field: field, Pattern: re, Message: message}, nil
}

func (r PatternRule) Kind() Kind   { return KindPattern }
func (r PatternRule) Layer() Layer { return LayerStructural }
func (r PatternRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	if r.Pattern == nil {
		return fmt.Errorf("pattern rule on %s: pattern is required", r.Field)
	}
	return nil
}

// FormulaRule evaluates a boolean expression over the named fields.
type FormulaRule struct {
	Fields  []string
	Formula *Formula
	Message string
}

// NewFormulaRule compiles expression. When fields is empty the identifiers
// used by the expression become the field set.
func NewFormulaRule(fields []string, expression, message string) (FormulaRule, error) {
	formula, err := CompileFormula(expression)
	if err != nil {
		return FormulaRule{}, err
	}
	if len(fields) == 0 {
		fields = formula.Identifiers()
	}
	return FormulaRule{Fields: fields, Formula: formula, Message: message}, nil
}

func (r FormulaRule) Kind() Kind   { return KindFormula }
func (r FormulaRule) Layer() Layer { return LayerCrossField }
func (r FormulaRule) Check() error {
	if r.Formula == nil {
		return errors.New("formula rule: expression is required")
	}
	declared := make(map[string]bool, len(r.Fields))
	for _, f := range r.Fields {
		declared[f] = true
	}
	for _, ident := range r.Formula.Identifiers() {
		if !declared[ident] {
			return fmt.Errorf("formula %q: %s is not a declared field", r.Formula, ident)
		}
	}
	return nil
}

// DependencyRule requires RequiredField whenever ConditionField equals
// ConditionValue. An empty ConditionValue means "ConditionField is set".
type DependencyRule struct {
	ConditionField string
	ConditionValue string
	RequiredField  string
	Message        string
}

func (r DependencyRule) Kind() Kind   { return KindDependency }
func (r DependencyRule) Layer() Layer { return LayerCrossField }
func (r DependencyRule) Check() error {
	if r.ConditionField == "" || r.RequiredField == "" {
		return errors.New("dependency rule: condition_field and required_field are required")
	}
	return nil
}

// MutualExclusionRule allows at most one of Fields to be set.
type MutualExclusionRule struct {
	Fields  []string
	Message string
}

func (r MutualExclusionRule) Kind() Kind   { return KindMutualExclusion }
func (r MutualExclusionRule) Layer() Layer { return LayerCrossField }
func (r MutualExclusionRule) Check() error {
	if len(r.Fields) < 2 {
		return errors.New("mutual_exclusion rule: at least two fields are required")
	}
	return nil
}

// StatusTransitionRule checks a status value against an allow-list. With
// FromField and Transitions set, the move from the previous status must be
// listed for that status.
type StatusTransitionRule struct {
	Field       string
	FromField   string
	Allowed     []string
	Transitions map[string][]string
	Message     string
}

func (r StatusTransitionRule) Kind() Kind   { return KindStatusTransition }
func (r StatusTransitionRule) Layer() Layer { return LayerSemantic }
func (r StatusTransitionRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	if len(r.Allowed) == 0 && (r.FromField == "" || len(r.Transitions) == 0) {
		return fmt.Errorf("status_transition rule on %s: allowed or from_field with transitions is required", r.Field)
	}
	return nil
}

// BusinessHoursRule requires a timestamp to fall within [StartHour, EndHour).
type BusinessHoursRule struct {
	Field     string
	StartHour int
	EndHour   int
	Message   string
}

func (r BusinessHoursRule) Kind() Kind   { return KindBusinessHours }
func (r BusinessHoursRule) Layer() Layer { return LayerSemantic }
func (r BusinessHoursRule) Check() error {
	if r.Field == "" {
		return errNoField
	}
	if r.StartHour < 0 || r.EndHour > 24 || r.StartHour >= r.EndHour {
		return fmt.Errorf("business_hours rule on %s: invalid hours %d-%d", r.Field, r.StartHour, r.EndHour)
	}
	return nil
}

// CustomRule is a semantic check implemented by a Checker registered under
// Name. The inventory check is the built-in example.
type CustomRule struct {
	Name    string
	Fields  []string
	Params  map[string]any
	Message string
}

func (r CustomRule) Kind() Kind   { return Kind(r.Name) }
func (r CustomRule) Layer() Layer { return LayerSemantic }
func (r CustomRule) Check() error {
	if r.Name == "" {
		return errors.New("custom rule: name is required")
	}
	return nil
}
