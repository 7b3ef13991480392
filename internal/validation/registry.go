package validation

import (
	"sort"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/logger"
)

// Checker evaluates one rule against a row. It must be pure: the same rule
// and data always give the same violations.
type Checker func(rule Rule, data map[string]any) []domain.Violation

// Registry maps rule kinds to checkers. It is built once and never
// modified afterwards.
type Registry struct {
	checkers map[Kind]Checker
}

type registryConfig struct {
	log       *logger.Logger
	overrides map[Kind]Checker
}

// RegistryOption customises NewRegistry.
type RegistryOption func(*registryConfig)

// WithLogger sets the logger used to report formula evaluation errors.
func WithLogger(l *logger.Logger) RegistryOption {
	return func(c *registryConfig) { c.log = l }
}

// WithChecker adds or replaces the checker for kind.
func WithChecker(kind Kind, fn Checker) RegistryOption {
	return func(c *registryConfig) { c.overrides[kind] = fn }
}

// NewRegistry returns the built-in checkers plus any overrides.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := &registryConfig{overrides: map[Kind]Checker{}}
	for _, opt := range opts {
		opt(cfg)
	}
	log := logger.OrNop(cfg.log)

	checkers := map[Kind]Checker{
		KindRequired:         checkRequired,
		KindType:             checkType,
		KindRange:            checkRange,
		KindEnum:             checkEnum,
		KindLength:           checkLength,
		KindDateFormat:       checkDateFormat,
		KindPattern:          checkPattern,
		KindFormula:          formulaChecker(log),
		KindDependency:       checkDependency,
		KindMutualExclusion:  checkMutualExclusion,
		KindStatusTransition: checkStatusTransition,
		KindBusinessHours:    checkBusinessHours,
		KindInventory:        checkInventory,
	}
	for kind, fn := range cfg.overrides {
		checkers[kind] = fn
	}
	return &Registry{checkers: checkers}
}

// Lookup returns the checker for kind.
func (r *Registry) Lookup(kind Kind) (Checker, bool) {
	fn, ok := r.checkers[kind]
	return fn, ok
}

// Kinds lists every registered kind, sorted.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.checkers))
	for k := range r.checkers {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}
