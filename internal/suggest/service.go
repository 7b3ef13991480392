// Package suggest proposes canonical fields for unmapped vendor headers.
// Suggestions are advisory and never feed the mapping or validation verdicts.
package suggest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"sort"
	"strings"
	"unicode"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/logger"
	"github.com/rpattn/vendorflow/internal/mapping"
)

// Provider produces suggestions for a header set.
type Provider interface {
	Suggest(ctx context.Context, headers []string, canonicalFields []string) ([]domain.Suggestion, error)
}

// Service fronts a Provider with a signature keyed cache.
type Service struct {
	cache    Cache
	provider Provider
	log      *logger.Logger
}

type Option func(*Service)

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithProvider(p Provider) Option {
	return func(s *Service) { s.provider = p }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = logger.OrNop(l) }
}

// NewService returns a service using the heuristic provider and no cache
// unless options say otherwise.
func NewService(opts ...Option) *Service {
	s := &Service{provider: HeuristicProvider{}, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signature is the SHA-256 of the sorted header names, so column order does
// not change the cache key.
func Signature(headers []string) string {
	sorted := append([]string(nil), headers...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// Suggest returns cached suggestions when present and otherwise asks the
// provider. Cache failures are logged and ignored.
func (s *Service) Suggest(ctx context.Context, headers []string, canonicalFields []string) ([]domain.Suggestion, error) {
	if len(headers) == 0 {
		return []domain.Suggestion{}, nil
	}
	signature := Signature(headers)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, signature)
		switch {
		case err != nil:
			s.log.Warn("suggestion cache read failed", "signature", signature, "error", err)
		case ok:
			return cached, nil
		}
	}

	suggestions, err := s.provider.Suggest(ctx, headers, canonicalFields)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, signature, suggestions); err != nil {
			s.log.Warn("suggestion cache write failed", "signature", signature, "error", err)
		}
	}
	return suggestions, nil
}

// ByVendorField groups suggestions under the vendor field they describe.
func ByVendorField(suggestions []domain.Suggestion) map[string][]domain.Suggestion {
	out := make(map[string][]domain.Suggestion)
	for _, s := range suggestions {
		out[s.VendorField] = append(out[s.VendorField], s)
	}
	return out
}

// HeuristicProvider suggests by name: exact match, then normalized match,
// then the mapping similarity ranking.
type HeuristicProvider struct {
	// PerField caps suggestions per header. Zero means 3.
	PerField int
}

func (p HeuristicProvider) Suggest(_ context.Context, headers []string, canonicalFields []string) ([]domain.Suggestion, error) {
	limit := p.PerField
	if limit <= 0 {
		limit = 3
	}

	normalized := make(map[string]string, len(canonicalFields))
	for _, field := range canonicalFields {
		normalized[normalizeName(field)] = field
	}

	out := make([]domain.Suggestion, 0, len(headers))
	for _, header := range headers {
		if slices.Contains(canonicalFields, header) {
			out = append(out, domain.Suggestion{VendorField: header, CanonicalField: header, Confidence: 1.0, Rationale: "exact name match"})
			continue
		}
		if field, ok := normalized[normalizeName(header)]; ok {
			out = append(out, domain.Suggestion{VendorField: header, CanonicalField: field, Confidence: 0.95, Rationale: "normalized name match"})
			continue
		}
		candidates := mapping.Suggest(header, canonicalFields)
		if len(candidates) > limit {
			candidates = candidates[:limit]
		}
		for _, c := range candidates {
			out = append(out, domain.Suggestion{VendorField: header, CanonicalField: c.CanonicalField, Confidence: c.Score, Rationale: "name similarity"})
		}
	}
	return out, nil
}

// normalizeName lower-cases and collapses every run of non alphanumerics to
// a single underscore: "Item Code" and "item_code" compare equal.
func normalizeName(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
