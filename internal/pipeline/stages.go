package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/export"
	"github.com/rpattn/vendorflow/internal/ingestion"
	"github.com/rpattn/vendorflow/internal/logger"
	"github.com/rpattn/vendorflow/internal/mapping"
	"github.com/rpattn/vendorflow/internal/normalize"
	"github.com/rpattn/vendorflow/internal/reconcile"
	"github.com/rpattn/vendorflow/internal/suggest"
	"github.com/rpattn/vendorflow/internal/validation"
)

// Stage transforms the rows of one file. The runner loads the rows from the
// store before each stage and writes back whatever the stage returns; a nil
// slice means nothing changed.
type Stage interface {
	Name() string
	Run(ctx context.Context, file domain.FileRecord, rows []domain.RowRecord) ([]domain.RowRecord, error)
}

// MapStage normalizes raw values and maps them onto canonical fields.
type MapStage struct {
	mapper          *mapping.Engine
	suggester       *suggest.Service
	canonicalFields []string
	log             *logger.Logger
}

func NewMapStage(mapper *mapping.Engine, suggester *suggest.Service, canonicalFields []string, log *logger.Logger) *MapStage {
	return &MapStage{mapper: mapper, suggester: suggester, canonicalFields: canonicalFields, log: logger.OrNop(log)}
}

func (s *MapStage) Name() string { return "map" }

func (s *MapStage) Run(ctx context.Context, file domain.FileRecord, rows []domain.RowRecord) ([]domain.RowRecord, error) {
	unmapped := make(map[string]struct{})
	rowUnmapped := make([][]string, len(rows))

	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := &rows[i]
		row.Normalized = normalize.Row(row.Raw)
		result := s.mapper.Map(row.Normalized)
		row.Canonical = result.Canonical
		row.Confidence = result.Confidence
		row.Suggestions = nil
		for _, msg := range result.TransformErrors {
			s.log.Debug("transform kept normalized value", "row_id", row.ID, "detail", msg)
		}
		rowUnmapped[i] = result.Unmapped
		for _, field := range result.Unmapped {
			unmapped[field] = struct{}{}
		}
	}

	if s.suggester == nil || len(unmapped) == 0 {
		return rows, nil
	}

	headers := make([]string, 0, len(unmapped))
	for field := range unmapped {
		headers = append(headers, field)
	}
	sort.Strings(headers)
	suggestions, err := s.suggester.Suggest(ctx, headers, s.canonicalFields)
	if err != nil {
		s.log.Warn("mapping suggestions unavailable", "file_id", file.ID, "error", err)
		return rows, nil
	}
	byField := suggest.ByVendorField(suggestions)
	for i := range rows {
		for _, field := range rowUnmapped[i] {
			if candidates, ok := byField[field]; ok {
				if rows[i].Suggestions == nil {
					rows[i].Suggestions = make(map[string][]domain.Suggestion)
				}
				rows[i].Suggestions[field] = candidates
			}
		}
	}
	return rows, nil
}

// ValidateStage assigns each row its verdict.
type ValidateStage struct {
	engine *validation.Engine
}

func NewValidateStage(engine *validation.Engine) *ValidateStage {
	return &ValidateStage{engine: engine}
}

func (s *ValidateStage) Name() string { return "validate" }

// Run marks rows the decoder could not read as ERROR and validates the
// canonical values of everything else. Earlier violations are replaced, so
// reprocessing a file gives the same verdicts.
func (s *ValidateStage) Run(ctx context.Context, _ domain.FileRecord, rows []domain.RowRecord) ([]domain.RowRecord, error) {
	for i := range rows {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row := &rows[i]
		if decodeErrs := decodeViolations(row.Violations); len(decodeErrs) > 0 {
			row.Violations = decodeErrs
			row.Status = domain.RowStatusError
			continue
		}
		data := row.Canonical
		if data == nil {
			data = map[string]any{}
		}
		result := s.engine.Validate(data)
		row.Violations = result.Violations
		row.Status = result.Status
	}
	return rows, nil
}

func decodeViolations(violations []domain.Violation) []domain.Violation {
	var out []domain.Violation
	for _, v := range violations {
		if v.Rule == ingestion.DecodeRule {
			out = append(out, v)
		}
	}
	return out
}

// ReconcileStage marks duplicate rows within a file.
type ReconcileStage struct {
	keys          []string
	policy        reconcile.Policy
	affectsStatus bool
	log           *logger.Logger
}

func NewReconcileStage(keys []string, policy reconcile.Policy, affectsStatus bool, log *logger.Logger) *ReconcileStage {
	return &ReconcileStage{keys: keys, policy: policy, affectsStatus: affectsStatus, log: logger.OrNop(log)}
}

func (s *ReconcileStage) Name() string { return "reconcile" }

// Run appends a duplicate violation to the rows the policy selects. Unless
// affectsStatus is set the row verdicts are left alone.
func (s *ReconcileStage) Run(_ context.Context, file domain.FileRecord, rows []domain.RowRecord) ([]domain.RowRecord, error) {
	groups := reconcile.MarkDuplicates(rows, s.keys, s.policy)
	if len(groups) == 0 {
		return rows, nil
	}
	s.log.Info("duplicates found", "file_id", file.ID, "groups", len(groups))

	if s.affectsStatus {
		for i := range rows {
			if rows[i].Status == domain.RowStatusValid && hasRule(rows[i].Violations, reconcile.DuplicateRule) {
				rows[i].Status = domain.RowStatusFlagged
			}
		}
	}
	return rows, nil
}

func hasRule(violations []domain.Violation, rule string) bool {
	for _, v := range violations {
		if v.Rule == rule {
			return true
		}
	}
	return false
}

// ExportStage writes the valid and flagged artifacts of a file. It does not
// change any row.
type ExportStage struct {
	exporter *export.Service
	format   export.Format
}

func NewExportStage(exporter *export.Service, format export.Format) *ExportStage {
	return &ExportStage{exporter: exporter, format: format}
}

func (s *ExportStage) Name() string { return "export" }

func (s *ExportStage) Run(ctx context.Context, file domain.FileRecord, _ []domain.RowRecord) ([]domain.RowRecord, error) {
	if _, err := s.exporter.ExportFile(ctx, file.ID, s.format); err != nil {
		return nil, fmt.Errorf("export %s: %w", file.FileName, err)
	}
	return nil, nil
}
