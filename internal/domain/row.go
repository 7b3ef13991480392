package domain

import (
	"strings"
	"time"
)

// RowStatus is the verdict recorded for a row.
type RowStatus string

const (
	RowStatusPending RowStatus = "PENDING"
	RowStatusValid   RowStatus = "VALID"
	RowStatusFlagged RowStatus = "FLAGGED"
	RowStatusError   RowStatus = "ERROR"
)

// ParseRowStatus accepts lower or upper case status names.
func ParseRowStatus(value string) (RowStatus, bool) {
	switch RowStatus(strings.ToUpper(strings.TrimSpace(value))) {
	case RowStatusPending:
		return RowStatusPending, true
	case RowStatusValid:
		return RowStatusValid, true
	case RowStatusFlagged:
		return RowStatusFlagged, true
	case RowStatusError:
		return RowStatusError, true
	}
	return "", false
}

// Violation describes one failed check. Every validation layer, the
// reconciler and the decoders report problems in this shape.
type Violation struct {
	Fields  []string `json:"fields"`
	Rule    string   `json:"rule"`
	Message string   `json:"message"`
}

// NewViolation builds a violation for the given rule and fields.
func NewViolation(rule, message string, fields ...string) Violation {
	return Violation{Fields: append([]string(nil), fields...), Rule: rule, Message: message}
}

// Field returns the comma joined field set.
func (v Violation) Field() string {
	return strings.Join(v.Fields, ",")
}

// RowRecord is a single decoded row plus every derived view of it.
type RowRecord struct {
	ID             string                  `json:"id"`
	FileID         string                  `json:"file_id"`
	LineNumber     int                     `json:"line_number"`
	Raw            map[string]any          `json:"raw_data"`
	Normalized     map[string]any          `json:"normalized_data,omitempty"`
	Canonical      map[string]any          `json:"canonical_data,omitempty"`
	Status         RowStatus               `json:"status"`
	Violations     []Violation             `json:"violations"`
	Confidence     map[string]float64      `json:"confidence,omitempty"`
	Suggestions    map[string][]Suggestion `json:"suggestions,omitempty"`
	ReviewDecision string                  `json:"review_decision,omitempty"`
	ApprovedBy     string                  `json:"approved_by,omitempty"`
	ApprovedAt     *time.Time              `json:"approved_at,omitempty"`
	ReviewNote     string                  `json:"review_note,omitempty"`
	CreatedAt      time.Time               `json:"created_at"`
	UpdatedAt      time.Time               `json:"updated_at"`
}

// NewRowRecord returns a pending row for the given file line.
func NewRowRecord(fileID string, lineNumber int, raw map[string]any) RowRecord {
	return RowRecord{
		ID:         RowID(fileID, lineNumber),
		FileID:     fileID,
		LineNumber: lineNumber,
		Raw:        raw,
		Status:     RowStatusPending,
		Violations: []Violation{},
	}
}

// AddViolation appends a violation, keeping earlier ones intact.
func (r *RowRecord) AddViolation(v Violation) {
	r.Violations = append(r.Violations, v)
}

// Value returns the canonical value of field, falling back to the raw
// value. Null values count as absent.
func (r RowRecord) Value(field string) (any, bool) {
	if v, ok := r.Canonical[field]; ok && v != nil {
		return v, true
	}
	if v, ok := r.Raw[field]; ok && v != nil {
		return v, true
	}
	return nil, false
}
