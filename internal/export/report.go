package export

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rpattn/vendorflow/internal/domain"
)

const (
	topErrorCount = 5
	sampleCount   = 10
)

// Report summarises one batch for people reviewing its output.
type Report struct {
	BatchID           string               `json:"batch_id"`
	GeneratedAt       time.Time            `json:"generated_at"`
	Status            domain.BatchStatus   `json:"status"`
	Summary           ReportSummary        `json:"summary"`
	Files             []domain.FileOutcome `json:"files"`
	ErrorDistribution []RuleCount          `json:"error_distribution"`
	ErrorsByField     map[string]int       `json:"errors_by_field"`
	SampleFlaggedRows []FlaggedSample      `json:"sample_flagged_rows"`
	Errors            []string             `json:"errors"`
}

type ReportSummary struct {
	TotalRows       int     `json:"total_rows"`
	ValidRows       int     `json:"valid_rows"`
	FlaggedRows     int     `json:"flagged_rows"`
	ErrorRows       int     `json:"error_rows"`
	ValidPercentage float64 `json:"valid_percentage"`
}

type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

type FlaggedSample struct {
	RowID      string             `json:"row_id"`
	LineNumber int                `json:"line_number"`
	Violations []domain.Violation `json:"errors"`
	Canonical  map[string]any     `json:"canonical_data"`
}

// ReportPaths lists the files WriteReport produced.
type ReportPaths struct {
	JSON string `json:"report_json"`
	Text string `json:"report_text"`
}

// BuildReport aggregates a finished batch and its flagged rows.
func BuildReport(batch domain.BatchResult, flagged []domain.RowRecord, now time.Time) Report {
	report := Report{
		BatchID:     batch.ID,
		GeneratedAt: now,
		Status:      batch.Status,
		Summary: ReportSummary{
			TotalRows:       batch.TotalRows,
			ValidRows:       batch.ValidRows,
			FlaggedRows:     batch.FlaggedRows,
			ErrorRows:       batch.ErrorRows,
			ValidPercentage: percentage(batch.ValidRows, batch.TotalRows),
		},
		Files:             batch.Files,
		ErrorsByField:     make(map[string]int),
		SampleFlaggedRows: []FlaggedSample{},
		Errors:            batch.Errors,
	}
	if report.Files == nil {
		report.Files = []domain.FileOutcome{}
	}
	if report.Errors == nil {
		report.Errors = []string{}
	}

	byRule := make(map[string]int)
	for _, row := range flagged {
		for _, v := range row.Violations {
			byRule[v.Rule]++
			report.ErrorsByField[v.Field()]++
		}
		if len(report.SampleFlaggedRows) < sampleCount {
			report.SampleFlaggedRows = append(report.SampleFlaggedRows, FlaggedSample{
				RowID:      row.ID,
				LineNumber: row.LineNumber,
				Violations: row.Violations,
				Canonical:  row.Canonical,
			})
		}
	}

	report.ErrorDistribution = make([]RuleCount, 0, len(byRule))
	for rule, count := range byRule {
		report.ErrorDistribution = append(report.ErrorDistribution, RuleCount{Rule: rule, Count: count})
	}
	sort.Slice(report.ErrorDistribution, func(i, j int) bool {
		a, b := report.ErrorDistribution[i], report.ErrorDistribution[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Rule < b.Rule
	})
	if len(report.ErrorDistribution) > topErrorCount {
		report.ErrorDistribution = report.ErrorDistribution[:topErrorCount]
	}
	return report
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return decimal.NewFromInt(int64(part)).
		Mul(decimal.NewFromInt(100)).
		DivRound(decimal.NewFromInt(int64(total)), 2).
		InexactFloat64()
}

// WriteText renders the human readable report.
func (r Report) WriteText(w io.Writer) error {
	rule := strings.Repeat("=", 70)
	var b strings.Builder
	fmt.Fprintf(&b, "%s\nBATCH REPORT\n%s\n", rule, rule)
	fmt.Fprintf(&b, "Batch ID: %s\nGenerated: %s\nStatus: %s\n\n", r.BatchID, r.GeneratedAt.Format(time.RFC3339), r.Status)
	fmt.Fprintf(&b, "SUMMARY\n-------\n")
	fmt.Fprintf(&b, "Total Rows Processed: %d\n", r.Summary.TotalRows)
	fmt.Fprintf(&b, "Valid Rows: %d (%.1f%%)\n", r.Summary.ValidRows, r.Summary.ValidPercentage)
	fmt.Fprintf(&b, "Flagged Rows: %d\n", r.Summary.FlaggedRows)
	fmt.Fprintf(&b, "Error Rows: %d\n\n", r.Summary.ErrorRows)

	fmt.Fprintf(&b, "FILES\n-----\n")
	for _, f := range r.Files {
		line := fmt.Sprintf("  %s: %s (%d rows)", filepath.Base(f.Path), f.Status, f.RowCount)
		if f.Skipped {
			line += " skipped"
		}
		if f.Error != "" {
			line += " error: " + f.Error
		}
		b.WriteString(line + "\n")
	}

	fmt.Fprintf(&b, "\nTOP ERRORS\n----------\n")
	for _, rc := range r.ErrorDistribution {
		fmt.Fprintf(&b, "  %s: %d\n", rc.Rule, rc.Count)
	}

	fmt.Fprintf(&b, "\nERRORS BY FIELD\n---------------\n")
	fields := make([]string, 0, len(r.ErrorsByField))
	for field := range r.ErrorsByField {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(&b, "  %s: %d\n", field, r.ErrorsByField[field])
	}

	if len(r.Errors) > 0 {
		fmt.Fprintf(&b, "\nBATCH ERRORS\n------------\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "  %s\n", e)
		}
	}
	fmt.Fprintf(&b, "%s\n", rule)

	_, err := io.WriteString(w, b.String())
	return err
}

// WriteReport builds the report for a finished batch and writes
// <report_dir>/<batch id>/report.json and report.txt.
func (s *Service) WriteReport(ctx context.Context, batch domain.BatchResult) (ReportPaths, error) {
	flagged, err := s.flaggedRows(ctx, batch.FileIDs())
	if err != nil {
		return ReportPaths{}, err
	}
	report := BuildReport(batch, flagged, s.now())

	dir := filepath.Join(s.reportDir, batch.ID)
	paths := ReportPaths{
		JSON: filepath.Join(dir, "report.json"),
		Text: filepath.Join(dir, "report.txt"),
	}
	if err := s.writeFile(paths.JSON, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}); err != nil {
		return ReportPaths{}, err
	}
	if err := s.writeFile(paths.Text, report.WriteText); err != nil {
		return ReportPaths{}, err
	}
	s.log.Info("batch report written", "batch_id", batch.ID, "path", paths.JSON)
	return paths, nil
}
