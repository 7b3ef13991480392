package domain

import "time"

// BatchStatus summarises a run over a set of files.
type BatchStatus string

const (
	BatchStatusRunning        BatchStatus = "RUNNING"
	BatchStatusSuccess        BatchStatus = "SUCCESS"
	BatchStatusPartialSuccess BatchStatus = "PARTIAL_SUCCESS"
	BatchStatusFailed         BatchStatus = "FAILED"
)

// FileOutcome is the per-file line of a batch summary.
type FileOutcome struct {
	FileID      string     `json:"file_id,omitempty"`
	Path        string     `json:"path"`
	Status      FileStatus `json:"status"`
	Skipped     bool       `json:"skipped,omitempty"`
	RowCount    int        `json:"row_count"`
	ValidRows   int        `json:"valid_rows"`
	FlaggedRows int        `json:"flagged_rows"`
	ErrorRows   int        `json:"error_rows"`
	Error       string     `json:"error,omitempty"`
}

// BatchResult records one pipeline run. It is written once when the run
// starts and once when it finishes.
type BatchResult struct {
	ID          string        `json:"id"`
	Vendor      string        `json:"vendor"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Files       []FileOutcome `json:"files"`
	TotalRows   int           `json:"total_rows"`
	ValidRows   int           `json:"valid_rows"`
	FlaggedRows int           `json:"flagged_rows"`
	ErrorRows   int           `json:"error_rows"`
	Status      BatchStatus   `json:"status"`
	Errors      []string      `json:"errors"`
}

// FileIDs lists the ids of files that made it far enough to be identified.
func (b BatchResult) FileIDs() []string {
	ids := make([]string, 0, len(b.Files))
	for _, f := range b.Files {
		if f.FileID != "" {
			ids = append(ids, f.FileID)
		}
	}
	return ids
}

// Tally recomputes row totals from the file outcomes. Skipped files were
// counted by the run that processed them.
func (b *BatchResult) Tally() {
	b.TotalRows, b.ValidRows, b.FlaggedRows, b.ErrorRows = 0, 0, 0, 0
	for _, f := range b.Files {
		if f.Skipped {
			continue
		}
		b.TotalRows += f.RowCount
		b.ValidRows += f.ValidRows
		b.FlaggedRows += f.FlaggedRows
		b.ErrorRows += f.ErrorRows
	}
}

// Decision is a reviewer verdict on a flagged row.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// ReviewDecision is an audit entry written whenever a reviewer acts on a row.
type ReviewDecision struct {
	ID        string    `json:"id"`
	RowID     string    `json:"row_id"`
	Decision  Decision  `json:"decision"`
	Reviewer  string    `json:"reviewer"`
	Comment   string    `json:"comment,omitempty"`
	DecidedAt time.Time `json:"decided_at"`
}

// Suggestion is an advisory mapping candidate. It never affects verdicts.
type Suggestion struct {
	VendorField    string  `json:"vendor_field"`
	CanonicalField string  `json:"canonical_field"`
	Confidence     float64 `json:"confidence"`
	Rationale      string  `json:"rationale,omitempty"`
}
