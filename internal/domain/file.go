package domain

import "time"

// FileStatus captures where a file is in the ingestion lifecycle.
type FileStatus string

const (
	FileStatusPending    FileStatus = "PENDING"
	FileStatusProcessing FileStatus = "PROCESSING"
	FileStatusSuccess    FileStatus = "SUCCESS"
	FileStatusFailed     FileStatus = "FAILED"
)

// FileRecord tracks a single vendor file. The ID is derived from the file
// content, so renaming or moving the file never changes it.
type FileRecord struct {
	ID           string     `json:"id"`
	FileName     string     `json:"file_name"`
	Path         string     `json:"path"`
	FileType     string     `json:"file_type"`
	Vendor       string     `json:"vendor"`
	SizeBytes    int64      `json:"size_bytes"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at,omitempty"`
	Status       FileStatus `json:"status"`
	ArchivePath  string     `json:"archive_path,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RowCount     int        `json:"row_count"`
	ValidRows    int        `json:"valid_rows"`
	FlaggedRows  int        `json:"flagged_rows"`
	ErrorRows    int        `json:"error_rows"`
}

// Done reports whether the file finished processing successfully.
func (f FileRecord) Done() bool {
	return f.Status == FileStatusSuccess
}
