package export

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/vendorflow/internal/domain"
	"github.com/rpattn/vendorflow/internal/logger"
	"github.com/rpattn/vendorflow/internal/repository"
)

// Store is the read surface exports need.
type Store interface {
	repository.FileRepository
	repository.RowRepository
}

// Service writes export files and batch reports from stored row state.
type Service struct {
	store     Store
	exportDir string
	reportDir string
	log       *logger.Logger
	now       func() time.Time
}

type Option func(*Service)

func WithExportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.exportDir = filepath.Clean(dir)
		}
	}
}

func WithReportDirectory(dir string) Option {
	return func(s *Service) {
		if strings.TrimSpace(dir) != "" {
			s.reportDir = filepath.Clean(dir)
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = logger.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(store Store, opts ...Option) *Service {
	service := &Service{
		store:     store,
		exportDir: "exports",
		reportDir: "reports",
		log:       logger.Nop(),
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// FileExport describes the artifacts written for one file.
type FileExport struct {
	FileID      string `json:"file_id"`
	TotalRows   int    `json:"total_rows"`
	ValidRows   int    `json:"valid_rows"`
	FlaggedRows int    `json:"flagged_rows"`
	ValidPath   string `json:"valid_path,omitempty"`
	FlaggedPath string `json:"flagged_path,omitempty"`
}

// ExportFile writes <stem>_valid.<ext> and <stem>_flagged.<ext> for a file.
// A status with no rows produces no artifact.
func (s *Service) ExportFile(ctx context.Context, fileID string, format Format) (FileExport, error) {
	exporter, err := ExporterFor(format)
	if err != nil {
		return FileExport{}, err
	}
	file, err := s.store.GetFile(ctx, fileID)
	if err != nil {
		return FileExport{}, err
	}
	rows, err := s.store.ListRowsByFile(ctx, fileID)
	if err != nil {
		return FileExport{}, err
	}

	result := FileExport{FileID: fileID, TotalRows: len(rows)}
	for _, row := range rows {
		switch row.Status {
		case domain.RowStatusValid:
			result.ValidRows++
		case domain.RowStatusFlagged:
			result.FlaggedRows++
		}
	}

	stem := fileStem(file)
	if result.ValidRows > 0 {
		path := filepath.Join(s.exportDir, fmt.Sprintf("%s_valid.%s", stem, format))
		if err := s.writeFile(path, func(w io.Writer) error {
			_, err := exporter.Export(w, rows, Options{Status: domain.RowStatusValid})
			return err
		}); err != nil {
			return result, err
		}
		result.ValidPath = path
	}
	if result.FlaggedRows > 0 {
		path := filepath.Join(s.exportDir, fmt.Sprintf("%s_flagged.%s", stem, format))
		if err := s.writeFile(path, func(w io.Writer) error {
			_, err := exporter.Export(w, rows, Options{Status: domain.RowStatusFlagged, IncludeMetadata: true, IncludeErrors: true})
			return err
		}); err != nil {
			return result, err
		}
		result.FlaggedPath = path
	}

	s.log.Info("file exported", "file_id", fileID, "format", format, "valid", result.ValidRows, "flagged", result.FlaggedRows)
	return result, nil
}

// ExportFlagged writes one review line per violation of every flagged row
// in the given files and returns the number of flagged rows written.
func (s *Service) ExportFlagged(ctx context.Context, fileIDs []string, path string) (int, error) {
	flagged, err := s.flaggedRows(ctx, fileIDs)
	if err != nil {
		return 0, err
	}
	err = s.writeFile(path, func(w io.Writer) error {
		return WriteReviewCSV(w, flagged)
	})
	if err != nil {
		return 0, err
	}
	return len(flagged), nil
}

// WriteReviewCSV writes row_id, file_id, line_number, field, rule, message
// and review_decision for every violation.
func WriteReviewCSV(w io.Writer, rows []domain.RowRecord) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"row_id", "file_id", "line_number", "field", "rule", "message", "review_decision"}); err != nil {
		return fmt.Errorf("write review header: %w", err)
	}
	for _, row := range rows {
		for _, v := range row.Violations {
			record := []string{row.ID, row.FileID, fmt.Sprint(row.LineNumber), v.Field(), v.Rule, v.Message, row.ReviewDecision}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("write review row: %w", err)
			}
		}
	}
	writer.Flush()
	return writer.Error()
}

func (s *Service) flaggedRows(ctx context.Context, fileIDs []string) ([]domain.RowRecord, error) {
	var flagged []domain.RowRecord
	for _, id := range fileIDs {
		rows, err := s.store.ListRowsByFile(ctx, id)
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			if row.Status == domain.RowStatusFlagged {
				flagged = append(flagged, row)
			}
		}
	}
	return flagged, nil
}

// writeFile writes through a temporary file and renames it into place so
// readers never see a partial artifact.
func (s *Service) writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure export directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.part")
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	tmpPath := tmp.Name()
	buffered := bufio.NewWriter(tmp)

	err = write(buffered)
	if err == nil {
		err = buffered.Flush()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("finalize %s: %w", filepath.Base(path), err)
	}
	return nil
}

func fileStem(file domain.FileRecord) string {
	name := strings.TrimSuffix(file.FileName, filepath.Ext(file.FileName))
	if stem := sanitizeFileComponent(name); stem != "" {
		return stem
	}
	if len(file.ID) >= 12 {
		return file.ID[:12]
	}
	return "export"
}

func sanitizeFileComponent(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	builder := strings.Builder{}
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z':
			builder.WriteRune(r)
		case r >= '0' && r <= '9':
			builder.WriteRune(r)
		case r == '-' || r == '_':
			builder.WriteRune(r)
		default:
			builder.WriteRune('-')
		}
	}
	return strings.Trim(builder.String(), "-")
}
