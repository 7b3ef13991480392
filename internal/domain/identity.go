package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FileID returns the hex SHA-256 digest of the file content.
func FileID(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// FileIDFromReader hashes a stream without buffering it.
func FileIDFromReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// RowID combines a file id with the 1-based line number of the row.
func RowID(fileID string, lineNumber int) string {
	return fmt.Sprintf("%s_%d", fileID, lineNumber)
}

// NewBatchID returns batch_YYYYMMDD_HHMMSS_<8 hex chars>.
func NewBatchID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("batch_%s_%s", now.UTC().Format("20060102_150405"), suffix)
}
