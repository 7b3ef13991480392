package domain

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileIDIsContentAddressed(t *testing.T) {
	content := []byte("sku,total\nA100,10\n")

	fromReader, err := FileIDFromReader(strings.NewReader(string(content)))
	require.NoError(t, err)
	assert.Equal(t, FileID(content), fromReader)
	assert.Len(t, fromReader, 64)
	assert.NotEqual(t, FileID(content), FileID([]byte("sku,total\nA100,11\n")))
}

func TestRowID(t *testing.T) {
	assert.Equal(t, "abc_3", RowID("abc", 3))
}

func TestNewBatchID(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.FixedZone("CET", 3600))
	id := NewBatchID(now)

	assert.Regexp(t, regexp.MustCompile(`^batch_20240309_130507_[0-9a-f]{8}$`), id)
	assert.NotEqual(t, id, NewBatchID(now))
}

func TestTallySkipsSkippedFiles(t *testing.T) {
	batch := BatchResult{
		TotalRows: 99,
		Files: []FileOutcome{
			{FileID: "a", RowCount: 3, ValidRows: 2, FlaggedRows: 1},
			{FileID: "b", Skipped: true, RowCount: 5, ValidRows: 5},
			{Path: "broken.pdf", Status: FileStatusFailed},
			{FileID: "c", RowCount: 2, ErrorRows: 2},
		},
	}
	batch.Tally()

	assert.Equal(t, 5, batch.TotalRows)
	assert.Equal(t, 2, batch.ValidRows)
	assert.Equal(t, 1, batch.FlaggedRows)
	assert.Equal(t, 2, batch.ErrorRows)
	assert.Equal(t, []string{"a", "b", "c"}, batch.FileIDs())
}
