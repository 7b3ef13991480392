package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

type csvDecoder struct {
	comma rune
}

func (d csvDecoder) Decode(ctx context.Context, r io.Reader, chunkSize int, emit EmitFunc) error {
	reader := bufio.NewReader(r)
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = d.comma
	csvReader.TrimLeadingSpace = true
	csvReader.FieldsPerRecord = -1
	if d.comma == '\t' {
		csvReader.LazyQuotes = true
	}

	chunks := newChunker(ctx, chunkSize, emit)
	var headers []string
	for {
		row, err := csvReader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return fmt.Errorf("failed to read csv: %w", err)
			}
			if headers == nil {
				return fmt.Errorf("failed to read csv header: %w", err)
			}
			if err := chunks.add(Record{Fields: map[string]any{}, Err: err}); err != nil {
				return err
			}
			continue
		}
		if blankRow(row) {
			continue
		}
		if headers == nil {
			headers = sanitizeHeaders(row)
			continue
		}
		if err := chunks.add(Record{Fields: rowFields(headers, row)}); err != nil {
			return err
		}
	}
	return chunks.flush()
}

type xlsxDecoder struct{}

// Decode reads the first sheet. The first non-blank row is the header.
func (xlsxDecoder) Decode(ctx context.Context, r io.Reader, chunkSize int, emit EmitFunc) error {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return fmt.Errorf("failed to open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return errors.New("excel file has no sheets")
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		return fmt.Errorf("failed to read rows from xlsx: %w", err)
	}
	defer func() { _ = rows.Close() }()

	chunks := newChunker(ctx, chunkSize, emit)
	var headers []string
	for rows.Next() {
		row, err := rows.Columns()
		if err != nil {
			if headers == nil {
				return fmt.Errorf("failed to read xlsx header: %w", err)
			}
			if err := chunks.add(Record{Fields: map[string]any{}, Err: err}); err != nil {
				return err
			}
			continue
		}
		if blankRow(row) {
			continue
		}
		if headers == nil {
			headers = sanitizeHeaders(row)
			continue
		}
		if err := chunks.add(Record{Fields: rowFields(headers, row)}); err != nil {
			return err
		}
	}
	if err := rows.Error(); err != nil {
		return fmt.Errorf("failed to iterate xlsx rows: %w", err)
	}
	return chunks.flush()
}
