package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for formats that have no decoder.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	byteOrderMark = []byte{0xEF, 0xBB, 0xBF}
)

// Record is one decoded data row. A record with Err set could not be decoded
// and is kept so the row still gets a line number and an ERROR verdict.
type Record struct {
	Fields map[string]any
	Err    error
}

// EmitFunc receives decoded records in chunks.
type EmitFunc func(records []Record) error

// Decoder turns a vendor file into records. Decoders stream where the format
// allows it and call emit with at most chunkSize records at a time.
type Decoder interface {
	Decode(ctx context.Context, r io.Reader, chunkSize int, emit EmitFunc) error
}

// DecoderFor returns the decoder registered for a format.
func DecoderFor(format Format) (Decoder, error) {
	switch format {
	case FormatCSV:
		return csvDecoder{comma: ','}, nil
	case FormatTSV:
		return csvDecoder{comma: '\t'}, nil
	case FormatXLSX:
		return xlsxDecoder{}, nil
	case FormatJSON:
		return jsonDecoder{}, nil
	case FormatJSONL:
		return jsonLinesDecoder{}, nil
	case FormatXML:
		return xmlDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

type chunker struct {
	ctx  context.Context
	size int
	buf  []Record
	emit EmitFunc
}

func newChunker(ctx context.Context, size int, emit EmitFunc) *chunker {
	if size <= 0 {
		size = 500
	}
	return &chunker{ctx: ctx, size: size, buf: make([]Record, 0, size), emit: emit}
}

func (c *chunker) add(rec Record) error {
	c.buf = append(c.buf, rec)
	if len(c.buf) >= c.size {
		return c.flush()
	}
	return nil
}

func (c *chunker) flush() error {
	if err := c.ctx.Err(); err != nil {
		return err
	}
	if len(c.buf) == 0 {
		return nil
	}
	out := c.buf
	c.buf = make([]Record, 0, c.size)
	return c.emit(out)
}

func sanitizeHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	seen := make(map[string]int)

	for idx, value := range raw {
		name := strings.TrimSpace(value)
		if name == "" {
			name = fmt.Sprintf("column_%d", idx+1)
		}

		base := name
		count := seen[base]
		if count > 0 {
			name = fmt.Sprintf("%s_%d", base, count+1)
		}
		seen[base] = count + 1

		headers[idx] = name
	}

	return headers
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func rowFields(headers []string, row []string) map[string]any {
	fields := make(map[string]any, len(headers))
	for i, name := range headers {
		if i < len(row) {
			fields[name] = row[i]
		} else {
			fields[name] = ""
		}
	}
	return fields
}
