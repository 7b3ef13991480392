package export

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/vendorflow/internal/domain"
)

// Format is an output serialization.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatXLSX  Format = "xlsx"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatXML   Format = "xml"
)

// ParseFormat accepts a format name. "excel" is an alias for xlsx.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "csv":
		return FormatCSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	case "json":
		return FormatJSON, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	case "xml":
		return FormatXML, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", name)
	}
}

// Options controls which rows and columns an exporter writes.
type Options struct {
	// Status keeps only rows with this status. Empty keeps all rows.
	Status domain.RowStatus
	// Fields selects canonical fields in order. Empty means every canonical
	// field present in the exported rows, sorted.
	Fields []string
	// IncludeMetadata adds _row_id, _line_number and _status.
	IncludeMetadata bool
	// IncludeErrors adds _errors as field:rule pairs joined by "|".
	IncludeErrors bool
}

// Exporter writes rows to w and returns how many rows it wrote.
type Exporter interface {
	Export(w io.Writer, rows []domain.RowRecord, opts Options) (int, error)
}

// ExporterFor returns the exporter for a format.
func ExporterFor(format Format) (Exporter, error) {
	switch format {
	case FormatCSV:
		return csvExporter{}, nil
	case FormatXLSX:
		return xlsxExporter{}, nil
	case FormatJSON:
		return jsonExporter{}, nil
	case FormatJSONL:
		return jsonExporter{lines: true}, nil
	case FormatXML:
		return xmlExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

const (
	columnRowID  = "_row_id"
	columnLine   = "_line_number"
	columnStatus = "_status"
	columnErrors = "_errors"
)

// table is the filtered, column-resolved view every exporter writes from.
type table struct {
	fields []string
	header []string
	rows   []domain.RowRecord
	opts   Options
}

func buildTable(rows []domain.RowRecord, opts Options) table {
	filtered := make([]domain.RowRecord, 0, len(rows))
	for _, row := range rows {
		if opts.Status == "" || row.Status == opts.Status {
			filtered = append(filtered, row)
		}
	}

	fields := opts.Fields
	if len(fields) == 0 {
		seen := make(map[string]bool)
		for _, row := range filtered {
			for key := range row.Canonical {
				if !seen[key] {
					seen[key] = true
					fields = append(fields, key)
				}
			}
		}
		sort.Strings(fields)
	}

	header := append([]string(nil), fields...)
	if opts.IncludeMetadata {
		header = append(header, columnRowID, columnLine, columnStatus)
	}
	if opts.IncludeErrors {
		header = append(header, columnErrors)
	}
	return table{fields: fields, header: header, rows: filtered, opts: opts}
}

// values returns the row's cells in header order.
func (t table) values(row domain.RowRecord) []any {
	out := make([]any, 0, len(t.header))
	for _, field := range t.fields {
		out = append(out, row.Canonical[field])
	}
	if t.opts.IncludeMetadata {
		out = append(out, row.ID, row.LineNumber, string(row.Status))
	}
	if t.opts.IncludeErrors {
		out = append(out, errorSummary(row.Violations))
	}
	return out
}

// object returns the row as a map keyed by header name. Selected fields
// absent from the row are left out.
func (t table) object(row domain.RowRecord) map[string]any {
	out := make(map[string]any, len(t.header))
	for _, field := range t.fields {
		if value, ok := row.Canonical[field]; ok {
			out[field] = value
		}
	}
	if t.opts.IncludeMetadata {
		out[columnRowID] = row.ID
		out[columnLine] = row.LineNumber
		out[columnStatus] = string(row.Status)
	}
	if t.opts.IncludeErrors && len(row.Violations) > 0 {
		out[columnErrors] = errorSummary(row.Violations)
	}
	return out
}

func errorSummary(violations []domain.Violation) string {
	parts := make([]string, 0, len(violations))
	for _, v := range violations {
		parts = append(parts, v.Field()+":"+v.Rule)
	}
	return strings.Join(parts, "|")
}

type csvExporter struct{}

func (csvExporter) Export(w io.Writer, rows []domain.RowRecord, opts Options) (int, error) {
	t := buildTable(rows, opts)
	writer := csv.NewWriter(w)
	if err := writer.Write(t.header); err != nil {
		return 0, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(t.header))
	for _, row := range t.rows {
		for i, value := range t.values(row) {
			record[i] = formatValue(value)
		}
		if err := writer.Write(record); err != nil {
			return 0, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return 0, fmt.Errorf("flush csv writer: %w", err)
	}
	return len(t.rows), nil
}

type xlsxExporter struct{}

const xlsxSheet = "Data"

func (xlsxExporter) Export(w io.Writer, rows []domain.RowRecord, opts Options) (int, error) {
	t := buildTable(rows, opts)
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return 0, fmt.Errorf("name sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(xlsxSheet)
	if err != nil {
		return 0, fmt.Errorf("open stream writer: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"366092"}},
	})
	if err != nil {
		return 0, fmt.Errorf("create header style: %w", err)
	}
	header := make([]any, len(t.header))
	for i, name := range t.header {
		header[i] = excelize.Cell{StyleID: headerStyle, Value: name}
	}
	if err := sw.SetRow("A1", header, excelize.RowOpts{Height: 18}); err != nil {
		return 0, fmt.Errorf("write xlsx header: %w", err)
	}

	for i, row := range t.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return 0, err
		}
		values := t.values(row)
		for j, value := range values {
			values[j] = xlsxValue(value)
		}
		if err := sw.SetRow(cell, values); err != nil {
			return 0, fmt.Errorf("write xlsx row: %w", err)
		}
	}
	if err := sw.Flush(); err != nil {
		return 0, fmt.Errorf("flush xlsx: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return 0, fmt.Errorf("write xlsx: %w", err)
	}
	return len(t.rows), nil
}

func xlsxValue(value any) any {
	switch v := value.(type) {
	case nil, string, int, int64, float64, bool:
		return v
	default:
		return formatValue(v)
	}
}

type jsonExporter struct {
	lines bool
}

func (e jsonExporter) Export(w io.Writer, rows []domain.RowRecord, opts Options) (int, error) {
	t := buildTable(rows, opts)
	enc := json.NewEncoder(w)
	if e.lines {
		for _, row := range t.rows {
			if err := enc.Encode(t.object(row)); err != nil {
				return 0, fmt.Errorf("write jsonl row: %w", err)
			}
		}
		return len(t.rows), nil
	}

	objects := make([]map[string]any, 0, len(t.rows))
	for _, row := range t.rows {
		objects = append(objects, t.object(row))
	}
	enc.SetIndent("", "  ")
	if err := enc.Encode(objects); err != nil {
		return 0, fmt.Errorf("write json: %w", err)
	}
	return len(t.rows), nil
}

type xmlExporter struct{}

// Export writes <data count=".." status=".."><row><field>value</field></row></data>.
func (xmlExporter) Export(w io.Writer, rows []domain.RowRecord, opts Options) (int, error) {
	t := buildTable(rows, opts)
	status := "mixed"
	if opts.Status != "" {
		status = string(opts.Status)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return 0, err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")

	root := xml.StartElement{
		Name: xml.Name{Local: "data"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "count"}, Value: fmt.Sprint(len(t.rows))},
			{Name: xml.Name{Local: "status"}, Value: status},
		},
	}
	if err := enc.EncodeToken(root); err != nil {
		return 0, fmt.Errorf("write xml: %w", err)
	}
	names := make([]string, len(t.header))
	for i, name := range t.header {
		names[i] = xmlName(name)
	}
	for _, row := range t.rows {
		rowEl := xml.StartElement{Name: xml.Name{Local: "row"}}
		if err := enc.EncodeToken(rowEl); err != nil {
			return 0, fmt.Errorf("write xml row: %w", err)
		}
		for i, value := range t.values(row) {
			if err := enc.EncodeElement(formatValue(value), xml.StartElement{Name: xml.Name{Local: names[i]}}); err != nil {
				return 0, fmt.Errorf("write xml field: %w", err)
			}
		}
		if err := enc.EncodeToken(rowEl.End()); err != nil {
			return 0, fmt.Errorf("write xml row: %w", err)
		}
	}
	if err := enc.EncodeToken(root.End()); err != nil {
		return 0, fmt.Errorf("write xml: %w", err)
	}
	if err := enc.Flush(); err != nil {
		return 0, fmt.Errorf("flush xml: %w", err)
	}
	return len(t.rows), nil
}

// xmlName turns a field name into a valid element name.
func xmlName(name string) string {
	var b strings.Builder
	for i, r := range name {
		switch {
		case unicode.IsLetter(r), r == '_':
			b.WriteRune(r)
		case unicode.IsDigit(r), r == '-', r == '.':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "field"
	}
	return b.String()
}

func formatValue(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case bool:
		if v {
			return "true"
		}
		return "false"
	case json.Number:
		return v.String()
	case float32, float64, int, int32, int64, uint, uint32, uint64:
		return fmt.Sprintf("%v", v)
	case []byte:
		return string(v)
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(encoded)
	default:
		return fmt.Sprintf("%v", v)
	}
}
