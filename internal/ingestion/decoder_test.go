package ingestion

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func decodeAll(t *testing.T, format Format, data []byte, chunkSize int) ([]Record, int) {
	t.Helper()
	dec, err := DecoderFor(format)
	if err != nil {
		t.Fatalf("decoder for %s: %v", format, err)
	}
	var records []Record
	calls := 0
	err = dec.Decode(context.Background(), bytes.NewReader(data), chunkSize, func(chunk []Record) error {
		calls++
		records = append(records, chunk...)
		return nil
	})
	if err != nil {
		t.Fatalf("decode %s: %v", format, err)
	}
	return records, calls
}

func TestDetect(t *testing.T) {
	cases := []struct {
		name string
		head string
		want Format
	}{
		{"orders.CSV", "", FormatCSV},
		{"orders.tsv", "", FormatTSV},
		{"feed.ndjson", "", FormatJSONL},
		{"upload", "PK\x03\x04rest", FormatXLSX},
		{"upload", "%PDF-1.7", FormatPDF},
		{"upload", "  <?xml version=\"1.0\"?>", FormatXML},
		{"upload", "[{\"a\":1}]", FormatJSON},
		{"upload", "a\tb\n1\t2", FormatTSV},
		{"upload", "a,b\n1,2", FormatCSV},
		{"upload", "hello", FormatText},
	}
	for _, tc := range cases {
		if got := Detect(tc.name, []byte(tc.head)); got != tc.want {
			t.Fatalf("Detect(%q, %q) = %s, want %s", tc.name, tc.head, got, tc.want)
		}
	}
}

func TestDecoderForUnsupported(t *testing.T) {
	for _, format := range []Format{FormatPDF, FormatXLS, FormatText} {
		if _, err := DecoderFor(format); !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("expected ErrUnsupportedFormat for %s, got %v", format, err)
		}
	}
}

func TestCSVDecoderStripsBOMAndDedupesHeaders(t *testing.T) {
	data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Item Code,qty,qty,\nA100,2,3,x\n\n,,,\nB200,5\n")...)

	records, _ := decodeAll(t, FormatCSV, data, 10)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0].Fields
	if first["Item Code"] != "A100" || first["qty"] != "2" || first["qty_2"] != "3" || first["column_4"] != "x" {
		t.Fatalf("unexpected first record: %#v", first)
	}
	if records[1].Fields["qty_2"] != "" {
		t.Fatalf("expected short row to be padded, got %#v", records[1].Fields)
	}
}

func TestCSVDecoderChunks(t *testing.T) {
	var b strings.Builder
	b.WriteString("id\n")
	for i := 0; i < 7; i++ {
		b.WriteString("x\n")
	}

	records, calls := decodeAll(t, FormatCSV, []byte(b.String()), 3)
	if len(records) != 7 {
		t.Fatalf("expected 7 records, got %d", len(records))
	}
	if calls != 3 {
		t.Fatalf("expected 3 chunks, got %d", calls)
	}
}

func TestTSVDecoder(t *testing.T) {
	records, _ := decodeAll(t, FormatTSV, []byte("sku\tprice\nA1\t9.50\n"), 10)
	if len(records) != 1 || records[0].Fields["price"] != "9.50" {
		t.Fatalf("unexpected records: %#v", records)
	}
}

func TestJSONDecoderArray(t *testing.T) {
	data := `[{"sku":"A1","qty":3,"price":1.5,"active":true,"note":null,"tags":["a"]}, 7]`

	records, _ := decodeAll(t, FormatJSON, []byte(data), 10)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	fields := records[0].Fields
	if fields["qty"] != "3" || fields["price"] != "1.5" || fields["active"] != "true" {
		t.Fatalf("expected scalars stringified, got %#v", fields)
	}
	if v, ok := fields["note"]; !ok || v != nil {
		t.Fatalf("expected null to stay nil, got %#v", v)
	}
	if fields["tags"] != `["a"]` {
		t.Fatalf("expected nested value encoded, got %#v", fields["tags"])
	}
	if records[1].Err == nil {
		t.Fatalf("expected non-object element to carry an error")
	}
}

func TestJSONDecoderWrappedObject(t *testing.T) {
	data := `{"meta":{"count":2},"records":[{"sku":"A1"},{"sku":"B2"}]}`

	records, _ := decodeAll(t, FormatJSON, []byte(data), 10)
	if len(records) != 2 || records[1].Fields["sku"] != "B2" {
		t.Fatalf("unexpected records: %#v", records)
	}
}

func TestJSONDecoderConcatenatedObjects(t *testing.T) {
	data := "{\"sku\":\"A1\"}\n{\"sku\":\"B2\"}\n"

	records, _ := decodeAll(t, FormatJSON, []byte(data), 10)
	if len(records) != 2 || records[0].Fields["sku"] != "A1" {
		t.Fatalf("unexpected records: %#v", records)
	}
}

func TestJSONLinesDecoderKeepsInvalidLines(t *testing.T) {
	data := "{\"sku\":\"A1\"}\n\nnot json\n{\"sku\":\"C3\"}\n"

	records, _ := decodeAll(t, FormatJSONL, []byte(data), 10)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1].Err == nil || !strings.Contains(records[1].Err.Error(), "line 3") {
		t.Fatalf("expected decode error for line 3, got %v", records[1].Err)
	}
	if records[2].Fields["sku"] != "C3" {
		t.Fatalf("unexpected last record: %#v", records[2].Fields)
	}
}

func TestXMLDecoder(t *testing.T) {
	data := `<?xml version="1.0"?>
<orders>
  <order id="1"><sku>A1</sku><qty>2</qty><ship><city>Oslo</city></ship></order>
  <note>ignored</note>
  <order id="2"><sku>B2</sku><qty>5</qty></order>
</orders>`

	records, _ := decodeAll(t, FormatXML, []byte(data), 10)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	first := records[0].Fields
	if first["id"] != "1" || first["sku"] != "A1" || first["ship.city"] != "Oslo" {
		t.Fatalf("unexpected first record: %#v", first)
	}
}

func TestXLSXDecoder(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]any{{"sku", "qty"}, {"A1", 2}, {"B2", 4}}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write xlsx: %v", err)
	}

	records, _ := decodeAll(t, FormatXLSX, buf.Bytes(), 10)
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[1].Fields["sku"] != "B2" || records[1].Fields["qty"] != "4" {
		t.Fatalf("unexpected record: %#v", records[1].Fields)
	}
}
