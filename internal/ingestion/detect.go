package ingestion

import (
	"bytes"
	"path/filepath"
	"strings"
)

// Format is a detected vendor file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatXLSX  Format = "xlsx"
	FormatXLS   Format = "xls"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatXML   Format = "xml"
	FormatPDF   Format = "pdf"
	FormatText  Format = "txt"
)

var extensionFormats = map[string]Format{
	".csv":    FormatCSV,
	".tsv":    FormatTSV,
	".xlsx":   FormatXLSX,
	".xls":    FormatXLS,
	".json":   FormatJSON,
	".jsonl":  FormatJSONL,
	".ndjson": FormatJSONL,
	".xml":    FormatXML,
	".pdf":    FormatPDF,
	".txt":    FormatText,
}

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// Detect guesses the format of a file from its name and the first bytes of
// its content. The extension wins when it is known.
func Detect(name string, head []byte) Format {
	if format, ok := extensionFormats[strings.ToLower(filepath.Ext(name))]; ok {
		return format
	}

	trimmed := bytes.TrimPrefix(head, byteOrderMark)
	switch {
	case bytes.HasPrefix(trimmed, zipMagic):
		return FormatXLSX
	case bytes.HasPrefix(trimmed, []byte("%PDF")):
		return FormatPDF
	}

	trimmed = bytes.TrimLeft(trimmed, " \t\r\n")
	switch {
	case bytes.HasPrefix(trimmed, []byte("<?xml")), bytes.HasPrefix(trimmed, []byte("<?XML")):
		return FormatXML
	case bytes.HasPrefix(trimmed, []byte("[")), bytes.HasPrefix(trimmed, []byte("{")):
		return FormatJSON
	}

	firstLine := trimmed
	if idx := bytes.IndexByte(firstLine, '\n'); idx >= 0 {
		firstLine = firstLine[:idx]
	}
	switch {
	case bytes.IndexByte(firstLine, '\t') >= 0:
		return FormatTSV
	case bytes.IndexByte(firstLine, ',') >= 0:
		return FormatCSV
	}
	return FormatText
}

// Extension returns the canonical file extension for the format.
func (f Format) Extension() string {
	return "." + string(f)
}
