package ingestion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// recordKeys are the object members searched for a row array when a JSON
// document is a single object.
var recordKeys = []string{"data", "records", "items", "rows"}

type jsonDecoder struct{}

// Decode accepts a top level array of objects, a single object wrapping such
// an array under one of recordKeys, or a stream of concatenated objects.
func (jsonDecoder) Decode(ctx context.Context, r io.Reader, chunkSize int, emit EmitFunc) error {
	reader := bufio.NewReader(r)
	if prefix, err := reader.Peek(len(byteOrderMark)); err == nil && bytes.Equal(prefix, byteOrderMark) {
		_, _ = reader.Discard(len(byteOrderMark))
	}

	dec := json.NewDecoder(reader)
	dec.UseNumber()
	chunks := newChunker(ctx, chunkSize, emit)

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read json: %w", err)
	}

	if delim, ok := tok.(json.Delim); ok && delim == '[' {
		if err := decodeJSONArray(dec, chunks); err != nil {
			return err
		}
		return chunks.flush()
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("failed to read json: unexpected top level value %v", tok)
	}

	first, err := decodeJSONObjectBody(dec)
	if err != nil {
		return err
	}

	if !dec.More() {
		for _, key := range recordKeys {
			if items, ok := first[key].([]any); ok {
				for i, item := range items {
					if err := chunks.add(jsonRecord(item, i+1)); err != nil {
						return err
					}
				}
				return chunks.flush()
			}
		}
	}

	if err := chunks.add(jsonRecord(first, 1)); err != nil {
		return err
	}
	for n := 2; dec.More(); n++ {
		var item any
		if err := dec.Decode(&item); err != nil {
			return fmt.Errorf("failed to read json value %d: %w", n, err)
		}
		if err := chunks.add(jsonRecord(item, n)); err != nil {
			return err
		}
	}
	return chunks.flush()
}

func decodeJSONArray(dec *json.Decoder, chunks *chunker) error {
	for n := 1; dec.More(); n++ {
		var item any
		if err := dec.Decode(&item); err != nil {
			return fmt.Errorf("failed to read json element %d: %w", n, err)
		}
		if err := chunks.add(jsonRecord(item, n)); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("failed to read json: %w", err)
	}
	return nil
}

// decodeJSONObjectBody reads the members of an object whose opening brace
// has already been consumed.
func decodeJSONObjectBody(dec *json.Decoder) (map[string]any, error) {
	out := make(map[string]any)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to read json: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("failed to read json: unexpected key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("failed to read json member %q: %w", key, err)
		}
		out[key] = value
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("failed to read json: %w", err)
	}
	return out, nil
}

func jsonRecord(item any, n int) Record {
	obj, ok := item.(map[string]any)
	if !ok {
		return Record{Fields: map[string]any{}, Err: fmt.Errorf("json value %d is not an object", n)}
	}
	fields := make(map[string]any, len(obj))
	for key, value := range obj {
		fields[key] = stringifyJSON(value)
	}
	return Record{Fields: fields}
}

// stringifyJSON keeps nulls and renders every other value as text so all
// decoders hand the pipeline the same value shapes.
func stringifyJSON(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(encoded)
	}
}

type jsonLinesDecoder struct{}

const maxJSONLine = 16 << 20

func (jsonLinesDecoder) Decode(ctx context.Context, r io.Reader, chunkSize int, emit EmitFunc) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxJSONLine)
	chunks := newChunker(ctx, chunkSize, emit)

	lineNumber := 0
	for scanner.Scan() {
		lineNumber++
		line := bytes.TrimSpace(scanner.Bytes())
		if lineNumber == 1 {
			line = bytes.TrimPrefix(line, byteOrderMark)
		}
		if len(line) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(line))
		dec.UseNumber()
		var item any
		if err := dec.Decode(&item); err != nil {
			rec := Record{Fields: map[string]any{}, Err: fmt.Errorf("invalid json on line %d: %w", lineNumber, err)}
			if err := chunks.add(rec); err != nil {
				return err
			}
			continue
		}
		if err := chunks.add(jsonRecord(item, lineNumber)); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read jsonl: %w", err)
	}
	return chunks.flush()
}

type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
	Nodes   []xmlNode  `xml:",any"`
}

type xmlDecoder struct{}

// Decode treats the children of the document root as rows. The element name
// of the first child fixes the row tag; siblings with other names are ignored.
func (xmlDecoder) Decode(ctx context.Context, r io.Reader, chunkSize int, emit EmitFunc) error {
	dec := xml.NewDecoder(r)
	chunks := newChunker(ctx, chunkSize, emit)

	depth := 0
	rowTag := ""
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read xml: %w", err)
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if depth != 1 {
				depth++
				continue
			}
			if rowTag == "" {
				rowTag = el.Name.Local
			}
			if el.Name.Local != rowTag {
				if err := dec.Skip(); err != nil {
					return fmt.Errorf("failed to read xml: %w", err)
				}
				continue
			}
			var node xmlNode
			if err := dec.DecodeElement(&node, &el); err != nil {
				return fmt.Errorf("failed to read xml row: %w", err)
			}
			if err := chunks.add(Record{Fields: flattenXML(node)}); err != nil {
				return err
			}
		case xml.EndElement:
			depth--
		}
	}
	return chunks.flush()
}

// flattenXML maps attributes and leaf elements of a row to fields. Nested
// elements use dotted names and repeated names get a numeric suffix.
func flattenXML(node xmlNode) map[string]any {
	fields := make(map[string]any)
	seen := make(map[string]int)
	put := func(name string, value string) {
		count := seen[name]
		seen[name] = count + 1
		if count > 0 {
			name = fmt.Sprintf("%s_%d", name, count+1)
		}
		fields[name] = value
	}

	var walk func(prefix string, n xmlNode)
	walk = func(prefix string, n xmlNode) {
		for _, attr := range n.Attrs {
			put(joinName(prefix, attr.Name.Local), attr.Value)
		}
		if len(n.Nodes) == 0 {
			if prefix == "" {
				if text := strings.TrimSpace(n.Text); text != "" {
					put("_text", text)
				}
				return
			}
			put(prefix, strings.TrimSpace(n.Text))
			return
		}
		for _, child := range n.Nodes {
			walk(joinName(prefix, child.XMLName.Local), child)
		}
	}
	walk("", node)
	return fields
}

func joinName(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}
