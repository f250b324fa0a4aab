package output

import (
	"bufio"
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// documentWriter buffers results and encodes them as one document on
// Flush: a single result is written bare, several as a list.
type documentWriter struct {
	w      *bufio.Writer
	items  []any
	encode func(w io.Writer, doc any) error
}

// Write buffers a single item.
func (d *documentWriter) Write(data any) error {
	d.items = append(d.items, data)
	return nil
}

// WriteAll buffers multiple items.
func (d *documentWriter) WriteAll(data []any) error {
	d.items = append(d.items, data...)
	return nil
}

// Flush encodes the buffered items. Flushing an empty writer is a no-op.
func (d *documentWriter) Flush() error {
	if len(d.items) == 0 {
		return d.w.Flush()
	}

	var doc any = d.items
	if len(d.items) == 1 {
		doc = d.items[0]
	}
	d.items = d.items[:0]

	if err := d.encode(d.w, doc); err != nil {
		return err
	}
	return d.w.Flush()
}

// Close flushes the writer.
func (d *documentWriter) Close() error {
	return d.Flush()
}

// JSONWriter writes JSON output.
type JSONWriter struct {
	documentWriter
}

// NewJSONWriter creates a JSON writer.
func NewJSONWriter(w io.Writer, pretty bool, indent string) *JSONWriter {
	return &JSONWriter{documentWriter{
		w: bufio.NewWriter(w),
		encode: func(w io.Writer, doc any) error {
			enc := json.NewEncoder(w)
			enc.SetEscapeHTML(false)
			if pretty {
				enc.SetIndent("", indent)
			}
			return enc.Encode(doc)
		},
	}}
}

// YAMLWriter writes YAML output.
type YAMLWriter struct {
	documentWriter
}

// NewYAMLWriter creates a YAML writer.
func NewYAMLWriter(w io.Writer) *YAMLWriter {
	return &YAMLWriter{documentWriter{
		w: bufio.NewWriter(w),
		encode: func(w io.Writer, doc any) error {
			enc := yaml.NewEncoder(w)
			enc.SetIndent(2)
			if err := enc.Encode(doc); err != nil {
				return err
			}
			return enc.Close()
		},
	}}
}

// JSONLWriter streams newline-delimited JSON, one result per line.
type JSONLWriter struct {
	w   *bufio.Writer
	enc *json.Encoder
}

// NewJSONLWriter creates a JSONL writer.
func NewJSONLWriter(w io.Writer) *JSONLWriter {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{w: bw, enc: enc}
}

// Write writes a single item as a JSON line.
func (j *JSONLWriter) Write(data any) error {
	if err := j.enc.Encode(data); err != nil {
		return err
	}
	return j.w.Flush()
}

// WriteAll writes multiple items as JSON lines.
func (j *JSONLWriter) WriteAll(data []any) error {
	for _, item := range data {
		if err := j.Write(item); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the buffer.
func (j *JSONLWriter) Flush() error {
	return j.w.Flush()
}

// Close flushes the writer.
func (j *JSONLWriter) Close() error {
	return j.Flush()
}
