package output

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// ErrNotTabular is returned when a table is asked to render a value that
// does not implement Tabular.
var ErrNotTabular = errors.New("value cannot be shown as a table")

// TableWriter renders Tabular values as aligned columns. Each Write is its
// own table, separated from the previous one by a blank line.
type TableWriter struct {
	w       io.Writer
	written int
}

// NewTableWriter creates a table writer.
func NewTableWriter(w io.Writer) *TableWriter {
	return &TableWriter{w: w}
}

// Write renders one table.
func (t *TableWriter) Write(data any) error {
	tab, ok := data.(Tabular)
	if !ok {
		return fmt.Errorf("%w: %T", ErrNotTabular, data)
	}

	if t.written > 0 {
		if _, err := io.WriteString(t.w, "\n"); err != nil {
			return err
		}
	}
	t.written++

	tw := tabwriter.NewWriter(t.w, 0, 0, 2, ' ', 0)
	if header := tab.Header(); len(header) > 0 {
		if _, err := fmt.Fprintln(tw, strings.ToUpper(strings.Join(header, "\t"))); err != nil {
			return err
		}
	}
	for _, row := range tab.Rows() {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// WriteAll renders each value as its own table.
func (t *TableWriter) WriteAll(data []any) error {
	for _, item := range data {
		if err := t.Write(item); err != nil {
			return err
		}
	}
	return nil
}

// Flush is a no-op; tables are written as they arrive.
func (t *TableWriter) Flush() error { return nil }

// Close is a no-op.
func (t *TableWriter) Close() error { return nil }
