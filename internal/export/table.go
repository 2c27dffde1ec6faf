package export

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
)

// TableSink renders the export as a table once closed.
type TableSink struct {
	t table.Writer
}

func NewTableSink(out io.Writer) *TableSink {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(out)
	return &TableSink{t: t}
}

func toRow(fields []string) table.Row {
	row := make(table.Row, len(fields))
	for i, f := range fields {
		row[i] = f
	}
	return row
}

func (s *TableSink) WriteHeader(columns []string) error {
	s.t.AppendHeader(toRow(columns))
	return nil
}

func (s *TableSink) WriteRow(fields []string) error {
	s.t.AppendRow(toRow(fields))
	return nil
}

func (s *TableSink) Close() error {
	s.t.Render()
	return nil
}
