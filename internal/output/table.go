package output

import (
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTableWriter(t Tabular) table.Writer {
	w := table.NewWriter()
	w.SetStyle(table.StyleRounded)
	if t.Title != "" {
		w.SetTitle(t.Title)
	}
	w.AppendHeader(toRow(t.Header))
	for _, r := range t.Rows {
		w.AppendRow(toRow(r))
	}

	// The footer sits under the last column.
	if t.Footer != "" && len(t.Header) > 0 {
		footer := make(table.Row, len(t.Header))
		for i := range footer {
			footer[i] = ""
		}
		footer[len(footer)-1] = t.Footer
		w.AppendFooter(footer)
	}
	return w
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, cell := range cells {
		row[i] = cell
	}
	return row
}
