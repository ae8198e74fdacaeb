package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnKind int

const (
	kindText columnKind = iota
	// kindCount is a right-aligned number.
	kindCount
	// kindBytes is a right-aligned byte size rendered in IEC units.
	kindBytes
)

type column struct {
	title string
	kind  columnKind
}

func textCol(title string) column  { return column{title: title, kind: kindText} }
func countCol(title string) column { return column{title: title, kind: kindCount} }
func bytesCol(title string) column { return column{title: title, kind: kindBytes} }

// tableView collects rows of typed cells for a rounded go-pretty table.
// Byte columns accept any integer type; other cells print with fmt.
type tableView struct {
	columns []column
	rows    []table.Row
	footer  table.Row
}

func newTable(columns ...column) *tableView {
	return &tableView{columns: columns}
}

// add appends a row. Missing trailing cells render empty.
func (t *tableView) add(cells ...any) {
	t.rows = append(t.rows, t.row(cells))
}

// total sets the footer row, formatted like the body.
func (t *tableView) total(cells ...any) {
	t.footer = t.row(cells)
}

func (t *tableView) row(cells []any) table.Row {
	r := make(table.Row, len(t.columns))
	for i := range r {
		if i < len(cells) && cells[i] != nil {
			r[i] = cells[i]
		} else {
			r[i] = ""
		}
	}
	return r
}

func (t *tableView) render() string {
	if len(t.columns) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.Style().Format.Footer = text.FormatDefault

	header := make(table.Row, len(t.columns))
	configs := make([]table.ColumnConfig, len(t.columns))
	for i, c := range t.columns {
		header[i] = c.title
		configs[i] = table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft, AlignFooter: text.AlignLeft}
		switch c.kind {
		case kindCount:
			configs[i].Align = text.AlignRight
			configs[i].AlignFooter = text.AlignRight
		case kindBytes:
			configs[i].Align = text.AlignRight
			configs[i].AlignFooter = text.AlignRight
			configs[i].Transformer = byteCell
			configs[i].TransformerFooter = byteCell
		default:
			configs[i].Align = text.AlignLeft
		}
	}
	tw.AppendHeader(header)
	tw.AppendRows(t.rows)
	if t.footer != nil {
		tw.AppendFooter(t.footer)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// byteCell renders integer sizes with humanize; anything else, such as a
// "-" placeholder, prints as is.
func byteCell(v any) string {
	switch n := v.(type) {
	case uint64:
		return humanize.IBytes(n)
	case uint32:
		return humanize.IBytes(uint64(n))
	case int64:
		if n >= 0 {
			return humanize.IBytes(uint64(n))
		}
	case int:
		if n >= 0 {
			return humanize.IBytes(uint64(n))
		}
	}
	return fmt.Sprint(v)
}
