package table

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ticketline/internal/admin/field"
	"ticketline/internal/admin/sorting"
)

// Status badges drawn for boolean active cells.
const (
	ActiveBadge   = "● active"
	InactiveBadge = "○ inactive"
)

// RenderOptions tune Render.
type RenderOptions struct {
	Resolver field.Resolver
	// Color paints status badges.
	Color bool
}

// Render writes the view as a text table.
func Render(w io.Writer, v View, opts RenderOptions) {
	if v.Phase == Loading && len(v.Rows) == 0 {
		fmt.Fprintln(w, "Loading…")
		return
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	header := make(table.Row, 0, len(v.Fields))
	for _, f := range v.Fields {
		header = append(header, HeaderLabel(f, v.Sort))
	}
	tw.AppendHeader(header)
	for _, rec := range v.Rows {
		row := make(table.Row, 0, len(v.Fields))
		for _, f := range v.Fields {
			row = append(row, cellText(opts.Resolver.Resolve(rec, f.Path), f.Path, opts.Color))
		}
		tw.AppendRow(row)
	}
	if len(v.Rows) == 0 {
		msg := "no records"
		if v.Err != nil {
			msg = "no records (load failed)"
		}
		tw.AppendFooter(table.Row{msg})
	}
	tw.Render()
}

// HeaderLabel decorates the label of the sorted column with its direction.
func HeaderLabel(f field.Descriptor, state sorting.State) string {
	if state.Path != f.Path {
		return f.Label
	}
	switch state.Direction {
	case sorting.Ascending:
		return f.Label + " ▲"
	case sorting.Descending:
		return f.Label + " ▼"
	default:
		return f.Label
	}
}

func cellText(c field.Cell, path string, color bool) string {
	if c.Kind != field.Bool || path != "active" {
		return c.String()
	}
	if c.Flag {
		if color {
			return text.FgGreen.Sprint(ActiveBadge)
		}
		return ActiveBadge
	}
	if color {
		return text.FgHiBlack.Sprint(InactiveBadge)
	}
	return InactiveBadge
}
