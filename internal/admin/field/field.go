// Package field turns loosely shaped entity records into display cells.
//
// Records reach the client flattened, nested or with precomputed display strings
// depending on which endpoint produced them, so resolution walks a fixed, ordered
// list of cases and degrades to an empty cell instead of failing.
package field

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"ticketline/internal/domain"
)

// Descriptor labels one displayable column.
type Descriptor struct {
	Label string
	Path  string
}

// D is shorthand for building descriptor lists.
func D(label, path string) Descriptor { return Descriptor{Label: label, Path: path} }

// CellKind tags the value a Cell carries.
type CellKind int

const (
	Text CellKind = iota
	Bool
	Number
)

// Cell is a resolved display value.
type Cell struct {
	Kind CellKind
	Text string
	Flag bool
	Num  float64
}

func TextCell(s string) Cell    { return Cell{Kind: Text, Text: s} }
func BoolCell(b bool) Cell      { return Cell{Kind: Bool, Flag: b} }
func NumberCell(n float64) Cell { return Cell{Kind: Number, Num: n} }

func (c Cell) String() string {
	switch c.Kind {
	case Bool:
		return strconv.FormatBool(c.Flag)
	case Number:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	default:
		return c.Text
	}
}

// DateLayout is the rendering used for date-like fields.
const DateLayout = "Jan 2, 2006, 15:04"

// Resolver resolves field paths against records.
type Resolver struct {
	// Location is the viewer's zone. Nil means time.Local.
	Location *time.Location
}

// Resolve returns the cell for path on record.
func (r Resolver) Resolve(record domain.Record, path string) Cell {
	switch {
	case path == "category":
		return TextCell(categoryName(record))
	case path == "tags":
		return TextCell(tagNames(record))
	case strings.Contains(path, "."):
		v, ok := walk(record, path)
		if !ok {
			return TextCell("")
		}
		return cellOf(v)
	case isDateField(path):
		return TextCell(r.formatDate(record[path]))
	case path == "active":
		if b, ok := record["active"].(bool); ok {
			return BoolCell(b)
		}
		return TextCell("")
	default:
		v, ok := record[path]
		if !ok {
			return TextCell("")
		}
		return cellOf(v)
	}
}

// Resolve uses a zero Resolver.
func Resolve(record domain.Record, path string) Cell {
	return Resolver{}.Resolve(record, path)
}

func categoryName(record domain.Record) string {
	if s, ok := record["categoryName"].(string); ok && s != "" {
		return s
	}
	for _, key := range []string{"category", "categoryInfo"} {
		if s, ok := nameOf(record[key]); ok {
			return s
		}
	}
	return "Unknown"
}

func tagNames(record domain.Record) string {
	if s, ok := record["tagNames"].(string); ok && s != "" {
		return s
	}
	var items []any
	switch v := record["tags"].(type) {
	case []any:
		items = v
	case []map[string]any:
		for _, m := range v {
			items = append(items, m)
		}
	case []domain.Record:
		for _, m := range v {
			items = append(items, m)
		}
	default:
		return ""
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := nameOf(item); ok {
			names = append(names, s)
		}
	}
	return strings.Join(names, ", ")
}

func nameOf(v any) (string, bool) {
	m, ok := asMap(v)
	if !ok {
		return "", false
	}
	s, ok := m["name"].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case domain.Record:
		return m, true
	default:
		return nil, false
	}
}

// walk follows a dotted path. Any missing intermediate value ends the walk.
func walk(record domain.Record, path string) (any, bool) {
	var cur any = map[string]any(record)
	for _, seg := range strings.Split(path, ".") {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}

func isDateField(path string) bool {
	return path == "createdDate" || path == "birthdate" || strings.Contains(strings.ToLower(path), "date")
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r Resolver) formatDate(raw any) string {
	loc := r.Location
	if loc == nil {
		loc = time.Local
	}
	switch v := raw.(type) {
	case nil:
		return "N/A"
	case string:
		if v == "" {
			return "N/A"
		}
		for _, layout := range dateLayouts {
			// Zone-less layouts are read in the viewer's zone.
			if t, err := time.ParseInLocation(layout, v, loc); err == nil {
				return t.In(loc).Format(DateLayout)
			}
		}
		return v
	case float64:
		return time.UnixMilli(int64(v)).In(loc).Format(DateLayout)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return time.UnixMilli(n).In(loc).Format(DateLayout)
		}
		return v.String()
	case time.Time:
		return v.In(loc).Format(DateLayout)
	default:
		return fmt.Sprint(v)
	}
}

func cellOf(v any) Cell {
	switch x := v.(type) {
	case nil:
		return TextCell("")
	case string:
		return TextCell(x)
	case bool:
		return BoolCell(x)
	case float64:
		return NumberCell(x)
	case float32:
		return NumberCell(float64(x))
	case int:
		return NumberCell(float64(x))
	case int64:
		return NumberCell(float64(x))
	case json.Number:
		if f, err := x.Float64(); err == nil && !math.IsInf(f, 0) {
			return NumberCell(f)
		}
		return TextCell(x.String())
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return TextCell(fmt.Sprint(x))
		}
		return TextCell(string(data))
	}
}
