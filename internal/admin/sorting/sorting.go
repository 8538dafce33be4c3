// Package sorting orders entity records by a resolved column with a tri-state
// direction (none, ascending, descending).
package sorting

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"ticketline/internal/admin/field"
	"ticketline/internal/domain"
)

// Direction of a column sort.
type Direction int

const (
	None Direction = iota
	Ascending
	Descending
)

func (d Direction) String() string {
	switch d {
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return "none"
	}
}

// State is the active sort column and direction.
type State struct {
	Path      string
	Direction Direction
}

// Click returns the state after a header click on path. The same column cycles
// ascending, descending, none; another column starts at ascending.
func (s State) Click(path string) State {
	if path != s.Path {
		return State{Path: path, Direction: Ascending}
	}
	switch s.Direction {
	case None:
		return State{Path: path, Direction: Ascending}
	case Ascending:
		return State{Path: path, Direction: Descending}
	default:
		return State{Path: path, Direction: None}
	}
}

// Active reports whether the state orders anything.
func (s State) Active() bool {
	return s.Path != "" && s.Direction != None
}

// Engine sorts records using a resolver and a collation language.
type Engine struct {
	Resolver field.Resolver
	Language language.Tag
}

// Sort returns a new slice ordered by state. Input order is kept for ties and when
// the state is inactive.
func (e Engine) Sort(records []domain.Record, state State) []domain.Record {
	out := make([]domain.Record, len(records))
	copy(out, records)
	if !state.Active() {
		return out
	}
	tag := e.Language
	if tag == language.Und {
		tag = language.English
	}
	// Collators keep internal buffers, so each call gets its own.
	col := collate.New(tag)
	keys := make([]field.Cell, len(out))
	for i, r := range out {
		keys[i] = e.Resolver.Resolve(r, state.Path)
	}
	idx := make([]int, len(out))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool {
		a, b := keys[idx[i]], keys[idx[j]]
		if state.Direction == Descending {
			a, b = b, a
		}
		return compare(col, a, b) < 0
	})
	sorted := make([]domain.Record, len(out))
	for i, k := range idx {
		sorted[i] = out[k]
	}
	return sorted
}

// Sort uses a zero Engine.
func Sort(records []domain.Record, state State) []domain.Record {
	return Engine{}.Sort(records, state)
}

func compare(col *collate.Collator, a, b field.Cell) int {
	if a.Kind == field.Text && b.Kind == field.Text {
		return col.CompareString(a.Text, b.Text)
	}
	x, y := number(a), number(b)
	switch {
	case math.IsNaN(x) || math.IsNaN(y):
		return 0
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func number(c field.Cell) float64 {
	switch c.Kind {
	case field.Number:
		return c.Num
	case field.Bool:
		if c.Flag {
			return 1
		}
		return 0
	default:
		s := strings.TrimSpace(c.Text)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	}
}
