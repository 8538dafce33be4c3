package sorting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/domain"
)

func ids(records []domain.Record) []any {
	out := make([]any, len(records))
	for i, r := range records {
		out[i] = r["id"]
	}
	return out
}

func TestState_ClickCycle(t *testing.T) {
	var s State
	assert.Equal(t, None, s.Direction)

	s = s.Click("name")
	assert.Equal(t, State{Path: "name", Direction: Ascending}, s)
	s = s.Click("name")
	assert.Equal(t, State{Path: "name", Direction: Descending}, s)
	s = s.Click("name")
	assert.Equal(t, State{Path: "name", Direction: None}, s)
	s = s.Click("name")
	assert.Equal(t, State{Path: "name", Direction: Ascending}, s)
}

func TestState_ClickOtherColumnResets(t *testing.T) {
	for _, start := range []State{
		{Path: "name", Direction: Ascending},
		{Path: "name", Direction: Descending},
		{Path: "name", Direction: None},
	} {
		assert.Equal(t, State{Path: "active", Direction: Ascending}, start.Click("active"))
	}
}

func TestSort_NoneKeepsFetchOrder(t *testing.T) {
	in := []domain.Record{{"id": 3, "name": "c"}, {"id": 1, "name": "a"}, {"id": 2, "name": "b"}}
	out := Sort(in, State{Path: "name", Direction: None})
	assert.Equal(t, []any{3, 1, 2}, ids(out))
	out[0] = domain.Record{"id": 99}
	assert.Equal(t, 3, in[0]["id"], "input must not be mutated")
}

func TestSort_Strings(t *testing.T) {
	in := []domain.Record{
		{"id": 1, "name": "banana"},
		{"id": 2, "name": "Apple"},
		{"id": 3, "name": "cherry"},
		{"id": 4, "name": "apple"},
	}
	asc := Sort(in, State{Path: "name", Direction: Ascending})
	require.Len(t, asc, 4)
	// Collation is case-insensitive at the primary level, lowercase first at the tertiary.
	assert.Equal(t, []any{4, 2, 1, 3}, ids(asc))
	desc := Sort(in, State{Path: "name", Direction: Descending})
	assert.Equal(t, []any{3, 1, 2, 4}, ids(desc))
}

func TestSort_LocaleAwareAccents(t *testing.T) {
	in := []domain.Record{{"id": 1, "name": "Zoe"}, {"id": 2, "name": "Élodie"}, {"id": 3, "name": "Adam"}}
	out := Sort(in, State{Path: "name", Direction: Ascending})
	assert.Equal(t, []any{3, 2, 1}, ids(out))
}

func TestSort_NumbersAndBooleans(t *testing.T) {
	in := []domain.Record{
		{"id": 1, "price": 20.0, "active": true},
		{"id": 2, "price": 5.0, "active": false},
		{"id": 3, "price": 100.0, "active": true},
	}
	assert.Equal(t, []any{2, 1, 3}, ids(Sort(in, State{Path: "price", Direction: Ascending})))
	assert.Equal(t, []any{3, 1, 2}, ids(Sort(in, State{Path: "price", Direction: Descending})))
	assert.Equal(t, []any{2, 1, 3}, ids(Sort(in, State{Path: "active", Direction: Ascending})))
	assert.Equal(t, []any{1, 3, 2}, ids(Sort(in, State{Path: "active", Direction: Descending})))
}

func TestSort_StableUnderTies(t *testing.T) {
	in := []domain.Record{
		{"id": 1, "group": "b"},
		{"id": 2, "group": "a"},
		{"id": 3, "group": "b"},
		{"id": 4, "group": "a"},
		{"id": 5, "group": "b"},
	}
	assert.Equal(t, []any{2, 4, 1, 3, 5}, ids(Sort(in, State{Path: "group", Direction: Ascending})))
	// Descending swaps operands, so tied rows keep their input order too.
	assert.Equal(t, []any{1, 3, 5, 2, 4}, ids(Sort(in, State{Path: "group", Direction: Descending})))
}

func TestSort_MixedKinds(t *testing.T) {
	in := []domain.Record{
		{"id": 1, "seats": "12"},
		{"id": 2, "seats": 3.0},
		{"id": 3, "seats": "n/a"},
	}
	out := Sort(in, State{Path: "seats", Direction: Ascending})
	require.Len(t, out, 3)
	assert.Equal(t, 2, out[0]["id"], "numeric text compares numerically against numbers")
}
