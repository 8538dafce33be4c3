package table

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/admin/field"
	"ticketline/internal/admin/sorting"
	"ticketline/internal/domain"
)

var quiet = log.New(io.Discard, "", 0)

func staticFetch(v any) FetchFunc {
	return func(context.Context) (any, error) { return v, nil }
}

func TestController_HeaderClicksResortLoadedRows(t *testing.T) {
	c := New(Options{
		Fetch:  staticFetch([]domain.Record{{"id": 1, "name": "Acts A", "active": true}}),
		Fields: []field.Descriptor{field.D("Name", "name"), field.D("Active", "active")},
		Logger: quiet,
	})
	require.NoError(t, c.Reload(context.Background()))

	state := c.ClickHeader("name")
	assert.Equal(t, sorting.State{Path: "name", Direction: sorting.Ascending}, state)
	v := c.View()
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "Acts A", v.Rows[0]["name"])

	state = c.ClickHeader("active")
	assert.Equal(t, sorting.State{Path: "active", Direction: sorting.Ascending}, state)
	require.Len(t, c.View().Rows, 1)
}

func TestController_BooleanAscendingPutsFalseFirst(t *testing.T) {
	c := New(Options{
		Fetch: staticFetch([]domain.Record{
			{"id": 1, "active": true},
			{"id": 2, "active": false},
			{"id": 3, "active": true},
			{"id": 4, "active": false},
		}),
		Fields: []field.Descriptor{field.D("Active", "active")},
		Logger: quiet,
	})
	require.NoError(t, c.Reload(context.Background()))
	c.ClickHeader("active")
	rows := c.View().Rows
	got := []any{rows[0]["id"], rows[1]["id"], rows[2]["id"], rows[3]["id"]}
	assert.Equal(t, []any{2, 4, 1, 3}, got)
}

func TestController_SortDoesNotMutateFetched(t *testing.T) {
	data := []domain.Record{{"id": 2, "name": "b"}, {"id": 1, "name": "a"}}
	c := New(Options{Fetch: staticFetch(data), Logger: quiet})
	require.NoError(t, c.Reload(context.Background()))
	c.SetSort(sorting.State{Path: "name", Direction: sorting.Ascending})
	assert.Equal(t, "a", c.View().Rows[0]["name"])
	assert.Equal(t, 2, data[0]["id"])
	c.ClickHeader("name")
	c.ClickHeader("name")
	assert.Equal(t, sorting.None, c.View().Sort.Direction)
	assert.Equal(t, "b", c.View().Rows[0]["name"], "none restores fetch order")
}

func TestController_FetchErrorLeavesUsableEmptyTable(t *testing.T) {
	boom := errors.New("boom")
	logs := &bytes.Buffer{}
	c := New(Options{
		Fetch:  func(context.Context) (any, error) { return nil, boom },
		Logger: log.New(logs, "", 0),
	})
	err := c.Reload(context.Background())
	assert.ErrorIs(t, err, boom)
	v := c.View()
	assert.Equal(t, Loaded, v.Phase)
	assert.Empty(t, v.Rows)
	assert.ErrorIs(t, v.Err, boom)
	assert.Contains(t, logs.String(), "table fetch failed")
}

func TestController_NonSequenceResultIsEmpty(t *testing.T) {
	for _, v := range []any{
		map[string]any{"error": "nope"},
		[]byte(`{"status":500}`),
		"not json",
		42,
	} {
		c := New(Options{Fetch: staticFetch(v), Logger: quiet})
		require.NoError(t, c.Reload(context.Background()))
		view := c.View()
		assert.Equal(t, Loaded, view.Phase)
		assert.NotNil(t, view.Rows)
		assert.Empty(t, view.Rows)
	}
}

func TestController_RefreshSignalRefetches(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	c := New(Options{
		Fetch: func(context.Context) (any, error) {
			mu.Lock()
			defer mu.Unlock()
			calls++
			return []domain.Record{{"id": calls}}, nil
		},
		Logger: quiet,
	})
	sig := &Signal{}
	c.Mount(context.Background(), sig)
	c.Wait()
	assert.Equal(t, 1, c.View().Rows[0]["id"])

	sig.Raise()
	c.Wait()
	assert.Equal(t, 2, c.View().Rows[0]["id"])

	// Observing the same value again does nothing.
	c.Observe(context.Background(), sig.Value())
	c.Wait()
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()

	c.Unmount()
	sig.Raise()
	c.Wait()
	mu.Lock()
	assert.Equal(t, 2, calls, "unmounted controller ignores the signal")
	mu.Unlock()
}

// Two fetches race and the first one resolves last: the table keeps the second
// fetch's data.
func TestController_LaterFetchWins(t *testing.T) {
	started := make(chan int, 2)
	gates := []chan struct{}{make(chan struct{}), make(chan struct{})}
	payloads := [][]domain.Record{
		{{"id": 1, "name": "stale"}},
		{{"id": 2, "name": "fresh"}},
	}
	var mu sync.Mutex
	call := 0
	c := New(Options{
		Fetch: func(context.Context) (any, error) {
			mu.Lock()
			n := call
			call++
			mu.Unlock()
			started <- n
			<-gates[n]
			return payloads[n], nil
		},
		Logger: quiet,
	})
	sig := &Signal{}
	c.mu.Lock()
	c.seen = sig.Value()
	c.unwatch = sig.Subscribe(func(v uint64) { c.Observe(context.Background(), v) })
	c.mu.Unlock()

	sig.Raise()
	require.Equal(t, 0, <-started)
	sig.Raise()
	require.Equal(t, 1, <-started)

	close(gates[1])
	require.Eventually(t, func() bool { return c.View().Phase == Loaded }, time.Second, 5*time.Millisecond)
	close(gates[0])
	c.Wait()

	v := c.View()
	require.Len(t, v.Rows, 1)
	assert.Equal(t, "fresh", v.Rows[0]["name"])
}

func TestController_UnmountDropsLateResult(t *testing.T) {
	gate := make(chan struct{})
	c := New(Options{
		Fetch: func(context.Context) (any, error) {
			<-gate
			return []domain.Record{{"id": 1}}, nil
		},
		Logger: quiet,
	})
	c.Mount(context.Background(), nil)
	c.Unmount()
	close(gate)
	c.Wait()
	v := c.View()
	assert.Equal(t, Loading, v.Phase)
	assert.Empty(t, v.Rows)
}

func TestController_OnChange(t *testing.T) {
	var phases []Phase
	c := New(Options{
		Fetch:    staticFetch([]domain.Record{}),
		Logger:   quiet,
		OnChange: func(v View) { phases = append(phases, v.Phase) },
	})
	require.NoError(t, c.Reload(context.Background()))
	assert.Equal(t, []Phase{Loading, Loaded}, phases)
}

func TestDecodeList(t *testing.T) {
	assert.Len(t, DecodeList([]byte(`[{"id":1},{"id":2}]`)), 2)
	assert.Len(t, DecodeList([]byte(`{"items":[{"id":1}]}`)), 1)
	assert.Len(t, DecodeList([]byte(`{"content":[{"id":1},{"id":2},{"id":3}]}`)), 3)
	assert.Len(t, DecodeList([]byte(`[{"id":1}, 5, "x", null]`)), 1)
	assert.Empty(t, DecodeList([]byte(`{"message":"Unauthorized"}`)))
	assert.Empty(t, DecodeList([]byte(`oops`)))
	recs := DecodeList([]byte(`[{"id":7,"category":{"name":"Rock"}}]`))
	require.Len(t, recs, 1)
	assert.Equal(t, 7.0, recs[0]["id"])
	assert.Equal(t, "Rock", field.Resolve(recs[0], "category").Text)
}

func TestRender(t *testing.T) {
	v := View{
		Phase:  Loaded,
		Fields: []field.Descriptor{field.D("Name", "name"), field.D("Active", "active")},
		Rows: []domain.Record{
			{"name": "Acts A", "active": true},
			{"name": "Acts B", "active": false},
			{"name": "Acts C"},
		},
		Sort: sorting.State{Path: "name", Direction: sorting.Descending},
	}
	var buf bytes.Buffer
	Render(&buf, v, RenderOptions{})
	out := buf.String()
	assert.Contains(t, out, "NAME ▼")
	assert.Contains(t, out, ActiveBadge)
	assert.Equal(t, 1, strings.Count(out, InactiveBadge), "a record without the flag shows no badge")
	assert.True(t, strings.Index(out, "Acts A") < strings.Index(out, "Acts B"))

	buf.Reset()
	Render(&buf, View{Phase: Loaded, Fields: v.Fields}, RenderOptions{})
	assert.Contains(t, buf.String(), "NO RECORDS")
}
