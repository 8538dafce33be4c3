package entities

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ticketline/internal/admin/workflow"
	"ticketline/internal/domain"
)

type call struct {
	Method, Path string
	Body         any
}

type fakeTransport struct {
	mu       sync.Mutex
	calls    []call
	response []byte
	err      error
}

func (f *fakeTransport) Raw(_ context.Context, method, endpoint string, body any) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{method, endpoint, body})
	return f.response, f.err
}

func TestKindsCoversTenEntities(t *testing.T) {
	kinds := Kinds()
	assert.Equal(t, []string{
		"acts", "categories", "events", "notifications", "ratings",
		"roles", "tags", "ticket-categories", "tickets", "users",
	}, kinds)
	for _, k := range kinds {
		b, err := Lookup(k)
		require.NoError(t, err)
		assert.Equal(t, k, b.Kind)
		assert.NotEmpty(t, b.Fields, k)
		assert.True(t, b.HasField("active"), "%s lists active", k)
		assert.Contains(t, b.Routes.Item, "{id}")
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("venues")
	assert.ErrorIs(t, err, ErrUnknownKind)
	b, err := Lookup(" Users ")
	require.NoError(t, err)
	assert.Equal(t, "/users/all", b.Routes.List)
}

func TestRoutesPerKind(t *testing.T) {
	ft := &fakeTransport{response: []byte(`{"items":[{"id":1,"name":"Rock"}]}`)}
	api := NewAPI(ft)
	ctx := context.Background()
	users, _ := Lookup("users")
	cats, _ := Lookup("categories")

	recs, err := api.List(ctx, cats)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Rock", recs[0]["name"])

	require.NoError(t, api.Create(ctx, users, domain.Record{"email": "a@b.c"}))
	require.NoError(t, api.Update(ctx, users, "u 1", domain.Record{"email": "x@y.z"}))
	require.NoError(t, api.Delete(ctx, users, "u1"))
	require.NoError(t, api.Activate(ctx, cats, "9"))
	require.NoError(t, api.Deactivate(ctx, cats, "9"))

	got := make([]string, 0, len(ft.calls))
	for _, c := range ft.calls {
		got = append(got, c.Method+" "+c.Path)
	}
	assert.Equal(t, []string{
		"GET /categories/all",
		"POST /users/register",
		"PUT /users/u%201",
		"DELETE /users/u1",
		"PUT /categories/9/activate",
		"PUT /categories/9/deactivate",
	}, got)
}

func TestListTransportError(t *testing.T) {
	boom := errors.New("down")
	api := NewAPI(&fakeTransport{err: boom})
	tags, _ := Lookup("tags")
	_, err := api.List(context.Background(), tags)
	assert.ErrorIs(t, err, boom)
}

func TestFind(t *testing.T) {
	api := NewAPI(&fakeTransport{response: []byte(`[{"id":"a"},{"id":2}]`)})
	tags, _ := Lookup("tags")
	r, err := api.Find(context.Background(), tags, "2")
	require.NoError(t, err)
	assert.Equal(t, 2.0, r["id"])
	_, err = api.Find(context.Background(), tags, "zzz")
	assert.Error(t, err)
}

func TestWorkflowOverAPI(t *testing.T) {
	ft := &fakeTransport{}
	api := NewAPI(ft)
	events, _ := Lookup("events")
	w := workflow.New(workflow.Options{Binding: events.Workflow(api.Persistence(events))})

	require.NoError(t, w.OpenEdit(domain.Record{
		"id":       "e7",
		"title":    "Gig",
		"date":     "2024-07-01T20:00:00",
		"category": map[string]any{"id": 3.0, "name": "Rock"},
		"act":      map[string]any{"id": "a1", "name": "Band"},
		"active":   true,
	}))
	require.NoError(t, w.Submit(context.Background()))
	require.Len(t, ft.calls, 1)
	assert.Equal(t, "PUT", ft.calls[0].Method)
	assert.Equal(t, "/events/e7", ft.calls[0].Path)
	body, err := json.Marshal(ft.calls[0].Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e7","title":"Gig","date":"2024-07-01T20:00:00","categoryId":3,"actId":"a1","active":true}`, string(body))

	require.NoError(t, w.OpenToggle(domain.Record{"id": "e7", "active": true}))
	require.NoError(t, w.Submit(context.Background()))
	assert.Equal(t, "/events/e7/deactivate", ft.calls[1].Path)
}

func TestBindingRules(t *testing.T) {
	cases := []struct {
		kind  string
		draft domain.Record
		field string
	}{
		{"users", domain.Record{"firstName": "A", "lastName": "B", "email": "nope"}, "email"},
		{"users", domain.Record{"firstName": "A", "lastName": "B"}, "email"},
		{"ratings", domain.Record{"score": 9}, "score"},
		{"ticket-categories", domain.Record{"name": "VIP", "price": "12.345"}, "price"},
		{"roles", domain.Record{"name": "admin"}, "name"},
		{"events", domain.Record{"title": "x", "date": "tomorrow"}, "date"},
	}
	for _, tc := range cases {
		b, _ := Lookup(tc.kind)
		err := workflow.Validate(b.Fields, b.Rules, tc.draft)
		var verr *workflow.ValidationError
		require.ErrorAs(t, err, &verr, tc.kind)
		assert.Equal(t, tc.field, verr.Field, tc.kind)
	}

	ok := []struct {
		kind  string
		draft domain.Record
	}{
		{"users", domain.Record{"firstName": "A", "lastName": "B", "email": "a@b.co"}},
		{"ratings", domain.Record{"score": 4}},
		{"ticket-categories", domain.Record{"name": "VIP", "price": 49.5}},
		{"ticket-categories", domain.Record{"name": "Floor", "price": 1000000.0, "capacity": 1000000.0}},
		{"ticket-categories", domain.Record{"name": "Balcony", "price": 2500000.25, "capacity": json.Number("20000000")}},
		{"roles", domain.Record{"name": "EVENT_MANAGER"}},
	}
	for _, tc := range ok {
		b, _ := Lookup(tc.kind)
		assert.NoError(t, workflow.Validate(b.Fields, b.Rules, tc.draft), tc.kind)
	}
}
