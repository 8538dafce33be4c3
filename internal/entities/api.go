package entities

import (
	"context"
	"fmt"
	"net/http"

	"ticketline/internal/admin/table"
	"ticketline/internal/admin/workflow"
	"ticketline/internal/domain"
)

// Transport is the gateway surface the API needs.
type Transport interface {
	Raw(ctx context.Context, method, endpoint string, body any) ([]byte, error)
}

// API performs entity operations for any binding.
type API struct {
	transport Transport
}

func NewAPI(t Transport) *API {
	return &API{transport: t}
}

// List fetches the collection. Error envelopes decode to an empty list.
func (a *API) List(ctx context.Context, b Binding) ([]domain.Record, error) {
	data, err := a.transport.Raw(ctx, http.MethodGet, b.Routes.List, nil)
	if err != nil {
		return nil, err
	}
	return table.DecodeList(data), nil
}

// Find lists the collection and picks the record with id.
func (a *API) Find(ctx context.Context, b Binding, id string) (domain.Record, error) {
	records, err := a.List(ctx, b)
	if err != nil {
		return nil, err
	}
	for _, r := range records {
		if r.ID() == id {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%s %s not found", b.Name, id)
}

func (a *API) Create(ctx context.Context, b Binding, draft domain.Record) error {
	_, err := a.transport.Raw(ctx, http.MethodPost, b.Routes.Create, draft)
	return err
}

func (a *API) Update(ctx context.Context, b Binding, id string, draft domain.Record) error {
	_, err := a.transport.Raw(ctx, http.MethodPut, b.Routes.ItemPath(id), draft)
	return err
}

func (a *API) Delete(ctx context.Context, b Binding, id string) error {
	_, err := a.transport.Raw(ctx, http.MethodDelete, b.Routes.ItemPath(id), nil)
	return err
}

func (a *API) Activate(ctx context.Context, b Binding, id string) error {
	_, err := a.transport.Raw(ctx, http.MethodPut, b.Routes.ItemPath(id)+"/activate", nil)
	return err
}

func (a *API) Deactivate(ctx context.Context, b Binding, id string) error {
	_, err := a.transport.Raw(ctx, http.MethodPut, b.Routes.ItemPath(id)+"/deactivate", nil)
	return err
}

// Fetch adapts List to a table fetch function.
func (a *API) Fetch(b Binding) table.FetchFunc {
	return func(ctx context.Context) (any, error) {
		return a.List(ctx, b)
	}
}

// Persistence adapts the API to workflow callbacks for b.
func (a *API) Persistence(b Binding) workflow.Persistence {
	return workflow.Persistence{
		Create: func(ctx context.Context, draft domain.Record) error {
			return a.Create(ctx, b, draft)
		},
		Update: func(ctx context.Context, original, draft domain.Record) error {
			id := original.ID()
			if id == "" {
				id = draft.ID()
			}
			return a.Update(ctx, b, id, draft)
		},
		Activate: func(ctx context.Context, target domain.Record) error {
			return a.Activate(ctx, b, target.ID())
		},
		Deactivate: func(ctx context.Context, target domain.Record) error {
			return a.Deactivate(ctx, b, target.ID())
		},
		Delete: func(ctx context.Context, target domain.Record) error {
			return a.Delete(ctx, b, target.ID())
		},
	}
}
