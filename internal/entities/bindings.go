// Package entities declares the ten managed entity kinds: their routes, table
// columns, draft defaults, relation flattening and client-side rules.
package entities

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"ticketline/internal/admin/field"
	"ticketline/internal/admin/workflow"
	"ticketline/internal/domain"
)

// ErrUnknownKind is returned by Lookup for an unregistered kind.
var ErrUnknownKind = errors.New("unknown entity kind")

// Routes are API paths relative to the API prefix. Item contains "{id}".
type Routes struct {
	List   string
	Create string
	Item   string
}

// ItemPath substitutes id into the item route.
func (r Routes) ItemPath(id string) string {
	return strings.ReplaceAll(r.Item, "{id}", url.PathEscape(id))
}

// Binding describes one entity kind.
type Binding struct {
	Kind      string
	Name      string
	Routes    Routes
	Fields    []field.Descriptor
	Defaults  domain.Record
	Relations map[string]string
	Rules     []workflow.Rule
}

// Workflow returns the workflow binding with persistence supplied by p.
func (b Binding) Workflow(p workflow.Persistence) workflow.Binding {
	return workflow.Binding{
		Name:        b.Name,
		Fields:      b.Fields,
		Defaults:    b.Defaults,
		Relations:   b.Relations,
		Rules:       b.Rules,
		Persistence: p,
	}
}

// HasField reports whether path is one of the table columns.
func (b Binding) HasField(path string) bool {
	for _, f := range b.Fields {
		if f.Path == path {
			return true
		}
	}
	return false
}

const (
	emailPattern = `^[^@\s]+@[^@\s]+\.[^@\s]+$`
	datePattern  = `^\d{4}-\d{2}-\d{2}`
	moneyPattern = `^\d+(\.\d{1,2})?$`
)

func routes(base string) Routes {
	return Routes{List: base, Create: base, Item: base + "/{id}"}
}

var registry = map[string]Binding{
	"users": {
		Kind:   "users",
		Name:   "User",
		Routes: Routes{List: "/users/all", Create: "/users/register", Item: "/users/{id}"},
		Fields: []field.Descriptor{
			field.D("First name", "firstName"),
			field.D("Last name", "lastName"),
			field.D("Email", "email"),
			field.D("Role", "role.name"),
			field.D("Country", "country"),
			field.D("Birthdate", "birthdate"),
			field.D("Created", "createdDate"),
			field.D("Active", "active"),
		},
		Defaults:  domain.Record{"active": true},
		Relations: map[string]string{"role": "roleId"},
		Rules: []workflow.Rule{
			workflow.Required("firstName"),
			workflow.Required("lastName"),
			workflow.Required("email"),
			workflow.Matches("email", emailPattern, "Email must be a valid address"),
			workflow.Matches("birthdate", datePattern, "Birthdate must look like 1990-01-31"),
		},
	},
	"events": {
		Kind:   "events",
		Name:   "Event",
		Routes: routes("/events"),
		Fields: []field.Descriptor{
			field.D("Title", "title"),
			field.D("Category", "category"),
			field.D("Tags", "tags"),
			field.D("Act", "act.name"),
			field.D("Venue", "venue"),
			field.D("Date", "date"),
			field.D("Active", "active"),
		},
		Defaults:  domain.Record{"active": true, "tagIds": []any{}},
		Relations: map[string]string{"category": "categoryId", "tags": "tagIds", "act": "actId"},
		Rules: []workflow.Rule{
			workflow.Required("title"),
			workflow.Required("date"),
			workflow.Matches("date", datePattern, "Date must look like 2024-01-31"),
		},
	},
	"acts": {
		Kind:   "acts",
		Name:   "Act",
		Routes: routes("/acts"),
		Fields: []field.Descriptor{
			field.D("Name", "name"),
			field.D("Genre", "genre"),
			field.D("Description", "description"),
			field.D("Created", "createdDate"),
			field.D("Active", "active"),
		},
		Defaults: domain.Record{"active": true},
		Rules:    []workflow.Rule{workflow.Required("name")},
	},
	"categories": {
		Kind:   "categories",
		Name:   "Category",
		Routes: Routes{List: "/categories/all", Create: "/categories", Item: "/categories/{id}"},
		Fields: []field.Descriptor{
			field.D("Name", "name"),
			field.D("Description", "description"),
			field.D("Active", "active"),
		},
		Defaults: domain.Record{"active": true},
		Rules:    []workflow.Rule{workflow.Required("name")},
	},
	"tags": {
		Kind:   "tags",
		Name:   "Tag",
		Routes: Routes{List: "/tags/all", Create: "/tags", Item: "/tags/{id}"},
		Fields: []field.Descriptor{
			field.D("Name", "name"),
			field.D("Active", "active"),
		},
		Defaults: domain.Record{"active": true},
		Rules:    []workflow.Rule{workflow.Required("name")},
	},
	"tickets": {
		Kind:   "tickets",
		Name:   "Ticket",
		Routes: routes("/tickets"),
		Fields: []field.Descriptor{
			field.D("Event", "event.title"),
			field.D("Category", "ticketCategory.name"),
			field.D("Holder", "user.email"),
			field.D("Seat", "seat"),
			field.D("Purchased", "purchaseDate"),
			field.D("Active", "active"),
		},
		Defaults: domain.Record{"active": true},
		Relations: map[string]string{
			"event":          "eventId",
			"ticketCategory": "ticketCategoryId",
			"user":           "userId",
		},
		Rules: []workflow.Rule{
			workflow.Required("eventId"),
			workflow.Required("ticketCategoryId"),
		},
	},
	"ticket-categories": {
		Kind:   "ticket-categories",
		Name:   "Ticket category",
		Routes: routes("/ticket-categories"),
		Fields: []field.Descriptor{
			field.D("Name", "name"),
			field.D("Event", "event.title"),
			field.D("Price", "price"),
			field.D("Capacity", "capacity"),
			field.D("Active", "active"),
		},
		Defaults:  domain.Record{"active": true},
		Relations: map[string]string{"event": "eventId"},
		Rules: []workflow.Rule{
			workflow.Required("name"),
			workflow.Required("price"),
			workflow.Matches("price", moneyPattern, "Price must be a number with at most two decimals"),
			workflow.Matches("capacity", `^\d+$`, "Capacity must be a whole number"),
		},
	},
	"ratings": {
		Kind:   "ratings",
		Name:   "Rating",
		Routes: routes("/ratings"),
		Fields: []field.Descriptor{
			field.D("Event", "event.title"),
			field.D("User", "user.email"),
			field.D("Score", "score"),
			field.D("Comment", "comment"),
			field.D("Created", "createdDate"),
			field.D("Active", "active"),
		},
		Defaults:  domain.Record{"active": true},
		Relations: map[string]string{"event": "eventId", "user": "userId"},
		Rules: []workflow.Rule{
			workflow.Required("score"),
			workflow.Matches("score", `^[1-5]$`, "Score must be between 1 and 5"),
		},
	},
	"notifications": {
		Kind:   "notifications",
		Name:   "Notification",
		Routes: routes("/notifications"),
		Fields: []field.Descriptor{
			field.D("Title", "title"),
			field.D("Message", "message"),
			field.D("Recipient", "user.email"),
			field.D("Sent", "sentDate"),
			field.D("Active", "active"),
		},
		Defaults:  domain.Record{"active": true},
		Relations: map[string]string{"user": "userId"},
		Rules: []workflow.Rule{
			workflow.Required("title"),
			workflow.Required("message"),
		},
	},
	"roles": {
		Kind:   "roles",
		Name:   "Role",
		Routes: routes("/roles"),
		Fields: []field.Descriptor{
			field.D("Name", "name"),
			field.D("Description", "description"),
			field.D("Active", "active"),
		},
		Defaults: domain.Record{"active": true},
		Rules: []workflow.Rule{
			workflow.Required("name"),
			workflow.Matches("name", `^[A-Z][A-Z_]*$`, "Role names are upper case, e.g. EVENT_MANAGER"),
		},
	},
}

// Kinds lists every registered kind in alphabetical order.
func Kinds() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the binding for kind.
func Lookup(kind string) (Binding, error) {
	b, ok := registry[strings.ToLower(strings.TrimSpace(kind))]
	if !ok {
		return Binding{}, fmt.Errorf("%w %q (known: %s)", ErrUnknownKind, kind, strings.Join(Kinds(), ", "))
	}
	return b, nil
}
