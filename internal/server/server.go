// Package server is an in-memory ticketing backend serving the REST surface the
// client talks to. It is meant for local use and end-to-end tests.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"ticketline/internal/domain"
	"ticketline/internal/entities"
	"ticketline/internal/obs"
)

// Config for the HTTP API handler.
type Config struct {
	Store    *Store
	BasePath string
	Auth     AuthConfig
	Locale   language.Tag
	Logger   *log.Logger
	// Registry, when set, receives request metrics served at /metrics.
	Registry *prometheus.Registry
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"forbidden"`
	Message string         `json:"message" example:"administrator role required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError is the error envelope every failure is written in.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the ticketing API under BasePath.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("jwt secret not configured")
	}
	store := cfg.Store
	if store == nil {
		store = NewStore(0)
	}
	if cfg.Locale == language.Und {
		cfg.Locale = language.English
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = cfg.Logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity {
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	var metrics *obs.ServerMetrics
	if cfg.Registry != nil {
		metrics = obs.NewServerMetrics(cfg.Registry)
	}
	router.Use(accessLog(cfg.Logger, metrics))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	if cfg.Registry != nil {
		router.Handle("/metrics", obs.Handler(cfg.Registry))
	}
	hcfg := huma.DefaultConfig("Ticketline dev API", "1.0.0")
	hcfg.OpenAPIPath = ""
	hcfg.DocsPath = ""
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, store)
	registerAccount(group, store, cfg)
	registerEntities(group, store)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var inv InvalidError
	switch {
	case errors.As(err, &inv):
		return newAPIError(http.StatusBadRequest, "bad_request", inv.Message, nil)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownKind):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, ErrEmailTaken):
		return newAPIError(http.StatusConflict, "email_taken", "Email already registered", nil)
	case errors.Is(err, ErrBadLogin):
		return newAPIError(http.StatusUnauthorized, "invalid_credentials", "Invalid email or password", nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func accessLog(l *log.Logger, m *obs.ServerMetrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			done := m.Begin()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			done(r.Method, route, status, time.Since(start).Seconds())
			obs.LogEvent(l, "info", "request", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}

func registerDocs(r chi.Router, basePath string) {
	page := fmt.Sprintf(docsPage, path.Join("/", basePath, "openapi.json"))
	r.Get("/docs", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, page)
	})
}

// registerOpenAPI serves the document built once, on first request, after every
// operation has been registered.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		doc  []byte
	)
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, _ *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			doc, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(doc)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	public := publicRoutes(basePath)
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if public[route] {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

const docsPage = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8"/>
<title>Ticketline dev API</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"/>
</head>
<body>
<div id="docs"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
<script>
SwaggerUIBundle({url: "%s", dom_id: "#docs", persistAuthorization: true});
</script>
</body>
</html>`

func registerHealth(api huma.API, store *Store) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Liveness and record counts",
	}, func(ctx context.Context, _ *struct{}) (*healthResponse, error) {
		out := &healthResponse{}
		out.Body.Status = "ok"
		out.Body.Records = store.Counts()
		return out, nil
	})
}

func registerAccount(api huma.API, store *Store, cfg Config) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/users/login",
		Summary:     "Exchange credentials for a token",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		profile, user, err := store.Authenticate(input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signToken(cfg.Auth, profile)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Token: token, User: user}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          "/users/register",
		Summary:       "Register an account, or create a user as an administrator",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusConflict},
	}, func(ctx context.Context, input *recordBody) (*struct {
		Body SessionResponse `json:"body"`
	}, error) {
		if p, ok := principalFromContext(ctx); ok && p.IsAdmin() {
			user, err := store.Create("users", input.Body)
			if err != nil {
				return nil, handleError(err)
			}
			return &struct {
				Body SessionResponse `json:"body"`
			}{Body: SessionResponse{User: user}}, nil
		}
		reg := registrationFrom(input.Body)
		reg.Role = ""
		if reg.Password == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "Password is required", nil)
		}
		profile, err := store.Register(reg)
		if err != nil {
			return nil, handleError(err)
		}
		user, err := store.Get("users", profile.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		token, err := signToken(cfg.Auth, profile)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body SessionResponse `json:"body"`
		}{Body: SessionResponse{Token: token, User: user}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "email-exists",
		Method:      http.MethodGet,
		Path:        "/users/exists",
		Summary:     "Check whether an email is registered",
	}, func(ctx context.Context, input *struct {
		Email string `query:"email"`
	}) (*struct {
		Body ExistsResponse `json:"body"`
	}, error) {
		if strings.TrimSpace(input.Email) == "" {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "email is required", nil)
		}
		return &struct {
			Body ExistsResponse `json:"body"`
		}{Body: ExistsResponse{Exists: store.EmailExists(input.Email)}}, nil
	})

	list := countries(cfg.Locale)
	huma.Register(api, huma.Operation{
		OperationID: "countries",
		Method:      http.MethodGet,
		Path:        "/users/countries",
		Summary:     "Countries offered at registration",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Country `json:"body"`
	}, error) {
		return &struct {
			Body []domain.Country `json:"body"`
		}{Body: list}, nil
	})
}

// countryCodes are the ISO 3166 regions offered at registration.
var countryCodes = []string{
	"AT", "BE", "CH", "CZ", "DE", "DK", "ES", "FI", "FR", "GB",
	"HU", "IE", "IT", "LU", "NL", "NO", "PL", "PT", "SE", "SI", "SK", "US",
}

// countries names the regions in tag's language and sorts them by that name.
func countries(tag language.Tag) []domain.Country {
	namer := display.Regions(tag)
	out := make([]domain.Country, 0, len(countryCodes))
	for _, code := range countryCodes {
		region, err := language.ParseRegion(code)
		if err != nil {
			continue
		}
		name := code
		if namer != nil {
			if n := namer.Name(region); n != "" {
				name = n
			}
		}
		out = append(out, domain.Country{Code: code, Name: name})
	}
	c := collate.New(tag)
	sort.SliceStable(out, func(i, j int) bool {
		return c.CompareString(out[i].Name, out[j].Name) < 0
	})
	return out
}

// publicLists can be read without a credential.
var publicLists = map[string]bool{"categories": true, "tags": true}

func registerEntities(api huma.API, store *Store) {
	for _, kind := range entities.Kinds() {
		b, err := entities.Lookup(kind)
		if err != nil {
			continue
		}
		registerKind(api, store, b)
	}
}

func registerKind(api huma.API, store *Store, b entities.Binding) {
	kind := b.Kind
	huma.Register(api, huma.Operation{
		OperationID: "list-" + kind,
		Method:      http.MethodGet,
		Path:        b.Routes.List,
		Summary:     "List " + kind,
		Tags:        []string{kind},
	}, func(ctx context.Context, _ *struct{}) (*listResponse, error) {
		if kind == "users" {
			if err := requireAdmin(ctx); err != nil {
				return nil, err
			}
		} else if _, ok := principalFromContext(ctx); !ok && !publicLists[kind] {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		items, err := store.List(kind)
		if err != nil {
			return nil, handleError(err)
		}
		return &listResponse{Body: items}, nil
	})

	// users are created through the register route
	if kind != "users" {
		huma.Register(api, huma.Operation{
			OperationID:   "create-" + kind,
			Method:        http.MethodPost,
			Path:          b.Routes.Create,
			Summary:       "Create " + strings.ToLower(b.Name),
			Tags:          []string{kind},
			DefaultStatus: http.StatusCreated,
			Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
		}, func(ctx context.Context, input *recordBody) (*recordResponse, error) {
			if err := requireAdmin(ctx); err != nil {
				return nil, err
			}
			rec, err := store.Create(kind, input.Body)
			if err != nil {
				return nil, handleError(err)
			}
			return &recordResponse{Body: rec}, nil
		})
	}

	huma.Register(api, huma.Operation{
		OperationID: "update-" + kind,
		Method:      http.MethodPut,
		Path:        b.Routes.Item,
		Summary:     "Update " + strings.ToLower(b.Name),
		Tags:        []string{kind},
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *recordItem) (*recordResponse, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		rec, err := store.Update(kind, input.ID, input.Body)
		if err != nil {
			return nil, handleError(err)
		}
		return &recordResponse{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-" + kind,
		Method:        http.MethodDelete,
		Path:          b.Routes.Item,
		Summary:       "Delete " + strings.ToLower(b.Name),
		Tags:          []string{kind},
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *recordPath) (*struct{}, error) {
		if err := requireAdmin(ctx); err != nil {
			return nil, err
		}
		if err := store.Delete(kind, input.ID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	for _, action := range []string{"activate", "deactivate"} {
		active := action == "activate"
		huma.Register(api, huma.Operation{
			OperationID: action + "-" + kind,
			Method:      http.MethodPut,
			Path:        b.Routes.Item + "/" + action,
			Summary:     strings.ToUpper(action[:1]) + action[1:] + " " + strings.ToLower(b.Name),
			Tags:        []string{kind},
			Errors:      []int{http.StatusForbidden, http.StatusNotFound},
		}, func(ctx context.Context, input *recordPath) (*recordResponse, error) {
			if err := requireAdmin(ctx); err != nil {
				return nil, err
			}
			rec, err := store.SetActive(kind, input.ID, active)
			if err != nil {
				return nil, handleError(err)
			}
			return &recordResponse{Body: rec}, nil
		})
	}
}
