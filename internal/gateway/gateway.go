// Package gateway is the single outbound channel to the ticketing REST API. Every call
// carries the session credential when one exists, and every failure is classified
// into exactly one Kind.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"ticketline/internal/obs"
)

// DefaultPublicRoutes are reachable without a credential.
var DefaultPublicRoutes = []string{
	"/users/login",
	"/users/register",
	"/users/exists",
	"/users/countries",
	"/categories/all",
	"/tags/all",
}

// Session is the part of the session store the gateway needs.
type Session interface {
	Token() string
	Expire(sent string) bool
}

// Config for a Gateway.
type Config struct {
	BaseURL      string
	APIPrefix    string
	Timeout      time.Duration
	HTTPClient   *http.Client
	Session      Session
	Limiter      *rate.Limiter
	Metrics      *obs.GatewayMetrics
	Logger       *log.Logger
	PublicRoutes []string
}

// Gateway sends JSON requests to the API.
type Gateway struct {
	base    string
	client  *http.Client
	session Session
	limiter *rate.Limiter
	metrics *obs.GatewayMetrics
	logger  *log.Logger
	public  []string
}

// New builds a Gateway with sane defaults.
func New(cfg Config) *Gateway {
	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api"
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	public := cfg.PublicRoutes
	if public == nil {
		public = DefaultPublicRoutes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = obs.Logger()
	}
	return &Gateway{
		base:    strings.TrimRight(cfg.BaseURL, "/") + strings.TrimRight(prefix, "/"),
		client:  client,
		session: cfg.Session,
		limiter: cfg.Limiter,
		metrics: cfg.Metrics,
		logger:  logger,
		public:  public,
	}
}

// Do sends a request and decodes a JSON response into out when out is non-nil.
func (g *Gateway) Do(ctx context.Context, method, endpoint string, body any, out any) error {
	data, err := g.Raw(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, endpoint, err)
	}
	return nil
}

// Raw sends a request and returns the raw 2xx body.
func (g *Gateway) Raw(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	start := time.Now()
	data, err := g.send(ctx, method, endpoint, body)
	outcome := "ok"
	if gerr, ok := err.(*Error); ok {
		outcome = gerr.Kind.String()
	} else if err != nil {
		outcome = "error"
	}
	g.metrics.Observe(method, outcome, time.Since(start).Seconds())
	return data, err
}

// IsPublic reports whether endpoint may be called without a credential.
func (g *Gateway) IsPublic(endpoint string) bool {
	route := routeOf(endpoint)
	for _, p := range g.public {
		if route == p || strings.HasPrefix(route, strings.TrimRight(p, "/")+"/") {
			return true
		}
	}
	return false
}

func (g *Gateway) send(ctx context.Context, method, endpoint string, body any) ([]byte, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, fmt.Errorf("encode %s %s: %w", method, endpoint, err)
		}
	}
	url := g.base + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	sent := ""
	if g.session != nil {
		sent = g.session.Token()
	}
	if sent != "" {
		req.Header.Set("Authorization", "Bearer "+sent)
	} else if !g.IsPublic(endpoint) {
		obs.LogEvent(g.logger, "warn", "request without credential", map[string]any{
			"method": method,
			"path":   routeOf(endpoint),
		})
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, &Error{Kind: Unreachable, Err: err}
		}
	}

	resp, err := g.client.Do(req)
	if err != nil {
		obs.LogEvent(g.logger, "error", "request failed", map[string]any{
			"method": method,
			"path":   routeOf(endpoint),
			"error":  err,
		})
		return nil, &Error{Kind: Unreachable, Err: err}
	}
	defer resp.Body.Close()
	data, readErr := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// A public route answering 401 without a credential is a failed login, not
		// an ended session.
		if g.session != nil && (sent != "" || !g.IsPublic(endpoint)) {
			g.session.Expire(sent)
		}
		return nil, &Error{Kind: SessionExpired, Status: resp.StatusCode, Body: string(data)}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &Error{Kind: ServerRejected, Status: resp.StatusCode, Body: string(data)}
	case readErr != nil:
		return nil, &Error{Kind: Unreachable, Status: resp.StatusCode, Err: readErr}
	}
	return data, nil
}

func routeOf(endpoint string) string {
	if i := strings.IndexAny(endpoint, "?#"); i >= 0 {
		endpoint = endpoint[:i]
	}
	return "/" + strings.Trim(endpoint, "/")
}
