package app

import (
	"context"
	"io"
	"log"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"ticketline/internal/admin/table"
	"ticketline/internal/config"
	"ticketline/internal/repo"
	"ticketline/internal/server"
	"ticketline/internal/session"
)

const (
	adminEmail = "admin@ticketline.local"
	adminPass  = "admin-password"
)

func devServer(t *testing.T) string {
	t.Helper()
	store := server.NewStore(bcrypt.MinCost)
	if err := store.SeedAdmin(adminEmail, adminPass); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store.SeedCatalog()
	quiet := log.New(io.Discard, "", 0)
	h, err := server.New(server.Config{
		Store:  store,
		Auth:   server.AuthConfig{JWTSecret: "app-test-secret-0123", TokenTTL: time.Hour, Logger: quiet},
		Logger: quiet,
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return srv.URL
}

func testConfig(t *testing.T, baseURL, backend string) *config.Config {
	t.Helper()
	cfg, err := config.FromYAML([]byte(config.GenerateDefault(baseURL)))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Session.Backend = backend
	return cfg
}

func open(t *testing.T, workspace string, cfg *config.Config, reg prometheus.Registerer, nav session.Navigator) *Context {
	t.Helper()
	c, err := Open(context.Background(), Options{
		Workspace:  workspace,
		Config:     cfg,
		Navigator:  nav,
		Registerer: reg,
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSessionPersistsAcrossRuns(t *testing.T) {
	url := devServer(t)
	workspace := t.TempDir()
	cfg := testConfig(t, url, config.BackendSQLite)

	first := open(t, workspace, cfg, nil, nil)
	if _, err := first.Account.Login(context.Background(), adminEmail, adminPass); err != nil {
		t.Fatalf("login: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	second := open(t, workspace, cfg, nil, nil)
	id, ok := second.Account.WhoAmI()
	if !ok || !id.Authenticated || id.Profile.Email != adminEmail {
		t.Fatalf("whoami after restart = %+v ok=%v", id, ok)
	}
}

func TestMemoryBackendForgets(t *testing.T) {
	url := devServer(t)
	workspace := t.TempDir()
	cfg := testConfig(t, url, config.BackendMemory)

	first := open(t, workspace, cfg, nil, nil)
	if _, err := first.Account.Login(context.Background(), adminEmail, adminPass); err != nil {
		t.Fatalf("login: %v", err)
	}
	_ = first.Close()
	second := open(t, workspace, cfg, nil, nil)
	if _, ok := second.Account.WhoAmI(); ok {
		t.Fatalf("memory backend must not persist")
	}
}

func TestWorkflowIsJournaledAndRefreshesTable(t *testing.T) {
	url := devServer(t)
	reg := prometheus.NewRegistry()
	var redirects atomic.Int32
	c := open(t, t.TempDir(), testConfig(t, url, config.BackendSQLite), reg,
		session.NavigatorFunc(func() { redirects.Add(1) }))
	ctx := context.Background()
	if _, err := c.Account.Login(ctx, adminEmail, adminPass); err != nil {
		t.Fatalf("login: %v", err)
	}

	b, err := c.Binding("tags")
	if err != nil {
		t.Fatalf("binding: %v", err)
	}
	sig := &table.Signal{}
	tc := c.Table(b, nil)
	tc.Mount(ctx, sig)
	tc.Wait()
	if n := len(tc.View().Rows); n != 2 {
		t.Fatalf("seeded tags = %d", n)
	}

	w := c.Workflow(b, sig)
	if err := w.OpenCreate(); err != nil {
		t.Fatalf("open: %v", err)
	}
	_ = w.Set("name", "family")
	if err := w.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	tc.Wait()
	if n := len(tc.View().Rows); n != 3 {
		t.Fatalf("tags after create = %d", n)
	}
	tc.Unmount()

	entries, err := c.Repo.ListJournal(ctx, repo.JournalFilter{EntityKind: "tags"})
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	if len(entries) != 1 || entries[0].Outcome != "ok" || entries[0].Actor != adminEmail || entries[0].Type != "workflow.create" {
		t.Fatalf("journal = %+v", entries)
	}
	if got := counterValue(t, reg, "ticketline_gateway_requests_total", "POST", "ok"); got != 2 {
		t.Fatalf("POST ok requests = %v", got)
	}
	if redirects.Load() != 0 {
		t.Fatalf("redirects = %d", redirects.Load())
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.API.BaseURL = "not a url"
	if _, err := Open(context.Background(), Options{Workspace: t.TempDir(), Config: cfg}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, method, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["method"] == method && labels["outcome"] == outcome {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}
