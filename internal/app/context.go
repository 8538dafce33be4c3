// Package app wires configuration, storage and the API client into the components a
// command works with.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/language"
	"golang.org/x/time/rate"

	"ticketline/internal/account"
	"ticketline/internal/admin/field"
	"ticketline/internal/admin/sorting"
	"ticketline/internal/admin/table"
	"ticketline/internal/admin/workflow"
	"ticketline/internal/config"
	"ticketline/internal/db"
	"ticketline/internal/entities"
	"ticketline/internal/events"
	"ticketline/internal/gateway"
	"ticketline/internal/migrate"
	"ticketline/internal/obs"
	"ticketline/internal/repo"
	"ticketline/internal/session"
	"ticketline/internal/session/redisstore"
)

// Options for Open.
type Options struct {
	Workspace string
	// Config overrides the workspace file. Nil loads ticketline.yml, falling back to
	// defaults when the file is missing.
	Config    *config.Config
	Navigator session.Navigator
	// Registerer receives the gateway metrics. Nil leaves them unregistered.
	Registerer prometheus.Registerer
	Logger     *log.Logger
}

// Context holds the wired components for one command run.
type Context struct {
	Config   *config.Config
	DB       *sql.DB
	Repo     repo.Repo
	Session  *session.Store
	Gateway  *gateway.Gateway
	Account  *account.Service
	Entities *entities.API
	Metrics  *obs.GatewayMetrics
	Location *time.Location
	Language language.Tag
	Logger   *log.Logger

	closers []func() error
}

// Open loads config, opens the workspace database and builds the client.
func Open(ctx context.Context, opts Options) (*Context, error) {
	logger := opts.Logger
	if logger == nil {
		logger = obs.Logger()
	}
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.LoadOptional(opts.Workspace)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout, _ := cfg.TimeoutDuration()
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	demoTTL, err := cfg.DemoAdminTTL()
	if err != nil {
		return nil, err
	}

	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	c := &Context{
		Config:   cfg,
		DB:       conn,
		Repo:     repo.Repo{DB: conn},
		Location: loc,
		Language: cfg.Language(),
		Logger:   logger,
		closers:  []func() error{conn.Close},
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		_ = c.Close()
		return nil, err
	}

	storage, err := c.storage(ctx)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.Session = session.New(storage, session.Options{Navigator: opts.Navigator, Logger: logger})
	if err := c.Session.Init(); err != nil {
		_ = c.Close()
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.API.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.API.RatePerSecond), cfg.API.Burst)
	}
	c.Metrics = obs.NewGatewayMetrics(opts.Registerer)
	c.Gateway = gateway.New(gateway.Config{
		BaseURL:   cfg.API.BaseURL,
		APIPrefix: cfg.API.Prefix,
		Timeout:   timeout,
		Session:   c.Session,
		Limiter:   limiter,
		Metrics:   c.Metrics,
		Logger:    logger,
	})
	d := cfg.Auth.DemoAdmin
	c.Account = account.New(account.Config{
		Transport: c.Gateway,
		Session:   c.Session,
		DemoAdmin: account.DemoAdmin{
			Enabled:  d.Enabled,
			Email:    d.Email,
			Password: d.Password,
			Secret:   d.Secret,
			TTL:      demoTTL,
		},
		Logger: logger,
	})
	c.Entities = entities.NewAPI(c.Gateway)
	return c, nil
}

func (c *Context) storage(ctx context.Context) (session.Storage, error) {
	switch c.Config.Session.Backend {
	case config.BackendMemory:
		return session.NewMemoryStorage(), nil
	case config.BackendRedis:
		r := c.Config.Session.Redis
		s, err := redisstore.Dial(ctx, redisstore.Options{
			Addr:     r.Addr,
			Password: r.Password,
			DB:       r.DB,
			Prefix:   r.Prefix,
		})
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, s.Close)
		return s, nil
	default:
		return c.Repo.KV(), nil
	}
}

// Close releases the database and any session backend connection.
func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

// Resolver renders dates in the configured zone.
func (c *Context) Resolver() field.Resolver {
	return field.Resolver{Location: c.Location}
}

// Table builds a listing controller for b.
func (c *Context) Table(b entities.Binding, onChange func(table.View)) *table.Controller {
	return table.New(table.Options{
		Fetch:    c.Entities.Fetch(b),
		Fields:   b.Fields,
		Sorter:   sorting.Engine{Resolver: c.Resolver(), Language: c.Language},
		Logger:   c.Logger,
		OnChange: onChange,
	})
}

// Workflow builds a create/edit/toggle/delete controller for b whose outcomes are
// journaled in the workspace database.
func (c *Context) Workflow(b entities.Binding, refresh *table.Signal) *workflow.Controller {
	return workflow.New(workflow.Options{
		Binding: b.Workflow(c.Entities.Persistence(b)),
		Refresh: refresh,
		Journal: events.Writer{DB: c.DB, Kind: b.Kind, Actor: c.actor},
		Logger:  c.Logger,
	})
}

// Binding looks up kind.
func (c *Context) Binding(kind string) (entities.Binding, error) {
	b, err := entities.Lookup(kind)
	if err != nil {
		return entities.Binding{}, fmt.Errorf("admin: %w", err)
	}
	return b, nil
}

func (c *Context) actor() string {
	if p, ok := c.Session.CurrentProfile(); ok {
		return p.Email
	}
	return ""
}
