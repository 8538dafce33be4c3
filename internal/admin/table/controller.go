// Package table drives one entity listing: fetching on mount and on every refresh
// signal change, holding the sort state and deriving the sorted projection.
package table

import (
	"context"
	"log"
	"sync"

	"ticketline/internal/admin/field"
	"ticketline/internal/admin/sorting"
	"ticketline/internal/domain"
	"ticketline/internal/obs"
)

// FetchFunc loads the collection. Its result is normalised, so endpoints that
// answer with an error envelope simply produce an empty table.
type FetchFunc func(ctx context.Context) (any, error)

// Phase of a controller.
type Phase int

const (
	Idle Phase = iota
	Loading
	Loaded
)

func (p Phase) String() string {
	switch p {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "idle"
	}
}

// View is an immutable snapshot of the table.
type View struct {
	Phase  Phase
	Fields []field.Descriptor
	Rows   []domain.Record
	Sort   sorting.State
	// Err is the last fetch failure. The table stays usable with no rows.
	Err error
}

// Options for a controller.
type Options struct {
	Fetch    FetchFunc
	Fields   []field.Descriptor
	Sorter   sorting.Engine
	Logger   *log.Logger
	OnChange func(View)
}

// Controller owns the fetched records for one listing.
type Controller struct {
	fetch    FetchFunc
	fields   []field.Descriptor
	sorter   sorting.Engine
	logger   *log.Logger
	onChange func(View)

	mu      sync.Mutex
	phase   Phase
	records []domain.Record
	err     error
	sort    sorting.State
	gen     uint64
	seen    uint64
	unwatch func()

	inflight sync.WaitGroup
}

// New builds an idle controller.
func New(opts Options) *Controller {
	fields := make([]field.Descriptor, len(opts.Fields))
	copy(fields, opts.Fields)
	return &Controller{
		fetch:    opts.Fetch,
		fields:   fields,
		sorter:   opts.Sorter,
		logger:   opts.Logger,
		onChange: opts.OnChange,
		records:  []domain.Record{},
	}
}

// Mount starts the initial fetch and, when sig is non-nil, re-fetches whenever the
// signal is raised.
func (c *Controller) Mount(ctx context.Context, sig *Signal) {
	if sig != nil {
		c.mu.Lock()
		c.seen = sig.Value()
		c.unwatch = sig.Subscribe(func(v uint64) { c.Observe(ctx, v) })
		c.mu.Unlock()
	}
	c.start(ctx)
}

// Unmount stops watching the signal. Fetches still in flight resolve into nothing.
func (c *Controller) Unmount() {
	c.mu.Lock()
	c.gen++
	unwatch := c.unwatch
	c.unwatch = nil
	c.mu.Unlock()
	if unwatch != nil {
		unwatch()
	}
}

// Observe re-fetches when value differs from the last refresh value seen.
func (c *Controller) Observe(ctx context.Context, value uint64) {
	c.mu.Lock()
	if value == c.seen {
		c.mu.Unlock()
		return
	}
	c.seen = value
	c.mu.Unlock()
	c.start(ctx)
}

// Reload fetches synchronously and returns the fetch error, if any.
func (c *Controller) Reload(ctx context.Context) error {
	gen := c.begin()
	c.inflight.Add(1)
	return c.load(ctx, gen)
}

// Wait blocks until every started fetch has resolved.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// ClickHeader advances the sort state for path and returns it.
func (c *Controller) ClickHeader(path string) sorting.State {
	c.mu.Lock()
	c.sort = c.sort.Click(path)
	state := c.sort
	c.mu.Unlock()
	c.notify()
	return state
}

// SetSort replaces the sort state.
func (c *Controller) SetSort(state sorting.State) {
	c.mu.Lock()
	c.sort = state
	c.mu.Unlock()
	c.notify()
}

// View returns the current snapshot with rows sorted by the active state.
func (c *Controller) View() View {
	c.mu.Lock()
	records, state := c.records, c.sort
	v := View{Phase: c.phase, Fields: c.fields, Sort: state, Err: c.err}
	c.mu.Unlock()
	v.Rows = c.sorter.Sort(records, state)
	return v
}

func (c *Controller) begin() uint64 {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.phase = Loading
	c.mu.Unlock()
	c.notify()
	return gen
}

func (c *Controller) start(ctx context.Context) {
	gen := c.begin()
	c.inflight.Add(1)
	go func() {
		_ = c.load(ctx, gen)
	}()
}

func (c *Controller) load(ctx context.Context, gen uint64) error {
	defer c.inflight.Done()
	var (
		res any
		err error
	)
	if c.fetch != nil {
		res, err = c.fetch(ctx)
	}
	records := []domain.Record{}
	if err != nil {
		obs.LogEvent(c.logger, "error", "table fetch failed", map[string]any{"error": err})
	} else {
		records = Normalize(res)
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return err
	}
	c.records = records
	c.err = err
	c.phase = Loaded
	c.mu.Unlock()
	c.notify()
	return err
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange(c.View())
	}
}
