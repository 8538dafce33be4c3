// Package workflow is the create/edit/toggle/delete state machine shared by every
// managed entity kind. Entity-specific behaviour comes only from the Binding.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"ticketline/internal/admin/field"
	"ticketline/internal/admin/table"
	"ticketline/internal/domain"
	"ticketline/internal/gateway"
	"ticketline/internal/obs"
)

// Mode is the user intent behind an open workflow.
type Mode int

const (
	NoMode Mode = iota
	Create
	Edit
	Toggle
	Delete
)

func (m Mode) String() string {
	switch m {
	case Create:
		return "create"
	case Edit:
		return "edit"
	case Toggle:
		return "toggle"
	case Delete:
		return "delete"
	default:
		return "none"
	}
}

// Phase of the workflow.
type Phase int

const (
	Idle Phase = iota
	Drafting
	Confirming
	Submitting
	Resolved
	Rejected
)

func (p Phase) String() string {
	switch p {
	case Drafting:
		return "drafting"
	case Confirming:
		return "confirming"
	case Submitting:
		return "submitting"
	case Resolved:
		return "resolved"
	case Rejected:
		return "rejected"
	default:
		return "idle"
	}
}

var (
	// ErrBusy is returned while a submission is in flight.
	ErrBusy = errors.New("workflow: submission in progress")
	// ErrInvalidTransition is returned for an intent the current phase does not accept.
	ErrInvalidTransition = errors.New("workflow: invalid transition")
)

// Persistence carries the network operations for one entity kind.
type Persistence struct {
	Create     func(ctx context.Context, draft domain.Record) error
	Update     func(ctx context.Context, original, draft domain.Record) error
	Activate   func(ctx context.Context, target domain.Record) error
	Deactivate func(ctx context.Context, target domain.Record) error
	Delete     func(ctx context.Context, target domain.Record) error
}

// Binding parameterises the controller for one entity kind.
type Binding struct {
	// Name is the singular display name, e.g. "Event".
	Name     string
	Fields   []field.Descriptor
	Defaults domain.Record
	// Relations maps a nested relation field to the flat id key used in drafts,
	// e.g. "category" -> "categoryId".
	Relations   map[string]string
	Rules       []Rule
	Persistence Persistence
}

// Outcome is reported to the journal after every submission.
type Outcome struct {
	Entity   string
	Mode     Mode
	RecordID string
	OK       bool
	Message  string
}

// Journal records workflow outcomes.
type Journal interface {
	Record(ctx context.Context, o Outcome) error
}

// State is a snapshot of the workflow.
type State struct {
	Phase   Phase
	Mode    Mode
	Draft   domain.Record
	Target  domain.Record
	Message string
}

// Options for a controller.
type Options struct {
	Binding  Binding
	Refresh  *table.Signal
	Journal  Journal
	Logger   *log.Logger
	OnChange func(State)
}

// Controller runs one workflow at a time.
type Controller struct {
	binding  Binding
	refresh  *table.Signal
	journal  Journal
	logger   *log.Logger
	onChange func(State)

	mu     sync.Mutex
	state  State
	prior  State
	notice string
}

// New builds an idle controller.
func New(opts Options) *Controller {
	return &Controller{
		binding:  opts.Binding,
		refresh:  opts.Refresh,
		journal:  opts.Journal,
		logger:   opts.Logger,
		onChange: opts.OnChange,
	}
}

// State returns a copy of the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyState(c.state)
}

// Notice returns the message of the last successful submission.
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// OpenCreate starts a draft seeded with the binding defaults.
func (c *Controller) OpenCreate() error {
	draft := domain.Record{}
	for k, v := range c.binding.Defaults {
		draft[k] = v
	}
	return c.open(State{Phase: Drafting, Mode: Create, Draft: draft})
}

// OpenEdit starts a draft copied from record with relations flattened to ids.
func (c *Controller) OpenEdit(record domain.Record) error {
	if record == nil {
		return fmt.Errorf("%w: no record to edit", ErrInvalidTransition)
	}
	return c.open(State{
		Phase:  Drafting,
		Mode:   Edit,
		Draft:  flatten(record, c.binding.Relations),
		Target: record.Clone(),
	})
}

// OpenToggle asks to activate or deactivate record.
func (c *Controller) OpenToggle(record domain.Record) error {
	if record == nil {
		return fmt.Errorf("%w: no record to toggle", ErrInvalidTransition)
	}
	return c.open(State{Phase: Confirming, Mode: Toggle, Target: record.Clone()})
}

// OpenDelete asks to delete record.
func (c *Controller) OpenDelete(record domain.Record) error {
	if record == nil {
		return fmt.Errorf("%w: no record to delete", ErrInvalidTransition)
	}
	return c.open(State{Phase: Confirming, Mode: Delete, Target: record.Clone()})
}

// Set changes one draft field.
func (c *Controller) Set(key string, value any) error {
	c.mu.Lock()
	switch {
	case c.state.Phase == Drafting:
		c.state.Draft[key] = value
		c.state.Message = ""
	case c.state.Phase == Rejected && c.prior.Phase == Drafting:
		c.prior.Draft[key] = value
		c.state.Draft = c.prior.Draft
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: no draft open", ErrInvalidTransition)
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Cancel discards the open workflow.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	if c.state.Phase == Submitting {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = State{}
	c.prior = State{}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Submit validates and performs the open intent. While a submission is in flight it
// returns ErrBusy and changes nothing. A rejected workflow may be submitted again.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	base := c.state
	if base.Phase == Submitting {
		c.mu.Unlock()
		return ErrBusy
	}
	if base.Phase == Rejected {
		base = c.prior
	}
	if base.Phase != Drafting && base.Phase != Confirming {
		c.mu.Unlock()
		return fmt.Errorf("%w: nothing to submit", ErrInvalidTransition)
	}
	if base.Phase == Drafting {
		if err := Validate(c.binding.Fields, c.binding.Rules, base.Draft); err != nil {
			base.Message = err.Error()
			c.state = base
			c.mu.Unlock()
			c.notify()
			return err
		}
	}
	base.Message = ""
	c.prior = copyState(base)
	c.state = State{Phase: Submitting, Mode: base.Mode, Draft: base.Draft, Target: base.Target}
	c.mu.Unlock()
	c.notify()

	message, err := c.perform(ctx, base)

	switch {
	case err == nil:
		c.finish(State{Phase: Resolved, Mode: base.Mode, Message: message})
		c.mu.Lock()
		c.notice = message
		c.state = State{}
		c.prior = State{}
		c.mu.Unlock()
		c.notify()
		if c.refresh != nil {
			c.refresh.Raise()
		}
		c.record(ctx, base, true, message)
		return nil
	case gateway.IsSessionExpired(err):
		// The gateway already logged out; nothing to show here.
		c.mu.Lock()
		c.state = State{}
		c.prior = State{}
		c.mu.Unlock()
		c.notify()
		return err
	default:
		msg := gateway.UserMessage(err)
		c.finish(State{Phase: Rejected, Mode: base.Mode, Draft: base.Draft, Target: base.Target, Message: msg})
		obs.LogEvent(c.logger, "warn", "workflow rejected", map[string]any{
			"entity": c.binding.Name,
			"mode":   base.Mode.String(),
			"error":  err,
		})
		c.record(ctx, base, false, msg)
		return err
	}
}

func (c *Controller) perform(ctx context.Context, s State) (string, error) {
	p := c.binding.Persistence
	name := c.binding.Name
	if name == "" {
		name = "Record"
	}
	switch s.Mode {
	case Create:
		if p.Create == nil {
			return "", fmt.Errorf("%s cannot be created", name)
		}
		return name + " created", p.Create(ctx, s.Draft.Clone())
	case Edit:
		if p.Update == nil {
			return "", fmt.Errorf("%s cannot be edited", name)
		}
		return name + " updated", p.Update(ctx, s.Target.Clone(), s.Draft.Clone())
	case Toggle:
		if s.Target.Active() {
			if p.Deactivate == nil {
				return "", fmt.Errorf("%s cannot be deactivated", name)
			}
			return name + " deactivated", p.Deactivate(ctx, s.Target.Clone())
		}
		if p.Activate == nil {
			return "", fmt.Errorf("%s cannot be restored", name)
		}
		return name + " restored", p.Activate(ctx, s.Target.Clone())
	case Delete:
		if p.Delete == nil {
			return "", fmt.Errorf("%s cannot be deleted", name)
		}
		return name + " deleted", p.Delete(ctx, s.Target.Clone())
	default:
		return "", ErrInvalidTransition
	}
}

func (c *Controller) open(s State) error {
	c.mu.Lock()
	switch c.state.Phase {
	case Idle:
	case Submitting:
		c.mu.Unlock()
		return ErrBusy
	default:
		c.mu.Unlock()
		return fmt.Errorf("%w: %s workflow already open", ErrInvalidTransition, c.state.Mode)
	}
	c.state = s
	c.prior = State{}
	c.mu.Unlock()
	c.notify()
	return nil
}

func (c *Controller) finish(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) record(ctx context.Context, s State, ok bool, msg string) {
	if c.journal == nil {
		return
	}
	target := s.Target
	if target == nil {
		target = s.Draft
	}
	err := c.journal.Record(ctx, Outcome{
		Entity:   c.binding.Name,
		Mode:     s.Mode,
		RecordID: target.ID(),
		OK:       ok,
		Message:  msg,
	})
	if err != nil {
		obs.LogEvent(c.logger, "error", "journal write failed", map[string]any{"error": err})
	}
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange(c.State())
	}
}

// flatten copies record for editing, replacing relation objects with their ids.
func flatten(record domain.Record, relations map[string]string) domain.Record {
	draft := record.Clone()
	for rel, idKey := range relations {
		v, ok := draft[rel]
		if !ok {
			continue
		}
		switch x := v.(type) {
		case map[string]any:
			if id, ok := x["id"]; ok {
				draft[idKey] = id
			}
			delete(draft, rel)
		case domain.Record:
			if id, ok := x["id"]; ok {
				draft[idKey] = id
			}
			delete(draft, rel)
		case []any:
			ids := make([]any, 0, len(x))
			for _, item := range x {
				if m, ok := item.(map[string]any); ok {
					if id, ok := m["id"]; ok {
						ids = append(ids, id)
					}
				}
			}
			draft[idKey] = ids
			delete(draft, rel)
		}
	}
	return draft
}

func copyState(s State) State {
	if s.Draft != nil {
		s.Draft = s.Draft.Clone()
	}
	if s.Target != nil {
		s.Target = s.Target.Clone()
	}
	return s
}
