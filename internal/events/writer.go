// Package events records admin workflow outcomes in the workspace journal.
package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ticketline/internal/admin/workflow"
	"ticketline/internal/repo"
)

type Writer struct {
	DB  *sql.DB
	Now func() time.Time
	// Kind is the entity kind route name, e.g. "ticket-categories".
	Kind string
	// Actor returns the email of the logged-in user, if known.
	Actor func() string
}

type EventPayload map[string]any

// Append stores one journal row.
func (w Writer) Append(ctx context.Context, evtType, entityID, outcome, message string, payload EventPayload) error {
	if w.Now == nil {
		w.Now = time.Now
	}
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	actor := ""
	if w.Actor != nil {
		actor = w.Actor()
	}
	_, err = repo.Repo{DB: w.DB}.InsertJournal(ctx, repo.JournalEntry{
		TS:          w.Now().UTC().Format(time.RFC3339),
		Type:        evtType,
		EntityKind:  w.Kind,
		EntityID:    entityID,
		Actor:       actor,
		Outcome:     outcome,
		Message:     message,
		PayloadJSON: string(data),
	})
	return err
}

// Record implements workflow.Journal.
func (w Writer) Record(ctx context.Context, o workflow.Outcome) error {
	outcome := "ok"
	if !o.OK {
		outcome = "rejected"
	}
	return w.Append(ctx, "workflow."+o.Mode.String(), o.RecordID, outcome, o.Message, EventPayload{"entity": o.Entity})
}
