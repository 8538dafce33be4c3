package repo

import (
	"context"
	"database/sql"
	"strings"
)

// JournalEntry is one recorded admin action.
type JournalEntry struct {
	ID          int64  `json:"id"`
	TS          string `json:"ts"`
	Type        string `json:"type"`
	EntityKind  string `json:"entity_kind"`
	EntityID    string `json:"entity_id,omitempty"`
	Actor       string `json:"actor,omitempty"`
	Outcome     string `json:"outcome"`
	Message     string `json:"message,omitempty"`
	PayloadJSON string `json:"payload_json"`
}

// JournalFilter narrows ListJournal.
type JournalFilter struct {
	EntityKind string
	Outcome    string
	Limit      int
}

func (r Repo) InsertJournal(ctx context.Context, e JournalEntry) (int64, error) {
	if e.TS == "" {
		e.TS = r.now()
	}
	if e.PayloadJSON == "" {
		e.PayloadJSON = "{}"
	}
	res, err := r.DB.ExecContext(ctx, `INSERT INTO journal(ts,type,entity_kind,entity_id,actor,outcome,message,payload_json) VALUES (?,?,?,?,?,?,?,?)`,
		e.TS, e.Type, e.EntityKind, nullable(e.EntityID), nullable(e.Actor), e.Outcome, nullable(e.Message), e.PayloadJSON)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ListJournal returns the newest entries first.
func (r Repo) ListJournal(ctx context.Context, f JournalFilter) ([]JournalEntry, error) {
	var (
		clauses []string
		args    []any
	)
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.Outcome != "" {
		clauses = append(clauses, "outcome=?")
		args = append(args, f.Outcome)
	}
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),COALESCE(actor,''),outcome,COALESCE(message,''),payload_json FROM journal`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Actor, &e.Outcome, &e.Message, &e.PayloadJSON); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

// GetJournal returns one entry by id.
func (r Repo) GetJournal(ctx context.Context, id int64) (JournalEntry, error) {
	var e JournalEntry
	err := r.DB.QueryRowContext(ctx, `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),COALESCE(actor,''),outcome,COALESCE(message,''),payload_json FROM journal WHERE id=?`, id).
		Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.Actor, &e.Outcome, &e.Message, &e.PayloadJSON)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}
