package events

import (
	"context"
	"testing"
	"time"

	"ticketline/internal/admin/workflow"
	"ticketline/internal/db"
	"ticketline/internal/migrate"
	"ticketline/internal/repo"
)

func TestWriterRecordsWorkflowOutcomes(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	w := Writer{
		DB:    conn,
		Now:   func() time.Time { return now },
		Kind:  "tags",
		Actor: func() string { return "admin@example.com" },
	}
	var j workflow.Journal = w
	ctx := context.Background()
	if err := j.Record(ctx, workflow.Outcome{Entity: "Tag", Mode: workflow.Delete, RecordID: "t1", OK: true, Message: "Tag deleted"}); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := j.Record(ctx, workflow.Outcome{Entity: "Tag", Mode: workflow.Create, OK: false, Message: "Name taken"}); err != nil {
		t.Fatalf("record: %v", err)
	}

	entries, err := repo.Repo{DB: conn}.ListJournal(ctx, repo.JournalFilter{EntityKind: "tags"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d", len(entries))
	}
	rejected, ok := entries[0], entries[1]
	if rejected.Type != "workflow.create" || rejected.Outcome != "rejected" || rejected.Message != "Name taken" {
		t.Fatalf("rejected = %+v", rejected)
	}
	if ok.Type != "workflow.delete" || ok.EntityID != "t1" || ok.Actor != "admin@example.com" {
		t.Fatalf("ok = %+v", ok)
	}
	if ok.TS != "2024-06-01T09:30:00Z" || ok.PayloadJSON != `{"entity":"Tag"}` {
		t.Fatalf("ts/payload = %s %s", ok.TS, ok.PayloadJSON)
	}
}
