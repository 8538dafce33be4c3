package repo

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"ticketline/internal/db"
	"ticketline/internal/domain"
	"ticketline/internal/migrate"
	"ticketline/internal/session"
)

func openTestDB(t *testing.T, workspace string) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestKVRoundTrip(t *testing.T) {
	kv := Repo{DB: openTestDB(t, t.TempDir())}.KV()
	if _, ok, err := kv.Get("token"); err != nil || ok {
		t.Fatalf("empty get: ok=%v err=%v", ok, err)
	}
	if err := kv.Set("token", "a"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set("token", "b"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	if v, ok, _ := kv.Get("token"); !ok || v != "b" {
		t.Fatalf("get = %q %v", v, ok)
	}
	if err := kv.Set("userEmail", "x@y.z"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Delete("token", "userEmail", "missing"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := kv.Get("userEmail"); ok {
		t.Fatalf("userEmail survived delete")
	}
}

func TestSessionSurvivesRestart(t *testing.T) {
	ws := t.TempDir()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	first := openTestDB(t, ws)
	store := session.New(Repo{DB: first}.KV(), session.Options{})
	if err := store.Login(tok, domain.Profile{UserID: "7", Email: "ann@example.com", Role: "ADMIN"}); err != nil {
		t.Fatalf("login: %v", err)
	}
	_ = first.Close()

	second := openTestDB(t, ws)
	restored := session.New(Repo{DB: second}.KV(), session.Options{})
	if err := restored.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !restored.IsAuthenticated() {
		t.Fatalf("expected restored session")
	}
	p, ok := restored.CurrentProfile()
	if !ok || p.Email != "ann@example.com" || p.Role != "ADMIN" {
		t.Fatalf("profile = %+v ok=%v", p, ok)
	}
	if err := restored.Logout(); err != nil {
		t.Fatalf("logout: %v", err)
	}
	var n int
	if err := second.QueryRow(`SELECT COUNT(*) FROM session_kv`).Scan(&n); err != nil || n != 0 {
		t.Fatalf("rows left after logout: %d err=%v", n, err)
	}
}

func TestJournal(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	r := Repo{DB: openTestDB(t, t.TempDir()), Now: func() time.Time { return now }}
	ctx := context.Background()
	for _, e := range []JournalEntry{
		{Type: "workflow.delete", EntityKind: "tags", EntityID: "t1", Outcome: "ok", Message: "Tag deleted"},
		{Type: "workflow.create", EntityKind: "events", Outcome: "rejected", Message: "Title taken"},
		{Type: "workflow.toggle", EntityKind: "tags", EntityID: "t2", Outcome: "ok"},
	} {
		if _, err := r.InsertJournal(ctx, e); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	all, err := r.ListJournal(ctx, JournalFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Type != "workflow.toggle" {
		t.Fatalf("unexpected order: %+v", all)
	}
	if all[0].PayloadJSON != "{}" || all[0].TS == "" {
		t.Fatalf("defaults not applied: %+v", all[0])
	}
	tags, _ := r.ListJournal(ctx, JournalFilter{EntityKind: "tags", Limit: 1})
	if len(tags) != 1 || tags[0].EntityID != "t2" {
		t.Fatalf("filtered = %+v", tags)
	}
	rejected, _ := r.ListJournal(ctx, JournalFilter{Outcome: "rejected"})
	if len(rejected) != 1 || rejected[0].EntityID != "" {
		t.Fatalf("rejected = %+v", rejected)
	}
	if _, err := r.GetJournal(ctx, 999); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	got, err := r.GetJournal(ctx, all[2].ID)
	if err != nil || got.Message != "Tag deleted" {
		t.Fatalf("get = %+v err=%v", got, err)
	}
}

func TestKVReplaceAndCompareAndDelete(t *testing.T) {
	ws := t.TempDir()
	kv := Repo{DB: openTestDB(t, ws)}.KV()
	if err := kv.Set(session.KeyUserEmail, "old@x.y"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Replace(session.Keys, map[string]string{session.KeyToken: "t1", session.KeyLoggedIn: "true"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if _, ok, _ := kv.Get(session.KeyUserEmail); ok {
		t.Fatalf("replace kept a cleared key")
	}

	// A second connection stands in for another process sharing the workspace.
	other := Repo{DB: openTestDB(t, ws)}.KV()
	if ok, err := other.CompareAndDelete(session.KeyToken, "stale", session.Keys...); err != nil || ok {
		t.Fatalf("stale compare: ok=%v err=%v", ok, err)
	}
	if ok, err := other.CompareAndDelete(session.KeyToken, "t1", session.Keys...); err != nil || !ok {
		t.Fatalf("matching compare: ok=%v err=%v", ok, err)
	}
	if ok, err := kv.CompareAndDelete(session.KeyToken, "t1", session.Keys...); err != nil || ok {
		t.Fatalf("second logout must lose: ok=%v err=%v", ok, err)
	}
	for _, k := range session.Keys {
		if _, ok, _ := kv.Get(k); ok {
			t.Fatalf("key %s survived", k)
		}
	}

	if err := kv.Set(session.KeyLoggedIn, "true"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if ok, err := kv.CompareAndDelete(session.KeyToken, "", session.Keys...); err != nil || !ok {
		t.Fatalf("anonymous compare: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := kv.Get(session.KeyLoggedIn); ok {
		t.Fatalf("leftover flag not cleared")
	}
}

var (
	_ session.Replacer       = KV{}
	_ session.CompareDeleter = KV{}
)

