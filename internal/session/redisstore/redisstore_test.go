package redisstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"ticketline/internal/session"
)

func TestKeyPrefix(t *testing.T) {
	s := New(nil, "", 0)
	if got := s.Key(session.KeyToken); got != "ticketline:session:token" {
		t.Fatalf("key = %q", got)
	}
	if got := New(nil, "app:", 0).Key("x"); got != "app:x" {
		t.Fatalf("key = %q", got)
	}
}

// Needs a reachable server; set TICKETLINE_TEST_REDIS_ADDR to run it.
func TestStorageAgainstRedis(t *testing.T) {
	addr := os.Getenv("TICKETLINE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TICKETLINE_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s, err := Dial(ctx, Options{Addr: addr, Prefix: "tl-test:" + uuid.NewString() + ":"})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer s.Close()
	var st session.Storage = s

	if _, ok, err := st.Get(session.KeyToken); err != nil || ok {
		t.Fatalf("fresh get: ok=%v err=%v", ok, err)
	}
	if err := st.Set(session.KeyToken, "abc"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if v, ok, _ := st.Get(session.KeyToken); !ok || v != "abc" {
		t.Fatalf("get = %q %v", v, ok)
	}
	if err := st.Delete(session.Keys...); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := st.Get(session.KeyToken); ok {
		t.Fatalf("token survived delete")
	}

	if err := s.Replace(session.Keys, map[string]string{session.KeyToken: "t1", session.KeyLoggedIn: "true"}); err != nil {
		t.Fatalf("replace: %v", err)
	}
	if ok, err := s.CompareAndDelete(session.KeyToken, "other", session.Keys...); err != nil || ok {
		t.Fatalf("mismatched compare: ok=%v err=%v", ok, err)
	}
	if ok, err := s.CompareAndDelete(session.KeyToken, "t1", session.Keys...); err != nil || !ok {
		t.Fatalf("matching compare: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := st.Get(session.KeyLoggedIn); ok {
		t.Fatalf("flag survived compare-and-delete")
	}
}

var (
	_ session.Replacer       = (*Storage)(nil)
	_ session.CompareDeleter = (*Storage)(nil)
)
