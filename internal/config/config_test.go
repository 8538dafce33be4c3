package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/text/language"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.API.BaseURL != DefaultBaseURL {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
	if cfg.Session.Backend != BackendSQLite {
		t.Fatalf("backend = %q", cfg.Session.Backend)
	}
	if cfg.Auth.DemoAdmin.Enabled {
		t.Fatalf("demo admin must be off by default")
	}
	if d, _ := cfg.TimeoutDuration(); d != 10*time.Second {
		t.Fatalf("timeout = %s", d)
	}
}

func TestFromYAMLOverlaysDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("api:\n  base_url: https://tickets.example.com\ndisplay:\n  locale: de\n  timezone: Europe/Vienna\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.API.Prefix != "/api" {
		t.Fatalf("prefix should keep default, got %q", cfg.API.Prefix)
	}
	if cfg.Language() != language.German {
		t.Fatalf("language = %s", cfg.Language())
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Europe/Vienna" {
		t.Fatalf("location = %v, %v", loc, err)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"relative url":    "api:\n  base_url: /api\n",
		"bad timeout":     "api:\n  timeout: soon\n",
		"rate no burst":   "api:\n  rate_per_second: 5\n  burst: 0\n",
		"bad backend":     "session:\n  backend: cookie\n",
		"redis no addr":   "session:\n  backend: redis\n",
		"bad locale":      "display:\n  locale: \"!!\"\n",
		"bad zone":        "display:\n  timezone: Mars/Olympus\n",
		"demo no secret":  "auth:\n  demo_admin:\n    enabled: true\n    email: a@b.c\n    password: pw\n",
		"demo no creds":   "auth:\n  demo_admin:\n    enabled: true\n    secret: 0123456789abcdef\n",
		"not yaml at all": "api: [",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadAndLoadOptional(t *testing.T) {
	dir := t.TempDir()
	if cfg, err := LoadOptional(dir); err != nil || cfg != nil {
		t.Fatalf("missing file: cfg=%v err=%v", cfg, err)
	}
	if _, err := Load(dir); err == nil || !strings.Contains(err.Error(), "tl config init") {
		t.Fatalf("expected hint, got %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(GenerateDefault("http://127.0.0.1:9999")), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "http://127.0.0.1:9999" {
		t.Fatalf("base url = %q", cfg.API.BaseURL)
	}
	if Path("") != FileName {
		t.Fatalf("path = %q", Path(""))
	}
}
