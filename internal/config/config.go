package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// FileName is the workspace config file.
const FileName = "ticketline.yml"

// Session storage backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// Config models ticketline.yml.
type Config struct {
	API struct {
		BaseURL       string  `yaml:"base_url"`
		Prefix        string  `yaml:"prefix"`
		Timeout       string  `yaml:"timeout"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
	} `yaml:"api"`
	Display struct {
		Locale   string `yaml:"locale"`
		Timezone string `yaml:"timezone"`
	} `yaml:"display"`
	Session struct {
		Backend string `yaml:"backend"`
		Redis   Redis  `yaml:"redis"`
	} `yaml:"session"`
	Auth struct {
		DemoAdmin DemoAdmin `yaml:"demo_admin"`
	} `yaml:"auth"`
}

// Redis addresses the shared session store.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// DemoAdmin is the offline admin login. Off unless explicitly enabled.
type DemoAdmin struct {
	Enabled  bool   `yaml:"enabled"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Secret   string `yaml:"secret"`
	TTL      string `yaml:"ttl"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config.api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config.api.base_url must be an absolute URL")
	}
	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}
	if c.API.RatePerSecond < 0 {
		return fmt.Errorf("config.api.rate_per_second must not be negative")
	}
	if c.API.RatePerSecond > 0 && c.API.Burst < 1 {
		return fmt.Errorf("config.api.burst must be at least 1 when rate_per_second is set")
	}
	if c.Display.Locale != "" {
		if _, err := language.Parse(c.Display.Locale); err != nil {
			return fmt.Errorf("config.display.locale: %w", err)
		}
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Session.Backend {
	case "", BackendSQLite, BackendMemory:
	case BackendRedis:
		if c.Session.Redis.Addr == "" {
			return fmt.Errorf("config.session.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config.session.backend must be one of sqlite, redis, memory")
	}
	if d := c.Auth.DemoAdmin; d.Enabled {
		if d.Email == "" || d.Password == "" {
			return fmt.Errorf("config.auth.demo_admin needs email and password when enabled")
		}
		if len(d.Secret) < 16 {
			return fmt.Errorf("config.auth.demo_admin.secret must be at least 16 characters")
		}
		if _, err := c.DemoAdminTTL(); err != nil {
			return err
		}
	}
	return nil
}

// TimeoutDuration parses api.timeout, defaulting to 10s.
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.API.Timeout == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.api.timeout %q is not a positive duration", c.API.Timeout)
	}
	return d, nil
}

// DemoAdminTTL parses auth.demo_admin.ttl, defaulting to 8h.
func (c *Config) DemoAdminTTL() (time.Duration, error) {
	if c.Auth.DemoAdmin.TTL == "" {
		return 8 * time.Hour, nil
	}
	d, err := time.ParseDuration(c.Auth.DemoAdmin.TTL)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("config.auth.demo_admin.ttl %q is not a positive duration", c.Auth.DemoAdmin.TTL)
	}
	return d, nil
}

// Location resolves display.timezone. Empty means the local zone.
func (c *Config) Location() (*time.Location, error) {
	if c.Display.Timezone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Display.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config.display.timezone: %w", err)
	}
	return loc, nil
}

// Language resolves display.locale, defaulting to English.
func (c *Config) Language() language.Tag {
	if c.Display.Locale == "" {
		return language.English
	}
	tag, err := language.Parse(c.Display.Locale)
	if err != nil {
		return language.English
	}
	return tag
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML pointing at baseURL.
func GenerateDefault(baseURL string) string {
	return fmt.Sprintf(defaultTemplate, baseURL)
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(DefaultBaseURL))).Decode(&cfg)
	return &cfg
}

// DefaultBaseURL is where the development backend listens.
const DefaultBaseURL = "http://localhost:8080"

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `api:
  base_url: %s
  prefix: /api
  timeout: 10s
  rate_per_second: 0
  burst: 1

display:
  locale: en
  timezone: ""

session:
  backend: sqlite
  redis:
    addr: ""
    db: 0
    prefix: "ticketline:session:"

auth:
  demo_admin:
    enabled: false
    email: ""
    password: ""
    secret: ""
    ttl: 8h
`
