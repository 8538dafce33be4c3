// Package session owns the persisted login state: the bearer credential, the cached
// profile summary and the logged-in flag. No other package touches the storage keys.
package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"ticketline/internal/domain"
	"ticketline/internal/token"
)

// Navigator receives the forced redirect to the login entry point.
type Navigator interface {
	ToLogin()
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func()

func (f NavigatorFunc) ToLogin() { f() }

// Options tune a Store.
type Options struct {
	Navigator Navigator
	Now       func() time.Time
	Logger    *log.Logger
}

// Store is the single owner of session state.
type Store struct {
	storage Storage
	nav     Navigator
	now     func() time.Time
	logger  *log.Logger

	// mu serialises writers; reads go straight to storage.
	mu sync.Mutex
}

// New builds a Store over storage.
func New(storage Storage, opts Options) *Store {
	if storage == nil {
		storage = NewMemoryStorage()
	}
	s := &Store{storage: storage, nav: opts.Navigator, now: opts.Now, logger: opts.Logger}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	return s
}

// Init reconciles persisted state loaded from a previous run. A logged-in flag without
// a credential is dropped; an expired credential is left for the gateway to clear.
func (s *Store) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, _, err := s.storage.Get(KeyToken)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if tok == "" {
		return s.storage.Delete(Keys...)
	}
	flag, _, err := s.storage.Get(KeyLoggedIn)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if flag != "true" {
		return s.storage.Set(KeyLoggedIn, "true")
	}
	return nil
}

// Login replaces any prior session with tok and profile.
func (s *Store) Login(tok string, profile domain.Profile) error {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return errors.New("token required")
	}
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	values := map[string]string{
		KeyToken:     tok,
		KeyUserData:  string(data),
		KeyUserEmail: profile.Email,
		KeyLoggedIn:  "true",
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.storage.(Replacer); ok {
		if err := r.Replace(Keys, values); err != nil {
			return fmt.Errorf("persist session: %w", err)
		}
		return nil
	}
	if err := s.storage.Delete(Keys...); err != nil {
		return fmt.Errorf("reset session: %w", err)
	}
	for _, k := range Keys {
		if err := s.storage.Set(k, values[k]); err != nil {
			_ = s.storage.Delete(Keys...)
			return fmt.Errorf("persist %s: %w", k, err)
		}
	}
	return nil
}

// Logout clears the session and redirects to login. Calling it repeatedly is harmless.
func (s *Store) Logout() error {
	s.mu.Lock()
	err := s.storage.Delete(Keys...)
	s.mu.Unlock()
	s.toLogin()
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Expire logs out only if the persisted credential is still sent, the credential a
// rejected request carried. It reports whether the logout happened. Concurrent
// rejections of the same credential therefore log out once. A request sent without
// a credential (sent == "") clears any leftover keys and redirects, unless a login
// has stored a credential since.
func (s *Store) Expire(sent string) bool {
	s.mu.Lock()
	cleared, err := s.compareAndClear(sent)
	s.mu.Unlock()
	if err != nil {
		s.logger.Printf("session: clear on expiry: %v", err)
	}
	if !cleared {
		return false
	}
	s.toLogin()
	return true
}

func (s *Store) compareAndClear(sent string) (bool, error) {
	if cd, ok := s.storage.(CompareDeleter); ok {
		return cd.CompareAndDelete(KeyToken, sent, Keys...)
	}
	current, _, err := s.storage.Get(KeyToken)
	if err != nil {
		return false, fmt.Errorf("read token: %w", err)
	}
	if current != sent {
		return false, nil
	}
	// The credential matched; a failed delete still ends the session locally.
	return true, s.storage.Delete(Keys...)
}

// IsAuthenticated re-checks the persisted credential on every call.
func (s *Store) IsAuthenticated() bool {
	tok := s.Token()
	if tok == "" {
		return false
	}
	return token.IsLive(tok, s.now())
}

// Token returns the persisted credential or "".
func (s *Store) Token() string {
	tok, _, err := s.storage.Get(KeyToken)
	if err != nil {
		s.logger.Printf("session: read token: %v", err)
		return ""
	}
	return tok
}

// CurrentProfile returns the cached profile summary.
func (s *Store) CurrentProfile() (domain.Profile, bool) {
	raw, ok, err := s.storage.Get(KeyUserData)
	if err != nil || !ok || raw == "" {
		return domain.Profile{}, false
	}
	var p domain.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		s.logger.Printf("session: decode profile: %v", err)
		return domain.Profile{}, false
	}
	return p, true
}

// Expiry returns the persisted credential's expiry, if any.
func (s *Store) Expiry() (time.Time, bool) {
	return token.ExpiryOf(s.Token())
}

func (s *Store) toLogin() {
	if s.nav != nil {
		s.nav.ToLogin()
	}
}
