// Package account runs the login, registration and lookup flows on top of the
// gateway and session store.
package account

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"

	"ticketline/internal/domain"
	"ticketline/internal/gateway"
	"ticketline/internal/session"
	"ticketline/internal/token"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNoToken            = errors.New("login response carried no token")
)

// Transport is the gateway surface the service needs.
type Transport interface {
	Raw(ctx context.Context, method, endpoint string, body any) ([]byte, error)
}

// DemoAdmin is an offline administrator login that never touches the backend.
type DemoAdmin struct {
	Enabled  bool
	Email    string
	Password string
	Secret   string
	TTL      time.Duration
}

type Config struct {
	Transport Transport
	Session   *session.Store
	DemoAdmin DemoAdmin
	Logger    *log.Logger
	Now       func() time.Time
}

type Service struct {
	transport Transport
	session   *session.Store
	demo      DemoAdmin
	logger    *log.Logger
	now       func() time.Time
}

func New(cfg Config) *Service {
	s := &Service{
		transport: cfg.Transport,
		session:   cfg.Session,
		demo:      cfg.DemoAdmin,
		logger:    cfg.Logger,
		now:       cfg.Now,
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// tokenPaths are where backends put the credential in a login response.
var tokenPaths = []string{"token", "accessToken", "access_token", "jwt", "data.token"}

// Login authenticates and persists the session.
func (s *Service) Login(ctx context.Context, email, password string) (domain.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return domain.Profile{}, errors.New("email and password are required")
	}
	if s.demoMatches(email, password) {
		return s.demoLogin(email)
	}
	data, err := s.transport.Raw(ctx, http.MethodPost, "/users/login", map[string]string{
		"email":    email,
		"password": password,
	})
	if err != nil {
		if gateway.IsSessionExpired(err) {
			return domain.Profile{}, ErrInvalidCredentials
		}
		return domain.Profile{}, err
	}
	return s.adopt(data, email)
}

// Register creates an account. When the backend answers with a credential the new
// user is logged in; ok reports whether that happened.
func (s *Service) Register(ctx context.Context, reg domain.Registration) (domain.Profile, bool, error) {
	if err := validateRegistration(reg); err != nil {
		return domain.Profile{}, false, err
	}
	data, err := s.transport.Raw(ctx, http.MethodPost, "/users/register", reg)
	if err != nil {
		return domain.Profile{}, false, err
	}
	if findToken(data) == "" {
		return domain.Profile{Email: reg.Email, FirstName: reg.FirstName, LastName: reg.LastName, Role: reg.Role}, false, nil
	}
	p, err := s.adopt(data, reg.Email)
	return p, err == nil, err
}

// EmailExists asks whether an account already uses email.
func (s *Service) EmailExists(ctx context.Context, email string) (bool, error) {
	data, err := s.transport.Raw(ctx, http.MethodGet, "/users/exists?email="+url.QueryEscape(strings.TrimSpace(email)), nil)
	if err != nil {
		return false, err
	}
	r := gjson.ParseBytes(data)
	if r.IsObject() {
		for _, key := range []string{"exists", "available"} {
			if v := r.Get(key); v.Exists() {
				if key == "available" {
					return !v.Bool(), nil
				}
				return v.Bool(), nil
			}
		}
		return false, fmt.Errorf("unexpected exists response: %s", strings.TrimSpace(string(data)))
	}
	return r.Bool(), nil
}

// Countries returns the registration country list. Plain string entries become
// countries without a code.
func (s *Service) Countries(ctx context.Context) ([]domain.Country, error) {
	data, err := s.transport.Raw(ctx, http.MethodGet, "/users/countries", nil)
	if err != nil {
		return nil, err
	}
	list := gjson.ParseBytes(data)
	if list.IsObject() {
		for _, key := range []string{"items", "content", "data", "countries"} {
			if inner := list.Get(key); inner.IsArray() {
				list = inner
				break
			}
		}
	}
	out := []domain.Country{}
	for _, item := range list.Array() {
		switch {
		case item.Type == gjson.String:
			out = append(out, domain.Country{Name: item.String()})
		case item.IsObject():
			c := domain.Country{
				Code: firstString(item, "code", "iso", "isoCode", "id"),
				Name: firstString(item, "name", "label", "countryName"),
			}
			if c.Name == "" {
				c.Name = c.Code
			}
			if c.Name != "" {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// Logout ends the session.
func (s *Service) Logout() error {
	return s.session.Logout()
}

// Identity is the current login as seen by the client.
type Identity struct {
	Profile       domain.Profile `json:"profile"`
	Authenticated bool           `json:"authenticated"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty"`
}

// WhoAmI reports the stored profile and whether its credential is still live.
func (s *Service) WhoAmI() (Identity, bool) {
	p, ok := s.session.CurrentProfile()
	if !ok {
		return Identity{}, false
	}
	id := Identity{Profile: p, Authenticated: s.session.IsAuthenticated()}
	if exp, ok := s.session.Expiry(); ok {
		id.ExpiresAt = &exp
	}
	return id, true
}

func (s *Service) adopt(data []byte, email string) (domain.Profile, error) {
	tok := findToken(data)
	if tok == "" {
		return domain.Profile{}, ErrNoToken
	}
	profile := profileFrom(data, tok)
	if profile.Email == "" {
		profile.Email = email
	}
	if err := s.session.Login(tok, profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

func (s *Service) demoMatches(email, password string) bool {
	d := s.demo
	if !d.Enabled || d.Email == "" || d.Password == "" {
		return false
	}
	emailOK := strings.EqualFold(email, d.Email)
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(d.Password)) == 1
	return emailOK && passOK
}

func (s *Service) demoLogin(email string) (domain.Profile, error) {
	ttl := s.demo.TTL
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}
	now := s.now()
	profile := domain.Profile{UserID: "demo-admin", Email: email, FirstName: "Demo", LastName: "Admin", Role: "ADMIN"}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":       profile.UserID,
		"userId":    profile.UserID,
		"email":     profile.Email,
		"firstName": profile.FirstName,
		"lastName":  profile.LastName,
		"role":      profile.Role,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}).SignedString([]byte(s.demo.Secret))
	if err != nil {
		return domain.Profile{}, fmt.Errorf("sign demo token: %w", err)
	}
	s.logger.Printf("WARNING: demo admin login for %s; the token is minted locally and the backend will reject it unless it shares the secret", email)
	if err := s.session.Login(tok, profile); err != nil {
		return domain.Profile{}, err
	}
	return profile, nil
}

func findToken(data []byte) string {
	if !gjson.ValidBytes(data) {
		return ""
	}
	for _, p := range tokenPaths {
		if v := gjson.GetBytes(data, p); v.Type == gjson.String && v.String() != "" {
			return strings.TrimPrefix(v.String(), "Bearer ")
		}
	}
	return ""
}

// profileFrom prefers the response's user object and falls back to token claims.
func profileFrom(data []byte, tok string) domain.Profile {
	var p domain.Profile
	if u := gjson.GetBytes(data, "user"); u.IsObject() {
		p = domain.Profile{
			UserID:    firstString(u, "userId", "id"),
			Email:     firstString(u, "email"),
			FirstName: firstString(u, "firstName"),
			LastName:  firstString(u, "lastName"),
			Role:      firstString(u, "role.name", "role"),
		}
	}
	claims, ok := token.Claims(tok)
	if !ok {
		return p
	}
	fill := func(dst *string, keys ...string) {
		if *dst != "" {
			return
		}
		for _, k := range keys {
			if v, ok := claims[k]; ok && v != nil {
				switch x := v.(type) {
				case string:
					*dst = x
				case float64:
					*dst = fmt.Sprint(int64(x))
				default:
					continue
				}
				if *dst != "" {
					return
				}
			}
		}
	}
	fill(&p.UserID, "userId", "sub")
	fill(&p.Email, "email")
	fill(&p.FirstName, "firstName")
	fill(&p.LastName, "lastName")
	fill(&p.Role, "role")
	return p
}

func firstString(r gjson.Result, paths ...string) string {
	for _, p := range paths {
		v := r.Get(p)
		if !v.Exists() {
			continue
		}
		if v.Type == gjson.String || v.Type == gjson.Number {
			if s := v.String(); s != "" {
				return s
			}
		}
	}
	return ""
}

func validateRegistration(r domain.Registration) error {
	switch {
	case strings.TrimSpace(r.FirstName) == "":
		return errors.New("first name is required")
	case strings.TrimSpace(r.LastName) == "":
		return errors.New("last name is required")
	case !strings.Contains(r.Email, "@"):
		return errors.New("a valid email is required")
	case len(r.Password) < 8:
		return errors.New("password must be at least 8 characters")
	}
	if r.Birthdate != "" {
		if _, err := time.Parse("2006-01-02", r.Birthdate); err != nil {
			return errors.New("birthdate must look like 1990-01-31")
		}
	}
	return nil
}
