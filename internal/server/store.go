package server

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ticketline/internal/domain"
	"ticketline/internal/entities"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrEmailTaken  = errors.New("email already registered")
	ErrBadLogin    = errors.New("invalid email or password")
	ErrUnknownKind = entities.ErrUnknownKind
)

// InvalidError is a rejected write; the message is shown to the client as is.
type InvalidError struct {
	Message string
}

func (e InvalidError) Error() string { return e.Message }

func invalid(format string, args ...any) error {
	return InvalidError{Message: fmt.Sprintf(format, args...)}
}

// relationKinds maps the embedded object key to the kind it references.
var relationKinds = map[string]string{
	"category":       "categories",
	"tags":           "tags",
	"act":            "acts",
	"event":          "events",
	"ticketCategory": "ticket-categories",
	"user":           "users",
	"role":           "roles",
}

const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// Store keeps every entity kind in memory, in insertion order.
type Store struct {
	mu        sync.RWMutex
	rows      map[string]map[string]domain.Record
	order     map[string][]string
	passwords map[string][]byte
	cost      int
	now       func() time.Time
}

// NewStore returns an empty store with the two built-in roles.
func NewStore(cost int) *Store {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	s := &Store{
		rows:      map[string]map[string]domain.Record{},
		order:     map[string][]string{},
		passwords: map[string][]byte{},
		cost:      cost,
		now:       time.Now,
	}
	for _, kind := range entities.Kinds() {
		s.rows[kind] = map[string]domain.Record{}
	}
	s.insert("roles", domain.Record{"name": RoleAdmin, "description": "Full access", "active": true})
	s.insert("roles", domain.Record{"name": RoleUser, "description": "Customer", "active": true})
	return s
}

// SeedAdmin creates an administrator account unless the email is taken.
func (s *Store) SeedAdmin(email, password string) error {
	_, err := s.Register(domain.Registration{
		FirstName: "Ada",
		LastName:  "Admin",
		Email:     email,
		Password:  password,
		Role:      RoleAdmin,
	})
	if errors.Is(err, ErrEmailTaken) {
		return nil
	}
	return err
}

// SeedCatalog adds a small set of categories, tags, acts and one event.
func (s *Store) SeedCatalog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	rock := s.insert("categories", domain.Record{"name": "Rock", "description": "Loud", "active": true})
	s.insert("categories", domain.Record{"name": "Jazz", "active": true})
	open := s.insert("tags", domain.Record{"name": "open-air", "active": true})
	s.insert("tags", domain.Record{"name": "seated", "active": true})
	band := s.insert("acts", domain.Record{"name": "The Ticketeers", "genre": "Rock", "active": true})
	s.insert("events", domain.Record{
		"title":      "Summer Night",
		"date":       s.now().AddDate(0, 1, 0).Format("2006-01-02T15:04:05"),
		"venue":      "Stadthalle",
		"categoryId": rock,
		"tagIds":     []any{open},
		"actId":      band,
		"active":     true,
	})
}

func (s *Store) insert(kind string, rec domain.Record) string {
	id := uuid.NewString()
	rec = rec.Clone()
	rec["id"] = id
	if _, ok := rec["createdDate"]; !ok {
		rec["createdDate"] = s.now().UTC().Format(time.RFC3339)
	}
	s.rows[kind][id] = rec
	s.order[kind] = append(s.order[kind], id)
	return id
}

func (s *Store) table(kind string) (map[string]domain.Record, error) {
	t, ok := s.rows[kind]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
	}
	return t, nil
}

// Counts returns the number of records per kind.
func (s *Store) Counts() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]int, len(s.rows))
	for kind, t := range s.rows {
		out[kind] = len(t)
	}
	return out
}

// List returns every record of kind with its relations embedded.
func (s *Store) List(kind string) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Record, 0, len(t))
	for _, id := range s.order[kind] {
		if rec, ok := t[id]; ok {
			out = append(out, s.embed(kind, rec))
		}
	}
	return out, nil
}

// Get returns one record with relations embedded.
func (s *Store) Get(kind, id string) (domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	rec, ok := t[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return s.embed(kind, rec), nil
}

// Create validates and stores a new record.
func (s *Store) Create(kind string, body domain.Record) (domain.Record, error) {
	if kind == "users" {
		p, err := s.Register(registrationFrom(body))
		if err != nil {
			return nil, err
		}
		rest := body.Clone()
		delete(rest, "password")
		rec, err := s.Update("users", p.UserID, rest)
		if err != nil {
			_ = s.Delete("users", p.UserID)
			return nil, err
		}
		return rec, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.table(kind); err != nil {
		return nil, err
	}
	rec := writable(body)
	if _, ok := rec["active"]; !ok {
		rec["active"] = true
	}
	if err := s.check(kind, "", rec); err != nil {
		return nil, err
	}
	id := s.insert(kind, rec)
	return s.embed(kind, s.rows[kind][id]), nil
}

// Update merges body into the stored record.
func (s *Store) Update(kind, id string, body domain.Record) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	cur, ok := t[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	next := cur.Clone()
	for k, v := range writable(body) {
		next[k] = v
	}
	if email, ok := next["email"].(string); ok && kind == "users" {
		next["email"] = strings.ToLower(strings.TrimSpace(email))
	}
	if err := s.check(kind, id, next); err != nil {
		return nil, err
	}
	if kind == "users" {
		if pw, _ := body["password"].(string); pw != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(pw), s.cost)
			if err != nil {
				return nil, err
			}
			s.passwords[id] = hash
		}
	}
	t[id] = next
	return s.embed(kind, next), nil
}

// SetActive flips the active flag.
func (s *Store) SetActive(kind, id string, active bool) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(kind)
	if err != nil {
		return nil, err
	}
	rec, ok := t[id]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	rec["active"] = active
	return s.embed(kind, rec), nil
}

// Delete removes a record. Records still referenced elsewhere cannot be deleted.
func (s *Store) Delete(kind, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.table(kind)
	if err != nil {
		return err
	}
	if _, ok := t[id]; !ok {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	if by := s.referencedBy(kind, id); by != "" {
		return invalid("%s is still used by %s", singular(kind), by)
	}
	delete(t, id)
	delete(s.passwords, id)
	ids := s.order[kind]
	for i, v := range ids {
		if v == id {
			s.order[kind] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Register creates a user account. An empty password creates an account that
// cannot log in, which is how administrators add users.
func (s *Store) Register(reg domain.Registration) (domain.Profile, error) {
	email := strings.ToLower(strings.TrimSpace(reg.Email))
	switch {
	case strings.TrimSpace(reg.FirstName) == "":
		return domain.Profile{}, invalid("First name is required")
	case strings.TrimSpace(reg.LastName) == "":
		return domain.Profile{}, invalid("Last name is required")
	case !strings.Contains(email, "@"):
		return domain.Profile{}, invalid("A valid email is required")
	case reg.Password != "" && len(reg.Password) < 8:
		return domain.Profile{}, invalid("Password must be at least 8 characters")
	}
	var hash []byte
	if reg.Password != "" {
		var err error
		hash, err = bcrypt.GenerateFromPassword([]byte(reg.Password), s.cost)
		if err != nil {
			return domain.Profile{}, err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userByEmail(email) != nil {
		return domain.Profile{}, ErrEmailTaken
	}
	roleName := strings.ToUpper(strings.TrimSpace(reg.Role))
	if roleName == "" {
		roleName = RoleUser
	}
	roleID := s.roleID(roleName)
	if roleID == "" {
		return domain.Profile{}, invalid("Unknown role %s", roleName)
	}
	rec := domain.Record{
		"firstName": strings.TrimSpace(reg.FirstName),
		"lastName":  strings.TrimSpace(reg.LastName),
		"email":     email,
		"roleId":    roleID,
		"active":    true,
	}
	if reg.Country != "" {
		rec["country"] = reg.Country
	}
	if reg.Birthdate != "" {
		rec["birthdate"] = reg.Birthdate
	}
	id := s.insert("users", rec)
	if hash != nil {
		s.passwords[id] = hash
	}
	return s.profile(s.rows["users"][id]), nil
}

// Authenticate checks credentials of an active account.
func (s *Store) Authenticate(email, password string) (domain.Profile, domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec := s.userByEmail(strings.ToLower(strings.TrimSpace(email)))
	if rec == nil || !rec.Active() {
		return domain.Profile{}, nil, ErrBadLogin
	}
	hash := s.passwords[rec.ID()]
	if hash == nil || bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
		return domain.Profile{}, nil, ErrBadLogin
	}
	return s.profile(rec), s.embed("users", rec), nil
}

// EmailExists reports whether an account uses email.
func (s *Store) EmailExists(email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userByEmail(strings.ToLower(strings.TrimSpace(email))) != nil
}

func (s *Store) userByEmail(email string) domain.Record {
	for _, rec := range s.rows["users"] {
		if e, _ := rec["email"].(string); e == email {
			return rec
		}
	}
	return nil
}

func (s *Store) roleID(name string) string {
	for _, rec := range s.rows["roles"] {
		if n, _ := rec["name"].(string); n == name {
			return rec.ID()
		}
	}
	return ""
}

func (s *Store) profile(user domain.Record) domain.Profile {
	p := domain.Profile{UserID: user.ID()}
	p.Email, _ = user["email"].(string)
	p.FirstName, _ = user["firstName"].(string)
	p.LastName, _ = user["lastName"].(string)
	if roleID, _ := user["roleId"].(string); roleID != "" {
		if role, ok := s.rows["roles"][roleID]; ok {
			p.Role, _ = role["name"].(string)
		}
	}
	return p
}

// embed replaces relation id keys with the referenced records.
func (s *Store) embed(kind string, rec domain.Record) domain.Record {
	out := rec.Clone()
	b, err := entities.Lookup(kind)
	if err != nil {
		return out
	}
	for nested, idKey := range b.Relations {
		raw, ok := out[idKey]
		if !ok {
			continue
		}
		target := s.rows[relationKinds[nested]]
		switch v := raw.(type) {
		case []any:
			list := make([]any, 0, len(v))
			for _, id := range v {
				if ref, ok := target[fmt.Sprint(id)]; ok {
					list = append(list, summary(ref))
				}
			}
			out[nested] = list
		default:
			if ref, ok := target[fmt.Sprint(v)]; ok {
				out[nested] = summary(ref)
			}
		}
		delete(out, idKey)
	}
	return out
}

// check enforces the backend's own rules, which are stricter than the client's.
func (s *Store) check(kind, id string, rec domain.Record) error {
	b, err := entities.Lookup(kind)
	if err != nil {
		return err
	}
	for nested, idKey := range b.Relations {
		raw, ok := rec[idKey]
		if !ok || raw == nil || raw == "" {
			continue
		}
		target := s.rows[relationKinds[nested]]
		ids := []any{raw}
		if list, ok := raw.([]any); ok {
			ids = list
		}
		for _, ref := range ids {
			if _, ok := target[fmt.Sprint(ref)]; !ok {
				return invalid("Unknown %s %v", nested, ref)
			}
		}
	}
	switch kind {
	case "ticket-categories":
		if price, ok := number(rec["price"]); !ok || price <= 0 {
			return invalid("Price must be positive")
		}
	case "ratings":
		if score, ok := number(rec["score"]); !ok || score < 1 || score > 5 {
			return invalid("Score must be between 1 and 5")
		}
	case "roles":
		name, _ := rec["name"].(string)
		if name == "" {
			return invalid("Name is required")
		}
		for otherID, other := range s.rows["roles"] {
			if n, _ := other["name"].(string); otherID != id && n == name {
				return invalid("Role %s already exists", name)
			}
		}
	case "users":
		email, _ := rec["email"].(string)
		if other := s.userByEmail(strings.ToLower(email)); other != nil && other.ID() != id {
			return ErrEmailTaken
		}
	}
	for _, key := range requiredKeys[kind] {
		if v, ok := rec[key]; !ok || v == nil || v == "" {
			return invalid("%s is required", key)
		}
	}
	return nil
}

var requiredKeys = map[string][]string{
	"events":        {"title", "date"},
	"acts":          {"name"},
	"categories":    {"name"},
	"tags":          {"name"},
	"tickets":       {"eventId", "ticketCategoryId"},
	"notifications": {"title", "message"},
}

func (s *Store) referencedBy(kind, id string) string {
	kinds := make([]string, 0, len(s.rows))
	for k := range s.rows {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, other := range kinds {
		b, err := entities.Lookup(other)
		if err != nil {
			continue
		}
		for nested, idKey := range b.Relations {
			if relationKinds[nested] != kind {
				continue
			}
			for _, rec := range s.rows[other] {
				raw := rec[idKey]
				refs := []any{raw}
				if list, ok := raw.([]any); ok {
					refs = list
				}
				for _, ref := range refs {
					if ref != nil && fmt.Sprint(ref) == id {
						return other
					}
				}
			}
		}
	}
	return ""
}

// writable drops keys the client may not set directly.
func writable(body domain.Record) domain.Record {
	out := body.Clone()
	delete(out, "id")
	delete(out, "password")
	delete(out, "createdDate")
	for nested := range relationKinds {
		if _, ok := out[nested].(map[string]any); ok {
			delete(out, nested)
		}
		if _, ok := out[nested].([]any); ok {
			delete(out, nested)
		}
	}
	if out == nil {
		out = domain.Record{}
	}
	return out
}

func summary(ref domain.Record) map[string]any {
	out := map[string]any{"id": ref.ID()}
	for _, k := range []string{"name", "title", "email"} {
		if v, ok := ref[k]; ok {
			out[k] = v
		}
	}
	return out
}

func registrationFrom(body domain.Record) domain.Registration {
	str := func(k string) string {
		v, _ := body[k].(string)
		return v
	}
	return domain.Registration{
		FirstName: str("firstName"),
		LastName:  str("lastName"),
		Email:     str("email"),
		Password:  str("password"),
		Country:   str("country"),
		Birthdate: str("birthdate"),
		Role:      str("role"),
	}
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		var f float64
		if _, err := fmt.Sscan(n, &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func singular(kind string) string {
	if b, err := entities.Lookup(kind); err == nil {
		return b.Name
	}
	return kind
}
