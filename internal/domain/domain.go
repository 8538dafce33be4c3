package domain

import (
	"fmt"
	"strconv"
)

// Record is one row of a managed entity. Its shape varies per kind and per endpoint.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ID returns the record identifier rendered as a path segment.
func (r Record) ID() string {
	switch v := r["id"].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprint(v)
	}
}

// Active reports the record's active flag. Missing or non-boolean values count as inactive.
func (r Record) Active() bool {
	b, _ := r["active"].(bool)
	return b
}

// Profile is the cached summary of the logged-in user.
type Profile struct {
	UserID    string `json:"userId"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// DisplayName joins first and last name, falling back to the email.
func (p Profile) DisplayName() string {
	name := p.FirstName
	if p.LastName != "" {
		if name != "" {
			name += " "
		}
		name += p.LastName
	}
	if name == "" {
		return p.Email
	}
	return name
}

// Country is a reference-data entry used by the registration form.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Registration is the payload sent to the register endpoint.
type Registration struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Country   string `json:"country,omitempty"`
	Birthdate string `json:"birthdate,omitempty"`
	Role      string `json:"role,omitempty"`
}
