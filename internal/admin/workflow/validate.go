package workflow

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"ticketline/internal/admin/field"
	"ticketline/internal/domain"
)

// Rule is a client-side check for one draft key.
type Rule struct {
	Field    string
	Required bool
	// Pattern must match the text form of a non-empty value.
	Pattern *regexp.Regexp
	// Message replaces the default message when the rule fails.
	Message string
}

// Required is shorthand for a required-field rule.
func Required(key string) Rule {
	return Rule{Field: key, Required: true}
}

// Matches is shorthand for a format rule.
func Matches(key, pattern, message string) Rule {
	return Rule{Field: key, Pattern: regexp.MustCompile(pattern), Message: message}
}

// ValidationError reports the first failing rule. It never reaches the network.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Validate checks draft against rules in order.
func Validate(fields []field.Descriptor, rules []Rule, draft domain.Record) error {
	for _, r := range rules {
		v, present := draft[r.Field]
		text := valueText(v)
		empty := !present || v == nil || strings.TrimSpace(text) == ""
		if r.Required && empty {
			return &ValidationError{Field: r.Field, Message: message(r, labelOf(fields, r.Field)+" is required")}
		}
		if r.Pattern != nil && !empty && !r.Pattern.MatchString(text) {
			return &ValidationError{Field: r.Field, Message: message(r, labelOf(fields, r.Field)+" has an invalid format")}
		}
	}
	return nil
}

func message(r Rule, fallback string) string {
	if r.Message != "" {
		return r.Message
	}
	return fallback
}

func labelOf(fields []field.Descriptor, key string) string {
	for _, f := range fields {
		if f.Path == key {
			return f.Label
		}
	}
	return key
}

func valueText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	case []any:
		if len(x) == 0 {
			return ""
		}
		return fmt.Sprint(x...)
	default:
		return fmt.Sprint(x)
	}
}
