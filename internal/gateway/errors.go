package gateway

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Kind classifies a failed request.
type Kind int

const (
	// SessionExpired is a 401 or 403; the session has already been cleared.
	SessionExpired Kind = iota + 1
	// ServerRejected is any other non-2xx response.
	ServerRejected
	// Unreachable means no response was received.
	Unreachable
)

func (k Kind) String() string {
	switch k {
	case SessionExpired:
		return "session_expired"
	case ServerRejected:
		return "server_rejected"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is.
var (
	ErrSessionExpired = &Error{Kind: SessionExpired}
	ErrServerRejected = &Error{Kind: ServerRejected}
	ErrUnreachable    = &Error{Kind: Unreachable}
)

const unreachableMessage = "Unable to reach the server. Check your connection and try again."

// Error wraps every failure the gateway reports.
type Error struct {
	Kind   Kind
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	switch e.Kind {
	case SessionExpired:
		return fmt.Sprintf("session expired: status=%d", e.Status)
	case ServerRejected:
		return fmt.Sprintf("api error: status=%d body=%s", e.Status, e.Body)
	case Unreachable:
		if e.Err != nil {
			return "api unreachable: " + e.Err.Error()
		}
		return "api unreachable"
	default:
		return "api error"
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Status == 0 && t.Body == "" && t.Err == nil && t.Kind == e.Kind
}

// Message returns text suitable for showing to the user. Server rejections surface
// the backend's own message when the body carries one.
func (e *Error) Message() string {
	switch e.Kind {
	case SessionExpired:
		return "Your session has expired. Please log in again."
	case Unreachable:
		return unreachableMessage
	}
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("Request failed with status %d.", e.Status)
	}
	if gjson.Valid(body) {
		for _, path := range []string{"message", "error.message", "error", "detail", "title"} {
			if r := gjson.Get(body, path); r.Exists() && r.Type == gjson.String && r.String() != "" {
				return r.String()
			}
		}
		if errs := gjson.Get(body, "errors"); errs.IsArray() {
			var parts []string
			for _, item := range errs.Array() {
				if msg := item.Get("message"); msg.Exists() {
					parts = append(parts, msg.String())
				} else if item.Type == gjson.String {
					parts = append(parts, item.String())
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
	}
	return body
}

// IsSessionExpired reports whether err is a gateway SessionExpired failure.
func IsSessionExpired(err error) bool {
	return errors.Is(err, ErrSessionExpired)
}

// UserMessage renders any error for display, preferring gateway messages.
func UserMessage(err error) string {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.Message()
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
