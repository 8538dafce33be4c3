// Package token inspects bearer credentials on the client side. It never verifies
// signatures; the backend remains the authority on whether a token is accepted.
package token

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var parser = jwt.NewParser(jwt.WithPaddingAllowed())

// Claims decodes the middle segment of token into a claims mapping.
func Claims(token string) (jwt.MapClaims, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, false
	}
	for _, p := range parts {
		if p == "" {
			return nil, false
		}
	}
	raw, err := parser.DecodeSegment(parts[1])
	if err != nil {
		return nil, false
	}
	var claims jwt.MapClaims
	if err := json.Unmarshal(raw, &claims); err != nil || claims == nil {
		return nil, false
	}
	return claims, true
}

// IsStructurallyValid reports whether token has three non-empty segments and a
// middle segment that decodes to a JSON object.
func IsStructurallyValid(token string) bool {
	_, ok := Claims(token)
	return ok
}

// ExpiryOf returns the exp claim of token.
func ExpiryOf(token string) (time.Time, bool) {
	claims, ok := Claims(token)
	if !ok {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}

// IsLive reports whether token is structurally valid and expires strictly after now.
// A token whose expiry equals now is not live.
func IsLive(token string, now time.Time) bool {
	exp, ok := ExpiryOf(token)
	if !ok {
		return false
	}
	return exp.After(now)
}
