// Package apikey validates a configurable header against an allow-list
// of keys. Intended for internal service-to-service callers.
package apikey

import (
	"context"
	"crypto/subtle"
	"net/http"

	"github.com/TrentShailer/api-helper/problem"
)

// DefaultHeader is the header checked when none is configured.
const DefaultHeader = "X-TS-API-Key"

type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// Validator checks a presented API key against an allow-list. The
// comparison is case-sensitive, over the full value, and constant-time
// per candidate.
type Validator struct {
	// The header carrying the key. Empty means DefaultHeader.
	Header string
	// The keys that are accepted.
	AllowedKeys []string
}

// NewValidator creates a validator for the allow-list. An empty header
// falls back to DefaultHeader.
func NewValidator(header string, allowedKeys []string) *Validator {
	if header == "" {
		header = DefaultHeader
	}
	return &Validator{Header: header, AllowedKeys: allowedKeys}
}

// Validate extracts and checks the key on a request. Returns the
// presented key when it is a member of the allow-list.
func (v *Validator) Validate(r *http.Request) (string, bool) {
	header := v.Header
	if header == "" {
		header = DefaultHeader
	}

	presented := r.Header.Get(header)
	if presented == "" {
		return "", false
	}

	matched := false
	for _, allowed := range v.AllowedKeys {
		if subtle.ConstantTimeCompare([]byte(presented), []byte(allowed)) == 1 {
			matched = true
		}
	}

	if !matched {
		return "", false
	}
	return presented, true
}

// Require wraps a handler so it only runs when the request presents an
// allowed API key. Missing or unknown keys respond 401 with no body.
func (v *Validator) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := v.Validate(r)
		if !ok {
			problem.Unauthenticated().Write(w)
			return
		}

		ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// FromContext retrieves the validated API key from a request context.
func FromContext(ctx context.Context) (string, bool) {
	key, ok := ctx.Value(apiKeyContextKey).(string)
	return key, ok
}
