package token

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/TrentShailer/api-helper/problem"
	"github.com/rs/zerolog/log"
)

type contextKey string

const tokenContextKey contextKey = "token"

// DefaultLeeway is the clock-skew tolerance applied to the time claims
// of an incoming token.
const DefaultLeeway = 5 * time.Minute

// Extractor binds an incoming request to a verified, non-revoked
// token. Checks run in a fixed order and short-circuit on the first
// failure: bearer header shape, key lookup, signature, time claims
// within the leeway window, then revocation.
type Extractor struct {
	// The verifying-key cache.
	Keys *KeySetCache
	// The revocation client.
	Revocations *RevocationClient
	// The clock-skew tolerance. Zero means DefaultLeeway.
	Leeway time.Duration
}

// Require wraps a handler so it only runs with a verified token in the
// request context. Authentication failures respond 401; operational
// failures respond 500. Neither carries a body that reveals which
// check failed.
func (e *Extractor) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, response := e.Extract(r)
		if response != nil {
			response.Write(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
}

// Optional wraps a handler, verifying a token only when the
// Authorization header is present. A present header goes through the
// full check chain; an absent one passes the request through untouched.
func (e *Extractor) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, response := e.Extract(r)
		if response != nil {
			response.Write(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithToken(r.Context(), token)))
	})
}

// Extract runs the check chain against a request. On failure the
// response to write is returned instead of a token.
func (e *Extractor) Extract(r *http.Request) (*JSONWebToken, *ErrorResult) {
	compact, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, errorResult(problem.Unauthenticated())
	}

	header, ok := peekHeader(compact)
	if !ok {
		return nil, errorResult(problem.Unauthenticated())
	}

	key, err := e.Keys.Get(r.Context(), header.Kid)
	if err != nil {
		return nil, errorResult(problem.LogInternal(err, "could not get verifying key"))
	}
	if key == nil {
		return nil, errorResult(problem.Unauthenticated())
	}

	token, err := key.Verify(compact)
	if err != nil {
		var verifyErr *VerifyError
		if errors.As(err, &verifyErr) && verifyErr.Kind != VerifyCryptoOperation {
			// Malformed token rather than a failed operation.
			return nil, errorResult(problem.Unauthenticated())
		}
		return nil, errorResult(problem.LogInternal(err, "could not verify token"))
	}
	if token == nil {
		return nil, errorResult(problem.Unauthenticated())
	}

	leeway := e.Leeway
	if leeway == 0 {
		leeway = DefaultLeeway
	}

	now := time.Now()
	if token.Claims.ExpiresAt().Before(now.Add(-leeway)) {
		return nil, errorResult(problem.Unauthenticated())
	}
	if token.Claims.IssuedAt().After(now.Add(leeway)) {
		return nil, errorResult(problem.Unauthenticated())
	}

	if e.Revocations != nil {
		revoked, err := e.Revocations.IsRevoked(r.Context(), token.Claims.Tid)
		if err != nil {
			return nil, errorResult(problem.LogInternal(err, "could not check token revocation"))
		}
		if revoked {
			log.Warn().Str("tid", token.Claims.Tid).Msg("rejected revoked token")
			return nil, errorResult(problem.Unauthenticated())
		}
	}

	return token, nil
}

// ErrorResult is the response an extraction failure produces.
type ErrorResult struct {
	response problem.ErrorResponse
}

// Write writes the failure response.
func (e *ErrorResult) Write(w http.ResponseWriter) {
	e.response.Write(w)
}

// Status returns the HTTP status of the failure.
func (e *ErrorResult) Status() int {
	return e.response.Status
}

func errorResult(response problem.ErrorResponse) *ErrorResult {
	return &ErrorResult{response: response}
}

// bearerToken extracts the token from a bearer Authorization header.
// The scheme is case-insensitive, separated by exactly one space, and
// the token must be non-empty.
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	if token == "" || strings.ContainsRune(token, ' ') {
		return "", false
	}
	return token, true
}

// peekHeader decodes the JOSE header of a compact JWS without
// verifying anything else about the token.
func peekHeader(compact string) (Header, bool) {
	parts := strings.Split(compact, ".")
	if len(parts) != 3 {
		return Header{}, false
	}

	header, err := DecodeHeader(parts[0])
	if err != nil {
		return Header{}, false
	}

	return header, true
}

// WithToken stores a verified token in a context.
func WithToken(ctx context.Context, token *JSONWebToken) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// FromContext retrieves the verified token from a request context.
func FromContext(ctx context.Context) (*JSONWebToken, bool) {
	token, ok := ctx.Value(tokenContextKey).(*JSONWebToken)
	return token, ok
}
