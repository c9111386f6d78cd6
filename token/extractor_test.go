package token

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/TrentShailer/api-helper/b64"
)

// extractorHarness wires an extractor against in-process key-set and
// revocation servers.
type extractorHarness struct {
	signingKey *SigningKey
	extractor  *Extractor

	mu      sync.Mutex
	revoked map[string]bool
}

func newExtractorHarness(t *testing.T) *extractorHarness {
	t.Helper()

	jwk, pemBytes, _ := newTestJWK(t, "1")
	signingKey, err := LoadSigningKey(jwk, pemBytes)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	keySetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(KeySet{Keys: []JSONWebKey{jwk}})
	}))
	t.Cleanup(keySetServer.Close)

	h := &extractorHarness{signingKey: signingKey, revoked: map[string]bool{}}

	revocationServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.mu.Lock()
		revoked := h.revoked[r.URL.Path]
		h.mu.Unlock()
		if revoked {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(revocationServer.Close)

	h.extractor = &Extractor{
		Keys:        NewKeySetCache(keySetServer.URL, keySetServer.Client()),
		Revocations: NewRevocationClient(revocationServer.URL, revocationServer.Client()),
	}

	return h
}

func (h *extractorHarness) revoke(tid string) {
	h.mu.Lock()
	h.revoked["/"+tid] = true
	h.mu.Unlock()
}

// do runs a request with the given Authorization header through the
// extractor and reports the response status and the token the handler
// observed.
func (h *extractorHarness) do(t *testing.T, authorization string, optional bool) (int, *JSONWebToken) {
	t.Helper()

	var observed *JSONWebToken
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		observed, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	wrap := h.extractor.Require
	if optional {
		wrap = h.extractor.Optional
	}

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	if authorization != "" {
		request.Header.Set("Authorization", authorization)
	}

	recorder := httptest.NewRecorder()
	wrap(handler).ServeHTTP(recorder, request)

	return recorder.Code, observed
}

func (h *extractorHarness) issue(t *testing.T, subject string) (string, *JSONWebToken) {
	t.Helper()

	issued, signature, err := h.signingKey.Issue(subject, Common())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	compact, err := issued.Compact(signature)
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}
	return compact, issued
}

func TestExtractorAcceptsValidToken(t *testing.T) {
	h := newExtractorHarness(t)
	compact, issued := h.issue(t, "subject")

	status, observed := h.do(t, "bearer "+compact, false)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if observed == nil || observed.Claims.Sub != "subject" {
		t.Errorf("handler observed %+v", observed)
	}
	if observed.Claims.Tid != issued.Claims.Tid {
		t.Errorf("tid = %q, want %q", observed.Claims.Tid, issued.Claims.Tid)
	}

	// The scheme is case-insensitive.
	if status, _ := h.do(t, "Bearer "+compact, false); status != http.StatusOK {
		t.Errorf("capitalized scheme status = %d", status)
	}
}

func TestExtractorRejectsMalformedHeaders(t *testing.T) {
	h := newExtractorHarness(t)
	compact, _ := h.issue(t, "subject")

	cases := []string{
		"",
		"bearer",
		"bearer ",
		"bearer  " + compact,
		"basic " + compact,
		compact,
		"bearer not-a-jws",
		"bearer a.b",
	}

	for _, authorization := range cases {
		if status, _ := h.do(t, authorization, false); status != http.StatusUnauthorized {
			t.Errorf("Authorization %q status = %d, want 401", authorization, status)
		}
	}
}

func TestExtractorRejectsUnknownKid(t *testing.T) {
	h := newExtractorHarness(t)

	otherJWK, otherPEM, _ := newTestJWK(t, "rogue")
	otherKey, err := LoadSigningKey(otherJWK, otherPEM)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	issued, signature, err := otherKey.Issue("subject", Common())
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	compact, err := issued.Compact(signature)
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}

	if status, _ := h.do(t, "bearer "+compact, false); status != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", status)
	}
}

func TestExtractorLeeway(t *testing.T) {
	h := newExtractorHarness(t)

	// An expiry one second in the past is inside the leeway window.
	recent := &JSONWebToken{
		Header: Header{Alg: ES256, Typ: "JWT", Kid: "1"},
		Claims: TokenClaims{
			Tid: "T-recent",
			Exp: time.Now().Add(-time.Second).Unix(),
			Iat: time.Now().Add(-time.Hour).Unix(),
			Sub: "subject",
			Typ: Common(),
		},
	}
	if status := h.serveSigned(t, recent); status != http.StatusOK {
		t.Errorf("just-expired token status = %d, want 200 inside leeway", status)
	}

	// An expiry past the leeway window is rejected.
	stale := &JSONWebToken{
		Header: Header{Alg: ES256, Typ: "JWT", Kid: "1"},
		Claims: TokenClaims{
			Tid: "T-stale",
			Exp: time.Now().Add(-6 * time.Minute).Unix(),
			Iat: time.Now().Add(-time.Hour).Unix(),
			Sub: "subject",
			Typ: Common(),
		},
	}
	if status := h.serveSigned(t, stale); status != http.StatusUnauthorized {
		t.Errorf("stale token status = %d, want 401", status)
	}

	// An issue time far in the future is rejected.
	future := &JSONWebToken{
		Header: Header{Alg: ES256, Typ: "JWT", Kid: "1"},
		Claims: TokenClaims{
			Tid: "T-future",
			Exp: time.Now().Add(time.Hour).Unix(),
			Iat: time.Now().Add(10 * time.Minute).Unix(),
			Sub: "subject",
			Typ: Common(),
		},
	}
	if status := h.serveSigned(t, future); status != http.StatusUnauthorized {
		t.Errorf("future token status = %d, want 401", status)
	}
}

// serveSigned signs a hand-built token and runs it through the
// extractor.
func (h *extractorHarness) serveSigned(t *testing.T, token *JSONWebToken) int {
	t.Helper()

	headerSegment, err := token.Header.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	claimsSegment, err := token.Claims.Encode()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	signature, err := ES256.Sign(headerSegment+"."+claimsSegment, h.signingKey.PrivateKey)
	if err != nil {
		t.Fatalf("sign failed: %v", err)
	}

	compact, err := token.Compact(b64.Encode(signature))
	if err != nil {
		t.Fatalf("compact failed: %v", err)
	}

	status, _ := h.do(t, "bearer "+compact, false)
	return status
}

func TestExtractorRevocation(t *testing.T) {
	h := newExtractorHarness(t)
	compact, issued := h.issue(t, "subject")

	if status, _ := h.do(t, "bearer "+compact, false); status != http.StatusOK {
		t.Fatalf("status before revocation = %d", status)
	}

	h.revoke(issued.Claims.Tid)

	if status, _ := h.do(t, "bearer "+compact, false); status != http.StatusUnauthorized {
		t.Errorf("status after revocation = %d, want 401", status)
	}
}

func TestExtractorRevocationTransportError(t *testing.T) {
	h := newExtractorHarness(t)
	compact, _ := h.issue(t, "subject")

	// Point the revocation client at a closed endpoint.
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	broken.Close()
	h.extractor.Revocations = NewRevocationClient(broken.URL, nil)

	if status, _ := h.do(t, "bearer "+compact, false); status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", status)
	}
}

func TestOptionalExtractor(t *testing.T) {
	h := newExtractorHarness(t)
	compact, _ := h.issue(t, "subject")

	// Absent header passes through without a token.
	status, observed := h.do(t, "", true)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if observed != nil {
		t.Error("handler observed a token without an Authorization header")
	}

	// A present header goes through the full chain.
	status, observed = h.do(t, "bearer "+compact, true)
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	if observed == nil {
		t.Error("handler did not observe the token")
	}

	if status, _ := h.do(t, "bearer garbage", true); status != http.StatusUnauthorized {
		t.Errorf("garbage token status = %d, want 401", status)
	}
}
