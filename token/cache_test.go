package token

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// keySetServer serves a mutable key set and counts fetches.
type keySetServer struct {
	server *httptest.Server
	keys   atomic.Pointer[[]JSONWebKey]
	hits   atomic.Int64
}

func newKeySetServer(t *testing.T, keys ...JSONWebKey) *keySetServer {
	t.Helper()

	s := &keySetServer{}
	s.keys.Store(&keys)
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(KeySet{Keys: *s.keys.Load()}); err != nil {
			t.Errorf("failed to encode key set: %v", err)
		}
	}))
	t.Cleanup(s.server.Close)

	return s
}

func TestGetUnknownKidTriggersOneRefresh(t *testing.T) {
	jwk, _, _ := newTestJWK(t, "K1")
	server := newKeySetServer(t, jwk)

	cache := NewKeySetCache(server.server.URL, server.server.Client())

	// A cold cache refreshes once and the key becomes usable.
	key, err := cache.Get(context.Background(), "K1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if key == nil {
		t.Fatal("key K1 missing after refresh")
	}
	if got := server.hits.Load(); got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}

	// An unknown kid inside the refresh window shares the previous
	// refresh and performs no request.
	key, err = cache.Get(context.Background(), "K2")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if key != nil {
		t.Error("unknown kid returned a key")
	}
	if got := server.hits.Load(); got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}
}

func TestRefreshRateLimit(t *testing.T) {
	jwk, _, _ := newTestJWK(t, "K1")
	server := newKeySetServer(t, jwk)

	cache := NewKeySetCache(server.server.URL, server.server.Client())

	for range 5 {
		if err := cache.Refresh(context.Background()); err != nil {
			t.Fatalf("refresh failed: %v", err)
		}
	}

	if got := server.hits.Load(); got != 1 {
		t.Errorf("hits = %d, want 1", got)
	}
}

func TestRefreshSkipsInvalidEntries(t *testing.T) {
	good, _, _ := newTestJWK(t, "good")
	bad := JSONWebKey{Kid: "bad", Alg: ES256, Use: "sig", Kty: "unsupported"}
	server := newKeySetServer(t, bad, good)

	cache := NewKeySetCache(server.server.URL, server.server.Client())

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if key, _ := cache.Get(context.Background(), "good"); key == nil {
		t.Error("valid key was not ingested")
	}
	if key, _ := cache.Get(context.Background(), "bad"); key != nil {
		t.Error("invalid key was ingested")
	}
}

func TestRefreshDeduplicatesKid(t *testing.T) {
	first, _, _ := newTestJWK(t, "K1")
	second, _, _ := newTestJWK(t, "K1")
	server := newKeySetServer(t, first, second)

	cache := NewKeySetCache(server.server.URL, server.server.Client())

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	key, err := cache.Get(context.Background(), "K1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if key == nil {
		t.Fatal("key K1 missing after refresh")
	}

	// The later entry wins; there is exactly one entry for the kid.
	if key.JWK.X != second.X {
		t.Error("duplicate kid did not resolve to the last entry")
	}
}

func TestRefreshEvictsExpiredEntries(t *testing.T) {
	jwk, _, _ := newTestJWK(t, "K1")
	server := newKeySetServer(t, jwk)

	cache := NewKeySetCache(server.server.URL, server.server.Client())
	cache.RefreshMinInterval = time.Nanosecond
	cache.EntryTTL = 10 * time.Millisecond

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	// Rotate the key out of the served set and let the entry age past
	// its TTL.
	server.keys.Store(&[]JSONWebKey{})
	time.Sleep(20 * time.Millisecond)

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	if key := cache.lookup("K1"); key != nil {
		t.Error("expired entry survived a refresh")
	}
}

func TestRefreshTransportFailureKeepsEntries(t *testing.T) {
	jwk, _, _ := newTestJWK(t, "K1")
	server := newKeySetServer(t, jwk)

	cache := NewKeySetCache(server.server.URL, server.server.Client())
	cache.RefreshMinInterval = time.Nanosecond

	if err := cache.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}

	server.server.Close()

	err := cache.Refresh(context.Background())
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) {
		t.Fatalf("got %v, want a refresh error", err)
	}

	// Previously cached entries remain usable until their TTL.
	if key := cache.lookup("K1"); key == nil {
		t.Error("transport failure evicted a cached entry")
	}
}

func TestRefreshErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := NewKeySetCache(server.URL, server.Client())

	err := cache.Refresh(context.Background())
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) || refreshErr.Kind != RefreshErrorStatus {
		t.Fatalf("got %v, want an error status", err)
	}
	if refreshErr.Status != http.StatusInternalServerError {
		t.Errorf("status = %d", refreshErr.Status)
	}
}

func TestRefreshInvalidResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer server.Close()

	cache := NewKeySetCache(server.URL, server.Client())

	err := cache.Refresh(context.Background())
	var refreshErr *RefreshError
	if !errors.As(err, &refreshErr) || refreshErr.Kind != RefreshInvalidResponse {
		t.Fatalf("got %v, want an invalid response error", err)
	}
}
