package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Cache timing defaults.
const (
	// DefaultRefreshMinInterval is how often the cache will refresh
	// from the key-set endpoint at most.
	DefaultRefreshMinInterval = 4 * time.Hour
	// DefaultEntryTTL is how long a cached key remains usable after it
	// was retrieved.
	DefaultEntryTTL = 24 * time.Hour
)

// KeySetCache is a concurrency-safe cache of verifying keys fetched
// from a remote key-set endpoint. Reads take a shared lock; the refresh
// path takes the exclusive lock only after deciding a refresh is due.
type KeySetCache struct {
	// The URL of the key-set endpoint.
	URL string
	// The client used to fetch the key set.
	Client *http.Client
	// How often the cache refreshes at most.
	RefreshMinInterval time.Duration
	// How long an entry remains usable after retrieval.
	EntryTTL time.Duration

	mu    sync.RWMutex
	cache map[string]*VerifyingKey

	refreshMu   sync.RWMutex
	lastRefresh time.Time
}

// NewKeySetCache creates an empty cache for the key set at url. A nil
// client falls back to http.DefaultClient.
func NewKeySetCache(url string, client *http.Client) *KeySetCache {
	if client == nil {
		client = http.DefaultClient
	}

	return &KeySetCache{
		URL:                url,
		Client:             client,
		RefreshMinInterval: DefaultRefreshMinInterval,
		EntryTTL:           DefaultEntryTTL,
		cache:              make(map[string]*VerifyingKey),
	}
}

// Get looks up a verifying key by key ID. On a miss the cache refreshes
// and retries once, so a freshly-rotated key becomes usable without
// waiting for the refresh cadence; repeated misses inside the refresh
// window share one refresh and observe the same result. Returns
// (nil, nil) when the key is unknown.
func (c *KeySetCache) Get(ctx context.Context, kid string) (*VerifyingKey, error) {
	if key := c.lookup(kid); key != nil {
		return key, nil
	}

	if err := c.Refresh(ctx); err != nil {
		return nil, err
	}

	return c.lookup(kid), nil
}

func (c *KeySetCache) lookup(kid string) *VerifyingKey {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cache[kid]
}

// Refresh fetches the key set and replaces expired or rotated entries.
// The fetch is rate limited: if the last refresh is within the minimum
// interval the call returns immediately with success. Entries that fail
// conversion are skipped, not fatal. Transport failures leave the
// previously cached entries untouched.
func (c *KeySetCache) Refresh(ctx context.Context) error {
	now := time.Now()

	c.refreshMu.RLock()
	fresh := now.Sub(c.lastRefresh) < c.refreshMinInterval()
	c.refreshMu.RUnlock()
	if fresh {
		return nil
	}

	keySet, err := c.fetch(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	for _, jwk := range keySet.Keys {
		key, err := NewVerifyingKey(jwk)
		if err != nil {
			refreshErr := &RefreshError{Kind: RefreshInvalidJWK, Kid: jwk.Kid, Err: err}
			log.Warn().Err(refreshErr).Str("kid", jwk.Kid).Msg("skipping invalid key in key set")
			continue
		}
		key.RetrievedAt = now
		c.cache[jwk.Kid] = key
	}

	ttl := c.entryTTL()
	for kid, key := range c.cache {
		if now.Sub(key.RetrievedAt) >= ttl {
			delete(c.cache, kid)
		}
	}
	c.mu.Unlock()

	c.refreshMu.Lock()
	c.lastRefresh = now
	c.refreshMu.Unlock()

	return nil
}

func (c *KeySetCache) fetch(ctx context.Context) (*KeySet, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, &RefreshError{Kind: RefreshInvalidRequest, Err: err}
	}

	response, err := c.Client.Do(request)
	if err != nil {
		return nil, &RefreshError{Kind: refreshTransportKind(err), Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, &RefreshError{Kind: RefreshErrorStatus, Status: response.StatusCode}
	}

	var keySet KeySet
	if err := json.NewDecoder(response.Body).Decode(&keySet); err != nil {
		return nil, &RefreshError{Kind: RefreshInvalidResponse, Err: err}
	}

	return &keySet, nil
}

func (c *KeySetCache) refreshMinInterval() time.Duration {
	if c.RefreshMinInterval > 0 {
		return c.RefreshMinInterval
	}
	return DefaultRefreshMinInterval
}

func (c *KeySetCache) entryTTL() time.Duration {
	if c.EntryTTL > 0 {
		return c.EntryTTL
	}
	return DefaultEntryTTL
}

// refreshTransportKind classifies a transport failure.
func refreshTransportKind(err error) RefreshErrorKind {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return RefreshCouldNotConnect
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return RefreshCouldNotConnect
	}
	return RefreshInvalidRequest
}

// RefreshErrorKind identifies why a key-set refresh failed.
type RefreshErrorKind int

// The ways refreshing the cache can fail.
const (
	// The client could not connect to the key-set endpoint.
	RefreshCouldNotConnect RefreshErrorKind = iota
	// The key-set endpoint sent back an invalid response.
	RefreshInvalidResponse
	// The client request was invalid.
	RefreshInvalidRequest
	// The key-set endpoint sent back an error status.
	RefreshErrorStatus
	// A key in the key set is invalid.
	RefreshInvalidJWK
)

// RefreshError reports a failed key-set refresh.
type RefreshError struct {
	Kind RefreshErrorKind
	// The response status, for RefreshErrorStatus.
	Status int
	// The offending key ID, for RefreshInvalidJWK.
	Kid string
	// The source of the failure, if any.
	Err error
}

func (e *RefreshError) Error() string {
	switch e.Kind {
	case RefreshCouldNotConnect:
		return "failed to connect to the key-set endpoint"
	case RefreshInvalidResponse:
		return "invalid response from the key-set endpoint"
	case RefreshInvalidRequest:
		return "invalid request to the key-set endpoint"
	case RefreshErrorStatus:
		return fmt.Sprintf("key-set endpoint responded with status %d", e.Status)
	case RefreshInvalidJWK:
		return fmt.Sprintf("key %q in the key set is invalid", e.Kid)
	default:
		return "failed to refresh the key-set cache"
	}
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}
