// Package config loads the library's recognized options from the
// environment.
package config

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/TrentShailer/api-helper/apikey"
	"github.com/TrentShailer/api-helper/cors"
	"github.com/TrentShailer/api-helper/token"
	"github.com/caarlos0/env/v11"
)

// Config is the full set of recognized options.
type Config struct {
	JWKS       JWKS
	Revocation Revocation
	Signing    Signing
	APIKey     APIKey
	Token      Token
	CORS       CORS
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	var config Config
	if err := env.Parse(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// JWKS configures token validation against a remote key set.
type JWKS struct {
	// The endpoint serving the key set.
	Endpoint string `env:"JWKS_ENDPOINT"`
	// How often the cache refreshes at most.
	RefreshMinInterval time.Duration `env:"JWKS_REFRESH_MIN_INTERVAL" envDefault:"4h"`
	// How long a cached key remains usable.
	EntryTTL time.Duration `env:"JWKS_ENTRY_TTL" envDefault:"24h"`
}

// NewCache creates the verifying-key cache for the configured
// endpoint.
func (j JWKS) NewCache(client *http.Client) *token.KeySetCache {
	cache := token.NewKeySetCache(j.Endpoint, client)
	cache.RefreshMinInterval = j.RefreshMinInterval
	cache.EntryTTL = j.EntryTTL
	return cache
}

// Revocation configures the revocation lookup.
type Revocation struct {
	// The endpoint base; the token ID is appended as a path segment.
	Endpoint string `env:"REVOCATION_ENDPOINT"`
}

// NewClient creates the revocation client for the configured endpoint.
func (r Revocation) NewClient(client *http.Client) *token.RevocationClient {
	return token.NewRevocationClient(r.Endpoint, client)
}

// JWKValue is a JSON web key embedded in the environment as JSON.
type JWKValue struct {
	token.JSONWebKey
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (j *JWKValue) UnmarshalText(text []byte) error {
	return json.Unmarshal(text, &j.JSONWebKey)
}

// Signing configures token issuance.
type Signing struct {
	// The key to sign tokens with, in JWK form.
	JWK JWKValue `env:"SIGNING_JWK"`
	// The path to the signing key PEM file.
	PrivateKeyPEMPath string `env:"SIGNING_PRIVATE_KEY_PEM_PATH"`
	// The path to the persisted key-set file served to verifiers.
	KeySetPath string `env:"JWKS_FILE_PATH"`
}

// Load reads the private key and binds it to the configured JWK.
func (s Signing) Load() (*token.SigningKey, error) {
	pemBytes, err := os.ReadFile(s.PrivateKeyPEMPath)
	if err != nil {
		return nil, err
	}

	return token.LoadSigningKey(s.JWK.JSONWebKey, pemBytes)
}

// KeySet reads and parses the persisted key-set file.
func (s Signing) KeySet() (*token.KeySet, error) {
	contents, err := os.ReadFile(s.KeySetPath)
	if err != nil {
		return nil, err
	}

	var keySet token.KeySet
	if err := json.Unmarshal(contents, &keySet); err != nil {
		return nil, err
	}

	return &keySet, nil
}

// APIKey configures the API-key validator.
type APIKey struct {
	// The header carrying the key.
	Header string `env:"API_KEY_HEADER" envDefault:"X-TS-API-Key"`
	// The keys that are accepted.
	AllowedKeys []string `env:"API_KEY_ALLOWED_KEYS"`
}

// NewValidator creates the validator for the configured allow-list.
func (a APIKey) NewValidator() *apikey.Validator {
	return apikey.NewValidator(a.Header, a.AllowedKeys)
}

// Token configures issuer-style verification.
type Token struct {
	// The issuer this service expects.
	Issuer string `env:"TOKEN_ISSUER"`
	// The audience this service expects.
	Audience string `env:"TOKEN_AUDIENCE"`
}

// CORS configures the additional CORS allowances.
type CORS struct {
	AdditionalAllowedOrigins []string `env:"CORS_ADDITIONAL_ALLOWED_ORIGINS"`
	AdditionalAllowedHeaders []string `env:"CORS_ADDITIONAL_ALLOWED_HEADERS"`
	AdditionalExposedHeaders []string `env:"CORS_ADDITIONAL_EXPOSED_HEADERS"`
}

// Options converts the configuration to the cors package's options.
func (c CORS) Options() cors.Config {
	return cors.Config{
		AdditionalAllowedOrigins: c.AdditionalAllowedOrigins,
		AdditionalAllowedHeaders: c.AdditionalAllowedHeaders,
		AdditionalExposedHeaders: c.AdditionalExposedHeaders,
	}
}
