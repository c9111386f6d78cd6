package config

import (
	"testing"
	"time"

	"github.com/TrentShailer/api-helper/token"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.JWKS.RefreshMinInterval != 4*time.Hour {
		t.Errorf("refresh interval = %v", cfg.JWKS.RefreshMinInterval)
	}
	if cfg.JWKS.EntryTTL != 24*time.Hour {
		t.Errorf("entry ttl = %v", cfg.JWKS.EntryTTL)
	}
	if cfg.APIKey.Header != "X-TS-API-Key" {
		t.Errorf("api key header = %q", cfg.APIKey.Header)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWKS_ENDPOINT", "https://issuer.example/.well-known/jwks.json")
	t.Setenv("JWKS_REFRESH_MIN_INTERVAL", "1h")
	t.Setenv("JWKS_ENTRY_TTL", "6h")
	t.Setenv("REVOCATION_ENDPOINT", "https://issuer.example/revoked-tokens")
	t.Setenv("API_KEY_HEADER", "X-Internal-Key")
	t.Setenv("API_KEY_ALLOWED_KEYS", "one,two")
	t.Setenv("TOKEN_ISSUER", "issuer")
	t.Setenv("TOKEN_AUDIENCE", "audience")
	t.Setenv("CORS_ADDITIONAL_ALLOWED_ORIGINS", "https://app.example,https://admin.example")
	t.Setenv("SIGNING_JWK", `{"kid":"1","alg":"ES256","use":"sig","kty":"EC","crv":"P-256","x":"AA","y":"AQ"}`)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.JWKS.Endpoint != "https://issuer.example/.well-known/jwks.json" {
		t.Errorf("endpoint = %q", cfg.JWKS.Endpoint)
	}

	cache := cfg.JWKS.NewCache(nil)
	if cache.RefreshMinInterval != time.Hour || cache.EntryTTL != 6*time.Hour {
		t.Errorf("cache intervals = %v / %v", cache.RefreshMinInterval, cache.EntryTTL)
	}

	validator := cfg.APIKey.NewValidator()
	if validator.Header != "X-Internal-Key" {
		t.Errorf("validator header = %q", validator.Header)
	}
	if len(validator.AllowedKeys) != 2 || validator.AllowedKeys[0] != "one" {
		t.Errorf("allowed keys = %v", validator.AllowedKeys)
	}

	if len(cfg.CORS.AdditionalAllowedOrigins) != 2 {
		t.Errorf("origins = %v", cfg.CORS.AdditionalAllowedOrigins)
	}

	jwk := cfg.Signing.JWK.JSONWebKey
	if jwk.Kid != "1" || jwk.Alg != token.ES256 || jwk.Kty != token.KeyTypeEC || jwk.Crv != token.CurveP256 {
		t.Errorf("jwk = %+v", jwk)
	}

	if cfg.Token.Issuer != "issuer" || cfg.Token.Audience != "audience" {
		t.Errorf("token config = %+v", cfg.Token)
	}
}
