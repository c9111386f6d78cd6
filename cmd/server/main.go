// A demonstration service wiring the library together: it issues
// tokens, serves the key set and revocation lookups that verifiers
// consume, and authenticates WebAuthn registrations and assertions.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TrentShailer/api-helper/config"
	"github.com/TrentShailer/api-helper/cors"
	"github.com/TrentShailer/api-helper/postgres"
	"github.com/TrentShailer/api-helper/token"
	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// serverConfig holds the options that belong to this binary rather
// than the library.
type serverConfig struct {
	// Set to "dev" for pretty console logging.
	Env string `env:"ENV"`
	// The address the server listens on.
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	// The connection string for the credential store.
	DatabaseURL string `env:"DATABASE_URL,required"`
	// The relying party identifier WebAuthn credentials are scoped to.
	RelyingPartyID string `env:"RELYING_PARTY_ID,required"`
	// The origin challenges are issued to.
	WebAuthnOrigin string `env:"WEBAUTHN_ORIGIN" envDefault:"http://localhost:8080"`
}

func main() {
	// Configure structured logging
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.With().Str("service", "api-helper-demo").Logger()

	// Local overrides from .env, if present
	_ = godotenv.Load()

	var serverCfg serverConfig
	if err := env.Parse(&serverCfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load server configuration")
	}

	// Pretty logging for local dev (only when explicitly set to "dev")
	if serverCfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	}

	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	pool, err := postgres.Open(ctx, serverCfg.DatabaseURL, postgres.PoolConfig{})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	defer pool.Close()

	// Signing key: the published JWK bound to the private key on disk.
	signingKey, err := cfg.Signing.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load signing key")
	}

	keySet, err := cfg.Signing.KeySet()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to read key-set file")
	}

	server := &Server{
		SigningKey: signingKey,
		KeySet:     keySet,
		APIKeys:    cfg.APIKey.NewValidator(),
		Extractor: &token.Extractor{
			Keys:        cfg.JWKS.NewCache(nil),
			Revocations: cfg.Revocation.NewClient(nil),
		},
		Revocations:    &postgres.RevocationStore{DB: pool},
		Challenges:     &postgres.ChallengeStore{DB: pool},
		PublicKeys:     &postgres.PublicKeyStore{DB: pool},
		RelyingParty:   serverCfg.RelyingPartyID,
		ceremonyOrigin: serverCfg.WebAuthnOrigin,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(cors.New(cfg.CORS.Options()).Handler)

	router.Get("/.well-known/jwks.json", server.GetKeySet)
	router.Get("/revoked-tokens/{tid}", server.GetRevokedToken)

	// Internal callers authenticate with an API key.
	router.Group(func(r chi.Router) {
		r.Use(server.APIKeys.Require)
		r.Post("/tokens", server.IssueToken)
		r.Delete("/tokens/{tid}", server.RevokeToken)
	})

	// Callers authenticate with a bearer token.
	router.Group(func(r chi.Router) {
		r.Use(server.Extractor.Require)
		r.Get("/me", server.GetMe)
	})

	router.Post("/webauthn/challenges", server.CreateChallenge)
	router.Post("/webauthn/registrations", server.Register)
	router.Post("/webauthn/assertions", server.Assert)

	httpServer := &http.Server{
		Addr:              serverCfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", serverCfg.ListenAddr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
