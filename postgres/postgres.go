// Package postgres provides pgx-backed implementations of the stores
// the WebAuthn verifier and the demo issuer consume.
package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// PoolConfig tunes the connection pool behind the stores. Zero fields
// fall back to defaults sized for the small, hot tables this package
// owns: challenges and revocations are consulted on every ceremony or
// request, so connections are kept warm rather than opened on demand.
type PoolConfig struct {
	// The most connections the pool will open.
	MaxConns int32
	// Connections kept open even when idle.
	MinConns int32
	// How long a connection lives before it is recycled.
	MaxConnLifetime time.Duration
	// How long an idle connection is kept before it is closed.
	MaxConnIdleTime time.Duration
	// How often idle connections are health checked.
	HealthCheckPeriod time.Duration
}

func (c PoolConfig) withDefaults() PoolConfig {
	if c.MaxConns == 0 {
		c.MaxConns = 10
	}
	if c.MinConns == 0 {
		c.MinConns = 2
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = time.Hour
	}
	if c.MaxConnIdleTime == 0 {
		c.MaxConnIdleTime = 15 * time.Minute
	}
	if c.HealthCheckPeriod == 0 {
		c.HealthCheckPeriod = time.Minute
	}
	return c
}

// Open connects a pool for the stores in this package and pings it
// before returning, so a misconfigured database fails at startup
// rather than on the first ceremony.
func Open(ctx context.Context, url string, config PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}

	config = config.withDefaults()
	poolConfig.MaxConns = config.MaxConns
	poolConfig.MinConns = config.MinConns
	poolConfig.MaxConnLifetime = config.MaxConnLifetime
	poolConfig.MaxConnIdleTime = config.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = config.HealthCheckPeriod

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int32("max_conns", config.MaxConns).
		Int32("min_conns", config.MinConns).
		Msg("connected to the credential store")

	return pool, nil
}
