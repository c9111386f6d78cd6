package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RevocationStore persists revoked token IDs for the issuer side's
// revocation endpoint.
type RevocationStore struct {
	DB *pgxpool.Pool
}

// Revoke records a token ID as revoked until its expiry.
func (s *RevocationStore) Revoke(ctx context.Context, tid string, expires time.Time) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO revoked_token (tid, expires)
		VALUES ($1, $2)
		ON CONFLICT (tid) DO NOTHING
	`, tid, expires)
	return err
}

// IsRevoked reports whether a token ID has been revoked.
func (s *RevocationStore) IsRevoked(ctx context.Context, tid string) (bool, error) {
	var exists bool
	err := s.DB.QueryRow(ctx, `
		SELECT true FROM revoked_token WHERE tid = $1
	`, tid).Scan(&exists)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}

// DeleteExpired removes revocation records for tokens that have
// already expired; they can no longer verify anyway.
func (s *RevocationStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM revoked_token WHERE expires < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
