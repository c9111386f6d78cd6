package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/TrentShailer/api-helper/webauthn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ChallengeStore persists WebAuthn challenges. Consumption is a
// DELETE ... RETURNING, so a challenge can be used at most once even
// under concurrent verification attempts.
type ChallengeStore struct {
	DB *pgxpool.Pool
}

// SaveChallenge stores a freshly issued challenge.
func (s *ChallengeStore) SaveChallenge(ctx context.Context, challenge *webauthn.Challenge) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO webauthn_challenge (challenge, identity_id, issued, expires, origin)
		VALUES ($1, $2, $3, $4, $5)
	`, challenge.Challenge, challenge.IdentityID, challenge.Issued, challenge.Expires, challenge.Origin)
	return err
}

// ConsumeChallenge atomically removes and returns the challenge with
// the given bytes. Returns nil when no such challenge exists.
func (s *ChallengeStore) ConsumeChallenge(ctx context.Context, challenge []byte) (*webauthn.Challenge, error) {
	var result webauthn.Challenge

	err := s.DB.QueryRow(ctx, `
		DELETE FROM webauthn_challenge
		WHERE challenge = $1
		RETURNING challenge, identity_id, issued, expires, origin
	`, challenge).Scan(&result.Challenge, &result.IdentityID, &result.Issued, &result.Expires, &result.Origin)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &result, nil
}

// DeleteExpiredChallenges removes challenges past their expiry.
func (s *ChallengeStore) DeleteExpiredChallenges(ctx context.Context) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM webauthn_challenge WHERE expires < now()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// PublicKeyStore persists registered WebAuthn credentials.
type PublicKeyStore struct {
	DB *pgxpool.Pool
}

// SavePublicKey stores a credential after a successful registration.
func (s *PublicKeyStore) SavePublicKey(ctx context.Context, key *webauthn.PersistedPublicKey) error {
	transports := make([]string, len(key.Transports))
	for i, transport := range key.Transports {
		transports[i] = string(transport)
	}

	_, err := s.DB.Exec(ctx, `
		INSERT INTO webauthn_public_key
			(raw_id, identity_id, display_name, public_key, public_key_algorithm,
			 transports, signature_counter, created)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, key.RawID, key.IdentityID, key.DisplayName, key.PublicKey,
		int32(key.PublicKeyAlgorithm), transports, key.SignatureCounter, key.Created)
	return err
}

// GetPublicKey returns the credential with the given raw ID, or nil
// when none exists.
func (s *PublicKeyStore) GetPublicKey(ctx context.Context, rawID []byte) (*webauthn.PersistedPublicKey, error) {
	var (
		result    webauthn.PersistedPublicKey
		algorithm int32
		transport []string
		lastUsed  *time.Time
	)

	err := s.DB.QueryRow(ctx, `
		SELECT raw_id, identity_id, display_name, public_key, public_key_algorithm,
		       transports, signature_counter, created, last_used
		FROM webauthn_public_key
		WHERE raw_id = $1
	`, rawID).Scan(&result.RawID, &result.IdentityID, &result.DisplayName, &result.PublicKey,
		&algorithm, &transport, &result.SignatureCounter, &result.Created, &lastUsed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	parsedAlgorithm, err := webauthn.ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}
	result.PublicKeyAlgorithm = parsedAlgorithm

	result.Transports = make([]webauthn.Transport, 0, len(transport))
	for _, value := range transport {
		parsed, err := webauthn.ParseTransport(value)
		if err != nil {
			return nil, err
		}
		result.Transports = append(result.Transports, parsed)
	}

	result.LastUsed = lastUsed

	return &result, nil
}

// TouchPublicKey records a completed assertion: the new signature
// counter and the time of use.
func (s *PublicKeyStore) TouchPublicKey(ctx context.Context, rawID []byte, signatureCounter int64) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE webauthn_public_key
		SET signature_counter = $2, last_used = now()
		WHERE raw_id = $1
	`, rawID, signatureCounter)
	return err
}

// DeletePublicKey removes a credential.
func (s *PublicKeyStore) DeletePublicKey(ctx context.Context, rawID []byte) error {
	_, err := s.DB.Exec(ctx, `DELETE FROM webauthn_public_key WHERE raw_id = $1`, rawID)
	return err
}
