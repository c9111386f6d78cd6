package webauthn

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Verifier is the capability set the ceremonies need from their
// surroundings: one-shot challenge consumption, credential lookup, and
// the relying party's identity.
type Verifier interface {
	// ConsumeChallenge atomically removes and returns the challenge
	// with the given bytes. Returns nil when no such challenge exists;
	// a consumed challenge can never be returned again.
	ConsumeChallenge(ctx context.Context, challenge []byte) (*Challenge, error)

	// GetPublicKey returns the persisted credential with the given raw
	// ID, or nil when none exists.
	GetPublicKey(ctx context.Context, rawID []byte) (*PersistedPublicKey, error)

	// RelyingPartyID returns the relying party's identifier.
	RelyingPartyID() string
}

// Verify checks a public key credential against the relying party's
// state. The ceremony is selected by the response variant: an
// attestation registers, an assertion logs in. A false result means
// the credential was rejected by policy or signature; errors are
// reserved for failed store and crypto operations.
func Verify(ctx context.Context, verifier Verifier, credential *PublicKeyCredential, bearer []byte) (bool, error) {
	switch {
	case credential.Response.Attestation != nil:
		return verifyAttestation(ctx, verifier, credential, bearer)
	case credential.Response.Assertion != nil:
		return verifyAssertion(ctx, verifier, credential)
	default:
		return false, nil
	}
}

func verifyAttestation(ctx context.Context, verifier Verifier, credential *PublicKeyCredential, bearer []byte) (bool, error) {
	response := credential.Response.Attestation

	if response.ClientDataJSON.Type != ClientDataCreate {
		log.Warn().Msg("credential is not create")
		return false, nil
	}

	if bearer == nil {
		log.Warn().Msg("bearer is nil")
		return false, nil
	}

	// The challenge must exist, be within its validity window, belong
	// to the origin the ceremony ran on, and be bound to the identity
	// initiating registration.
	challenge, err := verifier.ConsumeChallenge(ctx, response.ClientDataJSON.Challenge)
	if err != nil {
		return false, &VerificationError{Operation: "get challenge", Err: err}
	}
	if challenge == nil ||
		!challenge.IsValid() ||
		!challenge.IsForOrigin(response.ClientDataJSON.Origin) ||
		challenge.IdentityID == nil ||
		!challenge.IsForBearer(bearer) {
		log.Warn().Msg("challenge is missing, invalid, for another origin, unbound, or for another bearer")
		return false, nil
	}

	key, err := x509.ParsePKIXPublicKey(response.PublicKey)
	if err != nil {
		log.Warn().Err(err).Msg("public key is invalid")
		return false, nil
	}

	if !keyMatchesFamily(key, response.PublicKeyAlgorithm.Family()) {
		log.Warn().
			Stringer("algorithm", response.PublicKeyAlgorithm).
			Msg("public key does not match the claimed algorithm")
		return false, nil
	}

	return true, nil
}

func verifyAssertion(ctx context.Context, verifier Verifier, credential *PublicKeyCredential) (bool, error) {
	response := credential.Response.Assertion

	if response.ClientDataJSON.Type != ClientDataGet {
		return false, nil
	}

	// The assertion must be scoped to this service's relying party ID.
	expectedHash := sha256.Sum256([]byte(verifier.RelyingPartyID()))
	if response.AuthenticatorData.RelyingPartyIDHash != expectedHash {
		return false, nil
	}

	challenge, err := verifier.ConsumeChallenge(ctx, response.ClientDataJSON.Challenge)
	if err != nil {
		return false, &VerificationError{Operation: "get challenge", Err: err}
	}
	if challenge == nil {
		return false, nil
	}

	if !challenge.IsValid() || !challenge.IsForOrigin(response.ClientDataJSON.Origin) {
		return false, nil
	}

	// A challenge bound to an identity must match the asserted user.
	if challenge.IdentityID != nil && response.UserHandle != nil &&
		!bytes.Equal(challenge.IdentityID, response.UserHandle) {
		return false, nil
	}

	persisted, err := verifier.GetPublicKey(ctx, credential.RawID)
	if err != nil {
		return false, &VerificationError{Operation: "get public key", Err: err}
	}
	if persisted == nil {
		return false, nil
	}

	// The credential must belong to the asserted user.
	if response.UserHandle != nil && !bytes.Equal(persisted.IdentityID, response.UserHandle) {
		return false, nil
	}

	// The authenticator signed the raw authenticator data followed by
	// the hash of the raw client data; both byte sequences are the
	// retained originals.
	clientDataHash := sha256.Sum256(response.ClientDataJSON.Raw)
	contents := make([]byte, 0, len(response.AuthenticatorData.Raw)+sha256.Size)
	contents = append(contents, response.AuthenticatorData.Raw...)
	contents = append(contents, clientDataHash[:]...)

	key, err := x509.ParsePKIXPublicKey(persisted.PublicKey)
	if err != nil {
		return false, &VerificationError{Operation: "parse public key", Err: err}
	}

	return verifySignature(key, persisted.PublicKeyAlgorithm, contents, response.Signature)
}

// verifySignature checks an assertion signature with the digest the
// algorithm family mandates.
func verifySignature(key any, algorithm Algorithm, contents, signature []byte) (bool, error) {
	switch algorithm.Family() {
	case FamilyEC:
		publicKey, ok := key.(*ecdsa.PublicKey)
		if !ok {
			return false, nil
		}
		digest, err := digestFor(algorithm, contents)
		if err != nil {
			return false, err
		}
		return ecdsa.VerifyASN1(publicKey, digest, signature), nil

	case FamilyEd25519:
		publicKey, ok := key.(ed25519.PublicKey)
		if !ok {
			return false, nil
		}
		return ed25519.Verify(publicKey, contents, signature), nil

	case FamilyRSAPSS:
		publicKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return false, nil
		}
		hash := algorithm.Hash()
		digest, err := digestFor(algorithm, contents)
		if err != nil {
			return false, err
		}
		options := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthAuto, Hash: hash}
		return rsa.VerifyPSS(publicKey, hash, digest, signature, options) == nil, nil

	case FamilyRSA:
		publicKey, ok := key.(*rsa.PublicKey)
		if !ok {
			return false, nil
		}
		digest, err := digestFor(algorithm, contents)
		if err != nil {
			return false, err
		}
		return rsa.VerifyPKCS1v15(publicKey, algorithm.Hash(), digest, signature) == nil, nil

	default:
		// Ed448 and unknown algorithms have no verification routine
		// here; reject rather than guess.
		log.Warn().Stringer("algorithm", algorithm).Msg("no verification routine for algorithm")
		return false, nil
	}
}

func digestFor(algorithm Algorithm, contents []byte) ([]byte, error) {
	hash := algorithm.Hash()
	if !hash.Available() {
		return nil, &VerificationError{
			Operation: "select digest",
			Err:       fmt.Errorf("digest for %s is unavailable", algorithm),
		}
	}

	hasher := hash.New()
	hasher.Write(contents)
	return hasher.Sum(nil), nil
}

// keyMatchesFamily reports whether a parsed public key belongs to the
// algorithm family.
func keyMatchesFamily(key any, family KeyFamily) bool {
	switch family {
	case FamilyEC:
		_, ok := key.(*ecdsa.PublicKey)
		return ok
	case FamilyEd25519:
		_, ok := key.(ed25519.PublicKey)
		return ok
	case FamilyRSAPSS, FamilyRSA:
		_, ok := key.(*rsa.PublicKey)
		return ok
	default:
		return false
	}
}

// VerificationError reports a failed store or crypto operation during
// a ceremony.
type VerificationError struct {
	// The operation that failed.
	Operation string
	// The source of the failure.
	Err error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("verification %s operation failed", e.Operation)
}

func (e *VerificationError) Unwrap() error {
	return e.Err
}
