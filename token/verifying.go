package token

import (
	"crypto"
	"fmt"
	"strings"
	"time"

	"github.com/TrentShailer/api-helper/b64"
)

// VerifyingKey is a JWK bound to the public key derived from its
// parameters. RetrievedAt is the instant the key entered the cache and
// drives eviction.
type VerifyingKey struct {
	// The JSON web key.
	JWK JSONWebKey
	// The public key derived from the JWK parameters.
	PublicKey crypto.PublicKey
	// The time this key was retrieved from the key set.
	RetrievedAt time.Time
}

// NewVerifyingKey derives a verifying key from a JWK.
func NewVerifyingKey(jwk JSONWebKey) (*VerifyingKey, error) {
	publicKey, err := jwk.PublicKey()
	if err != nil {
		return nil, err
	}

	return &VerifyingKey{
		JWK:         jwk,
		PublicKey:   publicKey,
		RetrievedAt: time.Now(),
	}, nil
}

// Verify checks a compact JWS against this key and decodes it as an
// issued token. A nil token with a nil error means the signature was
// cryptographically rejected; errors are reserved for malformed input,
// a header algorithm that does not match the key, and failed operations.
func (k *VerifyingKey) Verify(compact string) (*JSONWebToken, error) {
	header, claimsSegment, ok, err := k.verifySignature(compact)
	if err != nil || !ok {
		return nil, err
	}

	claims, err := DecodeTokenClaims(claimsSegment)
	if err != nil {
		return nil, &VerifyError{Kind: VerifyDecodeClaims, Err: err}
	}

	return &JSONWebToken{Header: header, Claims: claims}, nil
}

// VerifyIssued checks a compact JWS against this key and decodes it as
// an audience-based token. The result convention matches Verify.
func (k *VerifyingKey) VerifyIssued(compact string) (*IssuedToken, error) {
	header, claimsSegment, ok, err := k.verifySignature(compact)
	if err != nil || !ok {
		return nil, err
	}

	claims, err := DecodeClaims(claimsSegment)
	if err != nil {
		return nil, &VerifyError{Kind: VerifyDecodeClaims, Err: err}
	}

	return &IssuedToken{Header: header, Claims: claims}, nil
}

// verifySignature validates the shape and signature of a compact JWS.
// On success it returns the decoded header and the raw claims segment.
// ok is false when the signature does not verify.
func (k *VerifyingKey) verifySignature(compact string) (Header, string, bool, error) {
	signingInput, signatureSegment, found := cutLast(compact, '.')
	if !found {
		return Header{}, "", false, &VerifyError{Kind: VerifyInvalidFormat}
	}

	headerSegment, claimsSegment, found := strings.Cut(signingInput, ".")
	if !found || strings.Contains(claimsSegment, ".") {
		return Header{}, "", false, &VerifyError{Kind: VerifyInvalidFormat}
	}

	signature, err := b64.Decode(signatureSegment)
	if err != nil {
		return Header{}, "", false, &VerifyError{Kind: VerifyDecodeSignature, Err: err}
	}

	if !k.JWK.Alg.Verify(signingInput, signature, k.PublicKey) {
		return Header{}, "", false, nil
	}

	header, err := DecodeHeader(headerSegment)
	if err != nil {
		return Header{}, "", false, &VerifyError{Kind: VerifyDecodeHeader, Err: err}
	}

	if header.Alg != k.JWK.Alg {
		return Header{}, "", false, &VerifyError{Kind: VerifyAlgorithmMismatch}
	}

	return header, claimsSegment, true, nil
}

// cutLast splits s around the last occurrence of sep.
func cutLast(s string, sep byte) (before, after string, found bool) {
	i := strings.LastIndexByte(s, sep)
	if i < 0 {
		return s, "", false
	}
	return s[:i], s[i+1:], true
}

// VerifyErrorKind identifies why verification could not complete.
type VerifyErrorKind int

// The ways verifying a compact JWS can fail.
const (
	// The string is not three dot-separated segments.
	VerifyInvalidFormat VerifyErrorKind = iota
	// The signature segment is not valid base64.
	VerifyDecodeSignature
	// The header segment could not be decoded.
	VerifyDecodeHeader
	// The claims segment could not be decoded.
	VerifyDecodeClaims
	// The header algorithm does not match the verifying key.
	VerifyAlgorithmMismatch
	// A cryptographic operation failed.
	VerifyCryptoOperation
)

// VerifyError reports a failed token verification.
type VerifyError struct {
	Kind VerifyErrorKind
	// The operation that failed, for VerifyCryptoOperation.
	Operation string
	// The source of the failure, if any.
	Err error
}

func (e *VerifyError) Error() string {
	switch e.Kind {
	case VerifyInvalidFormat:
		return "token is not a valid JWS string"
	case VerifyDecodeSignature:
		return "token signature could not be decoded"
	case VerifyDecodeHeader:
		return "token header could not be decoded"
	case VerifyDecodeClaims:
		return "token claims could not be decoded"
	case VerifyAlgorithmMismatch:
		return "token header algorithm does not match the verifying key"
	case VerifyCryptoOperation:
		return fmt.Sprintf("verifier %s operation failed", e.Operation)
	default:
		return "token verification failed"
	}
}

func (e *VerifyError) Unwrap() error {
	return e.Err
}
