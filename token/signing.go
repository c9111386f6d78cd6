package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/TrentShailer/api-helper/b64"
	"github.com/google/uuid"
)

// SigningKey binds a published JWK to the private key that signs
// tokens. Constructed once at process start; immutable thereafter.
type SigningKey struct {
	// The JSON web key.
	JWK JSONWebKey
	// The private key.
	PrivateKey crypto.Signer
}

// LoadSigningKey builds a signing key from a JWK and a PEM encoded
// private key. The private key must belong to the same family as the
// JWK, and its public half must equal the public key derived from the
// JWK parameters.
func LoadSigningKey(jwk JSONWebKey, pemBytes []byte) (*SigningKey, error) {
	privateKey, err := parsePrivateKeyPEM(pemBytes)
	if err != nil {
		return nil, &FromPEMError{Kind: FromPEMParse, Err: err}
	}

	expected := keyFamily(jwk.Kty)
	real := privateKeyFamily(privateKey)
	if expected != real {
		return nil, &FromPEMError{Kind: FromPEMMismatchID, Expected: expected, Real: real}
	}

	jwkKey, err := NewVerifyingKey(jwk)
	if err != nil {
		return nil, &FromPEMError{Kind: FromPEMInvalidJWK, Err: err}
	}

	if !publicKeysEqual(privateKey.Public(), jwkKey.PublicKey) {
		return nil, &FromPEMError{Kind: FromPEMMismatchPublicKey}
	}

	return &SigningKey{JWK: jwk, PrivateKey: privateKey}, nil
}

// Issue signs a token of the given type for the subject. The token ID
// is a fresh UUID and the expiry follows the type's TTL. The returned
// signature is unpadded base64url; Compact assembles the wire form.
func (k *SigningKey) Issue(subject string, typ TokenType) (*JSONWebToken, string, error) {
	now := time.Now()

	token := &JSONWebToken{
		Header: Header{Alg: k.JWK.Alg, Typ: "JWT", Kid: k.JWK.Kid},
		Claims: TokenClaims{
			Tid: uuid.NewString(),
			Exp: now.Add(typ.TTL()).Unix(),
			Iat: now.Unix(),
			Sub: subject,
			Typ: typ,
		},
	}

	_, _, signature, err := k.sign(token.Header, token.Claims)
	if err != nil {
		return nil, "", err
	}

	return token, signature, nil
}

// IssueFor signs an audience-based token for the subject and returns
// its compact serialization. iat and nbf are the current instant.
func (k *SigningKey) IssueFor(subject string, ttl time.Duration, issuer, audience string) (string, error) {
	now := time.Now()

	header := Header{Alg: k.JWK.Alg, Typ: "JWT", Kid: k.JWK.Kid}
	claims := Claims{
		Exp: NewMilliseconds(now.Add(ttl)),
		Iss: issuer,
		Iat: NewMilliseconds(now),
		Nbf: NewMilliseconds(now),
		Sub: subject,
		Aud: audience,
	}

	headerSegment, claimsSegment, signature, err := k.sign(header, claims)
	if err != nil {
		return "", err
	}

	return headerSegment + "." + claimsSegment + "." + signature, nil
}

// sign encodes the segments and signs the canonical signing input,
// returning the segments and the unpadded base64url signature.
func (k *SigningKey) sign(header interface{ Encode() (string, error) }, claims interface{ Encode() (string, error) }) (string, string, string, error) {
	headerSegment, err := header.Encode()
	if err != nil {
		return "", "", "", &SigningError{Operation: "encode header", Err: err}
	}

	claimsSegment, err := claims.Encode()
	if err != nil {
		return "", "", "", &SigningError{Operation: "encode claims", Err: err}
	}

	signature, err := k.JWK.Alg.Sign(headerSegment+"."+claimsSegment, k.PrivateKey)
	if err != nil {
		return "", "", "", err
	}

	return headerSegment, claimsSegment, b64.Encode(signature), nil
}

// parsePrivateKeyPEM parses a PKCS#8, SEC1 EC, or PKCS#1 RSA private
// key from PEM.
func parsePrivateKeyPEM(pemBytes []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	switch block.Type {
	case "EC PRIVATE KEY":
		return x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, err
		}
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("private key type %T cannot sign", key)
		}
		return signer, nil
	default:
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
}

// keyFamily names the key family a JWK key type belongs to.
func keyFamily(kty string) string {
	switch kty {
	case KeyTypeEC:
		return "EC"
	case "RSA":
		return "RSA"
	case "OKP":
		return "Ed25519"
	default:
		return kty
	}
}

// privateKeyFamily names the key family of a parsed private key.
func privateKeyFamily(key crypto.Signer) string {
	switch key.(type) {
	case *ecdsa.PrivateKey:
		return "EC"
	case *rsa.PrivateKey:
		return "RSA"
	case ed25519.PrivateKey:
		return "Ed25519"
	default:
		return fmt.Sprintf("%T", key)
	}
}

func publicKeysEqual(a, b crypto.PublicKey) bool {
	type equaler interface {
		Equal(crypto.PublicKey) bool
	}

	key, ok := a.(equaler)
	if !ok {
		return false
	}
	return key.Equal(b)
}

// FromPEMErrorKind identifies why a signing key could not be loaded.
type FromPEMErrorKind int

// The ways loading a signing key can fail.
const (
	// The PEM could not be parsed as a private key.
	FromPEMParse FromPEMErrorKind = iota
	// The JWK is not valid.
	FromPEMInvalidJWK
	// The private key family does not match the JWK key type.
	FromPEMMismatchID
	// The private key's public half does not match the JWK.
	FromPEMMismatchPublicKey
)

// FromPEMError reports a failed signing-key load.
type FromPEMError struct {
	Kind FromPEMErrorKind
	// The expected key family, for FromPEMMismatchID.
	Expected string
	// The real key family, for FromPEMMismatchID.
	Real string
	// The source of the failure, if any.
	Err error
}

func (e *FromPEMError) Error() string {
	switch e.Kind {
	case FromPEMParse:
		return "PEM could not be converted to a private key"
	case FromPEMInvalidJWK:
		return "JWK is invalid"
	case FromPEMMismatchID:
		return fmt.Sprintf("the key family %q does not match the JWK %q", e.Real, e.Expected)
	case FromPEMMismatchPublicKey:
		return "the public key from the JWK is not for this private key"
	default:
		return "PEM does not match JWK"
	}
}

func (e *FromPEMError) Unwrap() error {
	return e.Err
}
