// Package token issues and verifies signed bearer tokens in compact
// JWS form: signing keys bound to published JWKs, a concurrency-safe
// cache of verifying keys fetched from a key-set endpoint, revocation
// lookups, and the request extractor that ties the chain together.
package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Algorithm is a JSON Web Algorithm identifier. Values serialize as the
// canonical IANA string.
type Algorithm string

// The algorithms this package can dispatch to.
const (
	ES256 Algorithm = "ES256"
	ES384 Algorithm = "ES384"
	ES512 Algorithm = "ES512"
	EdDSA Algorithm = "EdDSA"
	PS256 Algorithm = "PS256"
	PS384 Algorithm = "PS384"
	PS512 Algorithm = "PS512"
	RS256 Algorithm = "RS256"
	RS384 Algorithm = "RS384"
	RS512 Algorithm = "RS512"
)

// method returns the signature primitive for this algorithm, or nil if
// the algorithm is unknown.
func (a Algorithm) method() jwt.SigningMethod {
	switch a {
	case ES256, ES384, ES512, EdDSA, PS256, PS384, PS512, RS256, RS384, RS512:
		return jwt.GetSigningMethod(string(a))
	default:
		return nil
	}
}

// IsSupported reports whether the algorithm can be used to sign or
// verify tokens.
func (a Algorithm) IsSupported() bool {
	return a.method() != nil
}

// Sign signs the signing input with the private key. For the ES family
// the signature is the raw r||s concatenation JWS mandates.
func (a Algorithm) Sign(signingInput string, key any) ([]byte, error) {
	method := a.method()
	if method == nil {
		return nil, &SigningError{Operation: "lookup", Err: fmt.Errorf("unknown algorithm %q", string(a))}
	}

	signature, err := method.Sign(signingInput, key)
	if err != nil {
		return nil, &SigningError{Operation: "sign", Err: err}
	}

	return signature, nil
}

// Verify checks the signature over the signing input against the public
// key. An unknown algorithm fails closed: the signature is rejected and
// no error is surfaced, so a downgraded token can never be accepted.
func (a Algorithm) Verify(signingInput string, signature []byte, key any) bool {
	method := a.method()
	if method == nil {
		return false
	}

	return method.Verify(signingInput, signature, key) == nil
}

// SigningError reports a failed signing operation.
type SigningError struct {
	// The operation that failed.
	Operation string
	// The source of the failure.
	Err error
}

func (e *SigningError) Error() string {
	return fmt.Sprintf("signer %s operation failed", e.Operation)
}

func (e *SigningError) Unwrap() error {
	return e.Err
}
