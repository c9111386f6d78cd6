// Package webauthn authenticates WebAuthn public-key credentials:
// typed wire shapes for the credential, client data, and authenticator
// data, and the registration and assertion ceremonies verified against
// caller-provided challenge and credential stores.
package webauthn

import (
	"crypto"
	"fmt"
)

// Algorithm is a COSE algorithm identifier. Values serialize as the
// numeric registry ID.
//
// https://www.iana.org/assignments/cose/cose.xhtml#algorithms
type Algorithm int32

// The algorithms recognized by this package.
const (
	// ECDSA using P-256 curve and SHA-256.
	ESP256 Algorithm = -9
	// ECDSA using P-384 curve and SHA-384.
	ESP384 Algorithm = -51
	// ECDSA using P-521 curve and SHA-512.
	ESP512 Algorithm = -52
	// ECDSA using secp256k1 curve and SHA-256.
	ES256K Algorithm = -47
	// EdDSA using Ed25519 curve.
	ED25519 Algorithm = -19
	// EdDSA using Ed448 curve.
	ED448 Algorithm = -53
	// RSASSA-PSS w/ SHA-256.
	PS256 Algorithm = -37
	// RSASSA-PSS w/ SHA-384.
	PS384 Algorithm = -38
	// RSASSA-PSS w/ SHA-512.
	PS512 Algorithm = -39
	// (Deprecated) ECDSA w/ SHA-256.
	ES256 Algorithm = -7
	// (Deprecated) ECDSA w/ SHA-384.
	ES384 Algorithm = -35
	// (Deprecated) ECDSA w/ SHA-512.
	ES512 Algorithm = -36
	// (Deprecated) EdDSA.
	EdDSA Algorithm = -8
	// (Not recommended) RSASSA-PKCS1-v1_5 using SHA-256.
	RS256 Algorithm = -257
	// (Not recommended) RSASSA-PKCS1-v1_5 using SHA-384.
	RS384 Algorithm = -258
	// (Not recommended) RSASSA-PKCS1-v1_5 using SHA-512.
	RS512 Algorithm = -259
)

var algorithmStrings = map[Algorithm]string{
	ESP256:  "ESP256",
	ESP384:  "ESP384",
	ESP512:  "ESP512",
	ES256K:  "ES256K",
	ED25519: "ED25519",
	ED448:   "ED448",
	PS256:   "PS256",
	PS384:   "PS384",
	PS512:   "PS512",
	ES256:   "ES256",
	ES384:   "ES384",
	ES512:   "ES512",
	EdDSA:   "EdDSA",
	RS256:   "RS256",
	RS384:   "RS384",
	RS512:   "RS512",
}

func (a Algorithm) String() string {
	if s, ok := algorithmStrings[a]; ok {
		return s
	}
	return fmt.Sprintf("Algorithm(%d)", int32(a))
}

// IsValid reports whether the value is a recognized algorithm.
func (a Algorithm) IsValid() bool {
	_, ok := algorithmStrings[a]
	return ok
}

// ParseAlgorithm converts a raw COSE identifier to an Algorithm.
func ParseAlgorithm(value int32) (Algorithm, error) {
	a := Algorithm(value)
	if !a.IsValid() {
		return 0, fmt.Errorf("value %d is not a valid algorithm", value)
	}
	return a, nil
}

// KeyFamily is the public-key family an algorithm belongs to.
type KeyFamily int

// The key families.
const (
	FamilyUnknown KeyFamily = iota
	FamilyEC
	FamilyEd25519
	FamilyEd448
	FamilyRSAPSS
	FamilyRSA
)

// Family returns the key family for the algorithm.
func (a Algorithm) Family() KeyFamily {
	switch a {
	case ED448:
		return FamilyEd448
	case ED25519, EdDSA:
		return FamilyEd25519
	case ES256, ES384, ES512, ES256K, ESP256, ESP384, ESP512:
		return FamilyEC
	case PS256, PS384, PS512:
		return FamilyRSAPSS
	case RS256, RS384, RS512:
		return FamilyRSA
	default:
		return FamilyUnknown
	}
}

// Hash returns the digest the algorithm signs over, or zero for the
// EdDSA family which hashes internally.
func (a Algorithm) Hash() crypto.Hash {
	switch a {
	case ES256, ES256K, ESP256, PS256, RS256:
		return crypto.SHA256
	case ES384, ESP384, PS384, RS384:
		return crypto.SHA384
	case ES512, ESP512, PS512, RS512:
		return crypto.SHA512
	default:
		return 0
	}
}
