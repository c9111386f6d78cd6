package token

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"fmt"
	"math/big"

	"github.com/TrentShailer/api-helper/b64"
)

// JSONWebKey is a published verification key. The (kid, alg) pair is
// sufficient to select a verification routine; kid uniquely identifies
// a key within a key set.
type JSONWebKey struct {
	// The ID of this key.
	Kid string `json:"kid"`
	// The algorithm this key uses.
	Alg Algorithm `json:"alg"`
	// The use for this key.
	Use string `json:"use"`
	// The key type, discriminating the parameter fields below.
	Kty string `json:"kty"`

	// EC parameters.
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// KeySet is a JSON web key set as served by a JWKS endpoint.
type KeySet struct {
	// The set of keys.
	Keys []JSONWebKey `json:"keys"`
}

// Key types and curves this package can build public keys from.
const (
	KeyTypeEC = "EC"

	CurveP256 = "P-256"
)

// PublicKey derives the public key described by the JWK parameters.
// Unknown key types or curves are a hard error here; during key-set
// ingest such entries are skipped instead.
func (k JSONWebKey) PublicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case KeyTypeEC:
		return k.ecPublicKey()
	default:
		return nil, &FromJWKError{Kind: FromJWKUnsupportedKeyType, Value: k.Kty}
	}
}

func (k JSONWebKey) ecPublicKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case CurveP256:
		curve = elliptic.P256()
	default:
		return nil, &FromJWKError{Kind: FromJWKUnsupportedCurve, Value: k.Crv}
	}

	if k.X == "" {
		return nil, &FromJWKError{Kind: FromJWKMissingCoordinate, Coordinate: "x"}
	}
	if k.Y == "" {
		return nil, &FromJWKError{Kind: FromJWKMissingCoordinate, Coordinate: "y"}
	}

	xBytes, err := b64.Decode(k.X)
	if err != nil {
		return nil, &FromJWKError{Kind: FromJWKDecodeCoordinate, Coordinate: "x", Err: err}
	}
	yBytes, err := b64.Decode(k.Y)
	if err != nil {
		return nil, &FromJWKError{Kind: FromJWKDecodeCoordinate, Coordinate: "y", Err: err}
	}

	x := new(big.Int).SetBytes(xBytes)
	y := new(big.Int).SetBytes(yBytes)

	p := curve.Params().P
	if x.Sign() == 0 && y.Sign() == 0 {
		return nil, &FromJWKError{Kind: FromJWKInvalidPoint}
	}
	if x.Cmp(p) >= 0 {
		return nil, &FromJWKError{Kind: FromJWKCoordinateRange, Coordinate: "x"}
	}
	if y.Cmp(p) >= 0 {
		return nil, &FromJWKError{Kind: FromJWKCoordinateRange, Coordinate: "y"}
	}

	key := &ecdsa.PublicKey{Curve: curve, X: x, Y: y}
	if !curve.IsOnCurve(x, y) {
		return nil, &FromJWKError{Kind: FromJWKInvalidPoint}
	}

	return key, nil
}

// FromJWKErrorKind identifies what made a JWK unusable.
type FromJWKErrorKind int

// The ways building a public key from a JWK can fail.
const (
	// The key type is not supported.
	FromJWKUnsupportedKeyType FromJWKErrorKind = iota
	// The curve is not supported.
	FromJWKUnsupportedCurve
	// A required coordinate is absent.
	FromJWKMissingCoordinate
	// A coordinate failed base64 decoding.
	FromJWKDecodeCoordinate
	// A coordinate is outside the field.
	FromJWKCoordinateRange
	// The coordinates do not form a point on the curve.
	FromJWKInvalidPoint
)

// FromJWKError reports why a JWK could not be converted to a public key.
type FromJWKError struct {
	Kind FromJWKErrorKind
	// The coordinate involved, when the kind concerns one.
	Coordinate string
	// The offending kty/crv value, when the kind concerns one.
	Value string
	// The source of the failure, if any.
	Err error
}

func (e *FromJWKError) Error() string {
	switch e.Kind {
	case FromJWKUnsupportedKeyType:
		return fmt.Sprintf("key type %q is not supported", e.Value)
	case FromJWKUnsupportedCurve:
		return fmt.Sprintf("curve %q is not supported", e.Value)
	case FromJWKMissingCoordinate:
		return fmt.Sprintf("coordinate %s is missing", e.Coordinate)
	case FromJWKDecodeCoordinate:
		return fmt.Sprintf("coordinate %s is invalid base64", e.Coordinate)
	case FromJWKCoordinateRange:
		return fmt.Sprintf("coordinate %s is out of range for the curve", e.Coordinate)
	case FromJWKInvalidPoint:
		return "coordinates are not a point on the curve"
	default:
		return "invalid JWK"
	}
}

func (e *FromJWKError) Unwrap() error {
	return e.Err
}
