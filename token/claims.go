package token

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/TrentShailer/api-helper/b64"
)

// Header is the JOSE header of a compact JWS.
type Header struct {
	// The algorithm used to sign the token.
	Alg Algorithm `json:"alg"`
	// The type of the token, "JWT".
	Typ string `json:"typ"`
	// The ID of the key used to sign the token.
	Kid string `json:"kid"`
}

// Encode encodes the JSON representation of the header as unpadded
// base64url.
func (h Header) Encode() (string, error) {
	return encodeSegment(h)
}

// DecodeHeader decodes a header from an unpadded base64url JSON segment.
func DecodeHeader(value string) (Header, error) {
	var header Header
	err := decodeSegment(value, &header)
	return header, err
}

// Milliseconds is an instant serialized as integer milliseconds since
// the Unix epoch.
type Milliseconds int64

// NewMilliseconds converts a time to its wire representation.
func NewMilliseconds(t time.Time) Milliseconds {
	return Milliseconds(t.UnixMilli())
}

// Time returns the instant this value represents.
func (m Milliseconds) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// Claims are audience-based claims issued on behalf of an issuer.
// Times are integer milliseconds since the epoch.
type Claims struct {
	// The expiry of the token.
	Exp Milliseconds `json:"exp"`
	// The party that issued the token.
	Iss string `json:"iss"`
	// The time the token was issued.
	Iat Milliseconds `json:"iat"`
	// The time the token is valid from.
	Nbf Milliseconds `json:"nbf"`
	// The subject of the token.
	Sub string `json:"sub"`
	// The audience for the token.
	Aud string `json:"aud"`
}

// Encode encodes the JSON representation of the claims as unpadded
// base64url.
func (c Claims) Encode() (string, error) {
	return encodeSegment(c)
}

// DecodeClaims decodes claims from an unpadded base64url JSON segment.
func DecodeClaims(value string) (Claims, error) {
	var claims Claims
	err := decodeSegment(value, &claims)
	return claims, err
}

// ClaimsValidationResult is the outcome of validating claims against
// the current wall clock and the verifier's trust configuration.
type ClaimsValidationResult int

const (
	// The claims are all valid.
	ClaimsValid ClaimsValidationResult = iota
	// The token is expired.
	ClaimsExpired
	// The token is premature.
	ClaimsPremature
	// The token was not issued by a trusted issuer.
	ClaimsUntrusted
	// The token was issued for a different audience.
	ClaimsWrongAudience
)

func (r ClaimsValidationResult) String() string {
	switch r {
	case ClaimsValid:
		return "valid"
	case ClaimsExpired:
		return "expired"
	case ClaimsPremature:
		return "premature"
	case ClaimsUntrusted:
		return "untrusted"
	case ClaimsWrongAudience:
		return "wrong audience"
	default:
		return fmt.Sprintf("ClaimsValidationResult(%d)", int(r))
	}
}

// Validate checks the claims against the current wall clock. No leeway
// is applied here; clock-skew tolerance is a concern of the caller.
// The checks run in a fixed order and the first failure wins.
func (c Claims) Validate(trustedIssuers []string, audience string) ClaimsValidationResult {
	now := time.Now()

	if c.Exp.Time().Before(now) {
		return ClaimsExpired
	}

	if c.Nbf.Time().After(now) {
		return ClaimsPremature
	}

	if !slices.Contains(trustedIssuers, c.Iss) {
		return ClaimsUntrusted
	}

	if c.Aud != audience {
		return ClaimsWrongAudience
	}

	return ClaimsValid
}

// TokenKind discriminates the type of an issued token.
type TokenKind string

// The kinds of token this service issues.
const (
	// A general-purpose session token.
	TokenKindCommon TokenKind = "common"
	// A short-lived token authorizing a single consented action.
	TokenKindConsent TokenKind = "consent"
	// A token authorizing device or account provisioning.
	TokenKindProvisioning TokenKind = "provisioning"
)

// TokenType is the tagged type of an issued token. Consent tokens carry
// the action that was consented to.
type TokenType struct {
	// The kind of token.
	Kind TokenKind `json:"kind"`
	// The consented action. Only set for consent tokens.
	Act string `json:"act,omitempty"`
}

// Common returns the type for a general-purpose token.
func Common() TokenType {
	return TokenType{Kind: TokenKindCommon}
}

// Consent returns the type for a token consenting to the given action.
func Consent(act string) TokenType {
	return TokenType{Kind: TokenKindConsent, Act: act}
}

// Provisioning returns the type for a provisioning token.
func Provisioning() TokenType {
	return TokenType{Kind: TokenKindProvisioning}
}

// TTL returns how long a token of this type remains valid.
func (t TokenType) TTL() time.Duration {
	switch t.Kind {
	case TokenKindConsent:
		return 5 * time.Minute
	case TokenKindProvisioning:
		return 4 * time.Hour
	default:
		return 30 * 24 * time.Hour
	}
}

// TokenClaims are the claims of an issued token, keyed for revocation
// by the token ID. Times are integer seconds since the epoch.
type TokenClaims struct {
	// The globally-unique ID of this token.
	Tid string `json:"tid"`
	// The expiry of the token, in seconds since the epoch.
	Exp int64 `json:"exp"`
	// The time the token was issued, in seconds since the epoch.
	Iat int64 `json:"iat"`
	// The subject of the token.
	Sub string `json:"sub"`
	// The type of the token.
	Typ TokenType `json:"typ"`
}

// ExpiresAt returns the expiry as an instant.
func (c TokenClaims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

// IssuedAt returns the issue time as an instant.
func (c TokenClaims) IssuedAt() time.Time {
	return time.Unix(c.Iat, 0)
}

// IsExpired reports whether the token has expired.
func (c TokenClaims) IsExpired() bool {
	return c.ExpiresAt().Before(time.Now())
}

// Encode encodes the JSON representation of the claims as unpadded
// base64url.
func (c TokenClaims) Encode() (string, error) {
	return encodeSegment(c)
}

// DecodeTokenClaims decodes token claims from an unpadded base64url
// JSON segment.
func DecodeTokenClaims(value string) (TokenClaims, error) {
	var claims TokenClaims
	err := decodeSegment(value, &claims)
	return claims, err
}

// JSONWebToken is a decoded token.
type JSONWebToken struct {
	// The JOSE header.
	Header Header
	// The token claims.
	Claims TokenClaims
}

// Compact assembles the compact serialization of the token from its
// segments and an unpadded base64url signature.
func (t JSONWebToken) Compact(signature string) (string, error) {
	header, err := t.Header.Encode()
	if err != nil {
		return "", err
	}
	claims, err := t.Claims.Encode()
	if err != nil {
		return "", err
	}
	return header + "." + claims + "." + signature, nil
}

// IssuedToken is a decoded audience-based token.
type IssuedToken struct {
	// The JOSE header.
	Header Header
	// The token claims.
	Claims Claims
}

func encodeSegment(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", &EncodeError{Err: err}
	}
	return b64.Encode(data), nil
}

func decodeSegment(value string, v any) error {
	data, err := b64.Decode(value)
	if err != nil {
		return &DecodeError{Kind: DecodeBase64, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &DecodeError{Kind: DecodeJSON, Err: err}
	}
	return nil
}

// DecodeErrorKind identifies which stage of segment decoding failed.
type DecodeErrorKind int

const (
	// The segment is not valid base64.
	DecodeBase64 DecodeErrorKind = iota
	// The decoded JSON could not be deserialized.
	DecodeJSON
)

// DecodeError reports a failed header or claims decode.
type DecodeError struct {
	Kind DecodeErrorKind
	Err  error
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case DecodeBase64:
		return "value is invalid base64"
	default:
		return "decoded JSON is invalid"
	}
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// EncodeError reports a failed header or claims encode.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return "value could not be serialized to JSON"
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
