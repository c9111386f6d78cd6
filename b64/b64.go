// Package b64 provides the base64url (unpadded) codec used for every
// binary field that crosses the wire: JWS segments, JWK coordinates,
// and WebAuthn credential fields.
package b64

import (
	"encoding/base64"
	"encoding/json"
)

// Encode encodes bytes as unpadded base64url.
func Encode(value []byte) string {
	return base64.RawURLEncoding.EncodeToString(value)
}

// Decode decodes an unpadded base64url string.
func Decode(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(value)
}

// Bytes is a byte slice that marshals to and from an unpadded base64url
// JSON string.
type Bytes []byte

// MarshalJSON implements json.Marshaler.
func (b Bytes) MarshalJSON() ([]byte, error) {
	return json.Marshal(Encode(b))
}

// UnmarshalJSON implements json.Unmarshaler.
func (b *Bytes) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}

	decoded, err := Decode(value)
	if err != nil {
		return err
	}

	*b = decoded
	return nil
}
