package webauthn

import (
	"encoding/json"

	"github.com/TrentShailer/api-helper/b64"
)

// ClientDataType discriminates which ceremony produced the client data.
type ClientDataType string

// The ceremony types.
const (
	// A registration (create) ceremony.
	ClientDataCreate ClientDataType = "webauthn.create"
	// An assertion (get) ceremony.
	ClientDataGet ClientDataType = "webauthn.get"
)

// ClientDataJSON is the JSON the user agent constructs and the
// authenticator signs alongside the authenticator data. Raw holds the
// exact decoded bytes; signature verification uses Raw and never a
// re-serialization, because any byte difference invalidates the
// signature.
type ClientDataJSON struct {
	// The ceremony type.
	Type ClientDataType
	// The challenge the ceremony responds to.
	Challenge []byte
	// The origin the ceremony ran on.
	Origin string
	// Whether the ceremony ran in a cross-origin context.
	CrossOrigin bool
	// The top-level origin for cross-origin ceremonies.
	TopOrigin string
	// The exact bytes the base64url value decoded to.
	Raw []byte
}

// clientDataWire is the decoded JSON shape.
type clientDataWire struct {
	Type        ClientDataType `json:"type"`
	Challenge   b64.Bytes      `json:"challenge"`
	Origin      string         `json:"origin"`
	CrossOrigin bool           `json:"crossOrigin,omitempty"`
	TopOrigin   string         `json:"topOrigin,omitempty"`
}

// UnmarshalJSON decodes the transmitted base64url string and parses
// the JSON inside it, retaining the decoded bytes verbatim.
func (c *ClientDataJSON) UnmarshalJSON(data []byte) error {
	var raw b64.Bytes
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var wire clientDataWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		return err
	}

	*c = ClientDataJSON{
		Type:        wire.Type,
		Challenge:   wire.Challenge,
		Origin:      wire.Origin,
		CrossOrigin: wire.CrossOrigin,
		TopOrigin:   wire.TopOrigin,
		Raw:         raw,
	}
	return nil
}

// MarshalJSON re-encodes the retained raw bytes.
func (c ClientDataJSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(b64.Bytes(c.Raw))
}
