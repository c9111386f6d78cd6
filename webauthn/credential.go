package webauthn

import (
	"encoding/json"
	"fmt"

	"github.com/TrentShailer/api-helper/b64"
)

// AuthenticatorAttachment describes how the authenticator is attached
// to the client.
type AuthenticatorAttachment string

// The attachment modalities.
const (
	AttachmentPlatform      AuthenticatorAttachment = "platform"
	AttachmentCrossPlatform AuthenticatorAttachment = "cross-platform"
)

// Transport is a mechanism an authenticator can be reached over.
type Transport string

// The transports.
const (
	TransportBLE      Transport = "ble"
	TransportHybrid   Transport = "hybrid"
	TransportInternal Transport = "internal"
	TransportNFC      Transport = "nfc"
	TransportUSB      Transport = "usb"
)

// ParseTransport converts a raw string to a Transport.
func ParseTransport(value string) (Transport, error) {
	switch Transport(value) {
	case TransportBLE, TransportHybrid, TransportInternal, TransportNFC, TransportUSB:
		return Transport(value), nil
	default:
		return "", fmt.Errorf("value %q is not a valid transport", value)
	}
}

// PublicKeyCredential is a credential presented by a user agent.
//
// https://developer.mozilla.org/en-US/docs/Web/API/PublicKeyCredential
type PublicKeyCredential struct {
	AuthenticatorAttachment AuthenticatorAttachment `json:"authenticatorAttachment,omitempty"`
	ID                      string                  `json:"id"`
	RawID                   b64.Bytes               `json:"rawId"`
	Response                Response                `json:"response"`
}

// Response is the authenticator's response, either to a registration
// (attestation) or to a login (assertion). Exactly one field is set;
// the variant is selected by the shape of the JSON.
type Response struct {
	Attestation *AttestationResponse
	Assertion   *AssertionResponse
}

// UnmarshalJSON selects the response variant by shape: an assertion
// carries a signature, an attestation carries an attestation object.
func (r *Response) UnmarshalJSON(data []byte) error {
	var probe struct {
		Signature         *json.RawMessage `json:"signature"`
		AttestationObject *json.RawMessage `json:"attestationObject"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}

	switch {
	case probe.Signature != nil:
		var assertion AssertionResponse
		if err := json.Unmarshal(data, &assertion); err != nil {
			return err
		}
		*r = Response{Assertion: &assertion}
		return nil
	case probe.AttestationObject != nil:
		var attestation AttestationResponse
		if err := json.Unmarshal(data, &attestation); err != nil {
			return err
		}
		*r = Response{Attestation: &attestation}
		return nil
	default:
		return fmt.Errorf("response is neither an attestation nor an assertion")
	}
}

// MarshalJSON serializes whichever variant is set.
func (r Response) MarshalJSON() ([]byte, error) {
	switch {
	case r.Attestation != nil:
		return json.Marshal(r.Attestation)
	case r.Assertion != nil:
		return json.Marshal(r.Assertion)
	default:
		return nil, fmt.Errorf("response has no variant set")
	}
}

// AttestationResponse is the authenticator's response to a
// registration ceremony. The public key and algorithm are the
// authenticator's own getPublicKey()/getPublicKeyAlgorithm() results;
// attestation-statement trust chains are not validated.
//
// https://developer.mozilla.org/en-US/docs/Web/API/AuthenticatorAttestationResponse
type AttestationResponse struct {
	AttestationObject b64.Bytes         `json:"attestationObject"`
	ClientDataJSON    ClientDataJSON    `json:"clientDataJSON"`
	AuthenticatorData AuthenticatorData `json:"authenticatorData"`
	// The credential public key as an X.509 SubjectPublicKeyInfo.
	PublicKey b64.Bytes `json:"publicKey"`
	// The COSE algorithm of the public key.
	PublicKeyAlgorithm Algorithm   `json:"publicKeyAlgorithm"`
	Transports         []Transport `json:"transports"`
}

// AssertionResponse is the authenticator's response to a login
// ceremony.
//
// https://developer.mozilla.org/en-US/docs/Web/API/AuthenticatorAssertionResponse
type AssertionResponse struct {
	AuthenticatorData AuthenticatorData `json:"authenticatorData"`
	ClientDataJSON    ClientDataJSON    `json:"clientDataJSON"`
	// The signature over authenticatorData and the hash of the client
	// data.
	Signature b64.Bytes `json:"signature"`
	// The user.id given in the originating creation options. May be
	// absent.
	UserHandle b64.Bytes `json:"userHandle,omitempty"`
}
