package webauthn

import (
	"time"

	"github.com/TrentShailer/api-helper/b64"
)

// PersistedPublicKey is the credential record the relying party keeps
// after a successful registration. RawID is globally unique and the
// DER must parse as a public key under the recorded algorithm.
type PersistedPublicKey struct {
	// The raw ID of the credential.
	RawID b64.Bytes `json:"rawId"`

	// The ID of the identity this credential belongs to.
	IdentityID b64.Bytes `json:"identityId"`

	// The user's display name for this credential.
	DisplayName string `json:"displayName"`

	// The public key as X.509 SubjectPublicKeyInfo DER.
	PublicKey b64.Bytes `json:"publicKey"`

	// The public key algorithm.
	PublicKeyAlgorithm Algorithm `json:"publicKeyAlgorithm"`

	// The transports of the authenticator that created the credential.
	Transports []Transport `json:"transports"`

	// The number of times the private key has signed. Monotonic, and
	// each value appears once, if the authenticator supports it;
	// otherwise always zero.
	SignatureCounter int64 `json:"signatureCounter"`

	// When the credential was registered.
	Created time.Time `json:"created"`

	// When the credential last completed an assertion.
	LastUsed *time.Time `json:"lastUsed,omitempty"`
}
