package webauthn

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/TrentShailer/api-helper/b64"
)

// AuthenticatorFlags is the flags byte of the authenticator data.
type AuthenticatorFlags byte

// UserPresent reports whether the user was present for the ceremony.
func (f AuthenticatorFlags) UserPresent() bool { return f&0x01 != 0 }

// UserVerified reports whether the authenticator verified the user.
func (f AuthenticatorFlags) UserVerified() bool { return f&0x04 != 0 }

// BackupEligible reports whether the credential may be backed up.
func (f AuthenticatorFlags) BackupEligible() bool { return f&0x08 != 0 }

// BackedUp reports whether the credential is currently backed up.
func (f AuthenticatorFlags) BackedUp() bool { return f&0x10 != 0 }

// AttestedCredentialData reports whether attested credential data
// follows the counter.
func (f AuthenticatorFlags) AttestedCredentialData() bool { return f&0x40 != 0 }

// ExtensionData reports whether extension data is included.
func (f AuthenticatorFlags) ExtensionData() bool { return f&0x80 != 0 }

// AuthenticatorData is the binary blob signed by an authenticator:
// a 32-byte hash of the relying party ID, a flags byte, and a
// big-endian signature counter, with optional trailing fields. Raw
// holds the exact bytes; the assertion signature covers Raw.
type AuthenticatorData struct {
	// SHA-256 of the relying party ID the authenticator scoped the
	// credential to.
	RelyingPartyIDHash [32]byte
	// The flags byte.
	Flags AuthenticatorFlags
	// The signature counter. Monotonic when the authenticator supports
	// one, zero otherwise.
	SignatureCounter uint32
	// The exact bytes the base64url value decoded to.
	Raw []byte
}

// authenticatorDataHeaderLength is the fixed prefix: hash, flags,
// counter.
const authenticatorDataHeaderLength = 37

// ParseAuthenticatorData parses the fixed fields of authenticator
// data, retaining the raw bytes verbatim.
func ParseAuthenticatorData(raw []byte) (AuthenticatorData, error) {
	if len(raw) < authenticatorDataHeaderLength {
		return AuthenticatorData{}, fmt.Errorf("authenticator data is %d bytes, need at least %d", len(raw), authenticatorDataHeaderLength)
	}

	var data AuthenticatorData
	copy(data.RelyingPartyIDHash[:], raw[:32])
	data.Flags = AuthenticatorFlags(raw[32])
	data.SignatureCounter = binary.BigEndian.Uint32(raw[33:37])
	data.Raw = raw

	return data, nil
}

// UnmarshalJSON decodes the transmitted base64url string and parses
// the binary inside it.
func (d *AuthenticatorData) UnmarshalJSON(data []byte) error {
	var raw b64.Bytes
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	parsed, err := ParseAuthenticatorData(raw)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

// MarshalJSON re-encodes the retained raw bytes.
func (d AuthenticatorData) MarshalJSON() ([]byte, error) {
	return json.Marshal(b64.Bytes(d.Raw))
}
