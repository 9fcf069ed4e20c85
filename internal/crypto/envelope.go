package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/TheMichaelB/vaultsync/internal/models"
)

// Envelope is the salt + IV + ciphertext triple representing one encrypted
// value. It renders as a colon-delimited hex string for field storage and
// marshals to the {encrypted, salt, iv} JSON object used for server-side
// artifacts.
type Envelope struct {
	Ciphertext string `json:"encrypted"`
	Salt       string `json:"salt"`
	IV         string `json:"iv"`
}

// String renders the wire form salt:iv:ciphertext.
func (e Envelope) String() string {
	return e.Salt + ":" + e.IV + ":" + e.Ciphertext
}

// ParseEnvelope decodes the salt:iv:ciphertext wire form. Any other shape
// is ErrInvalidEnvelope, a decode error distinct from decryption failure.
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return Envelope{}, models.ErrInvalidEnvelope
	}

	for _, p := range parts {
		if p == "" {
			return Envelope{}, models.ErrInvalidEnvelope
		}
		if _, err := hex.DecodeString(p); err != nil {
			return Envelope{}, models.ErrInvalidEnvelope
		}
	}

	return Envelope{Salt: parts[0], IV: parts[1], Ciphertext: parts[2]}, nil
}

// IsEnvelope reports whether s has the three-part envelope shape.
func IsEnvelope(s string) bool {
	_, err := ParseEnvelope(s)
	return err == nil
}
