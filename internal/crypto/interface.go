package crypto

// Provider handles all cryptographic operations for the vault.
type Provider interface {
	// HashPassword returns a one-way digest used only for password
	// verification, never for key derivation.
	HashPassword(password string) string

	// DeriveKey derives an encryption key from a password and salt.
	// Deterministic and deliberately slow.
	DeriveKey(password string, salt []byte) []byte

	// Encrypt seals plaintext under a fresh salt and nonce. Encrypting the
	// same plaintext twice yields different envelopes.
	Encrypt(plaintext, password string) (Envelope, error)

	// Decrypt opens an envelope string. Returns ErrInvalidEnvelope for a
	// malformed envelope and ErrDecryptionFailed when the password is wrong
	// or the ciphertext is corrupted.
	Decrypt(envelope, password string) (string, error)

	// Validate reports whether the password can open testEnvelope, or, when
	// testEnvelope is empty, whether a self round trip succeeds.
	Validate(password, testEnvelope string) bool

	// EncryptFields replaces each present named field's value with its
	// envelope string. Absent fields stay absent.
	EncryptFields(fields map[string]string, password string, names []string) (map[string]string, error)

	// DecryptFields decrypts each named field that carries an envelope.
	// A field that fails to decrypt keeps its raw envelope value and its
	// name is returned in the second result; one corrupted field never
	// aborts the rest of the record.
	DecryptFields(fields map[string]string, password string, names []string) (map[string]string, []string)
}
