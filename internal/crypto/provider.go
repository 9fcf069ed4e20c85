package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/TheMichaelB/vaultsync/internal/models"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	// PBKDF2 parameters. Fixed iteration count: the same (password, salt)
	// must always yield the same key.
	Iterations = 100000
	SaltSize   = 16
)

// EnvelopeProvider implements Provider with PBKDF2 + AES-256-GCM.
type EnvelopeProvider struct {
	iterations int
}

// NewProvider creates a crypto provider.
func NewProvider() Provider {
	return &EnvelopeProvider{iterations: Iterations}
}

// normalizePassword applies NFKC so visually identical passwords typed on
// different platforms derive the same key.
func normalizePassword(password string) string {
	return norm.NFKC.String(password)
}

// HashPassword returns the SHA-256 hex digest of the normalized password.
func (p *EnvelopeProvider) HashPassword(password string) string {
	sum := sha256.Sum256([]byte(normalizePassword(password)))
	return hex.EncodeToString(sum[:])
}

// DeriveKey derives an AES key via PBKDF2-SHA256.
func (p *EnvelopeProvider) DeriveKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(normalizePassword(password)), salt, p.iterations, KeySize, sha256.New)
}

// Encrypt seals plaintext under a freshly derived key. A new salt is drawn
// per call, so two envelopes never share a derived key even under the same
// password, and re-encrypting an unchanged field never leaks equality.
func (p *EnvelopeProvider) Encrypt(plaintext, password string) (Envelope, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return Envelope{}, fmt.Errorf("generate salt: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := p.newAEAD(password, salt)
	if err != nil {
		return Envelope{}, err
	}

	ciphertext := aead.Seal(nil, nonce, []byte(plaintext), nil)

	return Envelope{
		Salt:       hex.EncodeToString(salt),
		IV:         hex.EncodeToString(nonce),
		Ciphertext: hex.EncodeToString(ciphertext),
	}, nil
}

// Decrypt opens a salt:iv:ciphertext envelope string.
func (p *EnvelopeProvider) Decrypt(envelope, password string) (string, error) {
	env, err := ParseEnvelope(envelope)
	if err != nil {
		return "", err
	}
	return p.open(env, password)
}

// open decrypts a parsed envelope. Wrong password and corrupted ciphertext
// are reported identically to avoid an oracle.
func (p *EnvelopeProvider) open(env Envelope, password string) (string, error) {
	salt, err := hex.DecodeString(env.Salt)
	if err != nil {
		return "", models.ErrInvalidEnvelope
	}
	nonce, err := hex.DecodeString(env.IV)
	if err != nil {
		return "", models.ErrInvalidEnvelope
	}
	ciphertext, err := hex.DecodeString(env.Ciphertext)
	if err != nil {
		return "", models.ErrInvalidEnvelope
	}

	if len(nonce) != NonceSize || len(ciphertext) < TagSize {
		return "", models.ErrInvalidEnvelope
	}

	aead, err := p.newAEAD(password, salt)
	if err != nil {
		return "", err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", models.ErrDecryptionFailed
	}

	// GCM authenticates, but never hand back bytes that are not valid text.
	if !utf8.Valid(plaintext) {
		return "", models.ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// Validate reports whether the password opens testEnvelope. Without a
// stored test envelope it falls back to a self-contained round trip.
func (p *EnvelopeProvider) Validate(password, testEnvelope string) bool {
	if testEnvelope != "" {
		_, err := p.Decrypt(testEnvelope, password)
		return err == nil
	}

	const probe = "vaultsync-validate"
	env, err := p.Encrypt(probe, password)
	if err != nil {
		return false
	}
	out, err := p.Decrypt(env.String(), password)
	return err == nil && out == probe
}

func (p *EnvelopeProvider) newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := p.DeriveKey(password, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return aead, nil
}
