package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeCredentials = "CREDENTIAL_MISSING"
	ErrCodeEnvelope    = "INVALID_ENVELOPE"
	ErrCodeDecryption  = "DECRYPTION_ERROR"
	ErrCodeIntegrity   = "INTEGRITY_ERROR"
	ErrCodeNotFound    = "NOT_FOUND"
	ErrCodeUnavailable = "UNAVAILABLE"
	ErrCodeSaveVerify  = "SAVE_VERIFICATION"
	ErrCodeStorage     = "STORAGE_ERROR"
)

// Sentinel errors
var (
	ErrNoCredentials = errors.New("no master password supplied")

	// ErrInvalidEnvelope marks a malformed envelope string. This is a decode
	// error, distinct from a decryption failure.
	ErrInvalidEnvelope = errors.New("invalid envelope format")

	// ErrDecryptionFailed covers both wrong password and corrupted
	// ciphertext; the two must not be distinguishable to a caller.
	ErrDecryptionFailed = errors.New("decryption failed")

	ErrIntegrityMismatch = errors.New("integrity check failed")
	ErrNotFound          = errors.New("not found")
	ErrUnavailable       = errors.New("remote unavailable")
	ErrSaveVerification  = errors.New("save verification failed")
	ErrFileTooLarge      = errors.New("file exceeds size limit")
)

// APIError represents an error response from the server.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

// DecryptError carries the field or artifact that failed to decrypt.
type DecryptError struct {
	Field  string
	Reason string
	Err    error
}

func (e *DecryptError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("decrypt %s: %s: %v", e.Field, e.Reason, e.Err)
	}
	return fmt.Sprintf("decrypt: %s: %v", e.Reason, e.Err)
}

func (e *DecryptError) Unwrap() error { return e.Err }

// IntegrityError reports a checksum disagreement after successful decryption.
type IntegrityError struct {
	FileID   string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: expected %s, got %s",
		e.FileID, e.Expected, e.Actual)
}

func (e *IntegrityError) Unwrap() error { return ErrIntegrityMismatch }

// SyncError provides detailed sync failure information.
type SyncError struct {
	Code  string
	Phase string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s [%s]: %v", e.Phase, e.Code, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }
