// Package vaultfile implements the server-side vault store: file
// attachments and the vault-item snapshot, both encrypted at rest under
// the caller's password. Artifacts live in a BlobStore as
// {encrypted, salt, iv} JSON objects.
package vaultfile

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/TheMichaelB/vaultsync/internal/crypto"
	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/storage"
)

const (
	filePrefix     = "files/"
	metaSuffix     = ".meta.json"
	bodySuffix     = ".json"
	snapshotKey    = "items/snapshot.json"
	backupPrefix   = "items/backups/"
	backupTimeform = "20060102-150405.000000000"
)

// Config tunes the service.
type Config struct {
	MaxUploadSize int64
	MaxConcurrent int
	RetryAttempts int
	RetryDelay    time.Duration
	MaxBackups    int
}

// Service encrypts, verifies and serves vault artifacts.
type Service struct {
	blobs  storage.BlobStore
	crypto crypto.Provider
	logger *events.Logger
	cfg    Config
}

// NewService creates a vault file service.
func NewService(blobs storage.BlobStore, provider crypto.Provider, cfg Config, logger *events.Logger) *Service {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.MaxBackups <= 0 {
		cfg.MaxBackups = 5
	}

	return &Service{
		blobs:  blobs,
		crypto: provider,
		logger: logger.WithField("component", "vault_file_service"),
		cfg:    cfg,
	}
}

// UploadRequest carries one file into the service.
type UploadRequest struct {
	Name        string
	MimeType    string
	Description string
	Category    string
	Data        []byte
}

// Upload encrypts file bytes and metadata and stores both artifacts.
// Once a file id is minted, any failure cleans up every partially written
// artifact before the error surfaces: a failed upload leaves no orphaned
// encrypted blobs behind.
func (s *Service) Upload(ctx context.Context, password string, req UploadRequest) (*models.UploadResult, error) {
	if password == "" {
		return nil, models.ErrNoCredentials
	}
	data := req.Data
	if s.cfg.MaxUploadSize > 0 && int64(len(data)) > s.cfg.MaxUploadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", models.ErrFileTooLarge, len(data), s.cfg.MaxUploadSize)
	}

	fileID, err := newFileID()
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	meta := models.FileMetadata{
		FileID:      fileID,
		Name:        req.Name,
		MimeType:    req.MimeType,
		Size:        int64(len(data)),
		Description: req.Description,
		Category:    req.Category,
		Checksum:    hex.EncodeToString(sum[:]),
		UploadedAt:  time.Now().UTC(),
	}

	if err := s.writeEncrypted(ctx, bodyKey(fileID), base64.StdEncoding.EncodeToString(data), password); err != nil {
		s.cleanup(ctx, fileID)
		return nil, fmt.Errorf("store file body: %w", err)
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		s.cleanup(ctx, fileID)
		return nil, fmt.Errorf("encode metadata: %w", err)
	}

	if err := s.writeEncrypted(ctx, metaKey(fileID), string(metaJSON), password); err != nil {
		s.cleanup(ctx, fileID)
		return nil, fmt.Errorf("store file metadata: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"file_id": fileID,
		"size":    meta.Size,
	}).Info("Stored file")

	return &models.UploadResult{
		FileID:   fileID,
		Name:     req.Name,
		Size:     meta.Size,
		MimeType: req.MimeType,
	}, nil
}

// Download decrypts and verifies a stored file. Metadata is decrypted
// first, so a wrong password surfaces as a decryption failure distinct
// from a missing file. The checksum is recomputed over the decoded bytes
// to catch silent corruption independent of decryption correctness.
func (s *Service) Download(ctx context.Context, password, fileID string) ([]byte, *models.FileMetadata, error) {
	meta, err := s.Metadata(ctx, password, fileID)
	if err != nil {
		return nil, nil, err
	}

	encoded, err := s.readEncrypted(ctx, bodyKey(fileID), password)
	if err != nil {
		return nil, nil, err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, nil, fmt.Errorf("decode file body: %w", models.ErrDecryptionFailed)
	}

	sum := sha256.Sum256(data)
	actual := hex.EncodeToString(sum[:])
	if actual != meta.Checksum {
		return nil, nil, &models.IntegrityError{
			FileID:   fileID,
			Expected: meta.Checksum,
			Actual:   actual,
		}
	}

	return data, meta, nil
}

// Metadata loads and decrypts one file's metadata record.
func (s *Service) Metadata(ctx context.Context, password, fileID string) (*models.FileMetadata, error) {
	if password == "" {
		return nil, models.ErrNoCredentials
	}

	exists, err := s.blobs.Exists(ctx, metaKey(fileID))
	if err != nil {
		return nil, fmt.Errorf("check metadata: %w", err)
	}
	if !exists {
		return nil, models.ErrNotFound
	}

	plaintext, err := s.readEncrypted(ctx, metaKey(fileID), password)
	if err != nil {
		return nil, err
	}

	var meta models.FileMetadata
	if err := json.Unmarshal([]byte(plaintext), &meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", models.ErrDecryptionFailed)
	}

	return &meta, nil
}

// ListResult carries the decrypted metadata plus a side channel of
// per-record failures; one undecryptable record never aborts the listing.
type ListResult struct {
	Files  []models.FileMetadata
	Errors []string
}

// List decrypts every metadata record under a bounded-concurrency batch.
func (s *Service) List(ctx context.Context, password string) (*ListResult, error) {
	if password == "" {
		return nil, models.ErrNoCredentials
	}

	keys, err := s.blobs.List(ctx, strings.TrimSuffix(filePrefix, "/"))
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var metaKeys []string
	for _, key := range keys {
		if strings.HasSuffix(key, metaSuffix) {
			metaKeys = append(metaKeys, key)
		}
	}

	var (
		mu     sync.Mutex
		result ListResult
		wg     sync.WaitGroup
		sem    = make(chan struct{}, s.cfg.MaxConcurrent)
	)

	for _, key := range metaKeys {
		wg.Add(1)
		sem <- struct{}{}
		go func(key string) {
			defer wg.Done()
			defer func() { <-sem }()

			plaintext, err := s.readEncrypted(ctx, key, password)
			if err == nil {
				var meta models.FileMetadata
				if jsonErr := json.Unmarshal([]byte(plaintext), &meta); jsonErr == nil {
					mu.Lock()
					result.Files = append(result.Files, meta)
					mu.Unlock()
					return
				}
				err = models.ErrDecryptionFailed
			}

			fileID := strings.TrimSuffix(strings.TrimPrefix(key, filePrefix), metaSuffix)
			mu.Lock()
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", fileID, err))
			mu.Unlock()
		}(key)
	}

	wg.Wait()

	if len(result.Errors) > 0 {
		s.logger.WithField("count", len(result.Errors)).Warn("Some file metadata records could not be decrypted")
	}

	return &result, nil
}

// DeleteFile removes a file's body and metadata artifacts.
func (s *Service) DeleteFile(ctx context.Context, fileID string) error {
	exists, err := s.blobs.Exists(ctx, bodyKey(fileID))
	if err != nil {
		return fmt.Errorf("check file: %w", err)
	}
	if !exists {
		return models.ErrNotFound
	}

	if err := s.blobs.Delete(ctx, bodyKey(fileID)); err != nil {
		return fmt.Errorf("delete file body: %w", err)
	}
	if err := s.blobs.Delete(ctx, metaKey(fileID)); err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}

	s.logger.WithField("file_id", fileID).Info("Deleted file")
	return nil
}

// writeEncrypted seals plaintext and writes the artifact with bounded
// linear-backoff retry.
func (s *Service) writeEncrypted(ctx context.Context, key, plaintext, password string) error {
	env, err := s.crypto.Encrypt(plaintext, password)
	if err != nil {
		return err
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}

	return s.retry(ctx, func() error {
		return s.blobs.Write(ctx, key, data)
	})
}

// readEncrypted reads an artifact with retry and opens its envelope.
func (s *Service) readEncrypted(ctx context.Context, key, password string) (string, error) {
	var data []byte
	err := s.retry(ctx, func() error {
		var readErr error
		data, readErr = s.blobs.Read(ctx, key)
		return readErr
	})
	if err != nil {
		return "", fmt.Errorf("read artifact %s: %w", key, err)
	}

	var env crypto.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", models.ErrInvalidEnvelope
	}

	return s.crypto.Decrypt(env.String(), password)
}

// retry runs fn with linear backoff: the delay grows by the attempt
// number up to the fixed attempt count.
func (s *Service) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.RetryAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < s.cfg.RetryAttempts {
			select {
			case <-time.After(s.cfg.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// cleanup removes both artifacts of a failed upload.
func (s *Service) cleanup(ctx context.Context, fileID string) {
	if err := s.blobs.Delete(ctx, bodyKey(fileID)); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Warn("Cleanup of file body failed")
	}
	if err := s.blobs.Delete(ctx, metaKey(fileID)); err != nil {
		s.logger.WithError(err).WithField("file_id", fileID).Warn("Cleanup of file metadata failed")
	}
}

func newFileID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate file id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func bodyKey(fileID string) string { return filePrefix + fileID + bodySuffix }
func metaKey(fileID string) string { return filePrefix + fileID + metaSuffix }
