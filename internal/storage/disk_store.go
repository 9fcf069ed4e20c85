package storage

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/TheMichaelB/vaultsync/internal/events"
)

// DiskStore implements BlobStore on the local filesystem.
type DiskStore struct {
	baseDir string
	logger  *events.Logger
}

// NewDiskStore creates a disk-backed blob store rooted at baseDir.
func NewDiskStore(baseDir string, logger *events.Logger) (*DiskStore, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve base directory: %w", err)
	}

	if err := os.MkdirAll(absPath, 0700); err != nil {
		return nil, fmt.Errorf("create base directory: %w", err)
	}

	return &DiskStore{
		baseDir: absPath,
		logger:  logger.WithField("component", "disk_store"),
	}, nil
}

// Write saves data atomically via a temp file and rename.
func (s *DiskStore) Write(ctx context.Context, key string, data []byte) error {
	path, err := s.safePath(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create parent directory: %w", err)
	}

	tmpPath := fmt.Sprintf("%s.tmp.%d", path, time.Now().UnixNano())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}

	if file, err := os.Open(tmpPath); err == nil {
		_ = file.Sync()
		file.Close()
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"key":  key,
		"size": len(data),
	}).Debug("Wrote blob")

	return nil
}

// Read retrieves blob contents.
func (s *DiskStore) Read(ctx context.Context, key string) ([]byte, error) {
	path, err := s.safePath(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("blob not found: %s", key)
		}
		return nil, fmt.Errorf("read blob: %w", err)
	}

	return data, nil
}

// Delete removes a blob; missing blobs are ignored.
func (s *DiskStore) Delete(ctx context.Context, key string) error {
	path, err := s.safePath(key)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob: %w", err)
	}

	return nil
}

// Exists checks blob presence.
func (s *DiskStore) Exists(ctx context.Context, key string) (bool, error) {
	path, err := s.safePath(key)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// List returns blob keys under a prefix.
func (s *DiskStore) List(ctx context.Context, prefix string) ([]string, error) {
	root, err := s.safePath(prefix)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.baseDir, path)
		if err != nil {
			return err
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list blobs: %w", err)
	}

	return keys, nil
}

// safePath validates a key and resolves it under the base directory.
func (s *DiskStore) safePath(key string) (string, error) {
	cleaned := filepath.Clean(filepath.FromSlash(key))
	if strings.Contains(cleaned, "..") || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("invalid blob key: %s", key)
	}

	cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	full := filepath.Join(s.baseDir, cleaned)

	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) && full != s.baseDir {
		return "", fmt.Errorf("blob key escapes base directory: %s", key)
	}

	return full, nil
}
