package vaultfile

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/TheMichaelB/vaultsync/internal/models"
)

// SaveItems overwrites the single stored vault-item snapshot.
//
// Sequence: back up the existing snapshot to a timestamped copy, write the
// new one, then read it back, decrypt it and compare item counts as a
// write-verification step. On mismatch the backup is restored and
// ErrSaveVerification is returned. Backups beyond the configured maximum
// are pruned after each successful save.
func (s *Service) SaveItems(ctx context.Context, password string, items []models.VaultItem) (*models.SaveReceipt, error) {
	if password == "" {
		return nil, models.ErrNoCredentials
	}

	backupKey, err := s.backupSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("backup snapshot: %w", err)
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}

	if err := s.writeEncrypted(ctx, snapshotKey, string(payload), password); err != nil {
		return nil, fmt.Errorf("write snapshot: %w", err)
	}

	// Read-back verification.
	stored, err := s.loadSnapshot(ctx, password)
	if err != nil || len(stored) != len(items) {
		s.logger.WithFields(map[string]interface{}{
			"expected": len(items),
			"stored":   len(stored),
		}).Error("Snapshot verification failed")

		if backupKey != "" {
			if restoreErr := s.restoreSnapshot(ctx, backupKey); restoreErr != nil {
				s.logger.WithError(restoreErr).Error("Snapshot restore failed")
			}
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrSaveVerification, err)
		}
		return nil, models.ErrSaveVerification
	}

	s.pruneBackups(ctx)

	s.logger.WithField("count", len(items)).Info("Saved vault snapshot")

	return &models.SaveReceipt{
		ItemCount: len(items),
		SavedAt:   time.Now().UTC(),
		Verified:  true,
	}, nil
}

// LoadItems returns the decrypted snapshot; a fresh account (no snapshot
// yet) yields an empty list, not an error.
func (s *Service) LoadItems(ctx context.Context, password string) ([]models.VaultItem, error) {
	if password == "" {
		return nil, models.ErrNoCredentials
	}

	exists, err := s.blobs.Exists(ctx, snapshotKey)
	if err != nil {
		return nil, fmt.Errorf("check snapshot: %w", err)
	}
	if !exists {
		return []models.VaultItem{}, nil
	}

	return s.loadSnapshot(ctx, password)
}

// UpdateItem upserts one item in the snapshot: a missing id is inserted.
func (s *Service) UpdateItem(ctx context.Context, password string, id int64, item models.VaultItem) error {
	items, err := s.LoadItems(ctx, password)
	if err != nil {
		return err
	}

	item.ID = id
	found := false
	for i := range items {
		if items[i].ID == id {
			items[i] = item
			found = true
			break
		}
	}
	if !found {
		items = append(items, item)
	}

	_, err = s.SaveItems(ctx, password, items)
	return err
}

// DeleteItem removes one item from the snapshot.
func (s *Service) DeleteItem(ctx context.Context, password string, id int64) error {
	items, err := s.LoadItems(ctx, password)
	if err != nil {
		return err
	}

	kept := items[:0]
	for _, it := range items {
		if it.ID != id {
			kept = append(kept, it)
		}
	}
	if len(kept) == len(items) {
		return models.ErrNotFound
	}

	_, err = s.SaveItems(ctx, password, kept)
	return err
}

func (s *Service) loadSnapshot(ctx context.Context, password string) ([]models.VaultItem, error) {
	plaintext, err := s.readEncrypted(ctx, snapshotKey, password)
	if err != nil {
		return nil, err
	}

	var items []models.VaultItem
	if err := json.Unmarshal([]byte(plaintext), &items); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", models.ErrDecryptionFailed)
	}

	return items, nil
}

// backupSnapshot copies the current snapshot to a timestamped backup key.
// Returns the empty string when no snapshot exists yet.
func (s *Service) backupSnapshot(ctx context.Context) (string, error) {
	exists, err := s.blobs.Exists(ctx, snapshotKey)
	if err != nil || !exists {
		return "", err
	}

	data, err := s.blobs.Read(ctx, snapshotKey)
	if err != nil {
		return "", err
	}

	key := backupPrefix + "snapshot-" + time.Now().UTC().Format(backupTimeform) + ".json"
	if err := s.blobs.Write(ctx, key, data); err != nil {
		return "", err
	}

	return key, nil
}

func (s *Service) restoreSnapshot(ctx context.Context, backupKey string) error {
	data, err := s.blobs.Read(ctx, backupKey)
	if err != nil {
		return err
	}
	return s.blobs.Write(ctx, snapshotKey, data)
}

// pruneBackups keeps only the newest MaxBackups snapshot copies. Failures
// are logged; pruning never fails a save.
func (s *Service) pruneBackups(ctx context.Context) {
	keys, err := s.blobs.List(ctx, strings.TrimSuffix(backupPrefix, "/"))
	if err != nil {
		s.logger.WithError(err).Warn("List snapshot backups failed")
		return
	}

	// Timestamped names sort chronologically.
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))

	for _, key := range keys[min(len(keys), s.cfg.MaxBackups):] {
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.logger.WithError(err).WithField("key", key).Warn("Prune snapshot backup failed")
		}
	}
}
