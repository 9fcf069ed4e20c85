package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/TheMichaelB/vaultsync/internal/crypto"
	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
)

// SQLiteStore implements Store over a local SQLite database.
//
// Item ids come from AUTOINCREMENT, so they increase monotonically and are
// never reused even after deletes: an item imported from the server is
// always minted a fresh id.
type SQLiteStore struct {
	db     *sql.DB
	crypto crypto.Provider
	logger *events.Logger

	mu         sync.Mutex
	onMutation []func()
	onDelete   []func(itemID int64, serverIDs []string)
}

// NewSQLiteStore opens (and initializes) the item database.
func NewSQLiteStore(dbPath string, provider crypto.Provider, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		crypto: provider,
		logger: logger.WithField("component", "local_store"),
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS vault_items (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        name TEXT NOT NULL,
        category TEXT NOT NULL,
        description TEXT NOT NULL DEFAULT '',
        username TEXT NOT NULL DEFAULT '',
        password TEXT NOT NULL DEFAULT '',
        url TEXT NOT NULL DEFAULT '',
        link TEXT NOT NULL DEFAULT '',
        notes TEXT NOT NULL DEFAULT '',
        attachments TEXT NOT NULL DEFAULT '[]',
        created_at TIMESTAMP NOT NULL,
        updated_at TIMESTAMP NOT NULL,
        order_index INTEGER NOT NULL DEFAULT 0,
        is_favorite INTEGER NOT NULL DEFAULT 0,
        sync_status TEXT NOT NULL DEFAULT 'pending'
    );

    CREATE INDEX IF NOT EXISTS idx_vault_items_category ON vault_items(category);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// OnMutation registers a post-write callback.
func (s *SQLiteStore) OnMutation(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMutation = append(s.onMutation, fn)
}

// OnDelete registers a cascading-delete hook.
func (s *SQLiteStore) OnDelete(fn func(itemID int64, serverIDs []string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDelete = append(s.onDelete, fn)
}

// notifyMutation fires registered callbacks without blocking the write.
func (s *SQLiteStore) notifyMutation() {
	s.mu.Lock()
	callbacks := make([]func(), len(s.onMutation))
	copy(callbacks, s.onMutation)
	s.mu.Unlock()

	for _, fn := range callbacks {
		go fn()
	}
}

// Add assigns timestamps, encrypts the sensitive fields when a password is
// active, persists the item and returns its new id.
func (s *SQLiteStore) Add(ctx context.Context, sess *models.Session, item *models.VaultItem) (int64, error) {
	if item.Name == "" {
		return 0, errors.New("item name is required")
	}
	if !models.ValidCategory(item.Category) {
		return 0, fmt.Errorf("invalid category: %s", item.Category)
	}

	now := time.Now().UTC()
	stored := *item
	// Imported items keep their original creation time so the dedupe key
	// stays stable across sync rounds.
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now
	if stored.SyncStatus == "" {
		stored.SyncStatus = models.SyncStatusPending
	}

	if sess.Active() {
		fields, err := s.crypto.EncryptFields(stored.FieldMap(), sess.Password(), models.SensitiveFields)
		if err != nil {
			return 0, fmt.Errorf("encrypt item fields: %w", err)
		}
		stored.ApplyFieldMap(fields)
	}

	attachments, err := marshalAttachments(stored.Attachments)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
        INSERT INTO vault_items
            (name, category, description, username, password, url, link, notes,
             attachments, created_at, updated_at, order_index, is_favorite, sync_status)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, stored.Name, string(stored.Category), stored.Description, stored.Username,
		stored.Password, stored.URL, stored.Link, stored.Notes, attachments,
		stored.CreatedAt, stored.UpdatedAt, stored.OrderIndex,
		boolToInt(stored.IsFavorite), string(stored.SyncStatus))
	if err != nil {
		return 0, fmt.Errorf("insert item: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("item id: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"id":       id,
		"category": stored.Category,
	}).Debug("Added item")

	s.notifyMutation()
	return id, nil
}

// Update applies a partial update, encrypting any sensitive fields present.
func (s *SQLiteStore) Update(ctx context.Context, sess *models.Session, id int64, update ItemUpdate) error {
	sets := []string{"updated_at = ?"}
	args := []interface{}{time.Now().UTC()}

	sensitive := map[string]*string{
		"description": update.Description,
		"username":    update.Username,
		"password":    update.Password,
		"url":         update.URL,
		"link":        update.Link,
	}

	fields := make(map[string]string)
	for name, value := range sensitive {
		if value != nil {
			fields[name] = *value
		}
	}

	if len(fields) > 0 && sess.Active() {
		encrypted, err := s.crypto.EncryptFields(fields, sess.Password(), models.SensitiveFields)
		if err != nil {
			return fmt.Errorf("encrypt update fields: %w", err)
		}
		fields = encrypted
	}

	for name := range sensitive {
		if value, ok := fields[name]; ok {
			sets = append(sets, name+" = ?")
			args = append(args, value)
		}
	}

	if update.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *update.Name)
	}
	if update.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *update.Notes)
	}
	if update.Attachments != nil {
		data, err := marshalAttachments(*update.Attachments)
		if err != nil {
			return err
		}
		sets = append(sets, "attachments = ?")
		args = append(args, data)
	}
	if update.OrderIndex != nil {
		sets = append(sets, "order_index = ?")
		args = append(args, *update.OrderIndex)
	}
	if update.IsFavorite != nil {
		sets = append(sets, "is_favorite = ?")
		args = append(args, boolToInt(*update.IsFavorite))
	}
	if update.SyncStatus != nil {
		sets = append(sets, "sync_status = ?")
		args = append(args, string(*update.SyncStatus))
	}

	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE vault_items SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}

	s.logger.WithField("id", id).Debug("Updated item")
	s.notifyMutation()
	return nil
}

// Delete reads the item first to discover server file references, removes
// it locally, then hands those references to the cascading-delete hook.
// The remote outcome never affects the local delete.
func (s *SQLiteStore) Delete(ctx context.Context, sess *models.Session, id int64) error {
	item, err := s.getRaw(ctx, id)
	if err != nil {
		return err
	}

	var serverIDs []string
	for _, att := range item.Attachments {
		if att.ServerID != "" {
			serverIDs = append(serverIDs, att.ServerID)
		}
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM vault_items WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete item: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"id":           id,
		"server_files": len(serverIDs),
	}).Debug("Deleted item")

	s.mu.Lock()
	hooks := make([]func(int64, []string), len(s.onDelete))
	copy(hooks, s.onDelete)
	s.mu.Unlock()

	for _, fn := range hooks {
		go fn(id, serverIDs)
	}

	s.notifyMutation()
	return nil
}

// GetAll runs dedupe first, then returns every item decrypted and ordered
// by the explicit user ordering.
func (s *SQLiteStore) GetAll(ctx context.Context, sess *models.Session) ([]models.VaultItem, error) {
	if _, err := s.Dedupe(ctx); err != nil {
		return nil, err
	}

	return s.query(ctx, sess, "ORDER BY order_index, id")
}

// GetByID returns one decrypted item.
func (s *SQLiteStore) GetByID(ctx context.Context, sess *models.Session, id int64) (*models.VaultItem, error) {
	item, err := s.getRaw(ctx, id)
	if err != nil {
		return nil, err
	}

	s.decryptItem(sess, item)
	return item, nil
}

// GetByCategory returns decrypted items of one category.
func (s *SQLiteStore) GetByCategory(ctx context.Context, sess *models.Session, category models.Category) ([]models.VaultItem, error) {
	return s.query(ctx, sess, "WHERE category = ? ORDER BY order_index, id", string(category))
}

// Search matches the query against name and the decrypted sensitive
// fields, case-insensitively.
func (s *SQLiteStore) Search(ctx context.Context, sess *models.Session, query string) ([]models.VaultItem, error) {
	items, err := s.GetAll(ctx, sess)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var out []models.VaultItem
	for _, it := range items {
		if itemMatches(&it, q) {
			out = append(out, it)
		}
	}

	return out, nil
}

func itemMatches(it *models.VaultItem, q string) bool {
	for _, candidate := range []string{it.Name, it.Description, it.Username, it.URL, it.Link, it.Notes} {
		if strings.Contains(strings.ToLower(candidate), q) {
			return true
		}
	}
	return false
}

// Dedupe removes all but the first occurrence of items sharing the
// composite key (name, category, created_at). Idempotent: a second run on
// an already deduped set removes nothing.
func (s *SQLiteStore) Dedupe(ctx context.Context) (DedupeResult, error) {
	res, err := s.db.ExecContext(ctx, `
        DELETE FROM vault_items
        WHERE id NOT IN (
            SELECT MIN(id) FROM vault_items
            GROUP BY name, category, created_at
        )
    `)
	if err != nil {
		return DedupeResult{}, fmt.Errorf("dedupe items: %w", err)
	}

	removed, _ := res.RowsAffected()

	remaining, err := s.Count(ctx)
	if err != nil {
		return DedupeResult{}, err
	}

	if removed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"removed":   removed,
			"remaining": remaining,
		}).Info("Removed duplicate items")
	}

	return DedupeResult{Removed: int(removed), Remaining: remaining}, nil
}

// Clear removes every item. Ids are not reset; the AUTOINCREMENT sequence
// keeps future ids unique across a snapshot replacement.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM vault_items"); err != nil {
		return fmt.Errorf("clear items: %w", err)
	}
	return nil
}

// MarkSyncStatus stamps every record with the given status without
// touching timestamps or firing mutation callbacks.
func (s *SQLiteStore) MarkSyncStatus(ctx context.Context, status models.SyncStatus) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE vault_items SET sync_status = ?", string(status)); err != nil {
		return fmt.Errorf("mark sync status: %w", err)
	}
	return nil
}

// Count returns the number of stored items.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM vault_items").Scan(&n); err != nil {
		return 0, fmt.Errorf("count items: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Internal helpers

const itemColumns = `id, name, category, description, username, password, url, link,
    notes, attachments, created_at, updated_at, order_index, is_favorite, sync_status`

func (s *SQLiteStore) query(ctx context.Context, sess *models.Session, clause string, args ...interface{}) ([]models.VaultItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+itemColumns+" FROM vault_items "+clause, args...)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var items []models.VaultItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		s.decryptItem(sess, item)
		items = append(items, *item)
	}

	return items, rows.Err()
}

func (s *SQLiteStore) getRaw(ctx context.Context, id int64) (*models.VaultItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+itemColumns+" FROM vault_items WHERE id = ?", id)

	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return item, nil
}

// decryptItem decrypts the sensitive fields in place. Failures degrade:
// the raw envelope stays in the field, the field name lands in
// EncryptedFields, and a warning is logged. With no active password the
// record passes through untouched.
func (s *SQLiteStore) decryptItem(sess *models.Session, item *models.VaultItem) {
	if !sess.Active() {
		return
	}

	fields, stillEncrypted := s.crypto.DecryptFields(item.FieldMap(), sess.Password(), models.SensitiveFields)
	item.ApplyFieldMap(fields)
	item.EncryptedFields = stillEncrypted

	if len(stillEncrypted) > 0 {
		s.logger.WithFields(map[string]interface{}{
			"id":     item.ID,
			"fields": strings.Join(stillEncrypted, ","),
		}).Warn("Some item fields could not be decrypted")
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanItem(row rowScanner) (*models.VaultItem, error) {
	var (
		item        models.VaultItem
		category    string
		attachments string
		favorite    int
		syncStatus  string
	)

	err := row.Scan(&item.ID, &item.Name, &category, &item.Description,
		&item.Username, &item.Password, &item.URL, &item.Link, &item.Notes,
		&attachments, &item.CreatedAt, &item.UpdatedAt, &item.OrderIndex,
		&favorite, &syncStatus)
	if err != nil {
		return nil, err
	}

	item.Category = models.Category(category)
	item.IsFavorite = favorite != 0
	item.SyncStatus = models.SyncStatus(syncStatus)

	if attachments != "" && attachments != "[]" {
		if err := json.Unmarshal([]byte(attachments), &item.Attachments); err != nil {
			return nil, fmt.Errorf("decode attachments: %w", err)
		}
	}

	return &item, nil
}

func marshalAttachments(attachments []models.FileAttachment) (string, error) {
	if len(attachments) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(attachments)
	if err != nil {
		return "", fmt.Errorf("encode attachments: %w", err)
	}
	return string(data), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
