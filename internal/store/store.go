package store

import (
	"context"

	"github.com/TheMichaelB/vaultsync/internal/models"
)

// ItemUpdate is a partial update; nil fields are left untouched.
type ItemUpdate struct {
	Name        *string
	Description *string
	Username    *string
	Password    *string
	URL         *string
	Link        *string
	Notes       *string
	Attachments *[]models.FileAttachment
	OrderIndex  *int
	IsFavorite  *bool
	SyncStatus  *models.SyncStatus
}

// DedupeResult reports what duplicate removal did.
type DedupeResult struct {
	Removed   int `json:"removed"`
	Remaining int `json:"remaining"`
}

// Store is the durable client-side collection of vault items.
//
// All read operations return decrypted items when the session carries a
// password; per-field decryption failures degrade gracefully (the raw
// envelope is kept and the field is listed in EncryptedFields) and are
// logged, never returned as errors. With a nil session, records pass
// through with their ciphertext intact.
type Store interface {
	Add(ctx context.Context, sess *models.Session, item *models.VaultItem) (int64, error)
	Update(ctx context.Context, sess *models.Session, id int64, update ItemUpdate) error
	Delete(ctx context.Context, sess *models.Session, id int64) error

	GetAll(ctx context.Context, sess *models.Session) ([]models.VaultItem, error)
	GetByID(ctx context.Context, sess *models.Session, id int64) (*models.VaultItem, error)
	GetByCategory(ctx context.Context, sess *models.Session, category models.Category) ([]models.VaultItem, error)
	Search(ctx context.Context, sess *models.Session, query string) ([]models.VaultItem, error)

	Dedupe(ctx context.Context) (DedupeResult, error)
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)

	// MarkSyncStatus stamps every record with the given status. It is
	// sync bookkeeping, not a user edit, so it does not fire mutation
	// callbacks.
	MarkSyncStatus(ctx context.Context, status models.SyncStatus) error

	// OnMutation registers a callback fired after every successful write.
	// The callback runs on its own goroutine and can never block or fail
	// the write.
	OnMutation(fn func())

	// OnDelete registers a best-effort hook invoked with the server file
	// ids of a deleted item, so the coordinator can cascade the delete
	// remotely. Failures are invisible to the local delete.
	OnDelete(fn func(itemID int64, serverIDs []string))

	Close() error
}
