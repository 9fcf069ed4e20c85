package transport

import (
	"context"

	"github.com/TheMichaelB/vaultsync/internal/models"
)

// FileUpload carries one attachment into the upload endpoint.
type FileUpload struct {
	Name        string
	MimeType    string
	Description string
	Category    string
	Data        []byte
}

// FileListing is the /files response.
type FileListing struct {
	Files      []models.FileMetadata `json:"files"`
	TotalCount int                   `json:"total_count"`
	Errors     []string              `json:"errors,omitempty"`
}

// Gateway is the typed HTTP facade over the server's file and vault-item
// endpoints. It holds no business logic: request/response mapping and
// availability probing only. Every call carries the session's master
// password as the authentication header.
type Gateway interface {
	Health(ctx context.Context) (*models.HealthStatus, error)

	// Available wraps Health and converts any failure (network error,
	// non-2xx, timeout) into false rather than propagating it.
	Available(ctx context.Context) bool

	UploadFile(ctx context.Context, sess *models.Session, upload FileUpload) (*models.UploadResult, error)
	DownloadFile(ctx context.Context, sess *models.Session, fileID string) ([]byte, error)
	ListFiles(ctx context.Context, sess *models.Session) (*FileListing, error)
	DeleteFile(ctx context.Context, sess *models.Session, fileID string) error
	FileMetadata(ctx context.Context, sess *models.Session, fileID string) (*models.FileMetadata, error)

	// SaveItems performs a full overwrite of the server snapshot, never a
	// merge.
	SaveItems(ctx context.Context, sess *models.Session, items []models.VaultItem) (*models.SaveReceipt, error)
	LoadItems(ctx context.Context, sess *models.Session) ([]models.VaultItem, error)
	UpdateItem(ctx context.Context, sess *models.Session, id int64, item models.VaultItem) error
	DeleteItem(ctx context.Context, sess *models.Session, id int64) error

	// Notifications subscribes to the server's change feed. Best effort;
	// the channel closes when the connection drops or ctx is cancelled.
	Notifications(ctx context.Context) (<-chan models.ChangeEvent, error)

	Close() error
}
