package storage

import "context"

// BlobStore is the durable backing for server-side artifacts. Keys are
// slash-separated relative paths.
type BlobStore interface {
	// Write saves data under key, replacing any existing blob.
	Write(ctx context.Context, key string, data []byte) error

	// Read retrieves blob contents.
	Read(ctx context.Context, key string) ([]byte, error)

	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, key string) error

	// Exists checks if a blob is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys under a prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}
