package models

import "time"

// SyncAction describes what an AutoSync run did.
type SyncAction string

const (
	// SyncActionNone means the remote was unavailable and local data was
	// kept as-is. That is a success, not an error: the vault stays usable
	// offline.
	SyncActionNone SyncAction = "none"

	// SyncActionLoaded means the full server snapshot replaced local data.
	SyncActionLoaded SyncAction = "loaded"
)

// SyncResult is the outcome of a sync or push operation. Remote failures
// are reported through this object instead of being raised, except for the
// explicit missing-credentials case.
type SyncResult struct {
	Success bool       `json:"success"`
	Action  SyncAction `json:"action,omitempty"`
	Count   int        `json:"count"`
	Error   string     `json:"error,omitempty"`
}

// SaveReceipt is returned by a snapshot save.
type SaveReceipt struct {
	ItemCount int       `json:"item_count"`
	SavedAt   time.Time `json:"saved_at"`
	Verified  bool      `json:"verified"`
}

// HealthStatus is the server health probe response.
type HealthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeEvent is pushed over the notification feed after server mutations.
type ChangeEvent struct {
	Event     string    `json:"event"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventSnapshotUpdated = "snapshot-updated"
	EventFilesUpdated    = "files-updated"
)
