package models

import "time"

// StorageType is the tier a file attachment lives in.
type StorageType string

const (
	// StorageLocal means raw bytes exist only on the client; upload pending.
	StorageLocal StorageType = "local"

	// StorageServer means bytes live on the server and are fetched on demand.
	StorageServer StorageType = "server"

	// StorageHybrid means bytes are cached locally and uploaded to the server.
	StorageHybrid StorageType = "hybrid"
)

// FileAttachment is one file bound to a vault item.
//
// Invariants: hybrid requires both Data and ServerID; server tier carries
// no local Data; local tier has no ServerID yet.
type FileAttachment struct {
	Name        string      `json:"name"`
	MimeType    string      `json:"mime_type"`
	Size        int64       `json:"size"`
	Data        []byte      `json:"data,omitempty"`
	ServerID    string      `json:"server_id,omitempty"`
	StorageType StorageType `json:"storage_type"`
	ServerURL   string      `json:"server_url,omitempty"`
	LastSynced  time.Time   `json:"last_synced,omitzero"`
}

// FileMetadata describes a server-stored file.
type FileMetadata struct {
	FileID      string    `json:"file_id"`
	Name        string    `json:"name"`
	MimeType    string    `json:"mime_type"`
	Size        int64     `json:"size"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Checksum    string    `json:"checksum"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// UploadResult is returned by a successful file upload.
type UploadResult struct {
	FileID   string `json:"file_id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}
