package models

import (
	"time"
)

// Category classifies a vault item.
type Category string

const (
	CategoryPassword Category = "password-entry"
	CategoryNote     Category = "note"
	CategoryLink     Category = "link"
	CategoryFile     Category = "file"
)

// ValidCategory reports whether c is one of the closed category set.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryPassword, CategoryNote, CategoryLink, CategoryFile:
		return true
	}
	return false
}

// SyncStatus tracks whether an item has been propagated to the server.
type SyncStatus string

const (
	SyncStatusSynced    SyncStatus = "synced"
	SyncStatusPending   SyncStatus = "pending"
	SyncStatusError     SyncStatus = "error"
	SyncStatusLocalOnly SyncStatus = "local-only"
)

// SensitiveFields lists the item fields that are individually encrypted.
// Everything else (name, category, timestamps, ordering, favorite flag)
// stays in clear so the store can query and sort without a password.
var SensitiveFields = []string{"password", "username", "description", "url", "link"}

// VaultItem is one stored secret, note, link or file reference.
type VaultItem struct {
	ID       int64    `json:"id"`
	Name     string   `json:"name"`
	Category Category `json:"category"`

	// Sensitive fields; each is an envelope string at rest.
	Description string `json:"description,omitempty"`
	Username    string `json:"username,omitempty"`
	Password    string `json:"password,omitempty"`
	URL         string `json:"url,omitempty"`
	Link        string `json:"link,omitempty"`

	Notes string `json:"notes,omitempty"`

	Attachments []FileAttachment `json:"attachments,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	OrderIndex int        `json:"order_index"`
	IsFavorite bool       `json:"is_favorite"`
	SyncStatus SyncStatus `json:"sync_status"`

	// EncryptedFields names the sensitive fields whose envelopes could not
	// be decrypted on read. The raw envelope stays in the field value so
	// nothing is lost; callers can surface a warning per field.
	EncryptedFields []string `json:"encrypted_fields,omitempty"`
}

// FieldMap returns the sensitive field values that are present.
func (it *VaultItem) FieldMap() map[string]string {
	m := make(map[string]string, len(SensitiveFields))
	if it.Password != "" {
		m["password"] = it.Password
	}
	if it.Username != "" {
		m["username"] = it.Username
	}
	if it.Description != "" {
		m["description"] = it.Description
	}
	if it.URL != "" {
		m["url"] = it.URL
	}
	if it.Link != "" {
		m["link"] = it.Link
	}
	return m
}

// ApplyFieldMap writes sensitive field values back onto the item.
func (it *VaultItem) ApplyFieldMap(m map[string]string) {
	if v, ok := m["password"]; ok {
		it.Password = v
	}
	if v, ok := m["username"]; ok {
		it.Username = v
	}
	if v, ok := m["description"]; ok {
		it.Description = v
	}
	if v, ok := m["url"]; ok {
		it.URL = v
	}
	if v, ok := m["link"]; ok {
		it.Link = v
	}
}

// DedupeKey is the composite identity used by duplicate removal:
// two items with the same name, category and creation timestamp are
// considered the same logical item.
func (it *VaultItem) DedupeKey() string {
	return it.Name + "|" + string(it.Category) + "|" + it.CreatedAt.UTC().Format(time.RFC3339Nano)
}
