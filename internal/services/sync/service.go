// Package sync coordinates the local store with the remote gateway.
//
// The coordinator owns the ordering of sync operations: a pull replaces
// the local collection wholesale (the server snapshot is authoritative),
// and local mutations schedule a debounced full-snapshot push. The store
// and the gateway never talk to each other directly.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/store"
	"github.com/TheMichaelB/vaultsync/internal/transport"
)

// Config holds coordinator tuning.
type Config struct {
	// PushDebounce is how long the push worker waits after a mutation
	// before pushing, coalescing bursts into a single upload.
	PushDebounce time.Duration
}

// Coordinator drives pull and push between the store and the gateway.
type Coordinator struct {
	store   store.Store
	gateway transport.Gateway
	pusher  *pusher
	logger  *events.Logger
}

// NewCoordinator creates a coordinator and registers the store hooks
// that schedule pushes and cascade deletes.
func NewCoordinator(
	st store.Store,
	gateway transport.Gateway,
	cfg *Config,
	logger *events.Logger,
) *Coordinator {
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.PushDebounce <= 0 {
		cfg.PushDebounce = 250 * time.Millisecond
	}

	c := &Coordinator{
		store:   st,
		gateway: gateway,
		logger:  logger.WithField("service", "sync"),
	}
	c.pusher = newPusher(st, gateway, cfg.PushDebounce, c.logger)

	st.OnMutation(c.pusher.Schedule)
	st.OnDelete(c.cascadeDelete)

	return c
}

// Bind attaches the session used by background pushes. Pushes scheduled
// while no session is bound are skipped.
func (c *Coordinator) Bind(sess *models.Session) {
	c.pusher.Bind(sess)
}

// SchedulePush requests a debounced snapshot push. Multiple calls inside
// the debounce window collapse into one upload.
func (c *Coordinator) SchedulePush() {
	c.pusher.Schedule()
}

// AutoSync pulls the server snapshot and replaces the local collection
// with it. Server ids are dropped so the store mints fresh ones, and the
// result is deduped before counting.
//
// Without credentials the sync fails outright. An unreachable server is
// not a failure: the local collection stands and the result reports that
// nothing was loaded.
func (c *Coordinator) AutoSync(ctx context.Context, sess *models.Session) *models.SyncResult {
	if !sess.Active() {
		return &models.SyncResult{Success: false, Error: "no credentials"}
	}

	if !c.gateway.Available(ctx) {
		c.logger.Debug("server unavailable, keeping local data")
		n, err := c.store.Count(ctx)
		if err != nil {
			c.logger.WithError(err).Warn("count local items")
		}
		return &models.SyncResult{Success: true, Action: models.SyncActionNone, Count: n}
	}

	items, err := c.gateway.LoadItems(ctx, sess)
	if err != nil {
		c.logger.WithError(err).Error("load server snapshot")
		return &models.SyncResult{Success: false, Error: fmt.Sprintf("load items: %v", err)}
	}

	if err := c.store.Clear(ctx); err != nil {
		return &models.SyncResult{Success: false, Error: fmt.Sprintf("clear local items: %v", err)}
	}

	for i := range items {
		item := items[i]
		item.ID = 0
		item.SyncStatus = models.SyncStatusSynced
		if _, err := c.store.Add(ctx, sess, &item); err != nil {
			c.logger.WithError(err).WithField("name", item.Name).Warn("import server item")
		}
	}

	if _, err := c.store.Dedupe(ctx); err != nil {
		c.logger.WithError(err).Warn("dedupe after sync")
	}

	n, err := c.store.Count(ctx)
	if err != nil {
		return &models.SyncResult{Success: false, Error: fmt.Sprintf("count items: %v", err)}
	}

	c.logger.WithField("count", n).Info("loaded server snapshot")
	return &models.SyncResult{Success: true, Action: models.SyncActionLoaded, Count: n}
}

// PushNow pushes the full decrypted collection immediately, bypassing
// the debounce. A failed push marks every record with an error status
// and leaves the data untouched.
func (c *Coordinator) PushNow(ctx context.Context, sess *models.Session) error {
	return c.pusher.push(ctx, sess)
}

// UploadAttachment pushes one locally stored attachment to the server
// and promotes it to the hybrid tier. The attachment keeps its local
// bytes; only the server id, URL and sync timestamp are added.
func (c *Coordinator) UploadAttachment(ctx context.Context, sess *models.Session, itemID int64, index int) (*models.FileAttachment, error) {
	if !sess.Active() {
		return nil, models.ErrNoCredentials
	}
	if !c.gateway.Available(ctx) {
		return nil, fmt.Errorf("upload attachment: %w", models.ErrUnavailable)
	}

	item, err := c.store.GetByID(ctx, sess, itemID)
	if err != nil {
		return nil, fmt.Errorf("load item %d: %w", itemID, err)
	}
	if index < 0 || index >= len(item.Attachments) {
		return nil, fmt.Errorf("item %d has no attachment at index %d: %w", itemID, index, models.ErrNotFound)
	}

	att := item.Attachments[index]
	if len(att.Data) == 0 {
		return nil, fmt.Errorf("attachment %q has no local data", att.Name)
	}

	res, err := c.gateway.UploadFile(ctx, sess, transport.FileUpload{
		Name:     att.Name,
		MimeType: att.MimeType,
		Category: string(item.Category),
		Data:     att.Data,
	})
	if err != nil {
		c.markItemStatus(ctx, sess, itemID, models.SyncStatusError)
		return nil, fmt.Errorf("upload attachment %q: %w", att.Name, err)
	}

	att.ServerID = res.FileID
	att.StorageType = models.StorageHybrid
	att.ServerURL = "/files/" + res.FileID
	att.LastSynced = time.Now().UTC()

	attachments := make([]models.FileAttachment, len(item.Attachments))
	copy(attachments, item.Attachments)
	attachments[index] = att

	status := models.SyncStatusSynced
	if err := c.store.Update(ctx, sess, itemID, store.ItemUpdate{
		Attachments: &attachments,
		SyncStatus:  &status,
	}); err != nil {
		return nil, fmt.Errorf("record attachment upload: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"item":    itemID,
		"file_id": res.FileID,
	}).Info("attachment uploaded")
	return &att, nil
}

// DownloadAttachment fetches a server-side file and returns it as a
// server-tier attachment. The store is not touched; the caller decides
// where the bytes go.
func (c *Coordinator) DownloadAttachment(ctx context.Context, sess *models.Session, serverID string) (*models.FileAttachment, error) {
	if !sess.Active() {
		return nil, models.ErrNoCredentials
	}

	meta, err := c.gateway.FileMetadata(ctx, sess, serverID)
	if err != nil {
		return nil, fmt.Errorf("file metadata %s: %w", serverID, err)
	}

	data, err := c.gateway.DownloadFile(ctx, sess, serverID)
	if err != nil {
		return nil, fmt.Errorf("download file %s: %w", serverID, err)
	}

	return &models.FileAttachment{
		Name:        meta.Name,
		MimeType:    meta.MimeType,
		Size:        int64(len(data)),
		Data:        data,
		ServerID:    serverID,
		StorageType: models.StorageServer,
		ServerURL:   "/files/" + serverID,
		LastSynced:  time.Now().UTC(),
	}, nil
}

// Close stops the background push worker.
func (c *Coordinator) Close() {
	c.pusher.Close()
}

// cascadeDelete mirrors a local delete to the server: the item and its
// uploaded files are removed best-effort. Failures are logged and
// swallowed; the local delete already happened.
func (c *Coordinator) cascadeDelete(itemID int64, serverIDs []string) {
	sess := c.pusher.session()
	if !sess.Active() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.gateway.DeleteItem(ctx, sess, itemID); err != nil {
		c.logger.WithError(err).WithField("item", itemID).Debug("remote item delete failed")
	}
	for _, id := range serverIDs {
		if err := c.gateway.DeleteFile(ctx, sess, id); err != nil {
			c.logger.WithError(err).WithField("file_id", id).Debug("remote file delete failed")
		}
	}
}

func (c *Coordinator) markItemStatus(ctx context.Context, sess *models.Session, itemID int64, status models.SyncStatus) {
	if err := c.store.Update(ctx, sess, itemID, store.ItemUpdate{SyncStatus: &status}); err != nil {
		c.logger.WithError(err).WithField("item", itemID).Warn("update sync status")
	}
}
