package sync_test

import (
	"context"
	"errors"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultsync/internal/crypto"
	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/services/sync"
	"github.com/TheMichaelB/vaultsync/internal/store"
	"github.com/TheMichaelB/vaultsync/internal/transport"
)

// fakeGateway records calls and serves a canned snapshot.
type fakeGateway struct {
	mu gosync.Mutex

	available bool
	snapshot  []models.VaultItem
	saveErr   error
	uploadErr error

	saved        [][]models.VaultItem
	deletedItems []int64
	deletedFiles []string
}

func (f *fakeGateway) Health(ctx context.Context) (*models.HealthStatus, error) {
	return &models.HealthStatus{Status: "ok"}, nil
}

func (f *fakeGateway) Available(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeGateway) UploadFile(ctx context.Context, sess *models.Session, upload transport.FileUpload) (*models.UploadResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	return &models.UploadResult{
		FileID:   "srv-file-1",
		Name:     upload.Name,
		Size:     int64(len(upload.Data)),
		MimeType: upload.MimeType,
	}, nil
}

func (f *fakeGateway) DownloadFile(ctx context.Context, sess *models.Session, fileID string) ([]byte, error) {
	return []byte("remote bytes"), nil
}

func (f *fakeGateway) ListFiles(ctx context.Context, sess *models.Session) (*transport.FileListing, error) {
	return &transport.FileListing{}, nil
}

func (f *fakeGateway) DeleteFile(ctx context.Context, sess *models.Session, fileID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedFiles = append(f.deletedFiles, fileID)
	return nil
}

func (f *fakeGateway) FileMetadata(ctx context.Context, sess *models.Session, fileID string) (*models.FileMetadata, error) {
	return &models.FileMetadata{
		FileID:   fileID,
		Name:     "remote.pdf",
		MimeType: "application/pdf",
		Size:     12,
	}, nil
}

func (f *fakeGateway) SaveItems(ctx context.Context, sess *models.Session, items []models.VaultItem) (*models.SaveReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	saved := make([]models.VaultItem, len(items))
	copy(saved, items)
	f.saved = append(f.saved, saved)
	return &models.SaveReceipt{ItemCount: len(items), SavedAt: time.Now().UTC(), Verified: true}, nil
}

func (f *fakeGateway) LoadItems(ctx context.Context, sess *models.Session) ([]models.VaultItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshot, nil
}

func (f *fakeGateway) UpdateItem(ctx context.Context, sess *models.Session, id int64, item models.VaultItem) error {
	return nil
}

func (f *fakeGateway) DeleteItem(ctx context.Context, sess *models.Session, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedItems = append(f.deletedItems, id)
	return nil
}

func (f *fakeGateway) Notifications(ctx context.Context) (<-chan models.ChangeEvent, error) {
	ch := make(chan models.ChangeEvent)
	close(ch)
	return ch, nil
}

func (f *fakeGateway) Close() error { return nil }

func (f *fakeGateway) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

func (f *fakeGateway) lastSaved() []models.VaultItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.saved) == 0 {
		return nil
	}
	return f.saved[len(f.saved)-1]
}

func newTestCoordinator(t *testing.T, gw *fakeGateway) (*sync.Coordinator, store.Store) {
	t.Helper()

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "vault.db"), crypto.NewProvider(), events.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	c := sync.NewCoordinator(st, gw, &sync.Config{PushDebounce: 50 * time.Millisecond}, events.Discard())
	t.Cleanup(c.Close)
	return c, st
}

func TestAutoSync_NoCredentials(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeGateway{available: true})

	for _, sess := range []*models.Session{nil, models.NewSession("")} {
		result := c.AutoSync(context.Background(), sess)
		assert.False(t, result.Success)
		assert.Equal(t, "no credentials", result.Error)
	}
}

func TestAutoSync_ServerUnavailableKeepsLocal(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t, &fakeGateway{available: false})
	sess := models.NewSession("pw")

	_, err := st.Add(ctx, sess, &models.VaultItem{Name: "local", Category: models.CategoryNote})
	require.NoError(t, err)

	result := c.AutoSync(ctx, sess)
	assert.True(t, result.Success)
	assert.Equal(t, models.SyncActionNone, result.Action)
	assert.Equal(t, 1, result.Count)

	items, err := st.GetAll(ctx, sess)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestAutoSync_EmptyServerSnapshot(t *testing.T) {
	ctx := context.Background()
	c, st := newTestCoordinator(t, &fakeGateway{available: true})
	sess := models.NewSession("pw")

	// Pull is authoritative: an empty server snapshot wipes local data.
	_, err := st.Add(ctx, sess, &models.VaultItem{Name: "doomed", Category: models.CategoryNote})
	require.NoError(t, err)

	result := c.AutoSync(ctx, sess)
	assert.True(t, result.Success)
	assert.Equal(t, models.SyncActionLoaded, result.Action)
	assert.Equal(t, 0, result.Count)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAutoSync_ReplacesLocalWithServerSnapshot(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	gw := &fakeGateway{
		available: true,
		snapshot: []models.VaultItem{
			{ID: 900, Name: "server-a", Category: models.CategoryPassword, Password: "s3cret", CreatedAt: created},
			{ID: 901, Name: "server-b", Category: models.CategoryNote, CreatedAt: created},
			// Duplicate of server-a; dedupe keeps one.
			{ID: 902, Name: "server-a", Category: models.CategoryPassword, Password: "s3cret", CreatedAt: created},
		},
	}
	c, st := newTestCoordinator(t, gw)
	sess := models.NewSession("pw")

	_, err := st.Add(ctx, sess, &models.VaultItem{Name: "stale-local", Category: models.CategoryNote})
	require.NoError(t, err)

	result := c.AutoSync(ctx, sess)
	require.True(t, result.Success)
	assert.Equal(t, models.SyncActionLoaded, result.Action)
	assert.Equal(t, 2, result.Count)

	items, err := st.GetAll(ctx, sess)
	require.NoError(t, err)
	require.Len(t, items, 2)

	names := map[string]models.VaultItem{}
	for _, it := range items {
		names[it.Name] = it
		// Server ids were dropped; the store minted fresh ones.
		assert.NotContains(t, []int64{900, 901, 902}, it.ID)
		assert.Equal(t, models.SyncStatusSynced, it.SyncStatus)
	}
	assert.Contains(t, names, "server-a")
	assert.Contains(t, names, "server-b")
	assert.Equal(t, "s3cret", names["server-a"].Password)
	assert.NotContains(t, names, "stale-local")
}

func TestPushNow_SendsFullCollection(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{available: true}
	c, st := newTestCoordinator(t, gw)
	sess := models.NewSession("pw")
	c.Bind(sess)

	for _, name := range []string{"a", "b", "c"} {
		_, err := st.Add(ctx, sess, &models.VaultItem{Name: name, Category: models.CategoryNote})
		require.NoError(t, err)
	}

	require.NoError(t, c.PushNow(ctx, sess))

	pushed := gw.lastSaved()
	require.Len(t, pushed, 3)
	// The pushed collection is decrypted; the server re-encrypts at rest.
	for _, it := range pushed {
		assert.False(t, crypto.IsEnvelope(it.Password))
	}

	items, err := st.GetAll(ctx, sess)
	require.NoError(t, err)
	for _, it := range items {
		assert.Equal(t, models.SyncStatusSynced, it.SyncStatus)
	}
}

func TestPushNow_FailureMarksErrorStatus(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{available: true, saveErr: errors.New("server exploded")}
	c, st := newTestCoordinator(t, gw)
	sess := models.NewSession("pw")

	_, err := st.Add(ctx, sess, &models.VaultItem{Name: "a", Category: models.CategoryNote})
	require.NoError(t, err)

	err = c.PushNow(ctx, sess)
	require.Error(t, err)

	items, err := st.GetAll(ctx, sess)
	require.NoError(t, err)
	require.Len(t, items, 1)
	// Data survives; only the status records the failure.
	assert.Equal(t, models.SyncStatusError, items[0].SyncStatus)
	assert.Equal(t, "a", items[0].Name)
}

func TestPushNow_RequiresCredentials(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeGateway{available: true})
	err := c.PushNow(context.Background(), nil)
	assert.ErrorIs(t, err, models.ErrNoCredentials)
}

func TestBackgroundPush_DebouncesMutations(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{available: true}
	c, st := newTestCoordinator(t, gw)
	sess := models.NewSession("pw")
	c.Bind(sess)

	for _, name := range []string{"a", "b", "c"} {
		_, err := st.Add(ctx, sess, &models.VaultItem{Name: name, Category: models.CategoryNote})
		require.NoError(t, err)
	}

	// The burst of adds collapses into pushes that end with the full
	// three-item collection.
	require.Eventually(t, func() bool {
		return len(gw.lastSaved()) == 3
	}, 5*time.Second, 20*time.Millisecond)
	assert.LessOrEqual(t, gw.saveCount(), 3)
}

func TestBackgroundPush_SkippedWithoutSession(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{available: true}
	c, st := newTestCoordinator(t, gw)
	_ = c

	_, err := st.Add(ctx, nil, &models.VaultItem{Name: "a", Category: models.CategoryNote})
	require.NoError(t, err)

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, 0, gw.saveCount())
}

func TestUploadAttachment_PromotesToHybrid(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{available: true}
	c, st := newTestCoordinator(t, gw)
	sess := models.NewSession("pw")
	c.Bind(sess)

	id, err := st.Add(ctx, sess, &models.VaultItem{
		Name:     "with file",
		Category: models.CategoryFile,
		Attachments: []models.FileAttachment{{
			Name:        "scan.pdf",
			MimeType:    "application/pdf",
			Size:        3,
			Data:        []byte{1, 2, 3},
			StorageType: models.StorageLocal,
		}},
	})
	require.NoError(t, err)

	att, err := c.UploadAttachment(ctx, sess, id, 0)
	require.NoError(t, err)
	assert.Equal(t, "srv-file-1", att.ServerID)
	assert.Equal(t, models.StorageHybrid, att.StorageType)
	assert.False(t, att.LastSynced.IsZero())
	// Local bytes are kept.
	assert.Equal(t, []byte{1, 2, 3}, att.Data)

	item, err := st.GetByID(ctx, sess, id)
	require.NoError(t, err)
	require.Len(t, item.Attachments, 1)
	assert.Equal(t, models.StorageHybrid, item.Attachments[0].StorageType)
	assert.Equal(t, models.SyncStatusSynced, item.SyncStatus)
}

func TestUploadAttachment_FailureMarksError(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{available: true, uploadErr: errors.New("disk full")}
	c, st := newTestCoordinator(t, gw)
	sess := models.NewSession("pw")

	id, err := st.Add(ctx, sess, &models.VaultItem{
		Name:     "with file",
		Category: models.CategoryFile,
		Attachments: []models.FileAttachment{{
			Name: "scan.pdf", Data: []byte{1}, StorageType: models.StorageLocal,
		}},
	})
	require.NoError(t, err)

	_, err = c.UploadAttachment(ctx, sess, id, 0)
	require.Error(t, err)

	item, err := st.GetByID(ctx, sess, id)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, item.SyncStatus)
	// The attachment stays local.
	assert.Equal(t, models.StorageLocal, item.Attachments[0].StorageType)
}

func TestUploadAttachment_Validation(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{available: true}
	c, st := newTestCoordinator(t, gw)
	sess := models.NewSession("pw")

	_, err := c.UploadAttachment(ctx, nil, 1, 0)
	assert.ErrorIs(t, err, models.ErrNoCredentials)

	_, err = c.UploadAttachment(ctx, sess, 999, 0)
	assert.ErrorIs(t, err, models.ErrNotFound)

	id, err := st.Add(ctx, sess, &models.VaultItem{Name: "bare", Category: models.CategoryNote})
	require.NoError(t, err)
	_, err = c.UploadAttachment(ctx, sess, id, 0)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestUploadAttachment_ServerUnavailable(t *testing.T) {
	c, _ := newTestCoordinator(t, &fakeGateway{available: false})

	_, err := c.UploadAttachment(context.Background(), models.NewSession("pw"), 1, 0)
	assert.ErrorIs(t, err, models.ErrUnavailable)
}

func TestDownloadAttachment(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCoordinator(t, &fakeGateway{available: true})
	sess := models.NewSession("pw")

	att, err := c.DownloadAttachment(ctx, sess, "srv-9")
	require.NoError(t, err)
	assert.Equal(t, "remote.pdf", att.Name)
	assert.Equal(t, []byte("remote bytes"), att.Data)
	assert.Equal(t, models.StorageServer, att.StorageType)
	assert.Equal(t, "srv-9", att.ServerID)
}

func TestDeleteCascadesToServer(t *testing.T) {
	ctx := context.Background()
	gw := &fakeGateway{available: true}
	c, st := newTestCoordinator(t, gw)
	sess := models.NewSession("pw")
	c.Bind(sess)

	id, err := st.Add(ctx, sess, &models.VaultItem{
		Name:     "synced item",
		Category: models.CategoryFile,
		Attachments: []models.FileAttachment{{
			Name: "a.pdf", ServerID: "srv-a", StorageType: models.StorageHybrid,
		}},
	})
	require.NoError(t, err)

	require.NoError(t, st.Delete(ctx, sess, id))

	require.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return len(gw.deletedItems) == 1 && len(gw.deletedFiles) == 1
	}, 5*time.Second, 20*time.Millisecond)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Equal(t, []int64{id}, gw.deletedItems)
	assert.Equal(t, []string{"srv-a"}, gw.deletedFiles)
}
