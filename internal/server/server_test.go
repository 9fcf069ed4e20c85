package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultsync/internal/crypto"
	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/server"
	"github.com/TheMichaelB/vaultsync/internal/storage"
	"github.com/TheMichaelB/vaultsync/internal/vaultfile"
)

const testMaxUpload = 1 << 20

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	blobs, err := storage.NewDiskStore(t.TempDir(), events.Discard())
	require.NoError(t, err)

	vault := vaultfile.NewService(blobs, crypto.NewProvider(), vaultfile.Config{
		MaxUploadSize: testMaxUpload,
		RetryDelay:    time.Millisecond,
	}, events.Discard())

	ts := httptest.NewServer(server.New(vault, testMaxUpload, events.Discard()).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path, password string, body io.Reader, contentType string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, ts.URL+path, body)
	require.NoError(t, err)
	if password != "" {
		req.Header.Set(server.PasswordHeader, password)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func multipartUpload(t *testing.T, name string, data []byte) (*bytes.Buffer, string) {
	t.Helper()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.WriteField("description", "test file"))
	require.NoError(t, w.Close())

	return &buf, w.FormDataContentType()
}

func TestServer_HealthNeedsNoAuth(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var status models.HealthStatus
	decodeBody(t, resp, &status)
	assert.Equal(t, "ok", status.Status)
	assert.False(t, status.Timestamp.IsZero())
}

func TestServer_MissingPasswordHeader(t *testing.T) {
	ts := newTestServer(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/files"},
		{http.MethodGet, "/vault-items"},
		{http.MethodPost, "/vault-items"},
		{http.MethodDelete, "/files/abc"},
	} {
		resp := doRequest(t, ts, tc.method, tc.path, "", nil, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "%s %s", tc.method, tc.path)

		var apiErr models.APIError
		decodeBody(t, resp, &apiErr)
		assert.Equal(t, models.ErrCodeCredentials, apiErr.Code)
	}
}

func TestServer_FileLifecycle(t *testing.T) {
	ts := newTestServer(t)
	content := []byte("the quick brown fox")

	body, contentType := multipartUpload(t, "doc.txt", content)
	resp := doRequest(t, ts, http.MethodPost, "/files/upload", "pw", body, contentType)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var upload struct {
		Success bool   `json:"success"`
		FileID  string `json:"fileId"`
		Size    int64  `json:"size"`
	}
	decodeBody(t, resp, &upload)
	assert.True(t, upload.Success)
	require.NotEmpty(t, upload.FileID)
	assert.Equal(t, int64(len(content)), upload.Size)

	// Metadata.
	resp = doRequest(t, ts, http.MethodGet, "/files/"+upload.FileID+"/metadata", "pw", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var meta models.FileMetadata
	decodeBody(t, resp, &meta)
	assert.Equal(t, "doc.txt", meta.Name)
	assert.Equal(t, "test file", meta.Description)

	// Download.
	resp = doRequest(t, ts, http.MethodGet, "/files/"+upload.FileID, "pw", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, content, got)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "doc.txt")

	// List.
	resp = doRequest(t, ts, http.MethodGet, "/files", "pw", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Files      []models.FileMetadata `json:"files"`
		TotalCount int                   `json:"totalCount"`
	}
	decodeBody(t, resp, &listing)
	assert.Equal(t, 1, listing.TotalCount)

	// Delete.
	resp = doRequest(t, ts, http.MethodDelete, "/files/"+upload.FileID, "pw", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, ts, http.MethodGet, "/files/"+upload.FileID, "pw", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestServer_WrongPasswordOnDownload(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartUpload(t, "doc.txt", []byte("secret"))
	resp := doRequest(t, ts, http.MethodPost, "/files/upload", "right", body, contentType)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var upload struct {
		FileID string `json:"fileId"`
	}
	decodeBody(t, resp, &upload)

	resp = doRequest(t, ts, http.MethodGet, "/files/"+upload.FileID, "wrong", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var apiErr models.APIError
	decodeBody(t, resp, &apiErr)
	assert.Equal(t, models.ErrCodeDecryption, apiErr.Code)
}

func TestServer_UploadTooLarge(t *testing.T) {
	ts := newTestServer(t)

	body, contentType := multipartUpload(t, "big.bin", make([]byte, testMaxUpload+1))
	resp := doRequest(t, ts, http.MethodPost, "/files/upload", "pw", body, contentType)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestServer_VaultItemsLifecycle(t *testing.T) {
	ts := newTestServer(t)

	items := []models.VaultItem{
		{ID: 1, Name: "first", Category: models.CategoryPassword},
		{ID: 2, Name: "second", Category: models.CategoryNote},
	}
	payload, err := json.Marshal(map[string]interface{}{"items": items})
	require.NoError(t, err)

	resp := doRequest(t, ts, http.MethodPost, "/vault-items", "pw", bytes.NewReader(payload), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved struct {
		Success   bool `json:"success"`
		ItemCount int  `json:"itemCount"`
		Verified  bool `json:"verified"`
	}
	decodeBody(t, resp, &saved)
	assert.True(t, saved.Success)
	assert.Equal(t, 2, saved.ItemCount)
	assert.True(t, saved.Verified)

	// Update one item.
	update, err := json.Marshal(map[string]interface{}{
		"item": models.VaultItem{Name: "renamed", Category: models.CategoryPassword},
	})
	require.NoError(t, err)
	resp = doRequest(t, ts, http.MethodPut, "/vault-items/1", "pw", bytes.NewReader(update), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Delete the other.
	resp = doRequest(t, ts, http.MethodDelete, "/vault-items/2", "pw", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Load and verify.
	resp = doRequest(t, ts, http.MethodGet, "/vault-items", "pw", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loaded struct {
		Items      []models.VaultItem `json:"items"`
		TotalCount int                `json:"totalCount"`
	}
	decodeBody(t, resp, &loaded)
	require.Equal(t, 1, loaded.TotalCount)
	assert.Equal(t, "renamed", loaded.Items[0].Name)
}

func TestServer_DeleteMissingItem(t *testing.T) {
	ts := newTestServer(t)

	payload, err := json.Marshal(map[string]interface{}{"items": []models.VaultItem{}})
	require.NoError(t, err)
	resp := doRequest(t, ts, http.MethodPost, "/vault-items", "pw", bytes.NewReader(payload), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doRequest(t, ts, http.MethodDelete, "/vault-items/77", "pw", nil, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_BadItemID(t *testing.T) {
	ts := newTestServer(t)

	resp := doRequest(t, ts, http.MethodDelete, "/vault-items/abc", "pw", nil, "")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
