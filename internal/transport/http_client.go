package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/http2"

	"github.com/TheMichaelB/vaultsync/internal/config"
	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
)

// PasswordHeader mirrors the server's authentication header.
const PasswordHeader = "X-Vault-Password"

// HTTPClient implements Gateway over the server's REST endpoints. Calls
// are single-attempt: client-side sync and push operations are not retried
// automatically, the next mutation or sync tries again.
type HTTPClient struct {
	client       *http.Client
	baseURL      string
	userAgent    string
	probeTimeout time.Duration
	logger       *events.Logger
}

// NewHTTPClient creates the gateway.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		probeTimeout: cfg.ProbeTimeout,
		logger:       logger.WithField("component", "gateway"),
	}
}

// Health probes the server.
func (c *HTTPClient) Health(ctx context.Context) (*models.HealthStatus, error) {
	var status models.HealthStatus
	if err := c.doJSON(ctx, http.MethodGet, "/health", "", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Available converts every probe failure into false. The probe is bounded
// by its own timeout so an unreachable host downgrades to unavailable
// instead of hanging.
func (c *HTTPClient) Available(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	status, err := c.Health(probeCtx)
	if err != nil {
		c.logger.WithError(err).Debug("Server unavailable")
		return false
	}
	return status.Status == "ok"
}

// UploadFile sends a multipart upload.
func (c *HTTPClient) UploadFile(ctx context.Context, sess *models.Session, upload FileUpload) (*models.UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, upload.Name))
	if upload.MimeType != "" {
		header.Set("Content-Type", upload.MimeType)
	}

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(upload.Data); err != nil {
		return nil, fmt.Errorf("write multipart part: %w", err)
	}

	if upload.Description != "" {
		_ = writer.WriteField("description", upload.Description)
	}
	if upload.Category != "" {
		_ = writer.WriteField("category", upload.Category)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/files/upload", sess.Password(), &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var resp struct {
		Success bool   `json:"success"`
		FileID  string `json:"fileId"`
		Name    string `json:"name"`
		Size    int64  `json:"size"`
		Type    string `json:"type"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}

	return &models.UploadResult{
		FileID:   resp.FileID,
		Name:     resp.Name,
		Size:     resp.Size,
		MimeType: resp.Type,
	}, nil
}

// DownloadFile fetches raw file bytes.
func (c *HTTPClient) DownloadFile(ctx context.Context, sess *models.Session, fileID string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/files/"+fileID, sess.Password(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, respBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read file body: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"file_id": fileID,
		"size":    len(data),
	}).Debug("Downloaded file")

	return data, nil
}

// ListFiles retrieves server file metadata.
func (c *HTTPClient) ListFiles(ctx context.Context, sess *models.Session) (*FileListing, error) {
	var resp struct {
		Files      []models.FileMetadata `json:"files"`
		TotalCount int                   `json:"totalCount"`
		Errors     []string              `json:"errors"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/files", sess.Password(), nil, &resp); err != nil {
		return nil, err
	}
	return &FileListing{Files: resp.Files, TotalCount: resp.TotalCount, Errors: resp.Errors}, nil
}

// DeleteFile removes a server file.
func (c *HTTPClient) DeleteFile(ctx context.Context, sess *models.Session, fileID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/files/"+fileID, sess.Password(), nil, nil)
}

// FileMetadata fetches one file's metadata.
func (c *HTTPClient) FileMetadata(ctx context.Context, sess *models.Session, fileID string) (*models.FileMetadata, error) {
	var meta models.FileMetadata
	if err := c.doJSON(ctx, http.MethodGet, "/files/"+fileID+"/metadata", sess.Password(), nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// SaveItems pushes the full snapshot; the server's copy is overwritten,
// not merged.
func (c *HTTPClient) SaveItems(ctx context.Context, sess *models.Session, items []models.VaultItem) (*models.SaveReceipt, error) {
	payload := map[string]interface{}{"items": items}

	var resp struct {
		Success   bool      `json:"success"`
		ItemCount int       `json:"itemCount"`
		SavedAt   time.Time `json:"savedAt"`
		Verified  bool      `json:"verified"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/vault-items", sess.Password(), payload, &resp); err != nil {
		return nil, err
	}

	return &models.SaveReceipt{
		ItemCount: resp.ItemCount,
		SavedAt:   resp.SavedAt,
		Verified:  resp.Verified,
	}, nil
}

// LoadItems pulls the full snapshot.
func (c *HTTPClient) LoadItems(ctx context.Context, sess *models.Session) ([]models.VaultItem, error) {
	var resp struct {
		Items      []models.VaultItem `json:"items"`
		TotalCount int                `json:"totalCount"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/vault-items", sess.Password(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// UpdateItem upserts one server item.
func (c *HTTPClient) UpdateItem(ctx context.Context, sess *models.Session, id int64, item models.VaultItem) error {
	payload := map[string]interface{}{"item": item}
	return c.doJSON(ctx, http.MethodPut, "/vault-items/"+strconv.FormatInt(id, 10), sess.Password(), payload, nil)
}

// DeleteItem removes one server item.
func (c *HTTPClient) DeleteItem(ctx context.Context, sess *models.Session, id int64) error {
	return c.doJSON(ctx, http.MethodDelete, "/vault-items/"+strconv.FormatInt(id, 10), sess.Password(), nil, nil)
}

// Close releases resources.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

// Request plumbing

func (c *HTTPClient) newRequest(ctx context.Context, method, path, password string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if password != "" {
		req.Header.Set(PasswordHeader, password)
	}

	return req, nil
}

// doJSON marshals payload, executes the request and decodes the response
// into out (when non-nil).
func (c *HTTPClient) doJSON(ctx context.Context, method, path, password string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, password, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	c.logger.WithFields(map[string]interface{}{
		"method": req.Method,
		"url":    req.URL.String(),
	}).Debug("Sending request")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"status": resp.StatusCode,
		"size":   len(respBody),
	}).Debug("Received response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return apiError(resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// apiError maps a non-2xx response onto the error taxonomy, preserving the
// server's structured error body when present.
func apiError(status int, body []byte) error {
	var apiErr models.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.StatusCode = status
		if status == http.StatusNotFound {
			return fmt.Errorf("%w: %s", models.ErrNotFound, apiErr.Message)
		}
		return &apiErr
	}
	if status == http.StatusNotFound {
		return models.ErrNotFound
	}
	return fmt.Errorf("HTTP %d: %s", status, body)
}
