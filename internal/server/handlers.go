package server

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/vaultfile"
)

// handleUpload accepts a multipart upload (file, description?, category?).
// Oversized uploads are rejected before any encryption begins.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, password string) {
	// +1 so an at-limit body parses and an over-limit one fails early.
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadSize+1024*1024)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeStorage, "parse multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeStorage, "missing file field")
		return
	}
	defer file.Close()

	if header.Size > s.maxUploadSize {
		writeError(w, http.StatusRequestEntityTooLarge, models.ErrCodeStorage,
			fmt.Sprintf("file exceeds %d byte limit", s.maxUploadSize))
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeStorage, "read upload: "+err.Error())
		return
	}

	result, err := s.vault.Upload(r.Context(), password, vaultfile.UploadRequest{
		Name:        header.Filename,
		MimeType:    header.Header.Get("Content-Type"),
		Description: r.FormValue("description"),
		Category:    r.FormValue("category"),
		Data:        data,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.hub.Broadcast(models.EventFilesUpdated)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"fileId":  result.FileID,
		"name":    result.Name,
		"size":    result.Size,
		"type":    result.MimeType,
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request, password string) {
	fileID := r.PathValue("id")

	data, meta, err := s.vault.Download(r.Context(), password, fileID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	contentType := meta.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": meta.Name}))
	_, _ = w.Write(data)
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, password string) {
	result, err := s.vault.List(r.Context(), password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"files":      result.Files,
		"totalCount": len(result.Files),
	}
	if len(result.Errors) > 0 {
		resp["errors"] = result.Errors
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request, password string) {
	fileID := r.PathValue("id")

	if err := s.vault.DeleteFile(r.Context(), fileID); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.hub.Broadcast(models.EventFilesUpdated)
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request, password string) {
	meta, err := s.vault.Metadata(r.Context(), password, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, meta)
}

func (s *Server) handleSaveItems(w http.ResponseWriter, r *http.Request, password string) {
	var req struct {
		Items []models.VaultItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeStorage, "bad json")
		return
	}

	receipt, err := s.vault.SaveItems(r.Context(), password, req.Items)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.hub.Broadcast(models.EventSnapshotUpdated)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"itemCount": receipt.ItemCount,
		"savedAt":   receipt.SavedAt,
		"verified":  receipt.Verified,
	})
}

func (s *Server) handleLoadItems(w http.ResponseWriter, r *http.Request, password string) {
	items, err := s.vault.LoadItems(r.Context(), password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"items":      items,
		"totalCount": len(items),
	})
}

// handleUpdateItem has upsert semantics: a missing id is inserted.
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request, password string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeStorage, "invalid item id")
		return
	}

	var req struct {
		Item models.VaultItem `json:"item"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeStorage, "bad json")
		return
	}

	if err := s.vault.UpdateItem(r.Context(), password, id, req.Item); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.hub.Broadcast(models.EventSnapshotUpdated)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"itemId":    id,
		"updatedAt": time.Now().UTC(),
	})
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request, password string) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrCodeStorage, "invalid item id")
		return
	}

	if err := s.vault.DeleteItem(r.Context(), password, id); err != nil {
		s.writeServiceError(w, err)
		return
	}

	s.hub.Broadcast(models.EventSnapshotUpdated)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":   true,
		"itemId":    id,
		"deletedAt": time.Now().UTC(),
	})
}
