// Package server exposes the vault file service over HTTP. Every request
// except the health probe and the notification feed must carry the master
// password in the X-Vault-Password header; TLS is assumed to protect it in
// flight, and it is never stored at rest in that form.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/TheMichaelB/vaultsync/internal/events"
	"github.com/TheMichaelB/vaultsync/internal/models"
	"github.com/TheMichaelB/vaultsync/internal/vaultfile"
)

// PasswordHeader carries the master password on every request.
const PasswordHeader = "X-Vault-Password"

// Server routes HTTP requests to the vault file service.
type Server struct {
	vault  *vaultfile.Service
	hub    *Hub
	logger *events.Logger
	mux    *http.ServeMux

	maxUploadSize int64
}

// New creates the HTTP server.
func New(vault *vaultfile.Service, maxUploadSize int64, logger *events.Logger) *Server {
	s := &Server{
		vault:         vault,
		hub:           NewHub(logger),
		logger:        logger.WithField("component", "http_server"),
		mux:           http.NewServeMux(),
		maxUploadSize: maxUploadSize,
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /ws", s.hub)

	s.mux.HandleFunc("POST /files/upload", s.auth(s.handleUpload))
	s.mux.HandleFunc("GET /files", s.auth(s.handleListFiles))
	s.mux.HandleFunc("GET /files/{id}", s.auth(s.handleDownload))
	s.mux.HandleFunc("DELETE /files/{id}", s.auth(s.handleDeleteFile))
	s.mux.HandleFunc("GET /files/{id}/metadata", s.auth(s.handleMetadata))

	s.mux.HandleFunc("POST /vault-items", s.auth(s.handleSaveItems))
	s.mux.HandleFunc("GET /vault-items", s.auth(s.handleLoadItems))
	s.mux.HandleFunc("PUT /vault-items/{id}", s.auth(s.handleUpdateItem))
	s.mux.HandleFunc("DELETE /vault-items/{id}", s.auth(s.handleDeleteItem))

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", addr).Info("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type handlerFunc func(w http.ResponseWriter, r *http.Request, password string)

// auth extracts the password header and rejects requests without one.
func (s *Server) auth(next handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		password := r.Header.Get(PasswordHeader)
		if password == "" {
			writeError(w, http.StatusUnauthorized, models.ErrCodeCredentials, "missing "+PasswordHeader+" header")
			return
		}
		next(w, r, password)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthStatus{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	})
}

// writeJSON writes a JSON response body.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes the API error shape clients unmarshal into APIError.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, models.APIError{
		Code:       code,
		Message:    message,
		StatusCode: status,
	})
}

// writeServiceError maps service failures onto the error taxonomy.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, models.ErrCodeNotFound, err.Error())
	case errors.Is(err, models.ErrDecryptionFailed):
		writeError(w, http.StatusUnauthorized, models.ErrCodeDecryption, "decryption failed")
	case errors.Is(err, models.ErrInvalidEnvelope):
		writeError(w, http.StatusInternalServerError, models.ErrCodeEnvelope, "stored artifact is malformed")
	case errors.Is(err, models.ErrIntegrityMismatch):
		writeError(w, http.StatusInternalServerError, models.ErrCodeIntegrity, err.Error())
	case errors.Is(err, models.ErrSaveVerification):
		writeError(w, http.StatusInternalServerError, models.ErrCodeSaveVerify, err.Error())
	case errors.Is(err, models.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, models.ErrCodeStorage, err.Error())
	default:
		s.logger.WithError(err).Error("Request failed")
		writeError(w, http.StatusInternalServerError, models.ErrCodeStorage, err.Error())
	}
}
