// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reurl/reurl/internal/handler/dto"
	"github.com/reurl/reurl/internal/service"
)

// Version is reported by the root endpoint.
const Version = "1.0.0"

// Handler serves the service's informational endpoints.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Root describes the service.
// GET /
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "reurl",
		"version": Version,
	})
}

// NotFoundPage is the target of every failed alias resolution.
// GET /404
func (h *Handler) NotFoundPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, dto.ErrorResponse{
		Error: "This short link does not exist or has expired",
		Code:  "LINK_NOT_FOUND",
	})
}

// PasswordPage tells the visitor how to unlock a protected link.
// GET /password/{alias}
func (h *Handler) PasswordPage(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	body := map[string]any{
		"alias":    alias,
		"required": true,
		"message":  "This link is password protected. Retry /" + alias + "?password=<password>",
	}
	if r.URL.Query().Get("error") == "incorrect" {
		body["error"] = "incorrect"
		body["message"] = "Incorrect password. Retry /" + alias + "?password=<password>"
	}
	writeJSON(w, http.StatusOK, body)
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}

// handleServiceError maps service errors to HTTP responses.
func handleServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidDestination):
		writeError(w, http.StatusBadRequest, "INVALID_URL", "Invalid URL format")
	case errors.Is(err, service.ErrURLTooLong):
		writeError(w, http.StatusBadRequest, "URL_TOO_LONG", "URL must be at most 2048 characters")
	case errors.Is(err, service.ErrInvalidAlias):
		writeError(w, http.StatusBadRequest, "INVALID_ALIAS", service.ErrInvalidAlias.Error())
	case errors.Is(err, service.ErrReservedAlias):
		writeError(w, http.StatusBadRequest, "RESERVED_ALIAS", service.ErrReservedAlias.Error())
	case errors.Is(err, service.ErrExpiresInPast):
		writeError(w, http.StatusBadRequest, "EXPIRES_IN_PAST", service.ErrExpiresInPast.Error())
	case errors.Is(err, service.ErrPasswordTooLong):
		writeError(w, http.StatusBadRequest, "PASSWORD_TOO_LONG", service.ErrPasswordTooLong.Error())
	case errors.Is(err, service.ErrAliasExists):
		writeError(w, http.StatusConflict, "ALIAS_TAKEN", "Custom URL already exists")
	case errors.Is(err, service.ErrLinkNotFound):
		writeError(w, http.StatusNotFound, "LINK_NOT_FOUND", "Link not found")
	case errors.Is(err, service.ErrUnavailable):
		logger.Error("database_unavailable", "error", err)
		w.Header().Set("Retry-After", "5")
		writeError(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "Service temporarily unavailable")
	default:
		logger.Error("internal_error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}
