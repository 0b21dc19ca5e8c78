package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/handler/dto"
	"github.com/reurl/reurl/internal/model"
	"github.com/reurl/reurl/internal/service"
)

// LinkService is the link management surface used by LinkHandler.
type LinkService interface {
	CreateLink(ctx context.Context, input service.CreateLinkInput) (*model.Link, error)
	ListLinks(ctx context.Context, userID string, limit int) ([]*model.LinkWithClicks, error)
	DeleteLink(ctx context.Context, userID, id string) error
	BaseURL() string
}

// LinkHandler handles HTTP requests for link operations.
type LinkHandler struct {
	svc       LinkService
	validator *dto.Validator
	logger    *slog.Logger
}

// NewLinkHandler creates a new LinkHandler.
func NewLinkHandler(svc LinkService, validator *dto.Validator, logger *slog.Logger) *LinkHandler {
	return &LinkHandler{
		svc:       svc,
		validator: validator,
		logger:    logger,
	}
}

// Create handles POST /api/shorten.
func (h *LinkHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	if msg := h.validator.Struct(&req); msg != "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}

	expiresAt, err := req.ExpiryTime()
	if err != nil {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "expiresAt must be an RFC 3339 timestamp")
		return
	}

	link, err := h.svc.CreateLink(r.Context(), service.CreateLinkInput{
		UserID:     auth.UserIDFromContext(r.Context()),
		URL:        req.URL,
		CustomSlug: req.CustomSlug,
		ExpiresAt:  expiresAt,
		Password:   req.Password,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.ToLinkResponse(link, h.svc.BaseURL()))
}

// List handles GET /api/links?limit=N.
func (h *LinkHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeError(w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	links, err := h.svc.ListLinks(r.Context(), auth.UserIDFromContext(r.Context()), limit)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToLinkList(links, h.svc.BaseURL()))
}

// Delete handles DELETE /api/links/{id}.
func (h *LinkHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.DeleteLink(r.Context(), auth.UserIDFromContext(r.Context()), id); err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.DeleteResponse{Success: true})
}
