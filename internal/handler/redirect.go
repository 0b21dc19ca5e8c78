package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reurl/reurl/internal/analytics"
	"github.com/reurl/reurl/internal/service"
)

// Resolver maps an alias to its redirect target.
type Resolver interface {
	Resolve(ctx context.Context, alias, password string, hit analytics.Hit) service.Resolution
}

// RedirectHandler handles redirect requests.
type RedirectHandler struct {
	resolver   Resolver
	statusCode int
}

// NewRedirectHandler creates a new RedirectHandler issuing statusCode
// (302 or 307) for every outcome.
func NewRedirectHandler(resolver Resolver, statusCode int) *RedirectHandler {
	return &RedirectHandler{
		resolver:   resolver,
		statusCode: statusCode,
	}
}

// Redirect handles GET /{alias}. Every outcome is a redirect: to the
// destination, the password page or the not-found page.
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	alias := chi.URLParam(r, "alias")
	password := r.URL.Query().Get("password")

	res := h.resolver.Resolve(r.Context(), alias, password, analytics.HitFromRequest(r))

	w.Header().Set("Cache-Control", "private, no-store")
	http.Redirect(w, r, res.Location, h.statusCode)
}
