package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/reurl/reurl/internal/auth"
	"github.com/reurl/reurl/internal/model"
)

// StatsService computes the owner's aggregates.
type StatsService interface {
	Dashboard(ctx context.Context, userID string) (*model.DashboardStats, error)
	Analytics(ctx context.Context, userID, rangeParam string) (*model.AnalyticsReport, error)
}

// StatsHandler serves dashboard statistics and the analytics report.
type StatsHandler struct {
	svc    StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a new StatsHandler.
func NewStatsHandler(svc StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{svc: svc, logger: logger}
}

// Stats handles GET /api/stats.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Dashboard(r.Context(), auth.UserIDFromContext(r.Context()))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Analytics handles GET /api/analytics?range=7d|30d|90d.
func (h *StatsHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.Analytics(r.Context(), auth.UserIDFromContext(r.Context()), r.URL.Query().Get("range"))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
