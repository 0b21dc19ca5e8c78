package service

import (
	"context"
	"time"

	"github.com/reurl/reurl/internal/model"
)

// StatsStore computes owner-scoped aggregates.
type StatsStore interface {
	GetDashboardStats(ctx context.Context, userID string) (*model.DashboardStats, error)
	GetAnalyticsReport(ctx context.Context, userID string, since time.Time) (*model.AnalyticsReport, error)
}

// analyticsRanges maps the accepted range parameter to a window in days.
var analyticsRanges = map[string]int{
	"7d":  7,
	"30d": 30,
	"90d": 90,
}

const defaultRange = "7d"

// StatsService serves the dashboard statistics and analytics report.
type StatsService struct {
	store StatsStore
	now   func() time.Time
}

// NewStatsService creates a new StatsService.
func NewStatsService(store StatsStore) *StatsService {
	return &StatsService{store: store, now: time.Now}
}

// Dashboard returns the owner-wide aggregates.
func (s *StatsService) Dashboard(ctx context.Context, userID string) (*model.DashboardStats, error) {
	stats, err := s.store.GetDashboardStats(ctx, userID)
	if err != nil {
		return nil, storeErr("dashboard stats", err)
	}
	return stats, nil
}

// Analytics returns the report for a trailing window. Unknown ranges use 7d.
func (s *StatsService) Analytics(ctx context.Context, userID, rangeParam string) (*model.AnalyticsReport, error) {
	_, days := ParseRange(rangeParam)
	since := s.now().UTC().AddDate(0, 0, -days)

	report, err := s.store.GetAnalyticsReport(ctx, userID, since)
	if err != nil {
		return nil, storeErr("analytics report", err)
	}
	return report, nil
}

// ParseRange resolves a range parameter to its canonical label and length in days.
func ParseRange(param string) (string, int) {
	if days, ok := analyticsRanges[param]; ok {
		return param, days
	}
	return defaultRange, analyticsRanges[defaultRange]
}
