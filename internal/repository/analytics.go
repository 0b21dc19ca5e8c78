package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/reurl/reurl/internal/model"
)

const (
	// activeWindow is the trailing window for counting a link as active.
	activeWindow = 30 * 24 * time.Hour
	// topN bounds every ranked list in the analytics report.
	topN = 5
)

// InsertVisit appends one analytics row.
func (r *Repository) InsertVisit(ctx context.Context, visit *model.Visit) error {
	query := `
		INSERT INTO analytics (
			id, link_id, visitor_ip, user_agent, referer,
			device_type, browser, country, city, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		visit.ID,
		visit.LinkID,
		visit.VisitorIP,
		visit.UserAgent,
		visit.Referer,
		visit.DeviceType,
		visit.Browser,
		visit.Country,
		visit.City,
		visit.Timestamp,
	)
	if err != nil {
		return wrapErr("insert visit", err)
	}

	return nil
}

// GetDashboardStats computes the owner-wide aggregates in a single round trip.
func (r *Repository) GetDashboardStats(ctx context.Context, userID string) (*model.DashboardStats, error) {
	activeSince := time.Now().UTC().Add(-activeWindow)

	batch := &pgx.Batch{}
	batch.Queue(`SELECT COUNT(*) FROM links WHERE user_id = $1`, userID)
	batch.Queue(`
		SELECT COUNT(a.id)
		FROM analytics a
		JOIN links l ON l.id = a.link_id
		WHERE l.user_id = $1
	`, userID)
	batch.Queue(`
		SELECT COUNT(DISTINCT a.link_id)
		FROM analytics a
		JOIN links l ON l.id = a.link_id
		WHERE l.user_id = $1 AND a.timestamp >= $2
	`, userID, activeSince)
	batch.Queue(`
		SELECT l.short_url, COUNT(a.id) AS clicks
		FROM links l
		LEFT JOIN analytics a ON a.link_id = l.id
		WHERE l.user_id = $1
		GROUP BY l.id
		ORDER BY clicks DESC, l.created_at ASC
		LIMIT 1
	`, userID)

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var stats model.DashboardStats
	if err := results.QueryRow().Scan(&stats.TotalLinks); err != nil {
		return nil, wrapErr("count links", err)
	}
	if err := results.QueryRow().Scan(&stats.TotalClicks); err != nil {
		return nil, wrapErr("count clicks", err)
	}
	if err := results.QueryRow().Scan(&stats.ActiveLinks); err != nil {
		return nil, wrapErr("count active links", err)
	}

	var top model.TopLink
	err := results.QueryRow().Scan(&top.ShortURL, &top.Clicks)
	switch {
	case err == nil:
		stats.TopPerformingLink = &top
	case errors.Is(err, pgx.ErrNoRows):
		// No links yet.
	default:
		return nil, wrapErr("top link", err)
	}

	return &stats, nil
}

// labelCount is one row of a grouped count query.
type labelCount struct {
	label string
	count int64
}

// GetAnalyticsReport aggregates the owner's visits recorded at or after since.
func (r *Repository) GetAnalyticsReport(ctx context.Context, userID string, since time.Time) (*model.AnalyticsReport, error) {
	const scope = `
		FROM analytics a
		JOIN links l ON l.id = a.link_id
		WHERE l.user_id = $1 AND a.timestamp >= $2
	`
	grouped := func(expr string) string {
		return fmt.Sprintf(`SELECT %s AS label, COUNT(*) AS visits %s GROUP BY label ORDER BY visits DESC, label ASC LIMIT %d`, expr, scope, topN)
	}

	batch := &pgx.Batch{}
	batch.Queue(`SELECT COUNT(*), COUNT(DISTINCT a.visitor_ip) `+scope, userID, since)
	batch.Queue(grouped(`a.country`), userID, since)
	batch.Queue(grouped(`a.device_type`), userID, since)
	batch.Queue(grouped(`a.browser`), userID, since)
	batch.Queue(grouped(`
		CASE
			WHEN a.referer = '' THEN '(direct)'
			ELSE COALESCE(substring(a.referer from '^[A-Za-z][A-Za-z0-9+.-]*://([^/:?#]+)'), '(unknown)')
		END`), userID, since)
	batch.Queue(`
		SELECT to_char(a.timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) `+scope+`
		GROUP BY day
		ORDER BY day ASC
	`, userID, since)

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var report model.AnalyticsReport
	if err := results.QueryRow().Scan(&report.TotalClicks, &report.UniqueVisitors); err != nil {
		return nil, wrapErr("count visits", err)
	}

	countries, err := collectLabelCounts(results, "top countries")
	if err != nil {
		return nil, err
	}
	report.TopCountries = make([]model.CountryVisits, 0, len(countries))
	for _, c := range countries {
		report.TopCountries = append(report.TopCountries, model.CountryVisits{Country: c.label, Visits: c.count})
	}

	devices, err := collectLabelCounts(results, "top devices")
	if err != nil {
		return nil, err
	}
	report.TopDevices = make([]model.DeviceVisits, 0, len(devices))
	for _, d := range devices {
		report.TopDevices = append(report.TopDevices, model.DeviceVisits{Device: d.label, Visits: d.count})
	}

	browsers, err := collectLabelCounts(results, "top browsers")
	if err != nil {
		return nil, err
	}
	report.TopBrowsers = make([]model.BrowserVisits, 0, len(browsers))
	for _, b := range browsers {
		report.TopBrowsers = append(report.TopBrowsers, model.BrowserVisits{Browser: b.label, Visits: b.count})
	}

	referers, err := collectLabelCounts(results, "top referrers")
	if err != nil {
		return nil, err
	}
	report.TopReferrers = make([]model.RefererVisits, 0, len(referers))
	for _, ref := range referers {
		report.TopReferrers = append(report.TopReferrers, model.RefererVisits{Referer: ref.label, Visits: ref.count})
	}

	days, err := collectLabelCounts(results, "clicks by day")
	if err != nil {
		return nil, err
	}
	report.ClicksByDay = make([]model.DailyClicks, 0, len(days))
	for _, d := range days {
		report.ClicksByDay = append(report.ClicksByDay, model.DailyClicks{Date: d.label, Clicks: d.count})
	}

	return &report, nil
}

// collectLabelCounts reads the next batch result as (label, count) rows.
func collectLabelCounts(results pgx.BatchResults, op string) ([]labelCount, error) {
	rows, err := results.Query()
	if err != nil {
		return nil, wrapErr(op, err)
	}

	counts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (labelCount, error) {
		var lc labelCount
		err := row.Scan(&lc.label, &lc.count)
		return lc, err
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}

	return counts, nil
}
