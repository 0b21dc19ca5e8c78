package model

import "time"

// Visit is one recorded resolution of an alias. Rows are append-only.
type Visit struct {
	ID         string    `json:"id"` // ULID
	LinkID     string    `json:"link_id"`
	VisitorIP  string    `json:"visitor_ip"`
	UserAgent  string    `json:"user_agent"`
	Referer    string    `json:"referer"`
	DeviceType string    `json:"device_type"`
	Browser    string    `json:"browser"`
	Country    string    `json:"country"`
	City       string    `json:"city"`
	Timestamp  time.Time `json:"timestamp"`
}

// Device types derived from the User-Agent header.
const (
	DeviceMobile  = "mobile"
	DeviceTablet  = "tablet"
	DeviceDesktop = "desktop"
	DeviceBot     = "bot"
	DeviceUnknown = "unknown"
)

// Unknown is stored for any visit attribute that could not be derived.
const Unknown = "unknown"

// DashboardStats are the owner-wide aggregates shown on the dashboard.
type DashboardStats struct {
	TotalLinks        int64    `json:"totalLinks"`
	TotalClicks       int64    `json:"totalClicks"`
	ActiveLinks       int64    `json:"activeLinks"`
	TopPerformingLink *TopLink `json:"topPerformingLink"`
}

// TopLink is the single most clicked link of an owner.
type TopLink struct {
	ShortURL string `json:"shortUrl"`
	Clicks   int64  `json:"clicks"`
}

// AnalyticsReport aggregates visits over a trailing window.
type AnalyticsReport struct {
	TotalClicks    int64           `json:"totalClicks"`
	UniqueVisitors int64           `json:"uniqueVisitors"`
	TopCountries   []CountryVisits `json:"topCountries"`
	TopDevices     []DeviceVisits  `json:"topDevices"`
	TopBrowsers    []BrowserVisits `json:"topBrowsers"`
	TopReferrers   []RefererVisits `json:"topReferrers"`
	ClicksByDay    []DailyClicks   `json:"clicksByDay"`
}

// CountryVisits counts visits for one country.
type CountryVisits struct {
	Country string `json:"country"`
	Visits  int64  `json:"visits"`
}

// DeviceVisits counts visits for one device type.
type DeviceVisits struct {
	Device string `json:"device"`
	Visits int64  `json:"visits"`
}

// BrowserVisits counts visits for one browser.
type BrowserVisits struct {
	Browser string `json:"browser"`
	Visits  int64  `json:"visits"`
}

// RefererVisits counts visits for one referring host.
type RefererVisits struct {
	Referer string `json:"referer"`
	Visits  int64  `json:"visits"`
}

// DailyClicks counts clicks on one UTC date.
type DailyClicks struct {
	Date   string `json:"date"` // YYYY-MM-DD
	Clicks int64  `json:"clicks"`
}
