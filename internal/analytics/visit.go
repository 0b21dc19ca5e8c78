// Package analytics turns a resolution request into a recorded visit.
package analytics

import (
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"

	"github.com/reurl/reurl/internal/model"
)

const (
	maxHeaderLength = 500
	maxCityLength   = 100
	maxIPLength     = 64
)

// Hit holds the request attributes a visit is derived from.
type Hit struct {
	RemoteAddr   string
	ForwardedFor string
	RealIP       string
	UserAgent    string
	Referer      string
	Country      string
	City         string
}

// HitFromRequest captures the visit-relevant headers of r.
func HitFromRequest(r *http.Request) Hit {
	return Hit{
		RemoteAddr:   r.RemoteAddr,
		ForwardedFor: r.Header.Get("X-Forwarded-For"),
		RealIP:       r.Header.Get("X-Real-IP"),
		UserAgent:    r.Header.Get("User-Agent"),
		Referer:      r.Header.Get("Referer"),
		Country:      r.Header.Get("CF-IPCountry"),
		City:         r.Header.Get("CF-IPCity"),
	}
}

// NewVisit builds the analytics row for one resolution of linkID.
func NewVisit(linkID string, hit Hit, now time.Time) *model.Visit {
	ua := sanitize(hit.UserAgent, maxHeaderLength)
	device, browser := ParseUserAgent(ua)

	return &model.Visit{
		ID:         ulid.Make().String(),
		LinkID:     linkID,
		VisitorIP:  ClientIP(hit),
		UserAgent:  ua,
		Referer:    sanitize(hit.Referer, maxHeaderLength),
		DeviceType: device,
		Browser:    browser,
		Country:    CountryCode(hit.Country),
		City:       orUnknown(sanitize(hit.City, maxCityLength)),
		Timestamp:  now.UTC(),
	}
}

// ClientIP picks the visitor address: the first X-Forwarded-For entry,
// then X-Real-IP, then the connection address.
func ClientIP(hit Hit) string {
	if hit.ForwardedFor != "" {
		first, _, _ := strings.Cut(hit.ForwardedFor, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return sanitize(ip, maxIPLength)
		}
	}

	if ip := strings.TrimSpace(hit.RealIP); ip != "" {
		return sanitize(ip, maxIPLength)
	}

	if hit.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(hit.RemoteAddr); err == nil && host != "" {
			return host
		}
		return sanitize(hit.RemoteAddr, maxIPLength)
	}

	return model.Unknown
}

// CountryCode normalizes an edge-provided ISO country code.
// "XX" and malformed values map to unknown.
func CountryCode(raw string) string {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) != 2 || code == "XX" {
		return model.Unknown
	}
	for i := 0; i < len(code); i++ {
		if code[i] < 'A' || code[i] > 'Z' {
			return model.Unknown
		}
	}
	return code
}

// sanitize drops invalid UTF-8 and truncates to max bytes on a rune boundary.
func sanitize(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= max {
		return s
	}
	s = s[:max]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return model.Unknown
	}
	return s
}
