package analytics

import (
	"strings"

	"github.com/mssola/useragent"

	"github.com/reurl/reurl/internal/model"
)

// ParseUserAgent classifies a User-Agent header into a device type and browser name.
func ParseUserAgent(raw string) (device, browser string) {
	if strings.TrimSpace(raw) == "" {
		return model.DeviceUnknown, model.Unknown
	}

	ua := useragent.New(raw)

	browser, _ = ua.Browser()
	if browser == "" {
		browser = model.Unknown
	}

	switch {
	case ua.Bot():
		return model.DeviceBot, browser
	case isTablet(raw, ua):
		return model.DeviceTablet, browser
	case ua.Mobile():
		return model.DeviceMobile, browser
	default:
		return model.DeviceDesktop, browser
	}
}

// isTablet matches iPads, explicit tablet tokens and Android builds without the Mobile token.
func isTablet(raw string, ua *useragent.UserAgent) bool {
	if strings.Contains(raw, "iPad") || strings.Contains(raw, "Tablet") {
		return true
	}
	return strings.Contains(ua.OS(), "Android") && !strings.Contains(raw, "Mobile")
}
