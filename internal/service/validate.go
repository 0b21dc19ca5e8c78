package service

import (
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	maxDestinationLength = 2048
	minCustomAliasLength = 3
	maxCustomAliasLength = 32
	maxPasswordLength    = 128
	// maxLookupAliasLength bounds what the resolver sends to the store.
	maxLookupAliasLength = 64
)

var (
	aliasCharset = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	// schemePrefix matches an RFC 3986 scheme at the very start of a URL.
	schemePrefix = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+.-]*://`)
)

// reservedAliases collide with routes served by the application itself.
var reservedAliases = map[string]struct{}{
	"404":       {},
	"api":       {},
	"password":  {},
	"healthz":   {},
	"readyz":    {},
	"metrics":   {},
	"dashboard": {},
	"settings":  {},
	"teams":     {},
	"sign-in":   {},
	"sign-up":   {},
	"_next":     {},
}

// NormalizeDestination trims raw, defaults the scheme to https and checks
// that the result is an absolute http(s) URL with a host.
func NormalizeDestination(raw string) (string, error) {
	dest := strings.TrimSpace(raw)
	if dest == "" {
		return "", ErrInvalidDestination
	}

	if !schemePrefix.MatchString(dest) {
		dest = "https://" + dest
	}

	if len(dest) > maxDestinationLength {
		return "", ErrURLTooLong
	}

	parsed, err := url.Parse(dest)
	if err != nil {
		return "", ErrInvalidDestination
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", ErrInvalidDestination
	}

	if parsed.Hostname() == "" || parsed.User != nil {
		return "", ErrInvalidDestination
	}

	normalized := parsed.String()
	if len(normalized) > maxDestinationLength {
		return "", ErrURLTooLong
	}
	return normalized, nil
}

// ValidateCustomAlias checks a user-chosen slug.
func ValidateCustomAlias(alias string) error {
	if len(alias) < minCustomAliasLength || len(alias) > maxCustomAliasLength || !aliasCharset.MatchString(alias) {
		return ErrInvalidAlias
	}
	if _, reserved := reservedAliases[strings.ToLower(alias)]; reserved {
		return ErrReservedAlias
	}
	return nil
}

// validatePassword enforces the length limit in characters.
func validatePassword(password string) error {
	if utf8.RuneCountInString(password) > maxPasswordLength {
		return ErrPasswordTooLong
	}
	return nil
}

// isLookupCandidate reports whether alias could name a stored link at all.
func isLookupCandidate(alias string) bool {
	return alias != "" && len(alias) <= maxLookupAliasLength && aliasCharset.MatchString(alias)
}
