// Package urls provides utility functions for working with URLs.
package urls

import (
	"net/url"
	"strings"
)

const (
	schemeHTTP  = "http"
	schemeHTTPS = "https"
)

// IsURLValid checks if the given URL is an absolute http(s) URL.
func IsURLValid(raw string) bool {
	u, err := url.Parse(raw)

	return err == nil && u.Host != "" && (u.Scheme == schemeHTTP || u.Scheme == schemeHTTPS)
}

// FixURL prepends https scheme to a URL that has none.
// Example: youtube.com/watch?v=x => https://youtube.com/watch?v=x
func FixURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" {
		return raw
	}

	return schemeHTTPS + "://" + strings.TrimPrefix(raw, "//")
}

// Normalize trims spaces, parses and returns the URL in string format.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}

	return u.String()
}
