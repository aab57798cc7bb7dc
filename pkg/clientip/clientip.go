// Package clientip extracts real client IP addresses from HTTP requests.
//
// Proxy headers are checked in priority order so the most reliable source wins.
// The resolved address feeds rate limiting, API key allow-lists, and security
// logging, which is why raw header values are never trusted without validation.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Headers checked in priority order. CDN-set headers come first because they
// are written by infrastructure the application operator controls.
var headerPriority = []string{
	"CF-Connecting-IP",
	"DO-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// GetIP returns the client IP address for the request.
//
// It checks proxy headers in priority order, validates every candidate, and
// falls back to the connection's RemoteAddr. X-Forwarded-For may contain a
// chain of addresses; the leftmost entry is the original client.
// If no valid address can be determined, the raw RemoteAddr is returned.
func GetIP(r *http.Request) string {
	for _, header := range headerPriority {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}

		// X-Forwarded-For: "client, proxy1, proxy2"
		if idx := strings.IndexByte(value, ','); idx >= 0 {
			value = value[:idx]
		}

		if ip := normalize(value); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port (e.g. in tests).
		if ip := normalize(r.RemoteAddr); ip != "" {
			return ip
		}
		return r.RemoteAddr
	}

	if ip := normalize(host); ip != "" {
		return ip
	}
	return r.RemoteAddr
}

// normalize validates and canonicalizes an IP string.
// Returns an empty string for invalid input or the unspecified address,
// which some proxies emit when they have no client information.
func normalize(s string) string {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil || ip.IsUnspecified() {
		return ""
	}
	return ip.String()
}
