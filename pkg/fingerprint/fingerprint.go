// Package fingerprint identifies client devices for the trusted-device flow.
//
// The preferred fingerprint is computed client-side (user agent, locale,
// screen geometry, timezone offset, canvas hash) and submitted with the login
// request; the server treats it as an opaque token. When the client sends
// nothing, a server-side fallback is derived from stable request headers.
//
// A fingerprint is a convenience signal, not a security boundary: it narrows
// login friction by skipping the second factor on known devices, but no
// security-sensitive operation may rely on it alone.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"sort"
	"strings"
)

const (
	version = "v1:"
	// hashLen keeps 16 of SHA-256's 32 bytes: plenty for device
	// disambiguation at half the storage.
	hashLen = 16
	// maxClientLen bounds client-supplied fingerprints so a hostile client
	// cannot bloat the trusted-device collection.
	maxClientLen = 128
)

// ErrInvalid is returned when a fingerprint has an unusable format.
var ErrInvalid = errors.New("invalid fingerprint")

// Resolve picks the effective fingerprint for a request: the client-supplied
// value when present and well-formed, otherwise a server-derived fallback.
func Resolve(clientSupplied string, r *http.Request) string {
	if fp, err := Normalize(clientSupplied); err == nil {
		return fp
	}
	return FromRequest(r)
}

// Normalize validates a client-supplied fingerprint and returns it in
// canonical form. Client values are opaque; only shape is checked.
func Normalize(fp string) (string, error) {
	fp = strings.TrimSpace(fp)
	if fp == "" || len(fp) > maxClientLen {
		return "", ErrInvalid
	}
	for _, r := range fp {
		// Printable ASCII, no whitespace: survives headers, logs, and JSON.
		if r <= ' ' || r > '~' {
			return "", ErrInvalid
		}
	}
	return fp, nil
}

// FromRequest derives a fallback fingerprint from stable request headers.
// The client IP is deliberately excluded: mobile networks and VPNs rotate
// addresses and would turn every login into a second-factor challenge.
func FromRequest(r *http.Request) string {
	components := []string{
		r.UserAgent(),
		r.Header.Get("Accept-Language"),
		r.Header.Get("Accept-Encoding"),
		headerSet(r),
	}

	filtered := components[:0]
	for _, c := range components {
		if c != "" {
			filtered = append(filtered, c)
		}
	}

	// Pipe delimiter prevents ["ab","c"] and ["a","bc"] from colliding.
	sum := sha256.Sum256([]byte(strings.Join(filtered, "|")))
	return version + hex.EncodeToString(sum[:hashLen])
}

// headerSet fingerprints which stable browser headers are present. Different
// clients send different header sets, which separates browsers from API
// clients even when the User-Agent lies.
func headerSet(r *http.Request) string {
	var names []string
	for name := range r.Header {
		switch strings.ToLower(name) {
		case "user-agent", "accept", "accept-language", "accept-encoding",
			"sec-fetch-dest", "sec-fetch-mode", "sec-fetch-site",
			"upgrade-insecure-requests":
			names = append(names, strings.ToLower(name))
		}
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
