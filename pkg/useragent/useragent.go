// Package useragent provides lightweight User-Agent string classification.
//
// It is deliberately not a full UA parser: sessions only need a coarse,
// human-readable platform label for device listings ("which browser sessions
// are open on my account"), so matching a handful of stable substrings is
// both sufficient and cheap.
package useragent

import "strings"

// Platform labels returned by Detect.
const (
	PlatformWindows = "windows"
	PlatformMacOS   = "macos"
	PlatformLinux   = "linux"
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformBot     = "bot"
	PlatformUnknown = "unknown"
)

// Detect returns a coarse platform label for the given User-Agent string.
func Detect(ua string) string {
	s := strings.ToLower(ua)

	switch {
	case s == "":
		return PlatformUnknown
	case strings.Contains(s, "bot") || strings.Contains(s, "crawler") || strings.Contains(s, "spider"):
		return PlatformBot
	// iPad reports Macintosh in desktop mode but keeps "Mobile" in the UA,
	// so mobile checks run before desktop ones.
	case strings.Contains(s, "iphone") || strings.Contains(s, "ipad") || strings.Contains(s, "ipod"):
		return PlatformIOS
	case strings.Contains(s, "android"):
		return PlatformAndroid
	case strings.Contains(s, "windows"):
		return PlatformWindows
	case strings.Contains(s, "macintosh") || strings.Contains(s, "mac os"):
		return PlatformMacOS
	case strings.Contains(s, "linux") || strings.Contains(s, "x11"):
		return PlatformLinux
	default:
		return PlatformUnknown
	}
}

// ShortIdentifier returns a compact "Browser (platform)" label suitable for
// session listings. Returns "Unknown device" when nothing can be determined.
func ShortIdentifier(ua string) string {
	if ua == "" {
		return "Unknown device"
	}

	browser := detectBrowser(ua)
	platform := Detect(ua)

	if browser == "" && platform == PlatformUnknown {
		return "Unknown device"
	}
	if browser == "" {
		browser = "Unknown browser"
	}
	return browser + " (" + platform + ")"
}

func detectBrowser(ua string) string {
	s := strings.ToLower(ua)

	// Order matters: Chrome's UA contains "safari", Edge's contains "chrome".
	switch {
	case strings.Contains(s, "edg/"):
		return "Edge"
	case strings.Contains(s, "opr/") || strings.Contains(s, "opera"):
		return "Opera"
	case strings.Contains(s, "chrome"):
		return "Chrome"
	case strings.Contains(s, "firefox"):
		return "Firefox"
	case strings.Contains(s, "safari"):
		return "Safari"
	default:
		return ""
	}
}
