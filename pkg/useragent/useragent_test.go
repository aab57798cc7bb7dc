package useragent_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/melodix/pkg/useragent"
)

const (
	chromeWindows = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	safariIPhone  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	firefoxLinux  = "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0"
	googlebot     = "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ua   string
		want string
	}{
		{chromeWindows, useragent.PlatformWindows},
		{safariIPhone, useragent.PlatformIOS},
		{firefoxLinux, useragent.PlatformLinux},
		{googlebot, useragent.PlatformBot},
		{"", useragent.PlatformUnknown},
		{"curl/8.4.0", useragent.PlatformUnknown},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, useragent.Detect(tt.ua), tt.ua)
	}
}

func TestShortIdentifier(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Chrome (windows)", useragent.ShortIdentifier(chromeWindows))
	assert.Equal(t, "Safari (ios)", useragent.ShortIdentifier(safariIPhone))
	assert.Equal(t, "Firefox (linux)", useragent.ShortIdentifier(firefoxLinux))
	assert.Equal(t, "Unknown device", useragent.ShortIdentifier(""))
	assert.Equal(t, "Unknown device", useragent.ShortIdentifier("curl/8.4.0"))
}
