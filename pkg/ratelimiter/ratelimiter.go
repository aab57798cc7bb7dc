// Package ratelimiter provides per-key dual sliding-window rate limiting with
// pluggable storage backends.
//
// Unlike a token bucket, a sliding window keeps the exact request timestamps
// inside the trailing interval. That costs O(requests-in-window) per check but
// lets the limiter report a precise reset time: the number of seconds until
// the oldest timestamp falls out of the exceeded window. Two independent
// windows (minute and hour) are evaluated together; a request passes only if
// both are under their ceiling.
//
// The in-memory store is single-process. Deployments with more than one
// instance should use the Redis store so all instances share the same windows.
package ratelimiter

import (
	"context"
	"errors"
	"time"
)

// Window durations for the two sliding windows.
const (
	MinuteWindow = time.Minute
	HourWindow   = time.Hour
)

var (
	// ErrInvalidLimit is returned for non-positive window ceilings.
	ErrInvalidLimit = errors.New("rate limit ceilings must be positive")
	// ErrStoreUnavailable is returned when the backing store cannot be reached.
	ErrStoreUnavailable = errors.New("rate limit store unavailable")
)

// Limit configures the ceilings for one key. A zero value in either field
// disables that window.
type Limit struct {
	PerMinute int
	PerHour   int
}

// IsZero reports whether no window is configured.
func (l Limit) IsZero() bool {
	return l.PerMinute <= 0 && l.PerHour <= 0
}

// Result describes the outcome of a limiter check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// ResetAfter is how long until the oldest timestamp of the exceeded
	// window falls outside it. Zero when Allowed.
	ResetAfter time.Duration

	// Remaining is the smaller of the two windows' remaining allowances,
	// for X-RateLimit-Remaining style reporting.
	Remaining int
}

// ResetSeconds returns ResetAfter rounded up to whole seconds, the shape used
// in API error payloads.
func (r Result) ResetSeconds() int {
	if r.ResetAfter <= 0 {
		return 0
	}
	secs := int(r.ResetAfter / time.Second)
	if r.ResetAfter%time.Second > 0 {
		secs++
	}
	return secs
}

// Store records request timestamps per key and evaluates both windows.
// Implementations must be safe for concurrent use.
type Store interface {
	// Take checks both windows for the key and, if the request is allowed,
	// records its timestamp. The check and the record are a single operation
	// so concurrent callers cannot both sneak under the ceiling.
	Take(ctx context.Context, key string, limit Limit) (Result, error)

	// Reset clears all recorded timestamps for the key.
	Reset(ctx context.Context, key string) error
}
