// Package apikey issues and authenticates API keys: generation with an
// embedded public key ID, SHA-256 hash-at-rest storage, a permission and
// ownership model, IP allow-lists, and per-key dual sliding-window rate
// limiting.
package apikey

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/auth"
	"github.com/dmitrymomot/melodix/pkg/ratelimiter"
)

// Environment selects the key namespace embedded in the plaintext.
type Environment string

const (
	EnvLive Environment = "live"
	EnvTest Environment = "test"
)

// KeyIDLen is the length of the public key identifier embedded at the
// start of the secret part. It allows lookup-free diagnostics: logs can
// name a key without ever holding its plaintext.
const KeyIDLen = 8

var (
	// ErrNotFound is returned when no key matches the lookup.
	ErrNotFound = errors.New("api key not found")
	// ErrMalformedKey is returned when a presented value fails the key
	// pattern. Checked before any hashing or datastore work.
	ErrMalformedKey = errors.New("malformed api key")
	// ErrKeyRevoked is returned when the key exists but is deactivated.
	ErrKeyRevoked = errors.New("api key revoked")
	// ErrKeyExpired is returned when the key is past its expiry.
	ErrKeyExpired = errors.New("api key expired")
	// ErrIPNotAllowed is returned when the caller's address fails the
	// key's allow-list.
	ErrIPNotAllowed = errors.New("ip address not allowed")
)

// keyPattern gates presented values before any hashing or datastore work,
// so credential-stuffing traffic stays cheap to reject.
var keyPattern = regexp.MustCompile(`^mlx_(live|test)_[a-f0-9]{64}$`)

// APIKey is a stored key record. The plaintext is shown once at creation
// and never persisted; only its SHA-256 hash is stored.
type APIKey struct {
	KeyID       string            `bson:"_id" json:"keyId"`
	KeyHash     string            `bson:"key_hash" json:"-"`
	UserID      uuid.UUID         `bson:"user_id" json:"userId"`
	CreatedBy   uuid.UUID         `bson:"created_by" json:"createdBy"`
	Role        auth.Role         `bson:"role" json:"role"`
	Name        string            `bson:"name" json:"name"`
	Environment Environment       `bson:"environment" json:"environment"`
	Permissions []string          `bson:"permissions" json:"permissions"`
	AllowedIPs  []string          `bson:"allowed_ips" json:"allowedIps"`
	RateLimit   ratelimiter.Limit `bson:"rate_limit" json:"rateLimit"`
	IsActive    bool              `bson:"is_active" json:"isActive"`
	CreatedAt   time.Time         `bson:"created_at" json:"createdAt"`
	ExpiresAt   *time.Time        `bson:"expires_at,omitempty" json:"expiresAt,omitempty"`
	LastUsedAt  *time.Time        `bson:"last_used_at,omitempty" json:"lastUsedAt,omitempty"`
	UsageCount  int64             `bson:"usage_count" json:"usageCount"`
}

// Valid reports whether the key is usable at the given time.
func (k APIKey) Valid(now time.Time) bool {
	if !k.IsActive {
		return false
	}
	if k.ExpiresAt != nil && !now.Before(*k.ExpiresAt) {
		return false
	}
	return true
}

// WellFormed reports whether a presented value matches the key pattern.
func WellFormed(raw string) bool {
	return keyPattern.MatchString(raw)
}

// HashKey returns the hex SHA-256 digest of a plaintext key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
