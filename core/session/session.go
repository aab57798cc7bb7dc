// Package session manages browser session records: token issuance,
// validation, activity tracking, revocation, and expiry sweeping.
//
// A session is valid iff it is active and not yet expired. Sessions are
// soft-deleted (deactivated) on logout or revocation so the record remains
// for audit until the TTL sweep hard-deletes it.
package session

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/pkg/useragent"
)

// TokenPrefix is the fixed, recognizable prefix of every session token.
// It lets secret scanners and logs identify leaked tokens on sight.
const TokenPrefix = "mlx_sess_"

var (
	// ErrNotFound is returned when a session cannot be found in the store.
	ErrNotFound = errors.New("session not found")
	// ErrExpired is returned when a session exists but is past its TTL or
	// has been deactivated.
	ErrExpired = errors.New("session has expired")
	// ErrTokenGeneration is returned when random token generation fails.
	ErrTokenGeneration = errors.New("failed to generate session token")
)

// DeviceInfo captures the client context a session was created from.
type DeviceInfo struct {
	UserAgent string `bson:"user_agent" json:"userAgent"`
	IP        string `bson:"ip" json:"ip"`
	Platform  string `bson:"platform" json:"platform"`
}

// Session is a browser session record.
type Session struct {
	Token      string     `bson:"token" json:"-"`
	UserID     uuid.UUID  `bson:"user_id" json:"userId"`
	IsAdmin    bool       `bson:"is_admin" json:"isAdmin"`
	DeviceInfo DeviceInfo `bson:"device_info" json:"deviceInfo"`
	CreatedAt  time.Time  `bson:"created_at" json:"createdAt"`
	ExpiresAt  time.Time  `bson:"expires_at" json:"expiresAt"`
	LastActive time.Time  `bson:"last_active" json:"lastActive"`
	IsActive   bool       `bson:"is_active" json:"isActive"`
}

// Valid reports whether the session is usable at the given time.
func (s Session) Valid(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}

// Device returns a human-readable label for session listings.
func (s Session) Device() string {
	return useragent.ShortIdentifier(s.DeviceInfo.UserAgent)
}

// New creates a session record with a fresh random token. Admin and regular
// sessions share the same TTL.
func New(userID uuid.UUID, isAdmin bool, info DeviceInfo, ttl time.Duration) (Session, error) {
	token, err := generateToken()
	if err != nil {
		return Session{}, errors.Join(ErrTokenGeneration, err)
	}

	if info.Platform == "" {
		info.Platform = useragent.Detect(info.UserAgent)
	}

	now := time.Now()
	return Session{
		Token:      token,
		UserID:     userID,
		IsAdmin:    isAdmin,
		DeviceInfo: info,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
		LastActive: now,
		IsActive:   true,
	}, nil
}

// generateToken returns the fixed prefix plus 256 bits of randomness encoded
// as base64url without padding.
func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return TokenPrefix + base64.RawURLEncoding.EncodeToString(b), nil
}
