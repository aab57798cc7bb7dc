// Package device implements the trusted-device registry: devices a user
// has completed a second-factor login from may skip the second factor on
// their next login.
//
// The fingerprint a client presents is a deterministic but weak signal
// (user agent, locale, screen geometry, timezone, canvas hash). The
// registry treats it as a convenience, never a security boundary:
// security-sensitive operations still require full session auth.
package device

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/twofactor"
)

// ErrNotTrusted is returned when the fingerprint or device token does not
// match any of the user's trusted devices.
var ErrNotTrusted = errors.New("device not trusted")

// Info describes the device being trusted.
type Info struct {
	Name      string
	UserAgent string
	IP        string
}

// Registry manages the trusted-device list stored alongside the user's
// security profile.
type Registry struct {
	store twofactor.Store
	now   func() time.Time
}

// NewRegistry creates a registry over the given profile store.
func NewRegistry(store twofactor.Store) *Registry {
	return &Registry{store: store, now: time.Now}
}

// IsTrusted returns the trusted device matching the fingerprint exactly,
// and refreshes its last-used timestamp.
func (r *Registry) IsTrusted(ctx context.Context, userID uuid.UUID, fingerprint string) (*twofactor.TrustedDevice, error) {
	if fingerprint == "" {
		return nil, ErrNotTrusted
	}

	d, err := r.store.TrustedDevice(ctx, userID, fingerprint)
	if err != nil {
		if errors.Is(err, twofactor.ErrDeviceNotFound) {
			return nil, ErrNotTrusted
		}
		return nil, err
	}

	// Best effort: a failed touch must not block the login shortcut.
	_ = r.store.TouchTrustedDevice(ctx, userID, fingerprint, r.now().UTC())
	return d, nil
}

// Trust records the fingerprint as a trusted device and returns the fresh
// device token the client should hold for temp-code minting. Called at
// registration and after every successful second-factor login from a new
// device.
func (r *Registry) Trust(ctx context.Context, userID uuid.UUID, fingerprint string, info Info) (string, error) {
	token, err := generateDeviceToken()
	if err != nil {
		return "", err
	}

	now := r.now().UTC()
	d := twofactor.TrustedDevice{
		Fingerprint: fingerprint,
		DeviceToken: token,
		Name:        info.Name,
		UserAgent:   info.UserAgent,
		IP:          info.IP,
		CreatedAt:   now,
		LastUsedAt:  now,
	}
	if err := r.store.AddTrustedDevice(ctx, userID, d); err != nil {
		return "", err
	}
	return token, nil
}

// VerifyToken returns the trusted device holding the given device token.
func (r *Registry) VerifyToken(ctx context.Context, userID uuid.UUID, token string) (*twofactor.TrustedDevice, error) {
	if token == "" {
		return nil, ErrNotTrusted
	}

	d, err := r.store.TrustedDeviceByToken(ctx, userID, token)
	if err != nil {
		if errors.Is(err, twofactor.ErrDeviceNotFound) {
			return nil, ErrNotTrusted
		}
		return nil, err
	}
	return d, nil
}

// Revoke removes one trusted device by fingerprint.
func (r *Registry) Revoke(ctx context.Context, userID uuid.UUID, fingerprint string) error {
	err := r.store.RemoveTrustedDevice(ctx, userID, fingerprint)
	if errors.Is(err, twofactor.ErrDeviceNotFound) {
		return ErrNotTrusted
	}
	return err
}

// List returns the user's trusted devices.
func (r *Registry) List(ctx context.Context, userID uuid.UUID) ([]twofactor.TrustedDevice, error) {
	p, err := r.store.Profile(ctx, userID)
	if err != nil {
		if errors.Is(err, twofactor.ErrProfileNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return p.TrustedDevices, nil
}

func generateDeviceToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
