package twofactor

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists security profiles. Consume operations are compare-and-set:
// they succeed at most once per code regardless of concurrent callers, and
// implementations must enforce the used=false condition inside the same
// datastore operation that marks the code used.
type Store interface {
	// Profile returns the user's security profile.
	Profile(ctx context.Context, userID uuid.UUID) (*Profile, error)

	// Ensure creates an empty profile if none exists and returns it.
	Ensure(ctx context.Context, userID uuid.UUID) (*Profile, error)

	// ReplaceBackupCodes discards the user's backup codes and installs a
	// fresh set, all unused.
	ReplaceBackupCodes(ctx context.Context, userID uuid.UUID, codes []string) error

	// ConsumeBackupCode atomically marks a matching unused backup code as
	// used. Returns ErrInvalidCode when no such code exists.
	ConsumeBackupCode(ctx context.Context, userID uuid.UUID, code string, at time.Time) error

	// AddTempCode appends a temporary code with its expiry.
	AddTempCode(ctx context.Context, userID uuid.UUID, code TempCode) error

	// ConsumeTempCode atomically marks a matching unused, unexpired temp
	// code as used. An expired code fails identically to an unknown one.
	ConsumeTempCode(ctx context.Context, userID uuid.UUID, code string, at time.Time) error

	// TrustedDevice returns the user's trusted device matching the
	// fingerprint exactly, or ErrDeviceNotFound.
	TrustedDevice(ctx context.Context, userID uuid.UUID, fingerprint string) (*TrustedDevice, error)

	// TrustedDeviceByToken returns the user's trusted device holding the
	// given device token, or ErrDeviceNotFound.
	TrustedDeviceByToken(ctx context.Context, userID uuid.UUID, token string) (*TrustedDevice, error)

	// AddTrustedDevice appends a trusted device, replacing any existing
	// record with the same fingerprint.
	AddTrustedDevice(ctx context.Context, userID uuid.UUID, device TrustedDevice) error

	// TouchTrustedDevice updates the device's last-used timestamp.
	TouchTrustedDevice(ctx context.Context, userID uuid.UUID, fingerprint string, at time.Time) error

	// RemoveTrustedDevice deletes one trusted device by fingerprint.
	RemoveTrustedDevice(ctx context.Context, userID uuid.UUID, fingerprint string) error
}
