// Package twofactor manages a user's second-factor security profile:
// backup codes, short-lived temporary codes, and the trusted-device list
// that lets known devices skip the second factor on login.
//
// Code consumption is single-use under concurrency: stores implement it as
// an atomic conditional update keyed on used=false, never read-then-write,
// so two racing logins can never both succeed with the same code.
package twofactor

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Method identifies which second factor satisfied a verification.
type Method string

const (
	MethodTOTP       Method = "totp"
	MethodBackupCode Method = "backup"
	MethodTempCode   Method = "temp"
)

var (
	// ErrProfileNotFound is returned when a user has no security profile.
	ErrProfileNotFound = errors.New("security profile not found")
	// ErrInvalidCode is returned when the presented factor does not match.
	// It deliberately covers wrong, already-used, and expired codes alike.
	ErrInvalidCode = errors.New("invalid verification code")
	// ErrDeviceNotFound is returned when revoking an unknown device.
	ErrDeviceNotFound = errors.New("trusted device not found")
	// ErrTOTPNotEnrolled is returned when a TOTP factor is presented but
	// the user never completed enrollment.
	ErrTOTPNotEnrolled = errors.New("totp not enrolled")
)

// BackupCode is a single-use recovery code.
type BackupCode struct {
	Code   string     `bson:"code" json:"-"`
	Used   bool       `bson:"used" json:"used"`
	UsedAt *time.Time `bson:"used_at,omitempty" json:"usedAt,omitempty"`
}

// TempCode is a single-use code with its own expiry, delivered out of band.
type TempCode struct {
	Code      string    `bson:"code" json:"-"`
	ExpiresAt time.Time `bson:"expires_at" json:"expiresAt"`
	Used      bool      `bson:"used" json:"used"`
}

// TrustedDevice is a device that may skip the second factor on login.
type TrustedDevice struct {
	Fingerprint string    `bson:"fingerprint" json:"fingerprint"`
	DeviceToken string    `bson:"device_token" json:"-"`
	Name        string    `bson:"name" json:"name"`
	UserAgent   string    `bson:"user_agent" json:"userAgent"`
	IP          string    `bson:"ip" json:"ip"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	LastUsedAt  time.Time `bson:"last_used_at" json:"lastUsedAt"`
}

// Profile is a user's second-factor state.
type Profile struct {
	UserID         uuid.UUID       `bson:"_id" json:"userId"`
	BackupCodes    []BackupCode    `bson:"backup_codes" json:"backupCodes"`
	TempCodes      []TempCode      `bson:"temp_codes" json:"-"`
	TrustedDevices []TrustedDevice `bson:"trusted_devices" json:"trustedDevices"`
	UpdatedAt      time.Time       `bson:"updated_at" json:"updatedAt"`
}

// UnusedBackupCodes counts recovery codes still available.
func (p Profile) UnusedBackupCodes() int {
	var n int
	for _, c := range p.BackupCodes {
		if !c.Used {
			n++
		}
	}
	return n
}

// UnusedTempCodes counts temporary codes that are neither used nor expired.
func (p Profile) UnusedTempCodes(now time.Time) int {
	var n int
	for _, c := range p.TempCodes {
		if !c.Used && now.Before(c.ExpiresAt) {
			n++
		}
	}
	return n
}

// AvailableMethods lists the second-factor methods the user can present
// right now. Reported to the client after step-1 login so it can offer
// the right inputs.
func (p Profile) AvailableMethods(totpEnrolled bool, now time.Time) []Method {
	var methods []Method
	if totpEnrolled {
		methods = append(methods, MethodTOTP)
	}
	if p.UnusedBackupCodes() > 0 {
		methods = append(methods, MethodBackupCode)
	}
	if p.UnusedTempCodes(now) > 0 {
		methods = append(methods, MethodTempCode)
	}
	return methods
}
