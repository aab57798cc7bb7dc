package twofactor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/user"
	"github.com/dmitrymomot/melodix/pkg/totp"
)

// Verifier checks exactly one presented second factor against a user's
// security profile and password credential. It reports which method
// succeeded so callers can log it; every failure collapses into
// ErrInvalidCode so the response never reveals whether a code was wrong,
// spent, or expired.
type Verifier struct {
	profiles Store
	users    user.Store
	encKey   []byte
	now      func() time.Time
}

// NewVerifier creates a verifier. The encryption key decrypts stored TOTP
// seeds and must be the same 32-byte key used at enrollment.
func NewVerifier(profiles Store, users user.Store, encKey []byte) *Verifier {
	return &Verifier{
		profiles: profiles,
		users:    users,
		encKey:   encKey,
		now:      time.Now,
	}
}

// Verify validates a single factor for the user. The method names the
// factor the caller claims to present; a blank method falls back to trying
// TOTP first, then backup, then temp codes, which keeps older clients that
// send only a code working.
func (v *Verifier) Verify(ctx context.Context, userID uuid.UUID, method Method, code string) (Method, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrInvalidCode
	}

	switch method {
	case MethodTOTP:
		return MethodTOTP, v.verifyTOTP(ctx, userID, code)
	case MethodBackupCode:
		return MethodBackupCode, v.profiles.ConsumeBackupCode(ctx, userID, normalizeCode(code), v.now().UTC())
	case MethodTempCode:
		return MethodTempCode, v.profiles.ConsumeTempCode(ctx, userID, normalizeCode(code), v.now().UTC())
	case "":
		if err := v.verifyTOTP(ctx, userID, code); err == nil {
			return MethodTOTP, nil
		}
		now := v.now().UTC()
		if err := v.profiles.ConsumeBackupCode(ctx, userID, normalizeCode(code), now); err == nil {
			return MethodBackupCode, nil
		}
		if err := v.profiles.ConsumeTempCode(ctx, userID, normalizeCode(code), now); err == nil {
			return MethodTempCode, nil
		}
		return "", ErrInvalidCode
	default:
		return "", ErrInvalidCode
	}
}

func (v *Verifier) verifyTOTP(ctx context.Context, userID uuid.UUID, code string) error {
	cred, err := v.users.Credential(ctx, userID)
	if err != nil {
		if errors.Is(err, user.ErrCredentialNotFound) {
			return ErrInvalidCode
		}
		return fmt.Errorf("twofactor: load credential: %w", err)
	}
	if !cred.TOTPEnabled() {
		return ErrInvalidCode
	}

	secret, err := totp.DecryptSecret(cred.TOTPSecretEncrypted, v.encKey)
	if err != nil {
		return fmt.Errorf("twofactor: decrypt totp seed: %w", err)
	}

	ok, err := totp.Validate(secret, code, v.now())
	if err != nil || !ok {
		return ErrInvalidCode
	}
	return nil
}

// Backup and temp codes are entered by hand; tolerate lowercase input.
func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
