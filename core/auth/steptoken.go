package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"time"

	"github.com/google/uuid"
)

// DefaultStepTokenTTL bounds the gap between password entry and second
// factor. A server restart inside this window only forces the user to
// restart login; no security state is lost.
const DefaultStepTokenTTL = 5 * time.Minute

var (
	// ErrStepTokenNotFound is returned when a step token is absent or past
	// its TTL. Both cases force a restart at step 1.
	ErrStepTokenNotFound = errors.New("step token not found")
)

// StepToken bridges the two steps of login: it proves the password was
// already verified, nothing more. It is deliberately ephemeral.
type StepToken struct {
	Token       string    `json:"token"`
	UserID      uuid.UUID `json:"userId"`
	Fingerprint string    `json:"fingerprint"`
	IsAdmin     bool      `json:"isAdmin"`
	CreatedAt   time.Time `json:"createdAt"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// Expired reports whether the token is past its TTL.
func (t StepToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// StepTokenStore holds in-flight login state between step 1 and step 2.
// The in-memory implementation is process-local: multi-instance
// deployments need sticky sessions at the load balancer or the Redis
// implementation so both steps see the same table.
type StepTokenStore interface {
	// Save stores the token until its expiry.
	Save(ctx context.Context, token *StepToken) error

	// Find returns the token, or ErrStepTokenNotFound when it is absent
	// or already expired.
	Find(ctx context.Context, token string) (*StepToken, error)

	// Delete consumes the token.
	Delete(ctx context.Context, token string) error

	// Sweep drops expired tokens. Called opportunistically on step-1
	// logins rather than from a dedicated timer.
	Sweep(ctx context.Context, now time.Time) error
}

func generateStepToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
