package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists session records. Implementations must be safe for
// concurrent use and must evaluate validity conditions at the datastore,
// not from cached state: concurrent touch and expiry checks race, and the
// store's conditional update is the single source of truth.
type Store interface {
	// Save inserts a new session record.
	Save(ctx context.Context, sess *Session) error

	// FindActive returns the session for the token only if the record is
	// still marked active at the store level. An expired-but-not-yet-swept
	// session with is_active=false must not be returned.
	FindActive(ctx context.Context, token string) (*Session, error)

	// Touch updates last_active, conditional on the session still being
	// active and unexpired. Returns ErrNotFound when the condition fails.
	Touch(ctx context.Context, token string, at time.Time) error

	// Revoke soft-deletes one session.
	Revoke(ctx context.Context, token string) error

	// RevokeAll soft-deletes every session of the user and returns the count.
	RevokeAll(ctx context.Context, userID uuid.UUID) (int64, error)

	// ListByUser returns the user's active sessions for account pages.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Session, error)

	// DeleteExpired hard-deletes sessions whose TTL anchor (expires_at) has
	// passed and returns the count of deleted records.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
