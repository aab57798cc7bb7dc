package apikey

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists API key records. Lookups return the record regardless of
// active/expiry state; validity is the service's decision so revoked and
// expired keys produce distinct log lines.
type Store interface {
	// Save inserts a new key record.
	Save(ctx context.Context, key *APIKey) error

	// ByHash returns the key whose stored hash matches.
	ByHash(ctx context.Context, keyHash string) (*APIKey, error)

	// ByKeyID returns the key with the given public key ID.
	ByKeyID(ctx context.Context, keyID string) (*APIKey, error)

	// ListByUser returns all of the user's keys, newest first.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]APIKey, error)

	// Revoke deactivates one key.
	Revoke(ctx context.Context, keyID string) error

	// RecordUsage bumps the key's usage counter and last-used timestamp.
	RecordUsage(ctx context.Context, keyID string, at time.Time) error
}
