package user

import (
	"context"

	"github.com/google/uuid"
)

// Store persists user identities and credentials.
type Store interface {
	// Create inserts a new user together with its credential record.
	Create(ctx context.Context, u *User, cred *Credential) error

	// ByID returns the user with the given ID.
	ByID(ctx context.Context, id uuid.UUID) (*User, error)

	// ByUsername returns the user with the given username. Lookup is
	// case-insensitive.
	ByUsername(ctx context.Context, username string) (*User, error)

	// Credential returns the user's secret material.
	Credential(ctx context.Context, userID uuid.UUID) (*Credential, error)

	// UpdateCredential replaces the user's credential record.
	UpdateCredential(ctx context.Context, cred *Credential) error
}
