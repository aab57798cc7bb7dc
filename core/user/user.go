// Package user holds account identities and their password credentials.
//
// The identity record carries only what the authentication flow and
// ownership checks need. Password hashes and encrypted TOTP secrets live
// in a separate credential record so that listing or caching users never
// drags secret material along.
package user

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists is returned on username or email collision.
	ErrAlreadyExists = errors.New("user already exists")
	// ErrCredentialNotFound is returned when a user has no stored credential.
	ErrCredentialNotFound = errors.New("credential not found")
)

// User is an account identity.
type User struct {
	ID        uuid.UUID `bson:"_id" json:"id"`
	Username  string    `bson:"username" json:"username"`
	Email     string    `bson:"email" json:"email"`
	IsAdmin   bool      `bson:"is_admin" json:"isAdmin"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Credential holds a user's secret material. The TOTP secret is stored
// encrypted at rest and is empty until two-factor enrollment completes.
type Credential struct {
	UserID              uuid.UUID `bson:"_id" json:"-"`
	PasswordHash        string    `bson:"password_hash" json:"-"`
	TOTPSecretEncrypted string    `bson:"totp_secret_encrypted" json:"-"`
	UpdatedAt           time.Time `bson:"updated_at" json:"-"`
}

// TOTPEnabled reports whether the user has completed TOTP enrollment.
func (c Credential) TOTPEnabled() bool {
	return c.TOTPSecretEncrypted != ""
}
