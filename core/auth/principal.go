// Package auth implements the step-up login protocol and the principal
// model shared by every authenticated request: who the caller is, what
// role they hold, and which credential kind proved it.
package auth

import "github.com/google/uuid"

// Role is the authorization level attached to a principal.
type Role string

const (
	// RoleUser is a regular account limited to its own resources.
	RoleUser Role = "user"
	// RoleAdmin bypasses ownership checks.
	RoleAdmin Role = "admin"
	// RoleService is read-mostly automation with a narrow permission set.
	RoleService Role = "service"
)

// AuthKind records which credential mechanism authenticated the request.
type AuthKind string

const (
	AuthKindSession AuthKind = "session"
	AuthKindAPIKey  AuthKind = "api_key"
)

// Principal is the resolved identity of an authenticated request. Route
// handlers operate on it uniformly and never branch on AuthKind.
type Principal struct {
	UserID   uuid.UUID
	Role     Role
	AuthKind AuthKind

	// KeyID is set only for API key principals, for audit logging.
	KeyID string

	// Permissions is the API key's grant set. Nil for session principals,
	// which carry the user's full authority.
	Permissions []string
}

// HasPermission reports whether the principal may perform resource.action.
// Session principals always may; API key principals are bounded by their
// key's grant set.
func (p Principal) HasPermission(resource, action string) bool {
	if p.AuthKind == AuthKindSession {
		return true
	}
	want := resource + "." + action
	for _, perm := range p.Permissions {
		if perm == want {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Owns reports whether the principal may act on resources belonging to
// the given user. Admins own everything.
func (p Principal) Owns(userID uuid.UUID) bool {
	return p.Role == RoleAdmin || p.UserID == userID
}
