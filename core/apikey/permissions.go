package apikey

import (
	"slices"

	"github.com/google/uuid"

	"github.com/dmitrymomot/melodix/core/auth"
)

// Permission strings are flat "resource.action" pairs.
const (
	PermPlaylistsRead  = "playlists.read"
	PermPlaylistsWrite = "playlists.write"
	PermTracksRead     = "tracks.read"
	PermTracksWrite    = "tracks.write"
	PermUsersRead      = "users.read"
	PermUsersWrite     = "users.write"
)

// DefaultPermissions returns the permission set a freshly created key
// receives for its role. Service keys are read-mostly automation and get
// the narrowest grant.
func DefaultPermissions(role auth.Role) []string {
	switch role {
	case auth.RoleAdmin:
		return []string{
			PermPlaylistsRead, PermPlaylistsWrite,
			PermTracksRead, PermTracksWrite,
			PermUsersRead, PermUsersWrite,
		}
	case auth.RoleService:
		return []string{PermPlaylistsRead, PermTracksRead}
	default:
		return []string{
			PermPlaylistsRead, PermPlaylistsWrite,
			PermTracksRead, PermTracksWrite,
		}
	}
}

// HasPermission is plain set membership over the key's permission list.
func (k APIKey) HasPermission(resource, action string) bool {
	return slices.Contains(k.Permissions, resource+"."+action)
}

// CanAccess layers row-level ownership on top of the permission check:
// user-role keys only reach their own user's resources, admin keys bypass
// ownership entirely, service keys follow the same ownership rule as users.
func (k APIKey) CanAccess(resource, action string, targetUserID uuid.UUID) bool {
	if !k.HasPermission(resource, action) {
		return false
	}
	if k.Role == auth.RoleAdmin {
		return true
	}
	return k.UserID == targetUserID
}
