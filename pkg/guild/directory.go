package guild

import (
	"context"
)

// Role is one guild role. Rank is the hierarchy position: higher outranks
// lower. Managed roles belong to integrations and are never captured into
// rejoin snapshots or re-applied by the synchronizer.
type Role struct {
	ID      string
	GuildID string
	Name    string
	Rank    int
	Managed bool
	Admin   bool
}

// Member is one guild member with their raw role-id list. RoleIDs
// deliberately excludes the @everyone role.
type Member struct {
	UserID  string
	GuildID string
	Nick    string
	RoleIDs []string
	IsAdmin bool
	IsBot   bool
}

// HasRoleID reports whether the member holds the given role, scanning the
// raw id list (the cheap path; no role object resolution).
func (m *Member) HasRoleID(roleID string) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Directory is the live guild/member cache contract the engine reads and
// the synchronizer mutates through.
type Directory interface {
	// GuildCached reports whether guild data for guildID is loaded.
	// Permission checks against an uncached guild are indeterminate.
	GuildCached(guildID string) bool

	// Member returns the live member, or nil when the user is not a
	// member of the guild (or member data is not loaded)
	Member(guildID, userID string) *Member

	// Members returns all cached members of the guild
	Members(guildID string) []*Member

	// Role resolves a role object, or nil when unknown
	Role(guildID, roleID string) *Role

	// Roles returns all cached roles of the guild
	Roles(guildID string) []*Role

	// IsBanned reports whether the user is on the guild's ban list
	IsBanned(guildID, userID string) bool

	// CanManage reports whether this client may manage the given role
	// (its own top role outranks it and the role is not managed)
	CanManage(guildID, roleID string) bool

	// AddRole grants a role to a member with an audit reason
	AddRole(ctx context.Context, guildID, userID, roleID, reason string) error

	// RemoveRole revokes a role from a member with an audit reason
	RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error

	// ClientUserID returns the user id this client acts as
	ClientUserID() string
}
