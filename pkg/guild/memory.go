package guild

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Directory. It backs tests and single-process
// deployments; a gateway adapter feeds the same structure in production.
type Memory struct {
	mu            sync.RWMutex
	clientUserID  string
	clientTopRank map[string]int // guildID -> rank of the client's top role

	guilds  map[string]bool
	members map[string]map[string]*Member // guildID -> userID -> member
	roles   map[string]map[string]*Role   // guildID -> roleID -> role
	bans    map[string]map[string]bool    // guildID -> userID -> banned
}

// NewMemory creates an empty directory acting as clientUserID
func NewMemory(clientUserID string) *Memory {
	return &Memory{
		clientUserID:  clientUserID,
		clientTopRank: make(map[string]int),
		guilds:        make(map[string]bool),
		members:       make(map[string]map[string]*Member),
		roles:         make(map[string]map[string]*Role),
		bans:          make(map[string]map[string]bool),
	}
}

// AddGuild marks a guild as cached and sets the client's top role rank in it
func (d *Memory) AddGuild(guildID string, clientTopRank int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.guilds[guildID] = true
	d.clientTopRank[guildID] = clientTopRank
	if d.members[guildID] == nil {
		d.members[guildID] = make(map[string]*Member)
	}
	if d.roles[guildID] == nil {
		d.roles[guildID] = make(map[string]*Role)
	}
	if d.bans[guildID] == nil {
		d.bans[guildID] = make(map[string]bool)
	}
}

// PutRole inserts or replaces a role
func (d *Memory) PutRole(role *Role) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.roles[role.GuildID] == nil {
		d.roles[role.GuildID] = make(map[string]*Role)
	}
	d.roles[role.GuildID][role.ID] = role
}

// DeleteRole drops a role from the guild's role cache and strips it from
// every member holding it
func (d *Memory) DeleteRole(guildID, roleID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.roles[guildID], roleID)
	for _, member := range d.members[guildID] {
		member.RoleIDs = removeString(member.RoleIDs, roleID)
	}
}

// PutMember inserts or replaces a member
func (d *Memory) PutMember(member *Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.members[member.GuildID] == nil {
		d.members[member.GuildID] = make(map[string]*Member)
	}
	d.members[member.GuildID][member.UserID] = member
}

// RemoveMember drops a member from the directory (left the guild)
func (d *Memory) RemoveMember(guildID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.members[guildID], userID)
}

// SetBanned adds or removes a user from a guild's ban list
func (d *Memory) SetBanned(guildID, userID string, banned bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bans[guildID] == nil {
		d.bans[guildID] = make(map[string]bool)
	}
	if banned {
		d.bans[guildID][userID] = true
	} else {
		delete(d.bans[guildID], userID)
	}
}

// GuildCached reports whether guild data for guildID is loaded
func (d *Memory) GuildCached(guildID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.guilds[guildID]
}

// Member returns the live member, or nil
func (d *Memory) Member(guildID, userID string) *Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.members[guildID][userID]
}

// Members returns all cached members of the guild
func (d *Memory) Members(guildID string) []*Member {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Member, 0, len(d.members[guildID]))
	for _, m := range d.members[guildID] {
		out = append(out, m)
	}
	return out
}

// Role resolves a role object, or nil
func (d *Memory) Role(guildID, roleID string) *Role {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.roles[guildID][roleID]
}

// Roles returns all cached roles of the guild
func (d *Memory) Roles(guildID string) []*Role {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*Role, 0, len(d.roles[guildID]))
	for _, r := range d.roles[guildID] {
		out = append(out, r)
	}
	return out
}

// IsBanned reports whether the user is on the guild's ban list
func (d *Memory) IsBanned(guildID, userID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.bans[guildID][userID]
}

// CanManage reports whether this client may manage the given role
func (d *Memory) CanManage(guildID, roleID string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	role := d.roles[guildID][roleID]
	if role == nil || role.Managed {
		return false
	}
	return d.clientTopRank[guildID] > role.Rank
}

// AddRole grants a role to a member with an audit reason
func (d *Memory) AddRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	member := d.members[guildID][userID]
	if member == nil {
		return fmt.Errorf("member %s not in guild %s", userID, guildID)
	}
	for _, id := range member.RoleIDs {
		if id == roleID {
			return nil
		}
	}
	member.RoleIDs = append(member.RoleIDs, roleID)
	return nil
}

// RemoveRole revokes a role from a member with an audit reason
func (d *Memory) RemoveRole(ctx context.Context, guildID, userID, roleID, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	member := d.members[guildID][userID]
	if member == nil {
		return fmt.Errorf("member %s not in guild %s", userID, guildID)
	}
	member.RoleIDs = removeString(member.RoleIDs, roleID)
	return nil
}

// ClientUserID returns the user id this client acts as
func (d *Memory) ClientUserID() string {
	return d.clientUserID
}

func removeString(list []string, value string) []string {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}
	return out
}
