package positions

import (
	"sync"

	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/guild"
)

// Index is the derived lookup from (position, guild) to bound roles, kept
// in lockstep with the binding cache through its add/delete events. It is
// self-healing: whatever the cache's reload-diff emits, the index replays.
type Index struct {
	dir guild.Directory

	mu sync.RWMutex
	// guildID -> position -> bindingID -> binding
	byGuild map[string]map[string]map[string]*Binding
}

// NewIndex creates an empty index resolving role objects through dir
func NewIndex(dir guild.Directory) *Index {
	return &Index{
		dir:     dir,
		byGuild: make(map[string]map[string]map[string]*Binding),
	}
}

// Attach subscribes the index to a binding cache. Call once, before the
// cache's first load, so the initial replay is complete.
func (ix *Index) Attach(cache *doccache.Cache[Binding]) {
	cache.On(doccache.EventAdd, ix.add)
	cache.On(doccache.EventDelete, ix.remove)
}

func (ix *Index) add(b *Binding) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	guildMap := ix.byGuild[b.GuildID]
	if guildMap == nil {
		guildMap = make(map[string]map[string]*Binding)
		ix.byGuild[b.GuildID] = guildMap
	}
	set := guildMap[b.Position]
	if set == nil {
		set = make(map[string]*Binding)
		guildMap[b.Position] = set
	}
	set[b.ID] = b
}

// remove prunes only the inner set; outer maps are kept to avoid churn
func (ix *Index) remove(b *Binding) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.byGuild[b.GuildID][b.Position], b.ID)
}

// Bindings returns the bindings for a position in a guild
func (ix *Index) Bindings(position, guildID string) []*Binding {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set := ix.byGuild[guildID][position]
	out := make([]*Binding, 0, len(set))
	for _, b := range set {
		out = append(out, b)
	}
	return out
}

// RoleIDs returns the role ids bound to a position in a guild
func (ix *Index) RoleIDs(position, guildID string) []string {
	bindings := ix.Bindings(position, guildID)
	ids := make([]string, 0, len(bindings))
	for _, b := range bindings {
		ids = append(ids, b.RoleID)
	}
	return ids
}

// GuildBindings returns every binding in a guild, flattened
func (ix *Index) GuildBindings(guildID string) []*Binding {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var out []*Binding
	for _, set := range ix.byGuild[guildID] {
		for _, b := range set {
			out = append(out, b)
		}
	}
	return out
}

// Positions returns the distinct positions with at least one binding in any
// guild. The synchronizer reconciles exactly this set.
func (ix *Index) Positions() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	for _, guildMap := range ix.byGuild {
		for position, set := range guildMap {
			if len(set) > 0 && !seen[position] {
				seen[position] = true
				out = append(out, position)
			}
		}
	}
	return out
}

// Roles resolves the bound role objects for a position in a guild,
// dropping bindings whose role no longer exists.
func (ix *Index) Roles(position, guildID string) []*guild.Role {
	var roles []*guild.Role
	for _, b := range ix.Bindings(position, guildID) {
		if role := ix.dir.Role(b.GuildID, b.RoleID); role != nil {
			roles = append(roles, role)
		}
	}
	return roles
}

// PermittedRoles resolves the bound roles this client may actually manage
func (ix *Index) PermittedRoles(position, guildID string) []*guild.Role {
	return ix.ResolvePermitted(ix.Bindings(position, guildID))
}

// ResolvePermitted applies the manage-permission filter to a binding list
func (ix *Index) ResolvePermitted(bindings []*Binding) []*guild.Role {
	var roles []*guild.Role
	for _, b := range bindings {
		role := ix.dir.Role(b.GuildID, b.RoleID)
		if role != nil && ix.dir.CanManage(b.GuildID, b.RoleID) {
			roles = append(roles, role)
		}
	}
	return roles
}
