package positions

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Banned is the reserved position answered from the guild ban list rather
// than role bindings. A banned user holds no other position.
const Banned = "Banned"

// Binding associates a position name with one role in one guild.
// The (guildId, roleId, position) triple is unique; a position with no
// bindings in a guild simply isn't held by anyone there.
type Binding struct {
	ID       string `bson:"_id"`
	Position string `bson:"position"`
	GuildID  string `bson:"guildId"`
	RoleID   string `bson:"roleId"`
}

// NewBinding creates a binding with a fresh id
func NewBinding(position, guildID, roleID string) *Binding {
	return &Binding{
		ID:       uuid.NewString(),
		Position: position,
		GuildID:  guildID,
		RoleID:   roleID,
	}
}

// DocumentID returns the cache key for this binding
func (b *Binding) DocumentID() string { return b.ID }

// Registry holds the positions and rank tiers this deployment declares.
// Constructed once at startup from configuration and passed explicitly to
// the components that need it.
type Registry struct {
	mu       sync.RWMutex
	declared map[string]bool
	ranks    []string // ascending tier order
}

// NewRegistry creates a registry pre-declaring the reserved positions
func NewRegistry() *Registry {
	return &Registry{declared: map[string]bool{Banned: true}}
}

// Declare registers a position name and returns it
func (r *Registry) Declare(position string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.declared[position] = true
	return position
}

// DeclareAll registers every given position name
func (r *Registry) DeclareAll(positions ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range positions {
		r.declared[p] = true
	}
}

// SetRanks declares the mutually-exclusive rank tiers in ascending order
// and registers each tier plus its council and head positions.
func (r *Registry) SetRanks(ranks []string) {
	r.mu.Lock()
	r.ranks = append([]string(nil), ranks...)
	r.mu.Unlock()
	for _, rank := range ranks {
		r.Declare(rank)
		r.Declare(CouncilPosition(rank))
		r.Declare(HeadPosition(rank))
	}
}

// Declared reports whether the position name has been declared
func (r *Registry) IsDeclared(position string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.declared[position]
}

// Declared returns all declared position names, sorted
func (r *Registry) Declared() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.declared))
	for p := range r.declared {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Ranks returns the rank tiers in ascending order
func (r *Registry) Ranks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.ranks...)
}

// CouncilPosition names the council position for a rank tier
func CouncilPosition(rank string) string { return rank + " Council" }

// HeadPosition names the council head position for a rank tier
func HeadPosition(rank string) string { return rank + " Head" }
