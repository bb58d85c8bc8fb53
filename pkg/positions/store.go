package positions

import (
	"context"
	"fmt"

	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/store"
)

// BindingStore persists position bindings and keeps writes consistent with
// the declared-position registry and the live cache.
type BindingStore struct {
	coll     store.Collection[Binding]
	cache    *doccache.Cache[Binding]
	registry *Registry
	logger   *observability.Logger
}

func NewBindingStore(coll store.Collection[Binding], cache *doccache.Cache[Binding], registry *Registry, logger *observability.Logger) *BindingStore {
	return &BindingStore{
		coll:     coll,
		cache:    cache,
		registry: registry,
		logger:   logger.WithComponent("binding-store"),
	}
}

// CreateBinding binds a role to a position in a guild. The (position,
// guild, role) triple is unique: an existing identical binding is returned
// as-is rather than duplicated.
func (s *BindingStore) CreateBinding(ctx context.Context, position, guildID, roleID string) (*Binding, error) {
	if !s.registry.IsDeclared(position) {
		return nil, fmt.Errorf("positions: %q is not a declared position", position)
	}
	for _, existing := range s.cache.Documents() {
		if existing.Position == position && existing.GuildID == guildID && existing.RoleID == roleID {
			return existing, nil
		}
	}

	binding := NewBinding(position, guildID, roleID)
	if err := s.coll.UpsertOne(ctx, binding.ID, binding); err != nil {
		return nil, fmt.Errorf("positions: create binding: %w", err)
	}
	// Optimistic local apply; the change feed confirms it shortly after.
	s.cache.Set(binding.ID, binding)
	s.logger.WithFields(map[string]interface{}{
		"position": position,
		"guild_id": guildID,
		"role_id":  roleID,
	}).Info("position binding created")
	return binding, nil
}

// DeleteBinding removes a binding by id; false when absent
func (s *BindingStore) DeleteBinding(ctx context.Context, id string) (bool, error) {
	deleted, err := s.coll.DeleteOne(ctx, id)
	if err != nil {
		return false, fmt.Errorf("positions: delete binding: %w", err)
	}
	if deleted {
		s.cache.Delete(id)
	}
	return deleted, nil
}

// CascadeDeleteRole drops every binding that references a role that no
// longer exists, for example after a guild role deletion.
func (s *BindingStore) CascadeDeleteRole(ctx context.Context, guildID, roleID string) (int, error) {
	removed := 0
	for _, b := range s.cache.Documents() {
		if b.GuildID != guildID || b.RoleID != roleID {
			continue
		}
		deleted, err := s.DeleteBinding(ctx, b.ID)
		if err != nil {
			return removed, err
		}
		if deleted {
			removed++
		}
	}
	if removed > 0 {
		s.logger.WithFields(map[string]interface{}{
			"guild_id": guildID,
			"role_id":  roleID,
			"removed":  removed,
		}).Info("cascaded role deletion to position bindings")
	}
	return removed, nil
}
