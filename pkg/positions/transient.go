package positions

import (
	"sync"

	"github.com/scrims-network/guildkeeper/pkg/doccache"
)

// TransientRole marks a role id as short-lived (event or cosmetic roles).
// Transient roles are excluded from rejoin snapshots and from cross-guild
// synchronization.
type TransientRole struct {
	ID string `bson:"_id" json:"_id"`
}

// TransientSet is the live view over the transient-role collection
type TransientSet struct {
	mu  sync.RWMutex
	ids map[string]bool
}

func NewTransientSet() *TransientSet {
	return &TransientSet{ids: make(map[string]bool)}
}

// Attach subscribes the set to the transient-role cache
func (s *TransientSet) Attach(cache *doccache.Cache[TransientRole]) {
	cache.On(doccache.EventAdd, func(t *TransientRole) {
		s.mu.Lock()
		s.ids[t.ID] = true
		s.mu.Unlock()
	})
	cache.On(doccache.EventDelete, func(t *TransientRole) {
		s.mu.Lock()
		delete(s.ids, t.ID)
		s.mu.Unlock()
	})
}

// IsTransient reports whether a role id is marked transient
func (s *TransientSet) IsTransient(roleID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ids[roleID]
}
