package rejoin

import (
	"context"
	"fmt"

	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/guild"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/store"
)

// Snapshot is the persisted role list for one departed user
type Snapshot struct {
	UserID  string   `bson:"_id"`
	RoleIDs []string `bson:"roles"`
}

// DocumentID returns the cache key for this snapshot
func (s *Snapshot) DocumentID() string { return s.UserID }

// HasRoleID reports whether the snapshot contains the role id
func (s *Snapshot) HasRoleID(roleID string) bool {
	for _, id := range s.RoleIDs {
		if id == roleID {
			return true
		}
	}
	return false
}

// Store captures, consumes and amends rejoin snapshots. Reads for
// permission fallback go through the cache; writes hit the collection and
// are mirrored back by the change feed.
type Store struct {
	coll    store.Collection[Snapshot]
	cache   *doccache.Cache[Snapshot]
	dir     guild.Directory
	logger  *observability.Logger
	metrics *observability.Metrics
}

func NewStore(coll store.Collection[Snapshot], cache *doccache.Cache[Snapshot], dir guild.Directory, logger *observability.Logger, metrics *observability.Metrics) *Store {
	return &Store{
		coll:    coll,
		cache:   cache,
		dir:     dir,
		logger:  logger.WithComponent("rejoin-store"),
		metrics: metrics,
	}
}

// Get returns the cached snapshot for a user, or nil
func (s *Store) Get(userID string) *Snapshot {
	return s.cache.Get(userID)
}

// All returns every cached snapshot
func (s *Store) All() []*Snapshot {
	return s.cache.Documents()
}

// Capture stores a snapshot of the member's roles on leave. Managed roles
// are dropped; they belong to integrations, not to us.
func (s *Store) Capture(ctx context.Context, member *guild.Member) error {
	var kept []string
	for _, roleID := range member.RoleIDs {
		role := s.dir.Role(member.GuildID, roleID)
		if role != nil && role.Managed {
			continue
		}
		kept = append(kept, roleID)
	}
	if len(kept) == 0 {
		// Nothing worth restoring; also clear any stale snapshot.
		if _, err := s.coll.DeleteOne(ctx, member.UserID); err != nil {
			return fmt.Errorf("rejoin: clear snapshot: %w", err)
		}
		s.cache.Delete(member.UserID)
		return nil
	}

	snap := &Snapshot{UserID: member.UserID, RoleIDs: kept}
	if err := s.coll.UpsertOne(ctx, member.UserID, snap); err != nil {
		return fmt.Errorf("rejoin: capture snapshot: %w", err)
	}
	s.cache.Set(member.UserID, snap)
	if s.metrics != nil {
		s.metrics.SnapshotsCaptured.Inc()
	}
	s.logger.WithFields(map[string]interface{}{
		"user_id": member.UserID,
		"roles":   len(kept),
	}).Info("captured rejoin snapshot")
	return nil
}

// Consume returns the snapshot for a rejoining user and deletes it. The
// snapshot is single-use; a second rejoin without a leave sees nothing.
func (s *Store) Consume(ctx context.Context, userID string) (*Snapshot, error) {
	snap, err := s.coll.FindOne(ctx, userID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("rejoin: load snapshot: %w", err)
	}
	if _, err := s.coll.DeleteOne(ctx, userID); err != nil {
		return nil, fmt.Errorf("rejoin: consume snapshot: %w", err)
	}
	s.cache.Delete(userID)
	if s.metrics != nil {
		s.metrics.SnapshotsRestored.Inc()
	}
	return snap, nil
}

// PushRoles appends role ids to a user's snapshot, creating it when absent.
// Used to grant positions to users who are not currently members.
func (s *Store) PushRoles(ctx context.Context, userID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	if err := s.coll.PushField(ctx, userID, "roles", roleIDs); err != nil {
		return fmt.Errorf("rejoin: push roles: %w", err)
	}
	return nil
}

// PullRoles removes role ids from a user's snapshot
func (s *Store) PullRoles(ctx context.Context, userID string, roleIDs []string) error {
	if len(roleIDs) == 0 {
		return nil
	}
	if err := s.coll.PullField(ctx, userID, "roles", roleIDs); err != nil {
		return fmt.Errorf("rejoin: pull roles: %w", err)
	}
	return nil
}
