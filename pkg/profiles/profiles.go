package profiles

import (
	"strings"
	"sync"
	"time"

	"github.com/scrims-network/guildkeeper/pkg/doccache"
)

// UserProfile is one user's persisted identity record. JoinedAt is the
// first time the user was seen in the host guild, in unix seconds.
type UserProfile struct {
	UserID          string `bson:"_id"`
	Username        string `bson:"username"`
	DisplayName     string `bson:"displayName"`
	JoinedAt        int64  `bson:"joinedAt"`
	LinkedAccountID string `bson:"linkedAccountId,omitempty"`
	UTCOffset       *int   `bson:"utcOffset,omitempty"`
}

// DocumentID returns the cache key for this profile
func (p *UserProfile) DocumentID() string { return p.UserID }

// Joined returns the join time, or the zero time when never recorded
func (p *UserProfile) Joined() time.Time {
	if p.JoinedAt == 0 {
		return time.Time{}
	}
	return time.Unix(p.JoinedAt, 0).UTC()
}

// NameIndex is a derived lookup from lowercased display name to profiles.
// Display names are not unique; lookups return every match.
type NameIndex struct {
	mu     sync.RWMutex
	byName map[string]map[string]*UserProfile
}

func NewNameIndex() *NameIndex {
	return &NameIndex{byName: make(map[string]map[string]*UserProfile)}
}

// Attach subscribes the index to the profile cache
func (ix *NameIndex) Attach(cache *doccache.Cache[UserProfile]) {
	cache.On(doccache.EventAdd, ix.add)
	cache.On(doccache.EventDelete, ix.remove)
}

func (ix *NameIndex) add(p *UserProfile) {
	key := strings.ToLower(p.DisplayName)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	set := ix.byName[key]
	if set == nil {
		set = make(map[string]*UserProfile)
		ix.byName[key] = set
	}
	set[p.UserID] = p
}

func (ix *NameIndex) remove(p *UserProfile) {
	key := strings.ToLower(p.DisplayName)
	ix.mu.Lock()
	defer ix.mu.Unlock()
	delete(ix.byName[key], p.UserID)
}

// ByDisplayName returns every profile whose display name matches,
// case-insensitively
func (ix *NameIndex) ByDisplayName(name string) []*UserProfile {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	set := ix.byName[strings.ToLower(name)]
	out := make([]*UserProfile, 0, len(set))
	for _, p := range set {
		out = append(out, p)
	}
	return out
}
