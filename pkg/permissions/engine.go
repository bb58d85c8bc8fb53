package permissions

import (
	"context"
	"fmt"
	"time"

	"github.com/scrims-network/guildkeeper/pkg/guild"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/positions"
	"github.com/scrims-network/guildkeeper/pkg/rejoin"
)

// Permissions describes what a caller requires. Any one satisfied
// condition grants access; an empty descriptor grants unconditionally,
// so callers must supply at least one constraint to actually restrict.
type Permissions struct {
	Positions     []string
	PositionLevel string
}

// Empty reports whether the descriptor carries no constraints
func (p Permissions) Empty() bool {
	return len(p.Positions) == 0 && p.PositionLevel == ""
}

// Engine resolves position and permission checks. All check methods read
// only in-memory state and never block.
type Engine struct {
	dir         guild.Directory
	index       *positions.Index
	registry    *positions.Registry
	transient   *positions.TransientSet
	snapshots   *rejoin.Store
	hostGuildID string
	logger      *observability.Logger
	metrics     *observability.Metrics
}

func NewEngine(dir guild.Directory, index *positions.Index, registry *positions.Registry, transient *positions.TransientSet, snapshots *rejoin.Store, hostGuildID string, logger *observability.Logger, metrics *observability.Metrics) *Engine {
	return &Engine{
		dir:         dir,
		index:       index,
		registry:    registry,
		transient:   transient,
		snapshots:   snapshots,
		hostGuildID: hostGuildID,
		logger:      logger.WithComponent("permissions"),
		metrics:     metrics,
	}
}

// HostGuildID returns the guild whose membership is authoritative
func (e *Engine) HostGuildID() string { return e.hostGuildID }

// HasPosition reports whether the user holds the position in the guild,
// falling back to their rejoin snapshot when they are not a live member.
func (e *Engine) HasPosition(userID, position, guildID string) Result {
	return e.observe(position, e.check(userID, position, guildID, false))
}

// HasOnlinePosition is HasPosition with the snapshot fallback disabled.
// Used whenever a stale grant must not count.
func (e *Engine) HasOnlinePosition(userID, position, guildID string) Result {
	return e.observe(position, e.check(userID, position, guildID, true))
}

func (e *Engine) observe(position string, r Result) Result {
	if e.metrics != nil {
		e.metrics.PermissionChecksTotal.WithLabelValues(position, r.Outcome().String()).Inc()
	}
	return r
}

func (e *Engine) check(userID, position, guildID string, onlineOnly bool) Result {
	start := time.Now()
	defer func() {
		if e.metrics != nil {
			e.metrics.PermissionCheckDuration.Observe(time.Since(start).Seconds())
		}
	}()

	// The reserved Banned position is answered from the ban list, not
	// from role bindings.
	if position == positions.Banned {
		if !e.dir.GuildCached(guildID) {
			return Unknown()
		}
		if e.dir.IsBanned(guildID, userID) {
			return Grant()
		}
		return Deny()
	}

	// Bans dominate: a banned user holds no other position.
	if e.check(userID, positions.Banned, guildID, onlineOnly).Granted() {
		return Deny()
	}

	bound := e.index.RoleIDs(position, guildID)
	if len(bound) == 0 {
		// No binding configured is indeterminate, not a denial.
		return Unknown()
	}
	if !e.dir.GuildCached(guildID) {
		return Unknown()
	}

	boundSet := make(map[string]bool, len(bound))
	for _, id := range bound {
		boundSet[id] = true
	}

	if member := e.dir.Member(guildID, userID); member != nil {
		for _, roleID := range member.RoleIDs {
			if boundSet[roleID] {
				return Grant()
			}
		}
		return Deny()
	}

	if onlineOnly {
		return Deny()
	}
	if snap := e.snapshots.Get(userID); snap != nil {
		for _, roleID := range snap.RoleIDs {
			if boundSet[roleID] && !e.transient.IsTransient(roleID) {
				return Grant()
			}
		}
	}
	return Deny()
}

// HasPositionLevel checks a hierarchy-aware position: the user qualifies
// by holding a bound role, or by holding any guild role ranked strictly
// above the highest-ranked role bound to the level.
func (e *Engine) HasPositionLevel(userID, positionLevel, guildID string) Result {
	if e.check(userID, positions.Banned, guildID, false).Granted() {
		return e.observe(positionLevel, Deny())
	}

	base := e.check(userID, positionLevel, guildID, false)
	if base.Granted() {
		return e.observe(positionLevel, base)
	}

	pivot := e.highestBoundRole(positionLevel, guildID)
	if pivot == nil {
		return e.observe(positionLevel, base)
	}
	for _, roleID := range e.effectiveRoleIDs(userID, guildID) {
		role := e.dir.Role(guildID, roleID)
		if role != nil && role.Rank > pivot.Rank {
			return e.observe(positionLevel, Grant())
		}
	}
	return e.observe(positionLevel, base)
}

// highestBoundRole resolves the hierarchy pivot for a position level
func (e *Engine) highestBoundRole(position, guildID string) *guild.Role {
	var pivot *guild.Role
	for _, role := range e.index.Roles(position, guildID) {
		if pivot == nil || role.Rank > pivot.Rank {
			pivot = role
		}
	}
	return pivot
}

// effectiveRoleIDs is the user's live role list, or their snapshot roles
// minus transient ones when they are not a member
func (e *Engine) effectiveRoleIDs(userID, guildID string) []string {
	if member := e.dir.Member(guildID, userID); member != nil {
		return member.RoleIDs
	}
	snap := e.snapshots.Get(userID)
	if snap == nil {
		return nil
	}
	var out []string
	for _, roleID := range snap.RoleIDs {
		if !e.transient.IsTransient(roleID) {
			out = append(out, roleID)
		}
	}
	return out
}

// HasPermissions reports whether the user satisfies the descriptor in the
// guild: Administrator rights, any listed position with online semantics,
// or the position level. An empty descriptor always passes.
func (e *Engine) HasPermissions(userID, guildID string, perms Permissions) bool {
	if perms.Empty() {
		return true
	}
	if member := e.dir.Member(guildID, userID); member != nil && member.IsAdmin {
		return true
	}
	for _, position := range perms.Positions {
		if e.HasOnlinePosition(userID, position, guildID).Granted() {
			return true
		}
	}
	if perms.PositionLevel != "" && e.HasPositionLevel(userID, perms.PositionLevel, guildID).Granted() {
		return true
	}
	return false
}

// AddPosition grants a position in the host guild. Live members get the
// bound roles applied with the audit reason; absent users get the role ids
// pushed onto their rejoin snapshot so the grant survives until they rejoin.
func (e *Engine) AddPosition(ctx context.Context, userID, position, reason string) error {
	roles := e.index.PermittedRoles(position, e.hostGuildID)
	if len(roles) == 0 {
		return fmt.Errorf("permissions: no manageable roles bound to %q", position)
	}

	member := e.dir.Member(e.hostGuildID, userID)
	if member == nil {
		roleIDs := make([]string, 0, len(roles))
		for _, role := range roles {
			roleIDs = append(roleIDs, role.ID)
		}
		e.countMutation("add", "snapshot")
		return e.snapshots.PushRoles(ctx, userID, roleIDs)
	}

	for _, role := range roles {
		if member.HasRoleID(role.ID) {
			continue
		}
		if err := e.dir.AddRole(ctx, e.hostGuildID, userID, role.ID, reason); err != nil {
			return fmt.Errorf("permissions: add role %s: %w", role.ID, err)
		}
	}
	e.countMutation("add", "live")
	e.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"position": position,
		"reason":   reason,
	}).Info("position granted")
	return nil
}

// RemovePosition revokes a position in the host guild, mirroring AddPosition
func (e *Engine) RemovePosition(ctx context.Context, userID, position, reason string) error {
	roles := e.index.PermittedRoles(position, e.hostGuildID)
	if len(roles) == 0 {
		return fmt.Errorf("permissions: no manageable roles bound to %q", position)
	}

	member := e.dir.Member(e.hostGuildID, userID)
	if member == nil {
		roleIDs := make([]string, 0, len(roles))
		for _, role := range roles {
			roleIDs = append(roleIDs, role.ID)
		}
		e.countMutation("remove", "snapshot")
		return e.snapshots.PullRoles(ctx, userID, roleIDs)
	}

	for _, role := range roles {
		if !member.HasRoleID(role.ID) {
			continue
		}
		if err := e.dir.RemoveRole(ctx, e.hostGuildID, userID, role.ID, reason); err != nil {
			return fmt.Errorf("permissions: remove role %s: %w", role.ID, err)
		}
	}
	e.countMutation("remove", "live")
	e.logger.WithFields(map[string]interface{}{
		"user_id":  userID,
		"position": position,
		"reason":   reason,
	}).Info("position revoked")
	return nil
}

func (e *Engine) countMutation(operation, target string) {
	if e.metrics != nil {
		e.metrics.PositionMutationsTotal.WithLabelValues(operation, target).Inc()
	}
}

// UserPositions returns every declared position the user holds in the guild
func (e *Engine) UserPositions(userID, guildID string) []string {
	var out []string
	for _, position := range e.registry.Declared() {
		if e.check(userID, position, guildID, false).Granted() {
			out = append(out, position)
		}
	}
	return out
}

// HighestRank returns the highest rank tier the user has earned with
// online semantics, false when they hold none.
func (e *Engine) HighestRank(userID, guildID string) (string, bool) {
	ranks := e.registry.Ranks()
	for i := len(ranks) - 1; i >= 0; i-- {
		if e.check(userID, ranks[i], guildID, true).Granted() {
			return ranks[i], true
		}
	}
	return "", false
}

// ForbiddenPositions returns the rank tiers the user must not hold: every
// tier below their highest earned one. Ranks do not stack.
func (e *Engine) ForbiddenPositions(userID, guildID string) []string {
	highest, ok := e.HighestRank(userID, guildID)
	if !ok {
		return nil
	}
	var forbidden []string
	for _, rank := range e.registry.Ranks() {
		if rank == highest {
			break
		}
		forbidden = append(forbidden, rank)
	}
	return forbidden
}

// MembersWithPosition returns the live members holding the position
func (e *Engine) MembersWithPosition(position, guildID string) []*guild.Member {
	var out []*guild.Member
	for _, member := range e.dir.Members(guildID) {
		if e.check(member.UserID, position, guildID, true).Granted() {
			out = append(out, member)
		}
	}
	return out
}

// UsersWithPosition returns the user ids holding the position, including
// departed users whose snapshot still grants it
func (e *Engine) UsersWithPosition(position, guildID string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, member := range e.MembersWithPosition(position, guildID) {
		seen[member.UserID] = true
		out = append(out, member.UserID)
	}
	for _, snap := range e.snapshots.All() {
		if seen[snap.UserID] || e.dir.Member(guildID, snap.UserID) != nil {
			continue
		}
		if e.check(snap.UserID, position, guildID, false).Granted() {
			out = append(out, snap.UserID)
		}
	}
	return out
}
