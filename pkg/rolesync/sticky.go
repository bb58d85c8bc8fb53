package rolesync

import (
	"context"

	"github.com/sirupsen/logrus"
)

// HandleMemberLeave captures the departing member's roles into a rejoin
// snapshot
func (s *Synchronizer) HandleMemberLeave(ctx context.Context, guildID, userID string) error {
	member := s.dir.Member(guildID, userID)
	if member == nil || member.IsBot {
		return nil
	}
	return s.snapshots.Capture(ctx, member)
}

// HandleMemberJoin restores the rejoining member's captured roles. Only
// manageable, non-admin, non-transient roles come back; the snapshot is
// consumed either way.
func (s *Synchronizer) HandleMemberJoin(ctx context.Context, guildID, userID string) error {
	snap, err := s.snapshots.Consume(ctx, userID)
	if err != nil {
		return err
	}
	if snap == nil {
		return nil
	}

	var restored, positionRoles []string
	for _, roleID := range snap.RoleIDs {
		role := s.dir.Role(guildID, roleID)
		if role == nil || role.Admin || !s.dir.CanManage(guildID, roleID) {
			continue
		}
		if s.transient.IsTransient(roleID) {
			continue
		}
		if err := s.dir.AddRole(ctx, guildID, userID, roleID, "sticky roles"); err != nil {
			s.countRoleOp("add", "error")
			s.log.WithError(err).WithFields(logrus.Fields{
				"guild_id": guildID,
				"user_id":  userID,
				"role_id":  roleID,
			}).Warn("failed to restore role, skipping")
			continue
		}
		s.countRoleOp("add", "ok")
		restored = append(restored, roleID)
		if s.isPositionRole(guildID, roleID) {
			positionRoles = append(positionRoles, roleID)
		}
	}

	if len(restored) > 0 {
		s.log.WithFields(logrus.Fields{
			"guild_id":       guildID,
			"user_id":        userID,
			"roles":          restored,
			"position_roles": positionRoles,
		}).Info("restored roles from rejoin snapshot")
	}
	return nil
}

// isPositionRole reports whether the role backs any position binding
func (s *Synchronizer) isPositionRole(guildID, roleID string) bool {
	for _, b := range s.index.GuildBindings(guildID) {
		if b.RoleID == roleID {
			return true
		}
	}
	return false
}
