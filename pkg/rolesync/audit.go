package rolesync

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/scrims-network/guildkeeper/pkg/async"
	"github.com/scrims-network/guildkeeper/pkg/audit"
)

// AttachAudit subscribes the synchronizer to audit events so role and ban
// changes made outside this process still trigger reconciliation for the
// affected user. Returns the unsubscribe function.
func (s *Synchronizer) AttachAudit(ctx context.Context, bus *audit.Bus) func() {
	return bus.Subscribe(func(event audit.Event) {
		switch event.Kind {
		case audit.KindBanAdd, audit.KindBanRemove, audit.KindRoleUpdate:
		default:
			return
		}
		s.log.WithFields(logrus.Fields{
			"kind":     string(event.Kind),
			"guild_id": event.GuildID,
			"user_id":  event.TargetUserID,
			"executor": event.ExecutorID,
		}).Debug("audit event triggered sync")

		userID := event.TargetUserID
		async.SafeGo(ctx, memberSyncTime, "audit-triggered sync", func(ctx context.Context) error {
			// Give the platform cache a moment to reflect the change
			// the audit entry describes.
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return ctx.Err()
			}
			return s.SyncUser(ctx, userID)
		})
	})
}
