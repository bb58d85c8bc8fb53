package rolesync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/scrims-network/guildkeeper/pkg/async"
	"github.com/scrims-network/guildkeeper/pkg/guild"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/permissions"
	"github.com/scrims-network/guildkeeper/pkg/positions"
	"github.com/scrims-network/guildkeeper/pkg/rejoin"
)

const (
	syncWorkers    = 4
	memberSyncTime = 30 * time.Second
)

// Synchronizer drives role reconciliation. Entitlement is always computed
// against the host guild; role mutations happen in whichever guild is
// being reconciled.
type Synchronizer struct {
	dir          guild.Directory
	engine       *permissions.Engine
	index        *positions.Index
	registry     *positions.Registry
	transient    *positions.TransientSet
	snapshots    *rejoin.Store
	syncGuildIDs []string

	log     *logrus.Entry
	metrics *observability.Metrics

	cron *cron.Cron
}

func NewSynchronizer(dir guild.Directory, engine *permissions.Engine, index *positions.Index, registry *positions.Registry, transient *positions.TransientSet, snapshots *rejoin.Store, syncGuildIDs []string, log *logrus.Logger, metrics *observability.Metrics) *Synchronizer {
	return &Synchronizer{
		dir:          dir,
		engine:       engine,
		index:        index,
		registry:     registry,
		transient:    transient,
		snapshots:    snapshots,
		syncGuildIDs: syncGuildIDs,
		log:          log.WithField("component", "rolesync"),
		metrics:      metrics,
	}
}

// SyncMember reconciles one member's roles in one guild against their
// entitlements. Returns the role ids gained and lost. Per-role mutation
// failures are logged and skipped; they never abort the rest.
func (s *Synchronizer) SyncMember(ctx context.Context, guildID, userID string) (gained, lost []string, err error) {
	member := s.dir.Member(guildID, userID)
	if member == nil {
		return nil, nil, nil
	}

	byPosition := make(map[string][]*positions.Binding)
	for _, b := range s.index.GuildBindings(guildID) {
		byPosition[b.Position] = append(byPosition[b.Position], b)
	}
	if len(byPosition) == 0 {
		return nil, nil, nil
	}

	forbiddenRanks := make(map[string]bool)
	for _, rank := range s.engine.ForbiddenPositions(userID, s.engine.HostGuildID()) {
		forbiddenRanks[rank] = true
	}

	// A role bound to several positions stays as long as any entitled
	// position wants it.
	wanted := make(map[string]bool)
	removable := make(map[string]bool)

	for position, bindings := range byPosition {
		entitled := false
		if forbiddenRanks[position] {
			// Ranks do not stack: lower tiers are revoked even when
			// still technically earned.
			entitled = false
		} else {
			res := s.engine.HasOnlinePosition(userID, position, s.engine.HostGuildID())
			if res.Indeterminate() {
				// Unknown entitlement must not strip roles.
				continue
			}
			entitled = res.Granted()
		}

		for _, role := range s.index.ResolvePermitted(bindings) {
			if s.transient.IsTransient(role.ID) {
				continue
			}
			if entitled {
				wanted[role.ID] = true
			} else {
				removable[role.ID] = true
			}
		}
	}

	for roleID := range wanted {
		if member.HasRoleID(roleID) {
			continue
		}
		if err := s.dir.AddRole(ctx, guildID, userID, roleID, "role sync"); err != nil {
			s.countRoleOp("add", "error")
			s.log.WithError(err).WithFields(logrus.Fields{
				"guild_id": guildID,
				"user_id":  userID,
				"role_id":  roleID,
			}).Warn("failed to add role, skipping")
			continue
		}
		s.countRoleOp("add", "ok")
		gained = append(gained, roleID)
	}

	for roleID := range removable {
		if wanted[roleID] || !member.HasRoleID(roleID) {
			continue
		}
		if err := s.dir.RemoveRole(ctx, guildID, userID, roleID, "role sync"); err != nil {
			s.countRoleOp("remove", "error")
			s.log.WithError(err).WithFields(logrus.Fields{
				"guild_id": guildID,
				"user_id":  userID,
				"role_id":  roleID,
			}).Warn("failed to remove role, skipping")
			continue
		}
		s.countRoleOp("remove", "ok")
		lost = append(lost, roleID)
	}

	if len(gained) > 0 {
		s.log.WithFields(logrus.Fields{
			"guild_id": guildID,
			"user_id":  userID,
			"roles":    gained,
		}).Info("roles gained")
	}
	if len(lost) > 0 {
		s.log.WithFields(logrus.Fields{
			"guild_id": guildID,
			"user_id":  userID,
			"roles":    lost,
		}).Info("roles lost")
	}
	return gained, lost, nil
}

// SyncUser reconciles one user across every configured sync guild
func (s *Synchronizer) SyncUser(ctx context.Context, userID string) error {
	for _, guildID := range s.syncGuildIDs {
		if _, _, err := s.SyncMember(ctx, guildID, userID); err != nil {
			return err
		}
	}
	return nil
}

// RunFull reconciles every member of every configured sync guild. The
// trigger label distinguishes cron runs from operator-initiated ones.
func (s *Synchronizer) RunFull(ctx context.Context, trigger string) {
	start := time.Now()
	pool := async.NewWorkerPool(ctx, syncWorkers, "member sync")

	total := 0
	for _, guildID := range s.syncGuildIDs {
		for _, member := range s.dir.Members(guildID) {
			if member.IsBot {
				continue
			}
			gid, uid := guildID, member.UserID
			pool.Submit(func(ctx context.Context) error {
				_, _, err := s.SyncMember(ctx, gid, uid)
				return err
			})
			total++
		}
	}

	failed := pool.Wait()
	result := "ok"
	if failed > 0 {
		result = "partial"
	}
	if s.metrics != nil {
		s.metrics.SyncRunsTotal.WithLabelValues(trigger, result).Inc()
		s.metrics.SyncRunDuration.Observe(time.Since(start).Seconds())
	}
	s.log.WithFields(logrus.Fields{
		"trigger":  trigger,
		"members":  total,
		"failed":   failed,
		"duration": time.Since(start).String(),
	}).Info("full role sync completed")
}

// Start begins the periodic full sync on the given cron schedule
func (s *Synchronizer) Start(ctx context.Context, schedule string) error {
	s.cron = cron.New()
	_, err := s.cron.AddFunc(schedule, func() {
		async.SafeGo(ctx, 10*time.Minute, "scheduled role sync", func(ctx context.Context) error {
			s.RunFull(ctx, "cron")
			return nil
		})
	})
	if err != nil {
		return err
	}
	s.cron.Start()
	s.log.WithField("schedule", schedule).Info("role sync scheduled")
	return nil
}

// Stop halts the periodic sync and waits for a running job to finish
func (s *Synchronizer) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *Synchronizer) countRoleOp(operation, result string) {
	if s.metrics != nil {
		s.metrics.SyncRoleOpsTotal.WithLabelValues(operation, result).Inc()
	}
}
