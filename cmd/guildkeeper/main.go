package main

import (
	"context"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/scrims-network/guildkeeper/pkg/api"
	"github.com/scrims-network/guildkeeper/pkg/async"
	"github.com/scrims-network/guildkeeper/pkg/audit"
	"github.com/scrims-network/guildkeeper/pkg/config"
	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/guild"
	"github.com/scrims-network/guildkeeper/pkg/messenger"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/permissions"
	"github.com/scrims-network/guildkeeper/pkg/positions"
	"github.com/scrims-network/guildkeeper/pkg/profiles"
	"github.com/scrims-network/guildkeeper/pkg/rejoin"
	"github.com/scrims-network/guildkeeper/pkg/rolesync"
	"github.com/scrims-network/guildkeeper/pkg/store"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	metrics := observability.InitMetrics()

	syncLog := logrus.New()
	syncLog.SetFormatter(&logrus.JSONFormatter{})
	syncLog.SetOutput(os.Stdout)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Document store
	mongoClient, err := store.ConnectMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logger.WithError(err).Error("failed to connect to mongo")
		os.Exit(1)
	}

	// Redis is optional; the messenger degrades to local-only without it
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("redis unreachable, continuing without it")
			redisClient = nil
		}
	}
	msgr := messenger.New(redisClient, logger)

	// Declared positions and rank tiers
	registry := positions.NewRegistry()
	pf, err := config.LoadPositions(cfg.PositionsFile)
	if err != nil {
		logger.WithError(err).Error("failed to load positions file")
		os.Exit(1)
	}
	applyPositions(registry, pf)
	if err := config.WatchPositions(ctx, cfg.PositionsFile, logger, func(pf *config.PositionsFile) {
		applyPositions(registry, pf)
	}); err != nil {
		logger.WithError(err).Warn("positions file watching unavailable")
	}

	// Live guild directory. The gateway adapter feeding it is deployed
	// separately; until it connects, checks against uncached guilds are
	// indeterminate.
	dir := guild.NewMemory(cfg.Guild.ClientUserID)

	// Caches and their change feeds
	cacheRegistry := doccache.NewRegistry(logger)

	bindingColl := store.NewMongoCollection[positions.Binding](mongoClient, "position_bindings")
	bindingCache := doccache.New[positions.Binding]("position_bindings", doccache.WithMetrics[positions.Binding](metrics))
	bindingFeed := store.NewFeed(bindingColl, bindingCache, func(b *positions.Binding) string { return b.ID },
		store.WithFeedMetrics[positions.Binding](metrics), store.WithFeedLogger[positions.Binding](logger))
	bindingFeed.Register(cacheRegistry)

	transientColl := store.NewMongoCollection[positions.TransientRole](mongoClient, "transient_roles")
	transientCache := doccache.New[positions.TransientRole]("transient_roles", doccache.WithMetrics[positions.TransientRole](metrics))
	transientFeed := store.NewFeed(transientColl, transientCache, func(t *positions.TransientRole) string { return t.ID },
		store.WithFeedMetrics[positions.TransientRole](metrics), store.WithFeedLogger[positions.TransientRole](logger))
	transientFeed.Register(cacheRegistry)

	snapshotColl := store.NewMongoCollection[rejoin.Snapshot](mongoClient, "rejoin_roles")
	snapshotCache := doccache.New[rejoin.Snapshot]("rejoin_roles", doccache.WithMetrics[rejoin.Snapshot](metrics))
	snapshotFeed := store.NewFeed(snapshotColl, snapshotCache, func(s *rejoin.Snapshot) string { return s.UserID },
		store.WithFeedMetrics[rejoin.Snapshot](metrics), store.WithFeedLogger[rejoin.Snapshot](logger))
	snapshotFeed.Register(cacheRegistry)

	profileColl := store.NewMongoCollection[profiles.UserProfile](mongoClient, "user_profiles")
	profileCache := doccache.New[profiles.UserProfile]("user_profiles", doccache.WithMetrics[profiles.UserProfile](metrics))
	profileFeed := store.NewFeed(profileColl, profileCache, func(p *profiles.UserProfile) string { return p.UserID },
		store.WithFeedMetrics[profiles.UserProfile](metrics), store.WithFeedLogger[profiles.UserProfile](logger))
	profileFeed.Register(cacheRegistry)

	// Derived indexes attach before the feeds start, so the initial load
	// replays completely into them.
	index := positions.NewIndex(dir)
	index.Attach(bindingCache)
	transientSet := positions.NewTransientSet()
	transientSet.Attach(transientCache)
	nameIndex := profiles.NewNameIndex()
	nameIndex.Attach(profileCache)

	feedMode := store.FeedMode(cfg.Mongo.FeedMode)
	bindingFeed.Start(ctx, feedMode)
	transientFeed.Start(ctx, feedMode)
	snapshotFeed.Start(ctx, feedMode)
	profileFeed.Start(ctx, feedMode)

	bindings := positions.NewBindingStore(bindingColl, bindingCache, registry, logger)
	snapshots := rejoin.NewStore(snapshotColl, snapshotCache, dir, logger, metrics)
	engine := permissions.NewEngine(dir, index, registry, transientSet, snapshots, cfg.Guild.HostGuildID, logger, metrics)

	syncer := rolesync.NewSynchronizer(dir, engine, index, registry, transientSet, snapshots, cfg.Guild.SyncGuildIDs, syncLog, metrics)
	if err := syncer.Start(ctx, cfg.Guild.SyncSchedule); err != nil {
		logger.WithError(err).Error("invalid sync schedule")
		os.Exit(1)
	}

	bus := audit.NewBus(logger)
	stopAudit := syncer.AttachAudit(ctx, bus)
	defer stopAudit()

	// Reload broadcasts from peer processes
	stopReload := msgr.Subscribe(ctx, messenger.ChannelReload, func(string) {
		async.SafeGo(ctx, time.Minute, "broadcast reload", cacheRegistry.ReloadAll)
	})
	defer stopReload()

	health := observability.NewHealthChecker(mongoClient, redisClient, cacheRegistry.Gates()...)
	server := api.NewServer(cfg.Server, engine, index, bindings, cacheRegistry, syncer, msgr, health, logger, metrics)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("http server failed")
			cancel()
		}
	}()

	shutdown := observability.NewShutdownManager(logger, server.HTTPServer(), cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		syncer.Stop()
		return nil
	})
	shutdown.RegisterShutdownFunc(mongoClient.Disconnect)
	if redisClient != nil {
		shutdown.RegisterShutdownFunc(func(context.Context) error { return redisClient.Close() })
	}

	if err := shutdown.WaitForShutdown(); err != nil {
		logger.WithError(err).Error("shutdown incomplete")
		os.Exit(1)
	}
}

// applyPositions loads the declared positions and rank tiers into the registry
func applyPositions(registry *positions.Registry, pf *config.PositionsFile) {
	registry.DeclareAll(pf.Positions...)
	registry.SetRanks(pf.Ranks)
}
