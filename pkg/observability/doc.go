// Package observability provides structured logging, Prometheus metrics,
// health checks and graceful-shutdown helpers for the guildkeeper service.
//
// # Structured Logging
//
//	logger := observability.NewLogger(observability.InfoLevel, os.Stdout)
//	logger.WithField("guild_id", guildID).Info("position roles reloaded")
//
// # Prometheus Metrics
//
//	metrics := observability.InitMetrics()
//	metrics.PermissionChecksTotal.WithLabelValues("Staff", "granted").Inc()
//
// # Health Checks
//
//	checker := observability.NewHealthChecker(mongoPinger, redisClient, gates...)
//	status := checker.Check(ctx)
//
// Liveness and readiness handlers are mounted by pkg/api.
package observability
