package observability

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// Document cache metrics
	CacheOperationsTotal *prometheus.CounterVec
	CacheEventsTotal     *prometheus.CounterVec
	CacheDocuments       *prometheus.GaugeVec
	CacheReloadsTotal    *prometheus.CounterVec
	CacheReloadDuration  *prometheus.HistogramVec

	// Change feed metrics
	FeedEventsTotal *prometheus.CounterVec
	FeedMode        *prometheus.GaugeVec

	// Permission engine metrics
	PermissionChecksTotal   *prometheus.CounterVec
	PermissionCheckDuration prometheus.Histogram
	PositionMutationsTotal  *prometheus.CounterVec

	// Role synchronizer metrics
	SyncRunsTotal     *prometheus.CounterVec
	SyncRoleOpsTotal  *prometheus.CounterVec
	SyncRunDuration   prometheus.Histogram
	SnapshotsCaptured prometheus.Counter
	SnapshotsRestored prometheus.Counter

	// HTTP metrics (admin surface)
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

var (
	metricsInstance *Metrics
	metricsOnce     sync.Once
)

// InitMetrics initializes the process-wide metrics instance
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics(prometheus.NewRegistry())
	})
	return metricsInstance
}

// NewMetricsForTesting creates an isolated metrics instance backed by its own registry
func NewMetricsForTesting() *Metrics {
	return newMetrics(prometheus.NewRegistry())
}

func newMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		CacheOperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_cache_operations_total",
			Help: "Document cache set/delete operations by collection",
		}, []string{"collection", "operation"}),

		CacheEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_cache_events_total",
			Help: "Document cache add/delete events emitted to subscribers",
		}, []string{"collection", "event"}),

		CacheDocuments: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "guildkeeper_cache_documents",
			Help: "Documents currently held per collection cache",
		}, []string{"collection"}),

		CacheReloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_cache_reloads_total",
			Help: "Full cache reloads by collection and result",
		}, []string{"collection", "result"}),

		CacheReloadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guildkeeper_cache_reload_duration_seconds",
			Help:    "Full cache reload duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection"}),

		FeedEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_feed_events_total",
			Help: "Change feed events applied to caches",
		}, []string{"collection", "operation"}),

		FeedMode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "guildkeeper_feed_mode",
			Help: "Active change feed mode per collection (1 for the active mode)",
		}, []string{"collection", "mode"}),

		PermissionChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_permission_checks_total",
			Help: "Permission checks by position and outcome",
		}, []string{"position", "outcome"}),

		PermissionCheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildkeeper_permission_check_duration_seconds",
			Help:    "Permission check duration",
			Buckets: []float64{.000001, .00001, .0001, .001, .01},
		}),

		PositionMutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_position_mutations_total",
			Help: "Position grants and revocations",
		}, []string{"operation", "target"}),

		SyncRunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_sync_runs_total",
			Help: "Role synchronizer runs by trigger and result",
		}, []string{"trigger", "result"}),

		SyncRoleOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_sync_role_ops_total",
			Help: "Roles added or removed during reconciliation",
		}, []string{"operation", "result"}),

		SyncRunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "guildkeeper_sync_run_duration_seconds",
			Help:    "Full role sync duration",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),

		SnapshotsCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guildkeeper_rejoin_snapshots_captured_total",
			Help: "Rejoin role snapshots written on member departure",
		}),

		SnapshotsRestored: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "guildkeeper_rejoin_snapshots_restored_total",
			Help: "Rejoin role snapshots consumed on member rejoin",
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "guildkeeper_http_requests_total",
			Help: "Admin HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "guildkeeper_http_request_duration_seconds",
			Help:    "Admin HTTP request duration",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		registry: registry,
	}

	registry.MustRegister(
		m.CacheOperationsTotal,
		m.CacheEventsTotal,
		m.CacheDocuments,
		m.CacheReloadsTotal,
		m.CacheReloadDuration,
		m.FeedEventsTotal,
		m.FeedMode,
		m.PermissionChecksTotal,
		m.PermissionCheckDuration,
		m.PositionMutationsTotal,
		m.SyncRunsTotal,
		m.SyncRoleOpsTotal,
		m.SyncRunDuration,
		m.SnapshotsCaptured,
		m.SnapshotsRestored,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
	)

	return m
}

// Handler returns the HTTP handler serving this instance's registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// SetFeedMode records the active feed mode for a collection, zeroing the other
func (m *Metrics) SetFeedMode(collection, mode string) {
	for _, known := range []string{"streaming", "polling"} {
		v := 0.0
		if known == mode {
			v = 1.0
		}
		m.FeedMode.WithLabelValues(collection, known).Set(v)
	}
}
