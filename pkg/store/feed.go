package store

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/scrims-network/guildkeeper/pkg/async"
	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/observability"
)

// FeedMode selects how a feed keeps its cache synchronized
type FeedMode string

const (
	// ModeStreaming subscribes to the collection's change stream
	ModeStreaming FeedMode = "streaming"
	// ModePolling re-reads the full collection after every mutation
	// issued through this process's collection handle
	ModePolling FeedMode = "polling"
)

// Feed keeps one document cache synchronized with one collection
type Feed[T any] struct {
	coll    Collection[T]
	cache   *doccache.Cache[T]
	key     func(*T) string
	logger  *observability.Logger
	metrics *observability.Metrics

	// serializes full reloads; a streamed update racing a reload is
	// resolved last-writer-wins at the cache
	reloadMu sync.Mutex
}

// FeedOption configures a Feed
type FeedOption[T any] func(*Feed[T])

// WithFeedMetrics wires feed counters into the given metrics instance
func WithFeedMetrics[T any](m *observability.Metrics) FeedOption[T] {
	return func(f *Feed[T]) { f.metrics = m }
}

// WithFeedLogger overrides the default logger
func WithFeedLogger[T any](l *observability.Logger) FeedOption[T] {
	return func(f *Feed[T]) { f.logger = l.WithComponent("feed").WithField("collection", f.coll.Name()) }
}

// NewFeed creates a feed for the collection/cache pair. key extracts the
// canonical string id from a document.
func NewFeed[T any](coll Collection[T], cache *doccache.Cache[T], key func(*T) string, opts ...FeedOption[T]) *Feed[T] {
	f := &Feed[T]{
		coll:   coll,
		cache:  cache,
		key:    key,
		logger: observability.NewLogger(observability.InfoLevel, nil).WithComponent("feed").WithField("collection", coll.Name()),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Register adds this feed's reload to the cache registry
func (f *Feed[T]) Register(registry *doccache.Registry) {
	registry.Register(f.cache.Name(), f.Reload, f.cache.Initialized())
}

// Start performs the initial full load and begins synchronization in the
// requested mode. A failed change stream subscription is a warning, not an
// error: the cache then holds its last-known-good state until the next
// externally triggered reload.
func (f *Feed[T]) Start(ctx context.Context, mode FeedMode) {
	if err := f.Reload(ctx); err != nil {
		f.logger.WithError(err).Error("initial cache load failed")
	}

	switch mode {
	case ModeStreaming:
		stream, err := f.coll.Watch(ctx)
		if err != nil {
			if errors.Is(err, ErrWatchUnsupported) {
				f.logger.Warn("change streams unsupported, falling back to polling")
				f.startPolling(ctx)
				return
			}
			f.logger.WithError(err).Warnf("failed to watch %s collection", f.coll.Name())
			if f.metrics != nil {
				f.metrics.SetFeedMode(f.coll.Name(), "")
			}
			return
		}
		if f.metrics != nil {
			f.metrics.SetFeedMode(f.coll.Name(), "streaming")
		}
		go f.consume(ctx, stream)

	case ModePolling:
		f.startPolling(ctx)
	}
}

func (f *Feed[T]) startPolling(ctx context.Context) {
	if f.metrics != nil {
		f.metrics.SetFeedMode(f.coll.Name(), "polling")
	}
	f.coll.OnMutation(func() {
		async.SafeGo(ctx, 30*time.Second, fmt.Sprintf("%s cache resync", f.coll.Name()), f.Reload)
	})
}

func (f *Feed[T]) consume(ctx context.Context, stream ChangeStream[T]) {
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := stream.Close(closeCtx); err != nil {
			f.logger.WithError(err).Debug("change stream close failed")
		}
	}()

	for {
		change, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			f.logger.WithError(err).Warn("change stream broke, cache updates suspended until next reload")
			return
		}
		f.apply(ctx, change)
	}
}

func (f *Feed[T]) apply(ctx context.Context, change Change[T]) {
	if f.metrics != nil {
		f.metrics.FeedEventsTotal.WithLabelValues(f.coll.Name(), string(change.Kind)).Inc()
	}

	switch change.Kind {
	case ChangeInsert:
		f.cache.Set(change.ID, change.Doc)
	case ChangeUpdate:
		if change.Doc != nil {
			f.cache.Set(change.ID, change.Doc)
			break
		}
		// post-update document unavailable, re-fetch the one record
		doc, err := f.coll.FindOne(ctx, change.ID)
		if errors.Is(err, ErrNotFound) {
			f.cache.Delete(change.ID)
			break
		}
		if err != nil {
			f.logger.WithError(err).WithField("id", change.ID).Warn("post-update re-fetch failed")
			return
		}
		f.cache.Set(change.ID, doc)
	case ChangeDelete:
		f.cache.Delete(change.ID)
	}

	f.cache.TriggerReloaded()
}

// Reload performs a full find-all/diff/replace resync. Unchanged documents
// (by deep equality) produce no cache events; a failed find keeps the
// existing cache contents.
func (f *Feed[T]) Reload(ctx context.Context) error {
	f.reloadMu.Lock()
	defer f.reloadMu.Unlock()

	start := time.Now()
	docs, err := f.coll.Find(ctx)
	if err != nil {
		if f.metrics != nil {
			f.metrics.CacheReloadsTotal.WithLabelValues(f.coll.Name(), "error").Inc()
		}
		return fmt.Errorf("reload %s: %w", f.coll.Name(), err)
	}

	fresh := make(map[string]*T, len(docs))
	for _, doc := range docs {
		fresh[f.key(doc)] = doc
	}

	for _, key := range f.cache.Keys() {
		if _, ok := fresh[key]; !ok {
			f.cache.Delete(key)
		}
	}

	for _, doc := range docs {
		key := f.key(doc)
		existing := f.cache.Get(key)
		if existing == nil || !reflect.DeepEqual(*existing, *doc) {
			f.cache.Set(key, doc)
		}
	}

	f.cache.TriggerReloaded()

	if f.metrics != nil {
		f.metrics.CacheReloadsTotal.WithLabelValues(f.coll.Name(), "ok").Inc()
		f.metrics.CacheReloadDuration.WithLabelValues(f.coll.Name()).Observe(time.Since(start).Seconds())
	}
	return nil
}
