package doccache

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/scrims-network/guildkeeper/pkg/observability"
)

// ReloadFunc performs a full find-all/diff/replace resync of one cache
type ReloadFunc func(ctx context.Context) error

// Registry coordinates full resyncs across every registered cache. It is
// constructed once at process start and passed to components explicitly;
// there is no package-level instance.
type Registry struct {
	logger *observability.Logger

	mu      sync.RWMutex
	entries map[string]ReloadFunc
	gates   []*Gate
}

// NewRegistry creates an empty cache registry
func NewRegistry(logger *observability.Logger) *Registry {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Registry{
		logger:  logger.WithComponent("cache-registry"),
		entries: make(map[string]ReloadFunc),
	}
}

// Register adds a cache's reload function under its collection name.
// Registering the same name twice replaces the previous entry.
func (r *Registry) Register(name string, reload ReloadFunc, gate *Gate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = reload
	if gate != nil {
		r.gates = append(r.gates, gate)
	}
}

// Gates returns the initialization gates of all registered caches
func (r *Registry) Gates() []observability.Gate {
	r.mu.RLock()
	defer r.mu.RUnlock()
	gates := make([]observability.Gate, 0, len(r.gates))
	for _, g := range r.gates {
		gates = append(gates, g)
	}
	return gates
}

// ReloadAll resyncs every registered cache concurrently. A failing reload is
// logged and reported but does not prevent the other caches from reloading,
// and never clears a cache's existing contents.
func (r *Registry) ReloadAll(ctx context.Context) error {
	r.mu.RLock()
	entries := make(map[string]ReloadFunc, len(r.entries))
	for name, fn := range r.entries {
		entries[name] = fn
	}
	r.mu.RUnlock()

	g, ctx := errgroup.WithContext(ctx)
	for name, reload := range entries {
		name, reload := name, reload
		g.Go(func() error {
			if err := reload(ctx); err != nil {
				r.logger.WithError(err).WithField("collection", name).Error("cache reload failed")
				return fmt.Errorf("reload %s: %w", name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// AwaitInitialized blocks until every registered cache has completed its
// first full load. Permission decisions made before this returns may be
// indeterminate for normally-populated positions.
func (r *Registry) AwaitInitialized(ctx context.Context) error {
	r.mu.RLock()
	gates := make([]*Gate, len(r.gates))
	copy(gates, r.gates)
	r.mu.RUnlock()

	for _, gate := range gates {
		if err := gate.Await(ctx); err != nil {
			return fmt.Errorf("awaiting %s cache: %w", gate.Name(), err)
		}
	}
	return nil
}
