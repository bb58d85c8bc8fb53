package doccache

import (
	"context"
	"sync"
	"time"

	"github.com/scrims-network/guildkeeper/pkg/observability"
)

// DefaultReloadWait bounds how long WaitForReload blocks before a caller
// proceeds with possibly-stale data.
const DefaultReloadWait = 500 * time.Millisecond

// Event identifies a cache subscription kind
type Event string

const (
	EventAdd    Event = "add"
	EventDelete Event = "delete"
)

// Listener receives the affected document after a cache mutation
type Listener[T any] func(doc *T)

// Cache is an in-memory mirror of one remote collection, keyed by the
// record's primary id serialized to string. Values are stored by pointer;
// a Set with the identical pointer updates storage without emitting events.
type Cache[T any] struct {
	name   string
	logger *observability.Logger

	mu    sync.RWMutex
	docs  map[string]*T
	order []string

	listenerMu   sync.RWMutex
	nextListener int
	addListeners map[int]Listener[T]
	delListeners map[int]Listener[T]

	reloadMu sync.Mutex
	waiters  []chan struct{}

	initialized *Gate

	metrics *observability.Metrics
}

// Option configures a Cache
type Option[T any] func(*Cache[T])

// WithMetrics wires cache counters into the given metrics instance
func WithMetrics[T any](m *observability.Metrics) Option[T] {
	return func(c *Cache[T]) { c.metrics = m }
}

// WithLogger overrides the default logger
func WithLogger[T any](l *observability.Logger) Option[T] {
	return func(c *Cache[T]) { c.logger = l }
}

// New creates an empty cache for the named collection
func New[T any](name string, opts ...Option[T]) *Cache[T] {
	c := &Cache[T]{
		name:         name,
		logger:       observability.NewLogger(observability.InfoLevel, nil).WithComponent("doccache").WithField("collection", name),
		docs:         make(map[string]*T),
		addListeners: make(map[int]Listener[T]),
		delListeners: make(map[int]Listener[T]),
		initialized:  newGate(name),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the collection name this cache mirrors
func (c *Cache[T]) Name() string { return c.name }

// Get returns the cached document for key, or nil
func (c *Cache[T]) Get(key string) *T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.docs[key]
}

// Has reports whether key is present
func (c *Cache[T]) Has(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.docs[key]
	return ok
}

// Len returns the number of cached documents
func (c *Cache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Keys returns the cached keys in insertion order
func (c *Cache[T]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// Documents returns a snapshot of all cached documents in insertion order
func (c *Cache[T]) Documents() []*T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := make([]*T, 0, len(c.order))
	for _, key := range c.order {
		docs = append(docs, c.docs[key])
	}
	return docs
}

// Filter returns all documents matching the predicate
func (c *Cache[T]) Filter(predicate func(*T) bool) []*T {
	var out []*T
	for _, doc := range c.Documents() {
		if predicate(doc) {
			out = append(out, doc)
		}
	}
	return out
}

// Find returns the first document matching the predicate, or nil
func (c *Cache[T]) Find(predicate func(*T) bool) *T {
	for _, doc := range c.Documents() {
		if predicate(doc) {
			return doc
		}
	}
	return nil
}

// Set replaces or inserts the document under key. When the previous stored
// pointer differs from value, subscribers observe delete(old) followed by
// add(new), in that order. Pointer-equal re-sets update storage silently.
func (c *Cache[T]) Set(key string, value *T) {
	c.mu.Lock()
	old, existed := c.docs[key]
	c.docs[key] = value
	if !existed {
		c.order = append(c.order, key)
	}
	size := len(c.docs)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.CacheOperationsTotal.WithLabelValues(c.name, "set").Inc()
		c.metrics.CacheDocuments.WithLabelValues(c.name).Set(float64(size))
	}

	if old == value {
		return
	}
	if existed {
		c.emit(EventDelete, old)
	}
	c.emit(EventAdd, value)
}

// Delete removes the document under key, emitting delete(old) when present.
// Returns false when the key was absent.
func (c *Cache[T]) Delete(key string) bool {
	c.mu.Lock()
	old, existed := c.docs[key]
	if existed {
		delete(c.docs, key)
		for i, k := range c.order {
			if k == key {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	size := len(c.docs)
	c.mu.Unlock()

	if !existed {
		return false
	}

	if c.metrics != nil {
		c.metrics.CacheOperationsTotal.WithLabelValues(c.name, "delete").Inc()
		c.metrics.CacheDocuments.WithLabelValues(c.name).Set(float64(size))
	}
	c.emit(EventDelete, old)
	return true
}

// On subscribes to add or delete events and returns an unsubscribe function.
// Listener panics are recovered and logged, never propagated.
func (c *Cache[T]) On(event Event, listener Listener[T]) func() {
	c.listenerMu.Lock()
	defer c.listenerMu.Unlock()

	id := c.nextListener
	c.nextListener++

	switch event {
	case EventAdd:
		c.addListeners[id] = listener
	case EventDelete:
		c.delListeners[id] = listener
	}

	return func() {
		c.listenerMu.Lock()
		defer c.listenerMu.Unlock()
		delete(c.addListeners, id)
		delete(c.delListeners, id)
	}
}

func (c *Cache[T]) emit(event Event, doc *T) {
	c.listenerMu.RLock()
	var listeners []Listener[T]
	switch event {
	case EventAdd:
		listeners = make([]Listener[T], 0, len(c.addListeners))
		for _, l := range c.addListeners {
			listeners = append(listeners, l)
		}
	case EventDelete:
		listeners = make([]Listener[T], 0, len(c.delListeners))
		for _, l := range c.delListeners {
			listeners = append(listeners, l)
		}
	}
	c.listenerMu.RUnlock()

	if c.metrics != nil {
		c.metrics.CacheEventsTotal.WithLabelValues(c.name, string(event)).Inc()
	}

	for _, listener := range listeners {
		c.dispatch(event, listener, doc)
	}
}

func (c *Cache[T]) dispatch(event Event, listener Listener[T], doc *T) {
	defer observability.RecoverPanic(c.logger.WithField("event", string(event)), "cache listener")
	listener(doc)
}

// TriggerReloaded marks the cache initialized and releases WaitForReload callers.
// The change feed adapter calls this after every applied change or completed resync.
func (c *Cache[T]) TriggerReloaded() {
	c.initialized.open()

	c.reloadMu.Lock()
	waiters := c.waiters
	c.waiters = nil
	c.reloadMu.Unlock()

	for _, waiter := range waiters {
		close(waiter)
	}
}

// WaitForReload blocks until the next reload signal, the timeout elapses or
// ctx is done, whichever comes first. Zero timeout uses DefaultReloadWait.
// Callers use this to observe their own just-issued write in the mirror.
func (c *Cache[T]) WaitForReload(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultReloadWait
	}

	waiter := make(chan struct{})
	c.reloadMu.Lock()
	c.waiters = append(c.waiters, waiter)
	c.reloadMu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-waiter:
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Initialized returns the one-shot gate that opens after the first
// successful full load.
func (c *Cache[T]) Initialized() *Gate {
	return c.initialized
}
