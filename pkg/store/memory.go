package store

import (
	"context"
	"reflect"
	"sync"
)

// mutationHooks fans a post-write signal out to registered listeners
type mutationHooks struct {
	mu  sync.RWMutex
	fns []func()
}

func newMutationHooks() *mutationHooks {
	return &mutationHooks{}
}

func (h *mutationHooks) add(fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.fns = append(h.fns, fn)
}

func (h *mutationHooks) fire() {
	h.mu.RLock()
	fns := make([]func(), len(h.fns))
	copy(fns, h.fns)
	h.mu.RUnlock()
	for _, fn := range fns {
		fn()
	}
}

// MemoryCollection is an in-memory Collection used by tests and by
// single-node deployments without a Mongo server. Array-field push/pull
// requires the document type to expose the field through fieldAccess.
type MemoryCollection[T any] struct {
	name string
	// newDoc constructs an empty document for upserting push targets
	newDoc func(id string) *T
	// arrayField returns a pointer to the named []string field of doc
	arrayField func(doc *T, field string) *[]string

	mu    sync.RWMutex
	docs  map[string]*T
	order []string

	hooks *mutationHooks
}

// NewMemoryCollection creates an empty in-memory collection. newDoc and
// arrayField may be nil when PushField/PullField are never used.
func NewMemoryCollection[T any](name string, newDoc func(id string) *T, arrayField func(doc *T, field string) *[]string) *MemoryCollection[T] {
	return &MemoryCollection[T]{
		name:       name,
		newDoc:     newDoc,
		arrayField: arrayField,
		docs:       make(map[string]*T),
		hooks:      newMutationHooks(),
	}
}

// Name returns the collection name
func (c *MemoryCollection[T]) Name() string { return c.name }

// Find returns copies of every stored document in insertion order
func (c *MemoryCollection[T]) Find(ctx context.Context) ([]*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	docs := make([]*T, 0, len(c.order))
	for _, id := range c.order {
		docs = append(docs, c.clone(c.docs[id]))
	}
	return docs, nil
}

// FindOne returns a copy of the document with the given id
func (c *MemoryCollection[T]) FindOne(ctx context.Context, id string) (*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.docs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c.clone(doc), nil
}

// UpsertOne replaces or inserts the document under id
func (c *MemoryCollection[T]) UpsertOne(ctx context.Context, id string, doc *T) error {
	c.mu.Lock()
	if _, ok := c.docs[id]; !ok {
		c.order = append(c.order, id)
	}
	c.docs[id] = c.clone(doc)
	c.mu.Unlock()
	c.hooks.fire()
	return nil
}

// DeleteOne removes the document under id
func (c *MemoryCollection[T]) DeleteOne(ctx context.Context, id string) (bool, error) {
	c.mu.Lock()
	_, ok := c.docs[id]
	if ok {
		delete(c.docs, id)
		for i, key := range c.order {
			if key == id {
				c.order = append(c.order[:i], c.order[i+1:]...)
				break
			}
		}
	}
	c.mu.Unlock()
	if ok {
		c.hooks.fire()
	}
	return ok, nil
}

// PushField appends values to a string-array field, creating the document
// when absent
func (c *MemoryCollection[T]) PushField(ctx context.Context, id string, field string, values []string) error {
	c.mu.Lock()
	doc, ok := c.docs[id]
	if !ok {
		doc = c.newDoc(id)
		c.docs[id] = doc
		c.order = append(c.order, id)
	}
	arr := c.arrayField(doc, field)
	*arr = append(*arr, values...)
	c.mu.Unlock()
	c.hooks.fire()
	return nil
}

// PullField removes values from a string-array field
func (c *MemoryCollection[T]) PullField(ctx context.Context, id string, field string, values []string) error {
	c.mu.Lock()
	if doc, ok := c.docs[id]; ok {
		arr := c.arrayField(doc, field)
		kept := (*arr)[:0]
		for _, v := range *arr {
			drop := false
			for _, pull := range values {
				if v == pull {
					drop = true
					break
				}
			}
			if !drop {
				kept = append(kept, v)
			}
		}
		*arr = kept
	}
	c.mu.Unlock()
	c.hooks.fire()
	return nil
}

// Watch is unsupported; memory deployments run feeds in polling mode
func (c *MemoryCollection[T]) Watch(ctx context.Context) (ChangeStream[T], error) {
	return nil, ErrWatchUnsupported
}

// OnMutation registers a hook fired after every mutating operation
func (c *MemoryCollection[T]) OnMutation(fn func()) {
	c.hooks.add(fn)
}

// clone copies a document so callers never share memory with the stored one
func (c *MemoryCollection[T]) clone(doc *T) *T {
	if doc == nil {
		return nil
	}
	copied := *doc
	// deep-copy exported slice fields so array mutations don't alias
	v := reflect.ValueOf(&copied).Elem()
	for i := 0; i < v.NumField(); i++ {
		f := v.Field(i)
		if f.Kind() == reflect.Slice && f.CanSet() {
			dup := reflect.MakeSlice(f.Type(), f.Len(), f.Len())
			reflect.Copy(dup, f)
			f.Set(dup)
		}
	}
	return &copied
}
