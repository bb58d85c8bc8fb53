package doccache

import (
	"context"
	"sync"
)

// Gate is a one-shot readiness gate. It opens once the guarded cache has
// completed its first successful full load and never closes again.
type Gate struct {
	name string

	mu    sync.Mutex
	ready bool
	ch    chan struct{}
}

func newGate(name string) *Gate {
	return &Gate{name: name, ch: make(chan struct{})}
}

// Name returns the name of the guarded cache
func (g *Gate) Name() string { return g.name }

// Ready reports whether the gate has opened
func (g *Gate) Ready() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ready
}

// Await blocks until the gate opens or ctx is done
func (g *Gate) Await(ctx context.Context) error {
	g.mu.Lock()
	if g.ready {
		g.mu.Unlock()
		return nil
	}
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *Gate) open() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.ready {
		g.ready = true
		close(g.ch)
	}
}
