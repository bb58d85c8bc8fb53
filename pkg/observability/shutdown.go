package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// ShutdownFunc releases one resource during shutdown.
type ShutdownFunc func(context.Context) error

// ShutdownManager waits for SIGINT/SIGTERM, drains the HTTP server, then
// runs every registered hook concurrently under a shared deadline.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	shutdownTimeout time.Duration

	mu            sync.Mutex
	shutdownFuncs []ShutdownFunc
}

// NewShutdownManager wires graceful shutdown for server. A zero timeout
// defaults to 30s.
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{logger: logger, server: server, shutdownTimeout: timeout}
}

// RegisterShutdownFunc adds a hook to run during shutdown. Safe for
// concurrent use.
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	sm.mu.Lock()
	sm.shutdownFuncs = append(sm.shutdownFuncs, fn)
	sm.mu.Unlock()
}

// WaitForShutdown blocks until a termination signal arrives, then performs
// the drain. It returns nil on a clean shutdown.
func (sm *ShutdownManager) WaitForShutdown() error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)

	ctx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()

	if sm.server != nil {
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			return fmt.Errorf("HTTP server shutdown failed: %w", err)
		}
	}

	if err := sm.runHooks(ctx); err != nil {
		return err
	}

	sm.logger.Info("Graceful shutdown complete")
	return nil
}

func (sm *ShutdownManager) runHooks(ctx context.Context) error {
	sm.mu.Lock()
	hooks := sm.shutdownFuncs
	sm.mu.Unlock()

	errs := make([]error, len(hooks))
	var wg sync.WaitGroup
	for i, hook := range hooks {
		wg.Add(1)
		go func(i int, hook ShutdownFunc) {
			defer wg.Done()
			if err := hook(ctx); err != nil {
				sm.logger.WithError(err).Error("Shutdown hook failed")
				errs[i] = err
			}
		}(i, hook)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return errors.Join(errs...)
	case <-ctx.Done():
		sm.logger.Warn("Shutdown timeout reached, forcing exit")
		return errors.New("shutdown timeout reached")
	}
}
