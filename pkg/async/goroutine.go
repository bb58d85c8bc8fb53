package async

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"
)

// SafeGo runs fn in a goroutine with a deadline, panic recovery and error
// logging.
//
//	SafeGo(ctx, 10*time.Second, "role sync", func(ctx context.Context) error {
//	    return syncer.SyncMember(ctx, member)
//	})
func SafeGo(parentCtx context.Context, timeout time.Duration, taskName string, fn func(context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(parentCtx, timeout)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				log.Printf("[SafeGo] PANIC in %s: %v\nStack trace:\n%s",
					taskName, r, string(debug.Stack()))
			}
		}()

		if err := fn(ctx); err != nil {
			log.Printf("[SafeGo] Error in %s: %v", taskName, err)
		}
	}()
}

// WorkerPool runs tasks from a channel on a fixed number of workers.
// Task errors are logged and counted, never fatal.
type WorkerPool struct {
	workers  int
	taskName string
	workCh   chan func(context.Context) error

	ctx    context.Context
	cancel context.CancelFunc

	wg       sync.WaitGroup
	errMu    sync.Mutex
	errCount int

	shutdownOnce sync.Once
}

// NewWorkerPool creates and starts a worker pool with the given parallelism.
func NewWorkerPool(ctx context.Context, workers int, taskName string) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	poolCtx, cancel := context.WithCancel(ctx)
	p := &WorkerPool{
		workers:  workers,
		taskName: taskName,
		workCh:   make(chan func(context.Context) error),
		ctx:      poolCtx,
		cancel:   cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.workCh:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

func (p *WorkerPool) run(task func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[WorkerPool] PANIC in %s: %v\nStack trace:\n%s",
				p.taskName, r, string(debug.Stack()))
			p.recordError()
		}
	}()

	if err := task(p.ctx); err != nil {
		log.Printf("[WorkerPool] Error in %s: %v", p.taskName, err)
		p.recordError()
	}
}

func (p *WorkerPool) recordError() {
	p.errMu.Lock()
	p.errCount++
	p.errMu.Unlock()
}

// Submit queues a task; blocks while all workers are busy. Returns false if
// the pool context is already cancelled.
func (p *WorkerPool) Submit(task func(context.Context) error) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.workCh <- task:
		return true
	}
}

// Wait closes the work channel and blocks until in-flight tasks finish,
// returning the number of failed tasks.
func (p *WorkerPool) Wait() int {
	p.shutdownOnce.Do(func() {
		close(p.workCh)
	})
	p.wg.Wait()
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.errCount
}

// Shutdown cancels outstanding work and waits for workers to exit.
func (p *WorkerPool) Shutdown() {
	p.cancel()
	p.Wait()
}
