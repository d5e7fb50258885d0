package chunksource

import (
	"context"
	"runtime"
	"sync"
)

// Dispatcher is the shared chunk-request pool: a bounded worker
// semaphore that services prefetch requests from any number of Chunked
// Streams concurrently, so one concurrency budget is shared across every
// active stream instead of being allocated per-file.
type Dispatcher struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

// DefaultWorkers computes 2*runtime.NumCPU(), clamped to at least 2.
func DefaultWorkers() int {
	n := 2 * runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	return n
}

// NewDispatcher builds a Dispatcher with the given worker capacity. A
// non-positive workers value falls back to DefaultWorkers().
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &Dispatcher{sem: make(chan struct{}, workers)}
}

// Dispatch runs fn in a pooled goroutine once a worker slot is free. If
// ctx is cancelled before a slot frees up, Dispatch returns without
// running fn at all; the caller observes the cancellation through ctx
// itself, not through fn.
func (d *Dispatcher) Dispatch(ctx context.Context, fn func()) {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() { <-d.sem }()
		fn()
	}()
}

// Wait blocks until every dispatched task has returned. Used by tests and
// by graceful-shutdown paths that need every in-flight chunk write to
// settle before closing shared resources.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
