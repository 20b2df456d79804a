package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// AsyncHandle identifies one in-flight dispatch on a backend driver.
type AsyncHandle uint64

// Backend is the driver interface for non-CPU domains. The scheduler hands
// a task's closure to Dispatch and registers a completion callback that
// drives the task's finished transition; the driver itself is external and
// opaque to the core.
type Backend interface {
	// Dispatch hands a closure to the device and returns a handle for it.
	Dispatch(ctx context.Context, fn Closure) (AsyncHandle, error)

	// RegisterCompletion arranges for cb to run exactly once with the
	// closure's outcome. If the dispatch already completed, cb runs
	// immediately on the calling goroutine.
	RegisterCompletion(h AsyncHandle, cb func(result any, err error))
}

// InProcBackend executes dispatched closures on goroutines of the current
// process. It stands in for a real DSP or GPU driver and bounds the number
// of in-flight dispatches with a weighted semaphore.
type InProcBackend struct {
	name string
	sem  *semaphore.Weighted

	nextHandle atomic.Uint64

	mu      sync.Mutex
	pending map[AsyncHandle]*inProcDispatch
}

type inProcDispatch struct {
	done   bool
	result any
	err    error
	cb     func(result any, err error)
}

// NewInProcBackend creates a backend allowing at most maxInFlight
// concurrent dispatches.
func NewInProcBackend(name string, maxInFlight int64) *InProcBackend {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &InProcBackend{
		name:    name,
		sem:     semaphore.NewWeighted(maxInFlight),
		pending: make(map[AsyncHandle]*inProcDispatch),
	}
}

// Name returns the backend's diagnostic name.
func (b *InProcBackend) Name() string { return b.name }

// Dispatch queues the closure for execution. Blocks while the in-flight
// limit is reached.
func (b *InProcBackend) Dispatch(ctx context.Context, fn Closure) (AsyncHandle, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return 0, err
	}

	h := AsyncHandle(b.nextHandle.Add(1))
	b.mu.Lock()
	b.pending[h] = &inProcDispatch{}
	b.mu.Unlock()

	go func() {
		defer b.sem.Release(1)
		result, err := safeInvoke(ctx, fn)
		b.complete(h, result, err)
	}()
	return h, nil
}

// RegisterCompletion installs the completion callback for h.
func (b *InProcBackend) RegisterCompletion(h AsyncHandle, cb func(result any, err error)) {
	b.mu.Lock()
	d, ok := b.pending[h]
	if !ok {
		b.mu.Unlock()
		return
	}
	if d.done {
		delete(b.pending, h)
		b.mu.Unlock()
		cb(d.result, d.err)
		return
	}
	d.cb = cb
	b.mu.Unlock()
}

func (b *InProcBackend) complete(h AsyncHandle, result any, err error) {
	b.mu.Lock()
	d, ok := b.pending[h]
	if !ok {
		b.mu.Unlock()
		return
	}
	if d.cb != nil {
		delete(b.pending, h)
		b.mu.Unlock()
		d.cb(result, err)
		return
	}
	d.done = true
	d.result = result
	d.err = err
	b.mu.Unlock()
}

// safeInvoke runs a closure, converting a panic into a captured error.
func safeInvoke(ctx context.Context, fn Closure) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("hetsched: closure panicked: %v", r)
		}
	}()
	return fn(ctx)
}
