package hetsched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hetsched/hetsched/core"
)

// The package-level API fronts one process-global scheduler. Applications
// that need several independent runtimes create core.Scheduler instances
// directly; everything here is convenience around the global one.

var global struct {
	mu    sync.Mutex
	sched *core.Scheduler
	delay *core.DelayManager
}

// Init creates and starts the global scheduler. A nil config uses
// DefaultSchedulerConfig. Calling Init while a global scheduler is already
// running is an error.
func Init(config *SchedulerConfig) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	if global.sched != nil {
		return fmt.Errorf("hetsched: already initialized")
	}
	s := core.NewScheduler(config)
	s.Start(context.Background())
	global.sched = s
	global.delay = core.NewDelayManager(s)
	return nil
}

// Shutdown stops the global scheduler, draining pending tasks within the
// configured timeout, and tears down the global state so Init may be called
// again. Safe to call when Init never ran.
func Shutdown() error {
	global.mu.Lock()
	s := global.sched
	dm := global.delay
	global.sched = nil
	global.delay = nil
	global.mu.Unlock()

	if s == nil {
		return nil
	}
	dm.Stop()
	return s.Shutdown()
}

// GetScheduler returns the global scheduler, or nil before Init.
func GetScheduler() *Scheduler {
	global.mu.Lock()
	defer global.mu.Unlock()
	return global.sched
}

// scheduler resolves the scheduler for an operation: the one bound to ctx
// when present (worker closures), otherwise the global instance.
func scheduler(ctx context.Context) (*core.Scheduler, error) {
	if s := core.CurrentScheduler(ctx); s != nil {
		return s, nil
	}
	global.mu.Lock()
	s := global.sched
	global.mu.Unlock()
	if s == nil {
		return nil, fmt.Errorf("hetsched: not initialized, call Init first")
	}
	return s, nil
}

// Launch constructs a task from fn and attrs and submits it to the global
// scheduler. The returned task is owned by the caller.
func Launch(ctx context.Context, fn Closure, attrs TaskAttrs) (*Task, error) {
	s, err := scheduler(ctx)
	if err != nil {
		return nil, err
	}
	t := core.NewTask(fn, attrs)
	if err := s.Launch(ctx, t); err != nil {
		core.Release(t)
		return nil, err
	}
	return t, nil
}

// LaunchTask submits an already-constructed task, typically one that had
// dependencies wired with DependsOn before launch.
func LaunchTask(ctx context.Context, t *Task) error {
	s, err := scheduler(ctx)
	if err != nil {
		return err
	}
	return s.Launch(ctx, t)
}

// LaunchAfter constructs a task and schedules it to launch once delay has
// elapsed. Cancelling the returned task before the deadline prevents the
// launch.
func LaunchAfter(ctx context.Context, fn Closure, attrs TaskAttrs, delay time.Duration) (*Task, error) {
	global.mu.Lock()
	dm := global.delay
	global.mu.Unlock()
	if dm == nil {
		return nil, fmt.Errorf("hetsched: not initialized, call Init first")
	}
	t := core.NewTask(fn, attrs)
	dm.LaunchAfter(t, delay)
	return t, nil
}

// CreateGroup creates a leaf group under the global scheduler's root group.
func CreateGroup(name string) (*Group, error) {
	global.mu.Lock()
	s := global.sched
	global.mu.Unlock()
	if s == nil {
		return nil, fmt.Errorf("hetsched: not initialized, call Init first")
	}
	return core.NewGroup(s.RootGroup(), name), nil
}

// WaitAll blocks until every task launched through the global scheduler has
// terminated.
func WaitAll(ctx context.Context) error {
	s, err := scheduler(ctx)
	if err != nil {
		return err
	}
	return s.WaitAll(ctx)
}

// BindThread registers the calling goroutine as a foreign thread and
// returns a context carrying its thread record, enabling the thread-local
// storage API outside worker closures. The caller must invoke the returned
// release function when done; it runs the thread's storage destructors.
func BindThread(ctx context.Context) (context.Context, func()) {
	tr := core.NewThreadRecord(core.ThreadForeign)
	return core.WithThread(ctx, tr), func() { tr.Terminate() }
}

// Cancelled reports whether the task executing on ctx has cooperative
// cancellation pending. Long-running closures poll this and return
// ErrCancelled to terminate as cancelled. Outside a task it reports false.
func Cancelled(ctx context.Context) bool {
	if t := core.CurrentTask(ctx); t != nil {
		return t.CancelRequested()
	}
	return false
}

// Stats returns an observability snapshot of the global scheduler.
func Stats(ctx context.Context) (core.SchedulerStats, error) {
	s, err := scheduler(ctx)
	if err != nil {
		return core.SchedulerStats{}, err
	}
	return s.Stats(), nil
}
