package hetsched

import (
	"context"

	"github.com/hetsched/hetsched/core"
)

// Three storage facades share one process-wide key space: thread-local
// (per worker or bound foreign thread), task-local (per task, alive until
// the terminal transition) and scheduler-local (one map per scheduler).
// Destructors registered at key creation run when the owner terminates.

// KeyCreate allocates a storage key usable with all three facades. The
// destructor, if non-nil, runs against the stored value at owner
// termination.
func KeyCreate(dtor Destructor) (StorageKey, error) {
	return core.KeyCreate(dtor)
}

// KeyDelete invalidates a key. Values already stored under it stay in
// their maps but read as nil, and its destructor no longer runs.
func KeyDelete(key StorageKey) error {
	return core.KeyDelete(key)
}

// Per-facade aliases for callers porting from runtimes with separate key
// namespaces. Keys come from the same table and work with any facade.
var (
	ThreadKeyCreate    = KeyCreate
	TaskKeyCreate      = KeyCreate
	SchedulerKeyCreate = KeyCreate
)

// ThreadSetSpecific stores value in the calling thread's map. The context
// must carry a thread record: a worker closure context, or one returned by
// BindThread.
func ThreadSetSpecific(ctx context.Context, key StorageKey, value any) error {
	tr := core.CurrentThread(ctx)
	if tr == nil {
		return ErrNoCurrentThread
	}
	return tr.Storage().Set(key, value)
}

// ThreadGetSpecific returns the calling thread's value under key, or nil
// when unset. Fails with ErrNoCurrentThread when the context carries no
// thread record.
func ThreadGetSpecific(ctx context.Context, key StorageKey) (any, error) {
	tr := core.CurrentThread(ctx)
	if tr == nil {
		return nil, ErrNoCurrentThread
	}
	return tr.Storage().Get(key), nil
}

// TaskSetSpecific stores value in the current task's map. Fails with
// ErrNoCurrentTask outside a task closure.
func TaskSetSpecific(ctx context.Context, key StorageKey, value any) error {
	t := core.CurrentTask(ctx)
	if t == nil {
		return ErrNoCurrentTask
	}
	return t.Storage().Set(key, value)
}

// TaskGetSpecific returns the current task's value under key, or nil when
// unset. Fails with ErrNoCurrentTask outside a task closure.
func TaskGetSpecific(ctx context.Context, key StorageKey) (any, error) {
	t := core.CurrentTask(ctx)
	if t == nil {
		return nil, ErrNoCurrentTask
	}
	return t.Storage().Get(key), nil
}

// SchedulerSetSpecific stores value in the scheduler-local map: the
// context's scheduler when inside a closure, otherwise the global one.
func SchedulerSetSpecific(ctx context.Context, key StorageKey, value any) error {
	s, err := scheduler(ctx)
	if err != nil {
		return err
	}
	return s.SetSpecific(key, value)
}

// SchedulerGetSpecific returns the scheduler-local value under key, or nil
// when unset. Fails when no scheduler is reachable from the context or the
// global runtime.
func SchedulerGetSpecific(ctx context.Context, key StorageKey) (any, error) {
	s, err := scheduler(ctx)
	if err != nil {
		return nil, err
	}
	return s.GetSpecific(key), nil
}
