package core

import "context"

// Runtime identity rides the context: worker loops run every closure with a
// context carrying the scheduler, the worker's thread record and the current
// task. The storage facades and group wait deadlock check resolve their
// owner through these helpers.

type schedulerKeyType struct{}
type threadKeyType struct{}
type taskKeyType struct{}
type workerKeyType struct{}

var (
	schedulerKey schedulerKeyType
	threadKey    threadKeyType
	taskKey      taskKeyType
	workerKey    workerKeyType
)

// CurrentScheduler returns the scheduler owning the calling context, or nil.
func CurrentScheduler(ctx context.Context) *Scheduler {
	if v := ctx.Value(schedulerKey); v != nil {
		return v.(*Scheduler)
	}
	return nil
}

// CurrentThread returns the thread record bound to the calling context, or
// nil for an unbound foreign goroutine.
func CurrentThread(ctx context.Context) *ThreadRecord {
	if v := ctx.Value(threadKey); v != nil {
		return v.(*ThreadRecord)
	}
	return nil
}

// CurrentTask returns the task executing on the calling context, or nil
// when called outside a task closure.
func CurrentTask(ctx context.Context) *Task {
	if v := ctx.Value(taskKey); v != nil {
		return v.(*Task)
	}
	return nil
}

// currentWorker returns the device worker driving the calling context, or
// nil for foreign and main threads.
func currentWorker(ctx context.Context) *DeviceWorker {
	if v := ctx.Value(workerKey); v != nil {
		return v.(*DeviceWorker)
	}
	return nil
}

// WithScheduler binds a scheduler to the context.
func WithScheduler(ctx context.Context, s *Scheduler) context.Context {
	return context.WithValue(ctx, schedulerKey, s)
}

// WithThread binds a thread record to the context.
func WithThread(ctx context.Context, tr *ThreadRecord) context.Context {
	return context.WithValue(ctx, threadKey, tr)
}

func withTask(ctx context.Context, t *Task) context.Context {
	return context.WithValue(ctx, taskKey, t)
}

func withWorker(ctx context.Context, w *DeviceWorker) context.Context {
	return context.WithValue(ctx, workerKey, w)
}
