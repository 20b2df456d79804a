package hetsched

import (
	"context"
	"fmt"

	"github.com/hetsched/hetsched/core"
)

// Typed result helpers over the task result slot.

// TypedResult waits for t to terminate and returns its result converted to
// T. A result of the wrong dynamic type is an error; a nil result yields
// the zero value.
func TypedResult[T any](ctx context.Context, t *Task) (T, error) {
	var zero T
	if err := t.Wait(ctx); err != nil {
		return zero, err
	}
	v, err := t.Result()
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("hetsched: task %s result is %T, want %T", t.Name(), v, zero)
	}
	return typed, nil
}

// LaunchWithResult launches fn and returns a channel that delivers the
// typed result once, after the task terminates. The channel is buffered so
// the delivery never blocks a worker.
func LaunchWithResult[T any](ctx context.Context, fn func(ctx context.Context) (T, error), attrs TaskAttrs) (*Task, <-chan Result[T], error) {
	t, err := Launch(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	}, attrs)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Result[T], 1)
	go func() {
		v, err := TypedResult[T](context.Background(), t)
		out <- Result[T]{Value: v, Err: err}
		close(out)
	}()
	return t, out, nil
}

// Result pairs a typed task result with its error.
type Result[T any] struct {
	Value T
	Err   error
}

// ReleaseTask drops the caller's reference to a task obtained from Launch
// or NewTask.
func ReleaseTask(t *Task) { core.Release(t) }
