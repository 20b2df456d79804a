package core

import "errors"

// Error kinds surfaced by runtime operations. Callers are expected to match
// them with errors.Is; most APIs wrap these with additional context.
var (
	// ErrInvalidKey indicates a storage key that was never created or has
	// been deleted.
	ErrInvalidKey = errors.New("hetsched: invalid storage key")

	// ErrResourceExhausted indicates the storage key space or a worker slot
	// is depleted.
	ErrResourceExhausted = errors.New("hetsched: resource exhausted")

	// ErrNoCurrentTask indicates a task-local API was called from a context
	// that is not executing a task.
	ErrNoCurrentTask = errors.New("hetsched: no current task")

	// ErrNoCurrentThread indicates a thread-local API was called from a
	// goroutine with no bound thread record (see BindThread).
	ErrNoCurrentThread = errors.New("hetsched: no current thread")

	// ErrWouldDeadlock indicates a group wait issued from a task belonging
	// to that same group (detected via signature intersection).
	ErrWouldDeadlock = errors.New("hetsched: wait would deadlock")

	// ErrTimedOut indicates a bounded wait expired. The waited-on state is
	// unaffected.
	ErrTimedOut = errors.New("hetsched: wait timed out")

	// ErrCancelled indicates group or task cancellation was observed.
	ErrCancelled = errors.New("hetsched: cancelled")

	// ErrShuttingDown indicates a submission was rejected because the
	// scheduler is shutting down.
	ErrShuttingDown = errors.New("hetsched: scheduler shutting down")
)
