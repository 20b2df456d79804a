// Package hetsched is a heterogeneous-compute task runtime for Go.
//
// The runtime schedules user-submitted tasks across device domain pools
// (CPU big cluster, CPU LITTLE cluster, DSP, GPU) with work-stealing
// workers, hierarchical task groups with shared join and cancellation
// state, and three TLS-style storage systems (thread-local, task-local,
// scheduler-local) with POSIX-style destructor semantics.
//
// # Quick Start
//
// Initialize the global scheduler at application startup:
//
//	hetsched.Init(nil) // default pool sizes
//	defer hetsched.Shutdown()
//
// Launch a task and wait for its result:
//
//	t, _ := hetsched.Launch(context.Background(), func(ctx context.Context) (any, error) {
//		return 42, nil
//	}, hetsched.DefaultTaskAttrs())
//	v, err := hetsched.TypedResult[int](context.Background(), t)
//
// # Key Concepts
//
// Task: the unit of work. A task targets one device domain, belongs to a
// group, and may depend on other tasks; it becomes ready when its last
// predecessor finishes.
//
// Group: a hierarchical collection of tasks sharing join and cancellation
// state. Group membership is encoded in compact bitmap signatures so
// ancestry and self-join checks are cheap.
//
// Scheduler: one work-stealing worker pool per device domain. cpu_all
// tasks may run on either CPU cluster; cpu_big and cpu_little tasks are
// pinned. DSP and GPU pools hand closures to backend drivers.
//
// Storage: ThreadSetSpecific, TaskSetSpecific and SchedulerSetSpecific
// store per-owner values under process-wide keys; destructors registered
// at key creation run when the owner terminates.
//
// # Thread Safety
//
// All exported APIs are safe for concurrent use. Per-owner storage maps
// are owner-confined by construction: only the worker executing a task
// touches the task's map.
package hetsched
