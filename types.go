package hetsched

import "github.com/hetsched/hetsched/core"

// Re-export commonly used types from core package for convenience.
// This allows users to import only the hetsched package for most use cases.

// Closure is the unit of work.
type Closure = core.Closure

// Task is the unit of schedulable work.
type Task = core.Task

// TaskAttrs describe a task at construction.
type TaskAttrs = core.TaskAttrs

// TaskDomain selects the execution engine class a task targets.
type TaskDomain = core.TaskDomain

// TaskState is the task lifecycle state.
type TaskState = core.TaskState

// Group is a hierarchical task collection with shared join/cancel state.
type Group = core.Group

// Scheduler is the multi-domain work-stealing task runtime.
type Scheduler = core.Scheduler

// SchedulerConfig configures pool sizes, backends and handlers.
type SchedulerConfig = core.SchedulerConfig

// StorageKey identifies one slot in an owner's storage map.
type StorageKey = core.StorageKey

// Destructor runs against a stored value when its owner terminates.
type Destructor = core.Destructor

// Backend is the driver interface for non-CPU domains.
type Backend = core.Backend

// Domain constants.
const (
	DomainCPUAll    TaskDomain = core.DomainCPUAll
	DomainCPUBig    TaskDomain = core.DomainCPUBig
	DomainCPULittle TaskDomain = core.DomainCPULittle
	DomainDSP       TaskDomain = core.DomainDSP
	DomainGPU       TaskDomain = core.DomainGPU
)

// Task state constants.
const (
	TaskUnlaunched TaskState = core.TaskUnlaunched
	TaskWaiting    TaskState = core.TaskWaiting
	TaskReady      TaskState = core.TaskReady
	TaskRunning    TaskState = core.TaskRunning
	TaskFinished   TaskState = core.TaskFinished
	TaskCancelled  TaskState = core.TaskCancelled
)

// Error kinds surfaced by runtime operations.
var (
	ErrInvalidKey        = core.ErrInvalidKey
	ErrResourceExhausted = core.ErrResourceExhausted
	ErrNoCurrentTask     = core.ErrNoCurrentTask
	ErrNoCurrentThread   = core.ErrNoCurrentThread
	ErrWouldDeadlock     = core.ErrWouldDeadlock
	ErrTimedOut          = core.ErrTimedOut
	ErrCancelled         = core.ErrCancelled
	ErrShuttingDown      = core.ErrShuttingDown
)

// Convenience constructors for TaskAttrs.
var (
	DefaultTaskAttrs = core.DefaultTaskAttrs
	AttrsDomain      = core.AttrsDomain
)

// NewTask constructs an unlaunched task; launch it through a scheduler or
// the package-level Launch helpers.
var NewTask = core.NewTask

// DefaultSchedulerConfig returns a config with default pool sizes.
var DefaultSchedulerConfig = core.DefaultSchedulerConfig

// NewScheduler creates a standalone scheduler for advanced users who want
// more than the global instance.
var NewScheduler = core.NewScheduler

// NewInProcBackend creates an in-process stand-in for a device driver.
var NewInProcBackend = core.NewInProcBackend

// CurrentTask returns the task executing on the calling context, or nil.
var CurrentTask = core.CurrentTask
