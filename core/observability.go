package core

import "time"

// TaskExecutionRecord captures one completed task execution.
type TaskExecutionRecord struct {
	TaskID     TaskID
	Name       string
	Domain     TaskDomain
	WorkerID   int
	Outcome    TaskState
	StartedAt  time.Time
	FinishedAt time.Time
	Duration   time.Duration
}

// DomainStats represents runtime observability state for one device pool.
type DomainStats struct {
	Domain  TaskDomain
	Workers int
	Queued  int
	Active  int
}

// SchedulerStats represents runtime observability state for a scheduler.
type SchedulerStats struct {
	Running   bool
	Pending   int64
	Submitted int64
	Finished  int64
	Cancelled int64
	Stolen    int64
	Rejected  int64
	Domains   []DomainStats
}
