package core

import (
	"context"
	"runtime"
	"time"
)

// =============================================================================
// PanicHandler: Interface for handling task panics
// =============================================================================

// PanicHandler is called when a task closure panics during execution.
// This allows custom panic handling, logging, and recovery strategies.
//
// Implementations should be thread-safe as they may be called concurrently.
type PanicHandler interface {
	// HandlePanic is called when a task panics.
	//
	// Parameters:
	// - ctx: The context from the panicked task
	// - domain: The device domain of the worker where the panic occurred
	// - workerID: The ID of the worker within its pool
	// - panicInfo: The panic value recovered from the task
	// - stackTrace: The stack trace at the time of panic
	HandlePanic(ctx context.Context, domain TaskDomain, workerID int, panicInfo any, stackTrace []byte)
}

// DefaultPanicHandler reports panics through the scheduler's logger.
type DefaultPanicHandler struct {
	Logger Logger
}

// HandlePanic logs panic information.
func (h *DefaultPanicHandler) HandlePanic(ctx context.Context, domain TaskDomain, workerID int, panicInfo any, stackTrace []byte) {
	logger := h.Logger
	if logger == nil {
		logger = NewDefaultLogger()
	}
	logger.Error("task panic",
		F("domain", domain.String()),
		F("worker", workerID),
		F("panic", panicInfo),
		F("stack", string(stackTrace)))
}

// =============================================================================
// Metrics: Interface for observability and monitoring
// =============================================================================

// Metrics defines the interface for collecting scheduler metrics.
// Implementations can send metrics to monitoring systems (Prometheus, StatsD, etc.).
//
// Methods should be non-blocking and fast to avoid impacting task execution
// performance.
type Metrics interface {
	// RecordTaskDuration records how long a task ran on a domain worker.
	RecordTaskDuration(domain TaskDomain, duration time.Duration)

	// RecordTaskPanic records that a task closure panicked.
	RecordTaskPanic(domain TaskDomain, panicInfo any)

	// RecordQueueDepth records the current ready-queue depth for a domain.
	RecordQueueDepth(domain TaskDomain, depth int)

	// RecordTaskRejected records that a launch was rejected (e.g., during
	// shutdown).
	RecordTaskRejected(domain TaskDomain, reason string)

	// RecordTaskStolen records a successful steal within a domain pool.
	RecordTaskStolen(domain TaskDomain)
}

// NilMetrics provides a no-op metrics implementation that does nothing.
// This is the default when no metrics interface is provided.
type NilMetrics struct{}

// RecordTaskDuration is a no-op.
func (m *NilMetrics) RecordTaskDuration(domain TaskDomain, duration time.Duration) {}

// RecordTaskPanic is a no-op.
func (m *NilMetrics) RecordTaskPanic(domain TaskDomain, panicInfo any) {}

// RecordQueueDepth is a no-op.
func (m *NilMetrics) RecordQueueDepth(domain TaskDomain, depth int) {}

// RecordTaskRejected is a no-op.
func (m *NilMetrics) RecordTaskRejected(domain TaskDomain, reason string) {}

// RecordTaskStolen is a no-op.
func (m *NilMetrics) RecordTaskStolen(domain TaskDomain) {}

// =============================================================================
// SchedulerConfig: Configuration for the scheduler
// =============================================================================

// SchedulerConfig holds configuration options for the scheduler. All fields
// are optional; zero values fall back to defaults.
type SchedulerConfig struct {
	// BigWorkers and LittleWorkers size the two CPU cluster pools.
	BigWorkers    int
	LittleWorkers int

	// DSPWorkers and GPUWorkers size the device pools; these are small
	// fixed numbers, typically one per device.
	DSPWorkers int
	GPUWorkers int

	// DSPBackend and GPUBackend are the device drivers. Defaults to
	// in-process backends standing in for real drivers.
	DSPBackend Backend
	GPUBackend Backend

	// Logger receives runtime lifecycle logs. Defaults to DefaultLogger.
	Logger Logger

	// Metrics is called to record scheduler metrics. Defaults to NilMetrics.
	Metrics Metrics

	// PanicHandler is called when a task panics. Defaults to DefaultPanicHandler.
	PanicHandler PanicHandler

	// ParkInterval bounds how long an idle worker sleeps before re-scanning
	// its queues.
	ParkInterval time.Duration

	// ShutdownTimeout bounds the drain phase of Shutdown.
	ShutdownTimeout time.Duration

	// HistoryCapacity sizes the execution-history ring.
	HistoryCapacity int
}

// DefaultSchedulerConfig returns a config with default pool sizes and
// handlers. The CPU clusters split the available parallelism between them.
func DefaultSchedulerConfig() *SchedulerConfig {
	ncpu := runtime.NumCPU()
	big := max(1, ncpu/2)
	little := max(1, ncpu-big)
	return &SchedulerConfig{
		BigWorkers:      big,
		LittleWorkers:   little,
		DSPWorkers:      1,
		GPUWorkers:      1,
		Logger:          NewDefaultLogger(),
		Metrics:         &NilMetrics{},
		ParkInterval:    50 * time.Millisecond,
		ShutdownTimeout: 5 * time.Second,
		HistoryCapacity: defaultHistoryCapacity,
	}
}

func (c *SchedulerConfig) withDefaults() *SchedulerConfig {
	out := *c
	def := DefaultSchedulerConfig()
	if out.BigWorkers <= 0 {
		out.BigWorkers = def.BigWorkers
	}
	if out.LittleWorkers <= 0 {
		out.LittleWorkers = def.LittleWorkers
	}
	if out.DSPWorkers <= 0 {
		out.DSPWorkers = 1
	}
	if out.GPUWorkers <= 0 {
		out.GPUWorkers = 1
	}
	if out.DSPBackend == nil {
		out.DSPBackend = NewInProcBackend("dsp", int64(out.DSPWorkers))
	}
	if out.GPUBackend == nil {
		out.GPUBackend = NewInProcBackend("gpu", int64(out.GPUWorkers))
	}
	if out.Logger == nil {
		out.Logger = def.Logger
	}
	if out.Metrics == nil {
		out.Metrics = &NilMetrics{}
	}
	if out.PanicHandler == nil {
		out.PanicHandler = &DefaultPanicHandler{Logger: out.Logger}
	}
	if out.ParkInterval <= 0 {
		out.ParkInterval = def.ParkInterval
	}
	if out.ShutdownTimeout <= 0 {
		out.ShutdownTimeout = def.ShutdownTimeout
	}
	if out.HistoryCapacity <= 0 {
		out.HistoryCapacity = defaultHistoryCapacity
	}
	return &out
}
