package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// workerPool is the set of device workers bound to one domain, together
// with the domain's external injection queue and park signal.
type workerPool struct {
	domain  TaskDomain
	sched   *Scheduler
	workers []*DeviceWorker
	inject  *InjectQueue
	shared  *InjectQueue // cpu_all queue, present on the two CPU pools
	backend Backend      // device pools only
	signal  chan struct{}
	active  atomic.Int32
}

func (p *workerPool) signalOne() {
	select {
	case p.signal <- struct{}{}:
	default:
		// Signal channel full; a worker will pick the task up anyway.
	}
}

// queued counts tasks visible in the pool's deques and injection queue.
func (p *workerPool) queued() int {
	n := p.inject.Len()
	for _, w := range p.workers {
		n += w.deque.Len()
	}
	return n
}

// Scheduler is the multi-domain work-stealing task runtime: one worker pool
// per device domain, a global submission entry, a root group joining all
// launched tasks, and the scheduler-local storage map.
type Scheduler struct {
	logger       Logger
	metrics      Metrics
	panicHandler PanicHandler
	parkInterval time.Duration
	drainTimeout time.Duration

	pools       [numDomains]*workerPool // indexed by TaskDomain; cpu_all slot nil
	cpuAllQueue *InjectQueue

	rootGroup  *Group
	mainThread *ThreadRecord

	storageMu sync.Mutex
	storage   StorageMap

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	runningMu sync.RWMutex
	running   bool

	shuttingDown atomic.Int32

	pending      atomic.Int64
	activeCount  atomic.Int32
	submitted    atomic.Int64
	finishedN    atomic.Int64
	cancelledN   atomic.Int64
	stolenN      atomic.Int64
	rejectedN    atomic.Int64
	history      executionHistory
}

// NewScheduler creates a scheduler from config. Call Start before
// launching tasks.
func NewScheduler(config *SchedulerConfig) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	cfg := config.withDefaults()

	s := &Scheduler{
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		panicHandler: cfg.PanicHandler,
		parkInterval: cfg.ParkInterval,
		drainTimeout: cfg.ShutdownTimeout,
		cpuAllQueue:  NewInjectQueue(),
		rootGroup:    NewGroup(nil, "root"),
		mainThread:   NewThreadRecord(ThreadMain),
		history:      newExecutionHistory(cfg.HistoryCapacity),
	}

	s.pools[DomainCPUBig] = s.newPool(DomainCPUBig, cfg.BigWorkers, nil)
	s.pools[DomainCPULittle] = s.newPool(DomainCPULittle, cfg.LittleWorkers, nil)
	s.pools[DomainDSP] = s.newPool(DomainDSP, cfg.DSPWorkers, cfg.DSPBackend)
	s.pools[DomainGPU] = s.newPool(DomainGPU, cfg.GPUWorkers, cfg.GPUBackend)
	return s
}

func (s *Scheduler) newPool(domain TaskDomain, workers int, backend Backend) *workerPool {
	p := &workerPool{
		domain:  domain,
		sched:   s,
		inject:  NewInjectQueue(),
		backend: backend,
		signal:  make(chan struct{}, workers*2),
	}
	if domain == DomainCPUBig || domain == DomainCPULittle {
		p.shared = s.cpuAllQueue
	}
	for i := 0; i < workers; i++ {
		p.workers = append(p.workers, newDeviceWorker(i, p))
	}
	return p
}

// Start spawns all worker goroutines and registers the calling thread as
// the main thread. Repeated calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.runningMu.Lock()
	defer s.runningMu.Unlock()

	if s.running {
		return
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true

	total := 0
	for _, p := range s.pools {
		if p == nil {
			continue
		}
		for _, w := range p.workers {
			s.wg.Add(1)
			go w.run(s.ctx)
			total++
		}
	}
	s.logger.Info("scheduler started", F("workers", total))
}

// IsRunning returns whether the scheduler is running.
func (s *Scheduler) IsRunning() bool {
	s.runningMu.RLock()
	defer s.runningMu.RUnlock()
	return s.running
}

// RootGroup returns the group joining every task launched without an
// explicit group.
func (s *Scheduler) RootGroup() *Group { return s.rootGroup }

// MainThread returns the record registered at Start for the initializing
// thread.
func (s *Scheduler) MainThread() *ThreadRecord { return s.mainThread }

// Launch submits a task: the task transitions to waiting, joins its group,
// and is enqueued once its predecessor count is zero. A compatible worker
// submitting from its own closure gets the task pushed to its local deque;
// everything else goes through the domain injection queue.
func (s *Scheduler) Launch(ctx context.Context, t *Task) error {
	if s.shuttingDown.Load() == 1 {
		s.rejectedN.Add(1)
		s.metrics.RecordTaskRejected(t.Domain(), "shutting down")
		return fmt.Errorf("%w: task %s rejected", ErrShuttingDown, t.Name())
	}
	s.submitted.Add(1)
	s.pending.Add(1)
	if err := t.launch(ctx, s); err != nil {
		s.pending.Add(-1)
		return err
	}
	return nil
}

// dispatch places a ready task. Called on the launching thread or on the
// worker finishing the last predecessor.
func (s *Scheduler) dispatch(ctx context.Context, t *Task) {
	if w := currentWorker(ctx); w != nil && w.pool.sched == s && t.domain.compatible(w.pool.domain) {
		w.deque.PushBottom(t)
		w.pool.signalOne()
		return
	}

	switch t.domain {
	case DomainCPUAll:
		s.cpuAllQueue.Push(t)
		s.pools[DomainCPUBig].signalOne()
		s.pools[DomainCPULittle].signalOne()
		s.metrics.RecordQueueDepth(DomainCPUAll, s.cpuAllQueue.Len())
	default:
		p := s.pools[t.domain]
		p.inject.Push(t)
		p.signalOne()
		s.metrics.RecordQueueDepth(t.domain, p.inject.Len())
	}
}

// WaitAll blocks until every launched task has terminated.
func (s *Scheduler) WaitAll(ctx context.Context) error {
	return s.rootGroup.Wait(ctx)
}

// Shutdown stops the scheduler: it stops accepting launches, cancels the
// root group, waits for the pending count to drain (bounded by the
// configured timeout), runs scheduler-local storage destructors after the
// drain and before joining workers, then joins all workers and runs the
// main thread's destructors.
func (s *Scheduler) Shutdown() error {
	s.runningMu.Lock()
	if !s.running {
		s.runningMu.Unlock()
		return nil
	}
	s.runningMu.Unlock()

	s.shuttingDown.Store(1)
	s.rootGroup.Cancel()

	var drainErr error
	deadline := time.After(s.drainTimeout)
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
drain:
	for s.pending.Load() > 0 {
		select {
		case <-deadline:
			drainErr = fmt.Errorf("hetsched: shutdown drain timeout after %v, %d tasks pending",
				s.drainTimeout, s.pending.Load())
			break drain
		case <-ticker.C:
		}
	}

	// Scheduler-local destructors run after drain, before worker join, so
	// destructors may still observe a live scheduler.
	s.storageMu.Lock()
	if dropped := s.storage.runDestructors(); dropped > 0 {
		s.logger.Warn("scheduler-local destructor passes exhausted", F("dropped", dropped))
	}
	s.storageMu.Unlock()

	s.cancel()
	s.wg.Wait()
	s.mainThread.Terminate()

	s.runningMu.Lock()
	s.running = false
	s.runningMu.Unlock()

	s.logger.Info("scheduler stopped",
		F("finished", s.finishedN.Load()),
		F("cancelled", s.cancelledN.Load()))
	return drainErr
}

// =============================================================================
// Scheduler-local storage
// =============================================================================

// SetSpecific stores value under key in the scheduler-local map.
func (s *Scheduler) SetSpecific(key StorageKey, value any) error {
	s.storageMu.Lock()
	defer s.storageMu.Unlock()
	return s.storage.Set(key, value)
}

// GetSpecific returns the scheduler-local value under key, or nil.
func (s *Scheduler) GetSpecific(key StorageKey) any {
	s.storageMu.Lock()
	defer s.storageMu.Unlock()
	return s.storage.Get(key)
}

// =============================================================================
// Accounting
// =============================================================================

func (s *Scheduler) noteSteal(domain TaskDomain) {
	s.stolenN.Add(1)
	s.metrics.RecordTaskStolen(domain)
}

func (s *Scheduler) noteStart(p *workerPool) {
	s.activeCount.Add(1)
	p.active.Add(1)
}

func (s *Scheduler) noteEnd(w *DeviceWorker, t *Task, startedAt time.Time) {
	s.activeCount.Add(-1)
	w.pool.active.Add(-1)
	finishedAt := time.Now()
	duration := finishedAt.Sub(startedAt)
	s.metrics.RecordTaskDuration(w.pool.domain, duration)
	s.history.Add(TaskExecutionRecord{
		TaskID:     t.ID(),
		Name:       t.Name(),
		Domain:     w.pool.domain,
		WorkerID:   w.id,
		Outcome:    t.State(),
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		Duration:   duration,
	})
}

// taskTerminated is invoked on every terminal transition of a launched task.
func (s *Scheduler) taskTerminated(t *Task) {
	s.pending.Add(-1)
	if t.State() == TaskCancelled {
		s.cancelledN.Add(1)
	} else {
		s.finishedN.Add(1)
	}
}

// RecentExecutions returns up to limit most recent execution records,
// newest first.
func (s *Scheduler) RecentExecutions(limit int) []TaskExecutionRecord {
	return s.history.Recent(limit)
}

// Stats returns a point-in-time observability snapshot.
func (s *Scheduler) Stats() SchedulerStats {
	stats := SchedulerStats{
		Running:   s.IsRunning(),
		Pending:   s.pending.Load(),
		Submitted: s.submitted.Load(),
		Finished:  s.finishedN.Load(),
		Cancelled: s.cancelledN.Load(),
		Stolen:    s.stolenN.Load(),
		Rejected:  s.rejectedN.Load(),
	}
	for _, p := range s.pools {
		if p == nil {
			continue
		}
		stats.Domains = append(stats.Domains, DomainStats{
			Domain:  p.domain,
			Workers: len(p.workers),
			Queued:  p.queued(),
			Active:  int(p.active.Load()),
		})
	}
	return stats
}

// QueuedTaskCount returns tasks queued across all pools, including the
// shared cpu_all queue.
func (s *Scheduler) QueuedTaskCount() int {
	n := s.cpuAllQueue.Len()
	for _, p := range s.pools {
		if p != nil {
			n += p.queued()
		}
	}
	return n
}

// ActiveTaskCount returns tasks currently executing on a worker.
func (s *Scheduler) ActiveTaskCount() int { return int(s.activeCount.Load()) }

// PendingTaskCount returns launched tasks that have not yet terminated.
func (s *Scheduler) PendingTaskCount() int64 { return s.pending.Load() }
