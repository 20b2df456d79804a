package core

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

// TestScheduler_ManyTasks verifies a large fan-out executes exactly once each
// Given: A running scheduler
// When: 1000 cpu_all tasks are launched from a foreign goroutine
// Then: WaitAll returns after every closure has run exactly once
func TestScheduler_ManyTasks(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	const total = 1000
	var ran atomic.Int64
	tasks := make([]*Task, total)
	for i := range tasks {
		tasks[i] = NewTask(func(ctx context.Context) (any, error) {
			ran.Add(1)
			return nil, nil
		}, DefaultTaskAttrs())
		if err := s.Launch(ctx, tasks[i]); err != nil {
			t.Fatalf("Launch %d failed: %v", i, err)
		}
	}
	defer func() {
		for _, task := range tasks {
			Release(task)
		}
	}()

	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.WaitAll(waitCtx); err != nil {
		t.Fatalf("WaitAll = %v", err)
	}
	if got := ran.Load(); got != total {
		t.Fatalf("ran %d closures, want %d", got, total)
	}
	for i, task := range tasks {
		if task.State() != TaskFinished {
			t.Fatalf("task %d state = %v, want finished", i, task.State())
		}
	}
}

// TestScheduler_DomainPinning verifies pinned tasks run on their own pool
// Given: Tasks pinned to each domain
// When: They execute
// Then: Each closure observes a worker of the matching domain
func TestScheduler_DomainPinning(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	for _, domain := range []TaskDomain{DomainCPUBig, DomainCPULittle} {
		got := make(chan TaskDomain, 1)
		task := NewTask(func(ctx context.Context) (any, error) {
			got <- currentWorker(ctx).Domain()
			return nil, nil
		}, AttrsDomain(domain))
		if err := s.Launch(ctx, task); err != nil {
			t.Fatalf("Launch %v failed: %v", domain, err)
		}
		if err := task.Wait(ctx); err != nil {
			t.Fatalf("Wait %v failed: %v", domain, err)
		}
		if d := <-got; d != domain {
			t.Fatalf("task pinned to %v ran on %v", domain, d)
		}
		Release(task)
	}
}

// TestScheduler_CPUAllRunsOnEitherCluster verifies cpu_all mobility
func TestScheduler_CPUAllRunsOnEitherCluster(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	task := NewTask(func(ctx context.Context) (any, error) {
		return currentWorker(ctx).Domain(), nil
	}, AttrsDomain(DomainCPUAll))
	defer Release(task)

	if err := s.Launch(ctx, task); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}
	v, _ := task.Result()
	d := v.(TaskDomain)
	if d != DomainCPUBig && d != DomainCPULittle {
		t.Fatalf("cpu_all task ran on %v, want a CPU cluster", d)
	}
}

// TestScheduler_DeviceDomainsUseBackend verifies DSP/GPU dispatch through drivers
// Given: Tasks pinned to the device domains
// When: They execute on the default in-process backends
// Then: Results come back through the completion callback path
func TestScheduler_DeviceDomainsUseBackend(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	for _, domain := range []TaskDomain{DomainDSP, DomainGPU} {
		task := NewTask(func(ctx context.Context) (any, error) {
			return domain.String(), nil
		}, AttrsDomain(domain))
		if err := s.Launch(ctx, task); err != nil {
			t.Fatalf("Launch %v failed: %v", domain, err)
		}
		if err := task.Wait(ctx); err != nil {
			t.Fatalf("Wait %v failed: %v", domain, err)
		}
		if v, _ := task.Result(); v != domain.String() {
			t.Fatalf("device task result = %v, want %v", v, domain.String())
		}
		Release(task)
	}
}

// TestScheduler_ShutdownRejectsLaunches verifies post-shutdown submission fails
func TestScheduler_ShutdownRejectsLaunches(t *testing.T) {
	s := NewScheduler(&SchedulerConfig{
		BigWorkers:    1,
		LittleWorkers: 1,
		Logger:        NopLogger{},
		ParkInterval:  5 * time.Millisecond,
	})
	s.Start(context.Background())

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown = %v", err)
	}
	if s.IsRunning() {
		t.Fatal("scheduler should not report running after Shutdown")
	}

	task := NewTask(func(ctx context.Context) (any, error) { return nil, nil }, DefaultTaskAttrs())
	defer Release(task)
	if err := s.Launch(context.Background(), task); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("Launch after shutdown = %v, want ErrShuttingDown", err)
	}
}

// TestScheduler_ShutdownRunsSchedulerStorageDestructors verifies teardown order
// Given: A scheduler-local slot with a destructor
// When: Shutdown runs
// Then: The destructor has run by the time Shutdown returns
func TestScheduler_ShutdownRunsSchedulerStorageDestructors(t *testing.T) {
	s := NewScheduler(&SchedulerConfig{
		BigWorkers:    1,
		LittleWorkers: 1,
		Logger:        NopLogger{},
		ParkInterval:  5 * time.Millisecond,
	})
	s.Start(context.Background())

	var got any
	key, err := KeyCreate(func(v any) { got = v })
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}
	if err := s.SetSpecific(key, "sched-local"); err != nil {
		t.Fatalf("SetSpecific failed: %v", err)
	}
	if v := s.GetSpecific(key); v != "sched-local" {
		t.Fatalf("GetSpecific = %v, want sched-local", v)
	}

	if err := s.Shutdown(); err != nil {
		t.Fatalf("Shutdown = %v", err)
	}
	if got != "sched-local" {
		t.Fatalf("scheduler-local destructor observed %v, want sched-local", got)
	}
}

// TestScheduler_Stats verifies the observability snapshot
// Given: A scheduler that has finished and cancelled work
// When: Stats is read
// Then: Counters and per-domain entries reflect the run
func TestScheduler_Stats(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	finished := NewTask(func(ctx context.Context) (any, error) { return nil, nil }, DefaultTaskAttrs())
	defer Release(finished)
	if err := s.Launch(ctx, finished); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := finished.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	gate := NewTask(func(ctx context.Context) (any, error) { return nil, nil }, DefaultTaskAttrs())
	defer Release(gate)
	cancelled := NewTask(func(ctx context.Context) (any, error) { return nil, nil }, DefaultTaskAttrs())
	defer Release(cancelled)
	if err := cancelled.DependsOn(gate); err != nil {
		t.Fatalf("DependsOn failed: %v", err)
	}
	if err := s.Launch(ctx, cancelled); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	cancelled.Cancel()
	if err := s.Launch(ctx, gate); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := s.WaitAll(ctx); err != nil {
		t.Fatalf("WaitAll failed: %v", err)
	}

	stats := s.Stats()
	if !stats.Running {
		t.Fatal("stats should report running")
	}
	if stats.Submitted != 3 {
		t.Fatalf("submitted = %d, want 3", stats.Submitted)
	}
	if stats.Finished != 2 {
		t.Fatalf("finished = %d, want 2", stats.Finished)
	}
	if stats.Cancelled != 1 {
		t.Fatalf("cancelled = %d, want 1", stats.Cancelled)
	}
	if stats.Pending != 0 {
		t.Fatalf("pending = %d, want 0", stats.Pending)
	}
	if len(stats.Domains) != 4 {
		t.Fatalf("domain entries = %d, want 4", len(stats.Domains))
	}
	for _, d := range stats.Domains {
		if d.Workers < 1 {
			t.Fatalf("domain %v reports %d workers", d.Domain, d.Workers)
		}
	}
}

// TestScheduler_RecentExecutions verifies the execution history ring
func TestScheduler_RecentExecutions(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	task := NewTask(func(ctx context.Context) (any, error) { return nil, nil }, TaskAttrs{Name: "recorded"})
	defer Release(task)
	if err := s.Launch(ctx, task); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := task.Wait(ctx); err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	// The history entry is appended by the executing worker after the
	// terminal transition; give it a moment.
	deadline := time.Now().Add(2 * time.Second)
	for {
		records := s.RecentExecutions(10)
		if len(records) >= 1 && records[0].Name == "recorded" {
			if records[0].Outcome != TaskFinished {
				t.Fatalf("recorded outcome = %v, want finished", records[0].Outcome)
			}
			if records[0].Duration < 0 {
				t.Fatalf("recorded duration = %v, want >= 0", records[0].Duration)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("execution record never appeared, have %v", records)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// TestScheduler_LaunchFromWorkerUsesLocalDeque verifies nested submissions run
// Given: A closure that launches a follow-up task of the same domain
// When: Both run to completion
// Then: The nested task executes and the parent observes its result
func TestScheduler_LaunchFromWorkerUsesLocalDeque(t *testing.T) {
	s := newTestScheduler(t)
	ctx := context.Background()

	nestedRan := make(chan struct{})
	outer := NewTask(func(ctx context.Context) (any, error) {
		inner := NewTask(func(ctx context.Context) (any, error) {
			close(nestedRan)
			return nil, nil
		}, AttrsDomain(DomainCPUBig))
		defer Release(inner)
		if err := CurrentScheduler(ctx).Launch(ctx, inner); err != nil {
			return nil, err
		}
		return nil, nil
	}, AttrsDomain(DomainCPUBig))
	defer Release(outer)

	if err := s.Launch(ctx, outer); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	if err := outer.Wait(ctx); err != nil {
		t.Fatalf("outer Wait = %v", err)
	}
	select {
	case <-nestedRan:
	case <-time.After(5 * time.Second):
		t.Fatal("nested task never ran")
	}
}

// TestScheduler_WorkStealingBalancesLoad verifies steals occur under skewed load
// Given: Many tasks all submitted to one CPU cluster from one worker closure
// When: The cluster's peers run dry
// Then: At least one steal is recorded
func TestScheduler_WorkStealingBalancesLoad(t *testing.T) {
	s := NewScheduler(&SchedulerConfig{
		BigWorkers:    4,
		LittleWorkers: 1,
		Logger:        NopLogger{},
		ParkInterval:  time.Millisecond,
	})
	s.Start(context.Background())
	t.Cleanup(func() { _ = s.Shutdown() })
	ctx := context.Background()

	const fanout = 200
	seeder := NewTask(func(ctx context.Context) (any, error) {
		// Everything lands on this worker's own deque; peers must steal.
		for i := 0; i < fanout; i++ {
			child := NewTask(func(ctx context.Context) (any, error) {
				time.Sleep(100 * time.Microsecond)
				return nil, nil
			}, AttrsDomain(DomainCPUBig))
			if err := CurrentScheduler(ctx).Launch(ctx, child); err != nil {
				Release(child)
				return nil, err
			}
			Release(child)
		}
		return nil, nil
	}, AttrsDomain(DomainCPUBig))
	defer Release(seeder)

	if err := s.Launch(ctx, seeder); err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := s.WaitAll(waitCtx); err != nil {
		t.Fatalf("WaitAll = %v", err)
	}

	if s.Stats().Stolen == 0 {
		t.Fatal("expected at least one steal under skewed load")
	}
}
