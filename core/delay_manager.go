package core

import (
	"container/heap"
	"context"
	"sync"
	"time"
)

// delayedLaunch is a task scheduled to launch in the future.
type delayedLaunch struct {
	RunAt time.Time
	Task  *Task
	index int // for heap interface
}

type delayedLaunchHeap []*delayedLaunch

func (h delayedLaunchHeap) Len() int           { return len(h) }
func (h delayedLaunchHeap) Less(i, j int) bool { return h[i].RunAt.Before(h[j].RunAt) }
func (h delayedLaunchHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *delayedLaunchHeap) Push(x any) {
	n := len(*h)
	item := x.(*delayedLaunch)
	item.index = n
	*h = append(*h, item)
}

func (h *delayedLaunchHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil // avoid memory leak
	item.index = -1
	*h = old[0 : n-1]
	return item
}

func (h *delayedLaunchHeap) Peek() *delayedLaunch {
	if len(*h) == 0 {
		return nil
	}
	return (*h)[0]
}

// DelayManager launches tasks after a delay on behalf of a scheduler. One
// timer goroutine serves the whole min-heap.
type DelayManager struct {
	sched  *Scheduler
	pq     delayedLaunchHeap
	mu     sync.Mutex
	wakeup chan struct{}
	ctx    context.Context
	cancel context.CancelFunc
}

// NewDelayManager creates and starts a delay manager for s.
func NewDelayManager(s *Scheduler) *DelayManager {
	ctx, cancel := context.WithCancel(context.Background())
	dm := &DelayManager{
		sched:  s,
		pq:     make(delayedLaunchHeap, 0),
		wakeup: make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
	}
	heap.Init(&dm.pq)
	go dm.loop()
	return dm
}

// LaunchAfter schedules t to launch once delay has elapsed. The task stays
// unlaunched until then; cancelling it before the deadline makes the
// eventual launch a no-op.
func (dm *DelayManager) LaunchAfter(t *Task, delay time.Duration) {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := &delayedLaunch{
		RunAt: time.Now().Add(delay),
		Task:  t,
	}
	heap.Push(&dm.pq, item)

	if item.index == 0 {
		select {
		case dm.wakeup <- struct{}{}:
		default:
		}
	}
}

func (dm *DelayManager) loop() {
	timer := time.NewTimer(time.Hour)
	timer.Stop()

	for {
		nextRun := dm.calculateNextRun()
		if nextRun == 0 {
			// No tasks, wait indefinitely
			nextRun = 1000 * time.Hour
		}

		timer.Reset(nextRun)

		select {
		case <-dm.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			dm.launchExpired()
		case <-dm.wakeup:
			// New task added, need to recalculate
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
	}
}

// calculateNextRun determines how long to wait until the next launch.
// Returns 0 when the heap is empty; an already-due head yields a minimal
// wait so the timer fires immediately.
func (dm *DelayManager) calculateNextRun() time.Duration {
	dm.mu.Lock()
	defer dm.mu.Unlock()

	item := dm.pq.Peek()
	if item == nil {
		return 0
	}

	now := time.Now()
	if !item.RunAt.After(now) {
		return time.Nanosecond
	}
	return item.RunAt.Sub(now)
}

// launchExpired launches every due task in one sweep, outside the lock.
func (dm *DelayManager) launchExpired() {
	dm.mu.Lock()

	now := time.Now()
	var expired []*delayedLaunch
	for dm.pq.Len() > 0 {
		item := dm.pq.Peek()
		if item.RunAt.After(now) {
			break
		}
		heap.Pop(&dm.pq)
		expired = append(expired, item)
	}

	dm.mu.Unlock()

	for _, item := range expired {
		if item.Task.State() != TaskUnlaunched {
			continue // cancelled before the deadline
		}
		if err := dm.sched.Launch(dm.ctx, item.Task); err != nil {
			dm.sched.logger.Warn("delayed launch rejected",
				F("task", item.Task.Name()), F("error", err))
		}
	}
}

// Stop terminates the timer goroutine and drops pending launches.
func (dm *DelayManager) Stop() {
	dm.cancel()

	dm.mu.Lock()
	dm.pq = make(delayedLaunchHeap, 0)
	heap.Init(&dm.pq)
	dm.mu.Unlock()
}

// TaskCount returns the number of launches still pending.
func (dm *DelayManager) TaskCount() int {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	return len(dm.pq)
}
