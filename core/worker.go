package core

import (
	"context"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"
)

// DeviceWorker is one OS-thread-analog bound to a device domain pool. It
// owns the bottom of its deque and a thread-local storage map; peers only
// ever steal from the deque's top.
type DeviceWorker struct {
	id     int
	pool   *workerPool
	deque  *Deque
	thread *ThreadRecord
	rng    *rand.Rand
}

func newDeviceWorker(id int, pool *workerPool) *DeviceWorker {
	return &DeviceWorker{
		id:     id,
		pool:   pool,
		deque:  NewDeque(),
		thread: NewThreadRecord(ThreadWorker),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano() + int64(id)<<16)),
	}
}

// ID returns the worker's index within its pool.
func (w *DeviceWorker) ID() int { return w.id }

// Domain returns the pool domain the worker is bound to.
func (w *DeviceWorker) Domain() TaskDomain { return w.pool.domain }

// Thread returns the worker's thread record.
func (w *DeviceWorker) Thread() *ThreadRecord { return w.thread }

// run is the worker main loop: pop the local deque bottom, drain the
// injection queues, steal from a random same-pool peer, then park on the
// pool signal channel with a timed wakeup.
func (w *DeviceWorker) run(ctx context.Context) {
	s := w.pool.sched
	defer s.wg.Done()

	wctx := withWorker(WithThread(WithScheduler(ctx, s), w.thread), w)
	defer func() {
		if dropped := w.thread.Terminate(); dropped > 0 {
			s.logger.Warn("thread-local destructor passes exhausted",
				F("domain", w.pool.domain.String()), F("worker", w.id), F("dropped", dropped))
		}
	}()

	timer := time.NewTimer(s.parkInterval)
	defer timer.Stop()

	for {
		if t := w.next(); t != nil {
			w.execute(wctx, t)
			continue
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.parkInterval)

		select {
		case <-w.pool.signal:
		case <-timer.C:
			// Timed wakeup; re-scan the queues.
		case <-ctx.Done():
			return
		}
	}
}

// next returns the next runnable task, or nil when the worker should park.
func (w *DeviceWorker) next() *Task {
	if t := w.deque.PopBottom(); t != nil {
		return t
	}
	if t := w.pool.inject.Pop(); t != nil {
		return t
	}
	if w.pool.shared != nil {
		if t := w.pool.shared.Pop(); t != nil {
			return t
		}
	}
	return w.steal()
}

// steal picks peers uniformly at random within the pool and races for the
// top of their deques. Stealing never crosses pools, which keeps pinned
// tasks on their cluster.
func (w *DeviceWorker) steal() *Task {
	peers := w.pool.workers
	if len(peers) < 2 {
		return nil
	}
	for attempt := 0; attempt < len(peers); attempt++ {
		victim := peers[w.rng.Intn(len(peers))]
		if victim == w {
			continue
		}
		if t := victim.deque.StealTop(); t != nil {
			w.pool.sched.noteSteal(w.pool.domain)
			return t
		}
	}
	return nil
}

// execute drives one task through running to its terminal state. CPU pools
// invoke the closure inline; device pools hand it to the backend driver and
// block until the completion callback has driven the transition.
func (w *DeviceWorker) execute(ctx context.Context, t *Task) {
	if !t.beginRun(ctx) {
		return
	}
	s := w.pool.sched
	s.noteStart(w.pool)
	startedAt := time.Now()

	tctx := withTask(ctx, t)
	if w.pool.backend != nil {
		w.executeOnBackend(tctx, t)
	} else {
		result, err := w.invoke(tctx, t)
		t.completeRun(ctx, result, err)
	}

	s.noteEnd(w, t, startedAt)
}

// invoke runs the closure with panic capture. A panic is reported to the
// panic handler and captured as the task's error.
func (w *DeviceWorker) invoke(ctx context.Context, t *Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			s := w.pool.sched
			s.panicHandler.HandlePanic(ctx, w.pool.domain, w.id, r, stack)
			s.metrics.RecordTaskPanic(w.pool.domain, r)
			result = nil
			err = fmt.Errorf("hetsched: task %s panicked: %v", t.Name(), r)
		}
	}()
	return t.fn(ctx)
}

// executeOnBackend dispatches to the pool's backend driver and waits for
// the completion callback. One dispatch in flight per device worker.
func (w *DeviceWorker) executeOnBackend(ctx context.Context, t *Task) {
	done := make(chan struct{})
	h, err := w.pool.backend.Dispatch(ctx, t.fn)
	if err != nil {
		t.completeRun(ctx, nil, err)
		return
	}
	w.pool.backend.RegisterCompletion(h, func(result any, err error) {
		t.completeRun(ctx, result, err)
		close(done)
	})
	<-done
}
