package core

import (
	"sync"
	"sync/atomic"
)

const (
	defaultDequeCap     = 16
	defaultInjectCap    = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// =============================================================================
// Deque: Chase–Lev work-stealing deque, one per device worker
// =============================================================================

// dequeBuffer is a power-of-two circular array. Grown only by the owner;
// stealers may still read a stale buffer, which is safe because entries are
// claimed through the CAS on top, never through the buffer itself.
type dequeBuffer struct {
	mask  int64
	items []atomic.Pointer[Task]
}

func newDequeBuffer(size int64) *dequeBuffer {
	return &dequeBuffer{
		mask:  size - 1,
		items: make([]atomic.Pointer[Task], size),
	}
}

func (b *dequeBuffer) get(i int64) *Task    { return b.items[i&b.mask].Load() }
func (b *dequeBuffer) put(i int64, t *Task) { b.items[i&b.mask].Store(t) }

func (b *dequeBuffer) grow(bottom, top int64) *dequeBuffer {
	nb := newDequeBuffer((b.mask + 1) * 2)
	for i := top; i < bottom; i++ {
		nb.put(i, b.get(i))
	}
	return nb
}

// Deque holds a worker's ready tasks. Only the owning worker touches the
// bottom; other workers steal from the top with a CAS race.
type Deque struct {
	top    atomic.Int64
	bottom atomic.Int64
	buf    atomic.Pointer[dequeBuffer]
}

// NewDeque allocates a deque with the default initial capacity.
func NewDeque() *Deque {
	d := &Deque{}
	d.buf.Store(newDequeBuffer(defaultDequeCap))
	return d
}

// PushBottom appends a task at the bottom. Owner only; lock-free.
func (d *Deque) PushBottom(t *Task) {
	b := d.bottom.Load()
	top := d.top.Load()
	buf := d.buf.Load()
	if b-top > buf.mask {
		buf = buf.grow(b, top)
		d.buf.Store(buf)
	}
	buf.put(b, t)
	d.bottom.Store(b + 1)
}

// PopBottom removes the most recently pushed task. Owner only; contends
// with stealers via CAS on the top index when one entry remains.
func (d *Deque) PopBottom() *Task {
	b := d.bottom.Load() - 1
	buf := d.buf.Load()
	d.bottom.Store(b)

	top := d.top.Load()
	if top > b {
		// Empty; restore.
		d.bottom.Store(b + 1)
		return nil
	}

	t := buf.get(b)
	if top == b {
		// Last entry: race the stealers for it.
		if !d.top.CompareAndSwap(top, top+1) {
			t = nil
		}
		d.bottom.Store(b + 1)
	}
	return t
}

// StealTop takes the oldest task. Called by other workers; returns nil if
// the deque is empty or the CAS race is lost.
func (d *Deque) StealTop() *Task {
	top := d.top.Load()
	b := d.bottom.Load()
	if top >= b {
		return nil
	}
	t := d.buf.Load().get(top)
	if !d.top.CompareAndSwap(top, top+1) {
		return nil
	}
	return t
}

// Len returns an estimate of the queued task count.
func (d *Deque) Len() int {
	n := d.bottom.Load() - d.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// =============================================================================
// InjectQueue: domain-level FIFO for submissions from foreign threads
// =============================================================================

// InjectQueue receives tasks submitted from threads that are not workers of
// the target pool. Workers drain it FIFO when their own deque is empty.
type InjectQueue struct {
	mu    sync.Mutex
	tasks []*Task
}

// NewInjectQueue creates an empty injection queue.
func NewInjectQueue() *InjectQueue {
	return &InjectQueue{tasks: make([]*Task, 0, defaultInjectCap)}
}

// Push appends a task.
func (q *InjectQueue) Push(t *Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, t)
}

// Pop removes the oldest task, or returns nil when empty.
func (q *InjectQueue) Pop() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return nil
	}

	t := q.tasks[0]
	// Zero out the element in the underlying array to prevent memory leak
	q.tasks[0] = nil
	q.tasks = q.tasks[1:]
	q.maybeCompactLocked()
	return t
}

func (q *InjectQueue) maybeCompactLocked() {
	n := len(q.tasks)
	c := cap(q.tasks)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.tasks = make([]*Task, 0, defaultInjectCap)
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultInjectCap), n)
	newSlice := make([]*Task, n, newCap)
	copy(newSlice, q.tasks)
	q.tasks = newSlice
}

// Len returns the queued task count.
func (q *InjectQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain removes and returns all queued tasks.
func (q *InjectQueue) Drain() []*Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.tasks
	q.tasks = make([]*Task, 0, defaultInjectCap)
	return out
}
