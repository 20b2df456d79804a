package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Closure is the unit of work. The returned value lands in the task's
// result slot; a non-nil error is captured there too and propagates to
// dependents as a cancelled transition with the error as cause. Returning
// ErrCancelled (typically after observing cooperative cancellation) makes
// the task itself terminate as cancelled.
type Closure func(ctx context.Context) (any, error)

// TaskID uniquely identifies a task within the process.
type TaskID uint64

var nextTaskID atomic.Uint64

// GenerateTaskID allocates a fresh task identifier.
func GenerateTaskID() TaskID { return TaskID(nextTaskID.Add(1)) }

func (id TaskID) String() string { return fmt.Sprintf("task-%d", uint64(id)) }

// TaskState is the task lifecycle state. All transitions are CAS-driven on
// a single state word.
type TaskState int32

const (
	TaskUnlaunched TaskState = iota
	TaskWaiting
	TaskReady
	TaskRunning
	TaskFinished
	TaskCancelled
)

func (s TaskState) String() string {
	switch s {
	case TaskUnlaunched:
		return "unlaunched"
	case TaskWaiting:
		return "waiting"
	case TaskReady:
		return "ready"
	case TaskRunning:
		return "running"
	case TaskFinished:
		return "finished"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether s is a terminal state.
func (s TaskState) Terminal() bool { return s == TaskFinished || s == TaskCancelled }

// TaskAttrs describe a task at construction: a diagnostic name, the device
// domain it targets and the group it joins. The zero value targets cpu_all
// and joins the scheduler's root group at launch.
type TaskAttrs struct {
	Name   string
	Domain TaskDomain
	Group  *Group
}

// DefaultTaskAttrs returns attrs targeting cpu_all with no explicit group.
func DefaultTaskAttrs() TaskAttrs { return TaskAttrs{Domain: DomainCPUAll} }

// AttrsDomain returns attrs targeting the given domain.
func AttrsDomain(d TaskDomain) TaskAttrs { return TaskAttrs{Domain: d} }

// Task is the unit of schedulable work: a closure, a lifecycle state word,
// an owning group reference, a successor list and a predecessor counter, a
// task-local storage map, and a result slot.
//
// Successor entries are non-owning back-observers; the submitter owns the
// successor task. The successor list is swapped out exactly once, on the
// terminal transition, which establishes the predecessor→successor
// happens-before edge.
type Task struct {
	RefCount

	id     TaskID
	name   string
	fn     Closure
	domain TaskDomain

	state atomic.Int32
	preds atomic.Int32

	group Handle[*Group]

	mu          sync.Mutex
	meets       []*Group // retained; decremented symmetrically at termination
	succs       []*Task
	succsSealed bool

	result any
	err    error
	done   chan struct{}

	storage StorageMap

	cancelRequested atomic.Bool
	attached        atomic.Bool

	sched *Scheduler
}

// NewTask constructs an unlaunched task. The caller owns the returned
// reference; launching hands a second reference to the scheduler.
func NewTask(fn Closure, attrs TaskAttrs) *Task {
	if !attrs.Domain.valid() {
		attrs.Domain = DomainCPUAll
	}
	t := &Task{
		id:     GenerateTaskID(),
		name:   attrs.Name,
		fn:     fn,
		domain: attrs.Domain,
		done:   make(chan struct{}),
	}
	t.initRefs()
	if attrs.Group != nil {
		t.group = RetainHandle(attrs.Group)
	}
	return t
}

// ID returns the task identifier.
func (t *Task) ID() TaskID { return t.id }

// Name returns the diagnostic name, or the stringified ID when unnamed.
func (t *Task) Name() string {
	if t.name == "" {
		return t.id.String()
	}
	return t.name
}

// Domain returns the device domain the task targets.
func (t *Task) Domain() TaskDomain { return t.domain }

// State returns the current lifecycle state.
func (t *Task) State() TaskState { return TaskState(t.state.Load()) }

// Group returns the owning group, or nil before launch when none was given.
func (t *Task) Group() *Group {
	if !t.group.Valid() {
		return nil
	}
	return t.group.Get()
}

// signature returns the owning group's signature, or the empty bitmap for
// an unattached task.
func (t *Task) signature() Bitmap {
	if g := t.Group(); g != nil {
		return g.Signature()
	}
	return EmptyBitmap()
}

// DependsOn makes t wait for every pred. Must be called before t is
// launched. Linking against an already-terminated predecessor resolves
// immediately: a finished pred contributes nothing, a failed or cancelled
// pred poisons t with the same cause.
func (t *Task) DependsOn(preds ...*Task) error {
	if t.State() != TaskUnlaunched {
		return fmt.Errorf("hetsched: DependsOn on %s task %s", t.State(), t.Name())
	}
	for _, pred := range preds {
		t.preds.Add(1)
		if !pred.addSuccessor(t) {
			// Predecessor already terminated.
			if cause := pred.failureCause(); cause != nil {
				t.cancelWithCause(context.Background(), cause)
			} else {
				t.preds.Add(-1)
			}
		}
	}
	return nil
}

// addSuccessor links succ while t has not yet terminated. Returns false if
// the successor list was already sealed by the terminal transition.
func (t *Task) addSuccessor(succ *Task) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.succsSealed {
		return false
	}
	t.succs = append(t.succs, succ)
	return true
}

// failureCause returns the propagatable cause of a terminated task: the
// captured error for a failed run, ErrCancelled for a cancelled task, nil
// for clean success or a still-live task.
func (t *Task) failureCause() error {
	switch t.State() {
	case TaskFinished:
		return t.err
	case TaskCancelled:
		if t.err != nil {
			return t.err
		}
		return ErrCancelled
	default:
		return nil
	}
}

// Result returns the result slot. Valid once the task is terminal.
func (t *Task) Result() (any, error) {
	if !t.State().Terminal() {
		return nil, fmt.Errorf("hetsched: result of %s task %s not available", t.State(), t.Name())
	}
	return t.result, t.err
}

// Done returns a channel closed on the terminal transition.
func (t *Task) Done() <-chan struct{} { return t.done }

// Wait blocks until the task terminates and returns its captured error.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WaitFor is Wait bounded by d; returns ErrTimedOut on expiry without
// affecting task state.
func (t *Task) WaitFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.done:
		return t.err
	case <-timer.C:
		return ErrTimedOut
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel requests cancellation. A waiting or ready task transitions
// directly to cancelled; a running task only gets the cooperative flag set
// and terminates as finished if its closure returns normally first.
func (t *Task) Cancel() {
	t.cancelWithCause(context.Background(), ErrCancelled)
}

// CancelRequested reports whether cooperative cancellation is pending, via
// a direct Cancel, group cancellation, or meet-group cancellation.
func (t *Task) CancelRequested() bool {
	if t.cancelRequested.Load() {
		return true
	}
	if g := t.Group(); g != nil && g.Cancelled() {
		return true
	}
	t.mu.Lock()
	meets := t.meets
	t.mu.Unlock()
	for _, m := range meets {
		if m.cancelled.Load() {
			return true
		}
	}
	return false
}

// setMeets, addMeet and takeMeets manage the retained meet-group handles.
// Intersect appends to a live task's list concurrently with the worker, so
// all access goes through the task mutex.
func (t *Task) setMeets(meets []*Group) {
	t.mu.Lock()
	t.meets = meets
	t.mu.Unlock()
}

func (t *Task) addMeet(m *Group) {
	t.mu.Lock()
	t.meets = append(t.meets, m)
	t.mu.Unlock()
}

func (t *Task) takeMeets() []*Group {
	t.mu.Lock()
	meets := t.meets
	t.meets = nil
	t.mu.Unlock()
	return meets
}

// launch transitions unlaunched→waiting, attaches the task to its group
// (or the scheduler root group) and resolves readiness if no predecessors
// remain.
func (t *Task) launch(ctx context.Context, s *Scheduler) error {
	if !t.state.CompareAndSwap(int32(TaskUnlaunched), int32(TaskWaiting)) {
		st := t.State()
		if st == TaskCancelled {
			return ErrCancelled
		}
		return fmt.Errorf("hetsched: launch of %s task %s", st, t.Name())
	}
	t.sched = s

	// The scheduler holds its own reference while the task is in flight;
	// finalize drops it. The submitter may release immediately after launch.
	Retain(t)

	if !t.group.Valid() {
		t.group = RetainHandle(s.rootGroup)
	}
	g := t.group.Get()
	g.taskAttached()
	registerTaskMeets(t, g.Signature())
	t.attached.Store(true)

	if t.CancelRequested() {
		t.cancelWithCause(ctx, ErrCancelled)
		return nil
	}
	if t.preds.Load() == 0 {
		t.tryReady(ctx)
	}
	return nil
}

// predResolved is called by a terminating predecessor. The descent of the
// counter to zero is the only edge that can make the task ready.
func (t *Task) predResolved(ctx context.Context) {
	n := t.preds.Add(-1)
	if n < 0 {
		panic("hetsched: task predecessor counter underflow")
	}
	if n == 0 {
		t.tryReady(ctx)
	}
}

func (t *Task) tryReady(ctx context.Context) {
	if t.state.CompareAndSwap(int32(TaskWaiting), int32(TaskReady)) {
		t.sched.dispatch(ctx, t)
	}
}

// beginRun claims the task for execution. A ready task whose cancellation
// is already observable short-circuits to cancelled; losing the CAS means
// another worker claimed the task and the caller must drop it.
func (t *Task) beginRun(ctx context.Context) bool {
	if t.CancelRequested() {
		t.cancelWithCause(ctx, ErrCancelled)
		return false
	}
	return t.state.CompareAndSwap(int32(TaskReady), int32(TaskRunning))
}

// completeRun records the closure outcome and drives the terminal
// transition. Tie-break with a concurrent Cancel: once the closure has
// returned, finished wins unless the closure itself reported ErrCancelled.
func (t *Task) completeRun(ctx context.Context, result any, err error) {
	terminal := TaskFinished
	if errors.Is(err, ErrCancelled) {
		terminal = TaskCancelled
	}
	// The slot writes precede the terminal CAS, so anyone who observes the
	// terminal state also sees the outcome. The mutex serializes them
	// against a losing cancel writing its cause.
	t.mu.Lock()
	t.result = result
	t.err = err
	ok := t.state.CompareAndSwap(int32(TaskRunning), int32(terminal))
	t.mu.Unlock()
	if !ok {
		panic(fmt.Sprintf("hetsched: task %s completed while %s", t.Name(), t.State()))
	}
	t.finalize(ctx)
}

// cancelWithCause moves a not-yet-running task to cancelled. For a running
// task it only raises the cooperative flag. Idempotent.
func (t *Task) cancelWithCause(ctx context.Context, cause error) {
	t.cancelRequested.Store(true)
	for {
		st := t.State()
		switch st {
		case TaskUnlaunched, TaskWaiting, TaskReady:
			// Write the cause before the terminal CAS so a State poll
			// followed by Result never sees cancelled without it. A write
			// that loses the CAS to beginRun is overwritten by completeRun
			// under the same mutex before anyone can read it.
			t.mu.Lock()
			if TaskState(t.state.Load()) != st {
				t.mu.Unlock()
				continue
			}
			t.err = cause
			won := t.state.CompareAndSwap(int32(st), int32(TaskCancelled))
			t.mu.Unlock()
			if won {
				t.finalize(ctx)
				return
			}
		case TaskRunning:
			// Cooperative only; the closure observes CancelRequested.
			return
		default:
			return
		}
	}
}

// finalize runs exactly once, after the terminal CAS. It seals and swaps
// the successor list, releases waiters, runs task-local storage
// destructors, detaches from group and meet counters, and resolves or
// poisons each successor.
func (t *Task) finalize(ctx context.Context) {
	t.mu.Lock()
	succs := t.succs
	t.succs = nil
	t.succsSealed = true
	t.mu.Unlock()

	close(t.done)

	t.storage.runDestructors()

	if t.attached.Load() {
		if t.group.Valid() {
			t.group.Get().taskDetached()
		}
		for _, m := range unregisterTaskMeets(t) {
			m.detachOne()
			Release(m)
		}
	}

	cause := t.failureCause()
	for _, succ := range succs {
		if cause != nil {
			succ.cancelWithCause(ctx, fmt.Errorf("%w: predecessor %s: %v", ErrCancelled, t.Name(), cause))
		} else {
			succ.predResolved(ctx)
		}
	}

	if t.sched != nil {
		t.sched.taskTerminated(t)
	}
	if t.attached.Load() {
		// Drop the in-flight reference taken at launch.
		Release(t)
	}
}

// Storage returns the task-local storage map. Only the executing worker
// may touch it while the task runs.
func (t *Task) Storage() *StorageMap { return &t.storage }

// onZeroRefs drops the group reference; everything else is torn down on the
// terminal transition.
func (t *Task) onZeroRefs() {
	t.group.Release()
}
