package core

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Group is a hierarchical task collection sharing join and cancellation
// state. Every leaf group owns one bit in the process-wide ancestor bitmap;
// its signature is the union of that bit and the parent's signature, so
// ancestry and membership checks are subset tests on bitmaps.
//
// Ownership: a group retains its parent (the parent chain is owning) but
// holds only a counter, never references, to its tasks. Tasks retain their
// group, which is what keeps a group alive while work is outstanding.
type Group struct {
	RefCount

	id        uint64
	name      string
	signature Bitmap

	parent Handle[*Group]

	// Meet groups (signature intersections) retain both operands and carry
	// no leaf bit of their own.
	meet        bool
	left, right Handle[*Group]

	outstanding atomic.Int32
	cancelled   atomic.Bool

	mu     sync.Mutex
	doneCh chan struct{} // lazily created by waiters, closed on drain or cancel
}

var (
	nextGroupID atomic.Uint64
	nextLeafBit atomic.Uint32

	// meetRegistry tracks live meet groups and the set of in-flight tasks.
	// A task joins the set when it attaches to its group at launch and
	// leaves it on the terminal transition, so a meet created mid-flight
	// still counts members launched before it existed.
	meetRegistry struct {
		mu    sync.Mutex
		meets []*Group
		live  map[*Task]struct{}
	}
)

// NewGroup creates a leaf group. A nil parent makes a root of its own
// hierarchy. The caller owns the returned reference.
func NewGroup(parent *Group, name string) *Group {
	g := &Group{
		id:   nextGroupID.Add(1),
		name: name,
	}
	g.initRefs()

	// Leaf bits are allocated monotonically and never reused, same
	// discipline as storage keys.
	leaf := nextLeafBit.Add(1) - 1
	g.signature = NewBitmapBit(leaf)
	if parent != nil {
		g.parent = RetainHandle(parent)
		g.signature.UnionWith(parent.signature)
	}
	return g
}

// Intersect produces the meet of g and o: a virtual group whose members are
// the tasks belonging to both operands. Its signature is the bitwise
// intersection of the operand signatures.
func (g *Group) Intersect(o *Group) *Group {
	m := &Group{
		id:        nextGroupID.Add(1),
		name:      g.name + "&" + o.name,
		signature: g.signature.Intersect(o.signature),
		meet:      true,
		left:      RetainHandle(g),
		right:     RetainHandle(o),
	}
	m.initRefs()

	meetRegistry.mu.Lock()
	meetRegistry.meets = append(meetRegistry.meets, m)
	// Membership is a property of the task, not of launch order: tasks
	// already in flight that belong to both operands count from the start.
	for t := range meetRegistry.live {
		if m.memberSignature(t.signature()) {
			m.outstanding.Add(1)
			t.addMeet(Retain(m))
		}
	}
	meetRegistry.mu.Unlock()
	return m
}

// ID returns the group identifier.
func (g *Group) ID() uint64 { return g.id }

// Name returns the group's diagnostic name.
func (g *Group) Name() string { return g.name }

// Signature returns the group's ancestor bitmap.
func (g *Group) Signature() Bitmap { return g.signature }

// Parent returns the parent group, or nil for a root or meet group.
func (g *Group) Parent() *Group {
	if !g.parent.Valid() {
		return nil
	}
	return g.parent.Get()
}

// Outstanding returns the current outstanding-task count.
func (g *Group) Outstanding() int { return int(g.outstanding.Load()) }

// memberSignature reports whether a task whose group signature is sig
// belongs to g. For leaf groups this is the ancestor subset test; a meet
// requires membership in both operands.
func (g *Group) memberSignature(sig Bitmap) bool {
	if g.meet {
		return g.left.Get().signature.Subset(sig) && g.right.Get().signature.Subset(sig)
	}
	return g.signature.Subset(sig)
}

// Cancel marks the group cancelled and wakes waiters. Idempotent. Tasks of
// the group that have not started observe the flag and transition directly
// to cancelled; running tasks observe it cooperatively.
func (g *Group) Cancel() {
	if !g.cancelled.CompareAndSwap(false, true) {
		return
	}
	g.mu.Lock()
	if g.doneCh != nil {
		close(g.doneCh)
		g.doneCh = nil
	}
	g.mu.Unlock()
}

// Cancelled reports whether this group or any ancestor is cancelled.
func (g *Group) Cancelled() bool {
	if g.meet {
		if g.cancelled.Load() {
			return true
		}
		return g.left.Get().Cancelled() && g.right.Get().Cancelled()
	}
	for grp := g; grp != nil; grp = grp.Parent() {
		if grp.cancelled.Load() {
			return true
		}
	}
	return false
}

// Wait blocks until the outstanding-task counter reaches zero or the group
// is cancelled. Returns ErrCancelled when cancellation was observed,
// ErrWouldDeadlock when called from a task that belongs to this group.
func (g *Group) Wait(ctx context.Context) error {
	return g.wait(ctx, 0)
}

// WaitFor is Wait with a bound; it returns ErrTimedOut when the duration
// expires, leaving all task and group state untouched.
func (g *Group) WaitFor(ctx context.Context, d time.Duration) error {
	return g.wait(ctx, d)
}

func (g *Group) wait(ctx context.Context, d time.Duration) error {
	if t := CurrentTask(ctx); t != nil && g.memberSignature(t.signature()) {
		return ErrWouldDeadlock
	}

	var deadline <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		g.mu.Lock()
		if g.cancelled.Load() {
			g.mu.Unlock()
			return ErrCancelled
		}
		if g.outstanding.Load() == 0 {
			g.mu.Unlock()
			return nil
		}
		if g.doneCh == nil {
			g.doneCh = make(chan struct{})
		}
		ch := g.doneCh
		g.mu.Unlock()

		select {
		case <-ch:
		case <-deadline:
			return ErrTimedOut
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// taskAttached bumps the outstanding counter of g and every ancestor, so a
// wait on any ancestor joins the whole subtree.
func (g *Group) taskAttached() {
	for grp := g; grp != nil; grp = grp.Parent() {
		grp.outstanding.Add(1)
	}
}

// taskDetached undoes taskAttached on the terminal transition of a task.
func (g *Group) taskDetached() {
	for grp := g; grp != nil; grp = grp.Parent() {
		grp.detachOne()
	}
}

func (g *Group) detachOne() {
	n := g.outstanding.Add(-1)
	if n < 0 {
		panic("hetsched: group outstanding-task counter underflow")
	}
	if n == 0 {
		g.mu.Lock()
		if g.doneCh != nil {
			close(g.doneCh)
			g.doneCh = nil
		}
		g.mu.Unlock()
	}
}

// matchMeets returns retained handles to every live meet group the given
// signature belongs to, with their counters already incremented. The caller
// hands the slice to the task for symmetric decrement at termination.
func matchMeets(sig Bitmap) []*Group {
	meetRegistry.mu.Lock()
	defer meetRegistry.mu.Unlock()
	return matchMeetsLocked(sig)
}

func matchMeetsLocked(sig Bitmap) []*Group {
	var matched []*Group
	for _, m := range meetRegistry.meets {
		if m.memberSignature(sig) {
			matched = append(matched, Retain(m))
			m.outstanding.Add(1)
		}
	}
	return matched
}

// registerTaskMeets matches the attaching task against existing meet groups
// and adds it to the in-flight set consulted by Intersect.
func registerTaskMeets(t *Task, sig Bitmap) {
	meetRegistry.mu.Lock()
	defer meetRegistry.mu.Unlock()

	matched := matchMeetsLocked(sig)
	if meetRegistry.live == nil {
		meetRegistry.live = make(map[*Task]struct{})
	}
	meetRegistry.live[t] = struct{}{}
	t.setMeets(matched)
}

// unregisterTaskMeets removes the task from the in-flight set and returns
// the meet handles it accumulated, for symmetric decrement and release.
func unregisterTaskMeets(t *Task) []*Group {
	meetRegistry.mu.Lock()
	delete(meetRegistry.live, t)
	meetRegistry.mu.Unlock()
	return t.takeMeets()
}

// onZeroRefs tears the group down: meet groups unregister and drop their
// operand references, leaf groups drop the parent chain reference.
func (g *Group) onZeroRefs() {
	if g.meet {
		meetRegistry.mu.Lock()
		for i, m := range meetRegistry.meets {
			if m == g {
				meetRegistry.meets = append(meetRegistry.meets[:i], meetRegistry.meets[i+1:]...)
				break
			}
		}
		meetRegistry.mu.Unlock()
		g.left.Release()
		g.right.Release()
		return
	}
	g.parent.Release()
}
