package core

import (
	"fmt"
	"sync/atomic"
)

// RefCount is an intrusive reference count. Types that participate in the
// shared-ownership discipline (Group, Task) embed it and implement
// Refcounted. The count starts at 1 for the constructing owner.
//
// Weak/back references (a predecessor's view of its successors, a group's
// view of meet groups) are plain pointers and never touch the count; the
// owning side must drop them before releasing its last reference.
type RefCount struct {
	refs atomic.Int32
}

// Refcounted is implemented by types embedding RefCount. onZeroRefs is
// invoked exactly once, by the releaser that drops the count to zero.
type Refcounted interface {
	refCount() *RefCount
	onZeroRefs()
}

func (rc *RefCount) refCount() *RefCount { return rc }

// initRefs sets the initial count for the constructing owner.
func (rc *RefCount) initRefs() { rc.refs.Store(1) }

// Refs returns the current count. Test hook only; racy by nature.
func (rc *RefCount) Refs() int32 { return rc.refs.Load() }

// Retain acquires one additional reference to v and returns v. The count
// must be observed positive at entry; retaining a dead object is a fatal
// invariant violation.
func Retain[T Refcounted](v T) T {
	rc := v.refCount()
	if rc.refs.Load() <= 0 {
		panic(fmt.Sprintf("hetsched: retain of dead object %T", v))
	}
	rc.refs.Add(1)
	return v
}

// Release drops one reference to v. The releaser that observes the
// transition to zero runs the object's teardown hook. Decrementing below
// zero is a fatal invariant violation.
func Release[T Refcounted](v T) {
	rc := v.refCount()
	n := rc.refs.Add(-1)
	if n < 0 {
		panic(fmt.Sprintf("hetsched: refcount underflow on %T", v))
	}
	if n == 0 {
		v.onZeroRefs()
	}
}

// Handle is a shared-ownership smart reference to a refcounted object.
// Constructing a handle from a raw pointer does not change the count; the
// constructor transfers the caller's reference into the handle. Clone
// acquires, Release releases. The zero Handle is empty.
type Handle[T Refcounted] struct {
	target T
	valid  bool
}

// AdoptHandle wraps an existing reference to v without touching the count.
// Intended for the implementation of refcounted types (intrusive pattern).
func AdoptHandle[T Refcounted](v T) Handle[T] {
	return Handle[T]{target: v, valid: true}
}

// RetainHandle acquires a new reference to v and wraps it.
func RetainHandle[T Refcounted](v T) Handle[T] {
	return Handle[T]{target: Retain(v), valid: true}
}

// Valid reports whether the handle refers to an object.
func (h Handle[T]) Valid() bool { return h.valid }

// Get returns the referenced object. The handle must be valid.
func (h Handle[T]) Get() T {
	if !h.valid {
		panic("hetsched: Get on empty handle")
	}
	return h.target
}

// Clone returns a new handle holding its own reference.
func (h Handle[T]) Clone() Handle[T] {
	if !h.valid {
		return Handle[T]{}
	}
	return RetainHandle(h.target)
}

// Release drops the handle's reference and empties it. Releasing an empty
// handle is a no-op.
func (h *Handle[T]) Release() {
	if !h.valid {
		return
	}
	h.valid = false
	t := h.target
	var zero T
	h.target = zero
	Release(t)
}
