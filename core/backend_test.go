package core

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestInProcBackend_DispatchAndCompletion verifies the driver handshake
// Given: A backend and a dispatched closure
// When: RegisterCompletion is installed, before or after the closure finishes
// Then: The callback runs exactly once with the closure's outcome
func TestInProcBackend_DispatchAndCompletion(t *testing.T) {
	b := NewInProcBackend("test", 2)
	if b.Name() != "test" {
		t.Fatalf("Name = %q, want test", b.Name())
	}
	ctx := context.Background()

	// Callback installed before completion.
	release := make(chan struct{})
	h, err := b.Dispatch(ctx, func(ctx context.Context) (any, error) {
		<-release
		return "slow", nil
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	got := make(chan any, 1)
	b.RegisterCompletion(h, func(result any, err error) { got <- result })
	close(release)
	select {
	case v := <-got:
		if v != "slow" {
			t.Fatalf("completion result = %v, want slow", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never ran")
	}

	// Callback installed after completion still fires, on the registering
	// goroutine.
	h2, err := b.Dispatch(ctx, func(ctx context.Context) (any, error) {
		return "fast", nil
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	late := make(chan any, 1)
	b.RegisterCompletion(h2, func(result any, err error) { late <- result })
	select {
	case v := <-late:
		if v != "fast" {
			t.Fatalf("late completion result = %v, want fast", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("late-registered completion never ran")
	}
}

// TestInProcBackend_ErrorPropagation verifies closure errors reach the callback
func TestInProcBackend_ErrorPropagation(t *testing.T) {
	b := NewInProcBackend("test", 1)
	boom := errors.New("device fault")

	h, err := b.Dispatch(context.Background(), func(ctx context.Context) (any, error) {
		return nil, boom
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	got := make(chan error, 1)
	b.RegisterCompletion(h, func(result any, err error) { got <- err })
	select {
	case err := <-got:
		if !errors.Is(err, boom) {
			t.Fatalf("completion error = %v, want device fault", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never ran")
	}
}

// TestInProcBackend_PanicCaptured verifies a panicking closure becomes an error
func TestInProcBackend_PanicCaptured(t *testing.T) {
	b := NewInProcBackend("test", 1)

	h, err := b.Dispatch(context.Background(), func(ctx context.Context) (any, error) {
		panic("device wedged")
	})
	if err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	got := make(chan error, 1)
	b.RegisterCompletion(h, func(result any, err error) { got <- err })
	select {
	case err := <-got:
		if err == nil {
			t.Fatal("panic should surface as a completion error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("completion callback never ran")
	}
}

// TestInProcBackend_BoundsInFlight verifies the dispatch concurrency limit
// Given: A backend limited to 2 in-flight dispatches
// When: Many closures are dispatched concurrently
// Then: No more than 2 ever run at once
func TestInProcBackend_BoundsInFlight(t *testing.T) {
	const limit = 2
	b := NewInProcBackend("test", limit)

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		h, err := b.Dispatch(context.Background(), func(ctx context.Context) (any, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		})
		if err != nil {
			t.Fatalf("Dispatch %d failed: %v", i, err)
		}
		wg.Add(1)
		b.RegisterCompletion(h, func(result any, err error) { wg.Done() })
	}
	wg.Wait()

	if p := peak.Load(); p > limit {
		t.Fatalf("peak in-flight = %d, want <= %d", p, limit)
	}
}

// TestInProcBackend_DispatchHonorsContext verifies a cancelled context aborts
func TestInProcBackend_DispatchHonorsContext(t *testing.T) {
	b := NewInProcBackend("test", 1)

	// Saturate the single slot.
	block := make(chan struct{})
	defer close(block)
	if _, err := b.Dispatch(context.Background(), func(ctx context.Context) (any, error) {
		<-block
		return nil, nil
	}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := b.Dispatch(ctx, func(ctx context.Context) (any, error) {
		return nil, nil
	}); err == nil {
		t.Fatal("Dispatch on a saturated backend should fail once the context expires")
	}
}
