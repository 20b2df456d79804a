package core

import (
	"errors"
	"sync"
	"testing"
)

// TestStorage_SetGet verifies the basic key/value contract
// Given: A created key and an owner map
// When: Values are stored and read back
// Then: Get returns the stored value, unset slots read as nil
func TestStorage_SetGet(t *testing.T) {
	// Arrange
	key, err := KeyCreate(nil)
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}
	var m StorageMap

	// Act and Assert - unset slot
	if got := m.Get(key); got != nil {
		t.Fatalf("unset slot = %v, want nil", got)
	}

	// Act
	if err := m.Set(key, "value"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	// Assert
	if got := m.Get(key); got != "value" {
		t.Fatalf("Get = %v, want value", got)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
}

// TestStorage_InvalidKey verifies rejection of never-created and deleted keys
// Given: The zero key and a deleted key
// When: Set, Get and KeyDelete are applied
// Then: Set fails with ErrInvalidKey, Get reads nil, double delete fails
func TestStorage_InvalidKey(t *testing.T) {
	var m StorageMap

	if err := m.Set(0, "x"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Set(0) error = %v, want ErrInvalidKey", err)
	}

	key, err := KeyCreate(nil)
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}
	if err := m.Set(key, "x"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if err := KeyDelete(key); err != nil {
		t.Fatalf("KeyDelete failed: %v", err)
	}

	// Reads through a dead key see nil; writes fail.
	if got := m.Get(key); got != nil {
		t.Fatalf("Get through deleted key = %v, want nil", got)
	}
	if err := m.Set(key, "y"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("Set through deleted key error = %v, want ErrInvalidKey", err)
	}
	if err := KeyDelete(key); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("double KeyDelete error = %v, want ErrInvalidKey", err)
	}
}

// TestStorage_OverwriteSkipsDestructor verifies overwrite semantics
// Given: A key with a destructor and a slot holding a value
// When: The slot is overwritten and the owner then terminates
// Then: The destructor runs once, with the final value only
func TestStorage_OverwriteSkipsDestructor(t *testing.T) {
	var seen []any
	key, err := KeyCreate(func(v any) { seen = append(seen, v) })
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}

	var m StorageMap
	if err := m.Set(key, "first"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := m.Set(key, "second"); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}

	if dropped := m.runDestructors(); dropped != 0 {
		t.Fatalf("dropped = %d, want 0", dropped)
	}
	if len(seen) != 1 || seen[0] != "second" {
		t.Fatalf("destructor observed %v, want [second]", seen)
	}
}

// TestStorage_DestructorRepopulation verifies the bounded destructor loop
// Given: A destructor that sets a fresh slot under another key every pass
// When: The owner terminates
// Then: The loop runs maxDestructorPasses times and reports the dropped slot
func TestStorage_DestructorRepopulation(t *testing.T) {
	var m StorageMap
	passes := 0

	var k1, k2 StorageKey
	var err error
	k1, err = KeyCreate(func(v any) {
		passes++
		// Repopulate under the sibling key; termination must not loop forever.
		_ = m.Set(k2, passes)
	})
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}
	k2, err = KeyCreate(func(v any) {
		_ = m.Set(k1, passes)
	})
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}

	if err := m.Set(k1, "seed"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	dropped := m.runDestructors()

	if passes == 0 {
		t.Fatal("destructor never ran")
	}
	if dropped != 1 {
		t.Fatalf("dropped = %d, want 1 slot left after pass limit", dropped)
	}
	if m.Len() != 0 {
		t.Fatalf("map not emptied after termination, %d slots remain", m.Len())
	}
}

// TestStorage_NilValueSkipsDestructor verifies nil slots do not invoke destructors
func TestStorage_NilValueSkipsDestructor(t *testing.T) {
	ran := false
	key, err := KeyCreate(func(v any) { ran = true })
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}

	var m StorageMap
	if err := m.Set(key, nil); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	m.runDestructors()

	if ran {
		t.Fatal("destructor must not run for a nil value")
	}
}

// TestStorage_KeysAreProcessWide verifies one key addresses independent maps
// Given: One key and two owner maps
// When: Each map stores its own value
// Then: Reads are isolated per owner
func TestStorage_KeysAreProcessWide(t *testing.T) {
	key, err := KeyCreate(nil)
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}

	var a, b StorageMap
	if err := a.Set(key, "owner-a"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := b.Set(key, "owner-b"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if a.Get(key) != "owner-a" || b.Get(key) != "owner-b" {
		t.Fatal("owner maps must be independent")
	}
}

// TestThreadRecord_Terminate verifies thread-local destructors run on Terminate
// TestStorage_LookupsDuringCreateAndDelete verifies the key table tolerates
// concurrent readers: Set/Get on owner maps proceed while other goroutines
// create and delete keys, and every pre-existing key stays readable.
func TestStorage_LookupsDuringCreateAndDelete(t *testing.T) {
	// Arrange
	key, err := KeyCreate(nil)
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				k, err := KeyCreate(nil)
				if err != nil {
					t.Errorf("KeyCreate failed: %v", err)
					return
				}
				if err := KeyDelete(k); err != nil {
					t.Errorf("KeyDelete failed: %v", err)
					return
				}
			}
		}()
	}

	// Act: each reader owns its map, only the key table is shared.
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var m StorageMap
			for i := 0; i < 500; i++ {
				if err := m.Set(key, i); err != nil {
					t.Errorf("Set during create churn = %v", err)
					return
				}
				if got := m.Get(key); got != i {
					t.Errorf("Get during create churn = %v, want %d", got, i)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestThreadRecord_Terminate(t *testing.T) {
	var got any
	key, err := KeyCreate(func(v any) { got = v })
	if err != nil {
		t.Fatalf("KeyCreate failed: %v", err)
	}

	tr := NewThreadRecord(ThreadWorker)
	if tr.Type() != ThreadWorker {
		t.Fatalf("thread type = %v, want worker", tr.Type())
	}
	if err := tr.Storage().Set(key, "tls"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	tr.Terminate()

	if got != "tls" {
		t.Fatalf("destructor observed %v, want tls", got)
	}
}
