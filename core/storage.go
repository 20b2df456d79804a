package core

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Storage keys follow the POSIX TLS contract: a key is allocated from a
// process-wide monotonically increasing counter together with an optional
// destructor, and is never reused within the process lifetime. The same key
// table backs the thread-local, task-local and scheduler-local facades;
// only the owning map differs.

// StorageKey identifies one slot in an owner's storage map. The zero key is
// invalid.
type StorageKey uint32

// Destructor is invoked with the stored value when the owning thread, task
// or scheduler terminates.
type Destructor func(value any)

const (
	// maxStorageKeys caps the process-wide key space.
	maxStorageKeys = 1 << 16

	// maxDestructorPasses bounds the destructor iteration at owner
	// termination. Destructors may set fresh slots; after this many passes
	// remaining entries are dropped, mirroring PTHREAD_DESTRUCTOR_ITERATIONS.
	maxDestructorPasses = 4
)

type keyRecord struct {
	dtor Destructor
	dead bool
}

// keyTable is copy-on-write: create and delete take the mutex, publish a
// fresh record slice and never mutate a published one, so per-Set/Get
// lookups are a single atomic load.
var keyTable struct {
	mu      sync.Mutex
	records atomic.Pointer[[]keyRecord]
}

func loadKeyRecords() []keyRecord {
	if p := keyTable.records.Load(); p != nil {
		return *p
	}
	return nil
}

// KeyCreate allocates a fresh storage key with an optional destructor.
// Returns ErrResourceExhausted when the key space is depleted.
func KeyCreate(dtor Destructor) (StorageKey, error) {
	keyTable.mu.Lock()
	defer keyTable.mu.Unlock()

	cur := loadKeyRecords()
	if len(cur) >= maxStorageKeys {
		return 0, fmt.Errorf("%w: storage key space depleted (%d keys)", ErrResourceExhausted, maxStorageKeys)
	}
	next := make([]keyRecord, len(cur)+1)
	copy(next, cur)
	next[len(cur)] = keyRecord{dtor: dtor}
	keyTable.records.Store(&next)
	return StorageKey(len(next)), nil
}

// KeyDelete marks a key dead. Existing values stay readable as nil; the
// key index is never handed out again.
func KeyDelete(key StorageKey) error {
	keyTable.mu.Lock()
	defer keyTable.mu.Unlock()

	cur := loadKeyRecords()
	idx := int(key) - 1
	if idx < 0 || idx >= len(cur) || cur[idx].dead {
		return ErrInvalidKey
	}
	next := make([]keyRecord, len(cur))
	copy(next, cur)
	next[idx].dead = true
	next[idx].dtor = nil
	keyTable.records.Store(&next)
	return nil
}

// keyLookup returns the key's destructor and whether the key is live.
// Lock-free; reads the last published record snapshot.
func keyLookup(key StorageKey) (Destructor, bool) {
	records := loadKeyRecords()
	idx := int(key) - 1
	if idx < 0 || idx >= len(records) || records[idx].dead {
		return nil, false
	}
	return records[idx].dtor, true
}

// StorageMap maps storage keys to opaque values for one owner. Access is
// owner-confined: workers touch only their own thread map, the running task
// its own task map. Owners whose map is shared (the scheduler) must guard it
// themselves.
type StorageMap struct {
	slots map[StorageKey]any
}

// Set stores value under key. Returns ErrInvalidKey if the key was never
// created or has been deleted. Overwriting a slot does not invoke the
// destructor; destructors run only at owner termination.
func (m *StorageMap) Set(key StorageKey, value any) error {
	if _, ok := keyLookup(key); !ok {
		return ErrInvalidKey
	}
	if m.slots == nil {
		m.slots = make(map[StorageKey]any)
	}
	m.slots[key] = value
	return nil
}

// Get returns the value stored under key, or nil if unset. Never fails;
// reads through a dead key simply see nil.
func (m *StorageMap) Get(key StorageKey) any {
	if _, ok := keyLookup(key); !ok {
		return nil
	}
	return m.slots[key]
}

// Len returns the number of occupied slots.
func (m *StorageMap) Len() int { return len(m.slots) }

// runDestructors invokes the registered destructor for every non-nil slot
// at owner termination. A destructor may set new slots; the loop repeats up
// to maxDestructorPasses and then drops whatever remains. Returns the
// number of slots dropped without their destructor running.
func (m *StorageMap) runDestructors() int {
	for pass := 0; pass < maxDestructorPasses; pass++ {
		if len(m.slots) == 0 {
			return 0
		}
		slots := m.slots
		m.slots = nil
		for key, value := range slots {
			if value == nil {
				continue
			}
			if dtor, ok := keyLookup(key); ok && dtor != nil {
				dtor(value)
			}
		}
	}
	dropped := len(m.slots)
	m.slots = nil
	return dropped
}
