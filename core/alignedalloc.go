package core

import (
	"fmt"
	"sync"
	"unsafe"
)

// Aligned allocation helpers for buffers handed to device backends.
// Contract: alignment is a power of two, size is a multiple of alignment,
// and every buffer returned by AlignedAlloc is released with AlignedFree.

var alignedAllocs struct {
	mu      sync.Mutex
	backing map[uintptr][]byte
}

// AlignedAlloc returns a size-byte slice whose first element is aligned to
// the requested boundary.
func AlignedAlloc(alignment, size int) ([]byte, error) {
	if alignment <= 0 || alignment&(alignment-1) != 0 {
		return nil, fmt.Errorf("hetsched: alignment %d is not a power of two", alignment)
	}
	if size <= 0 || size%alignment != 0 {
		return nil, fmt.Errorf("hetsched: size %d is not a multiple of alignment %d", size, alignment)
	}

	backing := make([]byte, size+alignment)
	base := uintptr(unsafe.Pointer(&backing[0]))
	offset := 0
	if rem := int(base) & (alignment - 1); rem != 0 {
		offset = alignment - rem
	}
	buf := backing[offset : offset+size : offset+size]

	alignedAllocs.mu.Lock()
	if alignedAllocs.backing == nil {
		alignedAllocs.backing = make(map[uintptr][]byte)
	}
	alignedAllocs.backing[uintptr(unsafe.Pointer(&buf[0]))] = backing
	alignedAllocs.mu.Unlock()
	return buf, nil
}

// AlignedFree releases a buffer obtained from AlignedAlloc. Freeing a
// slice that did not come from AlignedAlloc is an error.
func AlignedFree(buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	key := uintptr(unsafe.Pointer(&buf[0]))

	alignedAllocs.mu.Lock()
	defer alignedAllocs.mu.Unlock()
	if _, ok := alignedAllocs.backing[key]; !ok {
		return fmt.Errorf("hetsched: AlignedFree of unknown buffer")
	}
	delete(alignedAllocs.backing, key)
	return nil
}
