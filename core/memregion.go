package core

// MemRegion is the public buffer object handed to kernels. The runtime
// core does not interpret regions; internal components reach the opaque
// descriptor through GetInternalMemRegion.
type MemRegion struct {
	internal *InternalMemRegion
}

// InternalMemRegion is the region descriptor owned by the buffer
// subsystem: aligned backing storage plus its geometry.
type InternalMemRegion struct {
	data      []byte
	alignment int
}

// NewMemRegion allocates a region of size bytes aligned to the given
// boundary.
func NewMemRegion(alignment, size int) (*MemRegion, error) {
	data, err := AlignedAlloc(alignment, size)
	if err != nil {
		return nil, err
	}
	return &MemRegion{internal: &InternalMemRegion{data: data, alignment: alignment}}, nil
}

// Free releases the region's backing storage.
func (r *MemRegion) Free() error {
	if r.internal == nil {
		return nil
	}
	err := AlignedFree(r.internal.data)
	r.internal = nil
	return err
}

// Size returns the region's byte length.
func (r *MemRegion) Size() int {
	if r.internal == nil {
		return 0
	}
	return len(r.internal.data)
}

// GetInternalMemRegion exposes the internal descriptor to runtime
// components. External code must treat the result as opaque.
func GetInternalMemRegion(r *MemRegion) *InternalMemRegion {
	return r.internal
}

// Bytes returns the descriptor's backing storage.
func (ir *InternalMemRegion) Bytes() []byte { return ir.data }

// Alignment returns the alignment the region was allocated with.
func (ir *InternalMemRegion) Alignment() int { return ir.alignment }
