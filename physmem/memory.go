package physmem

import "errors"

// Memory is the facade the page table talks to, hiding whether frames come
// from a LinearAllocator or a TinyPtrTable.
type Memory struct {
	linear *LinearAllocator
	tiny   *TinyPtrTable
}

// NewLinear backs Memory with a linear allocator.
func NewLinear(totalBytes uint64) *Memory {
	return &Memory{linear: NewLinearAllocator(totalBytes)}
}

// NewTinyPtr backs Memory with a tiny-pointer allocator seeded with seed0
// and seed1.
func NewTinyPtr(totalBytes, seed0, seed1 uint64) *Memory {
	return &Memory{tiny: NewTinyPtrTable(totalBytes, seed0, seed1)}
}

// AllocateFrame allocates a frame for a direct, full-width (8-byte) entry.
// key is the allocating entry's physical address; it is ignored by the
// linear backend, and hashed with a full 8-bit key width (no narrowing) by
// the tiny-pointer backend.
func (m *Memory) AllocateFrame(key uint64) (uint64, error) {
	if m.linear != nil {
		return m.linear.AllocateFrame()
	}
	_, frame, err := m.tiny.Allocate(key, 8)
	return frame, err
}

// AllocateTinyPtrFrame allocates a frame for a narrow entry, returning both
// the compact tiny pointer to store in the entry and the resolved frame
// number. It is only valid on a tiny-pointer-backed Memory.
func (m *Memory) AllocateTinyPtrFrame(key uint64, keyWidth uint8) (uint8, uint64, error) {
	if m.tiny == nil {
		return 0, 0, errors.New("physmem: AllocateTinyPtrFrame requires a tiny-pointer-backed Memory")
	}
	return m.tiny.Allocate(key, keyWidth)
}

// DecodeFrame resolves a previously allocated tiny pointer back to its
// frame number. It is only valid on a tiny-pointer-backed Memory.
func (m *Memory) DecodeFrame(key uint64, tinyPtr uint8) uint64 {
	return m.tiny.Decode(key, tinyPtr)
}

// IsTinyPtr reports whether this Memory is tiny-pointer-backed.
func (m *Memory) IsTinyPtr() bool { return m.tiny != nil }

// Allocated returns the number of frames handed out so far.
func (m *Memory) Allocated() uint64 {
	if m.linear != nil {
		return m.linear.Allocated()
	}
	return m.tiny.Allocated()
}

// Total returns the allocator's total frame capacity.
func (m *Memory) Total() uint64 {
	if m.linear != nil {
		return m.linear.Total()
	}
	return m.tiny.Total()
}

// Utilization returns Allocated/Total.
func (m *Memory) Utilization() float64 {
	total := m.Total()
	if total == 0 {
		return 0
	}
	return float64(m.Allocated()) / float64(total)
}
