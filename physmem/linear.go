// Package physmem implements the simulator's physical-frame allocators: a
// monotonic linear allocator and a power-of-two-choices "tiny-pointer"
// allocator, unified behind a single Memory facade. Grounded on
// original_source/physical_memory.h and .cpp.
package physmem

import "errors"

// ErrExhausted is returned when a physical memory allocator has no frames
// left to hand out.
var ErrExhausted = errors.New("physical memory exhausted")

// LinearAllocator hands out physical frames in increasing order, never
// reusing one. Frame 0 is reserved at construction to catch accidental null
// references.
type LinearAllocator struct {
	totalFrames uint64
	nextFrame   uint64
}

// NewLinearAllocator creates a linear allocator over totalBytes of physical
// memory, 4KB frames, with frame 0 pre-reserved.
func NewLinearAllocator(totalBytes uint64) *LinearAllocator {
	return &LinearAllocator{
		totalFrames: totalBytes / pageSize,
		nextFrame:   1,
	}
}

const pageSize = 4096

// AllocateFrame returns the next unused frame number, or ErrExhausted if
// the pool is empty.
func (a *LinearAllocator) AllocateFrame() (uint64, error) {
	if a.nextFrame >= a.totalFrames {
		return 0, ErrExhausted
	}
	frame := a.nextFrame
	a.nextFrame++
	return frame, nil
}

// Allocated returns the number of frames handed out so far, including the
// reserved frame 0.
func (a *LinearAllocator) Allocated() uint64 { return a.nextFrame }

// Total returns the total number of frames in the pool.
func (a *LinearAllocator) Total() uint64 { return a.totalFrames }

// Utilization returns Allocated/Total.
func (a *LinearAllocator) Utilization() float64 {
	if a.totalFrames == 0 {
		return 0
	}
	return float64(a.nextFrame) / float64(a.totalFrames)
}
