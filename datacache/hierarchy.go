package datacache

// CacheHierarchy composes three DataCache levels into the L1->L2->L3->memory
// write-back stack described in spec.md §4.5. Grounded on
// original_source/data_cache.h's CacheHierarchy.
type CacheHierarchy struct {
	L1, L2, L3 *DataCache

	memAccessCount uint64
}

// NewHierarchy builds L1/L2/L3 with the given (size, ways, lineSize) triples
// and wires the write-back links L1->L2->L3->memory.
func NewHierarchy(
	l1Size, l1Ways, l1Line,
	l2Size, l2Ways, l2Line,
	l3Size, l3Ways, l3Line uint64,
) *CacheHierarchy {
	h := &CacheHierarchy{
		L1: New("L1 Cache", l1Size, l1Ways, l1Line),
		L2: New("L2 Cache", l2Size, l2Ways, l2Line),
		L3: New("L3 Cache", l3Size, l3Ways, l3Line),
	}

	h.L1.SetNextLevel(h.L2)
	h.L2.SetNextLevel(h.L3)
	h.L1.SetMemCounter(&h.memAccessCount)
	h.L2.SetMemCounter(&h.memAccessCount)
	h.L3.SetMemCounter(&h.memAccessCount)

	return h
}

// MemoryAccesses returns the number of accesses that reached main memory,
// whether from a last-level miss or an L3 write-back.
func (h *CacheHierarchy) MemoryAccesses() uint64 { return h.memAccessCount }

// Access takes the conventional L1->L2->L3->memory path for a data
// reference. On an L1 hit it re-inserts on write to mark the line dirty; on
// an L2/L3 hit it fills the levels above the hit (L1 dirty on a write, L2
// clean) and, on a write, also marks the hit level's own copy dirty; on a
// miss in all three it counts a memory access and fills all three levels
// (L1 dirty on a write, L2 and L3 clean). It returns whether the access hit
// anywhere in the hierarchy.
//
// An L2 hit with isWrite re-inserts using L2's own tag. The original
// implementation this is grounded on reinserts using L1's tag at that one
// call site; spec.md §9 flags this as a likely bug and mandates using the
// hit level's own tag, which is what this does.
func (h *CacheHierarchy) Access(paddr uint64, isWrite bool) bool {
	l1Tag := paddr >> h.L1.OffsetBits()
	if value, hit := h.L1.Lookup(l1Tag, isWrite); hit {
		if isWrite {
			h.L1.Insert(l1Tag, value, isWrite)
		}
		return true
	}

	l2Tag := paddr >> h.L2.OffsetBits()
	if value, hit := h.L2.Lookup(l2Tag, isWrite); hit {
		h.L1.Insert(l1Tag, value, isWrite)
		if isWrite {
			h.L2.Insert(l2Tag, value, isWrite)
		}
		return true
	}

	l3Tag := paddr >> h.L3.OffsetBits()
	if value, hit := h.L3.Lookup(l3Tag, isWrite); hit {
		if isWrite {
			h.L3.Insert(l3Tag, value, isWrite)
		}
		h.L2.Insert(l2Tag, value, false)
		h.L1.Insert(l1Tag, value, isWrite)
		return true
	}

	h.memAccessCount++
	h.L3.Insert(l3Tag, 0, false)
	h.L2.Insert(l2Tag, 0, false)
	h.L1.Insert(l1Tag, 0, isWrite)
	return false
}

// TranslateLookup takes the page-walk path for a page-table entry fetch: it
// starts at L2 (TLBs and PWCs already capture L1-granularity locality for
// translations), fills L2 on an L3 hit, and fills L3 and L2 (both clean) on
// a memory fetch. It never touches L1.
func (h *CacheHierarchy) TranslateLookup(paddr uint64) bool {
	l2Tag := paddr >> h.L2.OffsetBits()
	if _, hit := h.L2.Lookup(l2Tag, false); hit {
		return true
	}

	l3Tag := paddr >> h.L3.OffsetBits()
	if value, hit := h.L3.Lookup(l3Tag, false); hit {
		h.L2.Insert(l2Tag, value, false)
		return true
	}

	h.memAccessCount++
	h.L3.Insert(l3Tag, 0, false)
	h.L2.Insert(l2Tag, 0, false)
	return false
}

// AccessCost returns the advisory total access cost in cycles:
// L1*1 + L2*4 + L3*10 + memory*100.
func (h *CacheHierarchy) AccessCost() uint64 {
	return h.L1.Accesses()*1 +
		h.L2.Accesses()*4 +
		h.L3.Accesses()*10 +
		h.memAccessCount*100
}
