package physmem

import (
	"encoding/binary"
	"errors"

	"github.com/cespare/xxhash/v2"
)

// BinSize is the number of slots in each bin's free list.
const BinSize = 127

// ErrNoSlotInRange is returned when an allocation cannot place a slot: the
// chosen bin is full, or a narrowed request finds no free slot below the
// requested key width's ceiling.
var ErrNoSlotInRange = errors.New("physmem: no free slot within key width")

// bin is a free list of BinSize 1-based slots, embedded in a fixed array:
// next[slot-1] holds the next free slot following slot, or 0 at the list's
// end. Grounded on original_source/physical_memory.cpp's MemoryPo2CTable::Bin,
// generalized to the corrected free-list traversal spec.md §4.7 describes
// (the partial C++ source's key-width traversal loop condition does not
// match its own stated intent; this implementation follows the
// specification's prose, not the inconsistent literal code).
type bin struct {
	next  [BinSize]uint8
	head  uint8
	count int
}

func newBin() *bin {
	b := &bin{head: 1}
	for i := 0; i < BinSize; i++ {
		if i == BinSize-1 {
			b.next[i] = 0
			continue
		}
		b.next[i] = uint8(i + 2)
	}
	return b
}

func (b *bin) full() bool { return b.count == BinSize }

// insert removes and returns a free slot, narrowed to values below
// 1<<(keyWidth-1) when keyWidth < 8.
func (b *bin) insert(keyWidth uint8) (uint8, bool) {
	if b.full() {
		return 0, false
	}

	if keyWidth == 0 || keyWidth >= 8 {
		slot := b.head
		b.head = b.next[slot-1]
		b.count++
		return slot, true
	}

	threshold := uint8(1) << (keyWidth - 1)
	var prev uint8
	cur := b.head
	for cur != 0 {
		if cur < threshold {
			if prev == 0 {
				b.head = b.next[cur-1]
			} else {
				b.next[prev-1] = b.next[cur-1]
			}
			b.count++
			return cur, true
		}
		prev = cur
		cur = b.next[cur-1]
	}
	return 0, false
}

func (b *bin) free(slot uint8) {
	b.next[slot-1] = b.head
	b.head = slot
	b.count--
}

// TinyPtrTable is the power-of-two-choices physical-frame allocator: frames
// are partitioned into BinSize-slot bins, and each allocation hashes its
// caller-supplied key with two independently seeded functions to find two
// candidate bins, placing the new frame in whichever is less full. The
// returned 8-bit tiny pointer packs the chosen bin (high bit) and the
// 7-bit slot.
type TinyPtrTable struct {
	numBins      uint64
	bins         []*bin
	seed0, seed1 uint64
	allocated    uint64
}

// NewTinyPtrTable partitions totalBytes of physical memory (4KB frames)
// into BinSize-frame bins, seeded with two distinct hash seeds. In
// production the seeds should be drawn from randomness at construction;
// spec.md §9 calls for making them explicit constructor parameters so runs
// are reproducible in tests.
func NewTinyPtrTable(totalBytes, seed0, seed1 uint64) *TinyPtrTable {
	totalFrames := totalBytes / pageSize
	numBins := totalFrames / BinSize
	if numBins == 0 {
		numBins = 1
	}

	bins := make([]*bin, numBins)
	for i := range bins {
		bins[i] = newBin()
	}

	return &TinyPtrTable{numBins: numBins, bins: bins, seed0: seed0, seed1: seed1}
}

func (t *TinyPtrTable) hash(seed, key uint64) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], seed)
	binary.LittleEndian.PutUint64(buf[8:16], key)
	return xxhash.Sum64(buf[:])
}

func (t *TinyPtrTable) candidateBins(key uint64) (uint64, uint64) {
	return t.hash(t.seed0, key) % t.numBins, t.hash(t.seed1, key) % t.numBins
}

// Allocate places a new frame keyed by key (typically the allocating
// entry's physical address), narrowed to keyWidth bits, and returns the
// encoded tiny pointer together with the resolved absolute frame number.
func (t *TinyPtrTable) Allocate(key uint64, keyWidth uint8) (tinyPtr uint8, frame uint64, err error) {
	bin0, bin1 := t.candidateBins(key)

	choice := uint64(0)
	chosen := bin0
	if t.bins[bin1].count < t.bins[bin0].count {
		choice = 1
		chosen = bin1
	}

	slot, ok := t.bins[chosen].insert(keyWidth)
	if !ok {
		return 0, 0, ErrNoSlotInRange
	}

	t.allocated++
	tinyPtr = uint8(choice<<7) | slot
	frame = chosen*BinSize + uint64(slot-1)
	return tinyPtr, frame, nil
}

// Decode recovers the frame a previously issued tiny pointer encodes, by
// rehashing key with whichever seed the pointer's high bit selects.
func (t *TinyPtrTable) Decode(key uint64, tinyPtr uint8) uint64 {
	choice := tinyPtr >> 7
	slot := tinyPtr &^ (1 << 7)

	seed := t.seed0
	if choice == 1 {
		seed = t.seed1
	}
	binIndex := t.hash(seed, key) % t.numBins
	return binIndex*BinSize + uint64(slot-1)
}

// Free returns a previously allocated frame to its bin's free list.
func (t *TinyPtrTable) Free(key uint64, tinyPtr uint8) {
	choice := tinyPtr >> 7
	slot := tinyPtr &^ (1 << 7)

	seed := t.seed0
	if choice == 1 {
		seed = t.seed1
	}
	binIndex := t.hash(seed, key) % t.numBins
	t.bins[binIndex].free(slot)
	t.allocated--
}

// Allocated returns the number of frames currently handed out.
func (t *TinyPtrTable) Allocated() uint64 { return t.allocated }

// Total returns the total frame capacity across all bins.
func (t *TinyPtrTable) Total() uint64 { return t.numBins * BinSize }
