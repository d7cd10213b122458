// Package datacache implements the write-back, write-allocate data-cache
// hierarchy: a DataCache specialization of setcache.Cache with line-offset
// addressing and write-back propagation, composed into a three-level
// CacheHierarchy. Grounded on original_source/data_cache.h.
package datacache

import (
	"math/bits"

	"github.com/sarchlab/vmemsim/setcache"
)

// DataCache is a single level of the hierarchy: an LRU set-associative
// store addressed by a line tag, tracking read/write/miss statistics and
// propagating dirty evictions to the next level (or to main memory, for the
// last level).
type DataCache struct {
	name       string
	lineSize   uint64
	offsetBits uint

	cache *setcache.Cache[uint64]

	readAccesses, readHits   uint64
	writeAccesses, writeHits uint64
	writebacks               uint64
	coldMisses               uint64
	capacityMisses           uint64
	conflictMisses           uint64

	nextLevel        *DataCache
	memAccessCounter *uint64
}

// New creates a DataCache of totalSize bytes, split into sets of
// associativity ways with lineSize-byte lines.
func New(name string, totalSize, associativity, lineSize uint64) *DataCache {
	numSets := totalSize / (associativity * lineSize)
	offsetBits := uint(bits.TrailingZeros64(lineSize))

	dc := &DataCache{name: name, lineSize: lineSize, offsetBits: offsetBits}
	dc.cache = setcache.New[uint64](name, setcache.Config{NumSets: int(numSets), Ways: int(associativity)},
		func(tag uint64) int { return int(tag & (numSets - 1)) },
		dc.handleEviction,
	)
	return dc
}

// SetNextLevel links this cache's write-back target. Call before any
// access; the link is fixed thereafter.
func (dc *DataCache) SetNextLevel(next *DataCache) { dc.nextLevel = next }

// SetMemCounter points this cache at the hierarchy's shared main-memory
// access counter, incremented on a write-back with no next level.
func (dc *DataCache) SetMemCounter(counter *uint64) { dc.memAccessCounter = counter }

// handleEviction is the on-evict hook passed to the underlying
// setcache.Cache: it only fires for dirty, valid victims.
func (dc *DataCache) handleEviction(tag, value uint64) {
	dc.writebacks++
	if dc.nextLevel != nil {
		nextTag := tag << dc.offsetBits >> dc.nextLevel.offsetBits
		dc.nextLevel.Insert(nextTag, value, true)
		return
	}
	if dc.memAccessCounter != nil {
		*dc.memAccessCounter++
	}
}

// Lookup looks up tag, classifying the access as a read or write and, on a
// miss, as cold/capacity/conflict per the heuristic in spec.md §4.1: cold
// while the LRU counter is below the cache's entry count (numSets*ways),
// else capacity if the LRU victim sits in a non-zero way, else conflict.
func (dc *DataCache) Lookup(tag uint64, isWrite bool) (uint64, bool) {
	value, hit := dc.cache.Lookup(tag)

	if isWrite {
		dc.writeAccesses++
		if hit {
			dc.writeHits++
		}
	} else {
		dc.readAccesses++
		if hit {
			dc.readHits++
		}
	}

	if !hit {
		switch {
		case dc.cache.GlobalLRU() < uint64(dc.cache.NumSets()*dc.cache.Ways()):
			dc.coldMisses++
		case dc.cache.VictimWayIsNonZero(tag):
			dc.capacityMisses++
		default:
			dc.conflictMisses++
		}
	}

	return value, hit
}

// Insert fills tag with value, marking the line dirty if isWrite.
func (dc *DataCache) Insert(tag, value uint64, isWrite bool) {
	dc.cache.Insert(tag, value, isWrite)
}

// Name returns the cache's name, for report rendering.
func (dc *DataCache) Name() string { return dc.name }

// OffsetBits returns log2(lineSize).
func (dc *DataCache) OffsetBits() uint { return dc.offsetBits }

// Size returns the cache's total capacity in bytes.
func (dc *DataCache) Size() uint64 {
	return uint64(dc.cache.NumSets()*dc.cache.Ways()) * dc.lineSize
}

// NumSets returns the number of sets.
func (dc *DataCache) NumSets() int { return dc.cache.NumSets() }

// Ways returns the associativity.
func (dc *DataCache) Ways() int { return dc.cache.Ways() }

// Accesses returns the total number of lookups (read + write).
func (dc *DataCache) Accesses() uint64 { return dc.cache.Accesses() }

// Hits returns the total number of lookups that hit.
func (dc *DataCache) Hits() uint64 { return dc.cache.Hits() }

// HitRate returns Hits/Accesses, or 0 with no accesses.
func (dc *DataCache) HitRate() float64 { return dc.cache.HitRate() }

// ReadAccesses returns the number of read lookups.
func (dc *DataCache) ReadAccesses() uint64 { return dc.readAccesses }

// ReadHits returns the number of read lookups that hit.
func (dc *DataCache) ReadHits() uint64 { return dc.readHits }

// ReadHitRate returns ReadHits/ReadAccesses, or 0 with no read accesses.
func (dc *DataCache) ReadHitRate() float64 {
	if dc.readAccesses == 0 {
		return 0
	}
	return float64(dc.readHits) / float64(dc.readAccesses)
}

// WriteAccesses returns the number of write lookups.
func (dc *DataCache) WriteAccesses() uint64 { return dc.writeAccesses }

// WriteHits returns the number of write lookups that hit.
func (dc *DataCache) WriteHits() uint64 { return dc.writeHits }

// WriteHitRate returns WriteHits/WriteAccesses, or 0 with no write accesses.
func (dc *DataCache) WriteHitRate() float64 {
	if dc.writeAccesses == 0 {
		return 0
	}
	return float64(dc.writeHits) / float64(dc.writeAccesses)
}

// Writebacks returns the number of dirty evictions propagated downward.
func (dc *DataCache) Writebacks() uint64 { return dc.writebacks }

// ColdMisses returns the number of misses classified cold.
func (dc *DataCache) ColdMisses() uint64 { return dc.coldMisses }

// CapacityMisses returns the number of misses classified capacity.
func (dc *DataCache) CapacityMisses() uint64 { return dc.capacityMisses }

// ConflictMisses returns the number of misses classified conflict.
func (dc *DataCache) ConflictMisses() uint64 { return dc.conflictMisses }

// AllMisses returns the sum of all three miss classifications.
func (dc *DataCache) AllMisses() uint64 {
	return dc.coldMisses + dc.capacityMisses + dc.conflictMisses
}
