// Package pwc implements the page-walk cache: a cache of partial address
// translations keyed by a virtual-address bit range, with an optional
// table-of-contents (TOC) mode that packs several sibling translations
// behind one tag. Grounded on original_source/pwc.h.
package pwc

import (
	"math/bits"

	"github.com/sarchlab/vmemsim/setcache"
)

// tocEntry is one slot of a lazily-allocated table-of-contents block.
type tocEntry struct {
	valid bool
	value uint64
}

// PWC caches next-level page-table PFNs indexed by a virtual-address bit
// range. In TOC mode, one tag maps to a block of tocSize PFNs sub-indexed by
// the bits just below the tag's low bit, rather than one PFN per tag.
type PWC struct {
	name            string
	numSets, ways   int
	lowBit, highBit uint

	tocEnabled bool
	tocSize    uint32
	tocMask    uint64
	tocLowBit  uint // pre-shift lowBit; also the shift used to extract the TOC index

	plain *setcache.Cache[uint64]
	toc   *setcache.Cache[[]tocEntry]

	accesses uint64
	hits     uint64
}

// New creates a page-walk cache with entries total slots split into
// entries/ways sets, with no table of contents: one tag maps to exactly one
// next-level PFN. lowBit/highBit select the virtual-address bit range used
// as the tag.
func New(name string, entries, ways int, lowBit, highBit uint) *PWC {
	numSets := entries / ways
	return &PWC{
		name:    name,
		numSets: numSets,
		ways:    ways,
		lowBit:  lowBit,
		highBit: highBit,
		plain: setcache.New[uint64](name, setcache.Config{NumSets: numSets, Ways: ways},
			func(tag uint64) int { return int(tag % uint64(numSets)) },
			nil, // PWC entries are never written back.
		),
	}
}

// NewTOC creates a page-walk cache whose entries are tocSize-slot tables of
// contents: one tag maps to a block of tocSize next-level PFNs, sub-indexed
// by the log2(tocSize) virtual-address bits immediately below lowBit.
// tocSize must be a power of two.
func NewTOC(name string, entries, ways int, lowBit, highBit uint, tocSize uint32) *PWC {
	numSets := entries / ways
	shift := uint(bits.TrailingZeros32(tocSize))
	return &PWC{
		name:       name,
		numSets:    numSets,
		ways:       ways,
		lowBit:     lowBit + shift,
		highBit:    highBit,
		tocEnabled: true,
		tocSize:    tocSize,
		tocMask:    uint64(tocSize-1) << lowBit,
		tocLowBit:  lowBit,
		toc: setcache.New[[]tocEntry](name, setcache.Config{NumSets: numSets, Ways: ways},
			func(tag uint64) int { return int(tag % uint64(numSets)) },
			nil, // TOC blocks are never written back.
		),
	}
}

// Tag extracts the cache tag from a virtual address: the bits in
// [lowBit, highBit].
func (p *PWC) Tag(vaddr uint64) uint64 {
	mask := ((uint64(1) << (p.highBit - p.lowBit + 1)) - 1) << p.lowBit
	return (vaddr & mask) >> p.lowBit
}

func (p *PWC) tocIndex(vaddr uint64) int {
	return int((vaddr & p.tocMask) >> p.tocLowBit)
}

// Lookup returns the next-level PFN cached for vaddr, if present. In TOC
// mode a tag hit whose sub-slot is unpopulated still counts as a miss.
func (p *PWC) Lookup(vaddr uint64) (uint64, bool) {
	p.accesses++
	tag := p.Tag(vaddr)

	if !p.tocEnabled {
		pfn, hit := p.plain.Lookup(tag)
		if hit {
			p.hits++
		}
		return pfn, hit
	}

	block, tagHit := p.toc.Lookup(tag)
	if !tagHit {
		return 0, false
	}
	e := block[p.tocIndex(vaddr)]
	if !e.valid {
		return 0, false
	}
	p.hits++
	return e.value, true
}

// Insert records that vaddr's next-level page has PFN nextLevelPfn. In TOC
// mode, if the tag is already resident its block is updated in place;
// otherwise a fresh, all-invalid block is allocated and installed, freeing
// (dropping) whatever block it evicts.
func (p *PWC) Insert(vaddr, nextLevelPfn uint64) {
	tag := p.Tag(vaddr)

	if !p.tocEnabled {
		p.plain.Insert(tag, nextLevelPfn, false)
		return
	}

	if block, hit := p.toc.Lookup(tag); hit {
		block[p.tocIndex(vaddr)] = tocEntry{valid: true, value: nextLevelPfn}
		return
	}

	block := make([]tocEntry, p.tocSize)
	block[p.tocIndex(vaddr)] = tocEntry{valid: true, value: nextLevelPfn}
	p.toc.Insert(tag, block, false)
}

// Name returns the page-walk cache's name, for report rendering.
func (p *PWC) Name() string { return p.name }

// TOCEnabled reports whether this cache is in table-of-contents mode.
func (p *PWC) TOCEnabled() bool { return p.tocEnabled }

// TOCSize returns the number of PFN slots per table-of-contents block, or 0
// if TOC mode is disabled.
func (p *PWC) TOCSize() uint32 { return p.tocSize }

// Size returns the total number of tags the cache can hold.
func (p *PWC) Size() int { return p.numSets * p.ways }

// NumSets returns the number of sets.
func (p *PWC) NumSets() int { return p.numSets }

// Ways returns the associativity.
func (p *PWC) Ways() int { return p.ways }

// Accesses returns the number of lookups performed.
func (p *PWC) Accesses() uint64 { return p.accesses }

// Hits returns the number of lookups that hit.
func (p *PWC) Hits() uint64 { return p.hits }

// HitRate returns Hits/Accesses, or 0 if there have been no accesses.
func (p *PWC) HitRate() float64 {
	if p.accesses == 0 {
		return 0
	}
	return float64(p.hits) / float64(p.accesses)
}
