// Package tlb implements the two-level Translation Lookaside Buffer: a
// VPN-to-PFN specialization of setcache.Cache with no write-back (spec.md
// §4.2). Grounded on original_source/tlb.h.
package tlb

import "github.com/sarchlab/vmemsim/setcache"

// TLB maps a virtual page number to a physical frame number.
type TLB struct {
	cache *setcache.Cache[uint64]
}

// New creates a TLB with entries total slots split into entries/ways sets.
func New(name string, entries, ways int) *TLB {
	numSets := entries / ways
	cache := setcache.New[uint64](name, setcache.Config{NumSets: numSets, Ways: ways},
		func(vpn uint64) int { return int(vpn % uint64(numSets)) },
		nil, // TLB entries are never written back.
	)
	return &TLB{cache: cache}
}

// Lookup returns the PFN mapped to vpn, if present.
func (t *TLB) Lookup(vpn uint64) (uint64, bool) { return t.cache.Lookup(vpn) }

// Insert installs vpn -> pfn.
func (t *TLB) Insert(vpn, pfn uint64) { t.cache.Insert(vpn, pfn, false) }

// Name returns the TLB's name, for report rendering.
func (t *TLB) Name() string { return t.cache.Name() }

// Accesses returns the number of lookups performed.
func (t *TLB) Accesses() uint64 { return t.cache.Accesses() }

// Hits returns the number of lookups that hit.
func (t *TLB) Hits() uint64 { return t.cache.Hits() }

// HitRate returns Hits/Accesses.
func (t *TLB) HitRate() float64 { return t.cache.HitRate() }

// Size returns the total number of entries.
func (t *TLB) Size() int { return t.cache.Size() }

// NumSets returns the number of sets.
func (t *TLB) NumSets() int { return t.cache.NumSets() }

// Ways returns the associativity.
func (t *TLB) Ways() int { return t.cache.Ways() }
