// Package pagetable implements a 4-level, x86-style virtual-to-physical
// address translation pipeline: two TLB levels, three page-walk caches
// (PWCs), and the page-table walk itself, backed by a physmem.Memory frame
// allocator and, optionally, a datacache.CacheHierarchy modeling PTE
// fetches as ordinary cacheable loads.
package pagetable

import (
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/sarchlab/vmemsim/datacache"
	"github.com/sarchlab/vmemsim/physmem"
	"github.com/sarchlab/vmemsim/pwc"
	"github.com/sarchlab/vmemsim/tlb"
)

// ErrInvalidConfig is wrapped by every configuration error Validate
// returns.
var ErrInvalidConfig = errors.New("invalid page table configuration")

// Config describes the shape of the 4-level page table and the caches that
// accelerate walking it.
type Config struct {
	PgdEntries int
	PudEntries int
	PmdEntries int
	PteEntries int

	// PteCachable routes every page-table-entry fetch through the data
	// cache hierarchy before counting it as a page-walk memory access.
	PteCachable bool

	// TOCEnabled selects table-of-contents sub-indexing for all three
	// PWCs; TOCSize is the number of sub-entries sharing one tag-line and
	// must be zero when TOCEnabled is false.
	TOCEnabled bool
	TOCSize    uint32

	L1TLBEntries, L1TLBWays int
	L2TLBEntries, L2TLBWays int

	PgdPWCEntries, PgdPWCWays int
	PudPWCEntries, PudPWCWays int
	PmdPWCEntries, PmdPWCWays int
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

func log2(n int) uint { return uint(bits.Len(uint(n)) - 1) }

// Validate checks the entry-count/shift invariants and the
// table-of-contents size rule.
func (cfg Config) Validate() error {
	for _, n := range []int{cfg.PgdEntries, cfg.PudEntries, cfg.PmdEntries, cfg.PteEntries} {
		if !isPow2(n) {
			return fmt.Errorf("pagetable: %w: entry count %d is not a power of two", ErrInvalidConfig, n)
		}
	}

	shiftPte := uint(12)
	shiftPmd := shiftPte + log2(cfg.PteEntries)
	shiftPud := shiftPmd + log2(cfg.PmdEntries)
	shiftPgd := shiftPud + log2(cfg.PudEntries)
	if shiftPgd+log2(cfg.PgdEntries) != 48 {
		return fmt.Errorf("pagetable: %w: level widths do not cover the 48-bit canonical address space (shiftPgd=%d, pgdEntries=%d)",
			ErrInvalidConfig, shiftPgd, cfg.PgdEntries)
	}

	if cfg.TOCEnabled {
		if cfg.TOCSize == 0 || !isPow2(int(cfg.TOCSize)) {
			return fmt.Errorf("pagetable: %w: TOC size %d must be a nonzero power of two when enabled", ErrInvalidConfig, cfg.TOCSize)
		}
	} else if cfg.TOCSize != 0 {
		return fmt.Errorf("pagetable: %w: TOC size must be zero when disabled", ErrInvalidConfig)
	}

	return nil
}

// LevelStats tracks one page-table level's activity across a run.
type LevelStats struct {
	Name        string
	Accesses    uint64
	Allocations uint64
	Entries     uint64
	Size        uint64
}

// FillRate reports the fraction of allocated pages' entries that are
// populated, as a percentage.
func (s LevelStats) FillRate() float64 {
	if s.Allocations == 0 {
		return 0
	}
	return float64(s.Entries) / (float64(s.Allocations) * float64(s.Size)) * 100
}

// TranslationStats tallies where each Translate call was resolved and how
// PTE fetches interacted with the data cache hierarchy.
type TranslationStats struct {
	L1TLBHits uint64
	L2TLBHits uint64
	PMDHits   uint64
	PUDHits   uint64
	PGDHits   uint64
	FullWalks uint64

	PTEDataCacheHits   uint64
	PTEDataCacheMisses uint64
	PageWalkMemAccess  uint64
}

// Total returns the number of Translate calls the stats were gathered
// over.
func (s TranslationStats) Total() uint64 {
	return s.L1TLBHits + s.L2TLBHits + s.PMDHits + s.PUDHits + s.PGDHits + s.FullWalks
}

// PageTable is the root of the 4-level translation structure: a PGD frame
// (cr3) plus every PUD/PMD/PTE frame reachable from it, keyed uniformly by
// byte address.
type PageTable struct {
	cfg Config

	mem  *physmem.Memory
	hier *datacache.CacheHierarchy

	pages map[uint64]*Page
	cr3   uint64

	l1TLB, l2TLB           *tlb.TLB
	pgdPWC, pudPWC, pmdPWC *pwc.PWC

	pgdEntryWidth, pudEntryWidth, pmdEntryWidth, pteEntryWidth int
	shiftPte, shiftPmd, shiftPud, shiftPgd                     uint

	stats                                   TranslationStats
	pgdStats, pudStats, pmdStats, pteStats LevelStats
}

// New allocates the root page-table frame and constructs the TLBs and PWCs
// described by cfg.
func New(cfg Config, mem *physmem.Memory, hier *datacache.CacheHierarchy) (*PageTable, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shiftPte := uint(12)
	shiftPmd := shiftPte + log2(cfg.PteEntries)
	shiftPud := shiftPmd + log2(cfg.PmdEntries)
	shiftPgd := shiftPud + log2(cfg.PudEntries)

	pt := &PageTable{
		cfg:           cfg,
		mem:           mem,
		hier:          hier,
		pages:         make(map[uint64]*Page),
		l1TLB:         tlb.New("L1 TLB", cfg.L1TLBEntries, cfg.L1TLBWays),
		l2TLB:         tlb.New("L2 TLB", cfg.L2TLBEntries, cfg.L2TLBWays),
		pgdEntryWidth: 4096 / cfg.PgdEntries,
		pudEntryWidth: 4096 / cfg.PudEntries,
		pmdEntryWidth: 4096 / cfg.PmdEntries,
		pteEntryWidth: 4096 / cfg.PteEntries,
		shiftPte:      shiftPte,
		shiftPmd:      shiftPmd,
		shiftPud:      shiftPud,
		shiftPgd:      shiftPgd,
		pgdStats:      LevelStats{Name: "PGD (Page Global Directory)", Size: uint64(cfg.PgdEntries)},
		pudStats:      LevelStats{Name: "PUD (Page Upper Directory)", Size: uint64(cfg.PudEntries)},
		pmdStats:      LevelStats{Name: "PMD (Page Middle Directory)", Size: uint64(cfg.PmdEntries)},
		pteStats:      LevelStats{Name: "PTE (Page Table Entry)", Size: uint64(cfg.PteEntries)},
	}

	if cfg.TOCEnabled {
		pt.pgdPWC = pwc.NewTOC("PML4E Cache (PGD)", cfg.PgdPWCEntries, cfg.PgdPWCWays, shiftPgd, 47, cfg.TOCSize)
		pt.pudPWC = pwc.NewTOC("PDPTE Cache (PUD)", cfg.PudPWCEntries, cfg.PudPWCWays, shiftPud, 47, cfg.TOCSize)
		pt.pmdPWC = pwc.NewTOC("PDE Cache (PMD)", cfg.PmdPWCEntries, cfg.PmdPWCWays, shiftPmd, 47, cfg.TOCSize)
	} else {
		pt.pgdPWC = pwc.New("PML4E Cache (PGD)", cfg.PgdPWCEntries, cfg.PgdPWCWays, shiftPgd, 47)
		pt.pudPWC = pwc.New("PDPTE Cache (PUD)", cfg.PudPWCEntries, cfg.PudPWCWays, shiftPud, 47)
		pt.pmdPWC = pwc.New("PDE Cache (PMD)", cfg.PmdPWCEntries, cfg.PmdPWCWays, shiftPmd, 47)
	}

	rootFrame, err := mem.AllocateFrame(0)
	if err != nil {
		return nil, fmt.Errorf("pagetable: allocating root frame: %w", err)
	}
	pt.cr3 = rootFrame << 12
	pt.pages[pt.cr3] = &Page{}
	pt.pgdStats.Allocations++

	return pt, nil
}

func (pt *PageTable) pgdIndex(vaddr uint64) uint64 {
	return (vaddr >> pt.shiftPgd) & uint64(pt.cfg.PgdEntries-1)
}

func (pt *PageTable) pudIndex(vaddr uint64) uint64 {
	return (vaddr >> pt.shiftPud) & uint64(pt.cfg.PudEntries-1)
}

func (pt *PageTable) pmdIndex(vaddr uint64) uint64 {
	return (vaddr >> pt.shiftPmd) & uint64(pt.cfg.PmdEntries-1)
}

func (pt *PageTable) pteIndex(vaddr uint64) uint64 {
	return (vaddr >> pt.shiftPte) & uint64(pt.cfg.PteEntries-1)
}

func pageOffset(vaddr uint64) uint64 { return vaddr & 0xFFF }

// allocKeyWidth returns the bit width of the tiny-pointer field a given
// entry width stores, which also bounds the key width passed to the
// tiny-pointer allocator.
func allocKeyWidth(width int) uint8 {
	if width == 1 {
		return 6
	}
	return 8
}

// resolveChild returns the byte address of the child frame referenced by
// the index'th entry of width bytes within parentPage (whose own byte
// address is parentAddr), allocating and zero-filling that frame on first
// use. The child frame is recorded in pt.pages under its byte address
// regardless of whether it was reached through the direct-PFN (8-byte) or
// tiny-pointer (narrow) path, resolving the page-map key inconsistency
// between those two paths in the reference implementation.
func (pt *PageTable) resolveChild(parentPage *Page, parentAddr, index uint64, width int) (childAddr uint64, allocated bool, err error) {
	entryAddr := parentAddr + index*uint64(width)

	if width == 8 {
		e := parentPage.Entries8B(index)
		if e.Present() {
			return e.PFN() << 12, false, nil
		}
		frame, err := pt.mem.AllocateFrame(entryAddr)
		if err != nil {
			return 0, false, err
		}
		e.SetPresent(true)
		e.SetWritable(true)
		e.SetPFN(frame)
		childAddr = frame << 12
		pt.pages[childAddr] = &Page{}
		return childAddr, true, nil
	}

	var present bool
	var tiny uint8
	var setPresent func(bool)
	var setTiny func(uint8)

	switch width {
	case 4:
		e := parentPage.Entries4B(index)
		present, tiny = e.Present(), e.TinyPointer()
		setPresent, setTiny = e.SetPresent, e.SetTinyPointer
	case 2:
		e := parentPage.Entries2B(index)
		present, tiny = e.Present(), e.TinyPointer()
		setPresent, setTiny = e.SetPresent, e.SetTinyPointer
	case 1:
		e := parentPage.Entries1B(index)
		present, tiny = e.Present(), e.TinyPointer()
		setPresent, setTiny = e.SetPresent, e.SetTinyPointer
	default:
		return 0, false, fmt.Errorf("pagetable: invalid entry width %d", width)
	}

	if present {
		return pt.mem.DecodeFrame(entryAddr, tiny) << 12, false, nil
	}

	newTiny, frame, err := pt.mem.AllocateTinyPtrFrame(entryAddr, allocKeyWidth(width))
	if err != nil {
		return 0, false, err
	}
	setPresent(true)
	setTiny(newTiny)
	childAddr = frame << 12
	pt.pages[childAddr] = &Page{}
	return childAddr, true, nil
}

// translateLookup probes the data cache hierarchy for entryAddr when PTEs
// are configured as cacheable, tallying the translation stats' PTE-cache
// counters, and reports whether the fetch hit.
func (pt *PageTable) translateLookup(entryAddr uint64) bool {
	if !pt.cfg.PteCachable {
		pt.stats.PageWalkMemAccess++
		return false
	}
	if pt.hier.TranslateLookup(entryAddr) {
		pt.stats.PTEDataCacheHits++
		return true
	}
	pt.stats.PTEDataCacheMisses++
	pt.stats.PageWalkMemAccess++
	return false
}

// completePte resolves the PTE-level entry and returns the final physical
// address. Grounded on CompletePmdCacheHit in original_source/page_table.h.
func (pt *PageTable) completePte(vaddr, pteTableAddr uint64) (uint64, error) {
	idx := pt.pteIndex(vaddr)
	entryAddr := pteTableAddr + idx*uint64(pt.pteEntryWidth)
	hit := pt.translateLookup(entryAddr)

	childAddr, allocated, err := pt.resolveChild(pt.pages[pteTableAddr], pteTableAddr, idx, pt.pteEntryWidth)
	if err != nil {
		return 0, fmt.Errorf("pagetable: resolving PTE: %w", err)
	}
	if !hit {
		pt.pteStats.Accesses++
	}
	if allocated {
		pt.pteStats.Entries++
	}

	return childAddr | pageOffset(vaddr), nil
}

// completePmd resolves the PMD-level entry, inserts the resolved PTE table
// into the PMD PWC, and continues to completePte. Grounded on
// CompletePudCacheHit in original_source/page_table.h.
func (pt *PageTable) completePmd(vaddr, pmdTableAddr uint64) (uint64, error) {
	idx := pt.pmdIndex(vaddr)
	entryAddr := pmdTableAddr + idx*uint64(pt.pmdEntryWidth)
	hit := pt.translateLookup(entryAddr)

	childAddr, allocated, err := pt.resolveChild(pt.pages[pmdTableAddr], pmdTableAddr, idx, pt.pmdEntryWidth)
	if err != nil {
		return 0, fmt.Errorf("pagetable: resolving PMD: %w", err)
	}
	if !hit {
		pt.pmdStats.Accesses++
	}
	if allocated {
		pt.pteStats.Allocations++
		pt.pmdStats.Entries++
	}

	pt.pmdPWC.Insert(vaddr, childAddr>>12)
	return pt.completePte(vaddr, childAddr)
}

// completePud resolves the PUD-level entry, inserts the resolved PMD table
// into the PUD PWC, and continues to completePmd. Grounded on
// CompletePgdCacheHit in original_source/page_table.h.
func (pt *PageTable) completePud(vaddr, pudTableAddr uint64) (uint64, error) {
	idx := pt.pudIndex(vaddr)
	entryAddr := pudTableAddr + idx*uint64(pt.pudEntryWidth)
	hit := pt.translateLookup(entryAddr)

	childAddr, allocated, err := pt.resolveChild(pt.pages[pudTableAddr], pudTableAddr, idx, pt.pudEntryWidth)
	if err != nil {
		return 0, fmt.Errorf("pagetable: resolving PUD: %w", err)
	}
	if !hit {
		pt.pudStats.Accesses++
	}
	if allocated {
		pt.pmdStats.Allocations++
		pt.pudStats.Entries++
	}

	pt.pudPWC.Insert(vaddr, childAddr>>12)
	return pt.completePmd(vaddr, childAddr)
}

// completePgd resolves the root PGD entry, inserts the resolved PUD table
// into the PGD PWC, and continues to completePud. Grounded on
// CompleteFullWalk in original_source/page_table.h.
func (pt *PageTable) completePgd(vaddr uint64) (uint64, error) {
	idx := pt.pgdIndex(vaddr)
	entryAddr := pt.cr3 + idx*uint64(pt.pgdEntryWidth)
	hit := pt.translateLookup(entryAddr)

	childAddr, allocated, err := pt.resolveChild(pt.pages[pt.cr3], pt.cr3, idx, pt.pgdEntryWidth)
	if err != nil {
		return 0, fmt.Errorf("pagetable: resolving PGD: %w", err)
	}
	if !hit {
		pt.pgdStats.Accesses++
	}
	if allocated {
		pt.pudStats.Allocations++
		pt.pgdStats.Entries++
	}

	pt.pgdPWC.Insert(vaddr, childAddr>>12)
	return pt.completePud(vaddr, childAddr)
}

// Translate walks vaddr through the six-state translation pipeline: L1
// TLB, L2 TLB, PMD/PUD/PGD page-walk caches, and finally a full page-table
// walk, filling every level it bypassed on the way back out.
func (pt *PageTable) Translate(vaddr uint64) (uint64, error) {
	vpn := vaddr >> 12

	if pfn, hit := pt.l1TLB.Lookup(vpn); hit {
		pt.stats.L1TLBHits++
		return (pfn << 12) | pageOffset(vaddr), nil
	}

	if pfn, hit := pt.l2TLB.Lookup(vpn); hit {
		pt.stats.L2TLBHits++
		pt.l1TLB.Insert(vpn, pfn)
		return (pfn << 12) | pageOffset(vaddr), nil
	}

	var paddr uint64
	var err error

	if pfn, hit := pt.pmdPWC.Lookup(vaddr); hit {
		pt.stats.PMDHits++
		paddr, err = pt.completePte(vaddr, pfn<<12)
	} else if pfn, hit := pt.pudPWC.Lookup(vaddr); hit {
		pt.stats.PUDHits++
		paddr, err = pt.completePmd(vaddr, pfn<<12)
	} else if pfn, hit := pt.pgdPWC.Lookup(vaddr); hit {
		pt.stats.PGDHits++
		paddr, err = pt.completePud(vaddr, pfn<<12)
	} else {
		pt.stats.FullWalks++
		paddr, err = pt.completePgd(vaddr)
	}
	if err != nil {
		return 0, err
	}

	pfn := paddr >> 12
	pt.l1TLB.Insert(vpn, pfn)
	pt.l2TLB.Insert(vpn, pfn)
	return paddr, nil
}

// Stats returns the accumulated translation-path statistics.
func (pt *PageTable) Stats() TranslationStats { return pt.stats }

// PgdStats, PudStats, PmdStats and PteStats return each level's
// accumulated statistics.
func (pt *PageTable) PgdStats() LevelStats { return pt.pgdStats }
func (pt *PageTable) PudStats() LevelStats { return pt.pudStats }
func (pt *PageTable) PmdStats() LevelStats { return pt.pmdStats }
func (pt *PageTable) PteStats() LevelStats { return pt.pteStats }

// NumPageTables reports how many page-table-sized frames have been
// allocated, including the root.
func (pt *PageTable) NumPageTables() int { return len(pt.pages) }

// WriteReport renders the translation-path breakdown, TLB/PWC structure
// summary, and per-level page-table table to w.
func (pt *PageTable) WriteReport(w io.Writer) error {
	s := pt.stats
	total := s.Total()

	fmt.Fprintln(w, "Translation Path Breakdown")
	fmt.Fprintln(w, "--------------------------")
	rows := []struct {
		name string
		n    uint64
	}{
		{"L1 TLB hit", s.L1TLBHits},
		{"L2 TLB hit", s.L2TLBHits},
		{"PMD PWC hit", s.PMDHits},
		{"PUD PWC hit", s.PUDHits},
		{"PGD PWC hit", s.PGDHits},
		{"Full walk", s.FullWalks},
	}
	for _, r := range rows {
		pct := 0.0
		if total > 0 {
			pct = float64(r.n) / float64(total) * 100
		}
		if _, err := fmt.Fprintf(w, "  %-14s %12d  (%5.2f%%)\n", r.name, r.n, pct); err != nil {
			return err
		}
	}
	fmt.Fprintf(w, "  %-14s %12d\n\n", "Total", total)

	tlbTotal := s.L1TLBHits + s.L2TLBHits
	fmt.Fprintln(w, "TLB Efficiency")
	fmt.Fprintln(w, "--------------")
	if total > 0 {
		fmt.Fprintf(w, "  combined TLB hit rate: %.2f%%\n", float64(tlbTotal)/float64(total)*100)
	}
	fmt.Fprintln(w)

	if pt.cfg.PteCachable {
		pteTotal := s.PTEDataCacheHits + s.PTEDataCacheMisses
		fmt.Fprintln(w, "PTE Data Cache (during page walks)")
		fmt.Fprintln(w, "-----------------------------------")
		fmt.Fprintf(w, "  hits:   %d\n", s.PTEDataCacheHits)
		fmt.Fprintf(w, "  misses: %d\n", s.PTEDataCacheMisses)
		if pteTotal > 0 {
			fmt.Fprintf(w, "  hit rate: %.2f%%\n", float64(s.PTEDataCacheHits)/float64(pteTotal)*100)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "Cache Structures")
	fmt.Fprintln(w, "----------------")
	fmt.Fprintf(w, "  %-20s %8s %6s %12s %12s %8s\n", "Structure", "Entries", "Ways", "Accesses", "Hits", "Hit%")
	for _, c := range []interface {
		Name() string
		Size() int
		Ways() int
		Accesses() uint64
		Hits() uint64
		HitRate() float64
	}{pt.l1TLB, pt.l2TLB, pt.pgdPWC, pt.pudPWC, pt.pmdPWC} {
		fmt.Fprintf(w, "  %-20s %8d %6d %12d %12d %7.2f%%\n", c.Name(), c.Size(), c.Ways(), c.Accesses(), c.Hits(), c.HitRate()*100)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Page Table Levels")
	fmt.Fprintln(w, "-----------------")
	fmt.Fprintf(w, "  %-30s %10s %12s %10s %8s\n", "Level", "Accesses", "Allocations", "Entries", "Fill%")
	for _, l := range []LevelStats{pt.pgdStats, pt.pudStats, pt.pmdStats, pt.pteStats} {
		fmt.Fprintf(w, "  %-30s %10d %12d %10d %7.2f%%\n", l.Name, l.Accesses, l.Allocations, l.Entries, l.FillRate())
	}
	fmt.Fprintf(w, "  %-30s %10d\n", "Total page-table frames", pt.NumPageTables())

	return nil
}
