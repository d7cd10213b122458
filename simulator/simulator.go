// Package simulator wires physmem, datacache, and pagetable into the
// three-operation driver-facing API from spec.md §6: construct, process a
// batch of references, and render a report. Grounded on
// original_source/main.cpp's per-reference orchestration loop.
package simulator

import (
	"fmt"
	"io"

	"github.com/rs/xid"

	"github.com/sarchlab/vmemsim/config"
	"github.com/sarchlab/vmemsim/datacache"
	"github.com/sarchlab/vmemsim/pagetable"
	"github.com/sarchlab/vmemsim/physmem"
	"github.com/sarchlab/vmemsim/trace"
)

const bytesPerGB = 1 << 30

// Simulator owns one closed-world run: its own physical memory, cache
// hierarchy, and page table, none of which are shared with any other
// Simulator instance.
type Simulator struct {
	id  string
	cfg config.Config

	mem  *physmem.Memory
	hier *datacache.CacheHierarchy
	pt   *pagetable.PageTable

	accessCount   uint64
	virtualPages  map[uint64]uint64
	physicalPages map[uint64]uint64
}

// Construct validates cfg and builds the physical memory allocator, cache
// hierarchy, and page table described by it.
func Construct(cfg config.Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	totalBytes := cfg.PhysMemGB * bytesPerGB

	var mem *physmem.Memory
	if cfg.TinyPtrEnabled {
		mem = physmem.NewTinyPtr(totalBytes, cfg.TinyPtrSeed0, cfg.TinyPtrSeed1)
	} else {
		mem = physmem.NewLinear(totalBytes)
	}

	hier := datacache.NewHierarchy(
		cfg.L1Cache.SizeBytes, cfg.L1Cache.Ways, cfg.L1Cache.LineBytes,
		cfg.L2Cache.SizeBytes, cfg.L2Cache.Ways, cfg.L2Cache.LineBytes,
		cfg.L3Cache.SizeBytes, cfg.L3Cache.Ways, cfg.L3Cache.LineBytes,
	)

	ptCfg := pagetable.Config{
		PgdEntries:    cfg.PageTable.PgdEntries,
		PudEntries:    cfg.PageTable.PudEntries,
		PmdEntries:    cfg.PageTable.PmdEntries,
		PteEntries:    cfg.PageTable.PteEntries,
		PteCachable:   cfg.PageTable.PteCachable,
		TOCEnabled:    cfg.PageTable.TOCEnabled,
		TOCSize:       cfg.PageTable.TOCSize,
		L1TLBEntries:  cfg.L1TLB.Entries,
		L1TLBWays:     cfg.L1TLB.Ways,
		L2TLBEntries:  cfg.L2TLB.Entries,
		L2TLBWays:     cfg.L2TLB.Ways,
		PgdPWCEntries: cfg.PgdPWC.Entries,
		PgdPWCWays:    cfg.PgdPWC.Ways,
		PudPWCEntries: cfg.PudPWC.Entries,
		PudPWCWays:    cfg.PudPWC.Ways,
		PmdPWCEntries: cfg.PmdPWC.Entries,
		PmdPWCWays:    cfg.PmdPWC.Ways,
	}

	pt, err := pagetable.New(ptCfg, mem, hier)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}

	return &Simulator{
		id:            xid.New().String(),
		cfg:           cfg,
		mem:           mem,
		hier:          hier,
		pt:            pt,
		virtualPages:  make(map[uint64]uint64),
		physicalPages: make(map[uint64]uint64),
	}, nil
}

// ID returns the run's unique identifier, stamped at construction.
func (s *Simulator) ID() string { return s.id }

// ProcessBatch translates and caches every reference in refs, in order.
// Batching is a driver-side optimization only: per-reference semantics are
// identical to calling ProcessBatch once per reference.
func (s *Simulator) ProcessBatch(refs []trace.Reference) error {
	for _, ref := range refs {
		paddr, err := s.pt.Translate(ref.EA)
		if err != nil {
			return fmt.Errorf("simulator: translating 0x%x: %w", ref.EA, err)
		}

		isWrite := ref.IsRead == 0
		s.hier.Access(paddr, isWrite)

		s.accessCount++
		s.virtualPages[ref.EA>>12]++
		s.physicalPages[paddr>>12]++
	}

	return nil
}

// AccessCount returns the number of references processed so far.
func (s *Simulator) AccessCount() uint64 { return s.accessCount }

// Report renders the full plain-text report to w: a run header, the
// page-table's translation-path and per-level breakdown, a detailed block
// per data-cache level, and the aggregate memory-access and advisory-cost
// figures.
func (s *Simulator) Report(w io.Writer) error {
	fmt.Fprintf(w, "Simulation Results\n")
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "Run ID:               %s\n", s.id)
	fmt.Fprintf(w, "Total accesses:       %d\n", s.accessCount)
	fmt.Fprintf(w, "Unique virtual pages: %d\n", len(s.virtualPages))
	fmt.Fprintf(w, "Unique physical pages:%d\n", len(s.physicalPages))
	fmt.Fprintf(w, "Physical memory used: %.2f MB\n\n", float64(len(s.physicalPages)*4096)/(1024*1024))

	if err := s.pt.WriteReport(w); err != nil {
		return err
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Data Cache Hierarchy")
	fmt.Fprintln(w, "---------------------")
	for _, c := range []*datacache.DataCache{s.hier.L1, s.hier.L2, s.hier.L3} {
		writeCacheBlock(w, c)
	}
	fmt.Fprintf(w, "  %-10s %d\n\n", "Memory accesses:", s.hier.MemoryAccesses())

	fmt.Fprintf(w, "Total access cost (advisory): %d cycles\n", s.hier.AccessCost())

	return nil
}

func writeCacheBlock(w io.Writer, c *datacache.DataCache) {
	fmt.Fprintf(w, "  %s\n", c.Name())
	fmt.Fprintf(w, "    accesses=%d hits=%d hit_rate=%.2f%%\n", c.Accesses(), c.Hits(), c.HitRate()*100)
	fmt.Fprintf(w, "    read: accesses=%d hits=%d hit_rate=%.2f%%\n", c.ReadAccesses(), c.ReadHits(), c.ReadHitRate()*100)
	fmt.Fprintf(w, "    write: accesses=%d hits=%d hit_rate=%.2f%%\n", c.WriteAccesses(), c.WriteHits(), c.WriteHitRate()*100)
	fmt.Fprintf(w, "    misses: cold=%d capacity=%d conflict=%d\n", c.ColdMisses(), c.CapacityMisses(), c.ConflictMisses())
	fmt.Fprintf(w, "    writebacks=%d\n", c.Writebacks())
}
