// Package main provides the entry point for vmemsim, a trace-driven
// simulator of an x86-style virtual memory translation and data cache
// subsystem.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/vmemsim/config"
	"github.com/sarchlab/vmemsim/simulator"
	"github.com/sarchlab/vmemsim/trace"
)

var (
	physMemGB = flag.Uint64("phys_mem_gb", 0, "physical memory size in GB (0 = use default)")
	batchSize = flag.Int("batch_size", 0, "references per ProcessBatch call (0 = use default)")
	outPath   = flag.String("out", "memory_simulator.out", "report output path")
	cfgPath   = flag.String("config", "", "path to a JSON configuration file (overrides defaults, overridden by flags)")

	l1TLBSize = flag.Int("l1_tlb_size", 0, "L1 TLB entry count (0 = use default)")
	l1TLBWays = flag.Int("l1_tlb_ways", 0, "L1 TLB associativity (0 = use default)")
	l2TLBSize = flag.Int("l2_tlb_size", 0, "L2 TLB entry count (0 = use default)")
	l2TLBWays = flag.Int("l2_tlb_ways", 0, "L2 TLB associativity (0 = use default)")

	pgdPWCSize = flag.Int("pgd_pwc_size", 0, "PGD page-walk-cache entry count (0 = use default)")
	pgdPWCWays = flag.Int("pgd_pwc_ways", 0, "PGD page-walk-cache associativity (0 = use default)")
	pudPWCSize = flag.Int("pud_pwc_size", 0, "PUD page-walk-cache entry count (0 = use default)")
	pudPWCWays = flag.Int("pud_pwc_ways", 0, "PUD page-walk-cache associativity (0 = use default)")
	pmdPWCSize = flag.Int("pmd_pwc_size", 0, "PMD page-walk-cache entry count (0 = use default)")
	pmdPWCWays = flag.Int("pmd_pwc_ways", 0, "PMD page-walk-cache associativity (0 = use default)")

	l1CacheSize = flag.Uint64("l1_cache_size", 0, "L1 data cache size in bytes (0 = use default)")
	l1Ways      = flag.Uint64("l1_ways", 0, "L1 data cache associativity (0 = use default)")
	l1Line      = flag.Uint64("l1_line", 0, "L1 data cache line size in bytes (0 = use default)")
	l2CacheSize = flag.Uint64("l2_cache_size", 0, "L2 data cache size in bytes (0 = use default)")
	l2Ways      = flag.Uint64("l2_ways", 0, "L2 data cache associativity (0 = use default)")
	l2Line      = flag.Uint64("l2_line", 0, "L2 data cache line size in bytes (0 = use default)")
	l3CacheSize = flag.Uint64("l3_cache_size", 0, "L3 data cache size in bytes (0 = use default)")
	l3Ways      = flag.Uint64("l3_ways", 0, "L3 data cache associativity (0 = use default)")
	l3Line      = flag.Uint64("l3_line", 0, "L3 data cache line size in bytes (0 = use default)")

	pteCachable = flag.Bool("pte_cachable", false, "route page-table-entry accesses through the data cache hierarchy")
	tocEnabled  = flag.Bool("toc_enabled", false, "enable table-of-contents sub-indexing in the page-walk caches")
	tocSize     = flag.Uint64("toc_size", 0, "table-of-contents sub-index size (power of two, >0 when toc_enabled)")

	pgdEntries = flag.Int("pgd_entries", 0, "PGD entries per table (0 = use default)")
	pudEntries = flag.Int("pud_entries", 0, "PUD entries per table (0 = use default)")
	pmdEntries = flag.Int("pmd_entries", 0, "PMD entries per table (0 = use default)")
	pteEntries = flag.Int("pte_entries", 0, "PTE entries per table (0 = use default)")

	tinyPtrEnabled = flag.Bool("tiny_ptr_enabled", false, "use the tiny-pointer physical memory allocator instead of the linear allocator")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "vmemsim: missing trace file argument")
		usage()
		os.Exit(1)
	}
	tracePath := flag.Arg(0)

	cfg, err := buildConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmemsim: %v\n", err)
		os.Exit(1)
	}

	traceFile, err := os.Open(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmemsim: opening trace file: %v\n", err)
		os.Exit(1)
	}
	defer traceFile.Close()

	refs, err := trace.ReadAllWithWarnings(traceFile, func(msg string) {
		fmt.Fprintf(os.Stderr, "vmemsim: %s\n", msg)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmemsim: reading trace: %v\n", err)
		os.Exit(1)
	}

	sim, err := simulator.Construct(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmemsim: constructing simulator: %v\n", err)
		os.Exit(1)
	}

	const progressInterval = 1_000_000
	nextProgress := uint64(progressInterval)
	for _, batch := range trace.Batches(refs, cfg.BatchSize) {
		if err := sim.ProcessBatch(batch); err != nil {
			fmt.Fprintf(os.Stderr, "vmemsim: %v\n", err)
			os.Exit(1)
		}
		for sim.AccessCount() >= nextProgress {
			fmt.Fprintf(os.Stderr, "vmemsim: %d references processed\n", nextProgress)
			nextProgress += progressInterval
		}
	}

	out, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vmemsim: creating output file: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := sim.Report(out); err != nil {
		fmt.Fprintf(os.Stderr, "vmemsim: writing report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("vmemsim: processed %d references, report written to %s\n", sim.AccessCount(), *outPath)
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: vmemsim [options] <trace-file>")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
}

// buildConfig assembles a config.Config starting from --config (or
// config.DefaultConfig when unset), then overriding every field whose flag
// has a nonzero value. Boolean flags can only switch a setting on; a false
// flag leaves the configured value as it is.
func buildConfig() (*config.Config, error) {
	var cfg *config.Config
	if *cfgPath != "" {
		var err error
		cfg, err = config.LoadConfig(*cfgPath)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = config.DefaultConfig()
	}

	if *physMemGB != 0 {
		cfg.PhysMemGB = *physMemGB
	}
	if *batchSize != 0 {
		cfg.BatchSize = *batchSize
	}
	cfg.TinyPtrEnabled = cfg.TinyPtrEnabled || *tinyPtrEnabled

	if *l1TLBSize != 0 {
		cfg.L1TLB.Entries = *l1TLBSize
	}
	if *l1TLBWays != 0 {
		cfg.L1TLB.Ways = *l1TLBWays
	}
	if *l2TLBSize != 0 {
		cfg.L2TLB.Entries = *l2TLBSize
	}
	if *l2TLBWays != 0 {
		cfg.L2TLB.Ways = *l2TLBWays
	}

	if *pgdPWCSize != 0 {
		cfg.PgdPWC.Entries = *pgdPWCSize
	}
	if *pgdPWCWays != 0 {
		cfg.PgdPWC.Ways = *pgdPWCWays
	}
	if *pudPWCSize != 0 {
		cfg.PudPWC.Entries = *pudPWCSize
	}
	if *pudPWCWays != 0 {
		cfg.PudPWC.Ways = *pudPWCWays
	}
	if *pmdPWCSize != 0 {
		cfg.PmdPWC.Entries = *pmdPWCSize
	}
	if *pmdPWCWays != 0 {
		cfg.PmdPWC.Ways = *pmdPWCWays
	}

	if *l1CacheSize != 0 {
		cfg.L1Cache.SizeBytes = *l1CacheSize
	}
	if *l1Ways != 0 {
		cfg.L1Cache.Ways = *l1Ways
	}
	if *l1Line != 0 {
		cfg.L1Cache.LineBytes = *l1Line
	}
	if *l2CacheSize != 0 {
		cfg.L2Cache.SizeBytes = *l2CacheSize
	}
	if *l2Ways != 0 {
		cfg.L2Cache.Ways = *l2Ways
	}
	if *l2Line != 0 {
		cfg.L2Cache.LineBytes = *l2Line
	}
	if *l3CacheSize != 0 {
		cfg.L3Cache.SizeBytes = *l3CacheSize
	}
	if *l3Ways != 0 {
		cfg.L3Cache.Ways = *l3Ways
	}
	if *l3Line != 0 {
		cfg.L3Cache.LineBytes = *l3Line
	}

	cfg.PageTable.PteCachable = cfg.PageTable.PteCachable || *pteCachable
	cfg.PageTable.TOCEnabled = cfg.PageTable.TOCEnabled || *tocEnabled
	if *tocSize != 0 {
		cfg.PageTable.TOCSize = uint32(*tocSize)
	}

	if *pgdEntries != 0 {
		cfg.PageTable.PgdEntries = *pgdEntries
	}
	if *pudEntries != 0 {
		cfg.PageTable.PudEntries = *pudEntries
	}
	if *pmdEntries != 0 {
		cfg.PageTable.PmdEntries = *pmdEntries
	}
	if *pteEntries != 0 {
		cfg.PageTable.PteEntries = *pteEntries
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
