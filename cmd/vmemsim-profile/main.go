// Package main provides a profiling wrapper for vmemsim to identify
// performance bottlenecks in the translation and cache hierarchy.
package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"time"

	"github.com/sarchlab/vmemsim/config"
	"github.com/sarchlab/vmemsim/simulator"
	"github.com/sarchlab/vmemsim/trace"
)

var (
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile = flag.String("memprofile", "", "write memory profile to file")
	batchSize  = flag.Int("batch_size", 0, "references per ProcessBatch call (0 = use default)")
	cfgPath    = flag.String("config", "", "path to a JSON configuration file (empty = use default)")
	outPath    = flag.String("out", "memory_simulator.out", "report output path")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "vmemsim-profile: missing trace file argument")
		usage()
		os.Exit(1)
	}
	tracePath := flag.Arg(0)

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	var cfg *config.Config
	if *cfgPath != "" {
		var err error
		cfg, err = config.LoadConfig(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	if *batchSize != 0 {
		cfg.BatchSize = *batchSize
	}

	traceFile, err := os.Open(tracePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening trace file: %v\n", err)
		os.Exit(1)
	}
	defer traceFile.Close()

	refs, err := trace.ReadAll(traceFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading trace: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Loaded: %s (%d references)\n", tracePath, len(refs))

	start := time.Now()

	sim, err := simulator.Construct(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error constructing simulator: %v\n", err)
		os.Exit(1)
	}

	for _, batch := range trace.Batches(refs, cfg.BatchSize) {
		if err := sim.ProcessBatch(batch); err != nil {
			fmt.Fprintf(os.Stderr, "Error processing batch: %v\n", err)
			os.Exit(1)
		}
	}

	elapsed := time.Since(start)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating memory profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.WriteHeapProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing memory profile: %v\n", err)
		}
	}

	out, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := sim.Report(out); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nProfiling Results:\n")
	fmt.Printf("References processed: %d\n", sim.AccessCount())
	fmt.Printf("Elapsed time: %v\n", elapsed)
	if sim.AccessCount() > 0 {
		fmt.Printf("References/second: %.0f\n", float64(sim.AccessCount())/elapsed.Seconds())
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: vmemsim-profile [options] <trace-file>")
	fmt.Fprintln(os.Stderr, "\nOptions:")
	flag.PrintDefaults()
}
