package main

import (
	"flag"
	"fmt"
	"os"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ethindex/logindex/internal/config"
	"github.com/ethindex/logindex/internal/index"
)

// =============================================================================
// Stats Command
// =============================================================================

func runStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	top := fs.Int("top", 10, "Number of top keys to show per namespace")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: stats [options]\n\n")
		fmt.Fprintf(os.Stderr, "Shows index statistics:\n")
		fmt.Fprintf(os.Stderr, "  - Segment counts per namespace (temp vs finalized)\n")
		fmt.Fprintf(os.Stderr, "  - Per-key segment distribution\n")
		fmt.Fprintf(os.Stderr, "  - Index file sizes and free-page depth\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	logger, err := newLogger(false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	engine, err := openEngine(cfg, logger, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open index: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	fmt.Fprintf(os.Stderr, "Calculating statistics...\n")

	stats, err := engine.Stats(*top)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get stats: %v\n", err)
		os.Exit(1)
	}

	p := message.NewPrinter(language.English)

	p.Printf("\n=== Index Files ===\n")
	p.Printf("  Temp file:      %.1f MB (%d pages, %d free)\n",
		float64(stats.TempFileBytes)/(1024*1024),
		stats.TempFileBytes/index.PageSize,
		stats.FreePages)
	p.Printf("  Finalized file: %.1f MB\n", float64(stats.FinalFileBytes)/(1024*1024))

	printColumnStats(p, "Addresses", stats.Addresses)
	printColumnStats(p, "Topics", stats.Topics)
}

func printColumnStats(p *message.Printer, name string, cs *index.ColumnStats) {
	p.Printf("\n=== %s ===\n", name)
	p.Printf("  Keys:               %d\n", cs.Keys)
	p.Printf("  Segments:           %d (%d temp, %d finalized)\n",
		cs.Segments, cs.TempSegments, cs.FinalSegments)

	dist := cs.SegmentsPerKey
	if dist == nil {
		return
	}
	p.Printf("  Segments per key:   min %d, p50 %d, p90 %d, p99 %d, max %d (mean %.1f)\n",
		dist.Min, dist.P50, dist.P90, dist.P99, dist.Max, dist.Mean)
	if len(dist.TopN) > 0 {
		p.Printf("  Top keys:\n")
		for _, e := range dist.TopN {
			p.Printf("    %s  %d segments\n", e.Key, e.Segments)
		}
	}
}
