package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ethindex/logindex/internal/config"
	"github.com/ethindex/logindex/internal/index"
	"github.com/ethindex/logindex/internal/query"
)

// =============================================================================
// Query Command
// =============================================================================

func runQuery(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("query", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var addresses, topics repeatedFlag
	fs.Var(&addresses, "address", "Address to match (0x-hex, 20 bytes; repeatable, ORed)")
	fs.Var(&topics, "topic", "Topic to match (0x-hex, 32 bytes; repeatable, ORed)")
	from := fs.Uint("from", 0, "First block of the range")
	to := fs.Uint("to", 0, "Last block of the range (default: from + query.max_block_range)")
	limit := fs.Int("limit", 0, "Max blocks to return (default: query.default_limit)")
	countOnly := fs.Bool("count", false, "Only print the match count")
	asJSON := fs.Bool("json", false, "Emit the result as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: query [options]\n\n")
		fmt.Fprintf(os.Stderr, "Returns the ascending block numbers matching the filter. Addresses\n")
		fmt.Fprintf(os.Stderr, "are ORed, topics are ORed, and the two groups are ANDed.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	filter := &query.Filter{}
	for _, a := range addresses {
		key, err := parseHexKey(a, index.AddressKeyWidth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Addresses = append(filter.Addresses, key)
	}
	for _, t := range topics {
		key, err := parseHexKey(t, index.TopicKeyWidth)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		filter.Topics = append(filter.Topics, key)
	}
	if filter.IsEmpty() {
		fmt.Fprintf(os.Stderr, "Error: at least one --address or --topic is required\n")
		fs.Usage()
		os.Exit(2)
	}

	fromBlock := uint32(*from)
	toBlock := uint32(*to)
	if toBlock == 0 {
		toBlock = fromBlock + cfg.Query.MaxBlockRange
	}

	opts := &query.Options{
		Limit:     cfg.Query.DefaultLimit,
		CountOnly: *countOnly,
	}
	if *limit > 0 {
		opts.Limit = *limit
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

	result, err := query.NewEngine(engine).Query(filter, fromBlock, toBlock, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out := struct {
			From           uint32   `json:"from"`
			To             uint32   `json:"to"`
			MatchingBlocks int      `json:"matching_blocks"`
			Blocks         []uint32 `json:"blocks,omitempty"`
			TotalTimeMs    float64  `json:"total_time_ms"`
		}{fromBlock, toBlock, result.MatchingBlocks, result.Blocks,
			float64(result.TotalTime.Microseconds()) / 1000}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(out)
		return
	}

	p := message.NewPrinter(language.English)
	p.Printf("Blocks %d - %d: %d matching\n", fromBlock, toBlock, result.MatchingBlocks)
	for _, b := range result.Blocks {
		fmt.Println(b)
	}
	if !*countOnly && result.MatchingBlocks > len(result.Blocks) {
		p.Printf("(%d more; raise --limit)\n", result.MatchingBlocks-len(result.Blocks))
	}
	p.Printf("Query time: %s (addresses %s, topics %s)\n",
		result.TotalTime.Round(time.Microsecond),
		result.AddressLookupTime.Round(time.Microsecond),
		result.TopicLookupTime.Round(time.Microsecond))
}
