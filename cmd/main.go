package main

import (
	"fmt"
	"os"

	"github.com/ethindex/logindex/internal/config"
)

func printUsage() {
	fmt.Fprintf(os.Stderr, "logindex - inverted log index for block receipts\n\n")
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  ingest    Ingest receipt chunks into the index\n")
	fmt.Fprintf(os.Stderr, "  query     Query block numbers by address/topic\n")
	fmt.Fprintf(os.Stderr, "  stats     Show index statistics\n")
	fmt.Fprintf(os.Stderr, "\nConfiguration:\n")
	fmt.Fprintf(os.Stderr, "  Requires logindex.toml or config.toml in current directory\n")
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s ingest                                 # Ingest using config settings\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s ingest --resume progress.json          # Resume a previous run\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s query --address 0x<hex20> --from 100 --to 200\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s query --topic 0x<hex32> --count\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s stats --top 20                         # Heaviest keys per namespace\n", os.Args[0])
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	if command == "help" || command == "--help" || command == "-h" {
		printUsage()
		return
	}

	configPath, err := config.FindConfigFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Using config: %s\n", configPath)

	switch command {
	case "ingest":
		runIngest(cfg, args)
	case "query":
		runQuery(cfg, args)
	case "stats":
		runStats(cfg, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}
}
