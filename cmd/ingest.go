package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ethindex/logindex/internal/config"
	"github.com/ethindex/logindex/internal/index"
	"github.com/ethindex/logindex/internal/ingest"
	"github.com/ethindex/logindex/internal/progress"
)

// =============================================================================
// Ingest Command
// =============================================================================

// engineStatsAdapter adapts the index engine to progress.StatsProvider.
type engineStatsAdapter struct {
	engine *index.Engine
}

func (a *engineStatsAdapter) GetEngineStats() *progress.EngineStats {
	stats, err := a.engine.Stats(0)
	if err != nil {
		return nil
	}
	return &progress.EngineStats{
		TempFileBytes:  stats.TempFileBytes,
		FinalFileBytes: stats.FinalFileBytes,
		FreePages:      stats.FreePages,
	}
}

func runIngest(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	resumeFile := fs.String("resume", "", "Resume from progress file")
	verbose := fs.Bool("verbose", false, "Debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ingest [options]\n\n")
		fmt.Fprintf(os.Stderr, "Ingests every receipt chunk under source.receipt_dir. Re-ingesting\n")
		fmt.Fprintf(os.Stderr, "already-indexed blocks is a no-op, so resuming is always safe.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(2)
	}

	logger, err := newLogger(*verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	metrics := index.NewMetrics(reg)

	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.Metrics.ListenAddr, mux); err != nil {
				logger.Warn("metrics listener failed", zap.Error(err))
			}
		}()
		logger.Info("metrics listener started", zap.String("addr", cfg.Metrics.ListenAddr))
	}

	engine, err := openEngine(cfg, logger, metrics)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open index: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	chunks, err := ingest.ListChunks(cfg.Source.ReceiptDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list chunks: %v\n", err)
		os.Exit(1)
	}
	if len(chunks) == 0 {
		fmt.Fprintf(os.Stderr, "No receipt chunks under %s\n", cfg.Source.ReceiptDir)
		os.Exit(1)
	}

	if *resumeFile != "" {
		prog, err := progress.LoadProgress(*resumeFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load progress: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "Resuming past block %d (duplicates drop silently)\n", prog.CurrentBlock)
	}

	progressFile := cfg.Ingestion.ProgressFile
	if progressFile == "" {
		progressFile = fmt.Sprintf("progress_%s.json", time.Now().Format("20060102T150405"))
	}
	fmt.Fprintf(os.Stderr, "Progress file: %s\n", progressFile)

	tracker := progress.NewTracker(progressFile, len(chunks))
	tracker.SetStatsProvider(&engineStatsAdapter{engine: engine})
	tracker.SetSnapshotInterval(cfg.Ingestion.SnapshotInterval)
	tracker.Start()

	pipeline := ingest.NewPipeline(ingest.PipelineConfig{
		Workers:   cfg.Ingestion.Workers,
		QueueSize: cfg.Ingestion.QueueSize,
	}, engine)
	pipeline.SetProgressCallback(func(lastBlock uint32, chunks, blocks, logs int64) {
		tracker.Update(lastBlock, chunks, blocks, logs)
	})
	pipeline.SetErrorCallback(func(chunk string, err error) {
		tracker.RecordError(err)
		logger.Error("chunk failed", zap.String("chunk", chunk), zap.Error(err))
	})

	start := time.Now()
	runErr := pipeline.Run(chunks)

	if runErr != nil {
		tracker.Fail()
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", runErr)
		os.Exit(1)
	}

	if err := engine.Flush(); err != nil {
		tracker.Fail()
		fmt.Fprintf(os.Stderr, "Failed to flush index: %v\n", err)
		os.Exit(1)
	}
	tracker.Complete()

	stats := pipeline.GetStats()
	elapsed := time.Since(start)

	p := message.NewPrinter(language.English)
	p.Printf("\n=== Ingestion Complete ===\n")
	p.Printf("  Chunks:      %d\n", stats.ChunksProcessed)
	p.Printf("  Blocks:      %d\n", stats.BlocksIngested)
	p.Printf("  Logs:        %d\n", stats.LogsIngested)
	p.Printf("  Elapsed:     %s\n", elapsed.Round(time.Millisecond))
	if secs := elapsed.Seconds(); secs > 0 {
		p.Printf("  Blocks/sec:  %.0f\n", float64(stats.BlocksIngested)/secs)
	}
	p.Printf("  Read time:   %s\n", time.Duration(stats.ReadTimeNs).Round(time.Millisecond))
	p.Printf("  Write time:  %s\n", time.Duration(stats.WriteTimeNs).Round(time.Millisecond))
}
