package ingest

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethindex/logindex/internal/index"
)

// PipelineConfig configures the parallel ingestion pipeline.
type PipelineConfig struct {
	Workers   int // Number of parallel chunk parsers
	QueueSize int // Channel buffer size
}

// PipelineStats tracks pipeline performance.
type PipelineStats struct {
	ChunksProcessed int64
	BlocksIngested  int64
	LogsIngested    int64
	ReadTimeNs      int64 // Time reading and decoding chunks
	WriteTimeNs     int64 // Time inside SetReceipts
}

// chunkResult is the outcome of parsing one chunk.
type chunkResult struct {
	Index    int // Position in the chunk list
	Blocks   []BlockReceipts
	ReadTime time.Duration
	Error    error
}

// Pipeline parses receipt chunks in parallel and feeds the engine in
// chunk order. Parsing is the expensive part; the collector keeps the
// engine's view of the block stream sequential so the idempotent
// duplicate drop is the only reordering defense needed.
type Pipeline struct {
	config PipelineConfig
	stats  PipelineStats
	engine *index.Engine

	jobs    chan chunkJob
	results chan *chunkResult

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}

	onProgress func(lastBlock uint32, chunksProcessed, blocksIngested, logsIngested int64)
	onError    func(chunk string, err error)
}

type chunkJob struct {
	index int
	path  string
}

// NewPipeline creates a pipeline feeding the given engine.
func NewPipeline(config PipelineConfig, engine *index.Engine) *Pipeline {
	if config.Workers <= 0 {
		config.Workers = runtime.NumCPU()
	}
	if config.QueueSize <= 0 {
		config.QueueSize = config.Workers * 2
	}

	return &Pipeline{
		config:  config,
		engine:  engine,
		jobs:    make(chan chunkJob, config.QueueSize),
		results: make(chan *chunkResult, config.QueueSize),
		stopCh:  make(chan struct{}),
	}
}

// SetProgressCallback sets the progress callback, invoked from the
// collector roughly once per second of wall time.
func (p *Pipeline) SetProgressCallback(fn func(lastBlock uint32, chunksProcessed, blocksIngested, logsIngested int64)) {
	p.onProgress = fn
}

// SetErrorCallback sets the error callback.
func (p *Pipeline) SetErrorCallback(fn func(chunk string, err error)) {
	p.onError = fn
}

// Run ingests the given chunk files and blocks until done or failed.
func (p *Pipeline) Run(chunks []string) error {
	for i := 0; i < p.config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	collectDone := make(chan error, 1)
	go func() {
		collectDone <- p.collector(len(chunks))
	}()

	go func() {
		defer close(p.jobs)
		for i, path := range chunks {
			select {
			case p.jobs <- chunkJob{index: i, path: path}:
			case <-p.stopCh:
				return
			}
		}
	}()

	p.wg.Wait()
	close(p.results)

	return <-collectDone
}

// worker parses chunks from the jobs channel.
func (p *Pipeline) worker(id int) {
	defer p.wg.Done()

	reader, err := NewChunkReader()
	if err != nil {
		p.results <- &chunkResult{Error: fmt.Errorf("worker %d: %w", id, err)}
		return
	}
	defer reader.Close()

	for job := range p.jobs {
		readStart := time.Now()
		blocks, err := reader.ReadChunk(job.path)
		result := &chunkResult{
			Index:    job.index,
			Blocks:   blocks,
			ReadTime: time.Since(readStart),
		}
		if err != nil {
			result.Error = fmt.Errorf("%s: %w", job.path, err)
		}

		select {
		case p.results <- result:
		case <-p.stopCh:
			return
		}
	}
}

// collector receives parsed chunks and ingests them in order.
func (p *Pipeline) collector(totalChunks int) error {
	pending := make(map[int]*chunkResult)
	next := 0

	var lastBlock uint32
	lastProgress := time.Now()

	for result := range p.results {
		if result.Error != nil {
			if p.onError != nil {
				p.onError("", result.Error)
			}
			p.Stop()
			return result.Error
		}

		pending[result.Index] = result
		atomic.AddInt64(&p.stats.ReadTimeNs, result.ReadTime.Nanoseconds())

		for {
			r, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)

			writeStart := time.Now()
			for _, block := range r.Blocks {
				logs := countLogs(block.Receipts)
				if err := p.engine.SetReceipts(block.BlockNumber, block.Receipts, false); err != nil {
					p.Stop()
					return fmt.Errorf("failed to ingest block %d: %w", block.BlockNumber, err)
				}
				lastBlock = block.BlockNumber
				atomic.AddInt64(&p.stats.BlocksIngested, 1)
				atomic.AddInt64(&p.stats.LogsIngested, logs)
			}
			atomic.AddInt64(&p.stats.WriteTimeNs, time.Since(writeStart).Nanoseconds())
			atomic.AddInt64(&p.stats.ChunksProcessed, 1)

			next++

			if p.onProgress != nil && time.Since(lastProgress) > time.Second {
				p.onProgress(lastBlock,
					atomic.LoadInt64(&p.stats.ChunksProcessed),
					atomic.LoadInt64(&p.stats.BlocksIngested),
					atomic.LoadInt64(&p.stats.LogsIngested))
				lastProgress = time.Now()
			}
		}
	}

	if len(pending) > 0 {
		return fmt.Errorf("pipeline stopped with %d of %d chunks unprocessed", len(pending), totalChunks)
	}

	if p.onProgress != nil {
		p.onProgress(lastBlock,
			atomic.LoadInt64(&p.stats.ChunksProcessed),
			atomic.LoadInt64(&p.stats.BlocksIngested),
			atomic.LoadInt64(&p.stats.LogsIngested))
	}
	return nil
}

func countLogs(receipts []index.Receipt) int64 {
	var n int64
	for _, r := range receipts {
		n += int64(len(r.Logs))
	}
	return n
}

// Stop stops the pipeline.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
}

// GetStats returns the current pipeline stats.
func (p *Pipeline) GetStats() PipelineStats {
	return PipelineStats{
		ChunksProcessed: atomic.LoadInt64(&p.stats.ChunksProcessed),
		BlocksIngested:  atomic.LoadInt64(&p.stats.BlocksIngested),
		LogsIngested:    atomic.LoadInt64(&p.stats.LogsIngested),
		ReadTimeNs:      atomic.LoadInt64(&p.stats.ReadTimeNs),
		WriteTimeNs:     atomic.LoadInt64(&p.stats.WriteTimeNs),
	}
}
