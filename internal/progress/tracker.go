// Package progress tracks long-running ingestion jobs through a JSON
// progress file plus a JSONL history of periodic snapshots.
package progress

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultSnapshotInterval is the number of blocks between history snapshots.
const DefaultSnapshotInterval = 100000

// EngineStats holds the index-engine numbers recorded with each snapshot.
type EngineStats struct {
	TempFileBytes  int64 `json:"temp_file_bytes"`
	FinalFileBytes int64 `json:"final_file_bytes"`
	FreePages      int   `json:"free_pages"`
}

// StatsProvider supplies engine stats for snapshots.
type StatsProvider interface {
	GetEngineStats() *EngineStats
}

// IngestionProgress tracks the progress of an ingestion job.
type IngestionProgress struct {
	// Progress
	CurrentBlock    uint32  `json:"current_block"`
	BlocksProcessed int64   `json:"blocks_processed"`
	TotalChunks     int     `json:"total_chunks"`
	ProgressPercent float64 `json:"progress_percent"`

	// Volume
	LogsIngested int64 `json:"logs_ingested"`

	// Timing
	StartedAt              time.Time `json:"started_at"`
	UpdatedAt              time.Time `json:"updated_at"`
	BlocksPerSec           float64   `json:"blocks_per_sec"`
	LogsPerSec             float64   `json:"logs_per_sec"`
	EstimatedTimeRemaining string    `json:"estimated_time_remaining"`

	// Errors
	Errors []string `json:"errors,omitempty"`

	// Status: "running", "completed" or "failed"
	Status string `json:"status"`
}

// Snapshot captures metrics at a point in time for trend analysis.
type Snapshot struct {
	Timestamp       time.Time `json:"timestamp"`
	CurrentBlock    uint32    `json:"current_block"`
	BlocksProcessed int64     `json:"blocks_processed"`
	LogsIngested    int64     `json:"logs_ingested"`

	// Rates over the snapshot period
	Seconds      float64 `json:"seconds"`
	BlocksPerSec float64 `json:"blocks_per_sec"`
	LogsPerSec   float64 `json:"logs_per_sec"`

	// Engine state at snapshot time
	Engine *EngineStats `json:"engine,omitempty"`
}

// Tracker manages progress tracking during ingestion.
type Tracker struct {
	mu       sync.Mutex
	progress *IngestionProgress
	filePath string
	interval time.Duration
	stopCh   chan struct{}
	doneCh   chan struct{}

	snapshotInterval   int64
	lastSnapshotBlocks int64
	lastSnapshotLogs   int64
	lastSnapshotTime   time.Time
	historyFile        string
	totalChunks        int

	statsProvider StatsProvider
}

// NewTracker creates a tracker writing to filePath.
func NewTracker(filePath string, totalChunks int) *Tracker {
	historyFile := strings.TrimSuffix(filePath, ".json") + "_history.jsonl"

	return &Tracker{
		progress: &IngestionProgress{
			TotalChunks: totalChunks,
			StartedAt:   time.Now(),
			UpdatedAt:   time.Now(),
			Status:      "running",
		},
		filePath:         filePath,
		interval:         5 * time.Second,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
		snapshotInterval: DefaultSnapshotInterval,
		lastSnapshotTime: time.Now(),
		historyFile:      historyFile,
		totalChunks:      totalChunks,
	}
}

// SetStatsProvider attaches an engine-stats source for snapshots.
func (t *Tracker) SetStatsProvider(p StatsProvider) {
	t.statsProvider = p
}

// SetSnapshotInterval overrides the per-snapshot block count.
func (t *Tracker) SetSnapshotInterval(blocks int64) {
	if blocks > 0 {
		t.snapshotInterval = blocks
	}
}

// Start launches the periodic file writer.
func (t *Tracker) Start() {
	go t.writeLoop()
}

func (t *Tracker) writeLoop() {
	defer close(t.doneCh)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.save()
		case <-t.stopCh:
			t.save()
			return
		}
	}
}

// Update records the latest pipeline counters.
func (t *Tracker) Update(currentBlock uint32, chunksProcessed, blocksProcessed, logsIngested int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	p := t.progress
	p.CurrentBlock = currentBlock
	p.BlocksProcessed = blocksProcessed
	p.LogsIngested = logsIngested
	p.UpdatedAt = time.Now()

	elapsed := p.UpdatedAt.Sub(p.StartedAt).Seconds()
	if elapsed > 0 {
		p.BlocksPerSec = float64(blocksProcessed) / elapsed
		p.LogsPerSec = float64(logsIngested) / elapsed
	}
	if t.totalChunks > 0 && chunksProcessed > 0 {
		p.ProgressPercent = 100 * float64(chunksProcessed) / float64(t.totalChunks)
		remaining := elapsed * float64(int64(t.totalChunks)-chunksProcessed) / float64(chunksProcessed)
		p.EstimatedTimeRemaining = (time.Duration(remaining) * time.Second).String()
	}

	if blocksProcessed-t.lastSnapshotBlocks >= t.snapshotInterval {
		t.appendSnapshot()
	}
}

// RecordError appends an error message.
func (t *Tracker) RecordError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress.Errors = append(t.progress.Errors, err.Error())
}

// Complete marks the job finished and stops the writer.
func (t *Tracker) Complete() {
	t.finish("completed")
}

// Fail marks the job failed and stops the writer.
func (t *Tracker) Fail() {
	t.finish("failed")
}

func (t *Tracker) finish(status string) {
	t.mu.Lock()
	t.progress.Status = status
	t.progress.UpdatedAt = time.Now()
	t.mu.Unlock()

	close(t.stopCh)
	<-t.doneCh
}

// appendSnapshot writes one history line. Caller holds the lock.
func (t *Tracker) appendSnapshot() {
	now := time.Now()
	seconds := now.Sub(t.lastSnapshotTime).Seconds()

	snap := Snapshot{
		Timestamp:       now,
		CurrentBlock:    t.progress.CurrentBlock,
		BlocksProcessed: t.progress.BlocksProcessed,
		LogsIngested:    t.progress.LogsIngested,
		Seconds:         seconds,
	}
	if seconds > 0 {
		snap.BlocksPerSec = float64(t.progress.BlocksProcessed-t.lastSnapshotBlocks) / seconds
		snap.LogsPerSec = float64(t.progress.LogsIngested-t.lastSnapshotLogs) / seconds
	}
	if t.statsProvider != nil {
		snap.Engine = t.statsProvider.GetEngineStats()
	}

	t.lastSnapshotBlocks = t.progress.BlocksProcessed
	t.lastSnapshotLogs = t.progress.LogsIngested
	t.lastSnapshotTime = now

	line, err := json.Marshal(snap)
	if err != nil {
		return
	}
	f, err := os.OpenFile(t.historyFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	f.Write(append(line, '\n'))
}

// save writes the progress file atomically via rename.
func (t *Tracker) save() {
	t.mu.Lock()
	data, err := json.MarshalIndent(t.progress, "", "  ")
	t.mu.Unlock()
	if err != nil {
		return
	}

	tmp := t.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return
	}
	os.Rename(tmp, t.filePath)
}

// LoadProgress reads a progress file.
func LoadProgress(path string) (*IngestionProgress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read progress file: %w", err)
	}
	var p IngestionProgress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse progress file: %w", err)
	}
	return &p, nil
}
