package index

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's prometheus instrumentation. Pass one to Open
// to expose the counters on your own registry; the engine creates a
// private registry otherwise.
type Metrics struct {
	BlocksIngested prometheus.Counter
	LogsIndexed    prometheus.Counter
	DuplicateDrops prometheus.Counter
	BackwardBlocks prometheus.Counter

	Promotions     prometheus.Counter
	PagesAllocated prometheus.Counter
	PagesReused    prometheus.Counter
	PagesReleased  prometheus.Counter

	RangeScans     prometheus.Counter
	SegmentsLoaded prometheus.Counter

	FreePages     prometheus.Gauge
	TempFileBytes prometheus.Gauge
}

// NewMetrics registers the engine metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		BlocksIngested: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "blocks_ingested_total",
			Help: "Blocks passed to SetReceipts.",
		}),
		LogsIndexed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "logs_indexed_total",
			Help: "Log entries routed into the index.",
		}),
		DuplicateDrops: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "duplicate_drops_total",
			Help: "Key appends dropped because the block was already indexed.",
		}),
		BackwardBlocks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "backward_blocks_total",
			Help: "Blocks ingested with the backward-sync flag set.",
		}),
		Promotions: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "promotions_total",
			Help: "Temp segments promoted to finalized runs.",
		}),
		PagesAllocated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "pages_allocated_total",
			Help: "Pages added by growing the temp file.",
		}),
		PagesReused: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "pages_reused_total",
			Help: "Pages acquired from the free list.",
		}),
		PagesReleased: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "pages_released_total",
			Help: "Pages returned to the free list after promotion.",
		}),
		RangeScans: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "range_scans_total",
			Help: "Range scans started.",
		}),
		SegmentsLoaded: f.NewCounter(prometheus.CounterOpts{
			Namespace: "logindex", Name: "segments_loaded_total",
			Help: "Segments whose contents were loaded during scans.",
		}),
		FreePages: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "logindex", Name: "free_pages",
			Help: "Depth of the free-page list.",
		}),
		TempFileBytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "logindex", Name: "temp_file_bytes",
			Help: "Size of the temp index file.",
		}),
	}
}
