// Package query provides query execution over the block index. It
// orchestrates index lookups and result assembly, independent of how the
// index is stored.
package query

import "time"

// =============================================================================
// Filter Types
// =============================================================================

// Filter specifies criteria for a block query. Addresses are ORed with
// each other, topics are ORed with each other, and the two groups are
// ANDed when both are present.
type Filter struct {
	Addresses [][]byte // 20 bytes each
	Topics    [][]byte // 32 bytes each
}

// IsEmpty returns true if no filters are specified.
func (f *Filter) IsEmpty() bool {
	return len(f.Addresses) == 0 && len(f.Topics) == 0
}

// =============================================================================
// Query Options
// =============================================================================

// Options configures query execution behavior.
type Options struct {
	Limit     int  // Maximum blocks to return (0 = no limit)
	CountOnly bool // Only count matches, don't materialize the block list
}

// DefaultOptions returns default query options.
func DefaultOptions() *Options {
	return &Options{
		Limit: 1000,
	}
}

// =============================================================================
// Result Types
// =============================================================================

// Result holds the result of a query execution.
type Result struct {
	// Blocks matching the filter, ascending. Empty in CountOnly mode.
	Blocks []uint32

	// Counts
	MatchingBlocks int    // Blocks that matched the filter (before Limit)
	BlockRange     uint32 // Number of blocks in the queried range

	// Timing breakdown
	AddressLookupTime time.Duration // Time scanning the address index
	TopicLookupTime   time.Duration // Time scanning the topic index
	TotalTime         time.Duration // Total query time
}
