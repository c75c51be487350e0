package query

import (
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring"
)

// =============================================================================
// Interfaces (dependencies injected into Engine)
// =============================================================================

// BlockReader provides block-number lookups from the index. The index
// engine satisfies this interface.
type BlockReader interface {
	// GetBlockNumbersUnion returns the ascending union of per-key block
	// lists within [from, to].
	GetBlockNumbersUnion(keys [][]byte, from, to uint32) ([]uint32, error)
}

// =============================================================================
// Query Engine
// =============================================================================

// Engine executes filter queries against a block index.
type Engine struct {
	reader BlockReader
}

// NewEngine creates a query engine over the given reader.
func NewEngine(reader BlockReader) *Engine {
	return &Engine{reader: reader}
}

// Query resolves a filter over [from, to]: the union of the address
// matches intersected with the union of the topic matches, each group
// applying only when present.
func (e *Engine) Query(filter *Filter, from, to uint32, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if filter.IsEmpty() {
		return nil, fmt.Errorf("at least one filter must be specified")
	}
	if from > to {
		return nil, fmt.Errorf("invalid block range: %d > %d", from, to)
	}

	totalStart := time.Now()
	result := &Result{
		BlockRange: to - from + 1,
	}

	var matched *roaring.Bitmap

	if len(filter.Addresses) > 0 {
		lookupStart := time.Now()
		blocks, err := e.reader.GetBlockNumbersUnion(filter.Addresses, from, to)
		if err != nil {
			return nil, fmt.Errorf("address index query failed: %w", err)
		}
		result.AddressLookupTime = time.Since(lookupStart)

		matched = roaring.New()
		matched.AddMany(blocks)
	}

	if len(filter.Topics) > 0 {
		lookupStart := time.Now()
		blocks, err := e.reader.GetBlockNumbersUnion(filter.Topics, from, to)
		if err != nil {
			return nil, fmt.Errorf("topic index query failed: %w", err)
		}
		result.TopicLookupTime = time.Since(lookupStart)

		topicSet := roaring.New()
		topicSet.AddMany(blocks)
		if matched == nil {
			matched = topicSet
		} else {
			matched.And(topicSet)
		}
	}

	result.MatchingBlocks = int(matched.GetCardinality())

	if !opts.CountOnly {
		result.Blocks = matched.ToArray()
		if opts.Limit > 0 && len(result.Blocks) > opts.Limit {
			result.Blocks = result.Blocks[:opts.Limit]
		}
	}

	result.TotalTime = time.Since(totalStart)
	return result, nil
}
