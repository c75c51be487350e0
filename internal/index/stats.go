package index

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"
)

// ColumnStats summarizes one namespace's segment rows.
type ColumnStats struct {
	Keys          int64 `json:"keys"`
	Segments      int64 `json:"segments"`
	TempSegments  int64 `json:"temp_segments"`
	FinalSegments int64 `json:"final_segments"`

	// SegmentsPerKey describes how segment counts distribute over keys.
	SegmentsPerKey *DistributionStats `json:"segments_per_key"`
}

// DistributionStats holds percentile statistics for per-key segment counts.
type DistributionStats struct {
	Min   int64      `json:"min"`
	Max   int64      `json:"max"`
	Mean  float64    `json:"mean"`
	P50   int64      `json:"p50"`
	P90   int64      `json:"p90"`
	P99   int64      `json:"p99"`
	TopN  []TopEntry `json:"top_n,omitempty"`
	Total int64      `json:"total"`
}

// TopEntry is one of the keys with the most segments.
type TopEntry struct {
	Key      string `json:"key"` // hex-encoded user key
	Segments int64  `json:"segments"`
}

// Stats combines engine-wide statistics.
type Stats struct {
	Addresses *ColumnStats `json:"addresses"`
	Topics    *ColumnStats `json:"topics"`

	TempFileBytes  int64 `json:"temp_file_bytes"`
	FinalFileBytes int64 `json:"final_file_bytes"`
	FreePages      int   `json:"free_pages"`
}

// Stats scans both namespaces and returns segment statistics. topN bounds
// the per-column list of heaviest keys; 0 disables it.
func (e *Engine) Stats(topN int) (*Stats, error) {
	if err := e.check(); err != nil {
		return nil, err
	}

	stats := &Stats{
		TempFileBytes:  e.temp.Size(),
		FinalFileBytes: e.final.Size(),
	}

	var g errgroup.Group
	g.Go(func() error {
		cs, err := e.scanColumn(&addressNamespace, topN)
		stats.Addresses = cs
		return err
	})
	g.Go(func() error {
		cs, err := e.scanColumn(&topicNamespace, topN)
		stats.Topics = cs
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, e.fail(err)
	}

	depth, err := e.free.Depth()
	if err != nil {
		return nil, e.fail(err)
	}
	stats.FreePages = depth

	return stats, nil
}

// scanColumn walks one namespace's rows, grouping segments per key. Rows
// are sorted by key, so a key's segments are always adjacent.
func (e *Engine) scanColumn(ns *namespace, topN int) (*ColumnStats, error) {
	cs := &ColumnStats{}

	type keyCount struct {
		key      []byte
		segments int64
	}
	var counts []keyCount

	it := e.kv.NewIterator(ns.column)
	defer it.Close()

	for it.Seek([]byte{}); it.Valid(); it.Next() {
		key := it.Key()
		if len(key) != ns.keyWidth+4 {
			return nil, fmt.Errorf("%w: %s row key of %d bytes", ErrCorrupted, ns.name, len(key))
		}
		desc, err := decodeDescriptor(it.Value())
		if err != nil {
			return nil, err
		}

		cs.Segments++
		if desc.isTemp() {
			cs.TempSegments++
		} else {
			cs.FinalSegments++
		}

		userKey := key[:ns.keyWidth]
		if len(counts) == 0 || !bytes.Equal(counts[len(counts)-1].key, userKey) {
			counts = append(counts, keyCount{key: append([]byte(nil), userKey...)})
		}
		counts[len(counts)-1].segments++
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan %s column: %w", ns.name, err)
	}

	cs.Keys = int64(len(counts))
	if len(counts) == 0 {
		return cs, nil
	}

	sorted := make([]int64, len(counts))
	for i, c := range counts {
		sorted[i] = c.segments
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	dist := &DistributionStats{
		Min:   sorted[0],
		Max:   sorted[len(sorted)-1],
		P50:   percentile(sorted, 0.50),
		P90:   percentile(sorted, 0.90),
		P99:   percentile(sorted, 0.99),
		Total: cs.Segments,
	}
	dist.Mean = float64(cs.Segments) / float64(len(counts))

	if topN > 0 {
		sort.Slice(counts, func(i, j int) bool { return counts[i].segments > counts[j].segments })
		if topN > len(counts) {
			topN = len(counts)
		}
		for _, c := range counts[:topN] {
			dist.TopN = append(dist.TopN, TopEntry{
				Key:      hex.EncodeToString(c.key),
				Segments: c.segments,
			})
		}
	}

	cs.SegmentsPerKey = dist
	return cs, nil
}

// percentile returns the q-th percentile of an ascending-sorted slice.
func percentile(sorted []int64, q float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * q)
	return sorted[idx]
}
