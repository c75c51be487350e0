package index

import (
	"sort"

	"github.com/RoaringBitmap/roaring"
)

// GetBlockNumbers returns a lazy ascending iterator over the blocks in
// which key appeared, restricted to [from, to]. The key's width selects
// the namespace: 20 bytes for addresses, 32 for topics. The iterator is
// single-pass; re-run the call to scan again. Unknown keys yield an empty
// iterator.
func (e *Engine) GetBlockNumbers(key []byte, from, to uint32) (*BlockIterator, error) {
	if err := e.check(); err != nil {
		return nil, err
	}
	ns, err := namespaceForKey(key)
	if err != nil {
		return nil, err
	}
	e.metrics.RangeScans.Inc()

	it := &BlockIterator{
		e:    e,
		from: from,
		to:   to,
		rows: e.meta.newSegmentIter(ns, key),
	}

	// Prime the cur/next row pair.
	for i := 0; i < 2; i++ {
		if err := it.advanceRow(); err != nil {
			it.Close()
			return nil, e.fail(err)
		}
	}
	return it, nil
}

// GetBlockNumbersUnion returns the ascending union of the per-key scans
// for a set of keys, each block at most once. JSON-RPC log filters carry
// lists of addresses and topics; this is their lookup primitive.
func (e *Engine) GetBlockNumbersUnion(keys [][]byte, from, to uint32) ([]uint32, error) {
	bm := roaring.New()
	for _, key := range keys {
		it, err := e.GetBlockNumbers(key, from, to)
		if err != nil {
			return nil, err
		}
		for it.Next() {
			bm.Add(it.Block())
		}
		err = it.Err()
		it.Close()
		if err != nil {
			return nil, err
		}
	}
	return bm.ToArray(), nil
}

// BlockIterator streams one key's block numbers in ascending order. It
// walks the key's segment rows, loading only segments that overlap the
// requested range: a segment overlaps iff its first block is <= to and
// the next row's first block is > from, so rejection needs no segment
// contents.
type BlockIterator struct {
	e    *Engine
	from uint32
	to   uint32

	rows *segmentIter
	cur  *segmentRow
	next *segmentRow

	blocks []uint32
	pos    int

	block  uint32
	err    error
	done   bool
	closed bool
}

// Next advances to the next block, reporting false at the end of the
// range or on error.
func (it *BlockIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}

	for {
		if it.pos < len(it.blocks) {
			b := it.blocks[it.pos]
			if b > it.to {
				// Later segments only hold larger blocks; halt the scan.
				it.done = true
				return false
			}
			it.pos++
			it.block = b
			return true
		}

		if it.cur == nil || it.cur.firstBlock > it.to {
			it.done = true
			return false
		}

		// The next row's first block fences the current segment from
		// above: cur's blocks are all smaller than it.
		if it.next == nil || it.next.firstBlock > it.from {
			if err := it.load(*it.cur); err != nil {
				it.err = it.e.fail(err)
				return false
			}
		}

		if err := it.advanceRow(); err != nil {
			it.err = it.e.fail(err)
			return false
		}
	}
}

// Block returns the block at the current position.
func (it *BlockIterator) Block() uint32 {
	return it.block
}

// Err returns the first error the scan encountered, if any.
func (it *BlockIterator) Err() error {
	return it.err
}

// Close releases the underlying KV iterator.
func (it *BlockIterator) Close() {
	if it.closed {
		return
	}
	it.closed = true
	it.rows.Close()
}

func (it *BlockIterator) advanceRow() error {
	it.cur = it.next
	row, ok, err := it.rows.Next()
	if err != nil {
		return err
	}
	if ok {
		it.next = &row
	} else {
		it.next = nil
	}
	return nil
}

// load reads a segment's block numbers and positions the buffer at the
// first block >= from.
func (it *BlockIterator) load(row segmentRow) error {
	e := it.e

	var raw []byte
	var err error
	if row.desc.isTemp() {
		raw, err = e.temp.ReadPage(int64(row.desc.offset), int(row.desc.length)*4)
	} else {
		var run []byte
		run, err = e.final.ReadAt(int64(row.desc.offset), int(row.desc.length))
		if err == nil {
			raw, err = e.codec.Decompress(run)
		}
	}
	if err != nil {
		return err
	}

	blocks, err := unpackBlocks(raw)
	if err != nil {
		return err
	}
	e.metrics.SegmentsLoaded.Inc()

	it.blocks = blocks
	it.pos = sort.Search(len(blocks), func(i int) bool { return blocks[i] >= it.from })
	return nil
}
