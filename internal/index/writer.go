package index

import (
	"encoding/binary"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// SetReceipts ingests the logs of one processed block. Every emitting
// address and every topic is appended to its per-key segment chain; a
// block at or below the key's last indexed block is dropped silently,
// whether or not it was recorded, which makes re-ingestion idempotent for
// reorg replays and backward sync. The isBackwardSync flag does not alter
// the algorithm.
func (e *Engine) SetReceipts(block uint32, receipts []Receipt, isBackwardSync bool) error {
	if err := e.check(); err != nil {
		return err
	}

	// Deduplicate keys across the whole call: each key is appended at
	// most once per block, no matter how many logs mention it.
	keys := make(map[string]*namespace)
	logCount := 0
	for _, receipt := range receipts {
		for _, log := range receipt.Logs {
			if len(log.Address) != AddressKeyWidth {
				return fmt.Errorf("%w: address of %d bytes", ErrKeyWidth, len(log.Address))
			}
			keys[string(log.Address)] = &addressNamespace
			for _, topic := range log.Topics {
				if len(topic) != TopicKeyWidth {
					return fmt.Errorf("%w: topic of %d bytes", ErrKeyWidth, len(topic))
				}
				keys[string(topic)] = &topicNamespace
			}
			logCount++
		}
	}

	e.metrics.BlocksIngested.Inc()
	e.metrics.LogsIndexed.Add(float64(logCount))
	if isBackwardSync {
		e.metrics.BackwardBlocks.Inc()
	}

	if len(keys) == 0 {
		return nil
	}

	// Sorted order keeps concurrent batches deterministic.
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		if err := e.appendKey(keys[k], []byte(k), block); err != nil {
			return e.fail(err)
		}
	}
	return nil
}

// appendKey appends block to the key's open temp segment, creating one if
// needed and promoting it when it fills. The key's mutex is held for the
// whole step; the updated descriptor row is the single atomic publication
// readers synchronize on.
func (e *Engine) appendKey(ns *namespace, key []byte, block uint32) error {
	kl := e.locks.lock(string(key))
	defer e.locks.unlock(string(key), kl)

	tail, err := e.meta.tail(ns, key)
	if err != nil {
		return err
	}

	if tail != nil && block <= tail.desc.lastBlock {
		e.metrics.DuplicateDrops.Inc()
		return nil
	}

	var seg segmentRow
	if tail != nil && tail.desc.isTemp() {
		seg = *tail
	} else {
		offset, err := e.acquirePage()
		if err != nil {
			return err
		}
		seg = segmentRow{
			firstBlock: block,
			desc:       descriptor{kind: kindTemp, offset: uint64(offset)},
		}
	}

	if seg.desc.length >= EntriesPerPage {
		return fmt.Errorf("%w: temp segment at block %d is already full", ErrCorrupted, seg.firstBlock)
	}

	if err := e.temp.WriteEntry(int64(seg.desc.offset), int(seg.desc.length), block); err != nil {
		return err
	}
	seg.desc.length++
	seg.desc.lastBlock = block

	if seg.desc.length == EntriesPerPage {
		return e.promote(ns, key, seg)
	}
	return e.meta.put(ns, key, seg.firstBlock, seg.desc)
}

// acquirePage returns a page offset for a new temp segment, reusing a
// free page when one exists and growing the temp file otherwise.
func (e *Engine) acquirePage() (int64, error) {
	offset, ok, err := e.free.Acquire()
	if err != nil {
		return 0, err
	}
	if ok {
		e.metrics.PagesReused.Inc()
		e.metrics.FreePages.Dec()
		return offset, nil
	}

	offset, err = e.temp.AllocatePage()
	if err != nil {
		return 0, err
	}
	e.metrics.PagesAllocated.Inc()
	e.metrics.TempFileBytes.Set(float64(e.temp.Size()))
	e.log.Debug("grew temp file", zap.Int64("page_offset", offset))
	return offset, nil
}

// promote converts a full temp segment into a finalized run: the page is
// compressed and appended to the final file, the FINAL descriptor is
// published at the same composite key (the first page entry always equals
// the row's first block), and the page returns to the free list.
func (e *Engine) promote(ns *namespace, key []byte, seg segmentRow) error {
	raw, err := e.temp.ReadPage(int64(seg.desc.offset), PageSize)
	if err != nil {
		return err
	}

	if first := binary.LittleEndian.Uint32(raw[:4]); first != seg.firstBlock {
		return fmt.Errorf("%w: page first entry %d does not match segment first block %d", ErrCorrupted, first, seg.firstBlock)
	}

	run, err := e.codec.Compress(raw)
	if err != nil {
		return err
	}

	offset, err := e.final.Append(run)
	if err != nil {
		return err
	}

	final := descriptor{
		kind:      kindFinal,
		offset:    uint64(offset),
		length:    uint32(len(run)),
		lastBlock: seg.desc.lastBlock,
	}
	if err := e.meta.put(ns, key, seg.firstBlock, final); err != nil {
		return err
	}

	if err := e.free.Release(int64(seg.desc.offset)); err != nil {
		return err
	}

	e.metrics.Promotions.Inc()
	e.metrics.PagesReleased.Inc()
	e.metrics.FreePages.Inc()

	e.log.Debug("promoted temp segment",
		zap.String("namespace", ns.name),
		zap.Uint32("first_block", seg.firstBlock),
		zap.Uint32("last_block", seg.desc.lastBlock),
		zap.Uint32("compressed_bytes", final.length))
	return nil
}
