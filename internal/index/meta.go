package index

import (
	"encoding/binary"
	"fmt"

	"github.com/ethindex/logindex/internal/store"
)

// Segment kinds as stored in the descriptor's first byte.
const (
	kindTemp  byte = 0x01
	kindFinal byte = 0x02
)

const descriptorSize = 17

// descriptor is the fixed 17-byte KV value describing one segment.
// Layout: kind:u8 || offset:u64_le || length:u32_le || last_block:u32_le.
// For TEMP segments length counts 4-byte entries; for FINAL segments it is
// the compressed byte count.
type descriptor struct {
	kind      byte
	offset    uint64
	length    uint32
	lastBlock uint32
}

func (d descriptor) isTemp() bool { return d.kind == kindTemp }

func encodeDescriptor(d descriptor) []byte {
	buf := make([]byte, descriptorSize)
	buf[0] = d.kind
	binary.LittleEndian.PutUint64(buf[1:9], d.offset)
	binary.LittleEndian.PutUint32(buf[9:13], d.length)
	binary.LittleEndian.PutUint32(buf[13:17], d.lastBlock)
	return buf
}

func decodeDescriptor(raw []byte) (descriptor, error) {
	if len(raw) != descriptorSize {
		return descriptor{}, fmt.Errorf("%w: descriptor of %d bytes", ErrCorrupted, len(raw))
	}
	d := descriptor{
		kind:      raw[0],
		offset:    binary.LittleEndian.Uint64(raw[1:9]),
		length:    binary.LittleEndian.Uint32(raw[9:13]),
		lastBlock: binary.LittleEndian.Uint32(raw[13:17]),
	}
	if d.kind != kindTemp && d.kind != kindFinal {
		return descriptor{}, fmt.Errorf("%w: unknown segment kind 0x%02x", ErrCorrupted, d.kind)
	}
	if d.kind == kindTemp && d.length > EntriesPerPage {
		return descriptor{}, fmt.Errorf("%w: temp segment length %d exceeds page capacity", ErrCorrupted, d.length)
	}
	return d, nil
}

// segmentKey builds the composite KV key user_key || first_block. The
// block suffix is big-endian so lexicographic KV order equals numeric
// block order for a fixed user key.
func segmentKey(userKey []byte, firstBlock uint32) []byte {
	key := make([]byte, len(userKey)+4)
	copy(key, userKey)
	binary.BigEndian.PutUint32(key[len(userKey):], firstBlock)
	return key
}

// segmentRow is one decoded KV row of a key's segment chain.
type segmentRow struct {
	firstBlock uint32
	desc       descriptor
}

// metaStore is the thin adapter between the engine and the KV store's
// descriptor rows.
type metaStore struct {
	kv store.KV
}

// put publishes a segment row. A single put is the engine's unit of
// atomic publication; readers never observe a partially written row.
func (m *metaStore) put(ns *namespace, userKey []byte, firstBlock uint32, d descriptor) error {
	if err := m.kv.Put(ns.column, segmentKey(userKey, firstBlock), encodeDescriptor(d)); err != nil {
		return fmt.Errorf("failed to put segment row: %w", err)
	}
	return nil
}

// newSegmentIter opens an ascending iterator over a key's segment rows.
func (m *metaStore) newSegmentIter(ns *namespace, userKey []byte) *segmentIter {
	it := m.kv.NewIterator(ns.column)
	prefix := make([]byte, len(userKey))
	copy(prefix, userKey)
	it.Seek(prefix)
	return &segmentIter{it: it, prefix: prefix}
}

// tail returns the key's last (highest first_block) segment row, or nil if
// the key has none. The scan also verifies that no row before the last is
// TEMP, since at most one TEMP may exist and it must be last.
func (m *metaStore) tail(ns *namespace, userKey []byte) (*segmentRow, error) {
	it := m.newSegmentIter(ns, userKey)
	defer it.Close()

	var last *segmentRow
	for {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		if last != nil && last.desc.isTemp() {
			return nil, fmt.Errorf("%w: temp segment at block %d is not the key's last segment", ErrCorrupted, last.firstBlock)
		}
		last = &row
	}
	return last, nil
}

// segmentIter decodes a key's segment rows in ascending first_block order.
type segmentIter struct {
	it     store.Iterator
	prefix []byte
}

// Next returns the next row. ok is false once the key's rows are exhausted.
func (s *segmentIter) Next() (row segmentRow, ok bool, err error) {
	if !s.it.ValidForPrefix(s.prefix) {
		if err := s.it.Err(); err != nil {
			return segmentRow{}, false, fmt.Errorf("segment iteration: %w", err)
		}
		return segmentRow{}, false, nil
	}

	key := s.it.Key()
	if len(key) != len(s.prefix)+4 {
		return segmentRow{}, false, fmt.Errorf("%w: segment key of %d bytes for %d-byte prefix", ErrCorrupted, len(key), len(s.prefix))
	}
	desc, err := decodeDescriptor(s.it.Value())
	if err != nil {
		return segmentRow{}, false, err
	}

	row = segmentRow{
		firstBlock: binary.BigEndian.Uint32(key[len(s.prefix):]),
		desc:       desc,
	}
	s.it.Next()
	return row, true, nil
}

func (s *segmentIter) Close() {
	s.it.Close()
}
