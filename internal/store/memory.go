package store

import (
	"bytes"
	"sort"
	"sync"
)

// MemoryStore is an in-memory sorted KV backend. It backs unit tests and
// ephemeral runs; it offers the same ordering and snapshot guarantees as
// the RocksDB backend but no durability.
type MemoryStore struct {
	mu      sync.RWMutex
	columns [numColumns]memColumn
}

type memColumn struct {
	keys   [][]byte // sorted
	values [][]byte // parallel to keys
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// search returns the position of key in the column, and whether it is present.
func (c *memColumn) search(key []byte) (int, bool) {
	i := sort.Search(len(c.keys), func(i int) bool {
		return bytes.Compare(c.keys[i], key) >= 0
	})
	return i, i < len(c.keys) && bytes.Equal(c.keys[i], key)
}

// Get returns the value for key, or nil if absent.
func (s *MemoryStore) Get(col Column, key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c := &s.columns[int(col)]
	i, ok := c.search(key)
	if !ok {
		return nil, nil
	}
	value := make([]byte, len(c.values[i]))
	copy(value, c.values[i])
	return value, nil
}

// Put stores value under key.
func (s *MemoryStore) Put(col Column, key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := make([]byte, len(key))
	copy(k, key)
	v := make([]byte, len(value))
	copy(v, value)

	c := &s.columns[int(col)]
	i, ok := c.search(key)
	if ok {
		c.values[i] = v
		return nil
	}

	c.keys = append(c.keys, nil)
	copy(c.keys[i+1:], c.keys[i:])
	c.keys[i] = k

	c.values = append(c.values, nil)
	copy(c.values[i+1:], c.values[i:])
	c.values[i] = v
	return nil
}

// Delete removes key.
func (s *MemoryStore) Delete(col Column, key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &s.columns[int(col)]
	i, ok := c.search(key)
	if !ok {
		return nil
	}
	c.keys = append(c.keys[:i], c.keys[i+1:]...)
	c.values = append(c.values[:i], c.values[i+1:]...)
	return nil
}

// NewIterator returns an iterator over a snapshot of the column.
func (s *MemoryStore) NewIterator(col Column) Iterator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Snapshot the slice headers; entries are never mutated in place, so
	// sharing the key/value byte slices is safe.
	c := &s.columns[int(col)]
	keys := make([][]byte, len(c.keys))
	copy(keys, c.keys)
	values := make([][]byte, len(c.values))
	copy(values, c.values)

	return &memIterator{keys: keys, values: values, pos: len(keys)}
}

// Flush is a no-op for the in-memory backend.
func (s *MemoryStore) Flush() error { return nil }

// Close is a no-op for the in-memory backend.
func (s *MemoryStore) Close() error { return nil }

type memIterator struct {
	keys   [][]byte
	values [][]byte
	pos    int
}

func (m *memIterator) Seek(target []byte) {
	m.pos = sort.Search(len(m.keys), func(i int) bool {
		return bytes.Compare(m.keys[i], target) >= 0
	})
}

func (m *memIterator) Valid() bool {
	return m.pos < len(m.keys)
}

func (m *memIterator) ValidForPrefix(prefix []byte) bool {
	return m.Valid() && bytes.HasPrefix(m.keys[m.pos], prefix)
}

func (m *memIterator) Key() []byte   { return append([]byte(nil), m.keys[m.pos]...) }
func (m *memIterator) Value() []byte { return append([]byte(nil), m.values[m.pos]...) }
func (m *memIterator) Next()         { m.pos++ }
func (m *memIterator) Err() error    { return nil }
func (m *memIterator) Close()        {}
