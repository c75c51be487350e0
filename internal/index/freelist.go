package index

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/ethindex/logindex/internal/store"
)

// freeListKey is the reserved key in the default column holding the
// free-page stack, serialized as a packed little-endian u32 array of
// page offsets.
var freeListKey = []byte("freePages")

// freePageAllocator is a persistent stack of reusable temp-file page
// offsets. The list lives in the KV store so it survives restarts; it is
// re-read under the lock on every operation, so no cache invalidation is
// needed after crash recovery.
type freePageAllocator struct {
	mu sync.Mutex
	kv store.KV
}

func newFreePageAllocator(kv store.KV) *freePageAllocator {
	return &freePageAllocator{kv: kv}
}

func (a *freePageAllocator) load() ([]uint32, error) {
	raw, err := a.kv.Get(store.ColumnDefault, freeListKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load free-page list: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: free-page list of %d bytes is not a packed u32 array", ErrCorrupted, len(raw))
	}
	offsets := make([]uint32, len(raw)/4)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return offsets, nil
}

func (a *freePageAllocator) save(offsets []uint32) error {
	raw := make([]byte, 4*len(offsets))
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(raw[4*i:], off)
	}
	if err := a.kv.Put(store.ColumnDefault, freeListKey, raw); err != nil {
		return fmt.Errorf("failed to save free-page list: %w", err)
	}
	return nil
}

// Acquire pops a page offset off the stack. ok is false when the list is
// empty, signaling the caller to grow the temp file instead.
func (a *freePageAllocator) Acquire() (offset int64, ok bool, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offsets, err := a.load()
	if err != nil {
		return 0, false, err
	}
	if len(offsets) == 0 {
		return 0, false, nil
	}

	tail := offsets[len(offsets)-1]
	if err := a.save(offsets[:len(offsets)-1]); err != nil {
		return 0, false, err
	}
	return int64(tail), true, nil
}

// Release pushes a page offset onto the stack.
func (a *freePageAllocator) Release(offset int64) error {
	if offset < 0 || offset > math.MaxUint32 {
		return fmt.Errorf("%w: page offset %d does not fit the free-list encoding", ErrCorrupted, offset)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	offsets, err := a.load()
	if err != nil {
		return err
	}
	return a.save(append(offsets, uint32(offset)))
}

// Depth returns the number of free pages.
func (a *freePageAllocator) Depth() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offsets, err := a.load()
	if err != nil {
		return 0, err
	}
	return len(offsets), nil
}
