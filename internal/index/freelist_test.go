package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethindex/logindex/internal/store"
)

func TestFreeListEmptyAcquire(t *testing.T) {
	alloc := newFreePageAllocator(store.NewMemoryStore())

	_, ok, err := alloc.Acquire()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFreeListLIFO(t *testing.T) {
	alloc := newFreePageAllocator(store.NewMemoryStore())

	require.NoError(t, alloc.Release(0))
	require.NoError(t, alloc.Release(PageSize))
	require.NoError(t, alloc.Release(2*PageSize))

	depth, err := alloc.Depth()
	require.NoError(t, err)
	assert.Equal(t, 3, depth)

	for _, want := range []int64{2 * PageSize, PageSize, 0} {
		off, ok, err := alloc.Acquire()
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, want, off)
	}

	_, ok, err := alloc.Acquire()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFreeListIsPersistent(t *testing.T) {
	kv := store.NewMemoryStore()

	alloc := newFreePageAllocator(kv)
	require.NoError(t, alloc.Release(3*PageSize))

	// A fresh allocator over the same store sees the released page.
	alloc2 := newFreePageAllocator(kv)
	off, ok, err := alloc2.Acquire()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(3*PageSize), off)
}

func TestFreeListRejectsOversizedOffset(t *testing.T) {
	alloc := newFreePageAllocator(store.NewMemoryStore())
	err := alloc.Release(1 << 40)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestFreeListRejectsGarbage(t *testing.T) {
	kv := store.NewMemoryStore()
	require.NoError(t, kv.Put(store.ColumnDefault, freeListKey, []byte{1, 2, 3}))

	alloc := newFreePageAllocator(kv)
	_, _, err := alloc.Acquire()
	require.ErrorIs(t, err, ErrCorrupted)
}
