package index

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethindex/logindex/internal/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Open(Options{Dir: t.TempDir(), KV: store.NewMemoryStore()})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func testAddress(b byte) []byte {
	return bytes.Repeat([]byte{b}, AddressKeyWidth)
}

func testTopic(b byte) []byte {
	return bytes.Repeat([]byte{b}, TopicKeyWidth)
}

// ingestAddress ingests one block with a single log emitted by addr.
func ingestAddress(t *testing.T, e *Engine, addr []byte, block uint32) {
	t.Helper()
	receipts := []Receipt{{Logs: []Log{{Address: addr}}}}
	require.NoError(t, e.SetReceipts(block, receipts, false))
}

// collect drains an iterator.
func collect(t *testing.T, e *Engine, key []byte, from, to uint32) []uint32 {
	t.Helper()
	it, err := e.GetBlockNumbers(key, from, to)
	require.NoError(t, err)
	defer it.Close()

	var blocks []uint32
	for it.Next() {
		blocks = append(blocks, it.Block())
	}
	require.NoError(t, it.Err())
	return blocks
}

func TestSingleSegmentQueries(t *testing.T) {
	e := newTestEngine(t)
	key := testAddress(0x11)

	for _, b := range []uint32{10, 20, 30, 40, 50} {
		ingestAddress(t, e, key, b)
	}

	assert.Equal(t, []uint32{20, 30, 40}, collect(t, e, key, 15, 45))
	assert.Empty(t, collect(t, e, key, 0, 5))
	assert.Equal(t, []uint32{30}, collect(t, e, key, 30, 30))
}

func TestPromotionBoundary(t *testing.T) {
	e := newTestEngine(t)
	key := testAddress(0x22)

	for b := uint32(0); b < EntriesPerPage; b++ {
		ingestAddress(t, e, key, b)
	}

	// The filled temp segment must have been replaced in place by a
	// single finalized row.
	tail, err := e.meta.tail(&addressNamespace, key)
	require.NoError(t, err)
	require.NotNil(t, tail)
	assert.Equal(t, uint32(0), tail.firstBlock)
	assert.Equal(t, kindFinal, tail.desc.kind)
	assert.Equal(t, uint32(EntriesPerPage-1), tail.desc.lastBlock)

	rows := 0
	it := e.meta.newSegmentIter(&addressNamespace, key)
	defer it.Close()
	for {
		_, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		rows++
	}
	assert.Equal(t, 1, rows)

	depth, err := e.free.Depth()
	require.NoError(t, err)
	assert.Equal(t, 1, depth)

	assert.Equal(t, []uint32{500}, collect(t, e, key, 500, 500))
}

func TestTwoSegmentScan(t *testing.T) {
	e := newTestEngine(t)
	key := testAddress(0x33)

	for b := uint32(0); b <= 1500; b++ {
		ingestAddress(t, e, key, b)
	}

	tail, err := e.meta.tail(&addressNamespace, key)
	require.NoError(t, err)
	require.NotNil(t, tail)
	assert.Equal(t, kindTemp, tail.desc.kind)
	assert.Equal(t, uint32(1024), tail.firstBlock)
	assert.Equal(t, uint32(477), tail.desc.length)
	assert.Equal(t, uint32(1500), tail.desc.lastBlock)

	// A scan crossing the final/temp boundary stitches both segments.
	want := make([]uint32, 0, 101)
	for b := uint32(1000); b <= 1100; b++ {
		want = append(want, b)
	}
	assert.Equal(t, want, collect(t, e, key, 1000, 1100))
}

func TestDuplicateIngestIsIdempotent(t *testing.T) {
	e := newTestEngine(t)
	key := testAddress(0x44)

	for _, b := range []uint32{10, 20, 30, 40, 50} {
		ingestAddress(t, e, key, b)
	}

	before := collect(t, e, key, 0, 100)

	// Replays of already-indexed blocks must change nothing.
	ingestAddress(t, e, key, 30)
	ingestAddress(t, e, key, 50)
	require.NoError(t, e.SetReceipts(30, []Receipt{{Logs: []Log{{Address: key}}}}, true))

	assert.Equal(t, before, collect(t, e, key, 0, 100))

	tail, err := e.meta.tail(&addressNamespace, key)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), tail.desc.length)
}

func TestParallelDisjointKeys(t *testing.T) {
	e := newTestEngine(t)
	k1 := testAddress(0x55)
	k2 := testAddress(0x66)

	var wg sync.WaitGroup
	for _, kb := range []struct {
		key  []byte
		base uint32
	}{{k1, 0}, {k2, 10000}} {
		wg.Add(1)
		go func(key []byte, base uint32) {
			defer wg.Done()
			for b := base; b < base+2000; b++ {
				receipts := []Receipt{{Logs: []Log{{Address: key}}}}
				if err := e.SetReceipts(b, receipts, false); err != nil {
					t.Error(err)
					return
				}
			}
		}(kb.key, kb.base)
	}
	wg.Wait()

	got1 := collect(t, e, k1, 0, 30000)
	got2 := collect(t, e, k2, 0, 30000)
	require.Len(t, got1, 2000)
	require.Len(t, got2, 2000)
	assert.Equal(t, uint32(0), got1[0])
	assert.Equal(t, uint32(1999), got1[1999])
	assert.Equal(t, uint32(10000), got2[0])
	assert.Equal(t, uint32(11999), got2[1999])
}

func TestUnknownKeyIsEmpty(t *testing.T) {
	e := newTestEngine(t)
	assert.Empty(t, collect(t, e, testAddress(0x77), 0, 1_000_000))
	assert.Empty(t, collect(t, e, testTopic(0x77), 0, 1_000_000))
}

func TestPageReuseBoundsTempFile(t *testing.T) {
	e := newTestEngine(t)
	key := testAddress(0x88)

	// Three promotions for a single key must not grow the temp file past
	// one page: every promoted page returns to the free list and the next
	// temp segment reuses it.
	for b := uint32(0); b < 3*EntriesPerPage+10; b++ {
		ingestAddress(t, e, key, b)
	}

	assert.Equal(t, int64(PageSize), e.temp.Size())

	tail, err := e.meta.tail(&addressNamespace, key)
	require.NoError(t, err)
	assert.Equal(t, kindTemp, tail.desc.kind)
	assert.Equal(t, uint32(10), tail.desc.length)
}

func TestSegmentDisjointness(t *testing.T) {
	e := newTestEngine(t)
	key := testAddress(0x99)

	for b := uint32(0); b < 2*EntriesPerPage+100; b += 2 {
		ingestAddress(t, e, key, b)
	}

	it := e.meta.newSegmentIter(&addressNamespace, key)
	defer it.Close()

	var prev *segmentRow
	for {
		row, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		require.LessOrEqual(t, row.firstBlock, row.desc.lastBlock)
		if prev != nil {
			require.Less(t, prev.desc.lastBlock, row.firstBlock)
			require.Equal(t, kindFinal, prev.desc.kind, "only the last segment may be temp")
		}
		prev = &row
	}
	require.NotNil(t, prev)
}

func TestTopicsIndexedAlongsideAddresses(t *testing.T) {
	e := newTestEngine(t)
	addr := testAddress(0xaa)
	topic1 := testTopic(0xbb)
	topic2 := testTopic(0xcc)

	receipts := []Receipt{{Logs: []Log{
		{Address: addr, Topics: [][]byte{topic1, topic2}},
		{Address: addr, Topics: [][]byte{topic1}},
	}}}
	require.NoError(t, e.SetReceipts(7, receipts, false))
	require.NoError(t, e.SetReceipts(9, []Receipt{{Logs: []Log{{Address: addr, Topics: [][]byte{topic2}}}}}, false))

	assert.Equal(t, []uint32{7, 9}, collect(t, e, addr, 0, 100))
	assert.Equal(t, []uint32{7}, collect(t, e, topic1, 0, 100))
	assert.Equal(t, []uint32{7, 9}, collect(t, e, topic2, 0, 100))
}

func TestGetBlockNumbersUnion(t *testing.T) {
	e := newTestEngine(t)
	a1 := testAddress(0x01)
	a2 := testAddress(0x02)

	ingestAddress(t, e, a1, 1)
	ingestAddress(t, e, a1, 3)
	ingestAddress(t, e, a2, 3)
	ingestAddress(t, e, a2, 5)

	blocks, err := e.GetBlockNumbersUnion([][]byte{a1, a2}, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3, 5}, blocks)
}

func TestKeyWidthValidation(t *testing.T) {
	e := newTestEngine(t)

	err := e.SetReceipts(1, []Receipt{{Logs: []Log{{Address: []byte{1, 2, 3}}}}}, false)
	require.ErrorIs(t, err, ErrKeyWidth)

	_, err = e.GetBlockNumbers([]byte{1, 2, 3}, 0, 10)
	require.ErrorIs(t, err, ErrKeyWidth)
}

func TestCorruptionPoisonsEngine(t *testing.T) {
	kv := store.NewMemoryStore()
	e, err := Open(Options{Dir: t.TempDir(), KV: kv})
	require.NoError(t, err)
	defer e.Close()

	key := testAddress(0xde)
	ingestAddress(t, e, key, 1)

	// Clobber the key's descriptor row behind the engine's back.
	require.NoError(t, kv.Put(store.ColumnAddresses, segmentKey(key, 1), []byte{0xff, 0x00}))

	err = e.SetReceipts(2, []Receipt{{Logs: []Log{{Address: key}}}}, false)
	require.ErrorIs(t, err, ErrCorrupted)

	// Every further operation is refused.
	err = e.SetReceipts(3, []Receipt{{Logs: []Log{{Address: testAddress(0x01)}}}}, false)
	require.ErrorIs(t, err, ErrCorrupted)
	_, err = e.GetBlockNumbers(testAddress(0x01), 0, 10)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestClosedEngineRefusesOperations(t *testing.T) {
	e, err := Open(Options{Dir: t.TempDir(), KV: store.NewMemoryStore()})
	require.NoError(t, err)
	require.NoError(t, e.Close())

	require.ErrorIs(t, e.SetReceipts(1, nil, false), ErrClosed)
	_, err = e.GetBlockNumbers(testAddress(0x01), 0, 10)
	require.ErrorIs(t, err, ErrClosed)
	require.NoError(t, e.Close()) // double close is a no-op
}

func TestReopenPreservesState(t *testing.T) {
	dir := t.TempDir()
	kv := store.NewMemoryStore()
	key := testAddress(0xee)

	e, err := Open(Options{Dir: dir, KV: kv})
	require.NoError(t, err)
	for b := uint32(0); b < EntriesPerPage+5; b++ {
		ingestAddress(t, e, key, b)
	}

	// Close only the files, keep the KV to simulate a restart over the
	// same stores.
	e.closed.Store(true)
	e.codec.Close()
	require.NoError(t, e.temp.Close())
	require.NoError(t, e.final.Close())

	e2, err := Open(Options{Dir: dir, KV: kv})
	require.NoError(t, err)
	defer e2.Close()

	got := collect(t, e2, key, EntriesPerPage-2, EntriesPerPage+2)
	assert.Equal(t, []uint32{EntriesPerPage - 2, EntriesPerPage - 1, EntriesPerPage, EntriesPerPage + 1, EntriesPerPage + 2}, got)

	// The promoted page already backs the key's second temp segment, so
	// the free list is empty after the restart: a new key grows the
	// reopened one-page file by one more page.
	ingestAddress(t, e2, testAddress(0xef), 1)
	assert.Equal(t, int64(2*PageSize), e2.temp.Size())
}
