package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethindex/logindex/internal/index"
	"github.com/ethindex/logindex/internal/store"
)

func hexKey(b byte, width int) string {
	raw := make([]byte, width)
	for i := range raw {
		raw[i] = b
	}
	return fmt.Sprintf("0x%x", raw)
}

// writeChunk writes one zstd-compressed chunk of JSON block lines.
func writeChunk(t *testing.T, dir, name string, lines []blockLine) string {
	t.Helper()

	path := filepath.Join(dir, name+ChunkSuffix)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w, err := zstd.NewWriter(f)
	require.NoError(t, err)

	enc := json.NewEncoder(w)
	for _, line := range lines {
		require.NoError(t, enc.Encode(line))
	}
	require.NoError(t, w.Close())
	return path
}

func TestListChunksSortsAndFilters(t *testing.T) {
	dir := t.TempDir()

	writeChunk(t, dir, "chunk_000002", nil)
	writeChunk(t, dir, "chunk_000001", nil)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	chunks, err := ListChunks(dir)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "chunk_000001"+ChunkSuffix, filepath.Base(chunks[0]))
	assert.Equal(t, "chunk_000002"+ChunkSuffix, filepath.Base(chunks[1]))
}

func TestChunkReaderRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := writeChunk(t, dir, "chunk_000001", []blockLine{
		{
			BlockNumber: 7,
			Receipts: []receiptLine{{Logs: []logLine{{
				Address: hexKey(0xaa, index.AddressKeyWidth),
				Topics:  []string{hexKey(0xbb, index.TopicKeyWidth)},
			}}}},
		},
		{BlockNumber: 8},
	})

	reader, err := NewChunkReader()
	require.NoError(t, err)
	defer reader.Close()

	blocks, err := reader.ReadChunk(path)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	assert.Equal(t, uint32(7), blocks[0].BlockNumber)
	require.Len(t, blocks[0].Receipts, 1)
	require.Len(t, blocks[0].Receipts[0].Logs, 1)
	log := blocks[0].Receipts[0].Logs[0]
	assert.Len(t, log.Address, index.AddressKeyWidth)
	require.Len(t, log.Topics, 1)
	assert.Len(t, log.Topics[0], index.TopicKeyWidth)

	assert.Equal(t, uint32(8), blocks[1].BlockNumber)
	assert.Empty(t, blocks[1].Receipts)
}

func TestChunkReaderRejectsBadKeys(t *testing.T) {
	dir := t.TempDir()
	path := writeChunk(t, dir, "chunk_000001", []blockLine{
		{
			BlockNumber: 1,
			Receipts: []receiptLine{{Logs: []logLine{{
				Address: "0xdeadbeef", // wrong width
			}}}},
		},
	})

	reader, err := NewChunkReader()
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.ReadChunk(path)
	require.Error(t, err)
}

func TestPipelineIngestsInOrder(t *testing.T) {
	dir := t.TempDir()

	addr := hexKey(0x11, index.AddressKeyWidth)
	topic := hexKey(0x22, index.TopicKeyWidth)

	var block uint32
	for c := 0; c < 4; c++ {
		var lines []blockLine
		for i := 0; i < 25; i++ {
			lines = append(lines, blockLine{
				BlockNumber: block,
				Receipts: []receiptLine{{Logs: []logLine{{
					Address: addr,
					Topics:  []string{topic},
				}}}},
			})
			block++
		}
		writeChunk(t, dir, fmt.Sprintf("chunk_%06d", c), lines)
	}

	engine, err := index.Open(index.Options{Dir: t.TempDir(), KV: store.NewMemoryStore()})
	require.NoError(t, err)
	defer engine.Close()

	chunks, err := ListChunks(dir)
	require.NoError(t, err)

	pipeline := NewPipeline(PipelineConfig{Workers: 3}, engine)
	require.NoError(t, pipeline.Run(chunks))

	stats := pipeline.GetStats()
	assert.Equal(t, int64(4), stats.ChunksProcessed)
	assert.Equal(t, int64(100), stats.BlocksIngested)
	assert.Equal(t, int64(100), stats.LogsIngested)

	key := make([]byte, index.AddressKeyWidth)
	for i := range key {
		key[i] = 0x11
	}
	it, err := engine.GetBlockNumbers(key, 0, 1000)
	require.NoError(t, err)
	defer it.Close()

	var got []uint32
	for it.Next() {
		got = append(got, it.Block())
	}
	require.NoError(t, it.Err())
	require.Len(t, got, 100)
	assert.Equal(t, uint32(0), got[0])
	assert.Equal(t, uint32(99), got[99])
}

func TestPipelineSurfacesChunkErrors(t *testing.T) {
	dir := t.TempDir()

	// A chunk that is not a zstd stream.
	path := filepath.Join(dir, "chunk_000001"+ChunkSuffix)
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	engine, err := index.Open(index.Options{Dir: t.TempDir(), KV: store.NewMemoryStore()})
	require.NoError(t, err)
	defer engine.Close()

	pipeline := NewPipeline(PipelineConfig{Workers: 1}, engine)
	err = pipeline.Run([]string{path})
	require.Error(t, err)
}
