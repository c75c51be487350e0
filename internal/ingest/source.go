// Package ingest feeds processed-block receipts into the index engine.
// Receipts arrive as zstd-compressed chunk files of JSON lines, one line
// per block, laid out by an upstream block processor.
package ingest

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/ethindex/logindex/internal/index"
)

// ChunkSuffix is the file suffix receipt chunks carry.
const ChunkSuffix = ".jsonl.zst"

// BlockReceipts is the decoded unit of ingestion: one block's receipts.
type BlockReceipts struct {
	BlockNumber uint32
	Receipts    []index.Receipt
}

// Wire format of one chunk line.
type blockLine struct {
	BlockNumber uint32        `json:"block_number"`
	Receipts    []receiptLine `json:"receipts"`
}

type receiptLine struct {
	Logs []logLine `json:"logs"`
}

type logLine struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
}

// ListChunks returns the chunk files under dir in lexical order. Chunk
// names embed their position in the block stream, so lexical order is
// block order.
func ListChunks(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt dir: %w", err)
	}

	var chunks []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ChunkSuffix) {
			continue
		}
		chunks = append(chunks, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(chunks)
	return chunks, nil
}

// ChunkReader parses receipt chunk files. Each worker owns one so the
// zstd decoder is never shared.
type ChunkReader struct {
	decoder *zstd.Decoder
}

// NewChunkReader creates a chunk reader.
func NewChunkReader() (*ChunkReader, error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &ChunkReader{decoder: decoder}, nil
}

// Close releases the reader.
func (r *ChunkReader) Close() {
	r.decoder.Close()
}

// ReadChunk parses one chunk file into its blocks.
func (r *ChunkReader) ReadChunk(path string) ([]BlockReceipts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open chunk: %w", err)
	}
	defer f.Close()

	if err := r.decoder.Reset(f); err != nil {
		return nil, fmt.Errorf("failed to reset zstd decoder: %w", err)
	}

	var blocks []BlockReceipts
	dec := json.NewDecoder(r.decoder)
	for {
		var line blockLine
		if err := dec.Decode(&line); err == io.EOF {
			break
		} else if err != nil {
			return nil, fmt.Errorf("failed to decode chunk %s: %w", filepath.Base(path), err)
		}

		block, err := decodeBlockLine(&line)
		if err != nil {
			return nil, fmt.Errorf("chunk %s block %d: %w", filepath.Base(path), line.BlockNumber, err)
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func decodeBlockLine(line *blockLine) (BlockReceipts, error) {
	block := BlockReceipts{BlockNumber: line.BlockNumber}
	for _, r := range line.Receipts {
		receipt := index.Receipt{}
		for _, l := range r.Logs {
			address, err := decodeHexField(l.Address, index.AddressKeyWidth)
			if err != nil {
				return BlockReceipts{}, fmt.Errorf("bad address: %w", err)
			}
			log := index.Log{Address: address}
			for _, t := range l.Topics {
				topic, err := decodeHexField(t, index.TopicKeyWidth)
				if err != nil {
					return BlockReceipts{}, fmt.Errorf("bad topic: %w", err)
				}
				log.Topics = append(log.Topics, topic)
			}
			receipt.Logs = append(receipt.Logs, log)
		}
		block.Receipts = append(block.Receipts, receipt)
	}
	return block, nil
}

func decodeHexField(s string, width int) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(raw) != width {
		return nil, fmt.Errorf("%d bytes, want %d", len(raw), width)
	}
	return raw, nil
}
