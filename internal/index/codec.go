package index

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec compresses a packed little-endian u32 block-number run into an
// opaque byte run and inverts it. Codecs must round-trip losslessly. A
// run does not record which codec wrote it and the engine never rewrites a
// published run, so every run is decoded with the codec the engine was
// opened with, including runs written under an earlier codec setting.
type Codec interface {
	Name() string
	Compress(raw []byte) ([]byte, error)
	Decompress(run []byte) ([]byte, error)
	Close()
}

// NewCodec returns the codec registered under name. The names mirror the
// storage layer's compression option: "zstd" (default), "snappy", "lz4",
// "none".
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "zstd":
		return newZstdCodec()
	case "snappy":
		return snappyCodec{}, nil
	case "lz4":
		return lz4Codec{}, nil
	case "none":
		return noneCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// packBlocks packs block numbers as little-endian u32s.
func packBlocks(blocks []uint32) []byte {
	raw := make([]byte, 4*len(blocks))
	for i, b := range blocks {
		binary.LittleEndian.PutUint32(raw[4*i:], b)
	}
	return raw
}

// unpackBlocks inverts packBlocks.
func unpackBlocks(raw []byte) ([]uint32, error) {
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("%w: block run of %d bytes is not a packed u32 array", ErrCorrupted, len(raw))
	}
	blocks := make([]uint32, len(raw)/4)
	for i := range blocks {
		blocks[i] = binary.LittleEndian.Uint32(raw[4*i:])
	}
	return blocks, nil
}

// =============================================================================
// zstd
// =============================================================================

type zstdCodec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func newZstdCodec() (*zstdCodec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &zstdCodec{enc: enc, dec: dec}, nil
}

func (c *zstdCodec) Name() string { return "zstd" }

func (c *zstdCodec) Compress(raw []byte) ([]byte, error) {
	return c.enc.EncodeAll(raw, nil), nil
}

func (c *zstdCodec) Decompress(run []byte) ([]byte, error) {
	raw, err := c.dec.DecodeAll(run, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: zstd decompress: %v", ErrCorrupted, err)
	}
	return raw, nil
}

func (c *zstdCodec) Close() {
	c.enc.Close()
	c.dec.Close()
}

// =============================================================================
// snappy
// =============================================================================

type snappyCodec struct{}

func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Compress(raw []byte) ([]byte, error) {
	return snappy.Encode(nil, raw), nil
}

func (snappyCodec) Decompress(run []byte) ([]byte, error) {
	raw, err := snappy.Decode(nil, run)
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decompress: %v", ErrCorrupted, err)
	}
	return raw, nil
}

func (snappyCodec) Close() {}

// =============================================================================
// lz4
// =============================================================================

type lz4Codec struct{}

func (lz4Codec) Name() string { return "lz4" }

func (lz4Codec) Compress(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) Decompress(run []byte) ([]byte, error) {
	raw, err := io.ReadAll(lz4.NewReader(bytes.NewReader(run)))
	if err != nil {
		return nil, fmt.Errorf("%w: lz4 decompress: %v", ErrCorrupted, err)
	}
	return raw, nil
}

func (lz4Codec) Close() {}

// =============================================================================
// none
// =============================================================================

type noneCodec struct{}

func (noneCodec) Name() string { return "none" }

func (noneCodec) Compress(raw []byte) ([]byte, error) {
	out := make([]byte, len(raw))
	copy(out, raw)
	return out, nil
}

func (noneCodec) Decompress(run []byte) ([]byte, error) {
	out := make([]byte, len(run))
	copy(out, run)
	return out, nil
}

func (noneCodec) Close() {}
