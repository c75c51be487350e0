package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecRoundTrip(t *testing.T) {
	inputs := map[string][]uint32{
		"empty":      {},
		"single":     {42},
		"sequential": nil, // filled below
		"sparse":     {0, 1000, 1_000_000, 4_000_000_000},
	}
	seq := make([]uint32, EntriesPerPage)
	for i := range seq {
		seq[i] = uint32(i * 3)
	}
	inputs["sequential"] = seq

	for _, name := range []string{"zstd", "snappy", "lz4", "none"} {
		t.Run(name, func(t *testing.T) {
			codec, err := NewCodec(name)
			require.NoError(t, err)
			defer codec.Close()

			for label, blocks := range inputs {
				raw := packBlocks(blocks)
				run, err := codec.Compress(raw)
				require.NoError(t, err, label)

				back, err := codec.Decompress(run)
				require.NoError(t, err, label)

				got, err := unpackBlocks(back)
				require.NoError(t, err, label)
				if len(blocks) == 0 {
					assert.Empty(t, got, label)
				} else {
					assert.Equal(t, blocks, got, label)
				}
			}
		})
	}
}

func TestCodecDefaultIsZstd(t *testing.T) {
	codec, err := NewCodec("")
	require.NoError(t, err)
	defer codec.Close()
	assert.Equal(t, "zstd", codec.Name())
}

func TestCodecUnknownName(t *testing.T) {
	_, err := NewCodec("brotli")
	require.Error(t, err)
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec, err := NewCodec("zstd")
	require.NoError(t, err)
	defer codec.Close()

	_, err = codec.Decompress([]byte("not a zstd frame"))
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestUnpackBlocksRejectsOddLength(t *testing.T) {
	_, err := unpackBlocks([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrCorrupted)
}
