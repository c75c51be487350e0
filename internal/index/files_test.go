package index

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageFileAllocateAndWrite(t *testing.T) {
	pf, err := openPageFile(filepath.Join(t.TempDir(), tempIndexFile))
	require.NoError(t, err)
	defer pf.Close()

	off0, err := pf.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, int64(0), off0)

	off1, err := pf.AllocatePage()
	require.NoError(t, err)
	assert.Equal(t, int64(PageSize), off1)
	assert.Equal(t, int64(2*PageSize), pf.Size())

	require.NoError(t, pf.WriteEntry(off1, 0, 100))
	require.NoError(t, pf.WriteEntry(off1, 5, 600))

	raw, err := pf.ReadPage(off1, 6*4)
	require.NoError(t, err)
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(raw[0:4]))
	assert.Equal(t, uint32(600), binary.LittleEndian.Uint32(raw[20:24]))
}

func TestPageFileRejectsMisalignedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), tempIndexFile)
	require.NoError(t, os.WriteFile(path, make([]byte, PageSize+1), 0o644))

	_, err := openPageFile(path)
	require.ErrorIs(t, err, ErrCorrupted)
}

func TestPageFileWriteEntryContract(t *testing.T) {
	pf, err := openPageFile(filepath.Join(t.TempDir(), tempIndexFile))
	require.NoError(t, err)
	defer pf.Close()

	assert.Panics(t, func() { pf.WriteEntry(0, EntriesPerPage, 1) })
}

func TestAppendFileOffsets(t *testing.T) {
	af, err := openAppendFile(filepath.Join(t.TempDir(), finalizedIndexFile))
	require.NoError(t, err)
	defer af.Close()

	off1, err := af.Append([]byte("alpha"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), off1)

	off2, err := af.Append([]byte("beta"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), off2)
	assert.Equal(t, int64(9), af.Size())

	got, err := af.ReadAt(off1, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha"), got)

	got, err = af.ReadAt(off2, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte("beta"), got)
}

func TestAppendFileResumesAtEnd(t *testing.T) {
	path := filepath.Join(t.TempDir(), finalizedIndexFile)

	af, err := openAppendFile(path)
	require.NoError(t, err)
	_, err = af.Append([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, af.Close())

	af, err = openAppendFile(path)
	require.NoError(t, err)
	defer af.Close()

	off, err := af.Append([]byte("second"))
	require.NoError(t, err)
	assert.Equal(t, int64(5), off)
}
