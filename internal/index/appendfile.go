package index

import (
	"fmt"
	"os"
	"sync"
)

// appendFile is the finalized-index file: a bare concatenation of
// compressed runs, addressed by (offset, length). Bytes are append-only;
// a published reference is immutable.
type appendFile struct {
	f *os.File

	mu   sync.Mutex // serializes appends so offsets are monotonic
	size int64
}

func openAppendFile(path string) (*appendFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open append file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat append file: %w", err)
	}

	return &appendFile{f: f, size: info.Size()}, nil
}

// Append writes b at the end of the file and returns its offset.
func (a *appendFile) Append(b []byte) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	offset := a.size
	if _, err := a.f.WriteAt(b, offset); err != nil {
		return 0, fmt.Errorf("failed to append %d bytes: %w", len(b), err)
	}
	a.size = offset + int64(len(b))
	return offset, nil
}

// ReadAt reads length bytes at offset.
func (a *appendFile) ReadAt(offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := a.f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("failed to read %d bytes at %d: %w", length, offset, err)
	}
	return buf, nil
}

// Size returns the current file size.
func (a *appendFile) Size() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.size
}

func (a *appendFile) Sync() error {
	return a.f.Sync()
}

func (a *appendFile) Close() error {
	return a.f.Close()
}
