package index

import (
	"encoding/binary"
	"fmt"
	"os"
	"sync"
)

// pageFile is the temp-index file: a flat array of fixed-size pages, each
// the backing store of one open TEMP segment. Reads and writes go straight
// through the OS page cache; the file carries no header.
type pageFile struct {
	f *os.File

	mu   sync.Mutex // guards growth
	size int64      // always a multiple of PageSize
}

func openPageFile(path string) (*pageFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open page file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat page file: %w", err)
	}
	if info.Size()%PageSize != 0 {
		f.Close()
		return nil, fmt.Errorf("%w: page file size %d is not page-aligned", ErrCorrupted, info.Size())
	}

	return &pageFile{f: f, size: info.Size()}, nil
}

// ReadPage reads n bytes starting at a page offset. n must not exceed PageSize.
func (p *pageFile) ReadPage(offset int64, n int) ([]byte, error) {
	if n > PageSize {
		panic(fmt.Sprintf("pagefile: read of %d bytes exceeds page size", n))
	}
	buf := make([]byte, n)
	if _, err := p.f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("failed to read page at %d: %w", offset, err)
	}
	return buf, nil
}

// WriteEntry writes one block number into the page at offset, slot entries in.
func (p *pageFile) WriteEntry(offset int64, slot int, block uint32) error {
	if slot < 0 || slot >= EntriesPerPage {
		panic(fmt.Sprintf("pagefile: entry slot %d out of range", slot))
	}
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], block)
	if _, err := p.f.WriteAt(buf[:], offset+int64(4*slot)); err != nil {
		return fmt.Errorf("failed to write entry at page %d slot %d: %w", offset, slot, err)
	}
	return nil
}

// AllocatePage grows the file by one page and returns the old end offset.
func (p *pageFile) AllocatePage() (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	offset := p.size
	if err := p.f.Truncate(offset + PageSize); err != nil {
		return 0, fmt.Errorf("failed to grow page file: %w", err)
	}
	p.size = offset + PageSize
	return offset, nil
}

// Size returns the current file size.
func (p *pageFile) Size() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size
}

func (p *pageFile) Sync() error {
	return p.f.Sync()
}

func (p *pageFile) Close() error {
	return p.f.Close()
}
