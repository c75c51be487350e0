package store

import (
	"fmt"
	"strings"

	"github.com/linxGnu/grocksdb"
)

// RocksDBOptions contains tuning parameters for the RocksDB backend.
type RocksDBOptions struct {
	// Write performance
	WriteBufferSizeMB    int
	MaxWriteBufferNumber int

	// Read performance
	BlockCacheSizeMB      int
	BloomFilterBitsPerKey int

	// Background jobs
	MaxBackgroundJobs int

	// Compression
	Compression string

	// WAL
	DisableWAL bool
}

// RocksDBStore is the RocksDB-backed KV implementation. Index metadata is
// tiny compared to the page and append files, so a single set of options
// is shared across the column families.
type RocksDBStore struct {
	db *grocksdb.DB
	wo *grocksdb.WriteOptions
	ro *grocksdb.ReadOptions
	fo *grocksdb.FlushOptions

	cfHandles []*grocksdb.ColumnFamilyHandle

	// Options kept alive for the lifetime of the DB.
	baseOpts *grocksdb.Options
	cfOpts   []*grocksdb.Options
	bbto     *grocksdb.BlockBasedTableOptions
}

// NewRocksDBStore opens (creating if necessary) a RocksDB database with the
// engine's column families.
func NewRocksDBStore(dbPath string, rocksOpts *RocksDBOptions) (*RocksDBStore, error) {
	baseOpts := grocksdb.NewDefaultOptions()
	baseOpts.SetCreateIfMissing(true)
	baseOpts.SetCreateIfMissingColumnFamilies(true)
	applyRocksDBOptions(baseOpts, rocksOpts)

	bbto := grocksdb.NewDefaultBlockBasedTableOptions()
	bbto.SetBlockSize(4 * 1024) // descriptor rows are 17 bytes, small blocks read less
	if rocksOpts != nil && rocksOpts.BlockCacheSizeMB > 0 {
		bbto.SetBlockCache(grocksdb.NewLRUCache(uint64(rocksOpts.BlockCacheSizeMB) * 1024 * 1024))
	}
	if rocksOpts != nil && rocksOpts.BloomFilterBitsPerKey > 0 {
		bbto.SetFilterPolicy(grocksdb.NewBloomFilter(float64(rocksOpts.BloomFilterBitsPerKey)))
	}

	cfNames := []string{CFDefault, CFAddresses, CFTopics}
	cfOpts := make([]*grocksdb.Options, len(cfNames))
	for i := range cfOpts {
		opts := grocksdb.NewDefaultOptions()
		applyRocksDBOptions(opts, rocksOpts)
		opts.SetBlockBasedTableFactory(bbto)
		cfOpts[i] = opts
	}

	db, cfHandles, err := grocksdb.OpenDbColumnFamilies(baseOpts, dbPath, cfNames, cfOpts)
	if err != nil {
		for _, opt := range cfOpts {
			opt.Destroy()
		}
		bbto.Destroy()
		baseOpts.Destroy()
		return nil, fmt.Errorf("failed to open RocksDB with column families: %w", err)
	}

	wo := grocksdb.NewDefaultWriteOptions()
	if rocksOpts != nil && rocksOpts.DisableWAL {
		wo.DisableWAL(true)
	}

	return &RocksDBStore{
		db:        db,
		wo:        wo,
		ro:        grocksdb.NewDefaultReadOptions(),
		fo:        grocksdb.NewDefaultFlushOptions(),
		cfHandles: cfHandles,
		baseOpts:  baseOpts,
		cfOpts:    cfOpts,
		bbto:      bbto,
	}, nil
}

// applyRocksDBOptions applies common RocksDB options.
func applyRocksDBOptions(opts *grocksdb.Options, rocksOpts *RocksDBOptions) {
	if rocksOpts == nil {
		opts.SetCompression(grocksdb.LZ4Compression)
		return
	}

	if rocksOpts.WriteBufferSizeMB > 0 {
		opts.SetWriteBufferSize(uint64(rocksOpts.WriteBufferSizeMB) * 1024 * 1024)
	}
	if rocksOpts.MaxWriteBufferNumber > 0 {
		opts.SetMaxWriteBufferNumber(rocksOpts.MaxWriteBufferNumber)
	}
	if rocksOpts.MaxBackgroundJobs > 0 {
		opts.SetMaxBackgroundJobs(rocksOpts.MaxBackgroundJobs)
	}

	opts.SetCompression(parseCompression(rocksOpts.Compression))
}

// parseCompression converts a compression string to a grocksdb compression type.
func parseCompression(compression string) grocksdb.CompressionType {
	switch strings.ToLower(compression) {
	case "none":
		return grocksdb.NoCompression
	case "snappy":
		return grocksdb.SnappyCompression
	case "zstd":
		return grocksdb.ZSTDCompression
	case "lz4", "":
		return grocksdb.LZ4Compression
	default:
		return grocksdb.LZ4Compression
	}
}

func (s *RocksDBStore) handle(col Column) *grocksdb.ColumnFamilyHandle {
	return s.cfHandles[int(col)]
}

// Get returns the value for key, or nil if absent.
func (s *RocksDBStore) Get(col Column, key []byte) ([]byte, error) {
	slice, err := s.db.GetCF(s.ro, s.handle(col), key)
	if err != nil {
		return nil, fmt.Errorf("rocksdb get: %w", err)
	}
	defer slice.Free()

	if !slice.Exists() {
		return nil, nil
	}

	value := make([]byte, slice.Size())
	copy(value, slice.Data())
	return value, nil
}

// Put stores value under key.
func (s *RocksDBStore) Put(col Column, key, value []byte) error {
	if err := s.db.PutCF(s.wo, s.handle(col), key, value); err != nil {
		return fmt.Errorf("rocksdb put: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *RocksDBStore) Delete(col Column, key []byte) error {
	if err := s.db.DeleteCF(s.wo, s.handle(col), key); err != nil {
		return fmt.Errorf("rocksdb delete: %w", err)
	}
	return nil
}

// NewIterator returns an iterator over the column. RocksDB iterators pin a
// consistent snapshot of the column for their lifetime.
func (s *RocksDBStore) NewIterator(col Column) Iterator {
	return &rocksIterator{it: s.db.NewIteratorCF(s.ro, s.handle(col))}
}

// Flush flushes all column families.
func (s *RocksDBStore) Flush() error {
	for _, cf := range s.cfHandles {
		if err := s.db.FlushCF(cf, s.fo); err != nil {
			return fmt.Errorf("rocksdb flush: %w", err)
		}
	}
	return nil
}

// Close closes the database and destroys the option handles.
func (s *RocksDBStore) Close() error {
	s.wo.Destroy()
	s.ro.Destroy()
	s.fo.Destroy()

	// CF handles returned from OpenDbColumnFamilies are managed by the DB.
	s.db.Close()

	for _, opt := range s.cfOpts {
		opt.Destroy()
	}
	s.bbto.Destroy()
	s.baseOpts.Destroy()
	return nil
}

// rocksIterator adapts a grocksdb iterator to the Iterator interface,
// copying keys and values out of the C-owned slices.
type rocksIterator struct {
	it *grocksdb.Iterator
}

func (r *rocksIterator) Seek(target []byte) { r.it.Seek(target) }
func (r *rocksIterator) Valid() bool        { return r.it.Valid() }
func (r *rocksIterator) Next()              { r.it.Next() }
func (r *rocksIterator) Err() error         { return r.it.Err() }
func (r *rocksIterator) Close()             { r.it.Close() }

func (r *rocksIterator) ValidForPrefix(prefix []byte) bool {
	return r.it.ValidForPrefix(prefix)
}

func (r *rocksIterator) Key() []byte {
	slice := r.it.Key()
	defer slice.Free()
	key := make([]byte, slice.Size())
	copy(key, slice.Data())
	return key
}

func (r *rocksIterator) Value() []byte {
	slice := r.it.Value()
	defer slice.Free()
	value := make([]byte, slice.Size())
	copy(value, slice.Data())
	return value
}
