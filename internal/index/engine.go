package index

import (
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ethindex/logindex/internal/store"
)

// Options configures an Engine.
type Options struct {
	// Dir is the directory holding temp_index.bin and finalized_index.bin.
	Dir string

	// KV is the metadata store. The engine takes ownership and closes it.
	KV store.KV

	// Codec selects the finalized-run codec: "zstd" (default), "snappy",
	// "lz4" or "none".
	Codec string

	// Logger defaults to zap.NewNop().
	Logger *zap.Logger

	// Metrics defaults to a set registered on a private registry.
	Metrics *Metrics
}

// Engine is the log-index storage engine. It is safe for concurrent use:
// writers to distinct keys proceed in parallel, and readers never block
// on writers.
type Engine struct {
	kv    store.KV
	temp  *pageFile
	final *appendFile
	meta  *metaStore
	free  *freePageAllocator
	locks *keyLockTable
	codec Codec

	log     *zap.Logger
	metrics *Metrics

	closed    atomic.Bool
	corrupted atomic.Bool
}

// Open opens the engine, creating the index files if missing.
func Open(opts Options) (*Engine, error) {
	if opts.KV == nil {
		return nil, fmt.Errorf("index: KV store is required")
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics(prometheus.NewRegistry())
	}

	codec, err := NewCodec(opts.Codec)
	if err != nil {
		return nil, err
	}

	temp, err := openPageFile(filepath.Join(opts.Dir, tempIndexFile))
	if err != nil {
		codec.Close()
		return nil, err
	}

	final, err := openAppendFile(filepath.Join(opts.Dir, finalizedIndexFile))
	if err != nil {
		codec.Close()
		temp.Close()
		return nil, err
	}

	e := &Engine{
		kv:      opts.KV,
		temp:    temp,
		final:   final,
		meta:    &metaStore{kv: opts.KV},
		free:    newFreePageAllocator(opts.KV),
		locks:   newKeyLockTable(),
		codec:   codec,
		log:     log,
		metrics: metrics,
	}

	depth, err := e.free.Depth()
	if err != nil {
		e.Close()
		return nil, err
	}
	metrics.FreePages.Set(float64(depth))
	metrics.TempFileBytes.Set(float64(temp.Size()))

	log.Info("log index opened",
		zap.String("dir", opts.Dir),
		zap.String("codec", codec.Name()),
		zap.Int64("temp_bytes", temp.Size()),
		zap.Int64("final_bytes", final.Size()),
		zap.Int("free_pages", depth))

	return e, nil
}

// check gates every operation on the engine being open and uncorrupted.
func (e *Engine) check() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.corrupted.Load() {
		return ErrCorrupted
	}
	return nil
}

// fail inspects an operation error and, when it signals corruption,
// poisons the engine: every subsequent operation fails until the store is
// externally repaired.
func (e *Engine) fail(err error) error {
	if err == nil {
		return nil
	}
	if isCorruption(err) && e.corrupted.CompareAndSwap(false, true) {
		e.log.Error("index corrupted, refusing further operations", zap.Error(err))
	}
	return err
}

// Flush forces KV and file state to persistent storage.
func (e *Engine) Flush() error {
	if err := e.check(); err != nil {
		return err
	}
	if err := e.temp.Sync(); err != nil {
		return err
	}
	if err := e.final.Sync(); err != nil {
		return err
	}
	return e.kv.Flush()
}

// Close releases the index files and the KV store.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.codec.Close()
	errTemp := e.temp.Close()
	errFinal := e.final.Close()
	errKV := e.kv.Close()

	if errTemp != nil {
		return errTemp
	}
	if errFinal != nil {
		return errFinal
	}
	if errKV != nil {
		return errKV
	}

	e.log.Info("log index closed")
	return nil
}
