package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ethindex/logindex/internal/config"
	"github.com/ethindex/logindex/internal/index"
	"github.com/ethindex/logindex/internal/store"
)

// newLogger builds the CLI logger.
func newLogger(verbose bool) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	zcfg.Encoding = "console"
	if verbose {
		zcfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	return zcfg.Build()
}

// openKV opens the configured KV backend.
func openKV(cfg *config.Config) (store.KV, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return store.NewMemoryStore(), nil
	default:
		return store.NewRocksDBStore(cfg.Storage.DBPath, &store.RocksDBOptions{
			WriteBufferSizeMB:     cfg.Storage.WriteBufferSizeMB,
			MaxWriteBufferNumber:  cfg.Storage.MaxWriteBufferNumber,
			BlockCacheSizeMB:      cfg.Storage.BlockCacheSizeMB,
			BloomFilterBitsPerKey: cfg.Storage.BloomFilterBitsPerKey,
			MaxBackgroundJobs:     cfg.Storage.MaxBackgroundJobs,
			Compression:           cfg.Storage.Compression,
			DisableWAL:            cfg.Storage.DisableWAL,
		})
	}
}

// openEngine opens the index engine over the configured backend. The
// engine owns the KV store and closes it.
func openEngine(cfg *config.Config, logger *zap.Logger, metrics *index.Metrics) (*index.Engine, error) {
	kv, err := openKV(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open KV store: %w", err)
	}

	engine, err := index.Open(index.Options{
		Dir:     cfg.Index.Dir,
		KV:      kv,
		Codec:   cfg.Index.Codec,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		kv.Close()
		return nil, err
	}
	return engine, nil
}

// parseHexKey decodes a 0x-prefixed hex key of the given byte width.
func parseHexKey(s string, width int) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex key %q: %w", s, err)
	}
	if len(raw) != width {
		return nil, fmt.Errorf("key %q is %d bytes, want %d", s, len(raw), width)
	}
	return raw, nil
}

// repeatedFlag collects a repeatable string flag.
type repeatedFlag []string

func (r *repeatedFlag) String() string { return strings.Join(*r, ",") }

func (r *repeatedFlag) Set(v string) error {
	*r = append(*r, v)
	return nil
}
