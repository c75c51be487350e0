// Package index implements the hybrid page-file + key-value log index: hot
// per-key page buffers of raw block numbers, compressed finalized runs in
// an append-only file, and descriptor rows in a sorted KV store mapping
// every indexed address and topic to the segments that hold its blocks.
package index

import (
	"errors"
	"fmt"

	"github.com/ethindex/logindex/internal/store"
)

const (
	// PageSize is the fixed size of a temp-file page in bytes.
	PageSize = 4096

	// EntriesPerPage is the block-number capacity of one page.
	EntriesPerPage = PageSize / 4

	// AddressKeyWidth is the byte width of address keys.
	AddressKeyWidth = 20

	// TopicKeyWidth is the byte width of topic keys.
	TopicKeyWidth = 32
)

// Index file names within the engine directory.
const (
	tempIndexFile      = "temp_index.bin"
	finalizedIndexFile = "finalized_index.bin"
)

var (
	// ErrClosed is returned by operations on a closed engine.
	ErrClosed = errors.New("index: engine is closed")

	// ErrCorrupted is returned when stored state fails validation and by
	// every operation after the first corruption has been observed.
	ErrCorrupted = errors.New("index: corrupted state")

	// ErrKeyWidth is returned for keys matching no namespace width.
	ErrKeyWidth = errors.New("index: key width matches no namespace")
)

// isCorruption reports whether err signals corrupted stored state, as
// opposed to an I/O or KV failure.
func isCorruption(err error) bool {
	return errors.Is(err, ErrCorrupted)
}

// Log is a single emitted log entry: the emitting address plus its topics.
// The engine never interprets the bytes beyond checking their widths.
type Log struct {
	Address []byte   // AddressKeyWidth bytes
	Topics  [][]byte // TopicKeyWidth bytes each
}

// Receipt holds the logs emitted by one transaction of a block.
type Receipt struct {
	Logs []Log
}

// namespace binds a key width to the KV column its rows live in. Addresses
// and topics share all engine code through this parameterization.
type namespace struct {
	name     string
	column   store.Column
	keyWidth int
}

var (
	addressNamespace = namespace{name: "addresses", column: store.ColumnAddresses, keyWidth: AddressKeyWidth}
	topicNamespace   = namespace{name: "topics", column: store.ColumnTopics, keyWidth: TopicKeyWidth}
)

// namespaceForKey selects the namespace by key width.
func namespaceForKey(key []byte) (*namespace, error) {
	switch len(key) {
	case AddressKeyWidth:
		return &addressNamespace, nil
	case TopicKeyWidth:
		return &topicNamespace, nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrKeyWidth, len(key))
	}
}
