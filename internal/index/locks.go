package index

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const lockShards = 64

// keyLockTable hands out one mutex per user key, serializing writes to
// that key's open temp segment. Entries are refcounted and reaped once no
// caller holds them, so the table stays bounded by the number of keys
// being written concurrently. Readers never touch this table.
type keyLockTable struct {
	shards [lockShards]lockShard
}

type lockShard struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyLockTable() *keyLockTable {
	t := &keyLockTable{}
	for i := range t.shards {
		t.shards[i].locks = make(map[string]*keyLock)
	}
	return t
}

func (t *keyLockTable) shard(key string) *lockShard {
	return &t.shards[xxhash.Sum64String(key)%lockShards]
}

// lock blocks until the key's mutex is held and returns the lock handle.
func (t *keyLockTable) lock(key string) *keyLock {
	s := t.shard(key)

	s.mu.Lock()
	kl, ok := s.locks[key]
	if !ok {
		kl = &keyLock{}
		s.locks[key] = kl
	}
	kl.refs++
	s.mu.Unlock()

	kl.mu.Lock()
	return kl
}

// unlock releases the key's mutex and reaps the entry when unreferenced.
func (t *keyLockTable) unlock(key string, kl *keyLock) {
	kl.mu.Unlock()

	s := t.shard(key)
	s.mu.Lock()
	kl.refs--
	if kl.refs == 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}
