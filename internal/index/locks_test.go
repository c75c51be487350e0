package index

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyLockMutualExclusion(t *testing.T) {
	table := newKeyLockTable()
	key := string(testAddress(0x01))

	// An unprotected counter stays exact only if the lock serializes.
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				kl := table.lock(key)
				counter++
				table.unlock(key, kl)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 8000, counter)
}

func TestKeyLockEntriesAreReaped(t *testing.T) {
	table := newKeyLockTable()
	key := string(testAddress(0x02))

	kl := table.lock(key)
	table.unlock(key, kl)

	for i := range table.shards {
		assert.Empty(t, table.shards[i].locks)
	}
}

func TestKeyLockDistinctKeysDoNotBlock(t *testing.T) {
	table := newKeyLockTable()
	k1 := string(testAddress(0x03))
	k2 := string(testAddress(0x04))

	kl1 := table.lock(k1)

	done := make(chan struct{})
	go func() {
		kl2 := table.lock(k2)
		table.unlock(k2, kl2)
		close(done)
	}()

	// k2 must proceed while k1 is held.
	<-done
	table.unlock(k1, kl1)
}
