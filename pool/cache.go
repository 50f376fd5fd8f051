// File: pool/cache.go
// Author: momentics <momentics@gmail.com>
//
// Per-P local caches for the small tier. Each shard holds one
// singly-linked stack per size class plus a deallocation counter;
// shards are cache-line padded and picked by processor hint, so the
// shard lock is effectively uncontended. Flushing links whole lists
// onto the global stacks in one swap per class.

package pool

import (
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

// localCache is one shard of the small tier's free-block cache.
type localCache struct {
	mu    sync.Mutex
	heads [smallClassCount]uintptr
	frees uint32 // deallocations since the last flush
	_     cpu.CacheLinePad
}

type cacheSet struct {
	shards []localCache
}

func newCacheSet(shards int) *cacheSet {
	if shards <= 0 {
		shards = runtime.GOMAXPROCS(0)
	}
	return &cacheSet{shards: make([]localCache, shards)}
}

// shard returns the cache shard for the calling goroutine's P.
func (cs *cacheSet) shard() *localCache {
	return &cs.shards[procHint()%len(cs.shards)]
}
