// File: pool/small.go
// Author: momentics <momentics@gmail.com>
//
// Small tier: requests up to 1 MiB served from 64 fixed size classes.
// Allocation tries the calling P's cache, then the class's global
// lock-free stack, then slices a fresh OS chunk. Deallocation parks
// blocks in the local cache and flushes whole lists to the global
// stacks every flushThreshold frees.

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/tieralloc/api"
	"github.com/momentics/tieralloc/internal/logging"
	"github.com/momentics/tieralloc/osmem"
)

const (
	// smallRefillBlocks is how many blocks one refill chunk is sliced
	// into, subject to the 1 MiB chunk floor.
	smallRefillBlocks = 128
	minSmallChunk     = 1 << 20
)

type chunkRecord struct {
	base uintptr
	size uintptr
}

type smallTier struct {
	global         [smallClassCount]taggedStack
	caches         *cacheSet
	flushThreshold uint32

	chunkMu sync.Mutex
	chunks  []chunkRecord

	allocs atomic.Int64
	frees  atomic.Int64

	corruptOnce sync.Once
}

func newSmallTier(shards int, flushThreshold uint32) *smallTier {
	if flushThreshold == 0 {
		flushThreshold = 256
	}
	return &smallTier{
		caches:         newCacheSet(shards),
		flushThreshold: flushThreshold,
	}
}

// allocate returns the payload base of a block whose class payload is
// at least bytes. bytes already includes the routing header.
func (t *smallTier) allocate(bytes uintptr) (uintptr, error) {
	index := classIndex(bytes)

	// 1. Local cache hit.
	c := t.caches.shard()
	c.mu.Lock()
	if node := c.heads[index]; node != 0 {
		c.heads[index] = *nextSlot(node)
		c.mu.Unlock()
		hdr := smallAt(node)
		hdr.inCache.Store(0)
		hdr.free.Store(0)
		hdr.magic = magicSmall
		t.allocs.Add(1)
		return node + smallHeaderSize, nil
	}
	c.mu.Unlock()

	// 2. Global stack hit.
	if node, _ := t.global[index].pop(); node != 0 {
		hdr := smallAt(node)
		hdr.free.Store(0)
		hdr.magic = magicSmall
		t.allocs.Add(1)
		return node + smallHeaderSize, nil
	}

	// 3. Chunk refill.
	return t.refill(index)
}

// refill maps a fresh chunk, keeps the first block for the caller and
// pushes the remaining tail onto the global stack in one swap.
func (t *smallTier) refill(index int) (uintptr, error) {
	// Stride rounds up so every header keeps the native 64-byte
	// alignment the tagged stacks depend on.
	blockBytes := alignUp(smallHeaderSize+classSize(index), headerAlign)
	chunkSize := blockBytes * smallRefillBlocks
	if chunkSize < minSmallChunk {
		chunkSize = minSmallChunk
	}

	t.chunkMu.Lock()
	p, err := osmem.Allocate(chunkSize, headerAlign)
	if err != nil {
		t.chunkMu.Unlock()
		return 0, api.NewError(api.ErrCodeOutOfMemory, "small tier chunk refill failed").
			WithContext("chunk_size", uint64(chunkSize))
	}
	base := uintptr(p)
	t.chunks = append(t.chunks, chunkRecord{base: base, size: chunkSize})
	t.chunkMu.Unlock()

	count := chunkSize / blockBytes
	var first, prev uintptr
	cursor := base
	for i := uintptr(0); i < count; i++ {
		hdr := smallAt(cursor)
		hdr.magic = magicSmall
		hdr.bucket = uint32(index)
		hdr.size = uint64(classSize(index))
		hdr.free.Store(1)
		hdr.inCache.Store(0)
		hdr.next = 0
		if first == 0 {
			first = cursor
		}
		if prev != 0 {
			*nextSlot(prev) = cursor
		}
		prev = cursor
		cursor += blockBytes
	}

	if count > 1 {
		t.global[index].pushSegment(*nextSlot(first), prev)
	}

	hdr := smallAt(first)
	hdr.free.Store(0)
	t.allocs.Add(1)
	return first + smallHeaderSize, nil
}

// deallocate parks a block in the local cache. Reports false when the
// block was already free (double free) or its header is corrupted.
func (t *smallTier) deallocate(node uintptr) bool {
	hdr := smallAt(node)
	if !hdr.free.CompareAndSwap(0, 1) {
		return false // double free
	}
	if hdr.inCache.Load() != 0 {
		return false // same-thread double free while parked
	}
	if hdr.magic != magicSmall {
		t.corruptOnce.Do(func() {
			logging.Default().Warn("small tier: invalid magic during deallocation",
				"addr", node)
		})
		return false
	}
	hdr.magic = 0
	index := int(hdr.bucket)
	if index >= smallClassCount {
		return false
	}

	c := t.caches.shard()
	c.mu.Lock()
	hdr.inCache.Store(1)
	*nextSlot(node) = c.heads[index]
	c.heads[index] = node
	c.frees++
	if c.frees >= t.flushThreshold {
		t.flushLocked(c)
	}
	c.mu.Unlock()

	t.frees.Add(1)
	return true
}

// flushLocked links every cached list onto its global stack. Caller
// holds c.mu.
func (t *smallTier) flushLocked(c *localCache) {
	for i := 0; i < smallClassCount; i++ {
		head := c.heads[i]
		if head == 0 {
			continue
		}
		tail := head
		smallAt(tail).inCache.Store(0)
		for next := *nextSlot(tail); next != 0; next = *nextSlot(tail) {
			tail = next
			smallAt(tail).inCache.Store(0)
		}
		t.global[i].pushSegment(head, tail)
		c.heads[i] = 0
	}
	c.frees = 0
}

// flushAll drains every cache shard into the global stacks.
func (t *smallTier) flushAll() {
	for i := range t.caches.shards {
		c := &t.caches.shards[i]
		c.mu.Lock()
		t.flushLocked(c)
		c.mu.Unlock()
	}
}

// releaseAll returns every chunk to the OS and clears all heads.
func (t *smallTier) releaseAll() {
	t.flushAll()
	for i := range t.global {
		t.global[i].clear()
	}
	t.chunkMu.Lock()
	for _, c := range t.chunks {
		osmem.Deallocate(chunkPointer(c.base), c.size)
	}
	t.chunks = nil
	t.chunkMu.Unlock()
}

func (t *smallTier) stats() api.TierStats {
	t.chunkMu.Lock()
	chunks := len(t.chunks)
	var chunkBytes int64
	for _, c := range t.chunks {
		chunkBytes += int64(c.size)
	}
	t.chunkMu.Unlock()
	allocs, frees := t.allocs.Load(), t.frees.Load()
	return api.TierStats{
		TotalAlloc: allocs,
		TotalFree:  frees,
		InUse:      allocs - frees,
		Chunks:     chunks,
		ChunkBytes: chunkBytes,
	}
}
