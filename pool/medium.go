// File: pool/medium.go
// Author: momentics <momentics@gmail.com>
//
// Medium tier: buddy system of 10 power-of-two orders, 1 MiB through
// 512 MiB. Per-order free-lists are lock-free tagged stacks; a 16-bit
// advisory bitmask tracks non-empty orders. Frees are not coalesced
// inline: a merge request goes through an MPSC ring to a spawn-latched
// worker goroutine that performs buddy merges, falling back to inline
// merging when the ring is full.

package pool

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/tieralloc/api"
	"github.com/momentics/tieralloc/internal/concurrency"
	"github.com/momentics/tieralloc/internal/logging"
	"github.com/momentics/tieralloc/osmem"
)

const (
	// mediumMinSpan is the order-0 block span.
	mediumMinSpan = uintptr(1) << 20
	orderCount    = 10
	// mediumMaxSpan is the order-9 block span (512 MiB).
	mediumMaxSpan = mediumMinSpan << (orderCount - 1)

	defaultMergeQueueSize = 128
)

type mergeRequest struct {
	block uintptr
	order int
}

type mediumTier struct {
	lists [orderCount]taggedStack
	// mask is advisory: a set bit means the order's list has been
	// non-empty since the last clear; allocation tolerates stale bits.
	mask atomic.Uint32

	merge        *concurrency.MPSCRing[mergeRequest]
	workerActive atomic.Bool
	draining     atomic.Bool

	chunkMu sync.RWMutex
	chunks  []chunkRecord

	allocs atomic.Int64
	frees  atomic.Int64

	corruptOnce sync.Once
}

func newMediumTier(mergeQueueSize uint64) *mediumTier {
	if mergeQueueSize == 0 {
		mergeQueueSize = defaultMergeQueueSize
	}
	return &mediumTier{
		merge: concurrency.NewMPSCRing[mergeRequest](mergeQueueSize),
	}
}

// spanOfOrder returns the full block span of an order.
func spanOfOrder(order int) uintptr {
	return mediumMinSpan << order
}

// orderForTotal returns the smallest order whose span holds total
// bytes, or -1 when total exceeds the order-9 span.
func orderForTotal(total uintptr) int {
	for order := 0; order < orderCount; order++ {
		if spanOfOrder(order) >= total {
			return order
		}
	}
	return -1
}

// orderOfSpan is the inverse of spanOfOrder for exact spans.
func orderOfSpan(span uintptr) int {
	order := 0
	for fit := mediumMinSpan; fit < span && order < orderCount-1; fit <<= 1 {
		order++
	}
	return order
}

// allocate returns the payload base of a block spanning at least total
// bytes (total includes this tier's header and the routing header).
func (t *mediumTier) allocate(total uintptr) (uintptr, error) {
	target := orderForTotal(total)
	if target < 0 {
		return 0, api.NewError(api.ErrCodeInternal, "medium tier request exceeds top order").
			WithContext("total", uint64(total))
	}

	for {
		// 1. Same or higher order, splitting down as needed. Stale mask
		// bits are harmless: pop just fails and the scan moves on.
		for order := target; order < orderCount; order++ {
			block, drained := t.lists[order].pop()
			if block == 0 {
				continue
			}
			if drained {
				t.mask.And(^(uint32(1) << order))
			}
			if order > target {
				block = t.splitToOrder(block, order, target)
			}
			hdr := mediumAt(block)
			hdr.free.Store(0)
			hdr.magic = magicMedium
			hdr.size = uint64(spanOfOrder(target))
			hdr.next = 0
			t.allocs.Add(1)
			return block + mediumHeaderSize, nil
		}

		// 2. Fresh chunk of exactly the target span.
		block, err := t.requestChunk(target)
		if err != nil {
			return 0, err
		}

		// Serve the fresh block directly unless other free blocks
		// appeared meanwhile; re-queueing and rescanning keeps
		// allocation fair while the system refills under contention.
		if t.mask.Load()>>uint(target) == 0 {
			hdr := mediumAt(block)
			hdr.free.Store(0)
			hdr.magic = magicMedium
			hdr.size = uint64(spanOfOrder(target))
			hdr.next = 0
			t.allocs.Add(1)
			return block + mediumHeaderSize, nil
		}
		t.push(block, target)
	}
}

// requestChunk maps a chunk of one target-order block.
func (t *mediumTier) requestChunk(order int) (uintptr, error) {
	span := spanOfOrder(order)
	t.chunkMu.Lock()
	p, err := osmem.Allocate(span, headerAlign)
	if err != nil {
		t.chunkMu.Unlock()
		return 0, api.NewError(api.ErrCodeOutOfMemory, "medium tier chunk request failed").
			WithContext("span", uint64(span))
	}
	base := uintptr(p)
	t.chunks = append(t.chunks, chunkRecord{base: base, size: span})
	t.chunkMu.Unlock()

	hdr := mediumAt(base)
	hdr.magic = magicMedium
	hdr.size = uint64(span)
	hdr.free.Store(1)
	hdr.next = 0
	return base, nil
}

// splitToOrder halves block until it reaches order to, pushing every
// right half onto its order's free-list.
func (t *mediumTier) splitToOrder(block uintptr, from, to int) uintptr {
	for order := from - 1; order >= to; order-- {
		half := spanOfOrder(order)
		right := block + half

		rightHdr := mediumAt(right)
		rightHdr.magic = magicMedium
		rightHdr.size = uint64(half)
		rightHdr.free.Store(1)
		rightHdr.next = 0
		t.push(right, order)

		mediumAt(block).size = uint64(half)
	}
	return block
}

// push parks a block on its order's free-list and publishes the order
// bit.
func (t *mediumTier) push(block uintptr, order int) {
	hdr := mediumAt(block)
	hdr.size = uint64(spanOfOrder(order))
	hdr.free.Store(1)
	t.lists[order].push(block)
	t.mask.Or(uint32(1) << order)
}

// deallocate validates the block and hands it to the coalescer.
// Reports false on double free or corrupted header.
func (t *mediumTier) deallocate(block uintptr) bool {
	hdr := mediumAt(block)
	if !hdr.free.CompareAndSwap(0, 1) {
		return false // double free
	}
	if hdr.magic != magicMedium {
		t.corruptOnce.Do(func() {
			logging.Default().Warn("medium tier: invalid magic during deallocation",
				"addr", block)
		})
		return false
	}
	order := orderOfSpan(uintptr(hdr.size))
	t.frees.Add(1)

	if t.draining.Load() {
		// Teardown in progress: lists are being cleared, park the block
		// without waking the worker.
		t.push(block, order)
		return true
	}

	if !t.merge.Enqueue(mergeRequest{block: block, order: order}) {
		// Ring full: the worker is behind, merge inline.
		t.tryMergeBuddy(block, order)
		return true
	}
	t.ensureWorker()
	return true
}

// ensureWorker spawns the single coalescer goroutine when none is
// active.
func (t *mediumTier) ensureWorker() {
	if !t.workerActive.Load() && t.workerActive.CompareAndSwap(false, true) {
		go t.mergeWorker()
	}
}

// mergeWorker drains the ring into a local backlog and merges one
// request at a time. It exits only after observing the ring empty,
// releasing the latch, and re-checking the ring empty.
func (t *mediumTier) mergeWorker() {
	backlog := queue.New()
	for {
		for {
			req, ok := t.merge.Dequeue()
			if !ok {
				break
			}
			backlog.Add(req)
		}

		if t.draining.Load() {
			t.workerActive.Store(false)
			return
		}

		if backlog.Length() == 0 {
			t.workerActive.Store(false)
			if t.merge.Len() == 0 {
				return
			}
			// Requests raced the latch release; try to reclaim it.
			if !t.workerActive.CompareAndSwap(false, true) {
				return // a deallocator spawned a fresh worker
			}
			continue
		}

		req := backlog.Remove().(mergeRequest)
		t.tryMergeBuddy(req.block, req.order)
	}
}

// tryMergeBuddy repeatedly merges block with its free buddy of the
// same order. A buddy is only claimed when it sits at the head of its
// free-list; deeper removal would race concurrent traversals, so the
// merge gives up instead (false negatives are fine, false merges are
// not).
func (t *mediumTier) tryMergeBuddy(block uintptr, order int) {
	chunkBase, chunkSize := t.owningChunk(block)
	if chunkBase == 0 {
		return
	}

	for order < orderCount-1 {
		span := spanOfOrder(order)
		offset := block - chunkBase
		buddyOffset := offset ^ span
		if buddyOffset+span > chunkSize {
			break
		}
		buddy := chunkBase + buddyOffset
		buddyHdr := mediumAt(buddy)
		if buddyHdr.free.Load() != 1 || uintptr(buddyHdr.size) != span {
			break
		}
		if !t.lists[order].popSpecific(buddy) {
			break
		}
		// The buddy may have been allocated between the check and the
		// removal only via this list, so a recheck after removal is
		// sufficient.
		if buddyHdr.free.Load() != 1 || uintptr(buddyHdr.size) != span {
			t.push(buddy, order)
			break
		}
		if buddyOffset < offset {
			block = buddy
		}
		hdr := mediumAt(block)
		hdr.magic = magicMedium
		hdr.size = uint64(span << 1)
		order++
	}

	t.push(block, order)
}

// owningChunk finds the chunk containing addr. Chunks are few, so a
// linear scan under the read lock suffices.
func (t *mediumTier) owningChunk(addr uintptr) (base, size uintptr) {
	t.chunkMu.RLock()
	defer t.chunkMu.RUnlock()
	for _, c := range t.chunks {
		if addr >= c.base && addr < c.base+c.size {
			return c.base, c.size
		}
	}
	return 0, 0
}

// quiesce waits for the coalescer to drain and exit.
func (t *mediumTier) quiesce() {
	for t.workerActive.Load() {
		runtime.Gosched()
	}
}

// releaseAll stops the coalescer, clears every free-list and returns
// all chunks to the OS.
func (t *mediumTier) releaseAll() {
	t.draining.Store(true)
	t.quiesce()
	for i := range t.lists {
		t.lists[i].clear()
	}
	t.mask.Store(0)
	t.chunkMu.Lock()
	for _, c := range t.chunks {
		osmem.Deallocate(chunkPointer(c.base), c.size)
	}
	t.chunks = nil
	t.chunkMu.Unlock()
}

func (t *mediumTier) stats() api.TierStats {
	t.chunkMu.RLock()
	chunks := len(t.chunks)
	var chunkBytes int64
	for _, c := range t.chunks {
		chunkBytes += int64(c.size)
	}
	t.chunkMu.RUnlock()
	allocs, frees := t.allocs.Load(), t.frees.Load()
	return api.TierStats{
		TotalAlloc: allocs,
		TotalFree:  frees,
		InUse:      allocs - frees,
		Chunks:     chunks,
		ChunkBytes: chunkBytes,
	}
}
