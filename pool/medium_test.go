// File: pool/medium_test.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderMath(t *testing.T) {
	assert.Equal(t, uintptr(1)<<20, spanOfOrder(0))
	assert.Equal(t, uintptr(512)<<20, spanOfOrder(orderCount-1))

	assert.Equal(t, 0, orderForTotal(1))
	assert.Equal(t, 0, orderForTotal(mediumMinSpan))
	assert.Equal(t, 1, orderForTotal(mediumMinSpan+1))
	assert.Equal(t, orderCount-1, orderForTotal(mediumMaxSpan))
	assert.Equal(t, -1, orderForTotal(mediumMaxSpan+1))

	for order := 0; order < orderCount; order++ {
		assert.Equal(t, order, orderOfSpan(spanOfOrder(order)))
	}
}

// quiesceMerges waits for the coalescer to drain, bounded so a wedged
// worker fails the test instead of hanging it.
func quiesceMerges(t *testing.T, tier *mediumTier) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for tier.workerActive.Load() || tier.merge.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("coalescer did not quiesce")
		}
		runtime.Gosched()
	}
}

func TestMediumAllocateServesFreshChunk(t *testing.T) {
	tier := newMediumTier(0)
	defer tier.releaseAll()

	payload, err := tier.allocate(mediumMinSpan + 1)
	require.NoError(t, err)
	header := payload - mediumHeaderSize

	hdr := mediumAt(header)
	assert.Equal(t, magicMedium, hdr.magic)
	assert.Equal(t, uint64(spanOfOrder(1)), hdr.size)
	assert.Equal(t, uint32(0), hdr.free.Load())
	assert.Equal(t, 1, tier.stats().Chunks)
}

func TestMediumSplitPushesRightHalves(t *testing.T) {
	tier := newMediumTier(0)
	defer tier.releaseAll()

	// Order-2 block freed, then an order-0-sized request forces two
	// splits: right halves land on orders 1 and 0.
	payload, err := tier.allocate(spanOfOrder(2) - mediumHeaderSize)
	require.NoError(t, err)
	header := payload - mediumHeaderSize
	require.True(t, tier.deallocate(header))
	quiesceMerges(t, tier)

	small, err := tier.allocate(1)
	require.NoError(t, err)
	assert.Equal(t, header, small-mediumHeaderSize, "left half serves the request")
	assert.Equal(t, uint64(spanOfOrder(0)), mediumAt(small-mediumHeaderSize).size)

	assert.False(t, tier.lists[0].empty(), "right buddy of the last split")
	assert.False(t, tier.lists[1].empty(), "right buddy of the first split")
	assert.Equal(t, 1, tier.stats().Chunks, "splits must not map new chunks")
}

func TestMediumBuddyMergeObservable(t *testing.T) {
	tier := newMediumTier(0)
	defer tier.releaseAll()

	// One order-2 chunk split into two order-1 buddies.
	first, err := tier.allocate(spanOfOrder(2) - mediumHeaderSize)
	require.NoError(t, err)
	firstHeader := first - mediumHeaderSize
	require.True(t, tier.deallocate(firstHeader))
	quiesceMerges(t, tier)

	left, err := tier.allocate(spanOfOrder(1) - mediumHeaderSize)
	require.NoError(t, err)
	right, err := tier.allocate(spanOfOrder(1) - mediumHeaderSize)
	require.NoError(t, err)
	require.Equal(t, spanOfOrder(1), right-left, "the two blocks must be buddies")
	require.Equal(t, 1, tier.stats().Chunks)

	// Free both; the coalescer must produce one order-2 block again.
	require.True(t, tier.deallocate(left-mediumHeaderSize))
	require.True(t, tier.deallocate(right-mediumHeaderSize))
	quiesceMerges(t, tier)

	deadline := time.Now().Add(5 * time.Second)
	for tier.lists[2].empty() {
		if time.Now().After(deadline) {
			t.Fatal("buddies were not merged back to order 2")
		}
		runtime.Gosched()
	}

	// The merged block satisfies an order-2 request without growing
	// the chunk list.
	again, err := tier.allocate(spanOfOrder(2) - mediumHeaderSize)
	require.NoError(t, err)
	assert.Equal(t, firstHeader, again-mediumHeaderSize)
	assert.Equal(t, 1, tier.stats().Chunks)
}

func TestMediumDoubleFreeIsNoop(t *testing.T) {
	tier := newMediumTier(0)
	defer tier.releaseAll()

	payload, err := tier.allocate(mediumMinSpan * 2)
	require.NoError(t, err)
	header := payload - mediumHeaderSize

	require.True(t, tier.deallocate(header))
	assert.False(t, tier.deallocate(header))
	quiesceMerges(t, tier)
	assert.Equal(t, int64(1), tier.frees.Load())
}

func TestMediumFreeListInvariant(t *testing.T) {
	tier := newMediumTier(0)
	defer tier.releaseAll()

	payload, err := tier.allocate(mediumMinSpan + 1)
	require.NoError(t, err)
	header := payload - mediumHeaderSize
	require.True(t, tier.deallocate(header))
	quiesceMerges(t, tier)

	// Every block reachable from order-k's list spans exactly
	// 1 MiB << k and is marked free.
	for order := 0; order < orderCount; order++ {
		for node := tier.lists[order].headNode(); node != 0; node = *nextSlot(node) {
			hdr := mediumAt(node)
			assert.Equal(t, uint64(spanOfOrder(order)), hdr.size, "order %d", order)
			assert.Equal(t, uint32(1), hdr.free.Load(), "order %d", order)
		}
	}
}
