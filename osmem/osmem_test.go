// File: osmem/osmem_test.go
// Author: momentics <momentics@gmail.com>

package osmem

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateDeallocateBalancesCounters(t *testing.T) {
	startBytes := UsedBytes()
	startOps := NetOps()

	size := 4 * PageSize()
	p, err := Allocate(size, 8)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Zero(t, uintptr(p)%PageSize(), "mapping must be page aligned")
	assert.Equal(t, startBytes+uint64(size), UsedBytes())
	assert.Equal(t, startOps+1, NetOps())

	// The whole range is writable.
	buf := unsafe.Slice((*byte)(p), size)
	buf[0] = 0xAA
	buf[size-1] = 0x55

	require.True(t, Deallocate(p, size))
	assert.Equal(t, startBytes, UsedBytes())
	assert.Equal(t, startOps, NetOps())
}

func TestZeroSizeAllocate(t *testing.T) {
	p, err := Allocate(0, 8)
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.False(t, Deallocate(nil, 0))
}

func TestOversizedAlignmentStillMaps(t *testing.T) {
	// Alignments above one page request large pages; on hosts without
	// them the shim must fall back to regular pages.
	size := 2 * PageSize()
	p, err := Allocate(size, 64<<10)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.True(t, Deallocate(p, size))
}
