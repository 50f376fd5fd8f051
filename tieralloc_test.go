// File: tieralloc_test.go
// Author: momentics <momentics@gmail.com>

package tieralloc

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/tieralloc/pool"
)

func TestDefaultAllocatorRoundTrip(t *testing.T) {
	ptr, err := Allocate(512)
	require.NoError(t, err)
	buf := unsafe.Slice((*byte)(ptr), 512)
	buf[0], buf[511] = 'a', 'z'
	require.NoError(t, Deallocate(ptr))
	assert.Zero(t, CurrentUsedBytes())
}

func TestAllocateAligned(t *testing.T) {
	ptr, err := AllocateAligned(256, 128)
	require.NoError(t, err)
	assert.Zero(t, uintptr(ptr)%128)
	require.NoError(t, Deallocate(ptr))
}

func TestTracedAllocationCapturesCaller(t *testing.T) {
	EnableLeakTracking(true)
	ptr, err := AllocateTraced(64, 8)
	require.NoError(t, err)

	var out strings.Builder
	ReportLeaks(&out)
	assert.Contains(t, out.String(), "tieralloc_test.go")

	require.NoError(t, Deallocate(ptr))
}

func TestSetDefaultSwapsAllocator(t *testing.T) {
	original := Default()
	defer SetDefault(original)

	s := pool.NewSystem()
	defer s.Close()
	SetDefault(s)
	assert.Same(t, s, Default())

	SetDefault(nil)
	assert.Same(t, s, Default(), "nil must be ignored")
}
