// File: pool/system_test.go
// Author: momentics <momentics@gmail.com>

package pool

import (
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/tieralloc/api"
)

func TestSystemRoundTrip(t *testing.T) {
	s := NewSystem()
	defer s.Close()

	ptr, err := s.Allocate(4096, 8)
	require.NoError(t, err)
	buf := unsafe.Slice((*byte)(ptr), 4096)
	buf[0], buf[4095] = 1, 2
	assert.Equal(t, uintptr(4096), s.CurrentUsedBytes())

	require.NoError(t, s.Deallocate(ptr))
	assert.Zero(t, s.CurrentUsedBytes())
}

func TestSystemAlignment(t *testing.T) {
	s := NewSystem()
	defer s.Close()

	for _, alignment := range []uintptr{16, 256, 4096, 64 << 10} {
		ptr, err := s.Allocate(100, alignment)
		require.NoError(t, err, "alignment %d", alignment)
		assert.Zero(t, uintptr(ptr)%alignment, "alignment %d", alignment)
		require.NoError(t, s.Deallocate(ptr))
	}
}

func TestSystemRejectsUnknownPointer(t *testing.T) {
	s := NewSystem()
	defer s.Close()

	buf := make([]byte, 32)
	err := s.Deallocate(unsafe.Pointer(&buf[0]))
	assert.ErrorIs(t, err, api.ErrBadDeallocate)
	assert.NoError(t, s.Deallocate(nil))
}

func TestSystemLeakTracking(t *testing.T) {
	s := NewSystem()
	defer s.Close()
	s.EnableLeakTracking(true)

	ptr, err := s.AllocateTraced(64, 8, api.Site{File: "sys.go", Line: 5})
	require.NoError(t, err)

	var out strings.Builder
	s.ReportLeaks(&out)
	assert.Contains(t, out.String(), "sys.go:5")

	require.NoError(t, s.Deallocate(ptr))
	out.Reset()
	s.ReportLeaks(&out)
	assert.Contains(t, out.String(), "No memory leaks detected")
}
