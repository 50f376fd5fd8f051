// File: osmem/osmem.go
// Author: momentics <momentics@gmail.com>
//
// Process-wide virtual memory shim. Every mapping the allocator makes
// goes through Allocate/Deallocate here so the two process-wide
// counters stay exact: UsedBytes is the raw bytes currently mapped,
// NetOps is mappings minus unmappings.

package osmem

import (
	"os"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/tieralloc/internal/logging"
)

var (
	usedBytes atomic.Uint64
	netOps    atomic.Int64

	pageSize = uintptr(os.Getpagesize())
)

// PageSize returns the OS page size.
func PageSize() uintptr { return pageSize }

// UsedBytes reports the bytes currently mapped through this shim.
func UsedBytes() uint64 { return usedBytes.Load() }

// NetOps reports mappings minus unmappings since process start.
func NetOps() int64 { return netOps.Load() }

// Allocate maps size bytes of anonymous read-write memory. The result is
// page aligned; alignments above one page request large pages where the
// platform offers them. Returns nil and an error when the OS refuses.
func Allocate(size, alignment uintptr) (unsafe.Pointer, error) {
	if size == 0 {
		return nil, nil
	}
	p, err := osAllocate(size, alignment)
	if err != nil {
		logging.Default().Warn("osmem: mapping failed",
			"size", size, "alignment", alignment, "error", err)
		return nil, err
	}
	usedBytes.Add(uint64(size))
	netOps.Add(1)
	return p, nil
}

// Deallocate returns a mapping obtained from Allocate to the OS.
func Deallocate(p unsafe.Pointer, size uintptr) bool {
	if p == nil || size == 0 {
		return false
	}
	if err := osDeallocate(p, size); err != nil {
		logging.Default().Warn("osmem: unmapping failed",
			"addr", uintptr(p), "size", size, "error", err)
		return false
	}
	usedBytes.Add(^uint64(size - 1))
	netOps.Add(-1)
	return true
}
