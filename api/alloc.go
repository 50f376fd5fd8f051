// File: api/alloc.go
// Author: momentics <momentics@gmail.com>
//
// Defines the public allocator contract shared by the tiered pool and
// the direct OS allocator.

package api

import (
	"io"
	"unsafe"
)

// DefaultAlignment is the pointer alignment every fast-path allocation
// satisfies. Requests above it take the envelope path.
const DefaultAlignment = uintptr(8)

// MaxAlignment is the largest user alignment honoured (64 KiB).
// Larger values are clamped back to DefaultAlignment.
const MaxAlignment = uintptr(64 << 10)

// Site records the call site of an allocation for leak reports.
type Site struct {
	File string
	Line int
}

// Unknown is the site used when no call-site information is available.
var Unknown = Site{}

// Allocator is the minimum surface of a drop-in malloc/free replacement.
// All methods are safe for concurrent use from any goroutine.
type Allocator interface {
	// Allocate returns a block of at least size bytes whose address is a
	// multiple of alignment. A nil pointer is only returned together with
	// a non-nil error.
	Allocate(size, alignment uintptr) (unsafe.Pointer, error)

	// AllocateTraced is Allocate with an explicit call site threaded
	// through to the leak tracker.
	AllocateTraced(size, alignment uintptr, site Site) (unsafe.Pointer, error)

	// Deallocate releases a pointer previously returned by Allocate.
	// A nil pointer is a no-op.
	Deallocate(p unsafe.Pointer) error

	// EnableLeakTracking turns the leak tracker on. When detailed is true
	// call sites are recorded alongside sizes.
	EnableLeakTracking(detailed bool)

	// ReportLeaks writes the tracker's outstanding-allocation report to w.
	ReportLeaks(w io.Writer)

	// CurrentUsedBytes reports the bytes of allocations currently handed
	// out and not yet returned. The Pool counts each block's headers
	// along with its payload; System counts payload bytes only.
	CurrentUsedBytes() uintptr
}
