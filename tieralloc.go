// File: tieralloc.go
// Author: momentics <momentics@gmail.com>
//
// Package tieralloc exposes the process-wide default allocator: a
// lazily constructed Pool that can be swapped for any other
// api.Allocator (for instance pool.NewSystem) before first use.
// The Traced helpers capture the caller's file and line at the top
// level, where the information still exists, and thread it through to
// the leak tracker.
package tieralloc

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/tieralloc/api"
	"github.com/momentics/tieralloc/pool"
)

type allocatorBox struct {
	a api.Allocator
}

var (
	defaultMu sync.Mutex
	current   atomic.Value // allocatorBox
)

// Default returns the process-wide allocator, constructing the default
// Pool on first use.
func Default() api.Allocator {
	if box, ok := current.Load().(allocatorBox); ok {
		return box.a
	}
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if box, ok := current.Load().(allocatorBox); ok {
		return box.a
	}
	p := pool.New()
	current.Store(allocatorBox{a: p})
	return p
}

// SetDefault replaces the process-wide allocator. A nil allocator is
// ignored.
func SetDefault(a api.Allocator) {
	if a == nil {
		return
	}
	defaultMu.Lock()
	current.Store(allocatorBox{a: a})
	defaultMu.Unlock()
}

// Allocate returns size bytes at the default alignment.
func Allocate(size uintptr) (unsafe.Pointer, error) {
	return Default().Allocate(size, api.DefaultAlignment)
}

// AllocateAligned returns size bytes aligned to alignment.
func AllocateAligned(size, alignment uintptr) (unsafe.Pointer, error) {
	return Default().Allocate(size, alignment)
}

// AllocateTraced is AllocateAligned with the caller recorded for leak
// reports.
func AllocateTraced(size, alignment uintptr) (unsafe.Pointer, error) {
	site := api.Unknown
	if _, file, line, ok := runtime.Caller(1); ok {
		site = api.Site{File: file, Line: line}
	}
	return Default().AllocateTraced(size, alignment, site)
}

// Deallocate releases a pointer obtained from this package.
func Deallocate(p unsafe.Pointer) error {
	return Default().Deallocate(p)
}

// EnableLeakTracking turns leak tracking on for the default allocator.
func EnableLeakTracking(detailed bool) {
	Default().EnableLeakTracking(detailed)
}

// ReportLeaks writes the default allocator's leak report to w.
func ReportLeaks(w io.Writer) {
	Default().ReportLeaks(w)
}

// CurrentUsedBytes reports outstanding bytes on the default allocator.
func CurrentUsedBytes() uintptr {
	return Default().CurrentUsedBytes()
}
