// File: tracker/tracker.go
// Author: momentics <momentics@gmail.com>
//
// Leak tracker collaborator: maps every live user pointer to its size
// and, in detailed mode, the call site that produced it. The pool calls
// TrackAllocation/TrackDeallocation at its hook points; the map itself
// is an orthogonal utility.

package tracker

import (
	"fmt"
	"io"
	"sync"
	"unsafe"

	"github.com/momentics/tieralloc/api"
)

// Record is one live allocation.
type Record struct {
	Size uintptr
	Site api.Site
	User uintptr
	Raw  uintptr
}

// Tracker is a thread-safe allocation map.
//
// Disabling stops admitting new allocations but deallocations of
// already-tracked pointers are still honoured, so a disable/enable
// cycle cannot fabricate leaks.
type Tracker struct {
	mu       sync.Mutex
	enabled  bool
	detailed bool
	records  map[uintptr]Record
}

// New creates a disabled tracker.
func New() *Tracker {
	return &Tracker{records: make(map[uintptr]Record)}
}

// Enable turns tracking on; detailed records call sites as well.
func (t *Tracker) Enable(detailed bool) {
	t.mu.Lock()
	t.enabled = true
	t.detailed = detailed
	t.mu.Unlock()
}

// Disable stops admitting new allocations into the map.
func (t *Tracker) Disable() {
	t.mu.Lock()
	t.enabled = false
	t.mu.Unlock()
}

// Enabled reports whether new allocations are being recorded.
func (t *Tracker) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

// TrackAllocation records a successful allocation. raw may be nil when
// the user pointer is the block base.
func (t *Tracker) TrackAllocation(user unsafe.Pointer, size uintptr, site api.Site, raw unsafe.Pointer) {
	if user == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.enabled {
		return
	}
	r := Record{Size: size, User: uintptr(user), Raw: uintptr(user)}
	if raw != nil {
		r.Raw = uintptr(raw)
	}
	if t.detailed {
		r.Site = site
	}
	t.records[uintptr(user)] = r
}

// TrackDeallocation removes a pointer from the map.
func (t *Tracker) TrackDeallocation(user unsafe.Pointer) {
	if user == nil {
		return
	}
	t.mu.Lock()
	delete(t.records, uintptr(user))
	t.mu.Unlock()
}

// FindRaw returns the raw base recorded for a user pointer, or nil.
func (t *Tracker) FindRaw(user unsafe.Pointer) unsafe.Pointer {
	if user == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.records[uintptr(user)]; ok {
		return unsafe.Pointer(r.Raw)
	}
	return nil
}

// CurrentBytes sums the sizes of all live tracked allocations.
func (t *Tracker) CurrentBytes() uintptr {
	t.mu.Lock()
	defer t.mu.Unlock()
	var total uintptr
	for _, r := range t.records {
		total += r.Size
	}
	return total
}

// Len returns the number of live tracked allocations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// ReportLeaks writes the outstanding-allocation report to w.
func (t *Tracker) ReportLeaks(w io.Writer) {
	t.mu.Lock()
	leaks := make([]Record, 0, len(t.records))
	for _, r := range t.records {
		leaks = append(leaks, r)
	}
	detailed := t.detailed
	t.mu.Unlock()

	if len(leaks) == 0 {
		fmt.Fprintln(w, "No memory leaks detected.")
		return
	}
	fmt.Fprintf(w, "\n=== Memory Leak Report ===\nTotal leaks: %d\n\n", len(leaks))
	for _, r := range leaks {
		fmt.Fprintf(w, "Leaked %d bytes at %#x", r.Size, r.User)
		if detailed && r.Site.File != "" {
			fmt.Fprintf(w, " (allocated at %s:%d)", r.Site.File, r.Site.Line)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "=== End of Report ===")
}
