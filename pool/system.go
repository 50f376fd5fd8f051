// File: pool/system.go
// Author: momentics <momentics@gmail.com>
//
// System is the no-pooling allocator: every request maps straight from
// the OS and every free unmaps. It implements the same interface as
// Pool so callers can swap the two, and it shares the leak-tracker
// collaborator.

package pool

import (
	"io"
	"sync"
	"unsafe"

	"github.com/momentics/tieralloc/api"
	"github.com/momentics/tieralloc/internal/logging"
	"github.com/momentics/tieralloc/osmem"
	"github.com/momentics/tieralloc/tracker"
)

type systemMapping struct {
	base  uintptr
	total uintptr
	size  uintptr
}

// System allocates directly from the OS shim.
type System struct {
	mu       sync.Mutex
	mappings map[uintptr]systemMapping // user address -> mapping
	used     uintptr

	track *tracker.Tracker

	badFreeOnce sync.Once
}

var _ api.Allocator = (*System)(nil)

// NewSystem creates a direct OS allocator.
func NewSystem() *System {
	return &System{
		mappings: make(map[uintptr]systemMapping),
		track:    tracker.New(),
	}
}

// Allocate maps a fresh region of at least size bytes aligned to
// alignment.
func (s *System) Allocate(size, alignment uintptr) (unsafe.Pointer, error) {
	return s.AllocateTraced(size, alignment, api.Unknown)
}

// AllocateTraced is Allocate with a call site for the leak tracker.
func (s *System) AllocateTraced(size, alignment uintptr, site api.Site) (unsafe.Pointer, error) {
	if size == 0 {
		size = 1
	}
	align, _ := normalizeAlignment(alignment)

	// Over-allocate so any alignment up to the 64 KiB ceiling can be
	// carved out of a page-aligned mapping.
	total := size + align - 1
	p, err := osmem.Allocate(total, align)
	if err != nil {
		return nil, api.NewError(api.ErrCodeOutOfMemory, "system mapping failed").
			WithContext("size", uint64(size))
	}
	base := uintptr(p)
	user := alignUp(base, align)

	s.mu.Lock()
	s.mappings[user] = systemMapping{base: base, total: total, size: size}
	s.used += size
	s.mu.Unlock()

	up := unsafe.Pointer(user)
	if s.track.Enabled() {
		s.track.TrackAllocation(up, size, site, p)
	}
	return up, nil
}

// Deallocate unmaps a pointer previously returned by Allocate.
func (s *System) Deallocate(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	user := uintptr(ptr)

	s.mu.Lock()
	m, ok := s.mappings[user]
	if ok {
		delete(s.mappings, user)
		s.used -= m.size
	}
	s.mu.Unlock()
	if !ok {
		s.badFreeOnce.Do(func() {
			logging.Default().Warn("system: deallocation of unknown pointer", "addr", user)
		})
		return api.NewError(api.ErrCodeBadDeallocate, "pointer not mapped by this allocator").
			WithContext("addr", uint64(user))
	}

	s.track.TrackDeallocation(ptr)
	osmem.Deallocate(chunkPointer(m.base), m.total)
	return nil
}

// EnableLeakTracking turns the leak tracker on.
func (s *System) EnableLeakTracking(detailed bool) {
	s.track.Enable(detailed)
}

// ReportLeaks writes the tracker's report to w.
func (s *System) ReportLeaks(w io.Writer) {
	s.track.ReportLeaks(w)
}

// CurrentUsedBytes reports payload bytes currently mapped.
func (s *System) CurrentUsedBytes() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used
}

// Close unmaps every outstanding region and logs an imbalance, if any.
func (s *System) Close() {
	s.mu.Lock()
	leaked := s.used
	count := len(s.mappings)
	for _, m := range s.mappings {
		osmem.Deallocate(chunkPointer(m.base), m.total)
	}
	s.mappings = make(map[uintptr]systemMapping)
	s.used = 0
	s.mu.Unlock()
	if count != 0 {
		logging.Default().Warn("system: teardown imbalance",
			"leaked_bytes", uint64(leaked), "mappings", count)
	}
}
