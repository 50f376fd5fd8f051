// File: pool/large.go
// Author: momentics <momentics@gmail.com>
//
// Large and huge tiers: one OS mapping per allocation, header
// prefixed, tracked in a mutex-protected registry. The two tiers share
// the implementation; only the magic word and diagnostics differ, so
// routing and reports can tell a >= 1 GiB request apart.

package pool

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/tieralloc/api"
	"github.com/momentics/tieralloc/internal/logging"
	"github.com/momentics/tieralloc/osmem"
)

type directTier struct {
	name  string
	magic uint32

	mu     sync.Mutex
	active map[uintptr]uintptr // header address -> total mapping size

	allocs atomic.Int64
	frees  atomic.Int64

	corruptOnce sync.Once
}

func newDirectTier(name string, magic uint32) *directTier {
	return &directTier{
		name:   name,
		magic:  magic,
		active: make(map[uintptr]uintptr),
	}
}

// allocate maps header+payload bytes and returns the payload base.
func (t *directTier) allocate(payload uintptr) (uintptr, error) {
	total := largeHeaderSize + payload
	p, err := osmem.Allocate(total, headerAlign)
	if err != nil {
		return 0, api.NewError(api.ErrCodeOutOfMemory, t.name+" tier mapping failed").
			WithContext("total", uint64(total))
	}
	base := uintptr(p)
	hdr := directAt(base)
	hdr.magic = t.magic
	hdr.size = uint64(payload)

	t.mu.Lock()
	t.active[base] = total
	t.mu.Unlock()

	t.allocs.Add(1)
	return base + largeHeaderSize, nil
}

// deallocate verifies the header, removes it from the registry and
// returns the mapping to the OS.
func (t *directTier) deallocate(block uintptr) bool {
	hdr := directAt(block)
	if hdr.magic != t.magic {
		t.corruptOnce.Do(func() {
			logging.Default().Warn(t.name+" tier: invalid magic during deallocation",
				"addr", block)
		})
		return false
	}
	hdr.magic = 0

	t.mu.Lock()
	total, ok := t.active[block]
	if ok {
		delete(t.active, block)
	}
	t.mu.Unlock()
	if !ok {
		// Registry miss: already released concurrently.
		return false
	}

	osmem.Deallocate(chunkPointer(block), total)
	t.frees.Add(1)
	return true
}

// releaseAll unmaps every still-active block.
func (t *directTier) releaseAll() {
	t.mu.Lock()
	for base, total := range t.active {
		osmem.Deallocate(chunkPointer(base), total)
	}
	t.active = make(map[uintptr]uintptr)
	t.mu.Unlock()
}

func (t *directTier) stats() api.TierStats {
	t.mu.Lock()
	chunks := len(t.active)
	var chunkBytes int64
	for _, total := range t.active {
		chunkBytes += int64(total)
	}
	t.mu.Unlock()
	allocs, frees := t.allocs.Load(), t.frees.Load()
	return api.TierStats{
		TotalAlloc: allocs,
		TotalFree:  frees,
		InUse:      allocs - frees,
		Chunks:     chunks,
		ChunkBytes: chunkBytes,
	}
}
