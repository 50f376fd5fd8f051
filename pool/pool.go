// File: pool/pool.go
// Author: momentics <momentics@gmail.com>
//
// Pool is the top-level dispatcher over the four tier managers.
// Allocation classifies by size and alignment, embeds a routing header
// in the returned block and hands out the address just past it;
// deallocation reads the word in front of the pointer — envelope
// sentinel first, then the owner tag — and routes to the owning tier.

package pool

import (
	"io"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/momentics/tieralloc/api"
	"github.com/momentics/tieralloc/internal/logging"
	"github.com/momentics/tieralloc/osmem"
	"github.com/momentics/tieralloc/tracker"
)

// Tier size ceilings, applied to size + routing header.
const (
	smallCeiling = maxSmallSize
	largeCeiling = uintptr(1) << 30
)

// Options tune a Pool at construction. The zero value selects the
// defaults.
type Options struct {
	// CacheShards is the number of per-P small-block caches.
	// Defaults to GOMAXPROCS.
	CacheShards int
	// FlushThreshold is the deallocation count at which a local cache
	// flushes to the global stacks. Defaults to 256.
	FlushThreshold uint32
	// MergeQueueSize is the coalescer ring capacity (power of two).
	// Defaults to 128.
	MergeQueueSize uint64
	// StrictAlignment rejects illegal alignments instead of silently
	// clamping them to the default.
	StrictAlignment bool
}

// Pool is a four-tier allocator over OS virtual memory. All methods
// are safe for concurrent use.
type Pool struct {
	small  *smallTier
	medium *mediumTier
	large  *directTier
	huge   *directTier

	track *tracker.Tracker

	usedBytes atomic.Uint64
	netOps    atomic.Int64

	closed          atomic.Bool
	strictAlignment bool

	badFreeOnce sync.Once
	closeOnce   sync.Once
}

var _ api.Allocator = (*Pool)(nil)

var constructionNote sync.Once

// New creates a Pool with default options.
func New() *Pool {
	return NewWithOptions(Options{})
}

// NewWithOptions creates a Pool tuned by opts.
func NewWithOptions(opts Options) *Pool {
	constructionNote.Do(func() {
		logging.Default().Debug("pool: prefer a process-wide allocator over ad-hoc Pool instances so tracking stays consistent")
	})
	return &Pool{
		small:           newSmallTier(opts.CacheShards, opts.FlushThreshold),
		medium:          newMediumTier(opts.MergeQueueSize),
		large:           newDirectTier("large", magicLarge),
		huge:            newDirectTier("huge", magicHuge),
		track:           tracker.New(),
		strictAlignment: opts.StrictAlignment,
	}
}

// normalizeAlignment clamps illegal alignments to the default. ok is
// false when the input had to be clamped.
func normalizeAlignment(alignment uintptr) (uintptr, bool) {
	if alignment == 0 || alignment&(alignment-1) != 0 || alignment > api.MaxAlignment {
		return api.DefaultAlignment, false
	}
	return alignment, true
}

// Allocate returns a block of at least size bytes aligned to
// alignment.
func (p *Pool) Allocate(size, alignment uintptr) (unsafe.Pointer, error) {
	return p.AllocateTraced(size, alignment, api.Unknown)
}

// AllocateTraced is Allocate with a call site for the leak tracker.
func (p *Pool) AllocateTraced(size, alignment uintptr, site api.Site) (unsafe.Pointer, error) {
	if p.closed.Load() {
		return nil, api.NewError(api.ErrCodePoolClosed, "allocate on closed pool")
	}
	if size == 0 {
		size = 1 // malloc(0) semantics: a distinct, freeable pointer
	}
	align, legal := normalizeAlignment(alignment)
	if !legal && p.strictAlignment {
		return nil, api.NewError(api.ErrCodeInvalidAlignment, "illegal alignment").
			WithContext("alignment", uint64(alignment))
	}

	if align > api.DefaultAlignment {
		user, total, err := allocateEnveloped(size, align)
		if err != nil {
			return nil, err
		}
		p.usedBytes.Add(uint64(total))
		p.netOps.Add(1)
		up := unsafe.Pointer(user)
		if p.track.Enabled() {
			p.track.TrackAllocation(up, size, site, chunkPointer(loadPtr(user-8)))
		}
		return up, nil
	}

	need := size + routingHeaderSize
	var (
		payload   uintptr
		header    uintptr
		owner     uint64
		accounted uintptr
		err       error
	)
	switch {
	case need <= smallCeiling:
		payload, err = p.small.allocate(need)
		if err == nil {
			header = payload - smallHeaderSize
			owner = ownerSmall
			accounted = smallHeaderSize + classSize(int(smallAt(header).bucket))
		}
	case need+mediumHeaderSize <= mediumMaxSpan:
		payload, err = p.medium.allocate(need + mediumHeaderSize)
		if err == nil {
			header = payload - mediumHeaderSize
			owner = ownerMedium
			accounted = uintptr(mediumAt(header).size)
		}
	case need <= largeCeiling:
		payload, err = p.large.allocate(need)
		if err == nil {
			header = payload - largeHeaderSize
			owner = ownerLarge
			accounted = largeHeaderSize + need
		}
	default:
		payload, err = p.huge.allocate(need)
		if err == nil {
			header = payload - largeHeaderSize
			owner = ownerHuge
			accounted = largeHeaderSize + need
		}
	}
	if err != nil {
		return nil, err
	}

	user := writeRouting(payload, owner, header)
	p.usedBytes.Add(uint64(accounted))
	p.netOps.Add(1)
	up := unsafe.Pointer(user)
	if p.track.Enabled() {
		p.track.TrackAllocation(up, size, site, chunkPointer(header))
	}
	return up, nil
}

// Deallocate releases a pointer previously returned by Allocate.
func (p *Pool) Deallocate(ptr unsafe.Pointer) error {
	if ptr == nil {
		return nil
	}
	if p.closed.Load() {
		return api.NewError(api.ErrCodePoolClosed, "deallocate on closed pool")
	}
	addr := uintptr(ptr)
	if addr < envelopeHeaderSize {
		return p.badFree(addr)
	}

	var accounted uintptr
	switch word := load64(addr - routingHeaderSize); word {
	case alignSentinel:
		accounted = freeEnveloped(addr)
	case ownerSmall:
		header := loadPtr(addr - 8)
		bucket := int(smallAt(header).bucket)
		if bucket >= smallClassCount {
			return p.badFree(addr)
		}
		if !p.small.deallocate(header) {
			return nil // double free or corrupted header: no-op
		}
		accounted = smallHeaderSize + classSize(bucket)
	case ownerMedium:
		header := loadPtr(addr - 8)
		accounted = uintptr(mediumAt(header).size)
		if !p.medium.deallocate(header) {
			return nil
		}
	case ownerLarge:
		header := loadPtr(addr - 8)
		accounted = largeHeaderSize + uintptr(directAt(header).size)
		if !p.large.deallocate(header) {
			return nil
		}
	case ownerHuge:
		header := loadPtr(addr - 8)
		accounted = largeHeaderSize + uintptr(directAt(header).size)
		if !p.huge.deallocate(header) {
			return nil
		}
	default:
		return p.badFree(addr)
	}

	p.usedBytes.Add(^uint64(accounted - 1))
	p.netOps.Add(-1)
	p.track.TrackDeallocation(ptr)
	return nil
}

func (p *Pool) badFree(addr uintptr) error {
	p.badFreeOnce.Do(func() {
		logging.Default().Warn("pool: deallocation pointer matches no header", "addr", addr)
	})
	return api.NewError(api.ErrCodeBadDeallocate, "pointer matches no envelope or tier header").
		WithContext("addr", uint64(addr))
}

// FlushLocalCaches pushes every cached small block back to the global
// stacks.
func (p *Pool) FlushLocalCaches() {
	p.small.flushAll()
}

// EnableLeakTracking turns the leak tracker on.
func (p *Pool) EnableLeakTracking(detailed bool) {
	p.track.Enable(detailed)
}

// DisableLeakTracking stops admitting new allocations into the
// tracker; deallocations of tracked pointers are still honoured.
func (p *Pool) DisableLeakTracking() {
	p.track.Disable()
}

// ReportLeaks writes the tracker's report to w.
func (p *Pool) ReportLeaks(w io.Writer) {
	p.track.ReportLeaks(w)
}

// Tracker exposes the pool's leak tracker collaborator.
func (p *Pool) Tracker() *tracker.Tracker {
	return p.track
}

// CurrentUsedBytes reports header+payload bytes of all outstanding
// allocations.
func (p *Pool) CurrentUsedBytes() uintptr {
	return uintptr(p.usedBytes.Load())
}

// NetOps reports allocations minus deallocations on this pool.
func (p *Pool) NetOps() int64 {
	return p.netOps.Load()
}

// Stats returns a consistent-enough snapshot for monitoring.
func (p *Pool) Stats() api.PoolStats {
	return api.PoolStats{
		UsedBytes: p.CurrentUsedBytes(),
		NetOps:    p.netOps.Load(),
		Small:     p.small.stats(),
		Medium:    p.medium.stats(),
		Large:     p.large.stats(),
		Huge:      p.huge.stats(),
		OSBytes:   osmem.UsedBytes(),
		OSOps:     osmem.NetOps(),
	}
}

// Close flushes the local caches and releases every tier, huge first,
// small last. Deallocations arriving after Close are rejected.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.small.flushAll()
		p.huge.releaseAll()
		p.large.releaseAll()
		p.medium.releaseAll()
		p.small.releaseAll()
		if used, ops := p.usedBytes.Load(), p.netOps.Load(); used != 0 || ops != 0 {
			logging.Default().Warn("pool: teardown imbalance",
				"used_bytes", used, "net_ops", ops)
		}
	})
}
