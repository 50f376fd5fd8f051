// File: pool/envelope.go
// Author: momentics <momentics@gmail.com>
//
// Alignment envelope: the slow path for alignments above the default
// pointer alignment. The request bypasses every tier and maps straight
// from the OS; the returned pointer is preceded by a sentinel-tagged
// header recording the raw mapping, so deallocation never consults the
// tiers. Routing oversized alignment through the small tier would
// break its fixed size-class layout.

package pool

import (
	"github.com/momentics/tieralloc/api"
	"github.com/momentics/tieralloc/osmem"
)

// allocateEnveloped maps size bytes aligned to alignment and writes
// the envelope header in the gap before the aligned address. Returns
// the accounted total alongside the user address.
func allocateEnveloped(size, alignment uintptr) (user, total uintptr, err error) {
	total = size + alignment - 1 + envelopeHeaderSize
	p, err := osmem.Allocate(total, alignment)
	if err != nil {
		return 0, 0, api.NewError(api.ErrCodeOutOfMemory, "envelope mapping failed").
			WithContext("size", uint64(size)).
			WithContext("alignment", uint64(alignment))
	}
	raw := uintptr(p)
	user = alignUp(raw+envelopeHeaderSize, alignment)

	storePtr(user-envelopeHeaderSize, total)
	store64(user-routingHeaderSize, alignSentinel)
	storePtr(user-8, raw)
	return user, total, nil
}

// freeEnveloped releases an envelope pointer whose sentinel has
// already been matched. Returns the accounted total.
func freeEnveloped(user uintptr) uintptr {
	total := loadPtr(user - envelopeHeaderSize)
	raw := loadPtr(user - 8)
	store64(user-routingHeaderSize, 0) // drop the sentinel before the pages vanish
	osmem.Deallocate(chunkPointer(raw), total)
	return total
}
