// File: internal/concurrency/ring.go
// Package concurrency implements lock-free ring buffers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// MPSCRing is a bounded multi-producer single-consumer ring. Producers
// claim a slot with a CAS on the tail index and publish it through the
// slot sequence; the single consumer advances the head without CAS.
// Head and tail are padded to prevent false sharing.

package concurrency

import (
	"sync/atomic"

	"golang.org/x/sys/cpu"
)

type ringSlot[T any] struct {
	seq atomic.Uint64
	val T
}

// MPSCRing is a fixed-capacity multi-producer single-consumer ring buffer.
type MPSCRing[T any] struct {
	mask  uint64
	slots []ringSlot[T]
	_     cpu.CacheLinePad
	head  atomic.Uint64
	_     cpu.CacheLinePad
	tail  atomic.Uint64
	_     cpu.CacheLinePad
}

// NewMPSCRing allocates a ring buffer of power-of-two size.
func NewMPSCRing[T any](size uint64) *MPSCRing[T] {
	if size == 0 || size&(size-1) != 0 {
		panic("ring buffer size must be power of two")
	}
	r := &MPSCRing[T]{
		mask:  size - 1,
		slots: make([]ringSlot[T], size),
	}
	for i := range r.slots {
		r.slots[i].seq.Store(uint64(i))
	}
	return r
}

// Enqueue adds an item from any goroutine; returns false if full.
func (r *MPSCRing[T]) Enqueue(val T) bool {
	for {
		tail := r.tail.Load()
		slot := &r.slots[tail&r.mask]
		seq := slot.seq.Load()
		switch {
		case seq == tail:
			if r.tail.CompareAndSwap(tail, tail+1) {
				slot.val = val
				slot.seq.Store(tail + 1)
				return true
			}
		case seq < tail:
			return false // full: consumer has not recycled this slot
		}
		// seq > tail: another producer won the slot, reload tail.
	}
}

// Dequeue removes and returns an item. Single consumer only.
func (r *MPSCRing[T]) Dequeue() (val T, ok bool) {
	head := r.head.Load()
	slot := &r.slots[head&r.mask]
	if slot.seq.Load() != head+1 {
		return val, false
	}
	val = slot.val
	var zero T
	slot.val = zero
	slot.seq.Store(head + r.mask + 1)
	r.head.Store(head + 1)
	return val, true
}

// Len returns the number of slots claimed by producers and not yet
// consumed; a slot whose value is still being published is counted.
func (r *MPSCRing[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the fixed buffer capacity.
func (r *MPSCRing[T]) Cap() int {
	return len(r.slots)
}
