//go:build !linux && !windows

// File: osmem/osmem_stub.go
// Author: momentics <momentics@gmail.com>
//
// Fallback mapping backend for the remaining unix platforms. Plain
// anonymous mmap; no large-page support.

package osmem

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func osAllocate(size, alignment uintptr) (unsafe.Pointer, error) {
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(&b[0]), nil
}

func osDeallocate(p unsafe.Pointer, size uintptr) error {
	return unix.Munmap(unsafe.Slice((*byte)(p), size))
}
