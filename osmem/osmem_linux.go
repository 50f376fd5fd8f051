//go:build linux

// File: osmem/osmem_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux mapping backend: anonymous private mmap, huge pages requested
// when the caller's alignment exceeds one page.

package osmem

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

func osAllocate(size, alignment uintptr) (unsafe.Pointer, error) {
	flags := unix.MAP_PRIVATE | unix.MAP_ANONYMOUS
	if alignment > pageSize {
		// Hugepage-backed mappings need hugetlbfs pages reserved; retry
		// with regular pages when the kernel has none.
		if b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE,
			flags|unix.MAP_HUGETLB); err == nil {
			return unsafe.Pointer(&b[0]), nil
		}
	}
	b, err := unix.Mmap(-1, 0, int(size), unix.PROT_READ|unix.PROT_WRITE, flags)
	if err != nil {
		return nil, err
	}
	return unsafe.Pointer(&b[0]), nil
}

func osDeallocate(p unsafe.Pointer, size uintptr) error {
	return unix.Munmap(unsafe.Slice((*byte)(p), size))
}
