//go:build windows

// File: osmem/osmem_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows mapping backend: committed virtual reservations through
// VirtualAlloc, large pages requested for alignments above one page.

package osmem

import (
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	kern32           = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAlloc = kern32.NewProc("VirtualAlloc")
	procVirtualFree  = kern32.NewProc("VirtualFree")
)

const memLargePages = 0x20000000

func osAllocate(size, alignment uintptr) (unsafe.Pointer, error) {
	allocType := uintptr(windows.MEM_RESERVE | windows.MEM_COMMIT)
	if alignment > pageSize {
		if addr, _, _ := procVirtualAlloc.Call(0, size,
			allocType|memLargePages, windows.PAGE_READWRITE); addr != 0 {
			return unsafe.Pointer(addr), nil
		}
	}
	addr, _, err := procVirtualAlloc.Call(0, size, allocType, windows.PAGE_READWRITE)
	if addr == 0 {
		return nil, err
	}
	return unsafe.Pointer(addr), nil
}

func osDeallocate(p unsafe.Pointer, size uintptr) error {
	// MEM_RELEASE frees the whole reservation; size must be zero.
	_ = size
	r, _, err := procVirtualFree.Call(uintptr(p), 0, windows.MEM_RELEASE)
	if r == 0 {
		return err
	}
	return nil
}
