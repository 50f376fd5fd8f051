//go:build !amd64 && !arm64

// File: pool/tagstack_fallback.go
// Author: momentics <momentics@gmail.com>
//
// Mutex-backed stack for platforms where 48-bit address packing does
// not hold. Same interface as the lock-free variant; correctness is
// preserved, only the hot paths take a lock.

package pool

import (
	"sync"

	"golang.org/x/sys/cpu"
)

type taggedStack struct {
	mu   sync.Mutex
	head uintptr
	_    cpu.CacheLinePad
}

func (s *taggedStack) push(node uintptr) {
	s.mu.Lock()
	*nextSlot(node) = s.head
	s.head = node
	s.mu.Unlock()
}

func (s *taggedStack) pushSegment(first, last uintptr) {
	s.mu.Lock()
	*nextSlot(last) = s.head
	s.head = first
	s.mu.Unlock()
}

func (s *taggedStack) pop() (node uintptr, drained bool) {
	s.mu.Lock()
	node = s.head
	if node != 0 {
		s.head = *nextSlot(node)
		drained = s.head == 0
	}
	s.mu.Unlock()
	return node, drained
}

func (s *taggedStack) popSpecific(node uintptr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.head != node {
		return false
	}
	s.head = *nextSlot(node)
	return true
}

func (s *taggedStack) empty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head == 0
}

func (s *taggedStack) headNode() uintptr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.head
}

func (s *taggedStack) clear() {
	s.mu.Lock()
	s.head = 0
	s.mu.Unlock()
}
