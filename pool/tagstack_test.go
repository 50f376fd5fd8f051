// File: pool/tagstack_test.go
// Author: momentics <momentics@gmail.com>
//
// The stacks operate on headers inside OS-mapped memory, so the tests
// carve their nodes out of a raw mapping rather than the Go heap.

package pool

import (
	"runtime"
	"sync"
	"testing"

	"github.com/momentics/tieralloc/osmem"
)

// mapNodes returns n header-aligned node addresses backed by one
// mapping, plus a release function.
func mapNodes(t *testing.T, n int) ([]uintptr, func()) {
	t.Helper()
	size := uintptr(n) * headerAlign
	p, err := osmem.Allocate(size, headerAlign)
	if err != nil {
		t.Fatalf("mapping nodes: %v", err)
	}
	base := uintptr(p)
	nodes := make([]uintptr, n)
	for i := range nodes {
		nodes[i] = base + uintptr(i)*headerAlign
	}
	return nodes, func() { osmem.Deallocate(p, size) }
}

func TestTaggedStackLIFO(t *testing.T) {
	nodes, release := mapNodes(t, 8)
	defer release()

	var s taggedStack
	if !s.empty() {
		t.Fatal("fresh stack not empty")
	}
	for _, n := range nodes {
		s.push(n)
	}
	for i := len(nodes) - 1; i >= 0; i-- {
		got, _ := s.pop()
		if got != nodes[i] {
			t.Fatalf("pop %d: got %#x want %#x", i, got, nodes[i])
		}
	}
	if n, _ := s.pop(); n != 0 {
		t.Fatalf("pop on empty stack returned %#x", n)
	}
}

func TestTaggedStackSegmentPush(t *testing.T) {
	nodes, release := mapNodes(t, 6)
	defer release()

	var s taggedStack
	s.push(nodes[5])

	// Pre-link nodes[0..4] and push the whole chain in one swap.
	for i := 0; i < 4; i++ {
		*nextSlot(nodes[i]) = nodes[i+1]
	}
	s.pushSegment(nodes[0], nodes[4])

	want := []uintptr{nodes[0], nodes[1], nodes[2], nodes[3], nodes[4], nodes[5]}
	for i, w := range want {
		got, drained := s.pop()
		if got != w {
			t.Fatalf("pop %d: got %#x want %#x", i, got, w)
		}
		if drained != (i == len(want)-1) {
			t.Fatalf("pop %d: drained=%v", i, drained)
		}
	}
}

func TestTaggedStackPopSpecific(t *testing.T) {
	nodes, release := mapNodes(t, 3)
	defer release()

	var s taggedStack
	s.push(nodes[0])
	s.push(nodes[1])

	if s.popSpecific(nodes[0]) {
		t.Fatal("removed a buried node")
	}
	if !s.popSpecific(nodes[1]) {
		t.Fatal("failed to remove the head")
	}
	if !s.popSpecific(nodes[0]) {
		t.Fatal("failed to remove the new head")
	}
	if !s.empty() {
		t.Fatal("stack should be empty")
	}
}

func TestTaggedStackConcurrent(t *testing.T) {
	const workers = 4
	const perWorker = 256
	nodes, release := mapNodes(t, workers*perWorker)
	defer release()

	var s taggedStack
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(chunk []uintptr) {
			defer wg.Done()
			// Cycle each node through the stack a few times.
			for round := 0; round < 8; round++ {
				for _, n := range chunk {
					s.push(n)
				}
				popped := 0
				for popped < len(chunk) {
					if n, _ := s.pop(); n != 0 {
						popped++
					} else {
						runtime.Gosched()
					}
				}
			}
		}(nodes[w*perWorker : (w+1)*perWorker])
	}
	wg.Wait()

	if !s.empty() {
		t.Fatal("stack not empty after balanced push/pop")
	}
}
