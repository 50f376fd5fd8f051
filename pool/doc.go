// Package pool
// Author: momentics <momentics@gmail.com>
//
// Four-tier off-heap memory pool sitting directly on the OS virtual
// memory primitives. Small requests are served from 64 size classes via
// per-P caches backed by lock-free global stacks; medium requests go
// through a buddy system with an asynchronous coalescer; large and huge
// requests map straight to the OS. A unified dispatcher routes raw
// deallocation pointers back to the owning tier through block-header
// sentinels. All primitives are cross-platform (Linux/Windows).
// See small.go, medium.go, large.go, pool.go for implementation details.
package pool
