// File: pool/pin.go
// Author: momentics <momentics@gmail.com>
//
// Processor identity for cache-shard affinity. The pinned P id is used
// purely as a locality hint; shards stay correct under any schedule.

package pool

import (
	_ "unsafe" // for go:linkname
)

//go:linkname runtime_procPin runtime.procPin
func runtime_procPin() int

//go:linkname runtime_procUnpin runtime.procUnpin
func runtime_procUnpin()

// procHint returns the id of the P the calling goroutine runs on.
func procHint() int {
	pid := runtime_procPin()
	runtime_procUnpin()
	return pid
}
