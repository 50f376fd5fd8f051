// File: api/stats.go
// Author: momentics <momentics@gmail.com>
//
// Resource accounting structures exposed by the pool for observability.

package api

// TierStats aggregates allocation/reuse counters for one tier.
type TierStats struct {
	TotalAlloc int64
	TotalFree  int64
	InUse      int64
	Chunks     int
	ChunkBytes int64
}

// PoolStats is the snapshot returned by Pool.Stats.
type PoolStats struct {
	UsedBytes uintptr // header+payload bytes of outstanding allocations
	NetOps    int64   // allocations minus deallocations

	Small  TierStats
	Medium TierStats
	Large  TierStats
	Huge   TierStats

	// Raw OS-level accounting from the shim.
	OSBytes uint64
	OSOps   int64
}
