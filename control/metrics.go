// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics collector for allocator monitoring.
// Exposes counters in a thread-safe map with dynamic registration.

package control

import (
	"sync"
	"time"

	"github.com/momentics/tieralloc/api"
)

// MetricsRegistry holds mutable and read-only metrics.
type MetricsRegistry struct {
	mu      sync.RWMutex
	metrics map[string]any
	updated time.Time
}

// NewMetricsRegistry creates an empty registry.
func NewMetricsRegistry() *MetricsRegistry {
	return &MetricsRegistry{
		metrics: make(map[string]any),
	}
}

// Set sets or updates a metric key.
func (mr *MetricsRegistry) Set(key string, value any) {
	mr.mu.Lock()
	mr.metrics[key] = value
	mr.updated = time.Now()
	mr.mu.Unlock()
}

// PublishPoolStats flattens a pool snapshot into the registry under prefix.
func (mr *MetricsRegistry) PublishPoolStats(prefix string, s api.PoolStats) {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	mr.metrics[prefix+".used_bytes"] = uint64(s.UsedBytes)
	mr.metrics[prefix+".net_ops"] = s.NetOps
	mr.metrics[prefix+".os.bytes"] = s.OSBytes
	mr.metrics[prefix+".os.ops"] = s.OSOps
	for name, t := range map[string]api.TierStats{
		"small": s.Small, "medium": s.Medium, "large": s.Large, "huge": s.Huge,
	} {
		mr.metrics[prefix+"."+name+".alloc"] = t.TotalAlloc
		mr.metrics[prefix+"."+name+".free"] = t.TotalFree
		mr.metrics[prefix+"."+name+".in_use"] = t.InUse
		mr.metrics[prefix+"."+name+".chunks"] = t.Chunks
		mr.metrics[prefix+"."+name+".chunk_bytes"] = t.ChunkBytes
	}
	mr.updated = time.Now()
}

// GetSnapshot returns the latest metrics.
func (mr *MetricsRegistry) GetSnapshot() map[string]any {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	out := make(map[string]any, len(mr.metrics))
	for k, v := range mr.metrics {
		out[k] = v
	}
	return out
}

// Updated reports when the registry last changed.
func (mr *MetricsRegistry) Updated() time.Time {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	return mr.updated
}
