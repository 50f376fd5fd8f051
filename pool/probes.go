// File: pool/probes.go
// Author: momentics <momentics@gmail.com>
//
// Observability wiring: the pool publishes tier snapshots into a
// metrics registry and registers debug probes for live inspection.

package pool

import (
	"github.com/momentics/tieralloc/control"
)

// PublishMetrics flattens the current snapshot into mr under prefix.
func (p *Pool) PublishMetrics(mr *control.MetricsRegistry, prefix string) {
	mr.PublishPoolStats(prefix, p.Stats())
}

// RegisterProbes installs per-tier probe hooks on dp.
func (p *Pool) RegisterProbes(dp *control.DebugProbes) {
	dp.RegisterProbe("pool.small", func() any { return p.small.stats() })
	dp.RegisterProbe("pool.medium", func() any { return p.medium.stats() })
	dp.RegisterProbe("pool.medium.order_mask", func() any { return p.medium.mask.Load() })
	dp.RegisterProbe("pool.medium.merge_backlog", func() any { return p.medium.merge.Len() })
	dp.RegisterProbe("pool.large", func() any { return p.large.stats() })
	dp.RegisterProbe("pool.huge", func() any { return p.huge.stats() })
	dp.RegisterProbe("pool.used_bytes", func() any { return uint64(p.CurrentUsedBytes()) })
	dp.RegisterProbe("pool.net_ops", func() any { return p.NetOps() })
}
