// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection layer for the allocator.
//
// Provides concurrent-safe observability primitives:
//   - Metrics telemetry registry with pool-snapshot publishing
//   - Debug hooks and probe registration for live tier inspection
package control
