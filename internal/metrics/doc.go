// Package metrics provides lock-free in-process counters for the session
// core. Counters are keyed by [MetricID] and read through [Metrics.Snapshot];
// exporting to an external system is the consumer's concern.
//
// # What this package must NOT do
//
//   - Import authcore or any sibling internal package.
//   - Allocate on the Inc hot path.
package metrics
