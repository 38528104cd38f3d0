package fpsensor

import "github.com/alvinjay/fpsensor/internal/metrics"

// Metrics is a type alias over internal/metrics.Metrics, kept in a
// leaf package so transport, orchestrator, and presence can record
// into the same instance a Driver exposes without importing this
// package.
type Metrics = metrics.Metrics

// MetricsSnapshot is a point-in-time copy of Metrics suitable for reporting.
type MetricsSnapshot = metrics.Snapshot

// NewMetrics creates a ready-to-use Metrics instance.
func NewMetrics() *Metrics {
	return metrics.New()
}

// Metrics returns the Driver's metrics instance.
func (d *Driver) Metrics() *Metrics {
	return d.metrics
}

// MetricsSnapshot returns a point-in-time snapshot of the Driver's metrics.
func (d *Driver) MetricsSnapshot() MetricsSnapshot {
	if d.metrics == nil {
		return MetricsSnapshot{}
	}
	return d.metrics.Snapshot()
}
