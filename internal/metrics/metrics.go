// Package metrics tracks driver-level performance and operational
// counters, structured the way the teacher's root Metrics type does:
// atomic counters plus a cumulative latency histogram, with a
// point-in-time Snapshot for reporting. It lives under internal/ (not
// the root package) so both internal/transport and the root driver can
// import it without a cycle.
package metrics

import (
	"sync/atomic"
	"time"
)

// LatencyBuckets defines the command round-trip latency histogram
// buckets in nanoseconds, from 1ms to 30s.
var LatencyBuckets = []uint64{
	1_000_000,
	10_000_000,
	100_000_000,
	500_000_000,
	1_000_000_000,
	5_000_000_000,
	30_000_000_000,
}

const numLatencyBuckets = 7

// Metrics tracks performance and operational statistics for a Driver.
type Metrics struct {
	CommandsSent       atomic.Uint64
	CommandsFailed     atomic.Uint64
	Retries            atomic.Uint64
	ChecksumMismatches atomic.Uint64
	ParserResyncs      atomic.Uint64

	TemplateBytesTransferred atomic.Uint64
	TemplateUploads          atomic.Uint64

	FingerDetectDebounced atomic.Uint64
	FingerDetectAccepted  atomic.Uint64

	TotalLatencyNs atomic.Uint64
	OpCount        atomic.Uint64
	LatencyBuckets [numLatencyBuckets]atomic.Uint64

	StartTime atomic.Int64
}

// New creates a ready-to-use Metrics instance.
func New() *Metrics {
	m := &Metrics{}
	m.StartTime.Store(time.Now().UnixNano())
	return m
}

// RecordCommand records the outcome and round-trip latency of a
// dispatched command.
func (m *Metrics) RecordCommand(latencyNs uint64, success bool) {
	m.CommandsSent.Add(1)
	if !success {
		m.CommandsFailed.Add(1)
	}
	m.recordLatency(latencyNs)
}

// RecordRetry increments the retry counter for a multi-attempt step.
func (m *Metrics) RecordRetry() {
	m.Retries.Add(1)
}

// RecordChecksumMismatch is invoked whenever the parser decodes a frame
// whose checksum doesn't verify; the frame is still accepted (§4.2).
func (m *Metrics) RecordChecksumMismatch() {
	m.ChecksumMismatches.Add(1)
}

// RecordParserResync is invoked whenever the parser drops buffered
// bytes to recover from a stuck or unrecognized stream position.
func (m *Metrics) RecordParserResync() {
	m.ParserResyncs.Add(1)
}

// RecordTemplateUpload records a completed template transfer's size.
func (m *Metrics) RecordTemplateUpload(bytes uint64) {
	m.TemplateUploads.Add(1)
	m.TemplateBytesTransferred.Add(bytes)
}

// RecordFingerDetect records whether a GPIO edge was debounced away or
// accepted for a capture attempt.
func (m *Metrics) RecordFingerDetect(accepted bool) {
	if accepted {
		m.FingerDetectAccepted.Add(1)
	} else {
		m.FingerDetectDebounced.Add(1)
	}
}

func (m *Metrics) recordLatency(latencyNs uint64) {
	m.TotalLatencyNs.Add(latencyNs)
	m.OpCount.Add(1)
	for i, bucket := range LatencyBuckets {
		if latencyNs <= bucket {
			m.LatencyBuckets[i].Add(1)
		}
	}
}

// Snapshot is a point-in-time copy of Metrics suitable for reporting.
type Snapshot struct {
	CommandsSent             uint64
	CommandsFailed           uint64
	Retries                  uint64
	ChecksumMismatches       uint64
	ParserResyncs            uint64
	TemplateBytesTransferred uint64
	TemplateUploads          uint64
	FingerDetectDebounced    uint64
	FingerDetectAccepted     uint64
	AvgLatencyNs             uint64
	UptimeNs                 uint64
	LatencyHistogram         [numLatencyBuckets]uint64
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{
		CommandsSent:             m.CommandsSent.Load(),
		CommandsFailed:           m.CommandsFailed.Load(),
		Retries:                  m.Retries.Load(),
		ChecksumMismatches:       m.ChecksumMismatches.Load(),
		ParserResyncs:            m.ParserResyncs.Load(),
		TemplateBytesTransferred: m.TemplateBytesTransferred.Load(),
		TemplateUploads:          m.TemplateUploads.Load(),
		FingerDetectDebounced:    m.FingerDetectDebounced.Load(),
		FingerDetectAccepted:     m.FingerDetectAccepted.Load(),
		UptimeNs:                 uint64(time.Now().UnixNano() - m.StartTime.Load()),
	}
	if opCount := m.OpCount.Load(); opCount > 0 {
		snap.AvgLatencyNs = m.TotalLatencyNs.Load() / opCount
	}
	for i := 0; i < numLatencyBuckets; i++ {
		snap.LatencyHistogram[i] = m.LatencyBuckets[i].Load()
	}
	return snap
}

// Reset zeroes all counters; useful for tests.
func (m *Metrics) Reset() {
	m.CommandsSent.Store(0)
	m.CommandsFailed.Store(0)
	m.Retries.Store(0)
	m.ChecksumMismatches.Store(0)
	m.ParserResyncs.Store(0)
	m.TemplateBytesTransferred.Store(0)
	m.TemplateUploads.Store(0)
	m.FingerDetectDebounced.Store(0)
	m.FingerDetectAccepted.Store(0)
	m.TotalLatencyNs.Store(0)
	m.OpCount.Store(0)
	for i := 0; i < numLatencyBuckets; i++ {
		m.LatencyBuckets[i].Store(0)
	}
	m.StartTime.Store(time.Now().UnixNano())
}
