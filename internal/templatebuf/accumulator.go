// Package templatebuf implements the template accumulator (C7): it
// buffers multi-packet template payloads until an end-marker is
// observed and publishes a complete, independently-owned artifact.
package templatebuf

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/alvinjay/fpsensor/internal/logging"
	"github.com/alvinjay/fpsensor/internal/parser"
	"github.com/alvinjay/fpsensor/internal/protocol"
)

// Completion thresholds (§4.7).
const (
	SizeCompletionBytes   = 500
	SizeCompletionElapsed = 1500 * time.Millisecond
	ForcedCompletion      = 3 * time.Second
)

// embeddedFinalSeq is the sub-sequence identifying a complete sensor
// header with an END_DATA packet id embedded mid-payload.
var embeddedFinalSeq = []byte{0xEF, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0x08}

// TemplateBuffer is the deep-copied, independently-owned artifact
// delivered to the event bus on completion.
type TemplateBuffer struct {
	Data     []byte
	Size     int
	Complete bool
}

// Accumulator is process-wide in the source driver; here it is owned
// by the Driver and allocated for the lifetime of a single upload.
type Accumulator struct {
	mu      sync.Mutex
	logger  *logging.Logger
	active  bool
	packets []*protocol.Packet
	raw     []byte
	started time.Time
}

// New returns an idle accumulator.
func New(logger *logging.Logger) *Accumulator {
	if logger == nil {
		logger = logging.Default()
	}
	return &Accumulator{logger: logger}
}

// Begin starts a fresh accumulation session, discarding any prior one.
func (a *Accumulator) Begin() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.active = true
	a.packets = nil
	a.raw = getRawBuffer()
	a.started = time.Now()
}

// Active reports whether an upload is currently being accumulated.
func (a *Accumulator) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

// Ingest folds a parser response into the accumulator: every DATA and
// END_DATA packet is deep-copied with a recomputed checksum and
// reconciled for an embedded final packet, and the raw bytes are
// appended to the running buffer. It returns true once a completion
// criterion is met.
func (a *Accumulator) Ingest(resp *parser.MultiPacketResponse) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		a.active = true
		a.raw = getRawBuffer()
		a.started = time.Now()
	}

	if len(resp.TemplateData) > 0 {
		a.raw = append(a.raw, resp.TemplateData...)
	}

	for _, p := range resp.Packets {
		if p.PacketID != protocol.PacketData && p.PacketID != protocol.PacketEndData {
			continue
		}
		cp := deepCopy(p)
		protocol.RecomputeChecksum(cp)
		a.reconcileEmbeddedFinal(cp)
		a.packets = append(a.packets, cp)
		if len(resp.TemplateData) == 0 {
			a.raw = append(a.raw, cp.Parameters...)
		}
	}

	return a.completeLocked(time.Now())
}

// CheckTimeouts re-evaluates the size/time-based completion criteria
// without new packets having arrived; the dispatcher calls this on its
// own poll tick so a stalled upload still completes.
func (a *Accumulator) CheckTimeouts() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return false
	}
	return a.completeLocked(time.Now())
}

// completeLocked evaluates the four completion criteria of §4.7. Caller
// holds a.mu.
func (a *Accumulator) completeLocked(now time.Time) bool {
	if !a.active {
		return false
	}
	elapsed := now.Sub(a.started)
	if a.hasEndDataLocked() {
		return true
	}
	if bytes.Contains(a.raw, protocol.FOOF[:]) {
		return true
	}
	for _, p := range a.packets {
		if bytes.Contains(p.Parameters, protocol.FOOF[:]) {
			return true
		}
	}
	if len(a.raw) > SizeCompletionBytes && elapsed > SizeCompletionElapsed {
		return true
	}
	if elapsed > ForcedCompletion {
		a.logger.Warn("templatebuf: forcing completion after timeout", "elapsed", elapsed)
		return true
	}
	return false
}

func (a *Accumulator) hasEndDataLocked() bool {
	for _, p := range a.packets {
		if p.PacketID == protocol.PacketEndData {
			return true
		}
	}
	return false
}

// reconcileEmbeddedFinal implements the embedded-final-packet
// reconciliation of §4.7: if p's parameters contain a complete sensor
// header with an END_DATA id, the containing packet is truncated at
// that offset and a new END_DATA packet is synthesized from the
// embedded bytes and appended to the accumulator.
func (a *Accumulator) reconcileEmbeddedFinal(p *protocol.Packet) {
	if p.PacketID != protocol.PacketData {
		return
	}
	offset := bytes.Index(p.Parameters, embeddedFinalSeq)
	if offset < 0 {
		return
	}

	embedded := p.Parameters[offset:]
	p.Parameters = append([]byte(nil), p.Parameters[:offset]...)
	p.Length = uint16(len(p.Parameters) + 2)
	protocol.RecomputeChecksum(p)

	end := &protocol.Packet{Header: protocol.HeaderSentinel, PacketID: protocol.PacketEndData}
	if len(embedded) >= 9 {
		end.Address = binary.BigEndian.Uint32(embedded[2:6])
		length := binary.BigEndian.Uint16(embedded[7:9])
		paramLen := int(length) - 2
		if paramLen < 0 {
			paramLen = 0
		}
		avail := len(embedded) - 9
		if paramLen > avail {
			paramLen = avail
		}
		end.Parameters = append([]byte(nil), embedded[9:9+paramLen]...)
		end.Length = uint16(len(end.Parameters) + 2)
	} else {
		end.Length = 2
	}
	protocol.RecomputeChecksum(end)
	a.packets = append(a.packets, end)
	a.logger.Debug("templatebuf: reconciled embedded final packet", "offset", offset, "end_len", end.Length)
}

// Finish deep-copies the accumulated packets and raw buffer into a
// fresh TemplateBuffer, drops empty END_DATA packets, and frees the
// accumulator for reuse.
func (a *Accumulator) Finish() (*TemplateBuffer, []*protocol.Packet) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var kept []*protocol.Packet
	for _, p := range a.packets {
		if p.PacketID == protocol.PacketEndData && p.Length <= 2 && len(p.Parameters) == 0 {
			continue
		}
		kept = append(kept, deepCopy(p))
	}

	data := append([]byte(nil), a.raw...)
	tb := &TemplateBuffer{Data: data, Size: len(data), Complete: true}

	putRawBuffer(a.raw)
	a.raw = nil
	a.packets = nil
	a.active = false

	return tb, kept
}

func deepCopy(p *protocol.Packet) *protocol.Packet {
	cp := *p
	cp.Parameters = append([]byte(nil), p.Parameters...)
	return &cp
}
