package parser

import (
	"bytes"
	"encoding/binary"
	"sync"
	"time"

	"github.com/alvinjay/fpsensor/internal/logging"
	"github.com/alvinjay/fpsensor/internal/metrics"
	"github.com/alvinjay/fpsensor/internal/protocol"
)

// Defensive-recovery timing constants (§4.2).
const (
	stuckHeaderWindow    = 2 * time.Second
	noProgressWindow     = 10 * time.Second
	truncatedDataWindow  = 300 * time.Millisecond
	fastPathMinBuffer    = 100
	fastPathForceBuffer  = 400
	fastPathCooldown     = 5 * time.Second
	scanBufferMinCap     = 256
	maxSaneDeclaredFrame = 4096
)

// Parser is a resumable byte-stream decoder. A single Parser is meant
// to be owned by one transport session (see internal/transport). A
// mutex guards all of its state, so the reader task (C3) can call Feed
// while the sending goroutine calls SetLastOutboundOpcode.
type Parser struct {
	mu      sync.Mutex
	buf     []byte
	logger  *logging.Logger
	metrics *metrics.Metrics

	lastOutboundOpcode protocol.Opcode

	stableLen   int
	stableSince time.Time
	lastEmit    time.Time

	uploadStarted        time.Time
	uploadFastPathDone   bool
	uploadFastPathCooled time.Time
}

// New returns a ready-to-use Parser with a pre-sized scan buffer.
func New(logger *logging.Logger, m *metrics.Metrics) *Parser {
	if logger == nil {
		logger = logging.Default()
	}
	if m == nil {
		m = metrics.New()
	}
	now := time.Now()
	return &Parser{
		buf:         make([]byte, 0, scanBufferMinCap),
		logger:      logger,
		metrics:     m,
		stableSince: now,
		lastEmit:    now,
	}
}

// SetLastOutboundOpcode records the opcode of the most recently sent
// command, which governs both the UpChar read-timeout policy (owned by
// the caller) and the template fast path below. Sending a fresh UpChar
// resets the fast-path latch for the new upload.
func (p *Parser) SetLastOutboundOpcode(op protocol.Opcode) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastOutboundOpcode = op
	if op == protocol.OpUpChar {
		p.uploadStarted = time.Now()
		p.uploadFastPathDone = false
		p.uploadFastPathCooled = time.Time{}
	}
}

// Feed appends newly read bytes (possibly empty, for a poll tick with
// no data) and advances the state machine. It returns a
// MultiPacketResponse once at least one full packet is present, or nil
// if more bytes are needed.
func (p *Parser) Feed(data []byte) *MultiPacketResponse {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	p.buf = append(p.buf, data...)
	p.trackStability(now)

	// (a) stuck-header recovery: a tiny buffer that never grows is
	// almost certainly line noise that never completed a header match.
	if len(p.buf) > 0 && len(p.buf) <= 2 && now.Sub(p.stableSince) > stuckHeaderWindow {
		p.logger.Debug("parser: clearing stuck header buffer", "len", len(p.buf))
		p.resetBuffer(now)
	}

	if p.lastOutboundOpcode == protocol.OpUpChar {
		if resp := p.tryTemplateFastPath(now); resp != nil {
			return resp
		}
	}

	resp := &MultiPacketResponse{Started: now}
	for {
		pkt, emitted := p.tryExtractOne(now)
		if !emitted {
			break
		}
		resp.Packets = append(resp.Packets, pkt)
		if pkt.PacketID == protocol.PacketEndData {
			resp.TemplateComplete = true
		}
	}
	p.trackStability(now)

	if len(resp.Packets) > 0 {
		p.lastEmit = now
		return resp
	}

	// (b) no-progress recovery.
	if len(p.buf) > 0 && now.Sub(p.lastEmit) > noProgressWindow {
		p.resyncOrDrop(now)
	}
	return nil
}

func (p *Parser) trackStability(now time.Time) {
	if len(p.buf) != p.stableLen {
		p.stableLen = len(p.buf)
		p.stableSince = now
	}
}

func (p *Parser) resetBuffer(now time.Time) {
	p.buf = p.buf[:0]
	p.stableLen = 0
	p.stableSince = now
}

// resyncOrDrop implements defensive invariant (b): scan forward for
// the next header occurrence past the current one and resume there; if
// none exists, the whole buffer is noise and is dropped.
func (p *Parser) resyncOrDrop(now time.Time) {
	if len(p.buf) < 2 {
		p.resetBuffer(now)
		p.metrics.RecordParserResync()
		return
	}
	if idx := bytes.Index(p.buf[1:], protocol.HeaderSentinel[:]); idx >= 0 {
		p.logger.Debug("parser: resyncing on next header", "skipped", idx+1)
		p.buf = p.buf[1+idx:]
	} else {
		p.logger.Debug("parser: no header found, dropping buffer", "len", len(p.buf))
		p.buf = p.buf[:0]
	}
	p.metrics.RecordParserResync()
	p.stableLen = len(p.buf)
	p.stableSince = now
	p.lastEmit = now
}

// tryExtractOne pulls at most one complete frame out of p.buf,
// discarding leading noise and resyncing past malformed length fields
// as it goes. It implements invariant (c) for a truncated DATA frame
// stalled mid-transfer during a template upload.
func (p *Parser) tryExtractOne(now time.Time) (*protocol.Packet, bool) {
	for {
		idx := bytes.Index(p.buf, protocol.HeaderSentinel[:])
		if idx < 0 {
			// Keep a trailing first sentinel byte: the second one may
			// arrive in the next read.
			if n := len(p.buf); n > 0 && p.buf[n-1] == protocol.HeaderSentinel[0] {
				p.buf = append(p.buf[:0], p.buf[n-1])
			} else {
				p.buf = p.buf[:0]
			}
			return nil, false
		}
		if idx > 0 {
			p.buf = p.buf[idx:]
		}
		if len(p.buf) < 9 {
			return nil, false
		}
		id := protocol.PacketID(p.buf[6])
		length := binary.BigEndian.Uint16(p.buf[7:9])
		if int(length) > maxSaneDeclaredFrame {
			// Not a real frame; the sentinel matched by coincidence.
			p.buf = p.buf[1:]
			continue
		}
		total := 9 + int(length)
		if len(p.buf) < total {
			if p.lastOutboundOpcode == protocol.OpUpChar && id == protocol.PacketData &&
				now.Sub(p.stableSince) > truncatedDataWindow {
				return p.emitTruncatedData(id), true
			}
			return nil, false
		}
		pkt, err := protocol.Decode(p.buf[:total])
		if err != nil {
			p.buf = p.buf[1:]
			continue
		}
		if !protocol.VerifyChecksum(pkt) {
			p.logger.Debug("parser: checksum mismatch, accepting frame anyway", "packetID", id)
			p.metrics.RecordChecksumMismatch()
		}
		p.buf = p.buf[total:]
		return pkt, true
	}
}

func (p *Parser) emitTruncatedData(id protocol.PacketID) *protocol.Packet {
	avail := len(p.buf) - 9
	if avail < 0 {
		avail = 0
	}
	pkt := &protocol.Packet{
		Header:     protocol.HeaderSentinel,
		Address:    binary.BigEndian.Uint32(p.buf[2:6]),
		PacketID:   id,
		Parameters: append([]byte(nil), p.buf[9:9+avail]...),
		Length:     uint16(avail + 2),
	}
	protocol.RecomputeChecksum(pkt)
	p.logger.Debug("parser: emitting truncated DATA packet", "available", avail)
	p.resetBuffer(time.Now())
	return pkt
}

// tryTemplateFastPath implements the UpChar fast path: once the buffer
// is large enough to plausibly hold a full template, look for a
// natural END_DATA frame or the FOOF marker; failing that, force
// completion once the buffer is simply too large to keep growing. Used
// at most once per upload thanks to the cooldown latch.
func (p *Parser) tryTemplateFastPath(now time.Time) *MultiPacketResponse {
	if p.uploadFastPathDone && now.Before(p.uploadFastPathCooled) {
		return nil
	}
	if len(p.buf) <= fastPathMinBuffer {
		return nil
	}

	endIdx := findEmbeddedHeader(p.buf, protocol.PacketEndData)
	foofIdx := bytes.Index(p.buf, protocol.FOOF[:])
	forced := len(p.buf) > fastPathForceBuffer

	if endIdx < 0 && foofIdx < 0 && !forced {
		return nil
	}

	cut := len(p.buf)
	var naturalEnd *protocol.Packet
	if foofIdx >= 0 {
		cut = foofIdx + len(protocol.FOOF)
	}
	if endIdx >= 0 && endIdx+9 <= len(p.buf) {
		length := binary.BigEndian.Uint16(p.buf[endIdx+7 : endIdx+9])
		total := endIdx + 9 + int(length)
		if total <= len(p.buf) {
			if pkt, err := protocol.Decode(p.buf[endIdx:total]); err == nil {
				naturalEnd = pkt
				if total < cut {
					cut = total
				}
			}
		}
	}

	data := append([]byte(nil), p.buf[:cut]...)
	resp := &MultiPacketResponse{
		CollectingTemplate: true,
		TemplateComplete:   true,
		TemplateData:       data,
		Started:            p.uploadStarted,
	}

	dataPkt := &protocol.Packet{Header: protocol.HeaderSentinel, PacketID: protocol.PacketData, Parameters: data, Length: uint16(len(data) + 2)}
	protocol.RecomputeChecksum(dataPkt)
	resp.Packets = append(resp.Packets, dataPkt)

	if naturalEnd != nil {
		resp.Packets = append(resp.Packets, naturalEnd)
	} else {
		endPkt := &protocol.Packet{Header: protocol.HeaderSentinel, PacketID: protocol.PacketEndData, Length: 2}
		protocol.RecomputeChecksum(endPkt)
		resp.Packets = append(resp.Packets, endPkt)
	}

	p.logger.Info("parser: template fast path fired", "bytes", len(data), "forced", forced)
	p.uploadFastPathDone = true
	p.uploadFastPathCooled = now.Add(fastPathCooldown)
	p.resetBuffer(now)
	p.lastEmit = now
	return resp
}

// findEmbeddedHeader scans buf for a header sentinel immediately
// followed (at offset+6) by id, anywhere in the buffer.
func findEmbeddedHeader(buf []byte, id protocol.PacketID) int {
	from := 0
	for {
		rel := bytes.Index(buf[from:], protocol.HeaderSentinel[:])
		if rel < 0 {
			return -1
		}
		at := from + rel
		if at+6 < len(buf) && protocol.PacketID(buf[at+6]) == id {
			return at
		}
		from = at + 1
	}
}
